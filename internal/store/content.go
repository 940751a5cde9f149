package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AisyIE/ai-toolbox/internal/fingerprint"
	"github.com/AisyIE/ai-toolbox/internal/fsops"
	"github.com/AisyIE/ai-toolbox/internal/types"
)

// Put copies the bundle at srcDir into the skill's central location and
// refreshes the registry record. Writing identical content is a no-op on
// disk and UpdatedAt is only bumped when the fingerprint actually
// changed. Returns whether the content changed.
func (s *Store) Put(skill *types.ManagedSkill, srcDir string) (bool, error) {
	if skill == nil || skill.ID == "" {
		return false, &StoreError{
			Type:    ErrTypeRegistry,
			Message: "skill record must have an id",
		}
	}

	newHash, err := fingerprint.Dir(srcDir)
	if err != nil {
		return false, &StoreError{
			Type:    ErrTypeFilesystem,
			Message: fmt.Sprintf("failed to fingerprint source for skill '%s'", skill.Name),
			Err:     err,
		}
	}

	if skill.CentralPath == "" {
		path, err := s.reserveCentralPath(skill)
		if err != nil {
			return false, err
		}
		skill.CentralPath = path
	}

	centralExists, err := fsops.Exists(skill.CentralPath)
	if err != nil {
		return false, &StoreError{
			Type:    ErrTypeFilesystem,
			Message: fmt.Sprintf("failed to stat central path for skill '%s'", skill.Name),
			Err:     err,
		}
	}

	if centralExists && skill.Fingerprint == newHash {
		return false, s.Upsert(skill)
	}

	staged := fsops.StagingDir(skill.CentralPath)
	defer os.RemoveAll(staged)
	if err := fsops.CopyDir(srcDir, staged); err != nil {
		return false, &StoreError{
			Type:    ErrTypeFilesystem,
			Message: fmt.Sprintf("failed to stage content for skill '%s'", skill.Name),
			Err:     err,
		}
	}
	if err := fsops.ReplaceDir(staged, skill.CentralPath); err != nil {
		return false, &StoreError{
			Type:    ErrTypeFilesystem,
			Message: fmt.Sprintf("failed to install content for skill '%s'", skill.Name),
			Err:     err,
		}
	}

	skill.Fingerprint = newHash
	skill.UpdatedAt = time.Now()
	if err := s.Upsert(skill); err != nil {
		return true, err
	}
	return true, nil
}

// reserveCentralPath picks the home for a new skill's content. The
// skill name is preferred; a name already claimed by another skill gets
// an id-suffixed directory so central paths stay unique per skill.
func (s *Store) reserveCentralPath(skill *types.ManagedSkill) (string, error) {
	skills, err := s.Load()
	if err != nil {
		return "", err
	}
	taken := func(path string) bool {
		for _, sk := range skills {
			if sk.ID != skill.ID && sk.CentralPath == path {
				return true
			}
		}
		return false
	}

	candidate := filepath.Join(s.basePath, skill.Name)
	if !taken(candidate) {
		return candidate, nil
	}
	suffix := skill.ID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	candidate = filepath.Join(s.basePath, skill.Name+"-"+suffix)
	if taken(candidate) {
		return "", &StoreError{
			Type:    ErrTypeFilesystem,
			Message: fmt.Sprintf("cannot reserve a central path for skill '%s'", skill.Name),
		}
	}
	return candidate, nil
}

// Delete removes a skill entirely: every target artifact first, then the
// canonical content, then the registry record, so no target is ever left
// pointing at deleted content.
func (s *Store) Delete(skillID string) error {
	skill, err := s.Get(skillID)
	if err != nil {
		return err
	}

	for _, target := range skill.Targets {
		if err := fsops.RemovePath(target.TargetPath); err != nil {
			return &StoreError{
				Type:    ErrTypeFilesystem,
				Message: fmt.Sprintf("failed to remove target for tool '%s'", target.Tool),
				Err:     err,
			}
		}
	}

	if skill.CentralPath != "" {
		if err := fsops.RemovePath(skill.CentralPath); err != nil {
			return &StoreError{
				Type:    ErrTypeFilesystem,
				Message: fmt.Sprintf("failed to remove central content for skill '%s'", skill.Name),
				Err:     err,
			}
		}
	}

	return s.Remove(skillID)
}

// Move relocates the whole central repository to newBase. The copy is
// fully staged before the registry is rewritten in a single save at the
// new base's parent, and the old layout is only removed after that save
// succeeds; on any failure the paths the move created are discarded and
// the original layout stays intact. A destination that already existed
// is never deleted wholesale, only the copies placed into it.
// Callers must ensure no sync is in flight.
func (s *Store) Move(newBase string) error {
	if newBase == s.basePath {
		return nil
	}

	skills, err := s.Load()
	if err != nil {
		return err
	}

	baseExisted, err := fsops.Exists(newBase)
	if err != nil {
		return &StoreError{
			Type:    ErrTypeRelocation,
			Message: "failed to stat new repository base",
			Err:     err,
		}
	}
	if err := os.MkdirAll(newBase, 0755); err != nil {
		return &StoreError{
			Type:    ErrTypeRelocation,
			Message: "failed to create new repository base",
			Err:     err,
		}
	}

	var created []string
	if !baseExisted {
		created = append(created, newBase)
	}
	rollback := func() {
		for i := len(created) - 1; i >= 0; i-- {
			os.RemoveAll(created[i])
		}
	}

	moved := make([]types.ManagedSkill, len(skills))
	copy(moved, skills)
	for i := range moved {
		if moved[i].CentralPath == "" {
			continue
		}
		rel, err := filepath.Rel(s.basePath, moved[i].CentralPath)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			// Content outside the old base is left where it is.
			continue
		}
		newPath := filepath.Join(newBase, rel)
		if err := fsops.CopyDir(moved[i].CentralPath, newPath); err != nil {
			rollback()
			return &StoreError{
				Type:    ErrTypeRelocation,
				Message: fmt.Sprintf("failed to copy skill '%s' to new base", moved[i].Name),
				Err:     err,
			}
		}
		if baseExisted {
			created = append(created, newPath)
		}
		moved[i].CentralPath = newPath
	}

	// The registry travels with the base: a later process constructs the
	// store from the configured base alone and must find the catalog at
	// the new parent.
	newRegistryPath := filepath.Join(filepath.Dir(newBase), registryFile)

	mu := s.mutex()
	mu.Lock()
	defer mu.Unlock()

	if err := saveRegistry(newRegistryPath, moved); err != nil {
		rollback()
		return &StoreError{
			Type:    ErrTypeRelocation,
			Message: "failed to write registry at new base",
			Err:     err,
		}
	}

	oldBase := s.basePath
	oldRegistryPath := s.registryPath
	s.basePath = newBase
	s.registryPath = newRegistryPath
	os.RemoveAll(oldBase)
	if oldRegistryPath != newRegistryPath {
		os.Remove(oldRegistryPath)
	}
	return nil
}
