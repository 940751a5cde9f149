// Package store is the canonical home for skill content and metadata.
// Skill bundles live under a single central base directory; the registry
// file records every managed skill and its per-tool targets and is the
// source of truth for target-path ownership.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/AisyIE/ai-toolbox/internal/fingerprint"
	"github.com/AisyIE/ai-toolbox/internal/types"
)

const registryFile = "skills.json"

var registryMutexes sync.Map

// Store manages the central repository base directory and the skills
// registry next to it.
type Store struct {
	basePath     string
	registryPath string
}

// New creates a store with skill bundles under basePath and the
// registry file in basePath's parent directory.
func New(basePath string) *Store {
	return &Store{
		basePath:     basePath,
		registryPath: filepath.Join(filepath.Dir(basePath), registryFile),
	}
}

// BasePath returns the central repository root.
func (s *Store) BasePath() string {
	return s.basePath
}

// RegistryPath returns the location of the registry file.
func (s *Store) RegistryPath() string {
	return s.registryPath
}

func (s *Store) mutex() *sync.Mutex {
	muIface, _ := registryMutexes.LoadOrStore(s.registryPath, &sync.Mutex{})
	return muIface.(*sync.Mutex)
}

// Load reads the full registry. A missing registry file is an empty
// catalog, not an error.
func (s *Store) Load() ([]types.ManagedSkill, error) {
	data, err := os.ReadFile(s.registryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []types.ManagedSkill{}, nil
		}
		return nil, &StoreError{
			Type:    ErrTypeRegistry,
			Message: "failed to read registry file",
			Err:     err,
		}
	}

	var skills []types.ManagedSkill
	if err := json.Unmarshal(data, &skills); err != nil {
		return nil, &StoreError{
			Type:    ErrTypeRegistry,
			Message: "failed to unmarshal registry",
			Err:     err,
		}
	}
	return skills, nil
}

// Save writes the full registry atomically (temp file + rename).
func (s *Store) Save(skills []types.ManagedSkill) error {
	return saveRegistry(s.registryPath, skills)
}

func saveRegistry(registryPath string, skills []types.ManagedSkill) error {
	if err := os.MkdirAll(filepath.Dir(registryPath), 0755); err != nil {
		return &StoreError{
			Type:    ErrTypeFilesystem,
			Message: "failed to create registry directory",
			Err:     err,
		}
	}

	data, err := json.MarshalIndent(skills, "", "  ")
	if err != nil {
		return &StoreError{
			Type:    ErrTypeRegistry,
			Message: "failed to marshal registry",
			Err:     err,
		}
	}

	tmpPath := registryPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return &StoreError{
			Type:    ErrTypeFilesystem,
			Message: "failed to write temporary registry file",
			Err:     err,
		}
	}
	if err := os.Rename(tmpPath, registryPath); err != nil {
		os.Remove(tmpPath)
		return &StoreError{
			Type:    ErrTypeFilesystem,
			Message: "failed to rename registry file",
			Err:     err,
		}
	}
	return nil
}

// Get returns the skill with the given id.
func (s *Store) Get(skillID string) (*types.ManagedSkill, error) {
	skills, err := s.Load()
	if err != nil {
		return nil, err
	}
	for i := range skills {
		if skills[i].ID == skillID {
			return &skills[i], nil
		}
	}
	return nil, &StoreError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("skill '%s' not found in registry", skillID),
	}
}

// Find resolves a skill by id or, failing that, by name.
func (s *Store) Find(idOrName string) (*types.ManagedSkill, error) {
	if idOrName == "" {
		return nil, &StoreError{
			Type:    ErrTypeNotFound,
			Message: "skill identifier cannot be empty",
		}
	}
	skills, err := s.Load()
	if err != nil {
		return nil, err
	}
	for i := range skills {
		if skills[i].ID == idOrName {
			return &skills[i], nil
		}
	}
	for i := range skills {
		if skills[i].Name == idOrName {
			return &skills[i], nil
		}
	}
	return nil, &StoreError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("skill '%s' not found in registry", idOrName),
	}
}

// Upsert inserts or replaces one skill record.
func (s *Store) Upsert(skill *types.ManagedSkill) error {
	if skill == nil || skill.ID == "" {
		return &StoreError{
			Type:    ErrTypeRegistry,
			Message: "skill record must have an id",
		}
	}

	mu := s.mutex()
	mu.Lock()
	defer mu.Unlock()

	skills, err := s.Load()
	if err != nil {
		return err
	}
	for i := range skills {
		if skills[i].ID == skill.ID {
			skills[i] = *skill
			return s.Save(skills)
		}
	}
	skills = append(skills, *skill)
	return s.Save(skills)
}

// Remove deletes one skill record from the registry.
func (s *Store) Remove(skillID string) error {
	mu := s.mutex()
	mu.Lock()
	defer mu.Unlock()

	skills, err := s.Load()
	if err != nil {
		return err
	}
	kept := make([]types.ManagedSkill, 0, len(skills))
	found := false
	for _, sk := range skills {
		if sk.ID == skillID {
			found = true
			continue
		}
		kept = append(kept, sk)
	}
	if !found {
		return &StoreError{
			Type:    ErrTypeNotFound,
			Message: fmt.Sprintf("skill '%s' not found in registry", skillID),
		}
	}
	return s.Save(kept)
}

// OwnerOf looks up which skill owns a (tool, target path) pairing via
// the registry's reverse index. Returns the owning skill id and true
// when a target matches.
func (s *Store) OwnerOf(tool, targetPath string) (string, bool) {
	skills, err := s.Load()
	if err != nil {
		return "", false
	}
	key := fingerprint.TargetKey(tool, targetPath)
	for _, sk := range skills {
		for _, target := range sk.Targets {
			if fingerprint.TargetKey(target.Tool, target.TargetPath) == key {
				return sk.ID, true
			}
		}
	}
	return "", false
}

// ManagedTargetKeys returns the set of all registered (tool, path) keys.
func (s *Store) ManagedTargetKeys() (map[string]struct{}, error) {
	skills, err := s.Load()
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{})
	for _, sk := range skills {
		for _, target := range sk.Targets {
			keys[fingerprint.TargetKey(target.Tool, target.TargetPath)] = struct{}{}
		}
	}
	return keys, nil
}

// ManagedNames returns the set of managed skill names, lowercased.
func (s *Store) ManagedNames() (map[string]struct{}, error) {
	skills, err := s.Load()
	if err != nil {
		return nil, err
	}
	names := make(map[string]struct{}, len(skills))
	for _, sk := range skills {
		names[strings.ToLower(sk.Name)] = struct{}{}
	}
	return names, nil
}
