package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AisyIE/ai-toolbox/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	base := filepath.Join(t.TempDir(), "skills")
	if err := os.MkdirAll(base, 0755); err != nil {
		t.Fatalf("failed to create base: %v", err)
	}
	return New(base)
}

func sourceBundle(t *testing.T, content string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "bundle")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create bundle dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write bundle file: %v", err)
	}
	return dir
}

func TestLoadEmptyRegistry(t *testing.T) {
	s := newTestStore(t)
	skills, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(skills) != 0 {
		t.Errorf("Load() got %d skills, want 0", len(skills))
	}
}

func TestPutRoundTrip(t *testing.T) {
	s := newTestStore(t)
	src := sourceBundle(t, "# foo\n")

	skill := &types.ManagedSkill{
		ID:         "skill-1",
		Name:       "foo",
		SourceType: types.SourceLocal,
		CreatedAt:  time.Now(),
	}
	changed, err := s.Put(skill, src)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if !changed {
		t.Error("Put() changed = false on first write")
	}

	data, err := os.ReadFile(filepath.Join(skill.CentralPath, "SKILL.md"))
	if err != nil {
		t.Fatalf("failed to read central content: %v", err)
	}
	if string(data) != "# foo\n" {
		t.Errorf("central content = %q, want %q", data, "# foo\n")
	}

	got, err := s.Get("skill-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Fingerprint == "" {
		t.Error("Get() fingerprint empty after Put()")
	}
}

func TestPutIdempotent(t *testing.T) {
	s := newTestStore(t)
	src := sourceBundle(t, "# foo\n")

	skill := &types.ManagedSkill{ID: "skill-1", Name: "foo", SourceType: types.SourceLocal}
	if _, err := s.Put(skill, src); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	firstUpdated := skill.UpdatedAt
	firstHash := skill.Fingerprint

	time.Sleep(10 * time.Millisecond)
	changed, err := s.Put(skill, src)
	if err != nil {
		t.Fatalf("second Put() error = %v", err)
	}
	if changed {
		t.Error("Put() changed = true for identical content")
	}
	if !skill.UpdatedAt.Equal(firstUpdated) {
		t.Error("Put() bumped UpdatedAt without a content change")
	}
	if skill.Fingerprint != firstHash {
		t.Error("Put() changed fingerprint for identical content")
	}
}

func TestPutDetectsChange(t *testing.T) {
	s := newTestStore(t)
	skill := &types.ManagedSkill{ID: "skill-1", Name: "foo", SourceType: types.SourceLocal}

	if _, err := s.Put(skill, sourceBundle(t, "# v1\n")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	before := skill.Fingerprint

	changed, err := s.Put(skill, sourceBundle(t, "# v2\n"))
	if err != nil {
		t.Fatalf("second Put() error = %v", err)
	}
	if !changed {
		t.Error("Put() changed = false for edited content")
	}
	if skill.Fingerprint == before {
		t.Error("Put() fingerprint unchanged for edited content")
	}
}

func TestDeleteCascadesTargetsFirst(t *testing.T) {
	s := newTestStore(t)
	src := sourceBundle(t, "# foo\n")

	skill := &types.ManagedSkill{ID: "skill-1", Name: "foo", SourceType: types.SourceLocal}
	if _, err := s.Put(skill, src); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	targetPath := filepath.Join(t.TempDir(), "alpha", "foo")
	if err := os.MkdirAll(targetPath, 0755); err != nil {
		t.Fatalf("failed to create target: %v", err)
	}
	skill.Targets = []types.SkillTarget{{Tool: "alpha", Mode: types.ModeCopy, TargetPath: targetPath}}
	if err := s.Upsert(skill); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := s.Delete("skill-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := os.Lstat(targetPath); !os.IsNotExist(err) {
		t.Error("Delete() left target artifact behind")
	}
	if _, err := os.Lstat(skill.CentralPath); !os.IsNotExist(err) {
		t.Error("Delete() left central content behind")
	}
	if _, err := s.Get("skill-1"); err == nil {
		t.Error("Delete() left registry record behind")
	} else if !errors.Is(err, &StoreError{Type: ErrTypeNotFound}) {
		t.Errorf("Get() after delete error = %v, want NotFound", err)
	}
}

func TestDeleteMissingSkill(t *testing.T) {
	s := newTestStore(t)
	err := s.Delete("ghost")
	if !errors.Is(err, &StoreError{Type: ErrTypeNotFound}) {
		t.Errorf("Delete() error = %v, want NotFound", err)
	}
}

func TestOwnerOf(t *testing.T) {
	s := newTestStore(t)
	targetPath := filepath.Join(t.TempDir(), "alpha", "foo")

	skill := &types.ManagedSkill{
		ID:   "skill-1",
		Name: "foo",
		Targets: []types.SkillTarget{
			{Tool: "alpha", Mode: types.ModeCopy, TargetPath: targetPath},
		},
	}
	if err := s.Upsert(skill); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	owner, ok := s.OwnerOf("alpha", targetPath)
	if !ok || owner != "skill-1" {
		t.Errorf("OwnerOf() = (%q, %v), want (skill-1, true)", owner, ok)
	}
	if _, ok := s.OwnerOf("beta", targetPath); ok {
		t.Error("OwnerOf() claimed ownership for the wrong tool")
	}
}

func TestMoveRelocatesAllSkills(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"foo", "bar"} {
		skill := &types.ManagedSkill{ID: name, Name: name, SourceType: types.SourceLocal}
		if _, err := s.Put(skill, sourceBundle(t, "# "+name+"\n")); err != nil {
			t.Fatalf("Put(%s) error = %v", name, err)
		}
	}

	oldBase := s.BasePath()
	newBase := filepath.Join(t.TempDir(), "relocated")
	if err := s.Move(newBase); err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	skills, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for _, sk := range skills {
		if filepath.Dir(sk.CentralPath) != newBase {
			t.Errorf("skill %s central path %s not under new base", sk.Name, sk.CentralPath)
		}
		if _, err := os.Stat(filepath.Join(sk.CentralPath, "SKILL.md")); err != nil {
			t.Errorf("skill %s content missing at new base: %v", sk.Name, err)
		}
	}
	if _, err := os.Stat(oldBase); !os.IsNotExist(err) {
		t.Error("Move() left old base behind")
	}
}

func TestMoveSurvivesReopen(t *testing.T) {
	s := newTestStore(t)
	skill := &types.ManagedSkill{ID: "foo", Name: "foo", SourceType: types.SourceLocal}
	if _, err := s.Put(skill, sourceBundle(t, "# foo\n")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	oldRegistry := s.RegistryPath()

	newBase := filepath.Join(t.TempDir(), "data", "skills")
	if err := s.Move(newBase); err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	// A later process builds the store from the configured base alone
	// and must find the full catalog there.
	reopened := New(newBase)
	skills, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load() after reopen error = %v", err)
	}
	if len(skills) != 1 {
		t.Fatalf("reopened store has %d skills, want 1", len(skills))
	}
	if _, err := os.Stat(filepath.Join(skills[0].CentralPath, "SKILL.md")); err != nil {
		t.Errorf("reopened store content missing: %v", err)
	}
	if owner, ok := reopened.OwnerOf("alpha", "nowhere"); ok {
		t.Errorf("reopened store invented an owner %q", owner)
	}
	if _, err := os.Stat(oldRegistry); !os.IsNotExist(err) {
		t.Error("Move() left the registry file at the old parent")
	}
}

func TestMoveFailureKeepsPreexistingDestination(t *testing.T) {
	s := newTestStore(t)
	skill := &types.ManagedSkill{ID: "foo", Name: "foo", SourceType: types.SourceLocal}
	if _, err := s.Put(skill, sourceBundle(t, "# foo\n")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// The destination already exists and holds unrelated user content.
	newBase := filepath.Join(t.TempDir(), "existing")
	if err := os.MkdirAll(newBase, 0755); err != nil {
		t.Fatalf("failed to create destination: %v", err)
	}
	keeper := filepath.Join(newBase, "notes.txt")
	if err := os.WriteFile(keeper, []byte("keep me"), 0644); err != nil {
		t.Fatalf("failed to plant user content: %v", err)
	}
	// A regular file where the skill copy should land makes the copy fail.
	if err := os.WriteFile(filepath.Join(newBase, "foo"), []byte("in the way"), 0644); err != nil {
		t.Fatalf("failed to plant blocker: %v", err)
	}

	err := s.Move(newBase)
	if !errors.Is(err, &StoreError{Type: ErrTypeRelocation}) {
		t.Fatalf("Move() error = %v, want relocation failure", err)
	}

	if _, err := os.Stat(keeper); err != nil {
		t.Errorf("failed move deleted unrelated destination content: %v", err)
	}
	got, err := s.Get("foo")
	if err != nil {
		t.Fatalf("Get() after failed move error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(got.CentralPath, "SKILL.md")); err != nil {
		t.Errorf("original content missing after failed move: %v", err)
	}
}

func TestMoveFailurePreservesOriginal(t *testing.T) {
	s := newTestStore(t)
	skill := &types.ManagedSkill{ID: "foo", Name: "foo", SourceType: types.SourceLocal}
	if _, err := s.Put(skill, sourceBundle(t, "# foo\n")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// A regular file where the new base should go makes the copy fail.
	blocked := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(blocked, []byte("in the way"), 0644); err != nil {
		t.Fatalf("failed to plant blocker: %v", err)
	}

	err := s.Move(blocked)
	if !errors.Is(err, &StoreError{Type: ErrTypeRelocation}) {
		t.Fatalf("Move() error = %v, want relocation failure", err)
	}

	got, err := s.Get("foo")
	if err != nil {
		t.Fatalf("Get() after failed move error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(got.CentralPath, "SKILL.md")); err != nil {
		t.Errorf("original content missing after failed move: %v", err)
	}
}
