package syncer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/AisyIE/ai-toolbox/internal/types"
)

// fakeCache returns a fixed working copy for any ref.
type fakeCache struct {
	dir     string
	calls   int
	refSeen string
}

func (f *fakeCache) Fetch(ctx context.Context, ref string) (string, error) {
	f.calls++
	f.refSeen = ref
	return f.dir, nil
}

func TestUpdateRewritesChangedTargets(t *testing.T) {
	env := newTestEnv(t)
	skill := env.installSkill(t, "foo", "# v1\n")

	if _, err := env.syncer.Sync(context.Background(), skill, "claude_code", types.ModeCopy); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	// Edit the local source and update.
	if err := os.WriteFile(filepath.Join(skill.SourceRef, "SKILL.md"), []byte("# v2\n"), 0644); err != nil {
		t.Fatalf("failed to edit source: %v", err)
	}

	fresh, _ := env.store.Get(skill.ID)
	result, err := env.syncer.Update(context.Background(), fresh, nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if !result.Changed {
		t.Error("Update() did not detect the new fingerprint")
	}
	if len(result.UpdatedTargets) != 1 || result.UpdatedTargets[0] != "claude_code" {
		t.Errorf("UpdatedTargets = %v, want [claude_code]", result.UpdatedTargets)
	}
	if len(result.Failed) != 0 {
		t.Errorf("Failed = %v, want none", result.Failed)
	}

	targetPath, _ := env.registry.TargetPathFor("claude_code", "foo")
	data, err := os.ReadFile(filepath.Join(targetPath, "SKILL.md"))
	if err != nil {
		t.Fatalf("target content missing: %v", err)
	}
	if string(data) != "# v2\n" {
		t.Errorf("target content = %q, want updated body", data)
	}
}

func TestUpdateUnchangedContentIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	skill := env.installSkill(t, "foo", "# v1\n")

	if _, err := env.syncer.Sync(context.Background(), skill, "claude_code", types.ModeCopy); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	fresh, _ := env.store.Get(skill.ID)
	result, err := env.syncer.Update(context.Background(), fresh, nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if result.Changed {
		t.Error("Update() reported a change for identical content")
	}
}

func TestUpdateGitSourceUsesCache(t *testing.T) {
	env := newTestEnv(t)

	workCopy := filepath.Join(t.TempDir(), "checkout")
	if err := os.MkdirAll(workCopy, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(workCopy, "SKILL.md"), []byte("# remote v2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	skill := env.installSkill(t, "foo", "# remote v1\n")
	fresh, _ := env.store.Get(skill.ID)
	fresh.SourceType = types.SourceGit
	fresh.SourceRef = "owner/repo"
	if err := env.store.Upsert(fresh); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	cache := &fakeCache{dir: workCopy}
	result, err := env.syncer.Update(context.Background(), fresh, cache)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if cache.calls != 1 {
		t.Errorf("cache fetched %d times, want 1", cache.calls)
	}
	if cache.refSeen != "owner/repo" {
		t.Errorf("cache fetched ref %q, want owner/repo", cache.refSeen)
	}
	if !result.Changed {
		t.Error("Update() did not detect remote change")
	}
}

func TestUpdateCollectsPartialFailures(t *testing.T) {
	env := newTestEnv(t)
	skill := env.installSkill(t, "foo", "# v1\n")

	if _, err := env.syncer.Sync(context.Background(), skill, "claude_code", types.ModeCopy); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if _, err := env.syncer.Sync(context.Background(), skill, "codex", types.ModeCopy); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	// Another skill claims foo's codex target path, so that target's
	// re-sync must fail with a conflict while claude_code still updates.
	codexPath, _ := env.registry.TargetPathFor("codex", "foo")
	fresh, _ := env.store.Get(skill.ID)
	kept := fresh.Targets[:0]
	for _, target := range fresh.Targets {
		if target.Tool != "codex" {
			kept = append(kept, target)
		}
	}
	fresh.Targets = append(kept, types.SkillTarget{Tool: "codex", Mode: types.ModeCopy, TargetPath: codexPath})
	if err := env.store.Upsert(fresh); err != nil {
		t.Fatal(err)
	}
	intruder := &types.ManagedSkill{
		ID:      "id-intruder",
		Name:    "intruder",
		Targets: []types.SkillTarget{{Tool: "codex", Mode: types.ModeCopy, TargetPath: codexPath}},
	}
	if err := env.store.Upsert(intruder); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(skill.SourceRef, "SKILL.md"), []byte("# v2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fresh, _ = env.store.Get(skill.ID)
	result, err := env.syncer.Update(context.Background(), fresh, nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if len(result.UpdatedTargets) != 1 || result.UpdatedTargets[0] != "claude_code" {
		t.Errorf("UpdatedTargets = %v, want [claude_code]", result.UpdatedTargets)
	}
	if len(result.Failed) != 1 || result.Failed[0].Tool != "codex" {
		t.Fatalf("Failed = %v, want one codex failure", result.Failed)
	}
	if result.Failed[0].Err == nil {
		t.Error("per-target failure carries no error")
	}
}

func TestSyncAllNewSkipsExistingTargets(t *testing.T) {
	env := newTestEnv(t)
	skill := env.installSkill(t, "foo", "# foo\n")

	if _, err := env.syncer.Sync(context.Background(), skill, "claude_code", types.ModeCopy); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	results, failed := env.syncer.SyncAllNew(context.Background(), []string{"claude_code", "codex"})
	if len(failed) != 0 {
		t.Fatalf("SyncAllNew() failures = %v", failed)
	}
	if len(results) != 1 || results[0].Tool != "codex" {
		t.Errorf("SyncAllNew() results = %+v, want a single codex sync", results)
	}
}
