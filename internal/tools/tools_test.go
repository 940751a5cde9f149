package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AisyIE/ai-toolbox/internal/types"
)

func installTool(t *testing.T, home, detectDir string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(home, detectDir), 0755); err != nil {
		t.Fatalf("failed to install fake tool: %v", err)
	}
}

func TestInstalledDetection(t *testing.T) {
	home := t.TempDir()
	installTool(t, home, ".claude")
	installTool(t, home, ".cursor")

	r := NewRegistryAt(home)
	installed := r.Installed()
	want := []string{"claude_code", "cursor"}
	if len(installed) != len(want) {
		t.Fatalf("Installed() = %v, want %v", installed, want)
	}
	for i, key := range want {
		if installed[i] != key {
			t.Errorf("Installed()[%d] = %s, want %s", i, installed[i], key)
		}
	}
}

func TestTargetPathForDeterministic(t *testing.T) {
	home := t.TempDir()
	r := NewRegistryAt(home)

	first, err := r.TargetPathFor("claude_code", "foo")
	if err != nil {
		t.Fatalf("TargetPathFor() error = %v", err)
	}
	second, err := r.TargetPathFor("claude_code", "foo")
	if err != nil {
		t.Fatalf("TargetPathFor() error = %v", err)
	}
	if first != second {
		t.Errorf("TargetPathFor() not deterministic: %s vs %s", first, second)
	}
	want := filepath.Join(home, ".claude", "skills", "foo")
	if first != want {
		t.Errorf("TargetPathFor() = %s, want %s", first, want)
	}
}

func TestTargetPathForUnknownTool(t *testing.T) {
	r := NewRegistryAt(t.TempDir())
	if _, err := r.TargetPathFor("emacs", "foo"); err == nil {
		t.Error("TargetPathFor() accepted unknown tool")
	}
}

func TestPreferredMode(t *testing.T) {
	r := NewRegistryAt(t.TempDir())

	tests := []struct {
		tool string
		want types.SyncMode
	}{
		{"claude_code", types.ModeLink},
		{"cursor", types.ModeCopy},
		{"codex", types.ModeLink},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			got, err := r.PreferredMode(tt.tool)
			if err != nil {
				t.Fatalf("PreferredMode(%s) error = %v", tt.tool, err)
			}
			if got != tt.want {
				t.Errorf("PreferredMode(%s) = %s, want %s", tt.tool, got, tt.want)
			}
		})
	}
}

func TestStatusNewlyInstalled(t *testing.T) {
	home := t.TempDir()
	installTool(t, home, ".claude")
	installTool(t, home, ".codex")

	r := NewRegistryAt(home)
	status := r.Status([]string{"claude_code"})

	if len(status.NewlyInstalled) != 1 || status.NewlyInstalled[0] != "codex" {
		t.Errorf("NewlyInstalled = %v, want [codex]", status.NewlyInstalled)
	}

	// newly_installed ⊆ installed ⊆ known tool keys
	installed := make(map[string]struct{})
	for _, key := range status.Installed {
		installed[key] = struct{}{}
	}
	for _, key := range status.NewlyInstalled {
		if _, ok := installed[key]; !ok {
			t.Errorf("newly installed %s not in installed set", key)
		}
	}
	knownKeys := make(map[string]struct{})
	for _, info := range status.Tools {
		knownKeys[info.Key] = struct{}{}
	}
	for _, key := range status.Installed {
		if _, ok := knownKeys[key]; !ok {
			t.Errorf("installed %s not a known tool key", key)
		}
	}
}

func TestStatusNothingNewOnRepeat(t *testing.T) {
	home := t.TempDir()
	installTool(t, home, ".claude")

	r := NewRegistryAt(home)
	first := r.Status(nil)
	second := r.Status(first.Installed)
	if len(second.NewlyInstalled) != 0 {
		t.Errorf("NewlyInstalled = %v after observation, want empty", second.NewlyInstalled)
	}
}
