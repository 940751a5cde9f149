package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/AisyIE/ai-toolbox/internal/gitcache"
	"github.com/AisyIE/ai-toolbox/internal/onboarding"
	"github.com/AisyIE/ai-toolbox/internal/prefs"
	"github.com/AisyIE/ai-toolbox/internal/store"
	"github.com/AisyIE/ai-toolbox/internal/syncer"
	"github.com/AisyIE/ai-toolbox/internal/tools"
	"github.com/adrg/xdg"
	"github.com/fatih/color"
)

// app bundles the engine pieces a command needs. Built per invocation,
// never stored globally.
type app struct {
	store      *store.Store
	registry   *tools.Registry
	syncer     *syncer.Syncer
	cache      *gitcache.Cache
	reconciler *onboarding.Reconciler
}

func newApp() (*app, error) {
	st := store.New(prefs.CentralRepoPath())

	registry, err := tools.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to detect home directory: %w", err)
	}

	sy := syncer.New(st, registry)
	sy.SetLogger(cliLogger{})

	cacheDir := filepath.Join(xdg.DataHome, "ai-toolbox", "git-cache")
	ttl := time.Duration(prefs.GitCacheTTLSecs()) * time.Second
	cache := gitcache.New(cacheDir, ttl, gitcache.NewGitHubFetcher(prefs.GitHubToken()))

	return &app{
		store:      st,
		registry:   registry,
		syncer:     sy,
		cache:      cache,
		reconciler: onboarding.New(st, registry),
	}, nil
}

// syncTools resolves which tools a new skill should be synced to:
// the preferred set when configured, otherwise every installed tool.
func (a *app) syncTools() []string {
	installed := a.registry.Installed()
	preferred, ok := prefs.PreferredTools()
	if !ok {
		return installed
	}
	installedSet := make(map[string]struct{}, len(installed))
	for _, key := range installed {
		installedSet[key] = struct{}{}
	}
	var keys []string
	for _, key := range preferred {
		if _, ok := installedSet[key]; ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// cliLogger surfaces engine warnings on the terminal; debug chatter is
// dropped.
type cliLogger struct{}

func (cliLogger) Debug(msg string, fields ...interface{}) {}

func (cliLogger) Info(msg string, fields ...interface{}) {}

func (cliLogger) Warn(msg string, fields ...interface{}) {
	color.Yellow("warning: %s%s", msg, formatFields(fields))
}

func (cliLogger) Error(msg string, err error, fields ...interface{}) {
	color.Red("error: %s: %v%s", msg, err, formatFields(fields))
}

func formatFields(fields []interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	out := ""
	for i := 0; i+1 < len(fields); i += 2 {
		out += fmt.Sprintf(" %v=%v", fields[i], fields[i+1])
	}
	return out
}
