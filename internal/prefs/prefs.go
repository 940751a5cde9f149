// Package prefs wraps the viper-backed configuration file with the
// small set of persisted engine settings: the central repository path,
// git cache TTL and cleanup interval, the preferred tool set and the
// previously observed tool installations.
package prefs

import (
	"fmt"

	"github.com/spf13/viper"
)

const (
	KeyCentralRepoPath     = "central_repo_path"
	KeyGitCacheCleanupDays = "git_cache_cleanup_days"
	KeyGitCacheTTLSecs     = "git_cache_ttl_secs"
	KeyPreferredTools      = "preferred_tools"
	KeyKnownTools          = "known_tools"
	KeyGitHubToken         = "github_token"
)

const (
	DefaultCleanupDays = 30
	DefaultTTLSecs     = 60
)

// CentralRepoPath returns the configured central repository base.
func CentralRepoPath() string {
	return viper.GetString(KeyCentralRepoPath)
}

// SetCentralRepoPath persists a new central repository base.
func SetCentralRepoPath(path string) error {
	return persist(KeyCentralRepoPath, path)
}

// GitCacheCleanupDays returns the age in days past which cache entries
// are removed by the cleanup sweep.
func GitCacheCleanupDays() int {
	return viper.GetInt(KeyGitCacheCleanupDays)
}

// SetGitCacheCleanupDays persists the cleanup age.
func SetGitCacheCleanupDays(days int) error {
	if days < 1 {
		return fmt.Errorf("cleanup days must be at least 1, got %d", days)
	}
	return persist(KeyGitCacheCleanupDays, days)
}

// GitCacheTTLSecs returns the freshness window for cached git fetches.
func GitCacheTTLSecs() int {
	return viper.GetInt(KeyGitCacheTTLSecs)
}

// SetGitCacheTTLSecs persists the cache TTL.
func SetGitCacheTTLSecs(secs int) error {
	if secs < 0 {
		return fmt.Errorf("cache TTL cannot be negative, got %d", secs)
	}
	return persist(KeyGitCacheTTLSecs, secs)
}

// PreferredTools returns the configured tool set and whether it has ever
// been configured. A nil, false result means "never configured", which
// is distinct from an explicitly empty list.
func PreferredTools() ([]string, bool) {
	if !viper.IsSet(KeyPreferredTools) {
		return nil, false
	}
	return viper.GetStringSlice(KeyPreferredTools), true
}

// SetPreferredTools persists the preferred tool set. An empty slice is a
// valid "explicitly none" choice.
func SetPreferredTools(keys []string) error {
	if keys == nil {
		keys = []string{}
	}
	return persist(KeyPreferredTools, keys)
}

// KnownTools returns the tool keys observed installed at the last
// status commit.
func KnownTools() []string {
	return viper.GetStringSlice(KeyKnownTools)
}

// CommitKnownTools records the currently installed tool keys so a later
// status query can report newly installed tools.
func CommitKnownTools(keys []string) error {
	return persist(KeyKnownTools, keys)
}

// GitHubToken returns the optional token used for git source fetches.
func GitHubToken() string {
	return viper.GetString(KeyGitHubToken)
}

// SetGitHubToken persists the fetch token. Empty clears it.
func SetGitHubToken(token string) error {
	return persist(KeyGitHubToken, token)
}

func persist(key string, value any) error {
	viper.Set(key, value)
	if err := viper.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
