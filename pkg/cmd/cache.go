package cmd

import (
	"fmt"

	"github.com/AisyIE/ai-toolbox/internal/prefs"
	"github.com/spf13/cobra"
)

func init() {
	cacheCmd.AddCommand(cacheCleanupCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "查看和清理 git 源缓存",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeCacheInfo()
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "删除超过保留期的缓存条目",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeCacheCleanup()
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "清空整个 git 源缓存",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeCacheClear()
	},
}

func executeCacheInfo() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	fmt.Println("cache dir:", a.cache.Dir())
	fmt.Println("ttl:", prefs.GitCacheTTLSecs(), "seconds")
	fmt.Println("cleanup after:", prefs.GitCacheCleanupDays(), "days")
	return nil
}

func executeCacheCleanup() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	removed, err := a.cache.Cleanup(prefs.GitCacheCleanupDays())
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d stale cache entries\n", removed)
	return nil
}

func executeCacheClear() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	removed, err := a.cache.Clear()
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d cache entries\n", removed)
	return nil
}
