package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AisyIE/ai-toolbox/internal/prefs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configMoveRepoCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "显示当前配置",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("config file:", viper.ConfigFileUsed())
		fmt.Println("central_repo_path:", prefs.CentralRepoPath())
		fmt.Println("git_cache_ttl_secs:", prefs.GitCacheTTLSecs())
		fmt.Println("git_cache_cleanup_days:", prefs.GitCacheCleanupDays())
		if preferred, ok := prefs.PreferredTools(); ok {
			fmt.Println("preferred_tools:", strings.Join(preferred, ", "))
		} else {
			fmt.Println("preferred_tools: (not set, all installed tools)")
		}
		token := prefs.GitHubToken()
		if token != "" {
			token = "(set)"
		}
		fmt.Println("github_token:", token)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "修改配置项",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return errors.New("用法: ai-toolbox config set <key> <value>")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeConfigSet(args[0], args[1])
	},
}

var configMoveRepoCmd = &cobra.Command{
	Use:   "move-repo <path>",
	Short: "把中心仓库迁移到新目录",
	Long: `把中心 skill 仓库迁移到新目录。

所有 skill 内容会先复制到新位置，注册表一次性改写；任何一步失败都会
回滚，原仓库保持不变。迁移成功后旧目录被删除。

示例:
  ai-toolbox config move-repo ~/skills-repo`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("用法: ai-toolbox config move-repo <path>")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeMoveRepo(args[0])
	},
}

func executeConfigSet(key, value string) error {
	switch key {
	case "github_token":
		return prefs.SetGitHubToken(value)
	case "git_cache_ttl_secs":
		secs, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("'%s' is not a number", value)
		}
		return prefs.SetGitCacheTTLSecs(secs)
	case "git_cache_cleanup_days":
		days, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("'%s' is not a number", value)
		}
		return prefs.SetGitCacheCleanupDays(days)
	case "preferred_tools":
		var keys []string
		for _, k := range strings.Split(value, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		return prefs.SetPreferredTools(keys)
	case "central_repo_path":
		return errors.New("use 'ai-toolbox config move-repo <path>' to relocate the central repository")
	default:
		return fmt.Errorf("unknown config key '%s'", key)
	}
}

func executeMoveRepo(newPath string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(newPath)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", newPath, err)
	}

	fmt.Printf("Moving central repository to %s...\n", abs)

	if err := a.store.Move(abs); err != nil {
		return err
	}
	if err := prefs.SetCentralRepoPath(abs); err != nil {
		return fmt.Errorf("repository moved but config update failed: %w", err)
	}

	fmt.Println("Central repository moved.")
	return nil
}
