package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AisyIE/ai-toolbox/internal/prefs"
	"github.com/AisyIE/ai-toolbox/pkg/cmd"
	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

func main() {
	initViper()
	cmd.Execute()
}

func initViper() {
	defaultRepo := filepath.Join(xdg.DataHome, "ai-toolbox", "skills")

	viper.SetDefault(prefs.KeyCentralRepoPath, defaultRepo)
	viper.SetDefault(prefs.KeyGitCacheCleanupDays, prefs.DefaultCleanupDays)
	viper.SetDefault(prefs.KeyGitCacheTTLSecs, prefs.DefaultTTLSecs)
	viper.SetDefault(prefs.KeyGitHubToken, "")

	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Printf("Error getting home directory: %v\n", err)
		os.Exit(1)
	}

	configDir := filepath.Join(home, ".ai-toolbox")
	configPath := filepath.Join(configDir, "config.json")

	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.AddConfigPath(configDir)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		os.MkdirAll(configDir, 0755)

		defaultConfig := map[string]interface{}{
			prefs.KeyCentralRepoPath:     defaultRepo,
			prefs.KeyGitCacheCleanupDays: prefs.DefaultCleanupDays,
			prefs.KeyGitCacheTTLSecs:     prefs.DefaultTTLSecs,
			prefs.KeyGitHubToken:         "",
		}

		data, err := json.MarshalIndent(defaultConfig, "", "  ")
		if err != nil {
			fmt.Printf("Error creating default config: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(configPath, data, 0644); err != nil {
			fmt.Printf("Error writing config file: %v\n", err)
			os.Exit(1)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}
}
