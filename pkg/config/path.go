package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// ExternalConfigEnv overrides the external config file location.
const ExternalConfigEnv = "WHISPER_PIPELINE_CONFIG"

// ExternalConfigPath returns $WHISPER_PIPELINE_CONFIG or ~/.whisper-pipeline.conf.
func ExternalConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(ExternalConfigEnv)); p != "" {
		return homedir.Expand(p)
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".whisper-pipeline.conf"), nil
}

// SettingsPath resolves the settings record location: explicit path first,
// then %APPDATA% on Windows, XDG_CONFIG_HOME, and ~/.config.
func SettingsPath(explicit string) (string, error) {
	if p := strings.TrimSpace(explicit); p != "" {
		return homedir.Expand(p)
	}

	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}

	if runtime.GOOS == "windows" {
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, "Whispscribe", "settings.json"), nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "whispscribe", "settings.json"), nil
	}
	return filepath.Join(home, ".config", "whispscribe", "settings.json"), nil
}

// LegacySettingsPath returns where the earlier desktop front-end kept its
// settings: %APPDATA%\WhispGUI\settings.json on Windows, otherwise
// ~/.config/whisp_gui.json.
func LegacySettingsPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	if runtime.GOOS == "windows" {
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, "WhispGUI", "settings.json"), nil
	}
	return filepath.Join(home, ".config", "whisp_gui.json"), nil
}
