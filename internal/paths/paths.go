package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// MinecraftDir returns the platform's Minecraft data directory. This is
// where launchers keep game data, so the proxy artifact lives next to it
// and survives across runs regardless of which bot binary pulled it in.
//
// AZALEA_VIAVERSION_DIR overrides the whole resolution, which is what the
// tests and sandboxed environments use.
func MinecraftDir() (string, error) {
	if override := os.Getenv("AZALEA_VIAVERSION_DIR"); override != "" {
		return override, nil
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("no APPDATA environment variable found")
		}
		return filepath.Join(appData, ".minecraft"), nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("no HOME environment variable found: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", "minecraft"), nil
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("no HOME environment variable found: %w", err)
		}
		return filepath.Join(home, ".minecraft"), nil
	}
}

// DataDir returns <minecraft dir>/azalea-viaversion, creating it if needed.
// It holds the downloaded proxy artifacts and their verification metadata.
func DataDir() (string, error) {
	mcDir, err := MinecraftDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(mcDir, "azalea-viaversion")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// CacheDir returns <data dir>/cache, creating it if needed. It holds the
// proxy log file and other state that is safe to delete between runs.
func CacheDir() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(dataDir, "cache")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
