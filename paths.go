package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const appDirName = "ide-mcp-proxy"

func configHome() string {
	if v := strings.TrimSpace(os.Getenv("IDE_MCP_PROXY_CONFIG_HOME")); v != "" {
		return filepath.Clean(v)
	}
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, appDirName)
	}
	return filepath.Join(os.Getenv("HOME"), ".config", appDirName)
}

func stateHome() string {
	if v := strings.TrimSpace(os.Getenv("IDE_MCP_PROXY_STATE_HOME")); v != "" {
		return filepath.Clean(v)
	}
	return filepath.Join(configHome(), ".state")
}

func defaultConfigPath() string {
	return filepath.Join(configHome(), "config.json")
}

func requireHomePath(home, target string) (string, error) {
	if strings.TrimSpace(home) == "" {
		return "", errors.New("empty home path")
	}
	absHome, err := filepath.Abs(home)
	if err != nil {
		return "", err
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absHome, absTarget)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("path escapes configured home")
	}
	return absTarget, nil
}

func mkdirAllUnder(home, target string) (string, error) {
	path, err := requireHomePath(home, target)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// resolveStatePath anchors a relative path in the state home and returns
// the home it must stay under.
func resolveStatePath(target string) (home, path string) {
	home = stateHome()
	if strings.TrimSpace(target) == "" {
		return home, ""
	}
	if filepath.IsAbs(target) {
		return filepath.Dir(filepath.Clean(target)), filepath.Clean(target)
	}
	return home, filepath.Join(home, target)
}
