package workspace

import (
	"os"
	"path/filepath"
	"strings"
)

// Config controls where isolated working copies are rooted.
type Config struct {
	// BasePath is the directory new workspaces are created under. Supports
	// leading ~ expansion.
	BasePath string `mapstructure:"base_path"`
	// BranchPrefix is the default branch-name prefix (:
		// "{prefix}/{id}/{slug(task)}").
	BranchPrefix string `mapstructure:"branch_prefix"`
	// MaxContextFiles is defaulted to 20 by Validate. The context-file
	// listing written into AGENTS.md does not read it; that listing names
	// (does not copy) the files and applies its own fixed cap of 20.
	MaxContextFiles int `mapstructure:"max_context_files"`
}

// Validate fills in defaults and rejects malformed values.
func (c *Config) Validate() error {
	if c.BasePath == "" {
		c.BasePath = "~/.agentforge/workspaces"
	}
	if c.BranchPrefix == "" {
		c.BranchPrefix = "agent"
	}
	if c.MaxContextFiles <= 0 {
		c.MaxContextFiles = 20
	}
	return nil
}

// ExpandedBasePath resolves a leading ~ against the user's home directory.
func (c *Config) ExpandedBasePath() (string, error) {
	path:= c.BasePath
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[2:])
	}
	return path, nil
}

// Path returns the full workspace directory for a given directory name.
func (c *Config) Path(dirName string) (string, error) {
	base, err := c.ExpandedBasePath()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, dirName), nil
}
