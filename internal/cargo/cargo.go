// Package cargo locates Cargo workspaces.
package cargo

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const manifest = "Cargo.toml"

type project struct {
	Root string `json:"root"`
}

// locateProject asks cargo for the workspace manifest of the package
// containing dir.
func locateProject(dir string) (string, error) {
	cmd := exec.Command("cargo", "locate-project", "--workspace")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	var p project
	err = json.Unmarshal(out, &p)
	if err != nil {
		return "", err
	}
	return filepath.Dir(p.Root), nil
}

// findManifest returns the outermost directory at or above dir
// containing a Cargo.toml.
func findManifest(dir string) (string, bool) {
	root, found := "", false
	for {
		if _, err := os.Stat(filepath.Join(dir, manifest)); err == nil {
			root, found = dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return root, found
		}
		dir = parent
	}
}

func home() string {
	if h := os.Getenv("CARGO_HOME"); h != "" {
		return h
	}
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".cargo")
	}
	return ""
}

func isSubdirectory(parent, child string) bool {
	if parent == "" {
		return false
	}
	p := filepath.Clean(parent)
	c := filepath.Clean(child)
	return (p == c) || (len(c) > len(p) && strings.HasPrefix(c, p) && c[len(p)] == filepath.Separator)
}

// RootDir returns the workspace root directory for dir. Crates
// downloaded into the cargo home are their own root.
func RootDir(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	if isSubdirectory(home(), dir) {
		if r, ok := findNearest(dir); ok {
			return r
		}
		return dir
	}
	if r, err := locateProject(dir); err == nil {
		return r
	}
	if r, ok := findManifest(dir); ok {
		return r
	}
	return dir
}

// findNearest returns the innermost directory at or above dir
// containing a Cargo.toml.
func findNearest(dir string) (string, bool) {
	for {
		if _, err := os.Stat(filepath.Join(dir, manifest)); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
