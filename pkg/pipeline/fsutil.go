package pipeline

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// UniqueDir returns base/name if nothing exists there, otherwise the first
// free "name (2)", "name (3)", ... sibling. The directory is not created.
func UniqueDir(base, name string) string {
	candidate := filepath.Join(base, name)
	if !exists(candidate) {
		return candidate
	}
	for i := 2; ; i++ {
		candidate = filepath.Join(base, fmt.Sprintf("%s (%d)", name, i))
		if !exists(candidate) {
			return candidate
		}
	}
}

// NewestExisting returns the existing path with the latest modification
// time, or "" when none exist.
func NewestExisting(paths []string) string {
	var (
		newest string
		best   int64
	)
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		if mt := info.ModTime().UnixNano(); newest == "" || mt > best {
			newest, best = p, mt
		}
	}
	return newest
}

// Which resolves an executable name or path through PATH after expanding a
// leading "~". On Windows the .exe, .cmd and .bat extensions are tried too.
func Which(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", exec.ErrNotFound
	}
	expanded, err := homedir.Expand(name)
	if err != nil {
		return "", err
	}
	p, err := exec.LookPath(expanded)
	if err == nil {
		return p, nil
	}
	if runtime.GOOS != "windows" || filepath.Ext(expanded) != "" {
		return "", err
	}
	for _, ext := range []string{".exe", ".cmd", ".bat"} {
		if p, err := exec.LookPath(expanded + ext); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// transcriptCandidates lists files in dir named stem*.txt.
func transcriptCandidates(dir, stem string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) < len(stem)+len(".txt") {
			continue
		}
		if strings.HasPrefix(name, stem) && strings.HasSuffix(name, ".txt") {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out
}
