package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// externalLine matches KEY="value", KEY='value' or KEY=value. Lines that do
// not match (shell statements such as "set -e") are ignored.
var externalLine = regexp.MustCompile(`^([A-Z_]+)\s*=\s*(?:"([^"]*)"|'([^']*)'|(.*))\s*$`)

// ReadExternalFile parses a shell-style KEY=value / KEY="value" file.
// Blank lines and # comments are skipped; values get $VAR and ~ expansion.
// A # inside a value is kept. A missing file yields an empty map and no error.
func ReadExternalFile(path string) (map[string]string, error) {
	out := make(map[string]string)
	if strings.TrimSpace(path) == "" {
		return out, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return out, fmt.Errorf("failed to open external config %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := externalLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		val := m[2]
		if val == "" {
			val = m[3]
		}
		if val == "" {
			val = m[4]
		}
		out[m[1]] = expandValue(strings.TrimSpace(val))
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("failed to read external config %s: %w", path, err)
	}
	return out, nil
}

// expandValue expands environment references and a leading ~.
// Unset variables are left verbatim.
func expandValue(s string) string {
	s = os.Expand(s, func(name string) string {
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return "${" + name + "}"
	})
	if expanded, err := homedir.Expand(s); err == nil {
		s = expanded
	}
	return s
}
