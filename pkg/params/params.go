// Package params holds the ordered, user-editable list of extra
// transcription-engine parameters.
package params

import (
	"errors"
	"strings"
)

// ErrEmptyName is returned when an entry is added without a name.
var ErrEmptyName = errors.New("parameter name (e.g., --temperature) is required")

// Entry is one extra command-line parameter.
type Entry struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Name    string `json:"name" mapstructure:"name"`
	Value   string `json:"value" mapstructure:"value"`
}

// List is an ordered parameter list, unique by Name.
type List []Entry

// AddOrUpdate replaces the entry with the same name in place, or appends.
func (l List) AddOrUpdate(e Entry) (List, error) {
	e.Name = strings.TrimSpace(e.Name)
	e.Value = strings.TrimSpace(e.Value)
	if e.Name == "" {
		return l, ErrEmptyName
	}

	for i := range l {
		if l[i].Name == e.Name {
			out := l.Clone()
			out[i] = e
			return out, nil
		}
	}
	return append(l.Clone(), e), nil
}

// Remove drops every entry whose name is in names. Unknown names are ignored.
func (l List) Remove(names ...string) List {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[strings.TrimSpace(n)] = struct{}{}
	}

	out := make(List, 0, len(l))
	for _, e := range l {
		if _, ok := drop[e.Name]; ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

// RemoveAt drops entries by zero-based index. Out-of-range indexes are ignored.
func (l List) RemoveAt(indexes ...int) List {
	drop := make(map[int]struct{}, len(indexes))
	for _, i := range indexes {
		drop[i] = struct{}{}
	}

	out := make(List, 0, len(l))
	for i, e := range l {
		if _, ok := drop[i]; ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Lookup returns the entry named name.
func (l List) Lookup(name string) (Entry, bool) {
	for _, e := range l {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// ToCommandArgs flattens enabled entries into CLI tokens in list order.
// An empty value contributes the bare name.
func (l List) ToCommandArgs() []string {
	args := make([]string, 0, len(l)*2)
	for _, e := range l {
		name := strings.TrimSpace(e.Name)
		if !e.Enabled || name == "" {
			continue
		}
		args = append(args, name)
		if v := strings.TrimSpace(e.Value); v != "" {
			args = append(args, v)
		}
	}
	return args
}

// Clone returns a copy that shares no backing array with l.
func (l List) Clone() List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	copy(out, l)
	return out
}
