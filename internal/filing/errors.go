package filing

import (
	"fmt"
	"sort"
	"strings"
)

// Errors collects validation messages keyed by the path of the offending
// entity, e.g. "properties[1].occupancy".
type Errors map[string]string

// Error implements the error interface with the messages in path order
func (e Errors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	paths := e.Paths()
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		parts = append(parts, fmt.Sprintf("%s: %s", p, e[p]))
	}
	return strings.Join(parts, "; ")
}

// Paths returns the failing paths sorted
func (e Errors) Paths() []string {
	paths := make([]string, 0, len(e))
	for p := range e {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// add keeps the first message recorded for a path
func (e Errors) add(path string, err error) {
	if err == nil {
		return
	}
	if _, exists := e[path]; !exists {
		e[path] = err.Error()
	}
}

func (e Errors) orNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
