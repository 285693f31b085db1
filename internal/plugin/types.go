// Package plugin runs external executables when a sign is committed.
//
// A plugin is a directory holding a plugin.json manifest and an executable.
// The executable receives one JSON Request on stdin and answers with one JSON
// Response on stdout.
package plugin

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Manifest is the content of plugin.json.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"` // relative to the plugin directory
	Actions      []string        `json:"actions"`    // empty accepts any action
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// parseManifest decodes plugin.json for the plugin in dir. The name defaults
// to the directory name and the executable must stay inside dir.
func parseManifest(data []byte, dir string) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if m.Name == "" {
		m.Name = filepath.Base(dir)
	}
	if strings.ContainsAny(m.Name, `/\`) {
		return m, fmt.Errorf("%w: bad name %q", ErrInvalidManifest, m.Name)
	}
	if m.Executable == "" {
		return m, fmt.Errorf("%w: no executable", ErrInvalidManifest)
	}
	if !filepath.IsLocal(m.Executable) {
		return m, fmt.Errorf("%w: executable %q is outside the plugin directory", ErrInvalidManifest, m.Executable)
	}
	if slices.Contains(m.Actions, "") {
		return m, fmt.Errorf("%w: empty action name", ErrInvalidManifest)
	}
	return m, nil
}

// Request is written to the plugin's stdin.
type Request struct {
	Action     string          `json:"action"`
	Sign       string          `json:"sign"`
	Confidence float64         `json:"confidence"`
	Config     json.RawMessage `json:"config,omitempty"`
	Params     json.RawMessage `json:"params,omitempty"`
}

// Response is read from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin.
type Plugin struct {
	Manifest   Manifest
	Path       string // plugin directory
	Executable string // Path joined with Manifest.Executable
}

// SupportsAction reports whether the manifest lists action.
func (p *Plugin) SupportsAction(action string) bool {
	return len(p.Manifest.Actions) == 0 || slices.Contains(p.Manifest.Actions, action)
}
