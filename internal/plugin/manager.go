package plugin

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
)

// ManifestFile is the file that marks a directory as a plugin.
const ManifestFile = "plugin.json"

var (
	// ErrPluginNotFound is returned when a requested plugin cannot be found.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrInvalidManifest is returned for a plugin.json that cannot be used.
	ErrInvalidManifest = errors.New("invalid plugin manifest")
)

// Manager holds the plugins discovered under one directory.
type Manager struct {
	pluginDir string
	plugins   map[string]*Plugin
	mu        sync.RWMutex
}

// NewManager creates a new plugin Manager with the given plugin directory.
func NewManager(pluginDir string) *Manager {
	return &Manager{
		pluginDir: pluginDir,
		plugins:   make(map[string]*Plugin),
	}
}

// Discover rescans the plugin directory. A missing directory means no
// plugins. Broken plugins are logged and skipped.
func (m *Manager) Discover() error {
	found := make(map[string]*Plugin)

	entries, err := os.ReadDir(m.pluginDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read plugin dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		p, err := loadPlugin(filepath.Join(m.pluginDir, entry.Name()))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			log.Printf("Skipping plugin %s: %v", entry.Name(), err)
			continue
		}
		if prev, dup := found[p.Manifest.Name]; dup {
			log.Printf("Skipping plugin %s: name %q already used by %s", entry.Name(), p.Manifest.Name, prev.Path)
			continue
		}
		found[p.Manifest.Name] = p
	}

	m.mu.Lock()
	m.plugins = found
	m.mu.Unlock()

	if len(found) > 0 {
		log.Printf("Discovered %d plugins in %s", len(found), m.pluginDir)
	}
	return nil
}

// loadPlugin reads dir/plugin.json. The error matches os.ErrNotExist when
// dir has no manifest.
func loadPlugin(dir string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}

	manifest, err := parseManifest(data, dir)
	if err != nil {
		return nil, err
	}

	executable := filepath.Join(dir, manifest.Executable)
	if err := checkExecutable(executable); err != nil {
		return nil, err
	}

	return &Plugin{Manifest: manifest, Path: dir, Executable: executable}, nil
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: executable: %v", ErrInvalidManifest, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a file", ErrInvalidManifest, path)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0111 == 0 {
		return fmt.Errorf("%w: %s is not executable", ErrInvalidManifest, path)
	}
	return nil
}

// Get returns a plugin by name.
// Returns ErrPluginNotFound if the plugin does not exist.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugin, ok := m.plugins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return plugin, nil
}

// List returns all discovered plugins sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugins := make([]*Plugin, 0, len(m.plugins))
	for _, plugin := range m.plugins {
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Manifest.Name < plugins[j].Manifest.Name
	})
	return plugins
}

// CheckHooks reports every hook that names a missing plugin or an action its
// plugin does not declare. Run it after Discover.
func (m *Manager) CheckHooks(hooks []Hook) []error {
	var errs []error
	for i, h := range hooks {
		p, err := m.Get(h.Plugin)
		if err != nil {
			errs = append(errs, fmt.Errorf("hook %d (%s): %w", i, h.describe(), err))
			continue
		}
		if !p.SupportsAction(h.Action) {
			errs = append(errs, fmt.Errorf("hook %d (%s): plugin %s has no action %s", i, h.describe(), h.Plugin, h.Action))
		}
	}
	return errs
}

// PluginDir returns the plugin directory path.
func (m *Manager) PluginDir() string {
	return m.pluginDir
}
