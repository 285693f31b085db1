// Package tray shows signify in the system tray: the last committed signs,
// the active model and a recognition toggle.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

// recentSigns is how many committed signs the Recent submenu lists.
const recentSigns = 5

// Handlers are called from the menu goroutine. Nil handlers are skipped.
type Handlers struct {
	Toggle   func(enabled bool)
	Train    func()
	Settings func()
	Quit     func()
}

// state is what the menu displays.
type state struct {
	enabled bool
	recent  []string // newest first
	model   string
}

func (s state) toggleTitle() string {
	if s.enabled {
		return "● Recognizing"
	}
	return "○ Paused"
}

func (s state) lastTitle() string {
	if len(s.recent) == 0 {
		return "Last: none"
	}
	return "Last: " + s.recent[0]
}

func (s state) modelTitle() string {
	if s.model == "" {
		return "Model: not trained"
	}
	return "Model: " + s.model
}

// Tray owns the menu. Setters may be called before Run and from any
// goroutine.
type Tray struct {
	handlers Handlers

	mu     sync.Mutex
	st     state
	toggle *systray.MenuItem
	last   *systray.MenuItem
	model  *systray.MenuItem
	recent []*systray.MenuItem
}

// New returns a tray with recognition shown as enabled.
func New(h Handlers) *Tray {
	return &Tray{handlers: h, st: state{enabled: true}}
}

// Run shows the tray icon and blocks until Quit.
func (t *Tray) Run() {
	systray.Run(t.build, func() {})
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) build() {
	systray.SetTitle("Signify")
	systray.SetTooltip("Signify sign recognition")

	t.mu.Lock()
	t.toggle = systray.AddMenuItem(t.st.toggleTitle(), "Pause or resume sign recognition")
	systray.AddSeparator()
	t.last = systray.AddMenuItem(t.st.lastTitle(), "Last committed sign")
	t.last.Disable()
	history := systray.AddMenuItem("Recent signs", "Recently committed signs")
	for i := 0; i < recentSigns; i++ {
		item := history.AddSubMenuItem("", "")
		item.Disable()
		t.recent = append(t.recent, item)
	}
	t.model = systray.AddMenuItem(t.st.modelTitle(), "Active model version")
	t.model.Disable()
	t.refreshLocked()
	t.mu.Unlock()

	train := systray.AddMenuItem("Retrain", "Train a new model on all collected samples")
	systray.AddSeparator()
	settings := systray.AddMenuItem("Open Settings...", "Open the web UI")
	systray.AddSeparator()
	quit := systray.AddMenuItem("Quit", "Quit Signify")

	go func() {
		for {
			select {
			case <-t.toggle.ClickedCh:
				t.Toggle()
			case <-train.ClickedCh:
				call(t.handlers.Train)
			case <-settings.ClickedCh:
				call(t.handlers.Settings)
			case <-quit.ClickedCh:
				call(t.handlers.Quit)
				systray.Quit()
				return
			}
		}
	}()
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

// refreshLocked copies the state into the menu once it exists.
func (t *Tray) refreshLocked() {
	if t.toggle == nil {
		return
	}
	t.toggle.SetTitle(t.st.toggleTitle())
	t.last.SetTitle(t.st.lastTitle())
	t.model.SetTitle(t.st.modelTitle())
	for i, item := range t.recent {
		if i < len(t.st.recent) {
			item.SetTitle(t.st.recent[i])
			item.Show()
		} else {
			item.Hide()
		}
	}
}

// Toggle flips recognition as if the menu item was clicked.
func (t *Tray) Toggle() {
	t.mu.Lock()
	t.st.enabled = !t.st.enabled
	enabled := t.st.enabled
	t.refreshLocked()
	t.mu.Unlock()

	if t.handlers.Toggle != nil {
		t.handlers.Toggle(enabled)
	}
}

// SetEnabled updates the toggle without calling the Toggle handler.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.enabled = enabled
	t.refreshLocked()
}

// IsEnabled reports the toggle state.
func (t *Tray) IsEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.st.enabled
}

// AddSign records a committed sign at the top of the history.
func (t *Tray) AddSign(label string, confidence float64) {
	entry := fmt.Sprintf("%s (%.0f%%)", label, confidence*100)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.recent = append([]string{entry}, t.st.recent...)
	if len(t.st.recent) > recentSigns {
		t.st.recent = t.st.recent[:recentSigns]
	}
	t.refreshLocked()
}

// Recent returns the sign history, newest first.
func (t *Tray) Recent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.st.recent...)
}

// SetModel shows the active model by its short version. An empty version
// means no model is trained.
func (t *Tray) SetModel(version string, signs int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.model = ""
	if version != "" {
		if len(version) > 8 {
			version = version[:8]
		}
		t.st.model = fmt.Sprintf("%s, %d signs", version, signs)
	}
	t.refreshLocked()
}
