// Command typer is a signify plugin that types committed signs into the
// focused application, through System Events on macOS and xdotool on Linux.
//
// Actions:
//
//	type       types the sign, params {"prefix", "suffix", "uppercase"}
//	keystroke  presses a key, params {"key", "modifiers": ["cmd", "shift", ...]}
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

type Request struct {
	Action     string          `json:"action"`
	Sign       string          `json:"sign"`
	Confidence float64         `json:"confidence"`
	Config     json.RawMessage `json:"config"`
	Params     json.RawMessage `json:"params"`
}

type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type typeParams struct {
	Prefix    string `json:"prefix"`
	Suffix    string `json:"suffix"`
	Uppercase bool   `json:"uppercase"`
}

type keyParams struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"`
}

// modifier is one modifier key as spelled by each platform's tool.
type modifier struct{ mac, x11 string }

var modifiers = map[string]modifier{
	"command": {"command down", "super"},
	"cmd":     {"command down", "super"},
	"option":  {"option down", "alt"},
	"alt":     {"option down", "alt"},
	"control": {"control down", "ctrl"},
	"ctrl":    {"control down", "ctrl"},
	"shift":   {"shift down", "shift"},
}

// keystroke is what an action resolves to before it is turned into a
// platform command: literal text, or one key with modifiers.
type keystroke struct {
	text string
	key  string
	mods []modifier
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("bad params: %w", err)
	}
	return nil
}

// resolve validates req and works out the keystroke it asks for.
func resolve(req Request) (keystroke, error) {
	switch req.Action {
	case "type":
		var p typeParams
		if err := decodeParams(req.Params, &p); err != nil {
			return keystroke{}, err
		}
		if strings.TrimSpace(req.Sign) == "" {
			return keystroke{}, errors.New("sign is required")
		}
		text := req.Sign
		if p.Uppercase {
			text = strings.ToUpper(text)
		}
		return keystroke{text: p.Prefix + text + p.Suffix}, nil

	case "keystroke":
		var p keyParams
		if err := decodeParams(req.Params, &p); err != nil {
			return keystroke{}, err
		}
		if p.Key == "" {
			return keystroke{}, errors.New("key is required")
		}
		ks := keystroke{key: p.Key}
		for _, name := range p.Modifiers {
			if m, ok := modifiers[strings.ToLower(name)]; ok {
				ks.mods = append(ks.mods, m)
			}
		}
		return ks, nil
	}
	return keystroke{}, fmt.Errorf("unknown action: %s", req.Action)
}

// appleString returns s as an AppleScript string literal.
func appleString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// argv returns the program and arguments that perform ks on goos.
func (ks keystroke) argv(goos string) ([]string, error) {
	switch goos {
	case "darwin":
		script := `tell application "System Events" to keystroke `
		if ks.key == "" {
			return []string{"osascript", "-e", script + appleString(ks.text)}, nil
		}
		script += appleString(ks.key)
		if len(ks.mods) > 0 {
			names := make([]string, len(ks.mods))
			for i, m := range ks.mods {
				names[i] = m.mac
			}
			script += " using {" + strings.Join(names, ", ") + "}"
		}
		return []string{"osascript", "-e", script}, nil

	case "linux":
		if ks.key == "" {
			return []string{"xdotool", "type", "--delay", "0", "--", ks.text}, nil
		}
		combo := make([]string, 0, len(ks.mods)+1)
		for _, m := range ks.mods {
			combo = append(combo, m.x11)
		}
		return []string{"xdotool", "key", "--", strings.Join(append(combo, ks.key), "+")}, nil
	}
	return nil, fmt.Errorf("unsupported platform %s", goos)
}

func main() {
	json.NewEncoder(os.Stdout).Encode(handle(os.Stdin))
}

func handle(in *os.File) Response {
	var req Request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return Response{Error: fmt.Sprintf("decode request: %v", err)}
	}

	ks, err := resolve(req)
	if err != nil {
		return Response{Error: fmt.Sprintf("action %s: %v", req.Action, err)}
	}
	argv, err := ks.argv(runtime.GOOS)
	if err != nil {
		return Response{Error: err.Error()}
	}
	if out, err := exec.Command(argv[0], argv[1:]...).CombinedOutput(); err != nil {
		return Response{Error: fmt.Sprintf("%s: %v: %s", argv[0], err, strings.TrimSpace(string(out)))}
	}
	return Response{Success: true}
}
