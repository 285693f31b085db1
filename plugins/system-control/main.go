// Command system-control is a signify plugin that maps committed signs to
// volume, brightness and media controls. It shells out to osascript on macOS
// and to pactl, brightnessctl and playerctl on Linux.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
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

// Params tunes an action. Step is a percentage for volume and brightness.
type Params struct {
	Step int `json:"step"`
}

// command is one external program invocation.
type command struct {
	name string
	args []string
}

func (c command) String() string {
	return strings.Join(append([]string{c.name}, c.args...), " ")
}

// macKeys maps key-driven actions to System Events key codes.
var macKeys = map[string]int{
	"brightness-up":    144,
	"brightness-down":  145,
	"media-play-pause": 100,
	"media-next":       101,
	"media-prev":       98,
}

// linuxPlayer maps media actions to playerctl verbs.
var linuxPlayer = map[string]string{
	"media-play-pause": "play-pause",
	"media-next":       "next",
	"media-prev":       "previous",
}

func parseParams(raw json.RawMessage) (Params, error) {
	p := Params{Step: 10}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, fmt.Errorf("bad params: %w", err)
		}
	}
	if p.Step < 1 || p.Step > 100 {
		return p, fmt.Errorf("step must be between 1 and 100, got %d", p.Step)
	}
	return p, nil
}

// plan returns the command that performs req on goos.
func plan(goos string, req Request) (command, error) {
	p, err := parseParams(req.Params)
	if err != nil {
		return command{}, err
	}

	var (
		c  command
		ok bool
	)
	switch goos {
	case "darwin":
		c, ok = planDarwin(req.Action, p.Step)
	case "linux":
		c, ok = planLinux(req.Action, p.Step)
	default:
		return command{}, fmt.Errorf("unsupported platform %s", goos)
	}
	if !ok {
		return command{}, fmt.Errorf("unknown action: %s", req.Action)
	}
	return c, nil
}

func planDarwin(action string, step int) (command, bool) {
	osa := func(script string) command { return command{"osascript", []string{"-e", script}} }
	const current = "(output volume of (get volume settings))"

	switch action {
	case "volume-up":
		return osa(fmt.Sprintf("set volume output volume (%s + %d)", current, step)), true
	case "volume-down":
		return osa(fmt.Sprintf("set volume output volume (%s - %d)", current, step)), true
	case "volume-mute":
		return osa("set volume output muted (not (output muted of (get volume settings)))"), true
	}
	if code, ok := macKeys[action]; ok {
		return osa(fmt.Sprintf(`tell application "System Events" to key code %d`, code)), true
	}
	return command{}, false
}

func planLinux(action string, step int) (command, bool) {
	pct := strconv.Itoa(step) + "%"
	switch action {
	case "volume-up":
		return command{"pactl", []string{"set-sink-volume", "@DEFAULT_SINK@", "+" + pct}}, true
	case "volume-down":
		return command{"pactl", []string{"set-sink-volume", "@DEFAULT_SINK@", "-" + pct}}, true
	case "volume-mute":
		return command{"pactl", []string{"set-sink-mute", "@DEFAULT_SINK@", "toggle"}}, true
	case "brightness-up":
		return command{"brightnessctl", []string{"set", "+" + pct}}, true
	case "brightness-down":
		return command{"brightnessctl", []string{"set", pct + "-"}}, true
	}
	if verb, ok := linuxPlayer[action]; ok {
		return command{"playerctl", []string{verb}}, true
	}
	return command{}, false
}

func main() {
	json.NewEncoder(os.Stdout).Encode(handle(os.Stdin))
}

func handle(in *os.File) Response {
	var req Request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return Response{Error: fmt.Sprintf("decode request: %v", err)}
	}

	c, err := plan(runtime.GOOS, req)
	if err != nil {
		return Response{Error: err.Error()}
	}
	if out, err := exec.Command(c.name, c.args...).CombinedOutput(); err != nil {
		return Response{Error: fmt.Sprintf("%s: %v: %s", c, err, strings.TrimSpace(string(out)))}
	}

	data, _ := json.Marshal(map[string]string{"sign": req.Sign, "action": req.Action})
	return Response{Success: true, Data: data}
}
