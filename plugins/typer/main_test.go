package main

import (
	"encoding/json"
	"slices"
	"testing"
)

func TestArgv(t *testing.T) {
	tests := []struct {
		name    string
		goos    string
		req     Request
		want    []string
		wantErr bool
	}{
		{
			name: "mac type sign",
			goos: "darwin",
			req:  Request{Action: "type", Sign: "hola"},
			want: []string{"osascript", "-e", `tell application "System Events" to keystroke "hola"`},
		},
		{
			name: "mac suffix and uppercase",
			goos: "darwin",
			req:  Request{Action: "type", Sign: "hola", Params: json.RawMessage(`{"suffix":" ","uppercase":true}`)},
			want: []string{"osascript", "-e", `tell application "System Events" to keystroke "HOLA "`},
		},
		{
			name: "mac quotes are escaped",
			goos: "darwin",
			req:  Request{Action: "type", Sign: `say "hi"`},
			want: []string{"osascript", "-e", `tell application "System Events" to keystroke "say \"hi\""`},
		},
		{
			name: "mac keystroke with modifiers",
			goos: "darwin",
			req:  Request{Action: "keystroke", Params: json.RawMessage(`{"key":"v","modifiers":["cmd","bogus"]}`)},
			want: []string{"osascript", "-e", `tell application "System Events" to keystroke "v" using {command down}`},
		},
		{
			name: "linux type with prefix",
			goos: "linux",
			req:  Request{Action: "type", Sign: "-hola", Params: json.RawMessage(`{"prefix":">"}`)},
			want: []string{"xdotool", "type", "--delay", "0", "--", ">-hola"},
		},
		{
			name: "linux key combo",
			goos: "linux",
			req:  Request{Action: "keystroke", Params: json.RawMessage(`{"key":"Return","modifiers":["ctrl","Shift"]}`)},
			want: []string{"xdotool", "key", "--", "ctrl+shift+Return"},
		},
		{name: "empty sign", goos: "darwin", req: Request{Action: "type", Sign: " "}, wantErr: true},
		{name: "missing key", goos: "linux", req: Request{Action: "keystroke", Params: json.RawMessage(`{}`)}, wantErr: true},
		{name: "bad params", goos: "darwin", req: Request{Action: "type", Sign: "a", Params: json.RawMessage(`[1]`)}, wantErr: true},
		{name: "unknown action", goos: "linux", req: Request{Action: "delete", Sign: "a"}, wantErr: true},
		{name: "unsupported platform", goos: "windows", req: Request{Action: "type", Sign: "a"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ks, err := resolve(tt.req)
			var got []string
			if err == nil {
				got, err = ks.argv(tt.goos)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("argv = %q, want %q", got, tt.want)
			}
		})
	}
}
