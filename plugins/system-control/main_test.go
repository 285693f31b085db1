package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name    string
		goos    string
		req     Request
		want    string
		wantErr bool
	}{
		{name: "mac volume up default step", goos: "darwin", req: Request{Action: "volume-up", Sign: "mas"}, want: "+ 10)"},
		{name: "mac volume down custom step", goos: "darwin", req: Request{Action: "volume-down", Params: json.RawMessage(`{"step":25}`)}, want: "- 25)"},
		{name: "mac mute", goos: "darwin", req: Request{Action: "volume-mute"}, want: "output muted"},
		{name: "mac media key", goos: "darwin", req: Request{Action: "media-play-pause"}, want: "key code 100"},
		{name: "linux volume up", goos: "linux", req: Request{Action: "volume-up"}, want: "pactl set-sink-volume @DEFAULT_SINK@ +10%"},
		{name: "linux brightness down", goos: "linux", req: Request{Action: "brightness-down", Params: json.RawMessage(`{"step":5}`)}, want: "brightnessctl set 5%-"},
		{name: "linux media next", goos: "linux", req: Request{Action: "media-next"}, want: "playerctl next"},
		{name: "unknown action", goos: "linux", req: Request{Action: "reboot"}, wantErr: true},
		{name: "unsupported platform", goos: "plan9", req: Request{Action: "volume-up"}, wantErr: true},
		{name: "step out of range", goos: "darwin", req: Request{Action: "volume-up", Params: json.RawMessage(`{"step":0}`)}, wantErr: true},
		{name: "bad params", goos: "linux", req: Request{Action: "volume-up", Params: json.RawMessage(`"loud"`)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := plan(tt.goos, tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("plan() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(got.String(), tt.want) {
				t.Errorf("plan() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}
