package mqtt_test

import (
	"testing"

	"github.com/parley-ai/parley/internal/mqtt"
)

func TestMatchFilter(t *testing.T) {
	cases := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"parley/dialogue/sessionStarted", "parley/dialogue/sessionStarted", true},
		{"parley/dialogue/sessionStarted", "parley/dialogue/sessionEnded", false},
		{"parley/hotword/+/detected", "parley/hotword/default/detected", true},
		{"parley/hotword/+/detected", "parley/hotword/default/extra/detected", false},
		{"parley/hotword/+/detected", "parley/hotword/detected", false},
		{"parley/intent/+", "parley/intent/ChangeLightState", true},
		{"parley/intent/+", "parley/intent", false},
		{"parley/audioServer/+/playBytes/#", "parley/audioServer/default/playBytes/req-1", true},
		{"parley/audioServer/+/playBytes/#", "parley/audioServer/default/audioFrame", false},
		{"parley/#", "parley/anything/goes/here", true},
		{"#", "parley/dialogue/startSession", true},
		{"parley/#/detected", "parley/hotword/detected", false}, // "#" must be last
		{"", "parley/dialogue/startSession", false},
		{"parley/dialogue/startSession", "", false},
	}

	for _, tc := range cases {
		if got := mqtt.MatchFilter(tc.filter, tc.topic); got != tc.want {
			t.Errorf("MatchFilter(%q, %q) = %v, want %v", tc.filter, tc.topic, got, tc.want)
		}
	}
}
