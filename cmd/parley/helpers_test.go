package main

import "testing"

func TestNormalizeServerURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", defaultServerURL},
		{"127.0.0.1:12101", "http://127.0.0.1:12101"},
		{"http://localhost:12101/", "http://localhost:12101"},
		{"https://voice.example.com", "https://voice.example.com"},
	}
	for _, tc := range cases {
		got, err := normalizeServerURL(tc.in)
		if err != nil {
			t.Fatalf("normalize %q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("normalize %q = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeServerURLRejectsBadScheme(t *testing.T) {
	if _, err := normalizeServerURL("ftp://example.com"); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}

func TestWSURL(t *testing.T) {
	c := &apiClient{baseURL: "http://127.0.0.1:12101"}
	if got := c.wsURL("/api/events/intent"); got != "ws://127.0.0.1:12101/api/events/intent" {
		t.Fatalf("wsURL = %q", got)
	}
	c = &apiClient{baseURL: "https://voice.example.com"}
	if got := c.wsURL("/api/mqtt/parley/%23"); got != "wss://voice.example.com/api/mqtt/parley/%23" {
		t.Fatalf("wsURL = %q", got)
	}
}
