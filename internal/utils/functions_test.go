package utils

import "testing"

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"One Piece", "one_piece"},
		{"Frieren: Beyond Journey's End", "frieren_beyond_journey_s_end"},
		{"hd-1", "hd-1"},
		{"  spaced  out  ", "spaced_out"},
		{"___", "unnamed"},
		{"", "unnamed"},
		{"日本語", "unnamed"},
		{"ep.07 [1080p]", "ep.07_1080p"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseHeaderArgs(t *testing.T) {
	got := ParseHeaderArgs([]string{
		"Authorization: Bearer abc123",
		"X-Custom:value",
		"malformed-no-colon",
	})
	if len(got) != 2 {
		t.Fatalf("got %d headers, want 2", len(got))
	}
	if got["Authorization"] != "Bearer abc123" {
		t.Errorf("Authorization = %q", got["Authorization"])
	}
	if got["X-Custom"] != "value" {
		t.Errorf("X-Custom = %q", got["X-Custom"])
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStreamHeaders(t *testing.T) {
	got := StreamHeaders("https://cdn.example.com/hls/v1/index.m3u8?token=x")
	if got == nil {
		t.Fatal("StreamHeaders returned nil for a valid URL")
	}
	if got["Origin"] != "https://cdn.example.com" {
		t.Errorf("Origin = %q", got["Origin"])
	}
	if got["Referer"] != "https://cdn.example.com/" {
		t.Errorf("Referer = %q", got["Referer"])
	}
	if StreamHeaders("not a url") != nil {
		t.Error("StreamHeaders returned headers for a hostless string")
	}
}

func TestGetRandomUserAgent(t *testing.T) {
	ua := GetRandomUserAgent()
	if ua == "" {
		t.Fatal("GetRandomUserAgent returned empty string")
	}
	found := false
	for _, candidate := range userAgents {
		if candidate == ua {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("returned agent %q is not in the known list", ua)
	}
}
