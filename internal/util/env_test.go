package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"true", false, true},
		{" YES ", false, true},
		{"on", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		t.Setenv("TALKY_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("TALKY_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 3},
		{"5", 5},
		{" 7 ", 7},
		{"-1", -1},
		{"three", 3},
		{"2.5", 3},
	}
	for _, tt := range tests {
		t.Setenv("TALKY_TEST_INT", tt.value)
		if got := ParseIntEnv("TALKY_TEST_INT", 3); got != tt.want {
			t.Errorf("ParseIntEnv(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestParseFloatEnv(t *testing.T) {
	tests := []struct {
		value string
		want  float64
	}{
		{"", 0.7},
		{"0.3", 0.3},
		{"1", 1},
		{"warm", 0.7},
	}
	for _, tt := range tests {
		t.Setenv("TALKY_TEST_FLOAT", tt.value)
		if got := ParseFloatEnv("TALKY_TEST_FLOAT", 0.7); got != tt.want {
			t.Errorf("ParseFloatEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestGetenvDefault(t *testing.T) {
	t.Setenv("TALKY_TEST_STR", "  ")
	if got := GetenvDefault("TALKY_TEST_STR", "fallback"); got != "fallback" {
		t.Errorf("expected fallback for blank value, got %q", got)
	}
	t.Setenv("TALKY_TEST_STR", " value ")
	if got := GetenvDefault("TALKY_TEST_STR", "fallback"); got != "value" {
		t.Errorf("expected trimmed value, got %q", got)
	}
}
