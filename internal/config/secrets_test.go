package config

import (
	"testing"
)

func TestIsSensitive(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"ASR_API_KEY", true},
		{"hf_token", true},
		{"DB_PASSWORD", true},
		{"MODEL_DIR", false},
		{"LANG", false},
	}

	for _, tt := range tests {
		if got := IsSensitive(tt.name); got != tt.want {
			t.Errorf("IsSensitive(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMaskValue(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"", "(not set)"},
		{"short", "***"},
		{"hf_abcdefghijklmnop", "hf_a...mnop"},
	}

	for _, tt := range tests {
		if got := MaskValue(tt.value); got != tt.want {
			t.Errorf("MaskValue(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestMaskEnv(t *testing.T) {
	got := MaskEnv([]string{"MODEL_DIR=/models", "ASR_API_KEY=sk-0123456789abcdef", "NOEQUALS"})
	want := []string{"MODEL_DIR=/models", "ASR_API_KEY=sk-0...cdef", "NOEQUALS"}

	if len(got) != len(want) {
		t.Fatalf("MaskEnv returned %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}
