package tools

import (
	"strings"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		want     string
		replaced bool
	}{
		{"already valid", "read_file", "read_file", false},
		{"trims", "  read_file  ", "read_file", true},
		{"collapses whitespace", "read  my file", "read_my_file", true},
		{"strips invalid runes", "exec$shell!", "execshell", true},
		{"keeps dashes", "web-search", "web-search", false},
		{"mixed", " Run Shell (v2) ", "Run_Shell_v2", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, replaced, generated := SanitizeName(tt.declared, "thread-1")
			if got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.declared, got, tt.want)
			}
			if replaced != tt.replaced {
				t.Errorf("replaced = %v, want %v", replaced, tt.replaced)
			}
			if generated {
				t.Errorf("generated = true for non-empty input %q", tt.declared)
			}
		})
	}
}

func TestSanitizeNameAlwaysConforms(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"\t\n",
		"!!!@@@###",
		strings.Repeat("a", 200),
		strings.Repeat(" ", 10) + strings.Repeat("b", 100),
		"名前",
		"valid_name",
	}

	for _, in := range inputs {
		got, _, _ := SanitizeName(in, "thread-abc-123")
		if !sanitizedNamePattern.MatchString(got) {
			t.Errorf("SanitizeName(%q) = %q does not match %s", in, got, sanitizedNamePattern)
		}
		if got == "" {
			t.Errorf("SanitizeName(%q) returned empty name", in)
		}
		if len(got) > 64 {
			t.Errorf("SanitizeName(%q) = %q exceeds 64 chars", in, got)
		}
	}
}

func TestSanitizeNameFallbackIncludesContext(t *testing.T) {
	got, replaced, generated := SanitizeName("   ", "thread42")
	if !replaced || !generated {
		t.Fatalf("expected replaced and generated for whitespace-only name, got %v/%v", replaced, generated)
	}
	if !strings.HasPrefix(got, "tool_") {
		t.Errorf("fallback name %q missing prefix", got)
	}
	if !strings.Contains(got, "thread42") {
		t.Errorf("fallback name %q missing context id", got)
	}
}

func TestFallbackNamesDiffer(t *testing.T) {
	a, _, _ := SanitizeName("", "ctx")
	b, _, _ := SanitizeName("", "ctx")
	if a == b {
		t.Errorf("two generated fallback names collided: %q", a)
	}
}
