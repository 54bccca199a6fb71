package textutil

import "testing"

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Přijmout", "prijmout"},
		{"  Rock   Concert ", "rock concert"},
		{"PROSINCE", "prosince"},
		{"Září", "zari"},
		{"März", "marz"},
	}

	for _, tt := range tests {
		if got := Fold(tt.in); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("příliš", 3); got != "pří" {
		t.Errorf("Expected 'pří', got '%s'", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Errorf("Expected 'abc', got '%s'", got)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty("", "  ", " x "); got != "x" {
		t.Errorf("Expected 'x', got '%s'", got)
	}
}
