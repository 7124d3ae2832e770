package snippet

import (
	"strings"
	"testing"
)

func TestAround(t *testing.T) {
	text := "The lease starts on May 1. Rent is $900 per month; late fees apply.\nSigned today"

	tests := []struct {
		name  string
		match string
		want  string
	}{
		{"first sentence", "May 1", "The lease starts on May 1"},
		{"stops at semicolon", "$900", "Rent is $900 per month"},
		{"stops at newline", "Signed", "Signed today"},
		{"after semicolon", "late fees", "late fees apply"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := strings.Index(text, tt.match)
			got := Around(text, start, start+len(tt.match))
			if got != tt.want {
				t.Errorf("Around(%q) = %q, want %q", tt.match, got, tt.want)
			}
		})
	}
}

func TestAround_DecimalPointIsNotSentenceEnd(t *testing.T) {
	text := "A deposit of $1,500.00 is due"
	start := strings.Index(text, "$")
	if got := Around(text, start, start+9); got != text {
		t.Errorf("got %q", got)
	}
}

func TestAround_Truncates(t *testing.T) {
	text := strings.Repeat("word ", 100)
	if got := Around(text, 0, 4); len([]rune(got)) != MaxLength {
		t.Errorf("expected %d runes, got %d", MaxLength, len([]rune(got)))
	}
}

func TestAround_BadRange(t *testing.T) {
	if got := Around("abc", 2, 1); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}
