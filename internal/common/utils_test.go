package common

import (
	"reflect"
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "abc", 10, "abc"},
		{"ascii cut", "abcdef", 4, "abcd"},
		{"zero", "abc", 0, ""},
		{"split rune", "abécd", 3, "ab"},
		{"split three byte rune", "a€b", 3, "a"},
		{"rune boundary", "abécd", 4, "abé"},
		{"early invalid byte", "\xff" + strings.Repeat("a", 10), 5, "\xffaaaa"},
		{"invalid tail byte", "aaaa\x80\x80\x80\x80\x80\x80", 7, "aaaa\x80\x80\x80"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.in, tt.n); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestTruncateKeepsLongBodyWithInvalidPrefix(t *testing.T) {
	in := "\xff" + strings.Repeat("a", 5000)
	if got := Truncate(in, 4096); len(got) != 4096 {
		t.Fatalf("expected 4096 bytes, got %d", len(got))
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" minutely, ,alerts ,")
	if want := []string{"minutely", "alerts"}; !reflect.DeepEqual(got, want) {
		t.Errorf("SplitList = %v, want %v", got, want)
	}
	if got := SplitList(""); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}
