package ansi

import "testing"

func TestWidthPlain(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"hello", 5},
		{"\x1b[31mhello\x1b[0m", 5},
		{"┌──┐", 4}, // box drawing counts 1 cell each
		{"🔮", 2},
		{"日本語", 6},
		{"a✨b", 4},
	}
	for _, c := range cases {
		if got := Width(c.in); got != c.want {
			t.Errorf("Width(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestFits(t *testing.T) {
	if !Fits("hello", 5) {
		t.Error("expected hello to fit in 5 cells")
	}
	if Fits("hello", 4) {
		t.Error("expected hello not to fit in 4 cells")
	}
	if !Fits("\x1b[32mok\x1b[0m", 2) {
		t.Error("expected colored ok to fit in 2 cells")
	}
}

func TestTruncate(t *testing.T) {
	got := Truncate("hello world", 8, "")
	if got != "hello..." {
		t.Fatalf("expected %q, got %q", "hello...", got)
	}
	if Width(got) > 8 {
		t.Fatalf("truncated string exceeds budget: %d cells", Width(got))
	}

	// Strings that fit come back untouched.
	if got := Truncate("short", 10, ""); got != "short" {
		t.Fatalf("expected short unchanged, got %q", got)
	}

	// Wide runes never straddle the budget boundary.
	got = Truncate("🔮🔮🔮🔮", 5, "")
	if Width(got) > 5 {
		t.Fatalf("wide truncation exceeds budget: %q is %d cells", got, Width(got))
	}
}

func TestStrip(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"\x1b[31mred\x1b[0m", "red"},
		{"\x1b[1;32mbold green\x1b[m", "bold green"},
		{"a\x1b[90mb\x1b[0mc", "abc"},
	}
	for _, c := range cases {
		if got := Strip(c.in); got != c.want {
			t.Errorf("Strip(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
