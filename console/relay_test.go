package console

import "testing"

func TestParseEscapeChar(t *testing.T) {
	cases := []struct {
		in   string
		want byte
		ok   bool
	}{
		{"^]", 0x1D, true},
		{"^A", 1, true},
		{"^a", 1, true},
		{"q", 'q', true},
		{"", 0, false},
		{"^^]", 0, false},
		{"^@", 0, false},   // NUL
		{".", 0, false},    // conflicts with disconnect command
		{"?", 0, false},    // conflicts with help command
		{"\x7F", 0, false}, // DEL
	}
	for _, c := range cases {
		got, err := ParseEscapeChar(c.in)
		if c.ok && (err != nil || got != c.want) {
			t.Errorf("ParseEscapeChar(%q) = %v, %v; want %v", c.in, got, err, c.want)
		}
		if !c.ok && err == nil {
			t.Errorf("ParseEscapeChar(%q) should fail", c.in)
		}
	}
}

func TestFormatEscapeChar(t *testing.T) {
	if got := FormatEscapeChar(0x1D); got != "^]" {
		t.Errorf("FormatEscapeChar(0x1D) = %q, want ^]", got)
	}
	if got := FormatEscapeChar('q'); got != "q" {
		t.Errorf("FormatEscapeChar('q') = %q, want q", got)
	}
}
