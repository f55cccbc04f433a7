package remote

import (
	"os/exec"
	"testing"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "''"},
		{"hello", "'hello'"},
		{"hello world", "'hello world'"},
		{"it's", `'it'\''s'`},
		{"$HOME", "'$HOME'"},
		{"a;rm -rf /", "'a;rm -rf /'"},
		{"back\\slash", "'back\\slash'"},
	}
	for _, tt := range tests {
		if got := string(ShellQuote([]byte(tt.in))); got != tt.want {
			t.Errorf("ShellQuote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestEchoQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{`C:\temp`, `'C:\\temp'`},
		{"nul\x00byte", `'nul\x00byte'`},
		{"it's", `'it'\''s'`},
		{`\'`, `'\\'\'''`},
	}
	for _, tt := range tests {
		if got := string(EchoQuote([]byte(tt.in))); got != tt.want {
			t.Errorf("EchoQuote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

// The quoting contract is ultimately "a real shell reproduces the
// original bytes"; check that against an actual shell.
func TestShellQuoteRoundTrip(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no sh available")
	}
	inputs := []string{
		"hello world",
		"it's",
		"$HOME `date` $(id)",
		"semi;colon && pipe | redirect > /dev/null",
		"back\\slash",
	}
	for _, in := range inputs {
		out, err := exec.Command("sh", "-c", "printf %s "+string(ShellQuote([]byte(in)))).Output()
		if err != nil {
			t.Fatalf("sh -c printf: %v", err)
		}
		if string(out) != in {
			t.Errorf("round trip of %q gave %q", in, out)
		}
	}
}

func TestEchoQuoteRoundTrip(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("no bash available")
	}
	inputs := []string{
		"plain text",
		`C:\temp\new`,
		"it's quoted",
	}
	for _, in := range inputs {
		out, err := exec.Command("bash", "-c", "echo -e "+string(EchoQuote([]byte(in)))).Output()
		if err != nil {
			t.Fatalf("bash -c echo: %v", err)
		}
		if string(out) != in+"\n" {
			t.Errorf("round trip of %q gave %q", in, out)
		}
	}
}
