package remote

import "bytes"

// ShellQuote escapes an arbitrary byte string for safe interpolation
// into a POSIX shell command line: the string is wrapped in single
// quotes, with embedded single quotes spliced as '\''.
func ShellQuote(b []byte) []byte {
	quoted := bytes.ReplaceAll(b, []byte(`'`), []byte(`'\''`))
	out := make([]byte, 0, len(quoted)+2)
	out = append(out, '\'')
	out = append(out, quoted...)
	out = append(out, '\'')
	return out
}

// EchoQuote escapes a byte string for use with `echo -e`, so that
// backslash sequences and NUL bytes survive one more shell hop.
// Replacement order matters: backslashes first, then NUL, then quotes.
func EchoQuote(b []byte) []byte {
	b = bytes.ReplaceAll(b, []byte(`\`), []byte(`\\`))
	b = bytes.ReplaceAll(b, []byte{0}, []byte(`\x00`))
	b = bytes.ReplaceAll(b, []byte(`'`), []byte(`'\''`))
	out := make([]byte, 0, len(b)+2)
	out = append(out, '\'')
	out = append(out, b...)
	out = append(out, '\'')
	return out
}
