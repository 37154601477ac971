// ABOUTME: Pulls a code out of raw message text with a single regular expression
// ABOUTME: The first capture group of the first match is the code

package extract

import (
	"errors"
	"fmt"
	"regexp"
)

// DefaultPattern matches "code:" (any case), optional whitespace, then a run
// of letters, digits, '-' or '_'.
//
// RE2 treats only ASCII letters, digits and '_' as word characters for \b, so
// a non-ASCII letter ends a code: "code:abcé" yields "abc" and "écode: x"
// still matches. Codes are ASCII in practice.
const DefaultPattern = `(?i)\bcode:\s*([a-zA-Z0-9\-_]+)\b`

// ErrNoCaptureGroup is returned for patterns without a capture group.
var ErrNoCaptureGroup = errors.New("pattern must contain a capture group")

// Extractor finds codes in message text.
type Extractor struct {
	re *regexp.Regexp
}

// New compiles pattern. An empty pattern uses DefaultPattern.
func New(pattern string) (*Extractor, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("pattern %q: %w", pattern, ErrNoCaptureGroup)
	}
	return &Extractor{re: re}, nil
}

// MustNew is New for patterns known to be valid.
func MustNew(pattern string) *Extractor {
	e, err := New(pattern)
	if err != nil {
		panic(err)
	}
	return e
}

// Extract returns the captured code from the first match in text. ok is
// false when text has no match or the capture is empty.
func (e *Extractor) Extract(text string) (code string, ok bool) {
	if text == "" {
		return "", false
	}
	m := e.re.FindStringSubmatch(text)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}
