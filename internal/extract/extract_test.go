// ABOUTME: Tests for code extraction from message text
// ABOUTME: Covers case-insensitivity, whitespace handling, punctuation and custom patterns

package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_DefaultPattern(t *testing.T) {
	e := MustNew("")

	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{name: "simple", text: "code: abc-123", want: "abc-123", wantOK: true},
		{name: "no space", text: "code:XYZ_9", want: "XYZ_9", wantOK: true},
		{name: "uppercase token", text: "CODE:   Bonus2025", want: "Bonus2025", wantOK: true},
		{name: "case preserved", text: "Code: MiXeD", want: "MiXeD", wantOK: true},
		{name: "embedded in text", text: "Drop live! use code: win-big now", want: "win-big", wantOK: true},
		{name: "stops at punctuation", text: "code: abc.def", want: "abc", wantOK: true},
		{name: "first match wins", text: "code: first and code: second", want: "first", wantOK: true},
		{name: "newline between", text: "code:\nnextline", want: "nextline", wantOK: true},
		{name: "no token", text: "no codes here", wantOK: false},
		{name: "token without value", text: "code: !!!", wantOK: false},
		{name: "word boundary", text: "barcode: 123", wantOK: false},
		{name: "non-ascii letter ends code", text: "code:abcé", want: "abc", wantOK: true},
		{name: "non-ascii letter is a boundary", text: "écode: x1", want: "x1", wantOK: true},
		{name: "empty", text: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := e.Extract(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_CustomPattern(t *testing.T) {
	e, err := New(`promo=(\d+)`)
	require.NoError(t, err)

	code, ok := e.Extract("today promo=4521 only")
	assert.True(t, ok)
	assert.Equal(t, "4521", code)
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New(`code:(`)
	assert.Error(t, err)
}

func TestNew_NoCaptureGroup(t *testing.T) {
	_, err := New(`code:\s*\w+`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCaptureGroup))
}
