package jsonx

import (
	"bytes"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	Line  string  `json:"line"`
	Score float64 `json:"score"`
	Valid bool    `json:"valid"`
}

func TestRoundTrip(t *testing.T) {
	in := row{Line: "⟐⊶Walmart Inc⏹ <a&b>", Score: 85.5, Valid: true}
	b, err := Marshal(in)
	require.NoError(t, err)
	// 不转义 HTML 与非 ASCII
	assert.Contains(t, string(b), "<a&b>")
	assert.Contains(t, string(b), "⟐⊶Walmart Inc⏹")

	var out row
	require.NoError(t, Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestEncoderJSONL(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(row{Line: "a"}))
	require.NoError(t, enc.Encode(row{Line: "b"}))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	var r row
	require.NoError(t, Unmarshal([]byte(lines[1]), &r))
	assert.Equal(t, "b", r.Line)
}

func TestMarshalIndent(t *testing.T) {
	b, err := MarshalIndent(row{Line: "x"}, "", "  ")
	require.NoError(t, err)
	assert.Contains(t, string(b), "\n  \"line\": \"x\"")
}

func TestStdFallback(t *testing.T) {
	b, err := stdMarshal(row{Line: "<x>"})
	require.NoError(t, err)
	assert.Equal(t, `{"line":"<x>","score":0,"valid":false}`, string(b))

	b, err = stdMarshalIndent(row{}, "", "\t")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "{\n\t\"line\""))
}

func TestIsUsingSonic(t *testing.T) {
	want := runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64"
	assert.Equal(t, want, IsUsingSonic())
}
