package delim

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moriyoshi/bytestream/internal/streamtest"
	"github.com/moriyoshi/bytestream/types"
)

func TestReadLines(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		src      io.Reader
		options  []OptionFunc
		expected []string
	}{
		{name: "mixed terminators", src: strings.NewReader("a\r\nb\nc"), expected: []string{"a", "b", "c"}},
		{name: "trailing terminator", src: strings.NewReader("a\n"), expected: []string{"a"}},
		{name: "empty", src: strings.NewReader(""), expected: nil},
		{name: "blank lines", src: strings.NewReader("\n\r\nx\n"), expected: []string{"", "", "x"}},
		{name: "spread over reads", src: streamtest.NewChunkSource("ab", "c\nde\n", "f"), expected: []string{"abc", "de", "f"}},
		{
			name:     "longer than the buffer",
			src:      strings.NewReader(strings.Repeat("0123456789", 4) + "\nend"),
			options:  []OptionFunc{WithBufferSize(16)},
			expected: []string{strings.Repeat("0123456789", 4), "end"},
		},
		{
			name:     "unterminated long tail",
			src:      strings.NewReader(strings.Repeat("z", 40)),
			options:  []OptionFunc{WithBufferSize(16)},
			expected: []string{strings.Repeat("z", 40)},
		},
		{
			name:     "CR LF across the buffer edge",
			src:      strings.NewReader(strings.Repeat("a", 15) + "\r\nnext\n"),
			options:  []OptionFunc{WithBufferSize(16)},
			expected: []string{strings.Repeat("a", 15), "next"},
		},
		{name: "latin1", src: strings.NewReader("caf\xe9\r\n"), options: []OptionFunc{WithEncoding("latin1")}, expected: []string{"café"}},
	}
	for i, c := range cases {
		t.Run(fmt.Sprintf("#%d: %s", i, c.name), func(t *testing.T) {
			t.Parallel()
			got, err := collect(ReadLines(c.src, c.options...))
			if !assert.NoError(t, err) {
				t.FailNow()
			}
			assert.Equal(t, c.expected, got)
		})
	}
}

func TestReadLinesSourceError(t *testing.T) {
	t.Parallel()
	src := &streamtest.ChunkSource{Chunks: [][]byte{[]byte("one\ntw")}, Err: errBoom}
	got, err := collect(ReadLines(src))
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{"one"}, got)
}

func TestReadLinesAbandon(t *testing.T) {
	t.Parallel()
	src := &streamtest.ChunkSource{Chunks: [][]byte{[]byte("one\ntw")}, Err: types.ErrAbandoned}
	got, err := collect(ReadLines(src))
	assert.NoError(t, err)
	assert.Equal(t, []string{"one"}, got)
}

func TestReadLinesUnknownEncoding(t *testing.T) {
	t.Parallel()
	_, err := collect(ReadLines(strings.NewReader("x"), WithEncoding("nope")))
	assert.ErrorIs(t, err, ErrUnknownEncoding)
}
