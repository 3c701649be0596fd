package expand

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpand(t *testing.T) {
	assert.Equal(t, "foo", Expand("${foo}", func(s string) string { return s }))
	assert.Equal(t, "a-b.c-d", Expand("a-${b.c}-d", func(s string) string { return s }))
	assert.Equal(t, "$foo", Expand("$foo", func(s string) string { return "x" }))
}

func TestEnv(t *testing.T) {
	t.Setenv("BYTESTREAM_EXPAND_TEST", "value")
	assert.Equal(t, "<value>", Expand("<${env.BYTESTREAM_EXPAND_TEST}>", Env))
	assert.Equal(t, "<>", Expand("<${BYTESTREAM_EXPAND_TEST}>", Env))
}

func TestUnescape(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input    string
		expected string
		err      bool
	}{
		{input: "plain", expected: "plain"},
		{input: `\r\n`, expected: "\r\n"},
		{input: `a\tb\\c`, expected: "a\tb\\c"},
		{input: `\x1e\x00|\0`, expected: "\x1e\x00|\x00"},
		{input: `end\`, err: true},
		{input: `\x1`, err: true},
		{input: `\xzz`, err: true},
		{input: `\q`, err: true},
	}
	for i, c := range cases {
		t.Run(fmt.Sprintf("#%d: %s", i, c.input), func(t *testing.T) {
			t.Parallel()
			s, err := Unescape(c.input)
			if c.err {
				assert.Error(t, err)
				return
			}
			if assert.NoError(t, err) {
				assert.Equal(t, c.expected, s)
			}
		})
	}
}
