package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moriyoshi/bytestream/buffer"
	"github.com/moriyoshi/bytestream/bufio"
	"github.com/moriyoshi/bytestream/framing"
	"github.com/moriyoshi/bytestream/internal/logging"
)

func TestFrameInputs(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	if !assert.NoError(t, os.WriteFile(a, []byte("one\r\ntwo\n"), 0o600)) {
		t.FailNow()
	}
	if !assert.NoError(t, os.WriteFile(b, []byte("three"), 0o600)) {
		t.FailNow()
	}
	framer, err := framing.NewFramer(framing.DefaultProfiles())
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	var out buffer.Buffer
	o := &writerOutlet{w: bufio.NewWriter(&out), separator: []byte("|")}
	CLI := &CLI{Profile: framing.DefaultProfileName, Inputs: []string{a, b}}
	err = CLI.frameInputs(context.Background(), logging.Discard(), framer, o.handle)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Equal(t, "one|two|three|", out.String())

	CLI.Inputs = []string{filepath.Join(dir, "missing")}
	assert.ErrorIs(t, CLI.frameInputs(context.Background(), logging.Discard(), framer, o.handle), os.ErrNotExist)
}

func TestFrameInputsCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	if !assert.NoError(t, os.WriteFile(path, []byte("x\ny\n"), 0o600)) {
		t.FailNow()
	}
	framer, err := framing.NewFramer(framing.DefaultProfiles())
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out buffer.Buffer
	o := &writerOutlet{w: bufio.NewWriter(&out), separator: []byte("\n")}
	CLI := &CLI{Profile: framing.DefaultProfileName, Inputs: []string{path}}
	assert.ErrorIs(t, CLI.frameInputs(ctx, logging.Discard(), framer, o.handle), context.Canceled)
	assert.Equal(t, 0, out.Len())
}

type failingWriter struct {
	err    error
	writes int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, w.err
}

func TestWriterOutletWriteError(t *testing.T) {
	errDisk := errors.New("disk full")
	sink := &failingWriter{err: errDisk}
	o := &writerOutlet{w: bufio.NewWriterSize(sink, 16), separator: []byte("\n")}
	err := o.handle(context.Background(), nil, []byte(strings.Repeat("x", 32)))
	assert.ErrorIs(t, err, errDisk)
	assert.Equal(t, 1, sink.writes)
}
