// Package streamtest provides scripted sources and sinks for tests.
package streamtest

import (
	"io"
)

// ChunkSource returns its chunks one Read at a time, never merging two
// chunks into one read, then returns Err (io.EOF when nil).
type ChunkSource struct {
	Chunks [][]byte
	Err    error
	Reads  int
}

func NewChunkSource(chunks ...string) *ChunkSource {
	s := &ChunkSource{}
	for _, c := range chunks {
		s.Chunks = append(s.Chunks, []byte(c))
	}
	return s
}

// Split cuts data into consecutive chunks of the given sizes; whatever is
// left becomes the last chunk.
func Split(data []byte, sizes ...int) *ChunkSource {
	s := &ChunkSource{}
	for _, n := range sizes {
		if n > len(data) {
			n = len(data)
		}
		s.Chunks = append(s.Chunks, data[:n])
		data = data[n:]
	}
	if len(data) > 0 {
		s.Chunks = append(s.Chunks, data)
	}
	return s
}

func (s *ChunkSource) Read(p []byte) (int, error) {
	s.Reads++
	if len(s.Chunks) == 0 {
		if s.Err != nil {
			return 0, s.Err
		}
		return 0, io.EOF
	}
	c := s.Chunks[0]
	n := copy(p, c)
	if n < len(c) {
		s.Chunks[0] = c[n:]
	} else {
		s.Chunks = s.Chunks[1:]
	}
	return n, nil
}

// ShortSink accepts at most Max bytes per Write and records everything it
// accepted. After FailAfter successful writes (when positive) it fails
// with Err.
type ShortSink struct {
	Max       int
	FailAfter int
	Err       error
	Writes    int
	Data      []byte
}

func (s *ShortSink) Write(p []byte) (int, error) {
	if s.FailAfter > 0 && s.Writes >= s.FailAfter {
		return 0, s.Err
	}
	s.Writes++
	if s.Max > 0 && len(p) > s.Max {
		p = p[:s.Max]
	}
	s.Data = append(s.Data, p...)
	return len(p), nil
}
