// Package framing cuts byte streams into frames according to named
// profiles.
package framing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/moriyoshi/bytestream/bufio"
	"github.com/moriyoshi/bytestream/delim"
	"github.com/moriyoshi/bytestream/internal/logging"
)

type Framer struct {
	profiles          map[string]*Profile
	defaultBufferSize int
	logger            *slog.Logger
}

type FramerOptionFunc func(*Framer) (*Framer, error)

func WithLogger(logger *slog.Logger) FramerOptionFunc {
	return func(f *Framer) (*Framer, error) {
		f.logger = logging.OrDiscard(logger)
		return f, nil
	}
}

// WithDefaultBufferSize sets the buffer size of profiles that do not name
// one.
func WithDefaultBufferSize(n int) FramerOptionFunc {
	return func(f *Framer) (*Framer, error) {
		if n < 0 {
			return nil, fmt.Errorf("negative default buffer size: %d", n)
		}
		f.defaultBufferSize = n
		return f, nil
	}
}

func NewFramerFromYAML(b []byte, options ...FramerOptionFunc) (*Framer, error) {
	var ps Profiles
	err := yaml.Unmarshal(b, &ps)
	if err != nil {
		return nil, err
	}
	return NewFramer(ps, options...)
}

func NewFramerFromYAMLFile(path string, options ...FramerOptionFunc) (*Framer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewFramerFromYAML(b, options...)
}

func NewFramer(ps Profiles, options ...FramerOptionFunc) (*Framer, error) {
	f := &Framer{
		profiles: make(map[string]*Profile, len(ps)),
		logger:   logging.Discard(),
	}
	for _, option := range options {
		var err error
		f, err = option(f)
		if err != nil {
			return nil, err
		}
	}
	for i := range ps {
		p := ps[i]
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, ok := f.profiles[p.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidProfile, p.Name)
		}
		f.profiles[p.Name] = &p
		f.logger.Info(
			"profile",
			slog.String("name", p.Name),
			slog.String("mode", string(p.Mode)),
			slog.String("delimiter", fmt.Sprintf("%q", p.Delimiter)),
			slog.Int("size", p.Size),
		)
	}
	f.logger.Info("framer created", slog.Int("profiles", len(ps)))
	return f, nil
}

// Profile returns a copy of the profile called name.
func (f *Framer) Profile(name string) (Profile, error) {
	p, ok := f.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return *p, nil
}

func (f *Framer) bufferSize(p *Profile) int {
	if p.BufferSize > 0 {
		return p.BufferSize
	}
	if f.defaultBufferSize > 0 {
		return f.defaultBufferSize
	}
	return bufio.DefaultBufSize
}

// Frames returns the frames of src cut by the profile called name. Every
// yielded frame is owned by the caller.
func (f *Framer) Frames(src io.Reader, name string) iter.Seq2[[]byte, error] {
	p, ok := f.profiles[name]
	if !ok {
		return func(yield func([]byte, error) bool) {
			yield(nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name))
		}
	}
	logger := f.logger.With(slog.String("profile", p.Name))
	size := f.bufferSize(p)
	switch p.Mode {
	case ModeLines, ModeDelimiter:
		opts := []delim.OptionFunc{delim.WithBufferSize(size), delim.WithLogger(logger)}
		if p.Encoding != "" {
			opts = append(opts, delim.WithEncoding(p.Encoding))
		}
		var text iter.Seq2[string, error]
		if p.Mode == ModeLines {
			text = delim.ReadLines(src, opts...)
		} else if p.Encoding == "" {
			return delim.ReadDelim(src, p.Delimiter, opts...)
		} else {
			text = delim.ReadStringDelim(src, string(p.Delimiter), opts...)
		}
		return func(yield func([]byte, error) bool) {
			for s, err := range text {
				if !yield([]byte(s), err) || err != nil {
					return
				}
			}
		}
	case ModeByte:
		return func(yield func([]byte, error) bool) {
			r := bufio.NewReader(src, bufio.WithSize(size), bufio.WithLogger(logger))
			d := p.Delimiter[0]
			for {
				frame, err := r.ReadSlice(d)
				if err == io.EOF {
					return
				}
				if err != nil {
					var bfe *bufio.BufferFullError
					if errors.As(err, &bfe) {
						logger.Warn("frame exceeds the buffer", slog.Int("size", r.Size()))
					}
					yield(nil, err)
					return
				}
				if !yield(bytes.Clone(bytes.TrimSuffix(frame, p.Delimiter)), nil) {
					return
				}
			}
		}
	default:
		return func(yield func([]byte, error) bool) {
			r := bufio.NewReader(src, bufio.WithSize(size), bufio.WithLogger(logger))
			for {
				frame, err := r.ReadFull(make([]byte, p.Size))
				if err == io.EOF {
					return
				}
				if !yield(frame, err) || err != nil {
					return
				}
			}
		}
	}
}
