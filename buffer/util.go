package buffer

import "io"

// ReadAll drains r and returns everything it produced.
func ReadAll(r io.Reader, options ...OptionFunc) ([]byte, error) {
	b := New(nil, options...)
	_, err := b.ReadFrom(r)
	return b.View(), err
}

// WriteAll writes the whole of p to w, retrying short writes.
func WriteAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n <= 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
