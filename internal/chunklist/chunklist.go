package chunklist

import (
	"sort"

	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/gammazero/deque"
)

type segment struct {
	data   []byte // owned, pool-allocated
	start  int    // first live byte in data
	offset int    // logical position of data[start] in the list
}

func (s *segment) len() int {
	return len(s.data) - s.start
}

// List is an append-only sequence of byte segments addressed as one
// logical byte string. Bytes are only ever removed from the front.
//
// The list copies everything added to it, and never hands out its
// segments: Slice and Concat return fresh copies.
type List struct {
	segments *deque.Deque[*segment]
	size     int
}

func New() *List {
	return &List{segments: deque.New[*segment]()}
}

func (l *List) deque() *deque.Deque[*segment] {
	if l.segments == nil {
		l.segments = deque.New[*segment]()
	}
	return l.segments
}

// Len returns the total number of bytes held.
func (l *List) Len() int {
	return l.size
}

// Add appends a copy of p.
func (l *List) Add(p []byte) {
	if len(p) == 0 {
		return
	}
	data := mcache.Malloc(len(p))
	copy(data, p)
	l.deque().PushBack(&segment{data: data, offset: l.size})
	l.size += len(p)
}

// index returns the index of the segment holding logical position pos.
func (l *List) index(pos int) int {
	d := l.deque()
	return sort.Search(d.Len(), func(i int) bool {
		s := d.At(i)
		return pos < s.offset+s.len()
	})
}

// At returns the byte at logical position i. It panics if i is out of
// range.
func (l *List) At(i int) byte {
	if i < 0 || i >= l.size {
		panic("chunklist: index out of range")
	}
	s := l.deque().At(l.index(i))
	return s.data[s.start+i-s.offset]
}

// Slice returns a copy of the bytes in [start, end). It panics if the
// range is invalid.
func (l *List) Slice(start, end int) []byte {
	if start < 0 || end > l.size || start > end {
		panic("chunklist: slice bounds out of range")
	}
	out := make([]byte, end-start)
	if start == end {
		return out
	}
	d := l.deque()
	n := 0
	for i := l.index(start); n < len(out) && i < d.Len(); i++ {
		s := d.At(i)
		from := s.start
		if start > s.offset {
			from += start - s.offset
		}
		n += copy(out[n:], s.data[from:])
	}
	return out
}

// Concat returns a copy of everything held.
func (l *List) Concat() []byte {
	return l.Slice(0, l.size)
}

// Shift drops the first n bytes.
func (l *List) Shift(n int) {
	if n <= 0 {
		return
	}
	if n >= l.size {
		l.Reset()
		return
	}
	d := l.deque()
	for d.Len() > 0 {
		s := d.Front()
		if n < s.offset+s.len() {
			s.start += n - s.offset
			break
		}
		mcache.Free(d.PopFront().data)
	}
	offset := 0
	for i := 0; i < d.Len(); i++ {
		s := d.At(i)
		s.offset = offset
		offset += s.len()
	}
	l.size = offset
}

// Reset drops everything and returns the segments to the pool.
func (l *List) Reset() {
	d := l.deque()
	for d.Len() > 0 {
		mcache.Free(d.PopFront().data)
	}
	l.size = 0
}
