package types

import (
	"context"
	"time"
)

// FrameDescriptor tells an outlet where a frame came from.
type FrameDescriptor struct {
	Origin    string
	Profile   string
	Sequence  uint64
	Timestamp time.Time
}

// Outlet receives every frame cut from a stream. The frame is only valid
// for the duration of the call.
type Outlet func(ctx context.Context, fd *FrameDescriptor, frame []byte) error
