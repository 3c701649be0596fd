package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrDiscard(t *testing.T) {
	assert.Same(t, Discard(), OrDiscard(nil))
	l := slog.Default()
	assert.Same(t, l, OrDiscard(l))
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
