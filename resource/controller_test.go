package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackgroundSlots(t *testing.T) {
	c := NewController(Config{MaxBackgroundWorkers: 2})

	require.True(t, c.TryAcquireBackground())
	require.True(t, c.TryAcquireBackground())
	require.False(t, c.TryAcquireBackground())
	require.Equal(t, int64(2), c.BackgroundActive())

	c.ReleaseBackground()
	require.True(t, c.TryAcquireBackground())

	c.ReleaseBackground()
	c.ReleaseBackground()
	require.Zero(t, c.BackgroundActive())
}

func TestAcquireBackgroundHonorsContext(t *testing.T) {
	c := NewController(Config{MaxBackgroundWorkers: 1})
	require.NoError(t, c.AcquireBackground(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.AcquireBackground(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	c.ReleaseBackground()
}

func TestAcquireIOSplitsLargeRequests(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	// Slightly larger than burst: must still succeed by splitting.
	err := c.AcquireIO(context.Background(), (1<<20)+4096)
	require.NoError(t, err)
}

func TestNilControllerIsUnlimited(t *testing.T) {
	var c *Controller

	require.NoError(t, c.AcquireBackground(context.Background()))
	require.True(t, c.TryAcquireBackground())
	c.ReleaseBackground()
	require.Zero(t, c.BackgroundActive())
	require.NoError(t, c.AcquireIO(context.Background(), 1<<30))
}
