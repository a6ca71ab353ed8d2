package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RefreshesImmediatelyAndStops(t *testing.T) {
	refresher := &fakeRefresher{}
	cache := NewCache(refresher, time.Hour)

	s, err := NewScheduler(cache, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return cache.Current() != nil
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.Equal(t, int32(1), refresher.calls.Load())
}
