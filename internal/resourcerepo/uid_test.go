package resourcerepo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigneshm/keel/internal/clock"
)

func TestNewUIDSortsByCreationTime(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	earlier, err := newUID(fake)
	require.NoError(t, err)

	fake.Advance(time.Second)
	later, err := newUID(fake)
	require.NoError(t, err)

	assert.Less(t, earlier, later)
}

func TestNewUIDIsUniqueAcrossCalls(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		uid, err := newUID(fake)
		require.NoError(t, err)
		assert.False(t, seen[uid])
		seen[uid] = true
	}
}
