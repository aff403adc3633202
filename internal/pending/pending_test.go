package pending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsert_GeneratesIncreasingIDs(t *testing.T) {
	tbl := New()

	id1, err := tbl.Insert(ClientRPC, 0, nil, func(Response) {}, nil)
	require.NoError(t, err)
	id2, err := tbl.Insert(ClientRPC, 0, nil, func(Response) {}, nil)
	require.NoError(t, err)

	assert.Greater(t, id2, id1)
	assert.Equal(t, 2, tbl.Len())
}

func TestInsert_NoCallbacksSkipsInsertion(t *testing.T) {
	tbl := New()

	id, err := tbl.Insert(AttributeFetch, 0, nil, nil, nil)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
	assert.Equal(t, 0, tbl.Len())

	_, ok := tbl.TakeByID(id)
	assert.False(t, ok)
}

func TestInsert_DuplicateLiveIDRejected(t *testing.T) {
	tbl := New()

	id, err := tbl.Insert(ClientRPC, 5, nil, func(Response) {}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 5, id)

	_, err = tbl.Insert(ClientRPC, 5, nil, func(Response) {}, nil)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestFirmwareChunk_ReusesIDAfterCompletion(t *testing.T) {
	tbl := New()

	id, err := tbl.Insert(FirmwareChunk, 0, nil, func(Response) {}, nil)
	require.NoError(t, err)

	_, ok := tbl.TakeByID(id)
	require.True(t, ok)

	// the same id must be insertable again for the next chunk of the image
	_, err = tbl.Insert(FirmwareChunk, id, nil, func(Response) {}, nil)
	assert.NoError(t, err)
}

func TestTakeByFamily_ReturnsFirstMatchInOrder(t *testing.T) {
	tbl := New()

	id1, _ := tbl.Insert(Provision, 0, nil, func(Response) {}, nil)
	_, _ = tbl.Insert(Provision, 0, nil, func(Response) {}, nil)

	e, ok := tbl.TakeByFamily(Provision)
	require.True(t, ok)
	assert.Equal(t, id1, e.ID)
	assert.Equal(t, 1, tbl.Len())
}

func TestTakeByFamily_NoneFound(t *testing.T) {
	tbl := New()
	_, ok := tbl.TakeByFamily(Provision)
	assert.False(t, ok)
}

func TestDrainExpired_OnlyExpiredAndStableOrder(t *testing.T) {
	tbl := New()

	base := time.Now().Add(-time.Hour)
	// manually seed with controlled timestamps via Insert + direct mutation
	id1, _ := tbl.Insert(ClientRPC, 0, "one", func(Response) {}, nil)
	id2, _ := tbl.Insert(ClientRPC, 0, "two", func(Response) {}, nil)
	id3, _ := tbl.Insert(ClientRPC, 0, "three", func(Response) {}, nil)

	tbl.mu.Lock()
	tbl.byID[id1].Submitted = base
	tbl.byID[id2].Submitted = base
	tbl.byID[id3].Submitted = time.Now()
	tbl.mu.Unlock()

	expired := tbl.DrainExpired(time.Now(), 30*time.Second)
	require.Len(t, expired, 2)
	assert.Equal(t, id1, expired[0].ID)
	assert.Equal(t, id2, expired[1].ID)
	assert.Equal(t, 1, tbl.Len())

	remaining, ok := tbl.TakeByID(id3)
	require.True(t, ok)
	assert.Equal(t, "three", remaining.Context)
}

func TestDrainAll_ClearsTableInOrder(t *testing.T) {
	tbl := New()
	id1, _ := tbl.Insert(ClientRPC, 0, nil, func(Response) {}, nil)
	id2, _ := tbl.Insert(ClientRPC, 0, nil, func(Response) {}, nil)

	all := tbl.DrainAll()
	require.Len(t, all, 2)
	assert.Equal(t, id1, all[0].ID)
	assert.Equal(t, id2, all[1].ID)
	assert.Equal(t, 0, tbl.Len())
}

func TestTakeByID_Missing(t *testing.T) {
	tbl := New()
	_, ok := tbl.TakeByID(42)
	assert.False(t, ok)
}
