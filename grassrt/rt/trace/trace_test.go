package trace

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, w.Write(Record{Update: uint64(i + 1), ChunkX: int32(i), ChunkZ: -1, Active: 9, Created: i % 3}))
	}
	require.NoError(t, w.Close())
	assert.Error(t, w.Write(Record{}))
	assert.NoError(t, w.Close())

	recs, err := ReadAll(&buf)
	require.NoError(t, err)
	require.Len(t, recs, 50)
	assert.Equal(t, uint64(17), recs[16].Update)
	assert.Equal(t, int32(16), recs[16].ChunkX)
	assert.Equal(t, int32(-1), recs[16].ChunkZ)
	assert.Equal(t, 1, recs[16].Created)
}

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces", "run.jsonl.zst")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(Record{Update: 1, Active: 25}))
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := ReadAll(f)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 25, recs[0].Active)
}
