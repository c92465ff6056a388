package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carrodher/loadBalancer/internal/flow"
)

var (
	hostA = flow.HwAddr{0, 0, 0, 0, 0, 0xa}
	hostB = flow.HwAddr{0, 0, 0, 0, 0, 0xb}
	hostC = flow.HwAddr{0, 0, 0, 0, 0, 0xc}
)

func tables(t *testing.T) map[string]Table {
	lruTable, err := NewLRUTable(16)
	require.NoError(t, err)
	return map[string]Table{
		"map": NewTable(),
		"lru": lruTable,
	}
}

func TestLearnIsFirstSeenSticky(t *testing.T) {
	for name, table := range tables(t) {
		t.Run(name, func(t *testing.T) {
			assert.True(t, table.Learn(hostA, 1))
			assert.False(t, table.Learn(hostA, 2))
			assert.False(t, table.Learn(hostA, 3))

			port, ok := table.Lookup(hostA)
			require.True(t, ok)
			assert.Equal(t, uint16(1), port)
			assert.Equal(t, 1, table.Len())
		})
	}
}

func TestLookupMiss(t *testing.T) {
	for name, table := range tables(t) {
		t.Run(name, func(t *testing.T) {
			table.Learn(hostA, 1)
			_, ok := table.Lookup(hostB)
			assert.False(t, ok)
			assert.Equal(t, 1, table.Len())
		})
	}
}

func TestLRUTableEvictsLeastRecentlyUsed(t *testing.T) {
	table, err := NewLRUTable(2)
	require.NoError(t, err)

	table.Learn(hostA, 1)
	table.Learn(hostB, 2)
	// touch A so that B becomes the eviction candidate
	_, ok := table.Lookup(hostA)
	require.True(t, ok)
	table.Learn(hostC, 3)

	assert.Equal(t, 2, table.Len())
	_, ok = table.Lookup(hostB)
	assert.False(t, ok)
	port, ok := table.Lookup(hostA)
	assert.True(t, ok)
	assert.Equal(t, uint16(1), port)

	// an evicted station is learned again on its new port
	assert.True(t, table.Learn(hostB, 7))
	port, _ = table.Lookup(hostB)
	assert.Equal(t, uint16(7), port)
}

func TestNew(t *testing.T) {
	table, err := New(0)
	require.NoError(t, err)
	assert.IsType(t, &MapTable{}, table)

	table, err = New(8)
	require.NoError(t, err)
	assert.IsType(t, &LRUTable{}, table)
}
