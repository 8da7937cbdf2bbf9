package obj

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func internAll(n int) []*String {
	h := NewHeap()
	keys := make([]*String, n)
	for i := 0; i < n; i++ {
		keys[i] = h.Intern(fmt.Sprintf("key-%d", i))
	}
	return keys
}

func TestTableSetGetDelete(t *testing.T) {
	var tbl Table
	keys := internAll(3)

	require.True(t, tbl.Set(keys[0], Number(1)))
	require.True(t, tbl.Set(keys[1], Number(2)))
	require.False(t, tbl.Set(keys[0], Number(11))) // update, not a new key

	v, ok := tbl.Get(keys[0])
	require.True(t, ok)
	require.Equal(t, Number(11), v)

	_, ok = tbl.Get(keys[2])
	require.False(t, ok)

	require.True(t, tbl.Delete(keys[1]))
	_, ok = tbl.Get(keys[1])
	require.False(t, ok)
	require.False(t, tbl.Delete(keys[1])) // already gone
}

func TestTableTombstoneReuseKeepsCountAndCapacity(t *testing.T) {
	const n = 20
	var tbl Table
	keys := internAll(n)

	for _, k := range keys {
		tbl.Set(k, Bool(true))
	}
	countAfterInsert := tbl.Count()
	capAfterInsert := len(tbl.entries)

	for _, k := range keys {
		tbl.Delete(k)
	}
	require.Equal(t, countAfterInsert, tbl.Count(), "delete must not shrink count")

	// fresh table, reinsert the same N keys
	var fresh Table
	for _, k := range keys {
		fresh.Set(k, Bool(true))
	}
	require.Equal(t, n, fresh.Count())
	require.Equal(t, capAfterInsert, len(fresh.entries))

	// reinsert into the tombstoned table: count and capacity must not grow
	for _, k := range keys {
		tbl.Set(k, Bool(true))
	}
	require.Equal(t, countAfterInsert, tbl.Count())
	require.Equal(t, capAfterInsert, len(tbl.entries))
}

func TestTableGrowthDropsTombstonesAndRecomputesCount(t *testing.T) {
	var tbl Table
	keys := internAll(10)
	for _, k := range keys {
		tbl.Set(k, Bool(true))
	}
	for _, k := range keys[:5] {
		tbl.Delete(k)
	}
	require.Equal(t, 10, tbl.Count())

	// force growth with a fresh batch of distinct keys
	more := internAll(40)
	for i, k := range more {
		tbl.Set(k, Number(i))
	}

	// after growth, count reflects only live entries: the 5 surviving
	// original keys plus the 40 new ones, no tombstones carried forward.
	require.Equal(t, 45, tbl.Count())
	for _, e := range tbl.entries {
		if e.key == nil {
			require.Nil(t, e.value, "no tombstones should survive a grow")
		}
	}
}

func TestFindStringComparesContentNotIdentity(t *testing.T) {
	h := NewHeap()
	s := h.Intern("hello")
	require.Same(t, s, h.strings.FindString("hello", hashFNV1a("hello")))
	require.Nil(t, h.strings.FindString("nope", hashFNV1a("nope")))
}

func TestAddAllCopiesLiveEntries(t *testing.T) {
	var src, dst Table
	keys := internAll(3)
	src.Set(keys[0], Number(1))
	src.Set(keys[1], Number(2))
	src.Delete(keys[1])
	src.Set(keys[2], Number(3))

	dst.AddAll(&src)
	v, ok := dst.Get(keys[0])
	require.True(t, ok)
	require.Equal(t, Number(1), v)
	_, ok = dst.Get(keys[1])
	require.False(t, ok)
	v, ok = dst.Get(keys[2])
	require.True(t, ok)
	require.Equal(t, Number(3), v)
}
