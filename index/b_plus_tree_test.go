package index

import (
	"cmp"
	"fmt"
	"os"
	"path"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobala/petrocore/buffer"
	"github.com/jobala/petrocore/storage/disk"
)

func newTestTree(t *testing.T, poolSize int, leafMax, internalMax int32) *BPlusTree[int, string] {
	t.Helper()
	dbFile := path.Join(t.TempDir(), "test.db")
	file, err := os.OpenFile(dbFile, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, file.Truncate(int64(poolSize+64)*disk.PageSize))
	t.Cleanup(func() { _ = file.Close() })

	bpm := buffer.NewBufferpoolManager(poolSize, disk.NewScheduler(disk.NewManager(file)))
	tree, err := NewBPlusTree[int, string]("test-index", bpm, leafMax, internalMax)
	require.NoError(t, err)
	return tree
}

func collect[K cmp.Ordered, V any](t *testing.T, tree *BPlusTree[K, V]) []K {
	t.Helper()
	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()

	var keys []K
	for !it.IsEnd() {
		k, _, err := it.Next()
		require.NoError(t, err)
		keys = append(keys, k)
	}
	return keys
}

func TestBPlusTreeEmptyInsert(t *testing.T) {
	tree := newTestTree(t, 16, 4, 4)

	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	ok, err := tree.Insert(10, "r10")
	require.NoError(t, err)
	assert.True(t, ok)

	empty, err = tree.IsEmpty()
	require.NoError(t, err)
	assert.False(t, empty)

	val, err := tree.GetValue(10)
	require.NoError(t, err)
	assert.Equal(t, "r10", val)
}

func TestBPlusTreeDuplicateInsertFails(t *testing.T) {
	tree := newTestTree(t, 16, 4, 4)

	ok, err := tree.Insert(10, "r10")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tree.Insert(10, "other")
	require.NoError(t, err)
	assert.False(t, ok)

	val, err := tree.GetValue(10)
	require.NoError(t, err)
	assert.Equal(t, "r10", val)
}

func TestBPlusTreeLeafSplit(t *testing.T) {
	tree := newTestTree(t, 16, 4, 4)

	for _, k := range []int{10, 20, 30, 40} {
		ok, err := tree.Insert(k, fmt.Sprintf("r%d", k))
		require.NoError(t, err)
		assert.True(t, ok)
	}

	rootID, err := tree.GetRootPageID()
	require.NoError(t, err)

	guard, err := tree.bpm.FetchPageRead(rootID)
	require.NoError(t, err)
	defer guard.Drop()
	assert.Equal(t, internalPageType, peekPageType(guard.Data()))

	root, err := decodePage[InternalPage[int]](guard.Data())
	require.NoError(t, err)
	assert.EqualValues(t, 2, root.Size)
	assert.Equal(t, 30, root.keyAt(1))

	assert.Equal(t, []int{10, 20, 30, 40}, collect(t, tree))
}

func TestBPlusTreeInternalCascade(t *testing.T) {
	tree := newTestTree(t, 32, 4, 4)

	for _, k := range []int{10, 20, 30, 40, 50, 60, 70, 80, 90} {
		ok, err := tree.Insert(k, fmt.Sprintf("r%d", k))
		require.NoError(t, err)
		assert.True(t, ok)
	}

	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90}, collect(t, tree))

	for _, k := range []int{10, 20, 30, 40, 50, 60, 70, 80, 90} {
		val, err := tree.GetValue(k)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("r%d", k), val)
	}
}

func TestBPlusTreeRedistributeOnDelete(t *testing.T) {
	tree := newTestTree(t, 32, 4, 4)
	for _, k := range []int{10, 20, 30, 40, 50, 60, 70, 80, 90} {
		_, err := tree.Insert(k, fmt.Sprintf("r%d", k))
		require.NoError(t, err)
	}

	require.NoError(t, tree.Remove(10))

	_, err := tree.GetValue(10)
	assert.Error(t, err)

	for _, k := range []int{20, 30, 40, 50, 60, 70, 80, 90} {
		val, err := tree.GetValue(k)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("r%d", k), val)
	}
	assert.Equal(t, []int{20, 30, 40, 50, 60, 70, 80, 90}, collect(t, tree))
}

func TestBPlusTreeMergeCollapsesRoot(t *testing.T) {
	tree := newTestTree(t, 16, 4, 4)
	for _, k := range []int{10, 20, 30, 40} {
		_, err := tree.Insert(k, fmt.Sprintf("r%d", k))
		require.NoError(t, err)
	}

	require.NoError(t, tree.Remove(40))
	require.NoError(t, tree.Remove(30))

	rootID, err := tree.GetRootPageID()
	require.NoError(t, err)

	guard, err := tree.bpm.FetchPageRead(rootID)
	require.NoError(t, err)
	defer guard.Drop()
	assert.Equal(t, leafPageType, peekPageType(guard.Data()))

	assert.Equal(t, []int{10, 20}, collect(t, tree))
}

func TestBPlusTreeRemoveMissingKeyIsNoop(t *testing.T) {
	tree := newTestTree(t, 16, 4, 4)
	_, err := tree.Insert(10, "r10")
	require.NoError(t, err)

	require.NoError(t, tree.Remove(999))
	require.NoError(t, tree.Remove(999))

	val, err := tree.GetValue(10)
	require.NoError(t, err)
	assert.Equal(t, "r10", val)
}

func TestBPlusTreeIteratorCoversAll(t *testing.T) {
	tree := newTestTree(t, 32, 4, 4)
	for _, k := range []int{10, 20, 30, 40, 50, 60, 70, 80, 90} {
		_, err := tree.Insert(k, fmt.Sprintf("r%d", k))
		require.NoError(t, err)
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()

	var got []int
	for !it.IsEnd() {
		k, v, err := it.Next()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("r%d", k), v)
		got = append(got, k)
	}
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90}, got)

	startIt, err := tree.BeginAt(35)
	require.NoError(t, err)
	defer startIt.Close()
	k, _, err := startIt.Next()
	require.NoError(t, err)
	assert.Equal(t, 40, k)
}

func TestBPlusTreeGetKeyRange(t *testing.T) {
	tree := newTestTree(t, 32, 4, 4)
	for _, k := range []int{10, 20, 30, 40, 50, 60, 70, 80, 90} {
		_, err := tree.Insert(k, fmt.Sprintf("r%d", k))
		require.NoError(t, err)
	}

	vals, err := tree.GetKeyRange(25, 65)
	require.NoError(t, err)
	assert.Equal(t, []string{"r30", "r40", "r50", "r60"}, vals)
}

func TestBPlusTreeDeepDeleteCascadesInternalNodes(t *testing.T) {
	tree := newTestTree(t, 64, 4, 4)

	const n = 400
	for k := 0; k < n; k++ {
		_, err := tree.Insert(k, fmt.Sprintf("r%d", k))
		require.NoError(t, err)
	}

	rootID, err := tree.GetRootPageID()
	require.NoError(t, err)
	guard, err := tree.bpm.FetchPageRead(rootID)
	require.NoError(t, err)
	require.Equal(t, internalPageType, peekPageType(guard.Data()))
	root, err := decodePage[InternalPage[int]](guard.Data())
	guard.Drop()
	require.NoError(t, err)

	// an internal root whose own children are internal pages confirms a
	// 3+ level tree, so deleting through the middle below forces
	// cascading redistribute/merge at the internal level, not just leaves.
	childGuard, err := tree.bpm.FetchPageRead(root.valueAt(0))
	require.NoError(t, err)
	childIsInternal := peekPageType(childGuard.Data()) == internalPageType
	childGuard.Drop()
	require.True(t, childIsInternal, "fan-out too shallow to exercise internal coalesce/redistribute")

	// delete a large contiguous run out of the middle: as the gap widens,
	// nodes on both the left and right edges of the deleted range need to
	// redistribute from or merge with siblings on either side.
	for k := 50; k < 350; k++ {
		require.NoError(t, tree.Remove(k))
	}

	var want []int
	for k := 0; k < 50; k++ {
		want = append(want, k)
	}
	for k := 350; k < n; k++ {
		want = append(want, k)
	}
	assert.Equal(t, want, collect(t, tree))

	for _, k := range want {
		val, err := tree.GetValue(k)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("r%d", k), val)
	}
	for k := 50; k < 350; k++ {
		_, err := tree.GetValue(k)
		assert.Error(t, err)
	}
}

func TestBPlusTreeConcurrentDisjointInserts(t *testing.T) {
	tree := newTestTree(t, 64, 4, 4)

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := base*1000 + i
				_, err := tree.Insert(key, fmt.Sprintf("r%d", key))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	keys := collect(t, tree)
	assert.Len(t, keys, workers*perWorker)
	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1], keys[i])
	}
}
