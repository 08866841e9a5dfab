package disk

import (
	"bytes"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskManager(t *testing.T) {
	t.Run("writes then reads back the same page", func(t *testing.T) {
		file := createDbFile(t)
		mgr := NewManager(file)

		data := make([]byte, PageSize)
		copy(data, []byte("hello, world!"))

		require.NoError(t, mgr.WritePage(3, data))

		buf := make([]byte, PageSize)
		require.NoError(t, mgr.ReadPage(3, buf))
		assert.Equal(t, data, buf)
	})

	t.Run("grows the file to fit far-out page ids", func(t *testing.T) {
		file := createDbFile(t)
		mgr := NewManager(file)

		data := make([]byte, PageSize)
		copy(data, []byte("far away"))
		require.NoError(t, mgr.WritePage(100, data))

		info, err := file.Stat()
		require.NoError(t, err)
		assert.True(t, info.Size() >= 101*PageSize)

		buf := make([]byte, PageSize)
		require.NoError(t, mgr.ReadPage(100, buf))
		assert.True(t, bytes.Equal(data, buf))
	})

	t.Run("pages are independent", func(t *testing.T) {
		file := createDbFile(t)
		mgr := NewManager(file)

		for i := int64(0); i < 5; i++ {
			data := make([]byte, PageSize)
			copy(data, []byte{byte('a' + i)})
			require.NoError(t, mgr.WritePage(i, data))
		}

		for i := int64(0); i < 5; i++ {
			buf := make([]byte, PageSize)
			require.NoError(t, mgr.ReadPage(i, buf))
			assert.Equal(t, byte('a'+i), buf[0])
		}
	})
}

func createDbFile(t *testing.T) *os.File {
	t.Helper()
	dbFile := path.Join(t.TempDir(), "test.db")

	file, err := os.OpenFile(dbFile, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, file.Truncate(defaultPageCapacity*PageSize))

	t.Cleanup(func() {
		_ = file.Close()
	})

	return file
}
