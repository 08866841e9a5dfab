package disk

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler(t *testing.T) {
	t.Run("round-trips a write then a read", func(t *testing.T) {
		file := createDbFile(t)
		scheduler := NewScheduler(NewManager(file))

		data := make([]byte, PageSize)
		copy(data, []byte("scheduled"))

		writeResp := <-scheduler.Schedule(NewWriteRequest(1, data))
		require.True(t, writeResp.Success)

		readResp := <-scheduler.Schedule(NewReadRequest(1))
		require.True(t, readResp.Success)
		assert.True(t, bytes.Equal(data, readResp.Data))
	})

	t.Run("concurrent requests across many pages all complete", func(t *testing.T) {
		file := createDbFile(t)
		scheduler := NewScheduler(NewManager(file))

		var wg sync.WaitGroup
		for i := int64(0); i < 32; i++ {
			wg.Add(1)
			go func(pageID int64) {
				defer wg.Done()
				data := make([]byte, PageSize)
				data[0] = byte(pageID)

				resp := <-scheduler.Schedule(NewWriteRequest(pageID, data))
				assert.True(t, resp.Success)

				readResp := <-scheduler.Schedule(NewReadRequest(pageID))
				assert.True(t, readResp.Success)
				assert.Equal(t, byte(pageID), readResp.Data[0])
			}(i)
		}
		wg.Wait()
	})

	t.Run("repeated requests against the same page reuse and retire workers", func(t *testing.T) {
		file := createDbFile(t)
		scheduler := NewScheduler(NewManager(file))

		for i := 0; i < 10; i++ {
			data := make([]byte, PageSize)
			data[0] = byte(i)
			resp := <-scheduler.Schedule(NewWriteRequest(5, data))
			require.True(t, resp.Success)
		}

		readResp := <-scheduler.Schedule(NewReadRequest(5))
		require.True(t, readResp.Success)
		assert.Equal(t, byte(9), readResp.Data[0])
	})
}
