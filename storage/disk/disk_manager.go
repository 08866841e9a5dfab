package disk

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Manager is a file-backed block store. Page ids are handed to it already
// dense and monotonically allocated by the buffer pool, so a page's byte
// offset is simply pageId*PageSize; the manager never has to track its
// own allocation table.
type Manager struct {
	mu       sync.Mutex
	dbFile   *os.File
	capacity int64 // pages the file is currently sized for
}

// NewManager wraps an already-open file as a page store.
func NewManager(file *os.File) *Manager {
	return &Manager{
		dbFile:   file,
		capacity: defaultPageCapacity,
	}
}

// ReadPage fills buf with exactly PageSize bytes for pageId.
func (m *Manager) ReadPage(pageID int64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureCapacityLocked(pageID); err != nil {
		return errors.Wrapf(err, "disk: growing file for page %d", pageID)
	}

	offset := pageID * PageSize
	if _, err := m.dbFile.ReadAt(buf[:PageSize], offset); err != nil {
		return errors.Wrapf(err, "disk: reading page %d at offset %d", pageID, offset)
	}
	return nil
}

// WritePage persists data (exactly PageSize bytes) for pageId.
func (m *Manager) WritePage(pageID int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureCapacityLocked(pageID); err != nil {
		return errors.Wrapf(err, "disk: growing file for page %d", pageID)
	}

	offset := pageID * PageSize
	if _, err := m.dbFile.WriteAt(data[:PageSize], offset); err != nil {
		return errors.Wrapf(err, "disk: writing page %d at offset %d", pageID, offset)
	}
	return nil
}

// ensureCapacityLocked doubles the backing file's size until pageId fits.
// mu must be held.
func (m *Manager) ensureCapacityLocked(pageID int64) error {
	for pageID >= m.capacity {
		m.capacity *= 2
		log.WithFields(log.Fields{"page_id": pageID, "capacity": m.capacity}).
			Debug("disk: growing db file")
		if err := m.dbFile.Truncate(m.capacity * PageSize); err != nil {
			return err
		}
	}
	return nil
}
