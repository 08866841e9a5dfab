package disk

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Request is a single pending disk I/O, along with the channel its result is
// delivered on.
type Request struct {
	PageID int64
	Data   []byte
	Write  bool
	RespCh chan Response
}

// Response is the outcome of a scheduled Request.
type Response struct {
	Success bool
	Data    []byte
	Err     error
}

// NewReadRequest builds a read Request for pageId.
func NewReadRequest(pageID int64) Request {
	return Request{PageID: pageID, RespCh: make(chan Response, 1)}
}

// NewWriteRequest builds a write Request persisting data for pageId.
func NewWriteRequest(pageID int64, data []byte) Request {
	return Request{PageID: pageID, Data: data, Write: true, RespCh: make(chan Response, 1)}
}

// Scheduler fans disk requests for distinct pages out across independent
// per-page worker goroutines, while serializing requests that target the
// same page id through a single channel, so concurrent buffer pool fetches
// never race each other on one page's bytes.
type Scheduler struct {
	manager *Manager

	mu    sync.Mutex
	queue map[int64]chan Request
}

// NewScheduler builds a scheduler fronting manager. It starts no goroutine
// itself; Schedule starts a page's worker when that page has none.
func NewScheduler(manager *Manager) *Scheduler {
	s := &Scheduler{
		manager: manager,
		queue:   make(map[int64]chan Request),
	}
	return s
}

// Schedule enqueues req and returns the channel its Response will arrive on.
func (s *Scheduler) Schedule(req Request) <-chan Response {
	s.mu.Lock()
	q, ok := s.queue[req.PageID]
	if !ok {
		q = make(chan Request, 16)
		s.queue[req.PageID] = q
	}
	q <- req
	if !ok {
		go s.pageWorker(req.PageID, q)
	}
	s.mu.Unlock()

	return req.RespCh
}

// pageWorker drains reqQueue for a single page id until it observes an empty
// queue, then deregisters itself. The final emptiness check and the
// deregistration happen together under s.mu so Schedule can never hand a
// request to a worker that has already decided to exit.
func (s *Scheduler) pageWorker(pageID int64, reqQueue chan Request) {
	for {
		select {
		case req := <-reqQueue:
			s.execute(req)
			continue
		default:
		}

		s.mu.Lock()
		select {
		case req := <-reqQueue:
			s.mu.Unlock()
			s.execute(req)
		default:
			delete(s.queue, pageID)
			s.mu.Unlock()
			return
		}
	}
}

func (s *Scheduler) execute(req Request) {
	if req.Write {
		err := s.manager.WritePage(req.PageID, req.Data)
		if err != nil {
			log.WithError(err).WithField("page_id", req.PageID).Warn("disk scheduler: write failed")
		}
		req.RespCh <- Response{Success: err == nil, Err: err}
		return
	}

	buf := make([]byte, PageSize)
	err := s.manager.ReadPage(req.PageID, buf)
	if err != nil {
		log.WithError(err).WithField("page_id", req.PageID).Warn("disk scheduler: read failed")
	}
	req.RespCh <- Response{Success: err == nil, Data: buf, Err: err}
}
