package serv

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/buildstate/fm-sync/api"
)

const (
	defaultCompressionThreshold = 1 << 20 // 1 MiB
	defaultUploadQueueDepth     = 16
)

// UploadItemState tracks one file through the queue.
type UploadItemState string

const (
	UploadPending     UploadItemState = "pending"
	UploadCompressing UploadItemState = "compressing"
	UploadActive      UploadItemState = "uploading"
	UploadCompleted   UploadItemState = "completed"
	UploadErrored     UploadItemState = "error"
)

// UploadItem is one file inside a batch. Its payload is held in memory
// until the transfer settles and is released afterwards.
type UploadItem struct {
	Name        string
	ContentType string

	mu     sync.Mutex
	data   []byte
	state  UploadItemState
	err    error
	stored *api.UploadedFile
}

// State returns the item's current state and, when errored, its error.
func (it *UploadItem) State() (UploadItemState, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.state, it.err
}

// Stored returns the storage record once the item is completed.
func (it *UploadItem) Stored() *api.UploadedFile {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.stored
}

func (it *UploadItem) setState(s UploadItemState) {
	it.mu.Lock()
	it.state = s
	it.mu.Unlock()
}

func (it *UploadItem) settle(stored *api.UploadedFile, err error) {
	it.mu.Lock()
	if err != nil {
		it.state = UploadErrored
		it.err = err
	} else {
		it.state = UploadCompleted
		it.stored = stored
	}
	it.data = nil
	it.mu.Unlock()
}

// UploadBatch is one enqueued group of files. Batches are processed
// strictly in enqueue order, one at a time; a batch settles fully,
// success or not, before the next one starts.
type UploadBatch struct {
	ID string

	items       []*UploadItem
	total       int64
	transferred atomic.Int64
	done        chan struct{}

	// onDone runs after every item has settled, with the records of
	// the items that completed.
	onDone func(ctx context.Context, stored []api.UploadedFile) error
}

// Items returns the batch's items in order.
func (b *UploadBatch) Items() []*UploadItem { return b.items }

// Progress reports bytes transferred so far and the batch total.
func (b *UploadBatch) Progress() (transferred, total int64) {
	return b.transferred.Load(), b.total
}

// Done is closed when every item in the batch has settled.
func (b *UploadBatch) Done() <-chan struct{} { return b.done }

// Wait blocks until the batch settles or ctx ends.
func (b *UploadBatch) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return nil
	}
}

// Errs returns the errors of items that failed, if any.
func (b *UploadBatch) Errs() []error {
	var errs []error
	for _, it := range b.items {
		if _, err := it.State(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

type uploader interface {
	Upload(ctx context.Context, files []api.UploadFile) ([]api.UploadedFile, error)
}

// uploadQueue transfers file batches in FIFO order on a single worker
// goroutine. One item in one batch is in flight at any moment, so a
// large photo set cannot starve the API connection, and an item
// failing marks only that item.
type uploadQueue struct {
	up        uploader
	log       *zap.SugaredLogger
	threshold int64

	queue chan *UploadBatch
	wg    sync.WaitGroup

	// mu guards closed and orders enqueue sends against close, so an
	// enqueue can never send on a closed channel.
	mu     sync.Mutex
	closed bool
}

func newUploadQueue(up uploader, conf UploadConfig, log *zap.SugaredLogger) *uploadQueue {
	threshold := conf.CompressionThreshold
	if threshold <= 0 {
		threshold = defaultCompressionThreshold
	}
	depth := conf.QueueDepth
	if depth <= 0 {
		depth = defaultUploadQueueDepth
	}

	q := &uploadQueue{
		up:        up,
		log:       log,
		threshold: threshold,
		queue:     make(chan *UploadBatch, depth),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

var errUploadQueueClosed = errors.New("upload queue closed")

// enqueue reads every file into memory and appends the batch to the
// queue. Reading up front fixes the batch's byte total for progress
// reporting and frees the caller's readers immediately.
func (q *uploadQueue) enqueue(files []api.UploadFile, onDone func(ctx context.Context, stored []api.UploadedFile) error) (*UploadBatch, error) {
	if len(files) == 0 {
		return nil, errors.New("empty upload batch")
	}

	b := &UploadBatch{
		ID:     xid.New().String(),
		done:   make(chan struct{}),
		onDone: onDone,
	}
	for _, f := range files {
		data, err := io.ReadAll(f.Reader)
		if err != nil {
			return nil, err
		}
		b.items = append(b.items, &UploadItem{
			Name:        f.Name,
			ContentType: f.ContentType,
			data:        data,
			state:       UploadPending,
		})
		b.total += int64(len(data))
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, errUploadQueueClosed
	}
	q.queue <- b
	return b, nil
}

func (q *uploadQueue) run() {
	defer q.wg.Done()
	for b := range q.queue {
		q.process(b)
	}
}

func (q *uploadQueue) process(b *UploadBatch) {
	ctx := context.Background()

	var stored []api.UploadedFile
	for _, it := range b.items {
		size := int64(len(it.data))

		payload, name, ct := it.data, it.Name, it.ContentType
		if size > q.threshold && compressible(ct) {
			it.setState(UploadCompressing)
			if packed, err := compress(payload); err == nil && int64(len(packed)) < size {
				payload, name, ct = packed, name+".gz", "application/gzip"
			}
		}

		it.setState(UploadActive)
		recs, err := q.up.Upload(ctx, []api.UploadFile{{
			Name:        name,
			ContentType: ct,
			Reader:      bytes.NewReader(payload),
		}})
		switch {
		case err != nil:
			q.log.Warnw("upload failed", "batch", b.ID, "file", it.Name, "error", err)
			it.settle(nil, err)
		case len(recs) == 0:
			it.settle(nil, errors.New("storage returned no file record"))
		default:
			rec := recs[0]
			it.settle(&rec, nil)
			stored = append(stored, rec)
		}
		b.transferred.Add(size)
	}

	if b.onDone != nil && len(stored) > 0 {
		if err := b.onDone(ctx, stored); err != nil {
			q.log.Warnw("upload batch completion hook failed", "batch", b.ID, "error", err)
		}
	}
	close(b.done)
}

// close drains the queue and stops the worker. Pending batches still
// run to completion.
func (q *uploadQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.queue)
	q.mu.Unlock()

	q.wg.Wait()
}

// compressible reports whether gzipping the payload can help. Images
// and archives arrive pre-compressed.
func compressible(contentType string) bool {
	switch {
	case strings.HasPrefix(contentType, "image/"),
		strings.HasPrefix(contentType, "video/"),
		contentType == "application/zip",
		contentType == "application/gzip":
		return false
	}
	return true
}
