package serv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/buildstate/fm-sync/api"
)

// fakeUploader records uploads in arrival order and fails names listed
// in failNames.
type fakeUploader struct {
	mu        sync.Mutex
	order     []string
	failNames map[string]bool
	delay     time.Duration
}

func (f *fakeUploader) Upload(ctx context.Context, files []api.UploadFile) ([]api.UploadedFile, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	var out []api.UploadedFile
	for _, file := range files {
		f.mu.Lock()
		f.order = append(f.order, file.Name)
		fail := f.failNames[file.Name]
		f.mu.Unlock()

		if fail {
			return nil, errors.New("storage rejected " + file.Name)
		}
		data, _ := io.ReadAll(file.Reader)
		out = append(out, api.UploadedFile{
			URL:  "https://cdn.example.com/" + file.Name,
			Key:  file.Name,
			Size: int64(len(data)),
			Type: file.ContentType,
		})
	}
	return out, nil
}

func newTestQueue(t *testing.T, up uploader, conf UploadConfig) *uploadQueue {
	t.Helper()
	q := newUploadQueue(up, conf, zaptest.NewLogger(t).Sugar())
	t.Cleanup(q.close)
	return q
}

func photoFile(name string, size int) api.UploadFile {
	return api.UploadFile{
		Name:        name,
		ContentType: "image/jpeg",
		Reader:      bytes.NewReader(bytes.Repeat([]byte{0xAB}, size)),
	}
}

func TestUploadQueueFIFO(t *testing.T) {
	up := &fakeUploader{delay: 5 * time.Millisecond}
	q := newTestQueue(t, up, UploadConfig{})

	var batches []*UploadBatch
	for i := 0; i < 3; i++ {
		b, err := q.enqueue([]api.UploadFile{
			photoFile(fmt.Sprintf("batch%d-a.jpg", i), 10),
			photoFile(fmt.Sprintf("batch%d-b.jpg", i), 10),
		}, nil)
		if err != nil {
			t.Fatal(err)
		}
		batches = append(batches, b)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, b := range batches {
		if err := b.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{
		"batch0-a.jpg", "batch0-b.jpg",
		"batch1-a.jpg", "batch1-b.jpg",
		"batch2-a.jpg", "batch2-b.jpg",
	}
	up.mu.Lock()
	got := up.order
	up.mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("expected %d uploads, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("upload order %v, want %v", got, want)
		}
	}
}

func TestUploadQueueItemFailureIsIsolated(t *testing.T) {
	up := &fakeUploader{failNames: map[string]bool{"bad.jpg": true}}
	q := newTestQueue(t, up, UploadConfig{})

	var storedNames []string
	b, err := q.enqueue([]api.UploadFile{
		photoFile("good1.jpg", 10),
		photoFile("bad.jpg", 10),
		photoFile("good2.jpg", 10),
	}, func(ctx context.Context, stored []api.UploadedFile) error {
		for _, s := range stored {
			storedNames = append(storedNames, s.Key)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	wantStates := []UploadItemState{UploadCompleted, UploadErrored, UploadCompleted}
	for i, it := range b.Items() {
		state, _ := it.State()
		if state != wantStates[i] {
			t.Errorf("item %d state %s, want %s", i, state, wantStates[i])
		}
	}

	if _, err := b.Items()[1].State(); err == nil {
		t.Error("failed item carries no error")
	}
	if len(b.Errs()) != 1 {
		t.Errorf("expected 1 batch error, got %d", len(b.Errs()))
	}
	if len(storedNames) != 2 || storedNames[0] != "good1.jpg" || storedNames[1] != "good2.jpg" {
		t.Errorf("completion hook got %v, want the two completed files", storedNames)
	}
}

func TestUploadQueueProgress(t *testing.T) {
	up := &fakeUploader{}
	q := newTestQueue(t, up, UploadConfig{})

	b, err := q.enqueue([]api.UploadFile{
		photoFile("a.jpg", 100),
		photoFile("b.jpg", 300),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	transferred, total := b.Progress()
	if total != 400 {
		t.Errorf("batch total %d, want 400", total)
	}
	if transferred != 400 {
		t.Errorf("transferred %d, want 400", transferred)
	}
}

func TestUploadQueueReleasesPayloads(t *testing.T) {
	up := &fakeUploader{}
	q := newTestQueue(t, up, UploadConfig{})

	b, err := q.enqueue([]api.UploadFile{photoFile("a.jpg", 100)}, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	it := b.Items()[0]
	it.mu.Lock()
	held := it.data != nil
	it.mu.Unlock()
	if held {
		t.Error("settled item still holds its payload")
	}
}

func TestUploadQueueCompressesLargeDocuments(t *testing.T) {
	up := &fakeUploader{}
	q := newTestQueue(t, up, UploadConfig{CompressionThreshold: 64})

	// Text compresses well; images must pass through untouched.
	text := strings.Repeat("inspection report line\n", 50)
	b, err := q.enqueue([]api.UploadFile{
		{Name: "report.txt", ContentType: "text/plain", Reader: strings.NewReader(text)},
		photoFile("photo.jpg", 200),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	report := b.Items()[0].Stored()
	if report == nil {
		t.Fatal("report not uploaded")
	}
	if report.Key != "report.txt.gz" {
		t.Errorf("large text file not compressed, stored as %q", report.Key)
	}
	if report.Size >= int64(len(text)) {
		t.Errorf("compressed size %d not smaller than original %d", report.Size, len(text))
	}

	photo := b.Items()[1].Stored()
	if photo == nil {
		t.Fatal("photo not uploaded")
	}
	if photo.Key != "photo.jpg" {
		t.Errorf("image was compressed, stored as %q", photo.Key)
	}
}

func TestUploadQueueEnqueueDuringCloseIsSafe(t *testing.T) {
	q := newUploadQueue(&fakeUploader{}, UploadConfig{}, zaptest.NewLogger(t).Sugar())

	// Enqueues racing close must either be accepted or rejected with
	// the closed error, never panic on the closed channel.
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 20; j++ {
				b, err := q.enqueue([]api.UploadFile{photoFile("r.jpg", 1)}, nil)
				if err != nil {
					if !errors.Is(err, errUploadQueueClosed) {
						t.Errorf("unexpected enqueue error: %v", err)
					}
					return
				}
				<-b.Done()
			}
		}()
	}
	close(start)
	time.Sleep(5 * time.Millisecond)
	q.close()
	wg.Wait()
}

func TestUploadQueueClosedRejectsEnqueue(t *testing.T) {
	q := newUploadQueue(&fakeUploader{}, UploadConfig{}, zaptest.NewLogger(t).Sugar())
	q.close()

	if _, err := q.enqueue([]api.UploadFile{photoFile("a.jpg", 1)}, nil); err == nil {
		t.Error("enqueue after close should fail")
	}
}
