package uploader

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroker serves the request-upload and confirm endpoints, pointing grants
// at the companion storage server.
type fakeBroker struct {
	storageURL string

	mu             sync.Mutex
	nextID         int
	confirmedIDs   []string
	confirmedKeys  []string
	rejectRequest  string // non-empty: request-upload answers 4xx with this message
	rejectConfirm  string // non-empty: confirm answers 4xx with this message
	requestedNames []string
}

func (b *fakeBroker) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/attachments/request-upload", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FileName    string `json:"fileName"`
			FileSize    int64  `json:"fileSize"`
			ContentType string `json:"contentType"`
			Visibility  string `json:"visibility"`
			ReportID    string `json:"reportId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		b.requestedNames = append(b.requestedNames, req.FileName)
		if b.rejectRequest != "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": b.rejectRequest})
			return
		}
		b.nextID++
		id := b.nextID
		json.NewEncoder(w).Encode(map[string]interface{}{
			"attachmentId": idString(id),
			"uploadUrl":    b.storageURL + "/object-" + idString(id),
			"key":          "attachments/private/org/rep/object-" + idString(id),
			"expiresIn":    300,
		})
	})
	mux.HandleFunc("/api/v1/attachments/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/confirm") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req struct {
			Key string `json:"key"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.rejectConfirm != "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": b.rejectConfirm})
			return
		}
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/attachments/"), "/confirm")
		b.confirmedIDs = append(b.confirmedIDs, id)
		b.confirmedKeys = append(b.confirmedKeys, req.Key)
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func idString(n int) string {
	return "att-" + string(rune('0'+n))
}

// fakeStorage accepts presigned PUTs and records the bodies.
type fakePutStorage struct {
	mu     sync.Mutex
	bodies map[string][]byte
	status int // 0 means 200
}

func (s *fakePutStorage) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		if s.bodies == nil {
			s.bodies = make(map[string][]byte)
		}
		s.bodies[r.URL.Path] = body
		status := s.status
		s.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeBroker, *fakePutStorage) {
	t.Helper()
	storage := &fakePutStorage{}
	storageSrv := httptest.NewServer(storage.handler())
	t.Cleanup(storageSrv.Close)

	broker := &fakeBroker{storageURL: storageSrv.URL}
	brokerSrv := httptest.NewServer(broker.handler())
	t.Cleanup(brokerSrv.Close)

	client := NewClient(brokerSrv.URL, "test-token", opts...)
	// Finished entries stay visible; the tests inspect them directly.
	client.after = func(d time.Duration, fn func()) {}
	return client, broker, storage
}

func testFile(name, content string) File {
	return File{
		Name:        name,
		ContentType: "application/pdf",
		Size:        int64(len(content)),
		Content:     strings.NewReader(content),
		ReportID:    "rep-1",
	}
}

func TestUploadFile_HappyPath(t *testing.T) {
	var (
		mu     sync.Mutex
		phases []Status
	)
	client, broker, storage := newTestClient(t, WithProgress(func(p Progress) {
		mu.Lock()
		phases = append(phases, p.Status)
		mu.Unlock()
	}))

	content := "%PDF-1.7 receipt body"
	id, err := client.UploadFile(context.Background(), testFile("receipt.pdf", content))
	require.NoError(t, err)
	assert.Equal(t, "att-1", id)

	// The broker saw request and confirm, and storage got the exact bytes.
	assert.Equal(t, []string{"receipt.pdf"}, broker.requestedNames)
	assert.Equal(t, []string{"att-1"}, broker.confirmedIDs)
	assert.Equal(t, []string{"attachments/private/org/rep/object-att-1"}, broker.confirmedKeys)
	assert.Equal(t, []byte(content), storage.bodies["/object-att-1"])

	// Phases arrive in protocol order and end in success at 100%.
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, phases)
	assert.Equal(t, StatusRequesting, phases[0])
	assert.Equal(t, StatusSuccess, phases[len(phases)-1])
	assert.Contains(t, phases, StatusUploading)
	assert.Contains(t, phases, StatusConfirming)
}

func TestUploadFile_ProgressReaches100(t *testing.T) {
	var (
		mu      sync.Mutex
		maxSeen int
	)
	client, _, _ := newTestClient(t, WithProgress(func(p Progress) {
		mu.Lock()
		if p.Status == StatusUploading && p.Percent > maxSeen {
			maxSeen = p.Percent
		}
		mu.Unlock()
	}))

	_, err := client.UploadFile(context.Background(), testFile("receipt.pdf", strings.Repeat("x", 8192)))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 100, maxSeen)
}

func TestUploadFile_RequestRejected(t *testing.T) {
	client, broker, _ := newTestClient(t)
	broker.rejectRequest = "file exceeds the 5 MiB limit"

	_, err := client.UploadFile(context.Background(), testFile("huge.pdf", "x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.ErrorContains(t, err, "file exceeds the 5 MiB limit")
	assert.Empty(t, broker.confirmedIDs, "a rejected request must not reach the confirm phase")

	snapshot := client.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, StatusError, snapshot[0].Status)
}

func TestUploadFile_TransferRejected(t *testing.T) {
	client, broker, storage := newTestClient(t)
	storage.status = http.StatusForbidden

	_, err := client.UploadFile(context.Background(), testFile("receipt.pdf", "body"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportFailed)
	assert.Empty(t, broker.confirmedIDs, "a failed transfer must not be confirmed")
}

func TestUploadFile_ConfirmRejected(t *testing.T) {
	client, broker, _ := newTestClient(t)
	broker.rejectConfirm = "declared content type does not match stored content"

	_, err := client.UploadFile(context.Background(), testFile("receipt.pdf", "body"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfirmFailed)
	// The broker's specific rejection reason survives the wrapping.
	assert.ErrorContains(t, err, "does not match stored content")
}

func TestUploadFiles_ConcurrencyCapped(t *testing.T) {
	client, broker, _ := newTestClient(t, WithMaxConcurrent(2))

	files := []File{
		testFile("a.pdf", "first"),
		testFile("b.pdf", "second"),
		testFile("c.pdf", "third"),
	}

	result := client.UploadFiles(context.Background(), files)
	assert.Len(t, result.AttachmentIDs, 3)
	assert.Empty(t, result.Failed)
	assert.Len(t, broker.confirmedIDs, 3)
}

func TestUploadFiles_OneFailureDoesNotCancelOthers(t *testing.T) {
	client, _, _ := newTestClient(t)

	files := []File{
		testFile("good.pdf", "fine"),
		{
			Name:        "tooBig.pdf",
			ContentType: "application/pdf",
			Size:        4,
			Content:     errReader{},
			ReportID:    "rep-1",
		},
	}

	result := client.UploadFiles(context.Background(), files)
	assert.Len(t, result.AttachmentIDs, 1)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "tooBig.pdf", result.Failed[0].FileName)
	assert.ErrorIs(t, result.Failed[0].Err, ErrTransportFailed)
}

// errReader fails mid-transfer.
type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }
