package tg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tush00nka/unzipbot/internal/model"
)

const testToken = "123:test"

type fakeBotAPI struct {
	mu      sync.Mutex
	methods []string
	payload []byte
	// stall держит sendDocument, пока канал не закроют или клиент не уйдет.
	stall   chan struct{}
}

func (f *fakeBotAPI) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if strings.HasPrefix(r.URL.Path, "/file/bot"+testToken+"/") {
		w.Write(f.payload)
		return
	}

	method := strings.TrimPrefix(r.URL.Path, "/bot"+testToken+"/")
	f.mu.Lock()
	f.methods = append(f.methods, method)
	f.mu.Unlock()

	if method == "sendDocument" && f.stall != nil {
		select {
		case <-r.Context().Done():
			return
		case <-f.stall:
		}
	}

	switch method {
	case "getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Unzipper","username":"unzipper_bot"}}`)
	case "getFile":
		fmt.Fprint(w, `{"ok":true,"result":{"file_id":"doc-1","file_unique_id":"u1","file_path":"documents/photos.zip"}}`)
	case "sendMessage", "sendDocument", "sendPhoto", "sendVideo":
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":77,"date":0,"chat":{"id":42,"type":"private"}}}`)
	case "editMessageText", "deleteMessage":
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	default:
		fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
	}
}

func newTestAdapter(t *testing.T, api *fakeBotAPI) *TelegramAdapter {
	return newTestAdapterWith(t, api, AdapterOptions{})
}

func newTestAdapterWith(t *testing.T, api *fakeBotAPI, opts AdapterOptions) *TelegramAdapter {
	t.Helper()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	if api.stall != nil {
		// cleanup идет в обратном порядке: отпускаем зависшие запросы до srv.Close
		t.Cleanup(func() { close(api.stall) })
	}

	opts.APIEndpoint = srv.URL + "/bot%s/%s"
	opts.FileEndpoint = srv.URL + "/file/bot%s/%s"
	adapter, err := NewTelegramAdapter(testToken, opts, nil)
	require.NoError(t, err)
	return adapter
}

func stalledUpload() OutboundFile {
	return OutboundFile{
		Name:   "report.pdf",
		Kind:   model.MediaDocument,
		Size:   4,
		Reader: strings.NewReader("data"),
	}
}

func TestDownloadStreamsFileContents(t *testing.T) {
	api := &fakeBotAPI{payload: []byte("PK\x05\x06archive-bytes")}
	adapter := newTestAdapter(t, api)

	var buf bytes.Buffer
	n, err := adapter.Download(context.Background(), "doc-1", &buf)
	require.NoError(t, err)

	assert.Equal(t, int64(len(api.payload)), n)
	assert.Equal(t, api.payload, buf.Bytes())
	assert.Contains(t, api.calls(), "getFile")
}

func TestSendTextReturnsMessageID(t *testing.T) {
	api := &fakeBotAPI{}
	adapter := newTestAdapter(t, api)

	id, err := adapter.SendText(context.Background(), 42, "Processing your file...")
	require.NoError(t, err)
	assert.Equal(t, 77, id)

	require.NoError(t, adapter.EditText(context.Background(), 42, id, "Extracting files..."))
	require.NoError(t, adapter.DeleteMessage(context.Background(), 42, id))
	assert.Equal(t, []string{"getMe", "sendMessage", "editMessageText", "deleteMessage"}, api.calls())
}

func TestSendFileRoutesByKind(t *testing.T) {
	tests := []struct {
		kind   model.MediaKind
		size   int64
		method string
	}{
		{model.MediaPhoto, 1024, "sendPhoto"},
		{model.MediaPhoto, MaxPhotoUploadSize + 1, "sendDocument"},
		{model.MediaVideo, 2048, "sendVideo"},
		{model.MediaDocument, 10, "sendDocument"},
	}

	for _, tt := range tests {
		t.Run(tt.method+"/"+string(tt.kind), func(t *testing.T) {
			api := &fakeBotAPI{}
			adapter := newTestAdapter(t, api)

			err := adapter.SendFile(context.Background(), 42, OutboundFile{
				Name:   "file",
				Kind:   tt.kind,
				Size:   tt.size,
				Reader: io.LimitReader(strings.NewReader("data"), 4),
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"getMe", tt.method}, api.calls())
		})
	}
}

func TestSendFileRejectsBeforeUpload(t *testing.T) {
	adapter := &TelegramAdapter{}

	err := adapter.SendFile(context.Background(), 42, OutboundFile{Name: "x.bin", Size: MaxUploadSize + 1})
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.EqualError(t, err, "too large")

	err = adapter.SendFile(context.Background(), 42, OutboundFile{Name: "empty"})
	assert.ErrorIs(t, err, ErrEmptyFile)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = adapter.SendFile(ctx, 42, OutboundFile{Name: "a.txt", Size: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSendFileReturnsWhenContextExpires(t *testing.T) {
	api := &fakeBotAPI{stall: make(chan struct{})}
	adapter := newTestAdapter(t, api)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := adapter.SendFile(ctx, 42, stalledUpload())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRequestTimeoutBoundsSlowBotAPI(t *testing.T) {
	api := &fakeBotAPI{stall: make(chan struct{})}
	adapter := newTestAdapterWith(t, api, AdapterOptions{RequestTimeout: 100 * time.Millisecond})

	start := time.Now()
	err := adapter.SendFile(context.Background(), 42, stalledUpload())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLongPollSeconds(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    int
	}{
		{0, 60},
		{10 * time.Minute, 60},
		{time.Minute, 55},
		{3 * time.Second, 1},
	}

	for _, tt := range tests {
		t.Run(tt.timeout.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, longPollSeconds(tt.timeout))
		})
	}
}
