package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/thijsmie/pocketbase/pkg/transport"
)

type declaration struct {
	Raw           string
	ClientID      string   `json:"clientId"`
	Subscriptions []string `json:"subscriptions"`
}

type fakeStream struct {
	clientID    string
	lastEventID string
	frames      chan string
	drop        chan struct{}
	done        chan struct{}
}

// send writes one frame on the stream.
func (fs *fakeStream) send(t *testing.T, id, name, data string) {
	t.Helper()
	frame := ""
	if id != "" {
		frame += "id:" + id + "\n"
	}
	frame += "event:" + name + "\ndata:" + data + "\n\n"
	select {
	case fs.frames <- frame:
	case <-time.After(2 * time.Second):
		t.Fatalf("stream %s not reading", fs.clientID)
	}
}

// fakeServer emulates the realtime endpoints of a PocketBase server.
type fakeServer struct {
	srv *httptest.Server

	mu          sync.Mutex
	clientIDs   []string
	connects    int
	streamFails int
	postStatus  int
	silent      bool

	streams chan *fakeStream
	posts   chan declaration
}

func newFakeServer(t *testing.T, clientIDs ...string) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		clientIDs: clientIDs,
		streams:   make(chan *fakeStream, 16),
		posts:     make(chan declaration, 64),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/realtime", fs.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/api/realtime", fs.handleDeclare).Methods(http.MethodPost)
	fs.srv = httptest.NewServer(r)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) handleStream(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	if fs.streamFails > 0 {
		fs.streamFails--
		fs.mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	n := fs.connects
	fs.connects++
	id := fmt.Sprintf("client-%d", n+1)
	if n < len(fs.clientIDs) {
		id = fs.clientIDs[n]
	}
	silent := fs.silent
	fs.mu.Unlock()

	stream := &fakeStream{
		clientID:    id,
		lastEventID: r.Header.Get("Last-Event-ID"),
		frames:      make(chan string),
		drop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	defer close(stream.done)

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher := w.(http.Flusher)
	if !silent {
		_, _ = io.WriteString(w, "id:"+id+"\nevent:PB_CONNECT\ndata:{\"clientId\":\""+id+"\"}\n\n")
	}
	flusher.Flush()
	fs.streams <- stream

	for {
		select {
		case frame := <-stream.frames:
			_, _ = io.WriteString(w, frame)
			flusher.Flush()
		case <-stream.drop:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (fs *fakeServer) handleDeclare(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	d := declaration{Raw: string(raw)}
	_ = json.Unmarshal(raw, &d)
	fs.posts <- d

	fs.mu.Lock()
	status := fs.postStatus
	fs.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"status":403,"message":"forbidden","data":{}}`)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (fs *fakeServer) nextStream(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-fs.streams:
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("no stream opened")
		return nil
	}
}

func (fs *fakeServer) nextDeclaration(t *testing.T) declaration {
	t.Helper()
	select {
	case d := <-fs.posts:
		return d
	case <-time.After(3 * time.Second):
		t.Fatal("no subscriptions declared")
		return declaration{}
	}
}

func (fs *fakeServer) noDeclaration(t *testing.T) {
	t.Helper()
	select {
	case d := <-fs.posts:
		t.Fatalf("unexpected declaration %s", d.Raw)
	case <-time.After(100 * time.Millisecond):
	}
}

func newTestService(t *testing.T, fs *fakeServer, opts ...Option) *Service {
	t.Helper()
	client, err := transport.New(fs.srv.URL)
	require.NoError(t, err)

	opts = append([]Option{WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(10 * time.Millisecond)
	})}, opts...)
	svc := NewService(client, opts...)
	t.Cleanup(func() { _ = svc.Close(t.Context()) })
	return svc
}

// collect returns a handler forwarding events to a buffered channel.
func collect() (Handler, chan *Event) {
	ch := make(chan *Event, 16)
	return HandlerFunc(func(_ context.Context, e *Event) error {
		ch <- e
		return nil
	}), ch
}

func receive(t *testing.T, ch chan *Event) *Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(3 * time.Second):
		t.Fatal("event not delivered")
		return nil
	}
}

func nothing(t *testing.T, ch chan *Event) {
	t.Helper()
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}
