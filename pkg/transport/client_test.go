package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type headerAuthorizer struct {
	token string
	calls int
}

func (a *headerAuthorizer) Authorize(ctx context.Context, req *http.Request) error {
	a.calls++
	if a.token != "" {
		req.Header.Set("Authorization", a.token)
	}
	return nil
}

func newTestServer(t *testing.T, setup func(r *mux.Router)) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	setup(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestSendDecodesJSON(t *testing.T) {
	var gotHeaders http.Header
	srv := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/api/collections/{name}/records", func(w http.ResponseWriter, r *http.Request) {
			gotHeaders = r.Header.Clone()
			assert.Equal(t, "posts", mux.Vars(r)["name"])
			assert.Equal(t, "2", r.URL.Query().Get("page"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"page":2,"items":[{"id":"a"}]}`))
		}).Methods(http.MethodGet)
	})

	auth := &headerAuthorizer{token: "tok"}
	c, err := New(srv.URL, WithAuthorizer(auth))
	require.NoError(t, err)

	var out struct {
		Page  int              `json:"page"`
		Items []map[string]any `json:"items"`
	}
	err = c.Send(t.Context(), "/api/collections/posts/records", SendOptions{
		Query: url.Values{"page": {"2"}},
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Page)
	assert.Len(t, out.Items, 1)
	assert.Equal(t, 1, auth.calls)
	assert.Equal(t, "tok", gotHeaders.Get("Authorization"))
	assert.Equal(t, "en-US", gotHeaders.Get("Accept-Language"))
	assert.Equal(t, "application/json", gotHeaders.Get("Accept"))
}

func TestSendWithoutTokenOmitsAuthorization(t *testing.T) {
	var gotHeaders http.Header
	srv := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
			gotHeaders = r.Header.Clone()
			w.WriteHeader(http.StatusNoContent)
		})
	})

	c, err := New(srv.URL, WithAuthorizer(&headerAuthorizer{}))
	require.NoError(t, err)
	require.NoError(t, c.Send(t.Context(), "/api/health", SendOptions{}, nil))
	assert.Empty(t, gotHeaders.Get("Authorization"))
}

func TestSendJSONBody(t *testing.T) {
	var body map[string]any
	srv := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/api/realtime", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.WriteHeader(http.StatusNoContent)
		}).Methods(http.MethodPost)
	})

	c, err := New(srv.URL)
	require.NoError(t, err)

	when := time.Date(2024, 3, 1, 10, 20, 30, 456_000_000, time.UTC)
	err = c.Send(t.Context(), "/api/realtime", SendOptions{
		Method: http.MethodPost,
		Body: map[string]any{
			"clientId":      "abc123",
			"subscriptions": []string{"posts"},
			"when":          when,
		},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "abc123", body["clientId"])
	assert.Equal(t, []any{"posts"}, body["subscriptions"])
	assert.Equal(t, "2024-03-01T10:20:30.456Z", body["when"])
}

func TestSendMultipartWhenBodyHasFiles(t *testing.T) {
	srv := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/api/collections/docs/records", func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "report", r.FormValue("title"))
			assert.Equal(t, `["a","b"]`, r.FormValue("tags"))

			fh := r.MultipartForm.File["attachment"]
			require.Len(t, fh, 1)
			assert.Equal(t, "report.txt", fh[0].Filename)
			f, err := fh[0].Open()
			require.NoError(t, err)
			defer f.Close()
			content, _ := io.ReadAll(f)
			assert.Equal(t, "hello", string(content))

			_, _ = w.Write([]byte(`{"id":"r1"}`))
		}).Methods(http.MethodPost)
	})

	c, err := New(srv.URL)
	require.NoError(t, err)

	var out map[string]any
	err = c.Send(t.Context(), "/api/collections/docs/records", SendOptions{
		Method: http.MethodPost,
		Body: map[string]any{
			"title":      "report",
			"tags":       []string{"a", "b"},
			"attachment": File{Name: "report.txt", Reader: strings.NewReader("hello")},
		},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "r1", out["id"])
}

func TestSendResponseError(t *testing.T) {
	srv := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/api/collections/posts/records/missing", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":404,"message":"The requested resource wasn't found.","data":{}}`))
		})
	})

	c, err := New(srv.URL)
	require.NoError(t, err)

	err = c.Send(t.Context(), "/api/collections/posts/records/missing", SendOptions{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrUnauthorized))

	var rerr *ResponseError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, http.StatusNotFound, rerr.Status)
	assert.Equal(t, "The requested resource wasn't found.", rerr.Message)
	assert.EqualValues(t, 404, rerr.Data["status"])
}

func TestHooks(t *testing.T) {
	srv := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "1", r.Header.Get("X-Hooked"))
			w.WriteHeader(http.StatusNoContent)
		})
	})

	var seen int
	c, err := New(srv.URL,
		WithBeforeSend(func(r *http.Request) error {
			r.Header.Set("X-Hooked", "1")
			return nil
		}),
		WithAfterSend(func(r *http.Response) error {
			seen = r.StatusCode
			return nil
		}),
	)
	require.NoError(t, err)
	require.NoError(t, c.Send(t.Context(), "/x", SendOptions{}, nil))
	assert.Equal(t, http.StatusNoContent, seen)

	c, err = New(srv.URL, WithBeforeSend(func(*http.Request) error { return errors.New("nope") }))
	require.NoError(t, err)
	assert.ErrorContains(t, c.Send(t.Context(), "/x", SendOptions{}, nil), "nope")
}

func TestTimeoutAppliesToRequests(t *testing.T) {
	srv := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		})
	})

	c, err := New(srv.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	err = c.Send(t.Context(), "/slow", SendOptions{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestStreamIsNotAuthorized(t *testing.T) {
	srv := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/api/realtime", func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
			assert.Equal(t, "evt-1", r.Header.Get("Last-Event-ID"))
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = w.Write([]byte("id:abc\nevent:PB_CONNECT\ndata:{}\n\n"))
		}).Methods(http.MethodGet)
	})

	auth := &headerAuthorizer{token: "tok"}
	c, err := New(srv.URL, WithAuthorizer(auth), WithTimeout(time.Millisecond))
	require.NoError(t, err)

	resp, err := c.Stream(t.Context(), "/api/realtime", http.Header{"Last-Event-ID": {"evt-1"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "PB_CONNECT")
	assert.Zero(t, auth.calls)
}

func TestStreamRejected(t *testing.T) {
	srv := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/api/realtime", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
	})

	c, err := New(srv.URL)
	require.NoError(t, err)
	_, err = c.Stream(t.Context(), "/api/realtime", nil)
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestBuildURL(t *testing.T) {
	c, err := New("http://example.com/pb/")
	require.NoError(t, err)

	assert.Equal(t, "http://example.com/pb/api/health", c.BuildURL("/api/health", nil))
	assert.Equal(t, "http://example.com/pb/api/files/c/r%2F1/a.png?thumb=100x100",
		c.BuildURL("api/files/c/r%2F1/a.png", url.Values{"thumb": {"100x100"}}))

	_, err = New("ftp://example.com")
	assert.Error(t, err)
}

func TestRateLimitRespectsContext(t *testing.T) {
	srv := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	})

	c, err := New(srv.URL, WithRateLimit(0.001, 1))
	require.NoError(t, err)
	require.NoError(t, c.Send(t.Context(), "/x", SendOptions{}, nil))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, c.Send(ctx, "/x", SendOptions{}, nil))
}
