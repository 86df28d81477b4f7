package pocketbase

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

type seenRequest struct {
	Method        string
	Path          string
	Query         map[string][]string
	Authorization string
	Body          map[string]any
}

// fakePocketBase serves a small in-memory subset of the PocketBase API.
type fakePocketBase struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	requests []seenRequest
	records  []map[string]any
	tokenTTL time.Duration
	issued   int
	stream   chan string

	// multipart fields of the last upload or batch, file name by field
	uploads map[string]string
}

func newFakePocketBase(t *testing.T) *fakePocketBase {
	t.Helper()
	fp := &fakePocketBase{t: t, tokenTTL: time.Hour, stream: make(chan string, 8)}
	for i := 1; i <= 5; i++ {
		fp.records = append(fp.records, map[string]any{
			"id":             fmt.Sprintf("r%d", i),
			"collectionName": "posts",
			"title":          fmt.Sprintf("post %d", i),
		})
	}

	r := mux.NewRouter()
	r.Use(fp.record)
	r.HandleFunc("/api/health", fp.health).Methods(http.MethodGet)
	r.HandleFunc("/api/realtime", fp.realtimeStream).Methods(http.MethodGet)
	r.HandleFunc("/api/realtime", fp.noContent).Methods(http.MethodPost)
	r.HandleFunc("/api/files/token", fp.fileToken).Methods(http.MethodPost)
	r.HandleFunc("/api/files/{collection}/{id}/{name}", fp.file).Methods(http.MethodGet)
	r.HandleFunc("/api/collections/import", fp.noContent).Methods(http.MethodPut)
	r.HandleFunc("/api/backups", fp.backups).Methods(http.MethodGet)
	r.HandleFunc("/api/backups", fp.noContent).Methods(http.MethodPost)
	r.HandleFunc("/api/backups/upload", fp.backupUpload).Methods(http.MethodPost)
	r.HandleFunc("/api/backups/{key}", fp.backupDownload).Methods(http.MethodGet)
	r.HandleFunc("/api/backups/{key}", fp.noContent).Methods(http.MethodDelete)
	r.HandleFunc("/api/backups/{key}/restore", fp.noContent).Methods(http.MethodPost)
	r.HandleFunc("/api/settings", fp.settings).Methods(http.MethodGet, http.MethodPatch)
	r.HandleFunc("/api/settings/test/{kind}", fp.noContent).Methods(http.MethodPost)
	r.HandleFunc("/api/settings/apple/generate-client-secret", fp.appleSecret).Methods(http.MethodPost)
	r.HandleFunc("/api/logs", fp.logs).Methods(http.MethodGet)
	r.HandleFunc("/api/logs/stats", fp.logStats).Methods(http.MethodGet)
	r.HandleFunc("/api/logs/{id}", fp.logEntry).Methods(http.MethodGet)
	r.HandleFunc("/api/batch", fp.batch).Methods(http.MethodPost)
	r.HandleFunc("/api/collections/{collection}/auth-with-password", fp.authWithPassword).Methods(http.MethodPost)
	r.HandleFunc("/api/collections/{collection}/auth-refresh", fp.authRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/collections/{collection}/auth-methods", fp.authMethods).Methods(http.MethodGet)
	r.HandleFunc("/api/collections/{collection}/request-otp", fp.requestOTP).Methods(http.MethodPost)
	r.HandleFunc("/api/collections/{collection}/auth-with-otp", fp.authWithPassword).Methods(http.MethodPost)
	r.HandleFunc("/api/collections/{collection}/impersonate/{id}", fp.impersonate).Methods(http.MethodPost)
	r.HandleFunc("/api/collections/{collection}/records/{id}/external-auths", fp.externalAuths).Methods(http.MethodGet)
	r.HandleFunc("/api/collections/{collection}/records/{id}/external-auths/{provider}", fp.noContent).Methods(http.MethodDelete)
	r.HandleFunc("/api/collections/{collection}/records", fp.list).Methods(http.MethodGet)
	r.HandleFunc("/api/collections/{collection}/records", fp.create).Methods(http.MethodPost)
	r.HandleFunc("/api/collections/{collection}/records/{id}", fp.view).Methods(http.MethodGet)
	r.HandleFunc("/api/collections/{collection}/records/{id}", fp.update).Methods(http.MethodPatch)
	r.HandleFunc("/api/collections/{collection}/records/{id}", fp.noContent).Methods(http.MethodDelete)

	fp.srv = httptest.NewServer(r)
	t.Cleanup(fp.srv.Close)
	return fp
}

func (fp *fakePocketBase) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen := seenRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.Query(),
			Authorization: r.Header.Get("Authorization"),
		}
		if r.Header.Get("Content-Type") == "application/json" {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &seen.Body)
		}
		fp.mu.Lock()
		fp.requests = append(fp.requests, seen)
		fp.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (fp *fakePocketBase) seen(method, path string) []seenRequest {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	var out []seenRequest
	for _, r := range fp.requests {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (fp *fakePocketBase) setTokenTTL(d time.Duration) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.tokenTTL = d
}

func (fp *fakePocketBase) issueToken(collection, id string) string {
	fp.mu.Lock()
	ttl := fp.tokenTTL
	fp.issued++
	n := fp.issued
	fp.mu.Unlock()

	claims := jwt.MapClaims{
		"id":          id,
		"type":        "auth",
		"refreshable": true,
		"exp":         time.Now().Add(ttl).Unix(),
		"n":           n,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(collection))
	require.NoError(fp.t, err)
	return token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"status": 404, "message": "The requested resource wasn't found.", "data": map[string]any{},
	})
}

func (fp *fakePocketBase) noContent(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (fp *fakePocketBase) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"code": 200, "message": "API is healthy.", "data": map[string]any{}})
}

func (fp *fakePocketBase) principal(collection, id string) map[string]any {
	return map[string]any{
		"id":             id,
		"collectionName": collection,
		"collectionId":   "pbc_" + collection,
		"email":          id + "@example.com",
	}
}

func (fp *fakePocketBase) authWithPassword(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]
	writeJSON(w, http.StatusOK, map[string]any{
		"token":  fp.issueToken(collection, "u1"),
		"record": fp.principal(collection, "u1"),
	})
}

func (fp *fakePocketBase) authRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": 401, "message": "missing token", "data": map[string]any{}})
		return
	}
	collection := mux.Vars(r)["collection"]
	fp.setTokenTTL(time.Hour)
	writeJSON(w, http.StatusOK, map[string]any{
		"token":  fp.issueToken(collection, "u1"),
		"record": fp.principal(collection, "u1"),
	})
}

func (fp *fakePocketBase) authMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"password": map[string]any{"enabled": true, "identityFields": []string{"email"}},
		"oauth2": map[string]any{"enabled": true, "providers": []map[string]any{
			{"name": "github", "authURL": "https://github.com/login/oauth/authorize?client_id=x", "codeVerifier": "verifier"},
		}},
	})
}

func (fp *fakePocketBase) requestOTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"otpId": "otp1"})
}

func (fp *fakePocketBase) impersonate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, map[string]any{
		"token":  fp.issueToken("users", id),
		"record": fp.principal("users", id),
	})
}

func (fp *fakePocketBase) externalAuths(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []map[string]any{{"id": "ea1", "provider": "github", "providerId": "42"}})
}

func (fp *fakePocketBase) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))

	items := fp.records
	if r.URL.Query().Get("filter") == "title = 'none'" {
		items = nil
	}

	start := (page - 1) * perPage
	end := min(start+perPage, len(items))
	if start > len(items) {
		start = end
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"page":       page,
		"perPage":    perPage,
		"totalItems": len(items),
		"totalPages": (len(items) + perPage - 1) / perPage,
		"items":      items[start:end],
	})
}

func (fp *fakePocketBase) view(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	for _, rec := range fp.records {
		if rec["id"] == id {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	if id == "u1" {
		writeJSON(w, http.StatusOK, fp.principal(mux.Vars(r)["collection"], id))
		return
	}
	notFound(w)
}

func (fp *fakePocketBase) create(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"id": "new", "collectionName": mux.Vars(r)["collection"]}
	if r.Header.Get("Content-Type") == "application/json" {
		reqs := fp.seen(http.MethodPost, r.URL.Path)
		for k, v := range reqs[len(reqs)-1].Body {
			out[k] = v
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (fp *fakePocketBase) update(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	out := fp.principal(vars["collection"], vars["id"])
	reqs := fp.seen(http.MethodPatch, r.URL.Path)
	for k, v := range reqs[len(reqs)-1].Body {
		out[k] = v
	}
	writeJSON(w, http.StatusOK, out)
}

func (fp *fakePocketBase) file(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if name == "missing.txt" {
		notFound(w)
		return
	}
	content := "content of " + name
	if thumb := r.URL.Query().Get("thumb"); thumb != "" {
		content += " at " + thumb
	}
	_, _ = io.WriteString(w, content)
}

func (fp *fakePocketBase) fileToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"token": "file-token"})
}

func (fp *fakePocketBase) realtimeStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher := w.(http.Flusher)
	_, _ = io.WriteString(w, "id:c1\nevent:PB_CONNECT\ndata:{\"clientId\":\"c1\"}\n\n")
	flusher.Flush()

	for {
		select {
		case frame := <-fp.stream:
			_, _ = io.WriteString(w, frame)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (fp *fakePocketBase) lastBody(method, path string) map[string]any {
	reqs := fp.seen(method, path)
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1].Body
}

// readUploads parses a multipart body, remembers its files and returns its
// plain fields.
func (fp *fakePocketBase) readUploads(r *http.Request) (map[string]string, bool) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		return nil, false
	}
	uploads := map[string]string{}
	for field, headers := range r.MultipartForm.File {
		uploads[field] = headers[0].Filename
	}
	fields := map[string]string{}
	for field, values := range r.MultipartForm.Value {
		fields[field] = values[0]
	}
	fp.mu.Lock()
	fp.uploads = uploads
	fp.mu.Unlock()
	return fields, true
}

func (fp *fakePocketBase) uploaded() map[string]string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.uploads
}

func (fp *fakePocketBase) backups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []map[string]any{
		{"key": "pb_backup_1.zip", "size": 1024, "modified": "2025-01-01 10:00:00.000Z"},
		{"key": "nightly.zip", "size": 2048, "modified": "2025-01-02 10:00:00.000Z"},
	})
}

func (fp *fakePocketBase) backupUpload(w http.ResponseWriter, r *http.Request) {
	if _, ok := fp.readUploads(r); !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": "invalid upload", "data": map[string]any{}})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (fp *fakePocketBase) backupDownload(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") != "file-token" {
		notFound(w)
		return
	}
	_, _ = io.WriteString(w, "archive "+mux.Vars(r)["key"])
}

func (fp *fakePocketBase) settings(w http.ResponseWriter, r *http.Request) {
	meta := map[string]any{"appName": "Acme", "appURL": "http://127.0.0.1:8090"}
	if r.Method == http.MethodPatch {
		if patch, ok := fp.lastBody(http.MethodPatch, r.URL.Path)["meta"].(map[string]any); ok {
			for k, v := range patch {
				meta[k] = v
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"meta": meta, "smtp": map[string]any{"enabled": false}})
}

func (fp *fakePocketBase) appleSecret(w http.ResponseWriter, r *http.Request) {
	if fp.lastBody(http.MethodPost, r.URL.Path)["clientId"] == "" {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"secret": "apple-secret"})
}

func sampleLog(id string) map[string]any {
	return map[string]any{
		"id":      id,
		"created": "2025-01-01 10:00:00.000Z",
		"level":   4,
		"message": "GET /api/health",
		"data":    map[string]any{"status": 200},
	}
}

func (fp *fakePocketBase) logs(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	writeJSON(w, http.StatusOK, map[string]any{
		"page":       page,
		"perPage":    perPage,
		"totalItems": 1,
		"totalPages": 1,
		"items":      []map[string]any{sampleLog("log1")},
	})
}

func (fp *fakePocketBase) logEntry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id != "log1" {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, sampleLog(id))
}

func (fp *fakePocketBase) logStats(w http.ResponseWriter, r *http.Request) {
	total := 3
	if r.URL.Query().Get("filter") != "" {
		total = 1
	}
	writeJSON(w, http.StatusOK, []map[string]any{{"total": total, "date": "2025-01-01 10:00:00.000Z"}})
}

// batch answers every queued request with 200, or 204 for deletes. A batch
// updating record "locked" is rejected as a whole.
func (fp *fakePocketBase) batch(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Requests []struct {
			Method string         `json:"method"`
			URL    string         `json:"url"`
			Body   map[string]any `json:"body"`
		} `json:"requests"`
	}

	if r.Header.Get("Content-Type") == "application/json" {
		raw, _ := json.Marshal(fp.lastBody(http.MethodPost, r.URL.Path))
		_ = json.Unmarshal(raw, &payload)
	} else {
		fields, ok := fp.readUploads(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": "invalid batch", "data": map[string]any{}})
			return
		}
		_ = json.Unmarshal([]byte(fields["@jsonPayload"]), &payload)
	}

	results := make([]map[string]any, 0, len(payload.Requests))
	for _, req := range payload.Requests {
		if strings.HasSuffix(req.URL, "/locked") {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"status": 400, "message": "Batch transaction failed.", "data": map[string]any{},
			})
			return
		}
		if req.Method == http.MethodDelete {
			results = append(results, map[string]any{"status": 204})
			continue
		}
		body := map[string]any{"id": "new"}
		for k, v := range req.Body {
			body[k] = v
		}
		results = append(results, map[string]any{"status": 200, "body": body})
	}
	writeJSON(w, http.StatusOK, results)
}

func newTestClient(t *testing.T, fp *fakePocketBase, opts ...Option) *Client {
	t.Helper()
	c, err := New(fp.srv.URL, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(t.Context()) })
	return c
}
