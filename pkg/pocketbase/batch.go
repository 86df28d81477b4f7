package pocketbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/thijsmie/pocketbase/pkg/models"
	"github.com/thijsmie/pocketbase/pkg/transport"
)

// ErrEmptyBatch is returned when a batch without requests is sent.
var ErrEmptyBatch = errors.New("pocketbase: empty batch")

type batchRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    map[string]any    `json:"body,omitempty"`

	files []transport.File
}

// BatchService queues record writes and sends them as one transactional
// request to /api/batch. Get a new one per batch from Client.Batch.
type BatchService struct {
	service

	mu       sync.Mutex
	requests []batchRequest
}

func newBatchService(c *Client) *BatchService {
	return &BatchService{service: service{client: c, basePath: "/api/batch"}}
}

// Collection queues requests against the records of one collection.
func (s *BatchService) Collection(idOrName string) *SubBatch {
	return &SubBatch{batch: s, collection: idOrName}
}

// Len returns the number of queued requests.
func (s *BatchService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *BatchService) queue(method, path string, body map[string]any, opts *RequestOptions) {
	req := batchRequest{Method: method, URL: path}
	if opts != nil {
		req.Headers = opts.Headers
	}
	req.Body, req.files = splitFiles(body)

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
}

// Send submits the queued requests. The server applies all of them or none;
// a rejected batch comes back as a *transport.ResponseError. Results are in
// queue order.
func (s *BatchService) Send(ctx context.Context, opts *RequestOptions) ([]models.BatchResult, error) {
	s.mu.Lock()
	requests := append([]batchRequest(nil), s.requests...)
	s.mu.Unlock()

	if len(requests) == 0 {
		return nil, ErrEmptyBatch
	}

	var files []transport.File
	for i, req := range requests {
		for _, f := range req.files {
			f.Field = "requests." + strconv.Itoa(i) + "." + f.Field
			files = append(files, f)
		}
	}

	send := transport.SendOptions{Method: http.MethodPost}
	if len(files) == 0 {
		send.Body = map[string]any{"requests": requests}
	} else {
		// uploads go multipart, with the requests as a JSON form field
		payload, err := json.Marshal(map[string]any{"requests": requests})
		if err != nil {
			return nil, fmt.Errorf("encode batch: %w", err)
		}
		send.Body = map[string]any{"@jsonPayload": string(payload)}
		send.Files = files
	}

	var out []models.BatchResult
	if err := s.send(ctx, s.path(), send, opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubBatch queues record requests of one collection into its batch.
type SubBatch struct {
	batch      *BatchService
	collection string
}

func (b *SubBatch) recordsPath(segments ...string) string {
	s := service{basePath: collectionPath(b.collection) + "/records"}
	return s.path(segments...)
}

func (b *SubBatch) Create(body map[string]any, opts *RequestOptions) {
	b.batch.queue(http.MethodPost, b.recordsPath(), body, opts)
}

// Upsert creates the record, or updates it when body carries the id of an
// existing one.
func (b *SubBatch) Upsert(body map[string]any, opts *RequestOptions) {
	b.batch.queue(http.MethodPut, b.recordsPath(), body, opts)
}

func (b *SubBatch) Update(id string, body map[string]any, opts *RequestOptions) {
	b.batch.queue(http.MethodPatch, b.recordsPath(id), body, opts)
}

func (b *SubBatch) Delete(id string, opts *RequestOptions) {
	b.batch.queue(http.MethodDelete, b.recordsPath(id), nil, opts)
}

// splitFiles moves upload values out of a request body. The input map is not
// modified.
func splitFiles(body map[string]any) (map[string]any, []transport.File) {
	if body == nil {
		return nil, nil
	}
	data := make(map[string]any, len(body))
	var files []transport.File
	for key, value := range body {
		switch v := value.(type) {
		case transport.File:
			files = append(files, fileField(v, key))
		case []transport.File:
			for _, f := range v {
				files = append(files, fileField(f, key))
			}
		default:
			data[key] = value
		}
	}
	return data, files
}

func fileField(f transport.File, key string) transport.File {
	if f.Field == "" {
		f.Field = key
	}
	return f
}
