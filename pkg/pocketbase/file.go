package pocketbase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/thijsmie/pocketbase/pkg/transport"
)

// FileService builds file URLs and downloads files.
type FileService struct {
	service
}

func newFileService(c *Client) *FileService {
	return &FileService{service: service{client: c, basePath: "/api/files"}}
}

// URL returns the absolute URL of a stored file. query may carry e.g. a
// thumb size or a file token.
func (s *FileService) URL(collection, recordID, filename string, query url.Values) string {
	return s.client.transport.BuildURL(s.path(collection, recordID, filename), query)
}

// Download fetches a file, optionally as a thumbnail.
func (s *FileService) Download(ctx context.Context, collection, recordID, filename string, opts *FileOptions) ([]byte, error) {
	send := transport.SendOptions{
		Method: http.MethodGet,
		Query:  url.Values{"download": {"1"}},
	}
	if opts != nil {
		opts.RequestOptions.apply(&send)
		if opts.Thumb != "" {
			send.Query.Set("thumb", opts.Thumb)
		}
	}

	resp, err := s.client.transport.Do(ctx, s.path(collection, recordID, filename), send)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, transport.NewResponseError(http.MethodGet, resp.Request.URL.String(), resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", filename, err)
	}
	return data, nil
}

// Token returns a short lived token granting access to protected files.
func (s *FileService) Token(ctx context.Context, opts *RequestOptions) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := s.send(ctx, s.path("token"), transport.SendOptions{Method: http.MethodPost}, opts, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}
