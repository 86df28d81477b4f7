package pocketbase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/thijsmie/pocketbase/pkg/models"
	"github.com/thijsmie/pocketbase/pkg/transport"
)

// ErrEmptyBackupKey is returned when an operation needs a backup name.
var ErrEmptyBackupKey = errors.New("pocketbase: empty backup key")

// BackupService manages the server's backup archives. All endpoints require
// a superuser.
type BackupService struct {
	service
}

func newBackupService(c *Client) *BackupService {
	return &BackupService{service: service{client: c, basePath: "/api/backups"}}
}

// GetFullList returns every stored backup.
func (s *BackupService) GetFullList(ctx context.Context, opts *RequestOptions) ([]models.BackupFileInfo, error) {
	var out []models.BackupFileInfo
	if err := s.send(ctx, s.path(), transport.SendOptions{Method: http.MethodGet}, opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create starts a new backup. An empty name lets the server pick one.
func (s *BackupService) Create(ctx context.Context, name string, opts *RequestOptions) error {
	body := map[string]any{}
	if name != "" {
		body["name"] = name
	}
	return s.send(ctx, s.path(), transport.SendOptions{Method: http.MethodPost, Body: body}, opts, nil)
}

// Upload stores an existing backup archive on the server.
func (s *BackupService) Upload(ctx context.Context, file transport.File, opts *RequestOptions) error {
	file.Field = "file"
	return s.send(ctx, s.path("upload"), transport.SendOptions{
		Method: http.MethodPost,
		Files:  []transport.File{file},
	}, opts, nil)
}

func (s *BackupService) Delete(ctx context.Context, key string, opts *RequestOptions) error {
	if key == "" {
		return ErrEmptyBackupKey
	}
	return s.send(ctx, s.path(key), transport.SendOptions{Method: http.MethodDelete}, opts, nil)
}

// Restore replaces the app data with the backup. The server restarts
// afterwards, so the realtime connection drops and reconnects.
func (s *BackupService) Restore(ctx context.Context, key string, opts *RequestOptions) error {
	if key == "" {
		return ErrEmptyBackupKey
	}
	return s.send(ctx, s.path(key, "restore"), transport.SendOptions{Method: http.MethodPost}, opts, nil)
}

// DownloadURL returns a URL to fetch the archive with, authorized by a
// short lived file token.
func (s *BackupService) DownloadURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyBackupKey
	}
	token, err := s.client.files.Token(ctx, nil)
	if err != nil {
		return "", err
	}
	return s.client.transport.BuildURL(s.path(key), url.Values{"token": {token}}), nil
}

// Download fetches the archive contents.
func (s *BackupService) Download(ctx context.Context, key string, opts *RequestOptions) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyBackupKey
	}
	token, err := s.client.files.Token(ctx, nil)
	if err != nil {
		return nil, err
	}

	send := transport.SendOptions{
		Method: http.MethodGet,
		Query:  url.Values{"token": {token}},
	}
	opts.apply(&send)

	resp, err := s.client.transport.Do(ctx, s.path(key), send)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, transport.NewResponseError(http.MethodGet, resp.Request.URL.String(), resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read backup %s: %w", key, err)
	}
	return data, nil
}
