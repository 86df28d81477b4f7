package pocketbase

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/thijsmie/pocketbase/pkg/models"
	"github.com/thijsmie/pocketbase/pkg/transport"
)

// ErrEmptyLogID is returned by LogService.GetOne without an id.
var ErrEmptyLogID = errors.New("pocketbase: empty log id")

// LogStatsOptions narrow down the entries counted by LogService.GetStats.
type LogStatsOptions struct {
	RequestOptions
	Filter string
}

// LogService reads the server logs. All endpoints require a superuser.
type LogService struct {
	service
}

func newLogService(c *Client) *LogService {
	return &LogService{service: service{client: c, basePath: "/api/logs"}}
}

// GetList returns one page of log entries.
func (s *LogService) GetList(ctx context.Context, page, perPage int, opts *ListOptions) (*models.ListResult[models.LogEntry], error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}

	var result models.ListResult[models.LogEntry]
	err := s.client.transport.Send(ctx, s.path(), transport.SendOptions{
		Method:  http.MethodGet,
		Headers: opts.headers(),
		Query:   opts.query(page, perPage),
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *LogService) GetOne(ctx context.Context, id string, opts *RequestOptions) (*models.LogEntry, error) {
	if id == "" {
		return nil, ErrEmptyLogID
	}
	var out models.LogEntry
	if err := s.send(ctx, s.path(id), transport.SendOptions{Method: http.MethodGet}, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStats returns the number of entries per hour.
func (s *LogService) GetStats(ctx context.Context, opts *LogStatsOptions) ([]models.HourlyStats, error) {
	send := transport.SendOptions{Method: http.MethodGet}
	var extra *RequestOptions
	if opts != nil {
		extra = &opts.RequestOptions
		if opts.Filter != "" {
			send.Merge(nil, url.Values{"filter": {opts.Filter}})
		}
	}

	var out []models.HourlyStats
	if err := s.send(ctx, s.path("stats"), send, extra, &out); err != nil {
		return nil, err
	}
	return out, nil
}
