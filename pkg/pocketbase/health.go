package pocketbase

import (
	"context"
	"net/http"

	"github.com/thijsmie/pocketbase/pkg/models"
	"github.com/thijsmie/pocketbase/pkg/transport"
)

// HealthService checks the server status
type HealthService struct {
	service
}

func newHealthService(c *Client) *HealthService {
	return &HealthService{service: service{client: c, basePath: "/api/health"}}
}

func (s *HealthService) Check(ctx context.Context, opts *RequestOptions) (*models.HealthCheck, error) {
	var out models.HealthCheck
	if err := s.send(ctx, s.path(), transport.SendOptions{Method: http.MethodGet}, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
