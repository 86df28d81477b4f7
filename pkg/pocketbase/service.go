package pocketbase

import (
	"context"
	"net/url"
	"strings"

	"github.com/thijsmie/pocketbase/pkg/transport"
)

// service is the common base of the API services: a client and the path all
// requests of the service are relative to.
type service struct {
	client   *Client
	basePath string
}

func (s service) path(segments ...string) string {
	if len(segments) == 0 {
		return s.basePath
	}
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}
	return s.basePath + "/" + strings.Join(escaped, "/")
}

func (s service) send(ctx context.Context, path string, opts transport.SendOptions, extra *RequestOptions, out any) error {
	extra.apply(&opts)
	return s.client.transport.Send(ctx, path, opts, out)
}

func collectionPath(collection string) string {
	return "/api/collections/" + url.PathEscape(collection)
}
