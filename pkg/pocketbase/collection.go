package pocketbase

import (
	"context"
	"net/http"

	"github.com/thijsmie/pocketbase/pkg/models"
	"github.com/thijsmie/pocketbase/pkg/transport"
)

// CollectionService manages collection definitions.
type CollectionService struct {
	CrudService[models.Record]
}

func newCollectionService(c *Client) *CollectionService {
	return &CollectionService{CrudService: newCrudService[models.Record](c, "/api/collections")}
}

// Import replaces the collection definitions in bulk. With deleteMissing,
// collections absent from the import are deleted.
func (s *CollectionService) Import(ctx context.Context, collections []models.Record, deleteMissing bool, opts *RequestOptions) error {
	if collections == nil {
		collections = []models.Record{}
	}
	return s.send(ctx, s.path("import"), transport.SendOptions{
		Method: http.MethodPut,
		Body: map[string]any{
			"collections":   collections,
			"deleteMissing": deleteMissing,
		},
	}, opts, nil)
}
