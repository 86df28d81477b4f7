package pocketbase

import (
	"context"

	"github.com/thijsmie/pocketbase/pkg/auth"
	"github.com/thijsmie/pocketbase/pkg/models"
	"github.com/thijsmie/pocketbase/pkg/realtime"
)

// RecordService manages the records of one collection.
type RecordService struct {
	CrudService[models.Record]

	collection string
	auth       *RecordAuthService
}

func newRecordService(c *Client, collection string) *RecordService {
	return &RecordService{
		CrudService: newCrudService[models.Record](c, collectionPath(collection)+"/records"),
		collection:  collection,
		auth:        newRecordAuthService(c, collection, auth.KindRecord),
	}
}

// Collection returns the collection id or name the service was created for
func (s *RecordService) Collection() string {
	return s.collection
}

// Auth returns the auth endpoints of the collection
func (s *RecordService) Auth() *RecordAuthService {
	return s.auth
}

// Update patches a record. Updating the authenticated record refreshes the
// principal held by the auth store.
func (s *RecordService) Update(ctx context.Context, id string, body map[string]any, opts *RequestOptions) (models.Record, error) {
	record, err := s.CrudService.Update(ctx, id, body, opts)
	if err != nil {
		return nil, err
	}
	if s.isAuthenticated(record.ID()) {
		s.client.store.SetRecordAuth(models.AuthResult{Record: record})
	}
	return record, nil
}

// Delete deletes a record. Deleting the authenticated record clears the auth
// store.
func (s *RecordService) Delete(ctx context.Context, id string, opts *RequestOptions) error {
	if err := s.CrudService.Delete(ctx, id, opts); err != nil {
		return err
	}
	if s.isAuthenticated(id) {
		s.client.store.Clear()
	}
	return nil
}

func (s *RecordService) isAuthenticated(id string) bool {
	identity := s.client.store.Identity()
	if identity.Kind != auth.KindRecord || id == "" || identity.Principal.ID() != id {
		return false
	}
	return identity.Principal.CollectionName() == s.collection || identity.Principal.CollectionID() == s.collection
}

// Subscribe subscribes h to changes of a single record.
func (s *RecordService) Subscribe(ctx context.Context, recordID string, h realtime.Handler, opts *realtime.Options) (*realtime.Subscription, error) {
	if recordID == "" {
		return nil, ErrEmptyRecordID
	}
	return s.client.realtime.Subscribe(ctx, s.collection+"/"+recordID, opts, h)
}

// SubscribeAll subscribes h to changes of every record in the collection.
func (s *RecordService) SubscribeAll(ctx context.Context, h realtime.Handler, opts *realtime.Options) (*realtime.Subscription, error) {
	return s.client.realtime.Subscribe(ctx, s.collection, opts, h)
}
