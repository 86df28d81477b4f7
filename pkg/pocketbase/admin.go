package pocketbase

import (
	"context"

	"github.com/thijsmie/pocketbase/pkg/auth"
	"github.com/thijsmie/pocketbase/pkg/models"
)

// SuperusersCollection is the system collection holding superusers
const SuperusersCollection = "_superusers"

// AdminService manages superusers.
type AdminService struct {
	CrudService[models.Record]
	auth *AdminAuthService
}

// AdminAuthService authenticates superusers. Results are stored as superuser
// identities.
type AdminAuthService struct {
	*RecordAuthService
}

func newAdminService(c *Client) *AdminService {
	return &AdminService{
		CrudService: newCrudService[models.Record](c, collectionPath(SuperusersCollection)+"/records"),
		auth:        &AdminAuthService{newRecordAuthService(c, SuperusersCollection, auth.KindSuperuser)},
	}
}

func (s *AdminService) Auth() *AdminAuthService {
	return s.auth
}

// Update patches a superuser. Updating the authenticated superuser replaces
// the principal held by the auth store.
func (s *AdminService) Update(ctx context.Context, id string, body map[string]any, opts *RequestOptions) (models.Record, error) {
	item, err := s.CrudService.Update(ctx, id, body, opts)
	if err != nil {
		return nil, err
	}
	if store := s.client.store; store.SuperuserID() != "" && store.SuperuserID() == item.ID() {
		store.SetSuperuser(item, "")
	}
	return item, nil
}

// Delete deletes a superuser. Deleting the authenticated superuser clears the
// auth store.
func (s *AdminService) Delete(ctx context.Context, id string, opts *RequestOptions) error {
	if err := s.CrudService.Delete(ctx, id, opts); err != nil {
		return err
	}
	if store := s.client.store; store.SuperuserID() != "" && store.SuperuserID() == id {
		store.Clear()
	}
	return nil
}
