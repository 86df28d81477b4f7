package pocketbase

import (
	"context"
	"errors"
	"net/http"

	"github.com/thijsmie/pocketbase/pkg/models"
	"github.com/thijsmie/pocketbase/pkg/transport"
)

const (
	DefaultPerPage = 30
	DefaultBatch   = 500
)

// ErrEmptyRecordID is returned when an operation needs a record id.
var ErrEmptyRecordID = errors.New("pocketbase: empty record id")

// CrudService implements the list/view/create/update/delete endpoints shared
// by records, superusers and collections.
type CrudService[T any] struct {
	service
}

func newCrudService[T any](c *Client, basePath string) CrudService[T] {
	return CrudService[T]{service: service{client: c, basePath: basePath}}
}

// GetList returns one page of items.
func (s CrudService[T]) GetList(ctx context.Context, page, perPage int, opts *ListOptions) (*models.ListResult[T], error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}

	var result models.ListResult[T]
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

// GetFullList walks every page and returns all items. Totals are not
// computed by the server.
func (s CrudService[T]) GetFullList(ctx context.Context, opts *FullListOptions) ([]T, error) {
	batch := DefaultBatch
	var list ListOptions
	if opts != nil {
		list = opts.ListOptions
		if opts.Batch > 0 {
			batch = opts.Batch
		}
	}
	list.SkipTotal = true

	var items []T
	for page := 1; ; page++ {
		result, err := s.GetList(ctx, page, batch, &list)
		if err != nil {
			return nil, err
		}
		items = append(items, result.Items...)
		if len(result.Items) < batch {
			return items, nil
		}
	}
}

// GetFirst returns the first item matching opts.Filter. When nothing matches
// the error is a 404 *transport.ResponseError.
func (s CrudService[T]) GetFirst(ctx context.Context, opts *ListOptions) (T, error) {
	var zero T
	var list ListOptions
	if opts != nil {
		list = *opts
	}
	list.SkipTotal = true

	result, err := s.GetList(ctx, 1, 1, &list)
	if err != nil {
		return zero, err
	}
	if len(result.Items) == 0 {
		return zero, transport.NewResponseError(http.MethodGet,
			s.client.transport.BuildURL(s.path(), nil),
			http.StatusNotFound, "The requested resource wasn't found.")
	}
	return result.Items[0], nil
}

// GetOne returns the item with the given id.
func (s CrudService[T]) GetOne(ctx context.Context, id string, opts *RequestOptions) (T, error) {
	var out T
	if id == "" {
		return out, ErrEmptyRecordID
	}
	err := s.send(ctx, s.path(id), transport.SendOptions{Method: http.MethodGet}, opts, &out)
	return out, err
}

// Create creates an item. A password without passwordConfirm is confirmed
// with itself. body may hold transport.File values for file fields.
func (s CrudService[T]) Create(ctx context.Context, body map[string]any, opts *RequestOptions) (T, error) {
	var out T
	if pw, ok := body["password"]; ok {
		if _, confirmed := body["passwordConfirm"]; !confirmed {
			withConfirm := make(map[string]any, len(body)+1)
			for k, v := range body {
				withConfirm[k] = v
			}
			withConfirm["passwordConfirm"] = pw
			body = withConfirm
		}
	}
	err := s.send(ctx, s.path(), transport.SendOptions{Method: http.MethodPost, Body: body}, opts, &out)
	return out, err
}

// Update patches the item with the given id.
func (s CrudService[T]) Update(ctx context.Context, id string, body map[string]any, opts *RequestOptions) (T, error) {
	var out T
	if id == "" {
		return out, ErrEmptyRecordID
	}
	err := s.send(ctx, s.path(id), transport.SendOptions{Method: http.MethodPatch, Body: body}, opts, &out)
	return out, err
}

// Delete deletes the item with the given id.
func (s CrudService[T]) Delete(ctx context.Context, id string, opts *RequestOptions) error {
	if id == "" {
		return ErrEmptyRecordID
	}
	return s.send(ctx, s.path(id), transport.SendOptions{Method: http.MethodDelete}, opts, nil)
}
