package pocketbase

import (
	"net/url"
	"strconv"

	"github.com/thijsmie/pocketbase/pkg/transport"
)

// RequestOptions are extra headers and query params sent with a request.
type RequestOptions struct {
	Headers map[string]string
	Query   url.Values
}

// ListOptions narrow down a list request.
type ListOptions struct {
	RequestOptions
	Filter    string
	Sort      string
	Expand    string
	Fields    string
	SkipTotal bool
}

// FullListOptions are ListOptions plus the page size used to walk all pages.
type FullListOptions struct {
	ListOptions
	Batch int
}

// FileOptions select the variant of a downloaded file.
type FileOptions struct {
	RequestOptions
	Thumb string
}

func (o *RequestOptions) apply(send *transport.SendOptions) {
	if o == nil {
		return
	}
	send.Merge(o.Headers, o.Query)
}

func (o *ListOptions) query(page, perPage int) url.Values {
	q := url.Values{}
	if o != nil {
		for k, vs := range o.Query {
			q[k] = append([]string(nil), vs...)
		}
		if o.Filter != "" {
			q.Set("filter", o.Filter)
		}
		if o.Sort != "" {
			q.Set("sort", o.Sort)
		}
		if o.Expand != "" {
			q.Set("expand", o.Expand)
		}
		if o.Fields != "" {
			q.Set("fields", o.Fields)
		}
		if o.SkipTotal {
			q.Set("skipTotal", "1")
		}
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", strconv.Itoa(perPage))
	return q
}

func (o *ListOptions) headers() map[string]string {
	if o == nil {
		return nil
	}
	return o.Headers
}
