package transport

import (
	"io"
	"net/url"
	"time"
)

// File is an upload attached to a request, either through SendOptions.Files
// or as a value (File or []File) inside SendOptions.Body.
type File struct {
	Field       string // form field, filled from the body key when empty
	Name        string
	ContentType string
	Reader      io.Reader
}

// SendOptions describes one API request relative to the client's base URL.
type SendOptions struct {
	Method  string
	Headers map[string]string
	Query   url.Values
	Body    map[string]any
	Files   []File
}

// Merge copies the headers and query params of other into o. Headers and
// params already set on o are overwritten.
func (o *SendOptions) Merge(headers map[string]string, query url.Values) {
	if len(headers) > 0 && o.Headers == nil {
		o.Headers = make(map[string]string, len(headers))
	}
	for k, v := range headers {
		o.Headers[k] = v
	}

	if len(query) > 0 && o.Query == nil {
		o.Query = url.Values{}
	}
	for k, vs := range query {
		o.Query[k] = append([]string(nil), vs...)
	}
}

// dateLayout is the timestamp format the server stores and expects.
const dateLayout = "2006-01-02T15:04:05.000Z"

// splitBody converts time values to the server layout and pulls File values
// out of body. The input map is not modified.
func splitBody(body map[string]any) (map[string]any, []File) {
	if body == nil {
		return nil, nil
	}

	data := make(map[string]any, len(body))
	var files []File
	for key, value := range body {
		switch v := value.(type) {
		case time.Time:
			data[key] = v.UTC().Format(dateLayout)
		case *time.Time:
			if v != nil {
				data[key] = v.UTC().Format(dateLayout)
			} else {
				data[key] = nil
			}
		case File:
			files = append(files, withField(v, key))
		case []File:
			for _, f := range v {
				files = append(files, withField(f, key))
			}
		default:
			data[key] = value
		}
	}
	return data, files
}

func withField(f File, key string) File {
	if f.Field == "" {
		f.Field = key
	}
	return f
}
