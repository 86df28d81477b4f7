package realtime

import (
	"net/url"
	"strings"

	"github.com/tidwall/sjson"
)

// Options are per-subscription query params and headers the server applies
// when it evaluates the subscription, e.g. {"expand": "author"}.
type Options struct {
	Query   map[string]any
	Headers map[string]string
}

func (o *Options) empty() bool {
	return o == nil || (len(o.Query) == 0 && len(o.Headers) == 0)
}

// TopicKey returns the canonical key of a subscription: the topic itself,
// followed by the serialized options when there are any. Equal options always
// give equal keys.
func TopicKey(topic string, opts *Options) (string, error) {
	if opts.empty() {
		return topic, nil
	}

	raw := "{}"
	var err error
	if len(opts.Query) > 0 {
		if raw, err = sjson.Set(raw, "query", opts.Query); err != nil {
			return "", err
		}
	}
	if len(opts.Headers) > 0 {
		if raw, err = sjson.Set(raw, "headers", opts.Headers); err != nil {
			return "", err
		}
	}

	sep := "?"
	if strings.Contains(topic, "?") {
		sep = "&"
	}
	return topic + sep + url.Values{"options": {raw}}.Encode(), nil
}
