package realtime

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Message is one frame of a server-sent events stream.
type Message struct {
	ID    string
	Name  string
	Data  []byte
	Retry int
}

// Decoder reads server-sent event frames from a stream.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next complete frame. A frame cut off by the end of the
// stream is discarded and io.EOF returned.
func (d *Decoder) Next() (*Message, error) {
	var (
		msg     Message
		data    strings.Builder
		hasData bool
		seen    bool
	)

	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			// a trailing line without terminator is part of an incomplete frame
			return nil, err
		}
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")

		if line == "" {
			if !seen {
				continue
			}
			if hasData {
				msg.Data = []byte(data.String())
			}
			if msg.Name == "" {
				msg.Name = "message"
			}
			return &msg, nil
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			msg.Name = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				msg.ID = value
			}
		case "retry":
			if n, err := strconv.Atoi(value); err == nil {
				msg.Retry = n
			}
		default:
			continue
		}
		seen = true
	}
}
