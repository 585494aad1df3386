package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
)

// Decoder reads SSE frames from a byte stream. Comments, unknown fields, lines that are
// not fields and frames whose data is not JSON are skipped.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next frame, or io.EOF once the stream ends.
func (d *Decoder) Next() (Event, error) {
	var (
		ev      Event
		data    []string
		hasData bool
	)
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return Event{}, err
		}
		eof := errors.Is(err, io.EOF)
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData && ev.Kind != "" {
				if frame, ok := finish(ev, data); ok {
					return frame, nil
				}
			}
			ev, data, hasData = Event{}, nil, false
			if eof {
				return Event{}, io.EOF
			}
			continue
		}

		if !strings.HasPrefix(line, ":") {
			field, value, found := strings.Cut(line, ":")
			if found {
				value = strings.TrimPrefix(value, " ")
				switch field {
				case "id":
					if n, err := strconv.ParseInt(value, 10, 64); err == nil {
						ev.Seq = n
					}
				case "event":
					ev.Kind = Kind(value)
				case "data":
					data = append(data, value)
					hasData = true
				}
			}
		}

		if eof {
			if hasData && ev.Kind != "" {
				if frame, ok := finish(ev, data); ok {
					return frame, nil
				}
			}
			return Event{}, io.EOF
		}
	}
}

func finish(ev Event, data []string) (Event, bool) {
	raw := []byte(strings.Join(data, "\n"))
	if !json.Valid(raw) {
		return Event{}, false
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return Event{}, false
	}
	ev.Data = compact.Bytes()
	return ev, true
}

// DecodeAll reads every frame until EOF.
func DecodeAll(r io.Reader) ([]Event, error) {
	d := NewDecoder(r)
	var out []Event
	for {
		ev, err := d.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}
