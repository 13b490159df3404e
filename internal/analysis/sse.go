package analysis

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

const maxLineBytes = 1 << 20

var errLineTooLong = errors.New("analysis: sse line exceeds 1MiB")

// Event is one dispatched server-sent event.
type Event struct {
	Type  string
	Data  string
	ID    string
	Retry time.Duration
}

// Decoder reads server-sent events incrementally from an io.Reader.
type Decoder struct {
	r      *bufio.Reader
	lastID string
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next blocks until a complete event has been read. A trailing event that
// is not followed by a blank line is still dispatched at end of input.
// Returns io.EOF once the input is exhausted.
func (d *Decoder) Next() (Event, error) {
	var (
		ev      Event
		data    []string
		hasData bool
		seen    bool
	)

	dispatch := func() Event {
		ev.Data = strings.Join(data, "\n")
		ev.ID = d.lastID
		return ev
	}

	for {
		line, err := d.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) && hasData {
				return dispatch(), nil
			}
			return Event{}, err
		}

		if line == "" {
			if hasData {
				return dispatch(), nil
			}
			if seen {
				// Fields without data reset the pending event.
				ev = Event{}
				seen = false
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		seen = true

		switch field {
		case "event":
			ev.Type = value
		case "data":
			data = append(data, value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				d.lastID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				ev.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
}

// readLine returns one line without its terminator. CRLF and LF endings are
// both accepted.
func (d *Decoder) readLine() (string, error) {
	var sb strings.Builder
	for {
		chunk, isPrefix, err := d.r.ReadLine()
		if err != nil {
			if sb.Len() > 0 && errors.Is(err, io.EOF) {
				return sb.String(), nil
			}
			return "", err
		}
		sb.Write(chunk)
		if sb.Len() > maxLineBytes {
			return "", errLineTooLong
		}
		if !isPrefix {
			return sb.String(), nil
		}
	}
}
