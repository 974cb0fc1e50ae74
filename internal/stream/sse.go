package stream

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// maxLineSize bounds a single SSE line.
const maxLineSize = 1 << 20

// Event is one dispatched server-sent event.
type Event struct {
	ID   string
	Name string
	Data []byte
}

// Reader splits a text/event-stream body into events.
type Reader struct {
	scanner *bufio.Scanner
	lastID  string
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{scanner: sc}
}

// Next blocks until a complete event is available. It returns io.EOF when the
// stream ends; a partially received event at EOF is discarded.
func (r *Reader) Next() (Event, error) {
	var (
		name    string
		data    bytes.Buffer
		hasData bool
	)
	for r.scanner.Scan() {
		line := strings.TrimSuffix(r.scanner.Text(), "\r")

		if line == "" {
			if !hasData {
				name = ""
				continue
			}
			return Event{ID: r.lastID, Name: name, Data: data.Bytes()}, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			name = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			r.lastID = value
		}
	}
	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}
