// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package push

import (
	"bufio"
	"io"
	"strings"
)

const maxFrameLine = 1 << 20

// frame is one dispatched server-sent event.
type frame struct {
	Event string
	ID    string
	Data  string
}

// frameReader splits a text/event-stream body into frames. Comment lines
// (keep-alives) and unknown fields are skipped.
type frameReader struct {
	sc *bufio.Scanner
}

func newFrameReader(r io.Reader) *frameReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxFrameLine)
	return &frameReader{sc: sc}
}

// Next returns the next frame carrying data. It returns io.EOF when the
// stream ends cleanly.
func (fr *frameReader) Next() (frame, error) {
	var (
		f       frame
		data    []string
		hasData bool
	)
	for fr.sc.Scan() {
		line := strings.TrimSuffix(fr.sc.Text(), "\r")
		if line == "" {
			if hasData {
				f.Data = strings.Join(data, "\n")
				return f, nil
			}
			f = frame{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.Event = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				f.ID = value
			}
		case "data":
			data = append(data, value)
			hasData = true
		}
	}
	if err := fr.sc.Err(); err != nil {
		return frame{}, err
	}
	return frame{}, io.EOF
}
