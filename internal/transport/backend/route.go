// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Route maps an instruction type to an endpoint. Path placeholders of the
// form {field} are filled from the top-level fields of the payload.
type Route struct {
	Method string
	Path   string
}

// Call is an explicit request. A dispatch payload of type Call or *Call
// bypasses the route table.
type Call struct {
	Method string
	Path   string
	Body   any
}

// hasBody reports whether method carries a JSON request body.
func hasBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		return false
	}
	return true
}

// expandPath substitutes {field} placeholders with path-escaped payload values.
func expandPath(tmpl string, payload any) (string, error) {
	if !strings.Contains(tmpl, "{") {
		return tmpl, nil
	}

	fields, err := payloadFields(payload)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", fmt.Errorf("backend: unterminated placeholder in %q", tmpl)
		}
		name := rest[open+1 : open+end]
		raw, ok := fields[name]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingPathParam, name)
		}
		value, err := pathValue(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrMissingPathParam, name, err)
		}
		b.WriteString(rest[:open])
		b.WriteString(url.PathEscape(value))
		rest = rest[open+end+1:]
	}
	return b.String(), nil
}

func payloadFields(payload any) (map[string]json.RawMessage, error) {
	var data []byte
	switch p := payload.(type) {
	case nil:
		return map[string]json.RawMessage{}, nil
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		data = b
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMissingPathParam)
	}
	return fields, nil
}

// pathValue accepts JSON strings and numbers.
func pathValue(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("empty value")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String(), nil
		}
	}
	return "", fmt.Errorf("value must be a string or number")
}
