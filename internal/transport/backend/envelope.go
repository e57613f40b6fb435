// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ManuGH/cutiesync/internal/correlation"
	"github.com/ManuGH/cutiesync/internal/pipeline/model"
)

const maxErrorBody = 512

// errorEnvelope is the body of every non-2xx backend response.
type errorEnvelope struct {
	ErrorType string          `json:"error_type"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
	Code      string          `json:"code,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// decodeSuccess unwraps {data,timestamp,request_id}. Bodies without a data
// member are returned as they are; an empty body yields nil.
func decodeSuccess(status int, body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, &model.BackendError{
			StatusCode: status,
			ErrorType:  "InvalidResponse",
			Message:    "response body is not valid JSON",
		}
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err == nil {
		if data, ok := env["data"]; ok {
			return data, nil
		}
	}
	return json.RawMessage(body), nil
}

// decodeFailure builds a BackendError from an error envelope, falling back to
// the raw body when the backend did not send one.
func decodeFailure(status int, header http.Header, body []byte) *model.BackendError {
	be := &model.BackendError{StatusCode: status, RequestID: header.Get(correlation.HeaderRequestID)}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && (env.ErrorType != "" || env.Message != "") {
		be.ErrorType = env.ErrorType
		be.Message = env.Message
		be.Code = env.Code
		be.Details = env.Details
		if env.RequestID != "" {
			be.RequestID = env.RequestID
		}
		return be
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	be.Message = msg
	return be
}
