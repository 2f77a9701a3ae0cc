// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"fmt"
)

// ParseError is returned by Parse/ParseBatch when the raw bytes are not
// valid JSON or not a well-formed JSON-RPC 2.0 envelope.
type ParseError struct {
	Reason string
	// DerivedID is the request id recovered from the raw payload, if any
	// partial decode succeeded before the shape was found invalid. Nil if
	// no id could be derived.
	DerivedID any
}

func (e *ParseError) Error() string { return "parse error: " + e.Reason }

// BatchError is returned by ParseBatch for a malformed batch.
type BatchError struct{ Reason string }

func (e *BatchError) Error() string { return "batch error: " + e.Reason }

// Parse decodes raw bytes into a Message, classifying it as a Request,
// Response, ErrorResponse, or Notification:
//
//	Request      = has method and id
//	Response     = has id and (result xor error)
//	Notification = has method and no id
//
// Any other combination is an invalid message, returned as *ParseError.
// DerivedID on that error carries the message's id only when the JSON
// decoded, the version was "2.0", and a valid id was present; it is nil for
// undecodable JSON, a wrong version, an invalid id, or a message with no id.
func Parse(raw []byte) (*Message, error) {
	var probe struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Method  *string         `json:"method"`
		Params  json.RawMessage `json:"params"`
		Result  json.RawMessage `json:"result"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	if probe.JSONRPC != Version {
		return nil, &ParseError{Reason: fmt.Sprintf("unsupported jsonrpc version %q", probe.JSONRPC)}
	}

	var id any
	hasID := len(probe.ID) > 0 && string(probe.ID) != "null"
	if hasID {
		if err := json.Unmarshal(probe.ID, &id); err != nil {
			return nil, &ParseError{Reason: "invalid id"}
		}
		if err := validateID(id); err != nil {
			return nil, &ParseError{Reason: err.Error()}
		}
	}

	hasMethod := probe.Method != nil && *probe.Method != ""
	hasResult := len(probe.Result) > 0
	hasError := len(probe.Error) > 0

	switch {
	case hasMethod && hasID:
		return &Message{Kind: KindRequest, ID: id, Method: *probe.Method, Params: probe.Params}, nil
	case hasMethod && !hasID:
		return &Message{Kind: KindNotification, Method: *probe.Method, Params: probe.Params}, nil
	case hasID && hasResult && !hasError:
		return &Message{Kind: KindResponse, ID: id, Result: probe.Result}, nil
	case hasID && hasError && !hasResult:
		var errObj ErrorObject
		if err := json.Unmarshal(probe.Error, &errObj); err != nil {
			return nil, &ParseError{Reason: "invalid error object", DerivedID: id}
		}
		return &Message{Kind: KindErrorResponse, ID: id, Error: &errObj}, nil
	case hasID && hasResult && hasError:
		return nil, &ParseError{Reason: "response has both result and error", DerivedID: id}
	default:
		return nil, &ParseError{Reason: "message is neither request, response, nor notification", DerivedID: id}
	}
}

// ParseBatch decodes a JSON array of messages. An empty array is
// rejected.
func ParseBatch(raw []byte) ([]*Message, error) {
	var rawItems []json.RawMessage
	if err := json.Unmarshal(raw, &rawItems); err != nil {
		return nil, &BatchError{Reason: err.Error()}
	}
	if len(rawItems) == 0 {
		return nil, &BatchError{Reason: "batch must not be empty"}
	}
	msgs := make([]*Message, 0, len(rawItems))
	for _, item := range rawItems {
		msg, err := Parse(item)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// BuildRequest constructs a Request message.
func BuildRequest(id any, method string, params json.RawMessage) *Message {
	return &Message{Kind: KindRequest, ID: id, Method: method, Params: params}
}

// BuildResponse constructs a Response message.
func BuildResponse(id any, result json.RawMessage) *Message {
	return &Message{Kind: KindResponse, ID: id, Result: result}
}

// BuildError constructs an ErrorResponse message.
func BuildError(id any, code int, message string, data map[string]any) *Message {
	return &Message{Kind: KindErrorResponse, ID: id, Error: &ErrorObject{Code: code, Message: message, Data: data}}
}

// BuildNotification constructs a Notification message.
func BuildNotification(method string, params json.RawMessage) *Message {
	return &Message{Kind: KindNotification, Method: method, Params: params}
}

// Encode serializes a Message back to its wire envelope.
func Encode(m *Message) ([]byte, error) {
	env := envelope{JSONRPC: Version}
	switch m.Kind {
	case KindRequest:
		env.ID = m.ID
		env.Method = m.Method
		env.Params = m.Params
	case KindNotification:
		env.Method = m.Method
		env.Params = m.Params
	case KindResponse:
		env.ID = m.ID
		env.Result = m.Result
		if env.Result == nil {
			env.Result = json.RawMessage("null")
		}
	case KindErrorResponse:
		env.ID = m.ID
		if env.ID == nil {
			env.ID = json.RawMessage("null")
		}
		env.Error = m.Error
	default:
		return nil, fmt.Errorf("unknown message kind %d", m.Kind)
	}
	return json.Marshal(env)
}
