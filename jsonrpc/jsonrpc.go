package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// RequestId is the type used to represent the id of a JSON-RPC request.
// After parsing it holds either an int64 or a string.
type RequestId any

// Request represents a JSON-RPC request message.
type Request struct {
	// Id corresponds to the JSON schema field "id".
	Id RequestId `json:"id"`

	// Jsonrpc corresponds to the JSON schema field "jsonrpc".
	Jsonrpc string `json:"jsonrpc"`

	// Method corresponds to the JSON schema field "method".
	Method string `json:"method"`

	// Params corresponds to the JSON schema field "params".
	// It is stored as a []byte to enable efficient unmarshaling into custom types later on.
	Params json.RawMessage `json:"params,omitempty"`
}

// UnmarshalJSON is a custom JSON unmarshaler for the Request type.
func (m *Request) UnmarshalJSON(data []byte) error {
	required := struct {
		Id      *json.RawMessage `json:"id"`
		Jsonrpc *string          `json:"jsonrpc"`
		Method  *string          `json:"method"`
		Params  *json.RawMessage `json:"params"`
	}{}
	if err := json.Unmarshal(data, &required); err != nil {
		return err
	}
	if required.Id == nil || isJSONNull(*required.Id) {
		return errors.New("field id in Request: required")
	}
	if required.Jsonrpc == nil {
		return errors.New("field jsonrpc in Request: required")
	}
	if *required.Jsonrpc != Version {
		return fmt.Errorf("field jsonrpc in Request: expected %q, got %q", Version, *required.Jsonrpc)
	}
	if required.Method == nil {
		return errors.New("field method in Request: required")
	}
	id, err := parseRequestId(*required.Id)
	if err != nil {
		return fmt.Errorf("field id in Request: %w", err)
	}
	if required.Params != nil {
		if err := validateParams(*required.Params); err != nil {
			return fmt.Errorf("field params in Request: %w", err)
		}
		m.Params = *required.Params
	}
	m.Id = id
	m.Jsonrpc = *required.Jsonrpc
	m.Method = *required.Method
	return nil
}

// Notification is a type representing a JSON-RPC notification message.
type Notification struct {
	// Jsonrpc corresponds to the JSON schema field "jsonrpc".
	Jsonrpc string `json:"jsonrpc"`

	// Method corresponds to the JSON schema field "method".
	Method string `json:"method"`

	// Params corresponds to the JSON schema field "params".
	Params json.RawMessage `json:"params,omitempty"`
}

// UnmarshalJSON is a custom JSON unmarshaler for the Notification type.
func (m *Notification) UnmarshalJSON(data []byte) error {
	required := struct {
		Jsonrpc *string          `json:"jsonrpc"`
		Method  *string          `json:"method"`
		Id      *json.RawMessage `json:"id"`
		Params  *json.RawMessage `json:"params"`
	}{}
	if err := json.Unmarshal(data, &required); err != nil {
		return err
	}
	if required.Jsonrpc == nil {
		return errors.New("field jsonrpc in Notification: required")
	}
	if *required.Jsonrpc != Version {
		return fmt.Errorf("field jsonrpc in Notification: expected %q, got %q", Version, *required.Jsonrpc)
	}
	if required.Method == nil {
		return errors.New("field method in Notification: required")
	}
	if required.Id != nil {
		return errors.New("field id in Notification: not allowed")
	}
	if required.Params != nil {
		if err := validateParams(*required.Params); err != nil {
			return fmt.Errorf("field params in Notification: %w", err)
		}
		m.Params = *required.Params
	}
	m.Jsonrpc = *required.Jsonrpc
	m.Method = *required.Method
	return nil
}

// Response represents a JSON-RPC response carrying either a result or an error.
type Response struct {
	// Id corresponds to the JSON schema field "id".
	Id RequestId `json:"id"`

	// Jsonrpc corresponds to the JSON schema field "jsonrpc".
	Jsonrpc string `json:"jsonrpc"`

	// Error is set on error responses.
	Error *Error `json:"error,omitempty"`

	// Result corresponds to the JSON schema field "result".
	Result json.RawMessage `json:"result,omitempty"`
}

// NewResponse creates a new success Response with the specified id and result data.
func NewResponse(id RequestId, result []byte) *Response {
	return &Response{
		Id:      id,
		Jsonrpc: Version,
		Result:  result,
	}
}

// NewErrorResponse creates an error Response for the given request id.
func NewErrorResponse(id RequestId, error *Error) *Response {
	return &Response{
		Id:      id,
		Jsonrpc: Version,
		Error:   error,
	}
}

// MarshalJSON emits the "id" member explicitly so that error responses with a
// null id remain valid JSON-RPC.
func (m *Response) MarshalJSON() ([]byte, error) {
	type alias struct {
		Jsonrpc string          `json:"jsonrpc"`
		Id      RequestId       `json:"id"`
		Error   *Error          `json:"error,omitempty"`
		Result  json.RawMessage `json:"result,omitempty"`
	}
	return json.Marshal(&alias{Jsonrpc: m.Jsonrpc, Id: m.Id, Error: m.Error, Result: m.Result})
}

// UnmarshalJSON is a custom JSON unmarshaler for the Response type.
func (m *Response) UnmarshalJSON(data []byte) error {
	required := struct {
		Id      *json.RawMessage `json:"id"`
		Jsonrpc *string          `json:"jsonrpc"`
		Result  *json.RawMessage `json:"result"`
		Error   *Error           `json:"error"`
	}{}
	if err := json.Unmarshal(data, &required); err != nil {
		return err
	}
	if required.Id == nil {
		return errors.New("field id in Response: required")
	}
	if required.Jsonrpc == nil {
		return errors.New("field jsonrpc in Response: required")
	}
	if *required.Jsonrpc != Version {
		return fmt.Errorf("field jsonrpc in Response: expected %q, got %q", Version, *required.Jsonrpc)
	}
	if required.Result != nil && required.Error != nil {
		return errors.New("response carries both result and error")
	}
	if required.Result == nil && required.Error == nil {
		return errors.New("response carries neither result nor error")
	}
	if !isJSONNull(*required.Id) {
		id, err := parseRequestId(*required.Id)
		if err != nil {
			return fmt.Errorf("field id in Response: %w", err)
		}
		m.Id = id
	} else if required.Error == nil || required.Error.Code != ParseError {
		return errors.New("field id in Response: null is only valid on parse error responses")
	}
	m.Jsonrpc = *required.Jsonrpc
	if required.Result != nil {
		m.Result = *required.Result
	}
	m.Error = required.Error
	return nil
}

// parseRequestId normalizes a raw id into an int64 or a string.
// Fractional or exponent numeric ids are rejected.
func parseRequestId(raw json.RawMessage) (RequestId, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty id")
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return s, nil
	}
	var num json.Number
	if err := json.Unmarshal(trimmed, &num); err != nil {
		return nil, errors.New("id must be an integer or a string")
	}
	if strings.ContainsAny(num.String(), ".eE") {
		return nil, fmt.Errorf("id must not be fractional: %s", num)
	}
	value, err := num.Int64()
	if err != nil {
		return nil, fmt.Errorf("id must be an integer: %s", num)
	}
	return value, nil
}

// validateParams enforces that params is a JSON object; arrays and primitives
// are rejected.
func validateParams(raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || isJSONNull(trimmed) {
		return nil
	}
	if trimmed[0] != '{' {
		return errors.New("params must be an object")
	}
	return nil
}

func isJSONNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
