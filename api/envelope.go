package api

import (
	"encoding/json"
	"fmt"

	"github.com/buildstate/fm-sync/core"
)

// The API wraps responses as {success, <resource>: ...} or
// {success, items: [...]}; a few older endpoints skip the wrapper
// entirely. Everything funnels through unwrap so downstream code only
// ever sees the resource value, and through core.Normalize so patch
// functions only ever see the canonical collection shapes.

// envelope is the common response wrapper. Message is only present on
// failures.
type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// serverMessage extracts the error message from a failure body, or ""
// when the body carries none.
func serverMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Message
}

// unwrap decodes a response body and strips the success envelope. When
// resource is non-empty and present in the wrapper, its value is
// returned; otherwise the whole decoded body is, covering the legacy
// endpoints that return the resource bare.
func unwrap(op string, body []byte, resource string) (any, error) {
	if len(body) == 0 {
		return nil, nil
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &Error{Op: op, Kind: KindServer, Message: "malformed response body", Err: err}
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return raw, nil
	}

	if success, ok := obj["success"].(bool); ok && !success {
		msg, _ := obj["message"].(string)
		if msg == "" {
			msg = genericMessage
		}
		return nil, &Error{Op: op, Kind: KindServer, Message: msg}
	}

	if resource != "" {
		if v, ok := obj[resource]; ok {
			return v, nil
		}
	}
	if v, ok := obj["items"]; ok {
		return map[string]any{"items": v}, nil
	}
	if v, ok := obj["data"]; ok {
		return v, nil
	}

	delete(obj, "success")
	delete(obj, "message")
	return obj, nil
}

// decodeList unwraps a list response into the canonical collection.
func (c *Client) decodeList(op string, body []byte, resource string) (core.Collection, error) {
	raw, err := unwrap(op, body, resource)
	if err != nil {
		return core.Collection{}, err
	}
	coll, err := core.Normalize(raw)
	if err != nil {
		return core.Collection{}, &Error{Op: op, Kind: KindServer, Message: err.Error(), Err: err}
	}
	return coll, nil
}

// decodeDoc unwraps a single-resource response.
func (c *Client) decodeDoc(op string, body []byte, resource string) (core.Doc, error) {
	raw, err := unwrap(op, body, resource)
	if err != nil {
		return nil, err
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &Error{Op: op, Kind: KindServer,
			Message: fmt.Sprintf("expected %s object, got %T", resource, raw)}
	}
	return core.Doc(obj), nil
}
