// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipcwire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ToolInput is the tool's argument object, preserving the key order in
// which it arrived. Values are whatever encoding/json produces for an
// untyped target with UseNumber: string, json.Number, bool, nil,
// []any, or map[string]any.
//
// The zero value is an empty object.
type ToolInput struct {
	keys   []string
	values map[string]any
}

// NewToolInput builds a ToolInput from alternating key/value pairs.
// Panics on an odd argument count or a non-string key; intended for
// tests and literal construction.
func NewToolInput(pairs ...any) ToolInput {
	if len(pairs)%2 != 0 {
		panic("ipcwire.NewToolInput: odd number of arguments")
	}
	var input ToolInput
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("ipcwire.NewToolInput: key %v is not a string", pairs[i]))
		}
		input.Set(key, pairs[i+1])
	}
	return input
}

// Set stores value under key. A new key is appended to the order; an
// existing key keeps its position.
func (t *ToolInput) Set(key string, value any) {
	if t.values == nil {
		t.values = make(map[string]any)
	}
	if _, exists := t.values[key]; !exists {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

// Get returns the value stored under key.
func (t ToolInput) Get(key string) (any, bool) {
	value, ok := t.values[key]
	return value, ok
}

// StringValue returns the value under key if it is a string.
func (t ToolInput) StringValue(key string) (string, bool) {
	value, ok := t.values[key].(string)
	return value, ok
}

// Keys returns the keys in arrival order.
func (t ToolInput) Keys() []string {
	return append([]string(nil), t.keys...)
}

// Len returns the number of keys.
func (t ToolInput) Len() int { return len(t.keys) }

// Describe renders "key: value" pairs joined by ", " in key order.
// Used for notification text of tools without a dedicated summary.
func (t ToolInput) Describe() string {
	parts := make([]string, 0, len(t.keys))
	for _, key := range t.keys {
		parts = append(parts, key+": "+describeValue(t.values[key]))
	}
	return strings.Join(parts, ", ")
}

func describeValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "null"
	case string:
		return typed
	case json.Number:
		return typed.String()
	case bool:
		if typed {
			return "true"
		}
		return "false"
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, key+": "+describeValue(typed[key]))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []any:
		parts := make([]string, 0, len(typed))
		for _, element := range typed {
			parts = append(parts, describeValue(element))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(typed)
	}
}

// MarshalJSON writes the object with keys in arrival order.
func (t ToolInput) MarshalJSON() ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteByte('{')
	for i, key := range t.keys {
		if i > 0 {
			buffer.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buffer.Write(encodedKey)
		buffer.WriteByte(':')
		encodedValue, err := json.Marshal(t.values[key])
		if err != nil {
			return nil, fmt.Errorf("encoding tool input %q: %w", key, err)
		}
		buffer.Write(encodedValue)
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, recording key order. JSON null
// decodes to an empty ToolInput. Duplicate keys keep the first
// position and the last value.
func (t *ToolInput) UnmarshalJSON(data []byte) error {
	*t = ToolInput{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("decoding tool input: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decoding tool input: expected object, got %v", token)
	}
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("decoding tool input key: %w", err)
		}
		key, ok := keyToken.(string)
		if !ok {
			return fmt.Errorf("decoding tool input: non-string key %v", keyToken)
		}
		var value any
		if err := decoder.Decode(&value); err != nil {
			return fmt.Errorf("decoding tool input %q: %w", key, err)
		}
		t.Set(key, value)
	}
	if _, err := decoder.Token(); err != nil {
		return fmt.Errorf("decoding tool input: %w", err)
	}
	return nil
}
