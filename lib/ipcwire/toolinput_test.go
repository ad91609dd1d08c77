// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipcwire

import (
	"encoding/json"
	"slices"
	"testing"
)

func TestToolInputPreservesOrder(t *testing.T) {
	input := `{"zeta":"last-alpha","alpha":1,"nested":{"b":true,"a":null},"list":["x",2]}`
	var toolInput ToolInput
	if err := json.Unmarshal([]byte(input), &toolInput); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if keys := toolInput.Keys(); !slices.Equal(keys, []string{"zeta", "alpha", "nested", "list"}) {
		t.Errorf("Keys = %v", keys)
	}

	data, err := json.Marshal(toolInput)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// Nested maps are re-encoded by encoding/json, which sorts keys;
	// only the top-level order is preserved.
	want := `{"zeta":"last-alpha","alpha":1,"nested":{"a":null,"b":true},"list":["x",2]}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
}

func TestToolInputNull(t *testing.T) {
	var toolInput ToolInput
	if err := json.Unmarshal([]byte(`null`), &toolInput); err != nil {
		t.Fatalf("Unmarshal(null): %v", err)
	}
	if toolInput.Len() != 0 {
		t.Errorf("Len = %d, want 0", toolInput.Len())
	}
	data, err := json.Marshal(toolInput)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{}` {
		t.Errorf("Marshal(empty) = %s, want {}", data)
	}
}

func TestToolInputDuplicateKey(t *testing.T) {
	var toolInput ToolInput
	if err := json.Unmarshal([]byte(`{"a":1,"b":2,"a":3}`), &toolInput); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if keys := toolInput.Keys(); !slices.Equal(keys, []string{"a", "b"}) {
		t.Errorf("Keys = %v", keys)
	}
	if value, _ := toolInput.Get("a"); value != json.Number("3") {
		t.Errorf("a = %v, want 3", value)
	}
}

func TestToolInputRejectsNonObject(t *testing.T) {
	for _, input := range []string{`[]`, `"text"`, `42`, `{"a":}`} {
		var toolInput ToolInput
		if err := json.Unmarshal([]byte(input), &toolInput); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", input)
		}
	}
}

func TestToolInputDescribe(t *testing.T) {
	toolInput := NewToolInput(
		"pattern", "*.go",
		"limit", json.Number("10"),
		"recursive", true,
		"exclude", nil,
		"paths", []any{"a", "b"},
		"options", map[string]any{"z": "last", "a": "first"},
	)
	want := "pattern: *.go, limit: 10, recursive: true, exclude: null, paths: [a, b], options: [a: first, z: last]"
	if got := toolInput.Describe(); got != want {
		t.Errorf("Describe = %q\nwant       %q", got, want)
	}
}

func TestToolInputStringValue(t *testing.T) {
	toolInput := NewToolInput("command", "echo hi", "count", json.Number("2"))
	if value, ok := toolInput.StringValue("command"); !ok || value != "echo hi" {
		t.Errorf("StringValue(command) = %q, %v", value, ok)
	}
	if _, ok := toolInput.StringValue("count"); ok {
		t.Error("StringValue(count) reported a string for a number")
	}
	if _, ok := toolInput.StringValue("missing"); ok {
		t.Error("StringValue(missing) reported a value")
	}
}
