package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionBody(t *testing.T, r *http.Request) wireRequest {
	t.Helper()
	var req wireRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

func TestHTTPClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := completionBody(t, r)
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "hi there", "reasoning_content": "thinking"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5}
		}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "key-123")
	resp, err := client.Complete(context.Background(), &Request{
		Model:    "test-model",
		Messages: []ChatMessage{{Role: RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, "thinking", resp.Reasoning)
	assert.Equal(t, 12, resp.Usage.Input)
	assert.Equal(t, 5, resp.Usage.Output)
	assert.Empty(t, resp.ToolCalls)
}

func TestHTTPClientDecodesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := completionBody(t, r)
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "read_file", req.Tools[0].Function.Name)

		w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "", "tool_calls": [
				{"id": "call-1", "type": "function", "function": {"name": "read_file", "arguments": "{\"path\": \"main.go\"}"}}
			]}, "finish_reason": "tool_calls"}]
		}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "")
	resp, err := client.Complete(context.Background(), &Request{
		Model:    "test-model",
		Messages: []ChatMessage{{Role: RoleUser, Content: "read main.go"}},
		Tools: []ToolDef{{
			Name:       "read_file",
			Parameters: json.RawMessage(`{"type":"object"}`),
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call-1", resp.ToolCalls[0].ID)
	assert.Equal(t, "read_file", resp.ToolCalls[0].Name)
	assert.Equal(t, "main.go", resp.ToolCalls[0].Arguments["path"])
}

func TestHTTPClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "finally"}, "finish_reason": "stop"}]}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "")
	resp, err := client.Complete(context.Background(), &Request{Model: "m", Messages: []ChatMessage{{Role: RoleUser, Content: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, "finally", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "")
	_, err := client.Complete(context.Background(), &Request{Model: "m", Messages: []ChatMessage{{Role: RoleUser, Content: "x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClientErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": {"message": "model not found", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "")
	_, err := client.Complete(context.Background(), &Request{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}
