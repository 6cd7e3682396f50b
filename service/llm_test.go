package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prizzzz/leaseIQ/config"
)

// fakeLLM replays canned completions and stream deltas.
type fakeLLM struct {
	completions []string
	errs        []error
	deltas      []string
	streamErr   error
	requests    []ChatRequest
}

func (f *fakeLLM) Complete(_ context.Context, req ChatRequest) (string, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(f.completions) {
		return f.completions[i], nil
	}
	return "", nil
}

func (f *fakeLLM) Stream(_ context.Context, req ChatRequest, onDelta func(string) error) error {
	f.requests = append(f.requests, req)
	for _, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return f.streamErr
}

func newTestLLM(url string) *LLMClient {
	return NewLLMClient("groq", config.ProviderConfig{BaseURL: url + "/", APIKey: "gsk-test", Model: "llama-test"}, 5*time.Second, nil)
}

func TestLLMComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama-test", body["model"])
		assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
		assert.Nil(t, body["stream"])

		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  {\"make\":\"BMW\"}  "}}]}`))
	}))
	defer server.Close()

	out, err := newTestLLM(server.URL).Complete(context.Background(), ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
		JSONMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"make":"BMW"}`, out)
}

func TestLLMCompleteNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	_, err := newTestLLM(server.URL).Complete(context.Background(), ChatRequest{})
	assert.Error(t, err)
}

func TestLLMRequestTooLarge(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		tooBig bool
	}{
		{"413", http.StatusRequestEntityTooLarge, `{"error":"payload"}`, true},
		{"message", http.StatusBadRequest, `{"error":{"message":"Request too large for model"}}`, true},
		{"other", http.StatusInternalServerError, `{"error":"boom"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestLLM(server.URL).Complete(context.Background(), ChatRequest{})
			require.Error(t, err)
			assert.Equal(t, tt.tooBig, IsRequestTooLarge(err))
		})
	}
}

func TestLLMStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"role":"assistant"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"Hello"}}]}`+"\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":", world"}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"ignored"}}]}`+"\n\n")
	}))
	defer server.Close()

	var got strings.Builder
	err := newTestLLM(server.URL).Stream(context.Background(), ChatRequest{}, func(delta string) error {
		got.WriteString(delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", got.String())
}

func TestLLMStreamCallbackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"a"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"b"}}]}`+"\n\n")
	}))
	defer server.Close()

	stop := errors.New("client went away")
	calls := 0
	err := newTestLLM(server.URL).Stream(context.Background(), ChatRequest{}, func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
