package grader_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autograde-api/pkg/grader"
)

const fencedReply = "```json\n{\"results\":[{\"question\":\"Q1\",\"mistakes\":[],\"score\":7,\"feedback\":\"ok\"}],\"totalScore\":7,\"overallFeedback\":\"solid\"}\n```"

func newOpenAIServer(t *testing.T, transcript *string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 3)
		if transcript != nil {
			require.Equal(t, *transcript, body.Messages[2].Content)
		}

		reply := map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]interface{}{
				{"index": 0, "finish_reason": "stop", "message": map[string]string{"role": "assistant", "content": fencedReply}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(reply))
	})
	mux.HandleFunc("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text": "the answer is forty two"}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newOpenAIGrader(t *testing.T, baseURL string) *grader.OpenAIGrader {
	t.Helper()
	g, err := grader.NewOpenAIGrader(grader.OpenAIConfig{APIKey: "test-key", BaseURL: baseURL + "/v1", Logger: zerolog.Nop()})
	require.NoError(t, err)
	return g
}

func TestOpenAIGraderStripsCodeFence(t *testing.T) {
	server := newOpenAIServer(t, nil)
	g := newOpenAIGrader(t, server.URL)

	reply, err := g.Grade(context.Background(), sampleRequest())
	require.NoError(t, err)

	result, outcome := grader.Coerce(reply)
	require.Equal(t, grader.OutcomeValid, outcome)
	require.Equal(t, 7.0, result.TotalScore)
	require.Equal(t, "solid", result.OverallFeedback)
}

func TestOpenAIGraderTranscribesAudio(t *testing.T) {
	transcript := "the answer is forty two"
	server := newOpenAIServer(t, &transcript)
	g := newOpenAIGrader(t, server.URL)

	req := sampleRequest()
	req.FileName = "DoeJane.mp3"
	req.ContentType = "audio/mpeg"
	req.Content = []byte{0x49, 0x44, 0x33}

	_, err := g.Grade(context.Background(), req)
	require.NoError(t, err)
}

func TestOpenAIGraderRejectsUnsupportedContent(t *testing.T) {
	g := newOpenAIGrader(t, "http://127.0.0.1:0")

	req := sampleRequest()
	req.ContentType = "image/png"

	_, err := g.Grade(context.Background(), req)
	require.ErrorIs(t, err, grader.ErrUnsupportedContent)
	require.False(t, grader.IsRetryable(err))
}

func TestOpenAIGraderUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid api key", "type": "invalid_request_error"}}`))
	}))
	t.Cleanup(server.Close)
	g := newOpenAIGrader(t, server.URL)

	_, err := g.Grade(context.Background(), sampleRequest())
	require.ErrorIs(t, err, grader.ErrUnauthorized)
}

func TestNewOpenAIGraderRequiresKey(t *testing.T) {
	_, err := grader.NewOpenAIGrader(grader.OpenAIConfig{})
	require.Error(t, err)
}

type assistantsStub struct {
	mu        sync.Mutex
	polls     int
	finalRun  string
	deleted   []string
	thread    map[string]interface{}
	assistant map[string]interface{}
	upload    string
}

func (s *assistantsStub) record(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, kind)
}

func (s *assistantsStub) deletedKinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

func newAssistantsServer(t *testing.T, stub *assistantsStub) *httptest.Server {
	t.Helper()
	writeJSON := func(w http.ResponseWriter, body interface{}) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}
	decode := func(r *http.Request) map[string]interface{} {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		return body
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/files", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "assistants", r.FormValue("purpose"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		stub.mu.Lock()
		stub.upload = header.Filename
		stub.mu.Unlock()
		writeJSON(w, map[string]interface{}{"id": "file-1", "object": "file", "purpose": "assistants", "filename": header.Filename})
	})
	mux.HandleFunc("POST /v1/assistants", func(w http.ResponseWriter, r *http.Request) {
		body := decode(r)
		stub.mu.Lock()
		stub.assistant = body
		stub.mu.Unlock()
		writeJSON(w, map[string]interface{}{"id": "asst-1", "object": "assistant", "model": body["model"]})
	})
	mux.HandleFunc("POST /v1/threads", func(w http.ResponseWriter, r *http.Request) {
		body := decode(r)
		stub.mu.Lock()
		stub.thread = body
		stub.mu.Unlock()
		writeJSON(w, map[string]interface{}{"id": "thread-1", "object": "thread"})
	})
	mux.HandleFunc("POST /v1/threads/thread-1/runs", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "asst-1", decode(r)["assistant_id"])
		writeJSON(w, map[string]interface{}{"id": "run-1", "object": "thread.run", "thread_id": "thread-1", "status": "queued"})
	})
	mux.HandleFunc("GET /v1/threads/thread-1/runs/run-1", func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		stub.polls++
		status := "in_progress"
		if stub.polls > 1 {
			status = stub.finalRun
		}
		stub.mu.Unlock()
		run := map[string]interface{}{"id": "run-1", "object": "thread.run", "thread_id": "thread-1", "status": status}
		if status == "failed" {
			run["last_error"] = map[string]string{"code": "server_error", "message": "search backend unavailable"}
		}
		writeJSON(w, run)
	})
	mux.HandleFunc("GET /v1/threads/thread-1/messages", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "run-1", r.URL.Query().Get("run_id"))
		writeJSON(w, map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{{
				"id":        "msg-2",
				"object":    "thread.message",
				"thread_id": "thread-1",
				"role":      "assistant",
				"content":   []map[string]interface{}{{"type": "text", "text": map[string]interface{}{"value": fencedReply, "annotations": []interface{}{}}}},
			}},
		})
	})
	mux.HandleFunc("DELETE /v1/files/file-1", func(w http.ResponseWriter, r *http.Request) {
		stub.record("file")
		writeJSON(w, map[string]interface{}{"id": "file-1", "object": "file", "deleted": true})
	})
	mux.HandleFunc("DELETE /v1/assistants/asst-1", func(w http.ResponseWriter, r *http.Request) {
		stub.record("assistant")
		writeJSON(w, map[string]interface{}{"id": "asst-1", "object": "assistant.deleted", "deleted": true})
	})
	mux.HandleFunc("DELETE /v1/threads/thread-1", func(w http.ResponseWriter, r *http.Request) {
		stub.record("thread")
		writeJSON(w, map[string]interface{}{"id": "thread-1", "object": "thread.deleted", "deleted": true})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func pdfRequest() grader.Request {
	req := sampleRequest()
	req.FileName = "DoeJane.pdf"
	req.ContentType = "application/pdf"
	req.Content = []byte("%PDF-1.4\n%%EOF")
	return req
}

func newDocumentGrader(t *testing.T, baseURL string) *grader.OpenAIGrader {
	t.Helper()
	g, err := grader.NewOpenAIGrader(grader.OpenAIConfig{
		APIKey:       "test-key",
		BaseURL:      baseURL + "/v1",
		PollInterval: time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return g
}

func TestOpenAIGraderGradesPDFWithFileSearch(t *testing.T) {
	stub := &assistantsStub{finalRun: "completed"}
	server := newAssistantsServer(t, stub)
	g := newDocumentGrader(t, server.URL)

	reply, err := g.Grade(context.Background(), pdfRequest())
	require.NoError(t, err)

	result, outcome := grader.Coerce(reply)
	require.Equal(t, grader.OutcomeValid, outcome)
	require.Equal(t, 7.0, result.TotalScore)

	require.Equal(t, "DoeJane.pdf", stub.upload)
	require.Equal(t, []interface{}{map[string]interface{}{"type": "file_search"}}, stub.assistant["tools"])

	messages := stub.thread["messages"].([]interface{})
	require.Len(t, messages, 1)
	message := messages[0].(map[string]interface{})
	require.Contains(t, message["content"], "Correct answer earns 10 points")
	require.Equal(t, []interface{}{map[string]interface{}{
		"file_id": "file-1",
		"tools":   []interface{}{map[string]interface{}{"type": "file_search"}},
	}}, message["attachments"])

	require.GreaterOrEqual(t, stub.polls, 2)
	require.ElementsMatch(t, []string{"file", "assistant", "thread"}, stub.deletedKinds())
}

func TestOpenAIGraderCleansUpFailedPDFRun(t *testing.T) {
	stub := &assistantsStub{finalRun: "failed"}
	server := newAssistantsServer(t, stub)
	g := newDocumentGrader(t, server.URL)

	_, err := g.Grade(context.Background(), pdfRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "search backend unavailable")
	require.True(t, grader.IsRetryable(err))
	require.ElementsMatch(t, []string{"file", "assistant", "thread"}, stub.deletedKinds())
}
