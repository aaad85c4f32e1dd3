package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

func TestSendPostsMessage(t *testing.T) {
	var got Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewExpoSender(server.URL, zap.NewNop())
	err := sender.Send(context.Background(), Message{
		To:    "ExponentPushToken[abc]",
		Title: "Safety alert",
		Body:  "Alex may need help. Please check on them.",
		Data:  map[string]string{"record_id": "rec-1"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.To != "ExponentPushToken[abc]" || got.Data["record_id"] != "rec-1" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestSendRetriesTransientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewExpoSender(server.URL, zap.NewNop())
	if err := sender.Send(context.Background(), Message{To: "t"}); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sender := NewExpoSender(server.URL, zap.NewNop())
	if err := sender.Send(context.Background(), Message{To: "t"}); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("client error must not be retried, got %d attempts", calls)
	}
}

func TestSendGivesUpAfterCap(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sender := NewExpoSender(server.URL, zap.NewNop())
	if err := sender.Send(context.Background(), Message{To: "t"}); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&calls) != maxSendAttempts {
		t.Fatalf("expected %d attempts, got %d", maxSendAttempts, calls)
	}
}
