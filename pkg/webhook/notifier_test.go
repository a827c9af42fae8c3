package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSendDeliversPayload(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, time.Second, zap.NewNop())
	if !n.Send(context.Background(), "BTCUSDT crossed above 110", "BTCUSDT:upper") {
		t.Fatal("expected delivery to succeed")
	}
	if got.Text != "BTCUSDT crossed above 110" || got.DedupeKey != "BTCUSDT:upper" {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestSendReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, time.Second, zap.NewNop())
	if n.Send(context.Background(), "msg", "key") {
		t.Fatal("expected delivery to fail on 500")
	}
}

func TestSendReportsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	n := NewNotifier(srv.URL, time.Second, zap.NewNop())
	if n.Send(context.Background(), "msg", "key") {
		t.Fatal("expected delivery to fail when unreachable")
	}
}

func TestSendWithoutURL(t *testing.T) {
	n := NewNotifier("", time.Second, zap.NewNop())
	if n.Send(context.Background(), "msg", "key") {
		t.Fatal("expected failure without a configured url")
	}
}
