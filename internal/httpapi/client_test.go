package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "test-token")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestThreadPollParams(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("thread_id") != "42" || q.Get("last_message_id") != "100" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if q.Get("prefetch") != "1" {
			t.Error("prefetch flag missing")
		}
		if q.Has("before_id") {
			t.Error("before_id should be absent for forward polls")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":101,"direction":"inbound","content":"oi","sent_at":1700000000000}],"last_message_id":101}`))
	})

	resp, err := c.ThreadPoll(context.Background(), ThreadPollParams{ThreadID: 42, LastMessageID: 100, Prefetch: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].ID != 101 {
		t.Errorf("messages = %+v", resp.Messages)
	}
	if resp.LastMessageID != 101 {
		t.Errorf("LastMessageID = %d, want 101", resp.LastMessageID)
	}
}

func TestPostFormSendsCSRFHeader(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("X-CSRF-TOKEN"); got != "test-token" {
			t.Errorf("X-CSRF-TOKEN = %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("instance") != "line-2" {
			t.Errorf("instance = %q", r.PostForm.Get("instance"))
		}
		_, _ = w.Write([]byte(`{"message":"restarting"}`))
	})

	resp, err := c.GatewayReset(context.Background(), "line-2")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message != "restarting" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestGatewayQRPaired(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	qr, paired, err := c.GatewayQR(context.Background(), "line-1")
	if err != nil {
		t.Fatal(err)
	}
	if !paired {
		t.Error("204 should report paired")
	}
	if qr != nil {
		t.Errorf("qr = %+v, want nil", qr)
	}
}

func TestGatewayQRPayload(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"qr":"2@abc","generated_at":1700000000,"expires_at":1700000060}`))
	})

	qr, paired, err := c.GatewayQR(context.Background(), "line-1")
	if err != nil {
		t.Fatal(err)
	}
	if paired {
		t.Error("payload response should not report paired")
	}
	if qr == nil || qr.QR != "2@abc" {
		t.Fatalf("qr = %+v", qr)
	}
}

func TestNon2xxBecomesStatusError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"bridge unavailable"}`))
	})

	_, err := c.GatewayStatus(context.Background(), "line-1")
	if err == nil {
		t.Fatal("expected error")
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error type = %T", err)
	}
	if se.Code != http.StatusBadGateway || se.Message != "bridge unavailable" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestMalformedJSONIsError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json`))
	})

	_, err := c.ThreadPoll(context.Background(), ThreadPollParams{ThreadID: 1})
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestCancelledContextAborts(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ThreadPoll(ctx, ThreadPollParams{ThreadID: 1})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestHistorySyncClampsLookback(t *testing.T) {
	var got string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		got = r.PostForm.Get("history_lookback")
		_, _ = w.Write([]byte(`{"stats":{"messages_forwarded":0,"chats_with_messages":0}}`))
	})

	cases := []struct {
		in   int
		want string
	}{
		{1, "5"},
		{60, "60"},
		{999999, "10080"},
	}
	for _, tc := range cases {
		_, err := c.HistorySync(context.Background(), HistorySyncRequest{
			Instance:        "line-1",
			Mode:            HistoryModeHours,
			LookbackMinutes: tc.in,
		})
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("lookback(%d) sent %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHistorySyncDefaultsMode(t *testing.T) {
	var mode string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		mode = r.PostForm.Get("history_mode")
		_, _ = w.Write([]byte(`{"stats":{}}`))
	})

	if _, err := c.HistorySync(context.Background(), HistorySyncRequest{Instance: "line-1", Mode: "bogus"}); err != nil {
		t.Fatal(err)
	}
	if mode != "all" {
		t.Errorf("mode = %q, want all", mode)
	}
}
