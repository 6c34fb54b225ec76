package feishu

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_SendText(t *testing.T) {
	var got sendMessageRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != sendMessagePath {
			t.Errorf("path = %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"code":0,"msg":"ok","data":{"message_id":"om_1"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 100, 10)
	if err := c.SendText(context.Background(), "tok", "c1", "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if auth != "Bearer tok" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.ChatID != "c1" || got.MsgType != "text" || got.Content.Text != "hello" {
		t.Errorf("request = %+v", got)
	}
}

func TestClient_SendTextErrors(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		wantType ErrorType
	}{
		{"unauthorized", http.StatusUnauthorized, `{"code":99991663,"msg":"invalid token"}`, ErrAuth},
		{"expired code on 200", http.StatusOK, `{"code":99991668,"msg":"token expired"}`, ErrAuth},
		{"rate limited", http.StatusTooManyRequests, `{"code":99991400}`, ErrRateLimit},
		{"server", http.StatusBadGateway, `bad gateway`, ErrServer},
		{"bot not in chat", http.StatusBadRequest, `{"code":230002,"msg":"bot not in chat"}`, ErrClient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			err := NewClient(srv.URL, 100, 10).SendText(context.Background(), "tok", "c1", "x")
			var se *SendError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *SendError", err)
			}
			if se.Type() != tc.wantType {
				t.Fatalf("type = %s, want %s", se.Type(), tc.wantType)
			}
			if se.Body != tc.body {
				t.Errorf("body = %q", se.Body)
			}
			if IsAuthError(err) != (tc.wantType == ErrAuth) {
				t.Errorf("IsAuthError = %v", IsAuthError(err))
			}
		})
	}
}

func TestClient_SendTextTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewClient(url, 100, 10).SendText(context.Background(), "tok", "c1", "x")
	var se *SendError
	if !errors.As(err, &se) || se.Type() != ErrTransport {
		t.Fatalf("err = %v, want transport SendError", err)
	}
}

func TestClient_SendTextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewClient("http://127.0.0.1:0", 100, 10).SendText(ctx, "tok", "c1", "x")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestClient_SendTextTruncatedSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Promise more bytes than are sent so the client's read fails.
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"code":0`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, 100, 10).SendText(context.Background(), "tok", "c1", "x")
	var se *SendError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SendError for an unreadable 2xx body", err)
	}
	if se.Err == nil || se.Status != http.StatusOK || se.Type() != ErrTransport {
		t.Fatalf("SendError = %+v (type %s), want transport error with status 200", se, se.Type())
	}
	if se.IsAuth() {
		t.Fatal("read failure classified as auth")
	}
}
