package intent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, mode string, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:     srv.URL,
		ProjectID:   "proj",
		SessionID:   "sess",
		Language:    "en",
		SessionMode: mode,
	}, srv.Client(), zerolog.Nop())
}

func TestDetectIntent(t *testing.T) {
	c := newTestClient(t, SessionShared, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/projects/proj/agent/sessions/sess:detectIntent" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req detectIntentRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.QueryInput.Text == nil || req.QueryInput.Text.Text != "hi" || req.QueryInput.Text.LanguageCode != "en" {
			t.Errorf("bad query input %+v", req.QueryInput)
		}
		io.WriteString(w, `{
			"responseId": "r1",
			"queryResult": {
				"queryText": "hi",
				"parameters": {"size": "large", "count": 2},
				"fulfillmentText": "Hello!",
				"fulfillmentMessages": [
					{"text": {"text": ["Hello!", "How can I help?"]}},
					{"payload": {"card": {"title": "Menu"}}},
					{"text": {}},
					{"quickReplies": {"quickReplies": ["a"]}}
				],
				"outputContexts": [{"name": "projects/proj/agent/sessions/sess/contexts/greeted", "lifespanCount": 2}],
				"intent": {"name": "projects/proj/agent/intents/1", "displayName": "Default Welcome Intent"},
				"intentDetectionConfidence": 0.87
			}
		}`)
	})

	res, err := c.DetectIntent(context.Background(), "sess", "  hi ")
	if err != nil {
		t.Fatalf("DetectIntent: %v", err)
	}
	if res.FulfillmentText != "Hello!" || res.IntentName != "Default Welcome Intent" || res.Confidence != 0.87 {
		t.Errorf("result = %+v", res)
	}
	if len(res.RichText) != 2 || res.RichText[1] != "How can I help?" {
		t.Errorf("RichText = %v", res.RichText)
	}
	if len(res.RichPayload) != 1 || res.RichPayload[0]["card"] == nil {
		t.Errorf("RichPayload = %v", res.RichPayload)
	}
	if res.Parameters["size"] != "large" || res.Parameters["count"] != float64(2) {
		t.Errorf("Parameters = %v", res.Parameters)
	}
	if len(res.OutputContexts) != 1 || res.OutputContexts[0] != "greeted" {
		t.Errorf("OutputContexts = %v", res.OutputContexts)
	}
}

func TestDetectIntent_MissingFieldsYieldEmptyLists(t *testing.T) {
	for name, body := range map[string]string{
		"no query result":   `{}`,
		"no messages":       `{"queryResult": {"fulfillmentText": ""}}`,
		"empty sub-objects": `{"queryResult": {"fulfillmentMessages": [{}, {"text": null}]}}`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, SessionShared, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, body)
			})
			res, err := c.DetectIntent(context.Background(), "sess", "hi")
			if err != nil {
				t.Fatal(err)
			}
			if res.RichText == nil || res.RichPayload == nil || res.Parameters == nil || res.OutputContexts == nil {
				t.Fatalf("nil collection in %+v", res)
			}
			if len(res.RichText) != 0 || len(res.RichPayload) != 0 || res.FulfillmentText != "" {
				t.Fatalf("unexpected content %+v", res)
			}
		})
	}
}

func TestDetectIntent_EmptyText(t *testing.T) {
	c := newTestClient(t, SessionShared, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	if _, err := c.DetectIntent(context.Background(), "sess", "   "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
}

func TestDetectIntent_APIError(t *testing.T) {
	c := newTestClient(t, SessionShared, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":{"code":403,"status":"PERMISSION_DENIED"}}`)
	})
	_, err := c.DetectIntent(context.Background(), "sess", "hi")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden || apiErr.Op != "detect" {
		t.Fatalf("err = %v, want 403 APIError", err)
	}
}

func TestDetectEvent(t *testing.T) {
	c := newTestClient(t, SessionShared, func(w http.ResponseWriter, r *http.Request) {
		var req detectIntentRequest
		json.NewDecoder(r.Body).Decode(&req)
		ev := req.QueryInput.Event
		if req.QueryInput.Text != nil || ev == nil || ev.Name != "WELCOME" || ev.Parameters["name"] != "Ana" {
			t.Errorf("bad event input %+v", req.QueryInput)
		}
		io.WriteString(w, `{"queryResult": {"fulfillmentText": "Welcome, Ana"}}`)
	})
	res, err := c.DetectEvent(context.Background(), "sess", "WELCOME", map[string]any{"name": "Ana"})
	if err != nil || res.FulfillmentText != "Welcome, Ana" {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestDetectIntentWithContext(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	c := newTestClient(t, SessionShared, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "/contexts") {
			var ctxBody wireContext
			json.NewDecoder(r.Body).Decode(&ctxBody)
			if ctxBody.Name != "projects/proj/agent/sessions/sess/contexts/ordering" || ctxBody.LifespanCount != 3 {
				t.Errorf("bad context %+v", ctxBody)
			}
			io.WriteString(w, `{}`)
			return
		}
		io.WriteString(w, `{"queryResult": {"fulfillmentText": "Which size?"}}`)
	})

	res, err := c.DetectIntentWithContext(context.Background(), "sess", "pizza", "ordering", 3, nil)
	if err != nil || res.FulfillmentText != "Which size?" {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	want := []string{
		"POST /v2/projects/proj/agent/sessions/sess/contexts",
		"POST /v2/projects/proj/agent/sessions/sess:detectIntent",
	}
	if strings.Join(calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
}

func TestListAndClearContexts(t *testing.T) {
	var mu sync.Mutex
	var deleted []string
	c := newTestClient(t, SessionShared, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("pageToken") == "" {
				io.WriteString(w, `{"contexts":[{"name":"projects/proj/agent/sessions/sess/contexts/a","lifespanCount":1}],"nextPageToken":"p2"}`)
				return
			}
			io.WriteString(w, `{"contexts":[{"name":"projects/proj/agent/sessions/sess/contexts/b","lifespanCount":4,"parameters":{"x":"y"}}]}`)
		case http.MethodDelete:
			mu.Lock()
			deleted = append(deleted, r.URL.Path)
			mu.Unlock()
			io.WriteString(w, `{}`)
		}
	})

	contexts, err := c.ListContexts(context.Background(), "sess")
	if err != nil {
		t.Fatal(err)
	}
	if len(contexts) != 2 || contexts[0].Name != "a" || contexts[1].LifespanCount != 4 || contexts[1].Parameters["x"] != "y" {
		t.Fatalf("contexts = %+v", contexts)
	}

	if err := c.ClearContexts(context.Background(), "sess"); err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 2 || deleted[1] != "/v2/projects/proj/agent/sessions/sess/contexts/b" {
		t.Fatalf("deleted = %v", deleted)
	}
}

func TestSessionID(t *testing.T) {
	shared := NewClient(Options{ProjectID: "p", SessionID: "sess", SessionMode: SessionShared}, nil, zerolog.Nop())
	if shared.SessionID("oc_1") != "sess" || shared.SessionID("oc_2") != "sess" {
		t.Fatal("shared mode must use the configured session for every chat")
	}

	perChat := NewClient(Options{ProjectID: "p", SessionID: "sess", SessionMode: SessionPerChat}, nil, zerolog.Nop())
	a1, a2, b := perChat.SessionID("oc_a"), perChat.SessionID("oc_a"), perChat.SessionID("oc_b")
	if a1 != a2 {
		t.Fatal("per-chat session must be stable for a chat")
	}
	if a1 == b || a1 == "sess" {
		t.Fatalf("chats must get distinct sessions: %s %s", a1, b)
	}
	if perChat.SessionID("") != "sess" {
		t.Fatal("empty chat id falls back to the configured session")
	}

	other := NewClient(Options{ProjectID: "p", SessionID: "other", SessionMode: SessionPerChat}, nil, zerolog.Nop())
	if other.SessionID("oc_a") == a1 {
		t.Fatal("session namespace must depend on the configured session id")
	}
}
