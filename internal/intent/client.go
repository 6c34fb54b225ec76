// Package intent talks to a Dialogflow ES agent over its v2 REST API.
package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lojasmm/feishubot/internal/metrics"
)

const DefaultBaseURL = "https://dialogflow.googleapis.com"

// Session modes.
const (
	SessionShared  = "shared"
	SessionPerChat = "per_chat"
)

type Options struct {
	BaseURL     string
	ProjectID   string
	SessionID   string
	Language    string
	SessionMode string
}

// Client is safe for concurrent use. Authentication is the job of the
// supplied http.Client (an oauth2 client in production).
type Client struct {
	baseURL   string
	project   string
	sessionID string
	language  string
	perChat   bool
	namespace uuid.UUID
	http      *http.Client
	log       zerolog.Logger
}

func NewClient(opts Options, hc *http.Client, log zerolog.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	lang := opts.Language
	if lang == "" {
		lang = "en"
	}
	return &Client{
		baseURL:   base,
		project:   opts.ProjectID,
		sessionID: opts.SessionID,
		language:  lang,
		perChat:   opts.SessionMode == SessionPerChat,
		namespace: uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.SessionID)),
		http:      hc,
		log:       log,
	}
}

// SessionID returns the NLU session for a chat. In shared mode, or for an
// empty chat id, every chat uses the configured session.
func (c *Client) SessionID(chatID string) string {
	if !c.perChat || chatID == "" {
		return c.sessionID
	}
	return uuid.NewSHA1(c.namespace, []byte(chatID)).String()
}

func (c *Client) sessionPath(session string) string {
	return fmt.Sprintf("projects/%s/agent/sessions/%s", c.project, session)
}

// DetectIntent sends one user utterance.
func (c *Client) DetectIntent(ctx context.Context, session, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	return c.detect(ctx, "detect", session, queryInput{
		Text: &textInput{Text: text, LanguageCode: c.language},
	})
}

// DetectEvent triggers the intent bound to a custom event.
func (c *Client) DetectEvent(ctx context.Context, session, event string, params map[string]any) (*Result, error) {
	if event == "" {
		return nil, fmt.Errorf("intent: empty event name")
	}
	return c.detect(ctx, "event", session, queryInput{
		Event: &eventInput{Name: event, LanguageCode: c.language, Parameters: params},
	})
}

// DetectIntentWithContext activates contextName for lifespan turns, then
// sends text. An empty contextName skips the context step.
func (c *Client) DetectIntentWithContext(ctx context.Context, session, text, contextName string, lifespan int, params map[string]any) (*Result, error) {
	if contextName != "" {
		if err := c.CreateContext(ctx, session, contextName, lifespan, params); err != nil {
			return nil, err
		}
	}
	return c.DetectIntent(ctx, session, text)
}

// CreateContext creates or replaces a context of the session.
func (c *Client) CreateContext(ctx context.Context, session, name string, lifespan int, params map[string]any) error {
	sp := c.sessionPath(session)
	body := wireContext{
		Name:          sp + "/contexts/" + name,
		LifespanCount: lifespan,
		Parameters:    params,
	}
	return c.call(ctx, "create_context", http.MethodPost, "/v2/"+sp+"/contexts", body, nil)
}

// ListContexts returns every active context of the session.
func (c *Client) ListContexts(ctx context.Context, session string) ([]Context, error) {
	sp := c.sessionPath(session)
	contexts := []Context{}
	pageToken := ""
	for {
		path := "/v2/" + sp + "/contexts"
		if pageToken != "" {
			path += "?pageToken=" + url.QueryEscape(pageToken)
		}
		var page listContextsResponse
		if err := c.call(ctx, "list_contexts", http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		for _, wc := range page.Contexts {
			contexts = append(contexts, toContext(wc))
		}
		if page.NextPageToken == "" {
			return contexts, nil
		}
		pageToken = page.NextPageToken
	}
}

// ClearContexts deletes every active context of the session.
func (c *Client) ClearContexts(ctx context.Context, session string) error {
	contexts, err := c.ListContexts(ctx, session)
	if err != nil {
		return err
	}
	for _, ct := range contexts {
		if err := c.call(ctx, "delete_context", http.MethodDelete, "/v2/"+ct.Path, nil, nil); err != nil {
			return fmt.Errorf("deleting context %s: %w", ct.Name, err)
		}
	}
	c.log.Debug().Str("session", session).Int("count", len(contexts)).Msg("intent: contexts cleared")
	return nil
}

func (c *Client) detect(ctx context.Context, op, session string, in queryInput) (*Result, error) {
	var resp detectIntentResponse
	path := "/v2/" + c.sessionPath(session) + ":detectIntent"
	if err := c.call(ctx, op, http.MethodPost, path, detectIntentRequest{QueryInput: in}, &resp); err != nil {
		return nil, err
	}
	res := newResult(resp.QueryResult)
	c.log.Debug().
		Str("session", session).
		Str("intent", res.IntentName).
		Float64("confidence", res.Confidence).
		Msg("intent: detected")
	return res, nil
}

// call performs one request. A nil out discards the response body.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.NLULatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("dialogflow %s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Op: op, Status: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", op, err)
	}
	return nil
}
