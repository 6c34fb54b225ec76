package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/lojasmm/feishubot/internal/metrics"
)

const sendMessagePath = "/open-apis/message/v4/send/"

// Client posts messages to the platform's send-message endpoint.
type Client struct {
	baseURL string
	limiter *rate.Limiter
	http    *http.Client
}

// NewClient builds a sender limited to rps requests per second with the
// given burst. The app-wide send quota is shared by every dispatch worker.
func NewClient(baseURL string, rps float64, burst int) *Client {
	return &Client{
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SendText makes exactly one send attempt. Any failure is a *SendError.
func (c *Client) SendText(ctx context.Context, token, chatID, text string) error {
	err := c.sendText(ctx, token, chatID, text)
	switch {
	case err == nil:
		metrics.Sends.WithLabelValues("ok").Inc()
	case IsAuthError(err):
		metrics.Sends.WithLabelValues("auth_error").Inc()
	default:
		metrics.Sends.WithLabelValues("error").Inc()
	}
	return err
}

func (c *Client) sendText(ctx context.Context, token, chatID, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &SendError{Err: fmt.Errorf("waiting for send quota: %w", err)}
	}

	payload, err := json.Marshal(sendMessageRequest{
		ChatID:  chatID,
		MsgType: "text",
		Content: sendTextContent{Text: text},
	})
	if err != nil {
		return &SendError{Err: fmt.Errorf("marshaling message: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sendMessagePath, bytes.NewReader(payload))
	if err != nil {
		return &SendError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return &SendError{Err: fmt.Errorf("sending message: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &SendError{Status: resp.StatusCode, Body: string(respBody), Err: fmt.Errorf("reading send response: %w", err)}
	}

	var result sendMessageResponse
	decodeErr := json.Unmarshal(respBody, &result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &SendError{Status: resp.StatusCode, Code: result.Code, Msg: result.Msg, Body: string(respBody)}
	}
	if decodeErr == nil && result.Code != 0 {
		return &SendError{Status: resp.StatusCode, Code: result.Code, Msg: result.Msg, Body: string(respBody)}
	}
	return nil
}
