package feishu

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lojasmm/feishubot/internal/metrics"
)

// ErrMalformedPayload is returned when a webhook body is not valid JSON.
var ErrMalformedPayload = errors.New("feishu: malformed payload")

// ErrNotText is returned by Message.Text for non-text messages.
var ErrNotText = errors.New("feishu: not a text message")

// EventType classifies an inbound webhook call.
type EventType int

const (
	EventOther EventType = iota
	EventURLVerification
	EventMessageReceive
)

// Wire values of the recognized event types.
const (
	TypeURLVerification = "url_verification"
	TypeMessageReceive  = "im.message.receive_v1"
	MessageTypeText     = "text"
)

func (t EventType) String() string {
	switch t {
	case EventURLVerification:
		return TypeURLVerification
	case EventMessageReceive:
		return TypeMessageReceive
	default:
		return "other"
	}
}

// InboundEvent is the parsed and classified form of one webhook call.
type InboundEvent struct {
	Type      EventType
	Token     string
	EventID   string
	RawType   string
	Challenge string
	Message   *Message
}

// IsText reports whether the message is a text message.
func (m *Message) IsText() bool {
	return m != nil && m.MessageType == MessageTypeText
}

// Text decodes the text content and strips mention placeholders.
func (m *Message) Text() (string, error) {
	if !m.IsText() {
		return "", ErrNotText
	}
	var c textContent
	if err := json.Unmarshal([]byte(m.Content), &c); err != nil {
		return "", fmt.Errorf("decoding text content of %s: %w", m.MessageID, err)
	}
	text := c.Text
	for _, mention := range m.Mentions {
		if mention.Key != "" {
			text = strings.ReplaceAll(text, mention.Key, "")
		}
	}
	return strings.TrimSpace(text), nil
}

// Verifier checks the shared verification token and classifies webhook calls.
type Verifier struct {
	token []byte
	log   zerolog.Logger
}

func NewVerifier(verificationToken string, log zerolog.Logger) *Verifier {
	return &Verifier{token: []byte(verificationToken), log: log}
}

// ParseAndClassify decodes a webhook body. A token mismatch is not an error:
// the event comes back as EventOther so the caller answers 200 and does
// nothing else.
func (v *Verifier) ParseAndClassify(raw []byte) (*InboundEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	ev := &InboundEvent{
		Token:     env.Token,
		RawType:   env.Type,
		Challenge: env.Challenge,
	}
	if env.Header != nil {
		if ev.Token == "" {
			ev.Token = env.Header.Token
		}
		if ev.RawType == "" {
			ev.RawType = env.Header.EventType
		}
		ev.EventID = env.Header.EventID
	}

	if subtle.ConstantTimeCompare([]byte(ev.Token), v.token) != 1 {
		metrics.TokenMismatch.Inc()
		v.log.Warn().
			Str("token_fp", fingerprint(ev.Token)).
			Str("event_type", ev.RawType).
			Str("event_id", ev.EventID).
			Msg("verification token mismatch")
		ev.Type = EventOther
		return ev, nil
	}

	switch ev.RawType {
	case TypeURLVerification:
		ev.Type = EventURLVerification
	case TypeMessageReceive:
		ev.Type = EventMessageReceive
		if env.Event != nil {
			ev.Message = env.Event.Message
		}
	default:
		ev.Type = EventOther
	}
	return ev, nil
}

// fingerprint identifies a secret in logs without revealing it: its length
// and a short hash prefix, enough to tell two values apart.
func fingerprint(secret string) string {
	if secret == "" {
		return "empty"
	}
	sum := sha256.Sum256([]byte(secret))
	return fmt.Sprintf("len=%d sha256:%s", len(secret), hex.EncodeToString(sum[:4]))
}
