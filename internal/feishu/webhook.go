package feishu

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/lojasmm/feishubot/internal/metrics"
)

const maxWebhookBody = 1 << 20

// Submitter hands a text message to asynchronous processing. It must not
// block on NLU or send work.
type Submitter interface {
	Submit(msg Message) error
}

type WebhookHandler struct {
	verifier *Verifier
	dispatch Submitter
	log      zerolog.Logger
}

func NewWebhookHandler(v *Verifier, dispatch Submitter, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier: v,
		dispatch: dispatch,
		log:      log,
	}
}

// HandleIncoming processes webhook POST notifications. Every outcome is a
// 200: the platform retries anything else, and a retry storm helps nobody
// when the token is misconfigured.
func (h *WebhookHandler) HandleIncoming(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.log.Warn().Err(err).Msg("webhook: failed to read body")
		respond(w, nil)
		return
	}

	ev, err := h.verifier.ParseAndClassify(body)
	if err != nil {
		h.log.Warn().Err(err).Int("bytes", len(body)).Msg("webhook: failed to decode payload")
		metrics.WebhookEvents.WithLabelValues("malformed").Inc()
		respond(w, nil)
		return
	}
	metrics.WebhookEvents.WithLabelValues(ev.Type.String()).Inc()

	switch ev.Type {
	case EventURLVerification:
		h.log.Info().Msg("webhook: url verification")
		respond(w, challengeResponse{Challenge: ev.Challenge})

	case EventMessageReceive:
		// Acknowledge first; the reply is produced off the request path.
		respond(w, ackResponse{Msg: "ok"})

		msg := ev.Message
		if msg == nil {
			h.log.Warn().Str("event_id", ev.EventID).Msg("webhook: message event without message")
			return
		}
		if !msg.IsText() {
			h.log.Debug().
				Str("message_type", msg.MessageType).
				Str("message_id", msg.MessageID).
				Msg("webhook: ignoring non-text message")
			return
		}
		if err := h.dispatch.Submit(*msg); err != nil {
			h.log.Error().Err(err).
				Str("chat_id", msg.ChatID).
				Str("message_id", msg.MessageID).
				Msg("webhook: dispatch rejected message")
		}

	default:
		h.log.Debug().Str("event_type", ev.RawType).Msg("webhook: ignoring event")
		respond(w, nil)
	}
}

// respond writes a 200. A nil body means an empty response.
func respond(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if body == nil {
		return
	}
	json.NewEncoder(w).Encode(body)
}
