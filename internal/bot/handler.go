package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lojasmm/feishubot/internal/feishu"
	"github.com/lojasmm/feishubot/internal/intent"
	"github.com/lojasmm/feishubot/internal/metrics"
)

// Outcome is the terminal state of one dispatch.
type Outcome string

const (
	OutcomeDuplicate    Outcome = "skipped_duplicate"
	OutcomeEmpty        Outcome = "skipped_empty"
	OutcomeNoToken      Outcome = "aborted_no_token"
	OutcomeIntentFailed Outcome = "failed_intent"
	OutcomeSendFailed   Outcome = "failed_send"
	OutcomeReplied      Outcome = "replied"
	OutcomePanicked     Outcome = "panicked"
)

// Process runs one message through dedup, token, intent and send on the
// calling goroutine. It never returns an error: every failure ends in an
// Outcome and a log line carrying chat_id and message_id. Ordering between
// messages of one chat is the caller's job; workers get it from dispatch.
func (d *Dispatcher) Process(ctx context.Context, msg feishu.Message) (outcome Outcome) {
	log := d.log.With().
		Str("job_id", uuid.NewString()).
		Str("chat_id", msg.ChatID).
		Str("message_id", msg.MessageID).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("dispatch: panic")
			outcome = OutcomePanicked
		}
		metrics.DispatchOutcomes.WithLabelValues(string(outcome)).Inc()
		log.Debug().Str("outcome", string(outcome)).Msg("dispatch: done")
	}()

	dup, err := d.dedup.CheckAndMark(ctx, msg.MessageID)
	if err != nil {
		// Skipping is safer than risking a double reply.
		log.Error().Err(err).Msg("dispatch: dedup check failed, skipping")
		dup = true
	}
	if dup {
		log.Info().Msg("dispatch: duplicate delivery skipped")
		return OutcomeDuplicate
	}

	text, err := msg.Text()
	if err != nil || text == "" {
		log.Info().AnErr("reason", err).Msg("dispatch: no text to answer")
		return OutcomeEmpty
	}

	return d.reply(ctx, log, msg.ChatID, text)
}

func (d *Dispatcher) reply(ctx context.Context, log zerolog.Logger, chatID, text string) Outcome {
	token := d.tokens.Token(ctx)
	if token == "" {
		log.Error().Msg("dispatch: no tenant access token, reply aborted")
		return OutcomeNoToken
	}

	reply, err := d.answer(ctx, chatID, text)
	if err != nil {
		log.Error().Err(err).Msg("dispatch: intent detection failed")
		if d.cfg.NLUErrorText == "" {
			return OutcomeIntentFailed
		}
		if d.send(ctx, log, token, chatID, d.cfg.NLUErrorText) != nil {
			return OutcomeSendFailed
		}
		return OutcomeIntentFailed
	}

	if err := d.send(ctx, log, token, chatID, reply); err != nil {
		return OutcomeSendFailed
	}
	log.Info().Msg("dispatch: replied")
	return OutcomeReplied
}

// answer returns the agent's reply, or the fallback text when the agent had
// nothing to say.
func (d *Dispatcher) answer(ctx context.Context, chatID, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.NLUTimeout)
	defer cancel()

	res, err := d.intent.DetectIntent(ctx, d.intent.SessionID(chatID), text)
	if err != nil {
		return "", err
	}
	d.log.Debug().
		Str("chat_id", chatID).
		Str("intent", res.IntentName).
		Float64("confidence", res.Confidence).
		Msg("dispatch: intent detected")
	if res.FulfillmentText == "" {
		return d.cfg.FallbackText, nil
	}
	return res.FulfillmentText, nil
}

// send delivers text, refreshing the token and retrying exactly once when
// the platform rejects the token.
func (d *Dispatcher) send(ctx context.Context, log zerolog.Logger, token, chatID, text string) error {
	err := d.sendOnce(ctx, token, chatID, text)
	if err == nil || !feishu.IsAuthError(err) {
		logSendError(log, err)
		return err
	}

	log.Warn().Err(err).Msg("dispatch: token rejected, refreshing once")
	d.tokens.Invalidate(token)
	fresh := d.tokens.Token(ctx)
	if fresh == "" {
		err = fmt.Errorf("refreshing token after auth failure: %w", err)
		logSendError(log, err)
		return err
	}
	err = d.sendOnce(ctx, fresh, chatID, text)
	logSendError(log, err)
	return err
}

func (d *Dispatcher) sendOnce(ctx context.Context, token, chatID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	return d.sender.SendText(ctx, token, chatID, text)
}

func logSendError(log zerolog.Logger, err error) {
	if err == nil {
		return
	}
	ev := log.Error().Err(err)
	var se *feishu.SendError
	if errors.As(err, &se) {
		ev = ev.Int("status", se.Status).Int("code", se.Code).Str("type", string(se.Type())).Str("body", se.Body)
	}
	ev.Msg("dispatch: send failed")
}

// Compile-time checks that the production types satisfy the consumer
// interfaces.
var (
	_ TokenSource    = (*feishu.TokenFetcher)(nil)
	_ Sender         = (*feishu.Client)(nil)
	_ IntentDetector = (*intent.Client)(nil)
)
