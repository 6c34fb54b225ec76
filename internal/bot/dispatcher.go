// Package bot turns acknowledged webhook messages into NLU replies on a
// bounded pool of workers.
package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lojasmm/feishubot/internal/feishu"
	"github.com/lojasmm/feishubot/internal/intent"
	"github.com/lojasmm/feishubot/internal/metrics"
	"github.com/lojasmm/feishubot/internal/session"
)

var (
	ErrQueueFull      = errors.New("bot: dispatch queue full")
	ErrStopped        = errors.New("bot: dispatcher stopped")
	ErrAlreadyRunning = errors.New("bot: dispatcher already running")
)

type DedupStore interface {
	CheckAndMark(ctx context.Context, messageID string) (bool, error)
}

type TokenSource interface {
	Token(ctx context.Context) string
	Invalidate(token string)
}

type IntentDetector interface {
	SessionID(chatID string) string
	DetectIntent(ctx context.Context, session, text string) (*intent.Result, error)
}

type Sender interface {
	SendText(ctx context.Context, token, chatID, text string) error
}

type Config struct {
	Workers      int
	QueueSize    int
	NLUTimeout   time.Duration
	SendTimeout  time.Duration
	FallbackText string
	NLUErrorText string // empty means no reply when the NLU call fails
}

const DefaultFallbackText = "Sorry, I don't understand."

type Dispatcher struct {
	cfg      Config
	dedup    DedupStore
	tokens   TokenSource
	intent   IntentDetector
	sender   Sender
	sessions *session.Manager
	log      zerolog.Logger

	mu      sync.RWMutex
	queue   chan feishu.Message
	pullMu  sync.Mutex // serializes dequeue plus chat claim across workers
	running bool
	stopped bool
}

func NewDispatcher(cfg Config, dedup DedupStore, tokens TokenSource, detector IntentDetector, sender Sender, sessions *session.Manager, log zerolog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.NLUTimeout <= 0 {
		cfg.NLUTimeout = 15 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.FallbackText == "" {
		cfg.FallbackText = DefaultFallbackText
	}
	if sessions == nil {
		sessions = session.NewManager()
	}
	return &Dispatcher{
		cfg:      cfg,
		dedup:    dedup,
		tokens:   tokens,
		intent:   detector,
		sender:   sender,
		sessions: sessions,
		log:      log,
		queue:    make(chan feishu.Message, cfg.QueueSize),
	}
}

// Submit queues msg without blocking. It fails with ErrQueueFull when every
// slot is taken and with ErrStopped once Run has begun shutting down.
func (d *Dispatcher) Submit(msg feishu.Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.queue <- msg:
		metrics.DispatchQueueDepth.Inc()
		return nil
	default:
		metrics.DispatchDropped.Inc()
		return ErrQueueFull
	}
}

// Run processes queued messages until ctx is canceled, then stops intake
// and drains what is already queued before returning. In-flight work is not
// canceled with ctx; the NLU and send timeouts bound it instead.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running || d.stopped {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.running = true
	d.mu.Unlock()

	work := context.WithoutCancel(ctx)
	var g errgroup.Group
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			for d.next(work) {
			}
			return nil
		})
	}
	d.log.Info().Int("workers", d.cfg.Workers).Int("queue", d.cfg.QueueSize).Msg("dispatcher started")

	<-ctx.Done()

	d.mu.Lock()
	d.stopped = true
	pending := len(d.queue)
	close(d.queue)
	d.mu.Unlock()

	d.log.Info().Int("pending", pending).Msg("dispatcher draining")
	err := g.Wait()
	d.log.Info().Msg("dispatcher stopped")
	return err
}

// next takes one message off the queue and serves it, reporting false once
// the queue is closed and empty. The chat is claimed under pullMu so claims
// happen in queue order. A message whose chat is already being served by
// another worker is parked behind it and this worker moves on, so one busy
// chat never holds more than one worker.
func (d *Dispatcher) next(ctx context.Context) bool {
	d.pullMu.Lock()
	msg, ok := <-d.queue
	if !ok {
		d.pullMu.Unlock()
		return false
	}
	metrics.DispatchQueueDepth.Dec()
	job := func() { d.Process(ctx, msg) }
	owner := d.sessions.Claim(msg.ChatID, job)
	d.pullMu.Unlock()

	if !owner {
		d.log.Debug().
			Str("chat_id", msg.ChatID).
			Str("message_id", msg.MessageID).
			Int("pending", d.sessions.Pending(msg.ChatID)).
			Msg("dispatch: chat busy, queued behind it")
		return true
	}
	d.sessions.Run(msg.ChatID, job)
	return true
}
