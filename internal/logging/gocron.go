package logging

import (
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

type gocronLogger struct {
	l zerolog.Logger
}

// NewGocronLogger adapts a zerolog logger to the gocron.Logger interface.
func NewGocronLogger(l zerolog.Logger) gocron.Logger {
	return &gocronLogger{l: l}
}

func (g *gocronLogger) Debug(msg string, args ...any) { g.emit(g.l.Debug(), msg, args) }
func (g *gocronLogger) Info(msg string, args ...any)  { g.emit(g.l.Info(), msg, args) }
func (g *gocronLogger) Warn(msg string, args ...any)  { g.emit(g.l.Warn(), msg, args) }
func (g *gocronLogger) Error(msg string, args ...any) { g.emit(g.l.Error(), msg, args) }

// emit turns gocron's alternating key/value args into zerolog fields.
func (g *gocronLogger) emit(ev *zerolog.Event, msg string, args []any) {
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			ev = ev.Interface("extra", args[i])
			break
		}
		key := fmt.Sprint(args[i])
		if err, ok := args[i+1].(error); ok {
			ev = ev.AnErr(key, err)
			continue
		}
		ev = ev.Interface(key, args[i+1])
	}
	ev.Msg(msg)
}
