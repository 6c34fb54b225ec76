package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2/google"

	"github.com/lojasmm/feishubot/internal/config"
	"github.com/lojasmm/feishubot/internal/intent"
	"github.com/lojasmm/feishubot/internal/logging"
)

// nluFlags are shared by every nlu subcommand.
type nluFlags struct {
	chat string
}

func newNLUCmd() *cobra.Command {
	f := &nluFlags{}
	cmd := &cobra.Command{
		Use:   "nlu",
		Short: "Talk to the Dialogflow agent directly, bypassing Feishu",
	}
	cmd.PersistentFlags().StringVar(&f.chat, "chat", "", "chat id whose NLU session to use (default: the configured session)")

	cmd.AddCommand(newNLUDetectCmd(f))
	cmd.AddCommand(newNLUEventCmd(f))
	cmd.AddCommand(newNLUContextCmd(f))
	cmd.AddCommand(newNLUContextsCmd(f))
	cmd.AddCommand(newNLUClearContextsCmd(f))
	return cmd
}

// nluClient builds the client and resolves the session for --chat.
func nluClient(ctx context.Context, f *nluFlags) (*intent.Client, string, *config.Config, error) {
	cfg, err := config.LoadNLU(envFile)
	if err != nil {
		return nil, "", nil, fmt.Errorf("config: %w", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)

	hc, err := google.DefaultClient(ctx, dialogflowScopes...)
	if err != nil {
		return nil, "", nil, fmt.Errorf("dialogflow credentials: %w", err)
	}
	c := intent.NewClient(intent.Options{
		BaseURL:     cfg.DialogflowBaseURL,
		ProjectID:   cfg.DialogflowProjectID,
		SessionID:   cfg.DialogflowSessionID,
		Language:    cfg.DialogflowLanguage,
		SessionMode: cfg.NLUSessionMode,
	}, hc, logging.Component("intent"))
	return c, c.SessionID(f.chat), cfg, nil
}

// withTimeout bounds one subcommand by NLU_TIMEOUT.
func withTimeout(ctx context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	if cfg.NLUTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, cfg.NLUTimeout)
}

func newNLUDetectCmd(f *nluFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <text>",
		Short: "Detect the intent of one utterance",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, session, cfg, err := nluClient(cmd.Context(), f)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), cfg)
			defer cancel()

			start := time.Now()
			res, err := c.DetectIntent(ctx, session, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), session, res, time.Since(start))
		},
	}
}

func newNLUEventCmd(f *nluFlags) *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "event <name>",
		Short: "Trigger the intent bound to a custom event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			c, session, cfg, err := nluClient(cmd.Context(), f)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), cfg)
			defer cancel()

			start := time.Now()
			res, err := c.DetectEvent(ctx, session, args[0], p)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), session, res, time.Since(start))
		},
	}
	cmd.Flags().StringArrayVar(&params, "param", nil, "event parameter as key=value (repeatable)")
	return cmd
}

func newNLUContextCmd(f *nluFlags) *cobra.Command {
	var (
		params   []string
		lifespan int
	)
	cmd := &cobra.Command{
		Use:   "context <name> <text>",
		Short: "Activate a context, then detect the intent of an utterance",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			c, session, cfg, err := nluClient(cmd.Context(), f)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), cfg)
			defer cancel()

			start := time.Now()
			res, err := c.DetectIntentWithContext(ctx, session, strings.Join(args[1:], " "), args[0], lifespan, p)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), session, res, time.Since(start))
		},
	}
	cmd.Flags().IntVar(&lifespan, "lifespan", 5, "turns the context stays active")
	cmd.Flags().StringArrayVar(&params, "param", nil, "context parameter as key=value (repeatable)")
	return cmd
}

func newNLUContextsCmd(f *nluFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "contexts",
		Short: "List the active contexts of the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, session, cfg, err := nluClient(cmd.Context(), f)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), cfg)
			defer cancel()

			contexts, err := c.ListContexts(ctx, session)
			if err != nil {
				return err
			}
			return printContexts(cmd.OutOrStdout(), session, contexts)
		},
	}
}

func newNLUClearContextsCmd(f *nluFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-contexts",
		Short: "Delete every active context of the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, session, cfg, err := nluClient(cmd.Context(), f)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), cfg)
			defer cancel()

			if err := c.ClearContexts(ctx, session); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "contexts cleared for session %s\n", session)
			return nil
		},
	}
}

// parseParams turns key=value pairs into a parameter map. Values that parse
// as JSON numbers or booleans keep that type; everything else is a string.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q, want key=value", pair)
		}
		switch {
		case v == "true" || v == "false":
			params[k] = v == "true"
		default:
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				params[k] = n
			} else {
				params[k] = v
			}
		}
	}
	return params, nil
}

func printResult(w io.Writer, session string, res *intent.Result, elapsed time.Duration) error {
	fmt.Fprintf(w, "session:     %s\n", session)
	fmt.Fprintf(w, "query:       %s\n", res.QueryText)
	fmt.Fprintf(w, "intent:      %s\n", res.IntentName)
	fmt.Fprintf(w, "confidence:  %.2f\n", res.Confidence)
	fmt.Fprintf(w, "fulfillment: %s\n", res.FulfillmentText)
	if len(res.Parameters) > 0 {
		b, err := json.Marshal(res.Parameters)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "parameters:  %s\n", b)
	}
	for i, t := range res.RichText {
		fmt.Fprintf(w, "text[%d]:     %s\n", i, t)
	}
	for i, p := range res.RichPayload {
		b, err := json.Marshal(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "payload[%d]:  %s\n", i, b)
	}
	if len(res.OutputContexts) > 0 {
		fmt.Fprintf(w, "contexts:    %s\n", strings.Join(res.OutputContexts, ", "))
	}
	fmt.Fprintf(w, "elapsed:     %s\n", elapsed.Round(time.Millisecond))
	return nil
}

func printContexts(w io.Writer, session string, contexts []intent.Context) error {
	if len(contexts) == 0 {
		fmt.Fprintf(w, "no active contexts for session %s\n", session)
		return nil
	}
	for _, c := range contexts {
		line := fmt.Sprintf("%s (lifespan %d)", c.Name, c.LifespanCount)
		if len(c.Parameters) > 0 {
			b, err := json.Marshal(c.Parameters)
			if err != nil {
				return err
			}
			line += " " + string(b)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
