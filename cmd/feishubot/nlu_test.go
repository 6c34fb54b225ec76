package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/lojasmm/feishubot/internal/intent"
)

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"name=Ana", "count=3", "vip=true", "note=a=b"})
	if err != nil {
		t.Fatal(err)
	}
	if got["name"] != "Ana" || got["count"] != float64(3) || got["vip"] != true || got["note"] != "a=b" {
		t.Fatalf("params = %v", got)
	}

	if p, err := parseParams(nil); err != nil || p != nil {
		t.Fatalf("no pairs: %v %v", p, err)
	}
	for _, bad := range []string{"novalue", "=x"} {
		if _, err := parseParams([]string{bad}); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	err := printResult(&buf, "sess", &intent.Result{
		QueryText:       "hi",
		IntentName:      "Welcome",
		Confidence:      0.9,
		FulfillmentText: "Hello!",
		Parameters:      map[string]any{"x": "y"},
		RichText:        []string{"Hello!"},
		RichPayload:     []map[string]any{{"card": "menu"}},
		OutputContexts:  []string{"greeted"},
	}, 1234*time.Microsecond)
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"intent:      Welcome", "confidence:  0.90", `payload[0]:  {"card":"menu"}`, "contexts:    greeted", "elapsed:     1ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	if !names["serve"] || !names["nlu"] {
		t.Fatalf("subcommands = %v", names)
	}
	if root.RunE == nil {
		t.Fatal("root command must default to serve")
	}
	if root.PersistentFlags().Lookup("env-file") == nil {
		t.Fatal("missing --env-file flag")
	}
}
