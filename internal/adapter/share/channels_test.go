package share

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	core "github.com/rl1809/milk-route/internal/core/share"
)

type call struct {
	argv  []string
	stdin string
	env   []string
}

func recordingRunner(calls *[]call, err error) runner {
	return func(ctx context.Context, argv []string, stdin string, env []string) error {
		*calls = append(*calls, call{argv: argv, stdin: stdin, env: env})
		return err
	}
}

func TestWhatsAppURL(t *testing.T) {
	got := WhatsAppURL("Total: ₹78.00 & more\nThanks")
	want := "whatsapp://send?text=Total%3A%20%E2%82%B978.00%20%26%20more%0AThanks"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestSystemShare(t *testing.T) {
	var calls []call
	s := NewSystemShare("share-sheet --text")
	s.run = recordingRunner(&calls, nil)

	res := s.Attempt(context.Background(), "receipt", "Delivery Receipt")
	if res.Outcome != core.OutcomeSuccess {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(calls) != 1 || calls[0].stdin != "receipt" || calls[0].argv[0] != "share-sheet" {
		t.Errorf("unexpected call: %+v", calls)
	}
	if calls[0].env[0] != "SHARE_TITLE=Delivery Receipt" {
		t.Errorf("unexpected env: %v", calls[0].env)
	}
}

func TestSystemShare_NotConfigured(t *testing.T) {
	res := NewSystemShare("").Attempt(context.Background(), "x", "y")
	if res.Outcome != core.OutcomeFailed || !errors.Is(res.Err, ErrNotConfigured) {
		t.Errorf("expected not configured failure, got %+v", res)
	}
}

func TestSystemShare_ExitCodeCancels(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	s := NewSystemShare("sh")
	s.argv = []string{"sh", "-c", "exit 130"}

	res := s.Attempt(context.Background(), "receipt", "title")
	if res.Outcome != core.OutcomeCancelled {
		t.Errorf("expected cancelled, got %+v", res)
	}

	s.argv = []string{"sh", "-c", "exit 1"}
	if res := s.Attempt(context.Background(), "receipt", "title"); res.Outcome != core.OutcomeFailed {
		t.Errorf("expected failed, got %+v", res)
	}
}

func TestDeepLink(t *testing.T) {
	var calls []call
	d := NewDeepLink("xdg-open")
	d.run = recordingRunner(&calls, nil)

	res := d.Attempt(context.Background(), "hi there", "title")
	if res.Outcome != core.OutcomeSuccess {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(calls[0].argv) != 2 || calls[0].argv[1] != "whatsapp://send?text=hi%20there" {
		t.Errorf("unexpected argv: %v", calls[0].argv)
	}
}

func TestFallbackChain(t *testing.T) {
	var shareCalls, linkCalls, clipCalls []call
	system := NewSystemShare("share")
	system.run = recordingRunner(&shareCalls, errors.New("no share target"))
	link := NewDeepLink("xdg-open")
	link.run = recordingRunner(&linkCalls, errors.New("no handler for whatsapp"))
	clip := NewClipboard("xclip -selection clipboard")
	clip.run = recordingRunner(&clipCalls, nil)
	var out bytes.Buffer

	d := core.NewDispatcher(zaptest.NewLogger(t), system, link, clip, NewWriter(&out))
	res := d.Dispatch(context.Background(), "receipt text", "Payment Receipt")

	if res.Outcome != core.OutcomeSuccess || res.Channel != "clipboard" {
		t.Fatalf("expected clipboard success, got %+v", res)
	}
	if len(shareCalls) != 1 || len(linkCalls) != 1 || len(clipCalls) != 1 {
		t.Errorf("expected each channel tried once, got %d %d %d", len(shareCalls), len(linkCalls), len(clipCalls))
	}
	if out.Len() != 0 {
		t.Error("stdout channel must not be reached")
	}
}

func TestWriter(t *testing.T) {
	var out bytes.Buffer
	res := NewWriter(&out).Attempt(context.Background(), "body", "Title")
	if res.Outcome != core.OutcomeSuccess {
		t.Fatalf("expected success, got %+v", res)
	}
	if !strings.HasPrefix(out.String(), "Title\n\nbody") {
		t.Errorf("unexpected output: %q", out.String())
	}
}
