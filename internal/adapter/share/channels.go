package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"strings"

	core "github.com/rl1809/milk-route/internal/core/share"
)

// exitCancelled is what share helpers return when the user dismisses the
// picker (128 + SIGINT).
const exitCancelled = 130

var ErrNotConfigured = errors.New("command not configured")

// runner executes a command with stdin. Replaced in tests.
type runner func(ctx context.Context, argv []string, stdin string, env []string) error

func execRunner(ctx context.Context, argv []string, stdin string, env []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = append(os.Environ(), env...)
	return cmd.Run()
}

// SystemShare pipes the receipt into a platform share command. The title is
// passed as SHARE_TITLE.
type SystemShare struct {
	argv []string
	run  runner
}

func NewSystemShare(command string) *SystemShare {
	return &SystemShare{argv: strings.Fields(command), run: execRunner}
}

func (s *SystemShare) Name() string { return "system" }

func (s *SystemShare) Attempt(ctx context.Context, text, title string) core.Result {
	if len(s.argv) == 0 {
		return core.Failed(s.Name(), ErrNotConfigured)
	}
	err := s.run(ctx, s.argv, text, []string{"SHARE_TITLE=" + title})
	if err == nil {
		return core.Success(s.Name())
	}
	if isCancel(ctx, err) {
		return core.Cancelled(s.Name())
	}
	return core.Failed(s.Name(), err)
}

// DeepLink hands a whatsapp:// link to an opener such as xdg-open.
type DeepLink struct {
	argv []string
	run  runner
}

func NewDeepLink(opener string) *DeepLink {
	return &DeepLink{argv: strings.Fields(opener), run: execRunner}
}

func (d *DeepLink) Name() string { return "whatsapp" }

func (d *DeepLink) Attempt(ctx context.Context, text, title string) core.Result {
	if len(d.argv) == 0 {
		return core.Failed(d.Name(), ErrNotConfigured)
	}
	argv := append(append([]string{}, d.argv...), WhatsAppURL(text))
	if err := d.run(ctx, argv, "", nil); err != nil {
		if isCancel(ctx, err) {
			return core.Cancelled(d.Name())
		}
		return core.Failed(d.Name(), err)
	}
	return core.Success(d.Name())
}

// WhatsAppURL builds the send deep link with the text query escaped. Spaces
// are encoded as %20, not +.
func WhatsAppURL(text string) string {
	return "whatsapp://send?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}

// Clipboard copies the receipt through a clipboard command (xclip, pbcopy).
type Clipboard struct {
	argv []string
	run  runner
}

func NewClipboard(command string) *Clipboard {
	return &Clipboard{argv: strings.Fields(command), run: execRunner}
}

func (c *Clipboard) Name() string { return "clipboard" }

func (c *Clipboard) Attempt(ctx context.Context, text, title string) core.Result {
	if len(c.argv) == 0 {
		return core.Failed(c.Name(), ErrNotConfigured)
	}
	if err := c.run(ctx, c.argv, text, nil); err != nil {
		return core.Failed(c.Name(), err)
	}
	return core.Success(c.Name())
}

// Writer prints the receipt. It is the last resort and only fails when the
// write does.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Name() string { return "stdout" }

func (w *Writer) Attempt(ctx context.Context, text, title string) core.Result {
	if _, err := fmt.Fprintf(w.w, "%s\n\n%s\n", title, text); err != nil {
		return core.Failed(w.Name(), err)
	}
	return core.Success(w.Name())
}

func isCancel(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.Canceled) {
		return true
	}
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == exitCancelled
}
