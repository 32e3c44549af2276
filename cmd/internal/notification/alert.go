package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// Alerter surfaces a notification outside the list (OS popup, audio cue).
// Failures are logged by the Sink and otherwise ignored.
type Alerter interface {
	Name() string
	Alert(ctx context.Context, n Notification) error
}

// ErrUnsupported is returned by NewDesktopAlerter on platforms without a known notifier.
var ErrUnsupported = errors.New("notification: desktop alerts unsupported on this platform")

// BellAlerter writes the terminal bell character as the audio cue.
type BellAlerter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBellAlerter returns a BellAlerter writing to w.
func NewBellAlerter(w io.Writer) *BellAlerter { return &BellAlerter{w: w} }

// Name implements Alerter.
func (b *BellAlerter) Name() string { return "bell" }

// Alert implements Alerter.
func (b *BellAlerter) Alert(_ context.Context, _ Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := io.WriteString(b.w, "\a")
	return err
}

// DesktopAlerter shows an OS-level notification by running the platform notifier command.
type DesktopAlerter struct {
	command string
	args    func(title, body string) []string
}

// NewDesktopAlerter returns the notifier for the current platform: notify-send on Linux and
// the BSDs, osascript on macOS.
func NewDesktopAlerter() (*DesktopAlerter, error) {
	return desktopAlerterFor(runtime.GOOS)
}

func desktopAlerterFor(goos string) (*DesktopAlerter, error) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return &DesktopAlerter{
			command: "notify-send",
			args: func(title, body string) []string {
				return []string{"--app-name=frontdesk", title, body}
			},
		}, nil
	case "darwin":
		return &DesktopAlerter{
			command: "osascript",
			args: func(title, body string) []string {
				script := fmt.Sprintf("display notification %s with title %s", appleScriptQuote(body), appleScriptQuote(title))
				return []string{"-e", script}
			},
		}, nil
	default:
		return nil, ErrUnsupported
	}
}

// Name implements Alerter.
func (d *DesktopAlerter) Name() string { return "desktop" }

// Alert implements Alerter.
func (d *DesktopAlerter) Alert(ctx context.Context, n Notification) error {
	if _, err := exec.LookPath(d.command); err != nil {
		return fmt.Errorf("desktop alert: %w", err)
	}
	title, body := n.Title, n.Message
	if title == "" {
		title = "Frontdesk"
	}
	if out, err := exec.CommandContext(ctx, d.command, d.args(title, body)...).CombinedOutput(); err != nil {
		return fmt.Errorf("desktop alert: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
