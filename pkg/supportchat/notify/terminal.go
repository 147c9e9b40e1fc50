package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
)

// Bell rings the terminal bell.
type Bell struct {
	W io.Writer
}

func (b Bell) Play() error {
	_, err := io.WriteString(b.W, "\a")
	return err
}

// TerminalNotifier renders notifications as a highlighted banner.
type TerminalNotifier struct {
	W io.Writer
	// Ask is consulted once when the permission is still undecided. A nil Ask
	// denies.
	Ask func(ctx context.Context) (bool, error)

	mu         sync.Mutex
	permission Permission
}

func NewTerminalNotifier(w io.Writer, initial Permission) *TerminalNotifier {
	if initial == "" {
		initial = PermissionDefault
	}
	return &TerminalNotifier{W: w, permission: initial}
}

func (n *TerminalNotifier) Permission() Permission {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.permission
}

func (n *TerminalNotifier) RequestPermission(ctx context.Context) (Permission, error) {
	granted := false
	if n.Ask != nil {
		ok, err := n.Ask(ctx)
		if err != nil {
			return n.Permission(), err
		}
		granted = ok
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if granted {
		n.permission = PermissionGranted
	} else {
		n.permission = PermissionDenied
	}
	return n.permission, nil
}

func (n *TerminalNotifier) Show(title, body string) error {
	banner := color.New(color.FgBlack, color.BgYellow, color.Bold).Sprintf(" %s ", title)
	_, err := fmt.Fprintf(n.W, "\n%s %s\n", banner, body)
	return err
}

// ColorToaster prints a short dimmed line.
type ColorToaster struct {
	W io.Writer
}

func (t ColorToaster) Toast(text string) {
	_, _ = color.New(color.FgCyan, color.Faint).Fprintf(t.W, "  new reply from support: %s\n", text)
}

// Focus is a Visibility toggled by the host UI.
type Focus struct {
	hidden atomic.Bool
}

func (f *Focus) SetHidden(hidden bool) {
	f.hidden.Store(hidden)
}

func (f *Focus) Hidden() bool {
	return f.hidden.Load()
}
