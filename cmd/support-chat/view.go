package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"tourbook-chat/pkg/supportchat"
	"tourbook-chat/pkg/supportchat/conversation"
)

// view prints the conversation incrementally. Change callbacks arrive from
// the channel goroutine as well as from the input loop.
type view struct {
	mu      sync.Mutex
	w       io.Writer
	printed map[supportchat.ConfirmedID]bool
	mode    supportchat.Mode
	status  supportchat.SessionStatus
	sending bool

	you     *color.Color
	support *color.Color
	ai      *color.Color
	notice  *color.Color
	failure *color.Color
}

func newView(w io.Writer) *view {
	return &view{
		w:       w,
		printed: make(map[supportchat.ConfirmedID]bool),
		you:     color.New(color.FgGreen),
		support: color.New(color.FgMagenta, color.Bold),
		ai:      color.New(color.FgBlue),
		notice:  color.New(color.Faint),
		failure: color.New(color.FgRed),
	}
}

func (v *view) render(ctrl *conversation.Controller) {
	msgs := ctrl.Messages()
	mode := ctrl.Mode()
	status := ctrl.SessionStatus()
	busy := ctrl.Busy()

	v.mu.Lock()
	defer v.mu.Unlock()

	if mode != v.mode {
		v.mode = mode
		v.printed = make(map[supportchat.ConfirmedID]bool)
		v.notice.Fprintf(v.w, "-- %s chat --\n", mode)
	}
	if status != v.status {
		v.status = status
		if status != supportchat.SessionUnknown {
			v.notice.Fprintf(v.w, "-- conversation %s --\n", status)
		}
	}
	if busy.Sending != v.sending {
		v.sending = busy.Sending
		if busy.Sending {
			v.notice.Fprintln(v.w, "  sending...")
		}
	}

	present := make(map[supportchat.ConfirmedID]bool, len(msgs))
	for _, m := range msgs {
		id, ok := m.Confirmed()
		if !ok {
			continue
		}
		present[id] = true
		if v.printed[id] {
			continue
		}
		v.printed[id] = true
		v.printMessage(m)
	}

	removed := 0
	for id := range v.printed {
		if !present[id] {
			delete(v.printed, id)
			removed++
		}
	}
	if removed > 0 {
		v.notice.Fprintf(v.w, "-- %d message(s) removed --\n", removed)
	}
}

func (v *view) printMessage(m supportchat.Message) {
	stamp := m.CreatedAt.Local().Format("15:04")
	switch {
	case m.AuthoredBySupport:
		v.support.Fprintf(v.w, "[%s] support: ", stamp)
	case m.AuthoredByAI:
		v.ai.Fprintf(v.w, "[%s] assistant: ", stamp)
	default:
		v.you.Fprintf(v.w, "[%s] you: ", stamp)
	}
	fmt.Fprintln(v.w, m.Text)
}

func (v *view) info(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notice.Fprintln(v.w, text)
}

func (v *view) errorf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failure.Fprintf(v.w, format+"\n", args...)
}
