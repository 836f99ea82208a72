// Package sysop is the AI-backed system operator: it answers pages
// from users and greets them on login.
package sysop

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/retrobbs/retrobbs/internal/ai"
	"github.com/retrobbs/retrobbs/internal/ansi"
)

const (
	// PageTimeout bounds how long a page waits for the SysOp.
	PageTimeout = 5 * time.Second

	// MaxResponseCells caps a page response's visual width.
	MaxResponseCells = 500
)

const pageSystemPrompt = "You are the SysOp of a retro dial-up BBS. A user has paged you. " +
	"Reply in character: friendly, a little nostalgic, two or three short sentences at most."

const welcomeSystemPrompt = "You are the SysOp of a retro dial-up BBS greeting a user who just " +
	"logged in. One or two warm, era-appropriate sentences."

// SysOp pages the AI operator with a hard deadline.
type SysOp struct {
	ai      *ai.Service
	timeout time.Duration
	logger  *logrus.Logger
}

// New creates a SysOp. timeout <= 0 selects PageTimeout.
func New(svc *ai.Service, timeout time.Duration, logger *logrus.Logger) *SysOp {
	if timeout <= 0 {
		timeout = PageTimeout
	}
	return &SysOp{ai: svc, timeout: timeout, logger: logger}
}

// Page sends a user's message to the SysOp and waits at most the
// configured timeout for an answer. On timeout a typed ai.Error with
// KindTimeout is returned and the in-flight call's eventual result is
// discarded.
func (s *SysOp) Page(ctx context.Context, fromHandle, message string) (string, error) {
	type answer struct {
		text string
		err  error
	}
	// Buffered so a late reply never leaks the goroutine.
	ch := make(chan answer, 1)

	prompt := fmt.Sprintf("Page from %s: %s", fromHandle, message)
	go func() {
		text, err := s.ai.GenerateCompletion(ctx, prompt, ai.Options{
			System:    pageSystemPrompt,
			MaxTokens: 200,
		}, ai.Fallback(ai.FallbackError))
		ch <- answer{text: text, err: err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case a := <-ch:
		if a.err != nil {
			return "", a.err
		}
		return formatResponse(a.text), nil
	case <-timer.C:
		s.logger.WithField("from", fromHandle).Warn("sysop page timed out")
		return "", ai.NewError(ai.KindTimeout, "sysop did not answer the page in time", nil)
	case <-ctx.Done():
		return "", ai.NewError(ai.KindTimeout, "page cancelled", ctx.Err())
	}
}

// Welcome greets a user who just logged in. AI failures fall back to
// the canned welcome.
func (s *SysOp) Welcome(ctx context.Context, handle string) string {
	text, err := s.ai.GenerateCompletion(ctx, "Greet "+handle, ai.Options{
		System:    welcomeSystemPrompt,
		MaxTokens: 120,
	}, ai.Fallback(ai.FallbackWelcome))
	if err != nil {
		return ai.Fallback(ai.FallbackWelcome)
	}
	return formatResponse(text)
}

// formatResponse colors the SysOp's words and enforces the width cap.
func formatResponse(text string) string {
	out := ansi.Colorize("SysOp", ansi.Green) + ": " + text
	return ansi.Truncate(out, MaxResponseCells, "...")
}
