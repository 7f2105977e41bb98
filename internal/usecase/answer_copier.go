package usecase

import (
	"context"
	"errors"

	"ragchat/internal/domain"
	"ragchat/internal/ports"
)

// ErrNoAnswer is returned when there is no bot reply to copy yet.
var ErrNoAnswer = errors.New("no answer to copy yet")

// AnswerSource exposes the latest bot reply.
type AnswerSource interface {
	LastAnswer() (string, bool)
}

// AnswerCopier places the latest bot reply on the clipboard.
type AnswerCopier struct {
	answers   AnswerSource
	clipboard ports.Clipboard
	events    ports.EventSink
}

func NewAnswerCopier(answers AnswerSource, clipboard ports.Clipboard, events ports.EventSink) *AnswerCopier {
	if events == nil {
		events = noopEventSink{}
	}
	return &AnswerCopier{answers: answers, clipboard: clipboard, events: events}
}

// Copy returns the copied text.
func (c *AnswerCopier) Copy(ctx context.Context) (string, error) {
	text, ok := c.answers.LastAnswer()
	if !ok {
		return "", ErrNoAnswer
	}
	if c.clipboard == nil {
		return "", errors.New("clipboard is not available")
	}
	if err := c.clipboard.SetText(ctx, text); err != nil {
		c.events.SessionError(domain.ErrorCodeClipboard, err.Error())
		return "", err
	}
	return text, nil
}
