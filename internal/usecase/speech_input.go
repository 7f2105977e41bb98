package usecase

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"ragchat/internal/domain"
	"ragchat/internal/ports"
)

// TextSender is the send path recognized speech is handed to.
type TextSender interface {
	SendText(ctx context.Context, text string) bool
}

// SpeechInput turns an optional speech recognizer into an alternate input source.
// It implements ports.RecognitionHandler for the sessions it starts.
type SpeechInput struct {
	recognizer ports.SpeechRecognizer
	rules      ports.RulesEngine
	sender     TextSender
	events     ports.EventSink
	logger     *slog.Logger

	mu    sync.Mutex
	state domain.ListeningState
	ctx   context.Context
}

func NewSpeechInput(
	recognizer ports.SpeechRecognizer,
	rules ports.RulesEngine,
	sender TextSender,
	events ports.EventSink,
	logger *slog.Logger,
) *SpeechInput {
	if events == nil {
		events = noopEventSink{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SpeechInput{
		recognizer: recognizer,
		rules:      rules,
		sender:     sender,
		events:     events,
		logger:     logger,
		state:      domain.ListeningStateIdle,
	}
}

// Available reports whether voice input can be offered at all.
func (s *SpeechInput) Available() bool {
	return s.recognizer != nil && s.recognizer.Available()
}

// State returns the current listening state.
func (s *SpeechInput) State() domain.ListeningState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartListening begins one recognition session. It is a no-op when already
// listening or when no recognizer is available, and reports whether a session started.
func (s *SpeechInput) StartListening(ctx context.Context) bool {
	if !s.Available() {
		return false
	}

	s.mu.Lock()
	if s.state == domain.ListeningStateListening {
		s.mu.Unlock()
		return false
	}
	s.state = domain.ListeningStateListening
	s.ctx = ctx
	s.mu.Unlock()
	s.events.ListeningChanged(domain.ListeningStateListening)

	if err := s.recognizer.Start(ctx, s); err != nil {
		s.OnError(err)
		return false
	}
	return true
}

// OnResult forwards recognized text to the send path. Listening state is left to OnEnd/OnError.
func (s *SpeechInput) OnResult(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	if s.rules != nil {
		rewritten, err := s.rules.Apply(text)
		if err != nil {
			s.logger.Warn("speech rewrite failed, sending raw text", "code", domain.ErrorCodeRules, "error", err)
			s.events.SessionError(domain.ErrorCodeRules, err.Error())
		} else {
			text = rewritten
		}
	}

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if !s.sender.SendText(ctx, text) {
		s.logger.Info("recognized speech was not sent", "text", text)
	}
}

// OnEnd returns to idle.
func (s *SpeechInput) OnEnd() {
	s.setIdle()
}

// OnError returns to idle and reports err to diagnostics only.
func (s *SpeechInput) OnError(err error) {
	s.logger.Warn("speech recognition failed", "code", domain.ErrorCodeSpeech, "error", err)
	if err != nil {
		s.events.SessionError(domain.ErrorCodeSpeech, err.Error())
	}
	s.setIdle()
}

func (s *SpeechInput) setIdle() {
	s.mu.Lock()
	changed := s.state != domain.ListeningStateIdle
	s.state = domain.ListeningStateIdle
	s.ctx = nil
	s.mu.Unlock()

	if changed {
		s.events.ListeningChanged(domain.ListeningStateIdle)
	}
}
