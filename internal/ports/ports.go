package ports

import (
	"context"
	"errors"
	"io"

	"ragchat/internal/domain"
)

// ErrSpeechUnavailable is returned when the platform has no usable speech capability.
var ErrSpeechUnavailable = errors.New("speech recognition is not available")

// AnswerService turns a submitted message into an answer.
// A backend-reported failure is returned as an error, same as a transport failure.
type AnswerService interface {
	Ask(ctx context.Context, message string) (string, error)
}

// RecognitionHandler receives the outcome of one recognition session.
// OnResult fires at most once; exactly one of OnEnd or OnError terminates the session.
type RecognitionHandler interface {
	OnResult(text string)
	OnEnd()
	OnError(err error)
}

// SpeechRecognizer is an optional, non-continuous speech-to-text capability.
type SpeechRecognizer interface {
	// Available reports whether recognition can run in this environment.
	Available() bool
	// Start begins one recognition session and returns without waiting for it.
	Start(ctx context.Context, handler RecognitionHandler) error
}

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Available() bool
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// RulesEngine rewrites recognized speech before it is sent.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink emits session state changes to the UI.
type EventSink interface {
	MessageAppended(message domain.Message)
	DraftChanged(draft domain.Draft)
	RequestStateChanged(state domain.RequestState)
	ListeningChanged(state domain.ListeningState)
	SessionError(code domain.ErrorCode, detail string)
}
