package usecase

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"ragchat/internal/domain"
	"ragchat/internal/ports"
)

type fakeAnswerService struct {
	mu      sync.Mutex
	answer  string
	err     error
	gate    chan struct{}
	started chan string
	calls   []string
}

func (f *fakeAnswerService) Ask(_ context.Context, message string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, message)
	gate, started := f.gate, f.started
	answer, err := f.answer, f.err
	f.mu.Unlock()

	if started != nil {
		started <- message
	}
	if gate != nil {
		<-gate
	}
	return answer, err
}

func (f *fakeAnswerService) snapshotCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeEventSink struct {
	mu sync.Mutex

	messages  []domain.Message
	drafts    []domain.Draft
	requests  []domain.RequestState
	listening []domain.ListeningState
	errors    []errEvent
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) MessageAppended(message domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
}

func (f *fakeEventSink) DraftChanged(draft domain.Draft) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, draft)
}

func (f *fakeEventSink) RequestStateChanged(state domain.RequestState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, state)
}

func (f *fakeEventSink) ListeningChanged(state domain.ListeningState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listening = append(f.listening, state)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotRequests() []domain.RequestState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RequestState, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeEventSink) snapshotListening() []domain.ListeningState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ListeningState, len(f.listening))
	copy(out, f.listening)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

type fakeRecognizer struct {
	mu        sync.Mutex
	available bool
	err       error
	starts    int
	handler   ports.RecognitionHandler
}

func (f *fakeRecognizer) Available() bool { return f.available }

func (f *fakeRecognizer) Start(_ context.Context, handler ports.RecognitionHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.err != nil {
		return f.err
	}
	f.handler = handler
	return nil
}

func (f *fakeRecognizer) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

type fakeRules struct {
	transform string
	err       error
}

func (f *fakeRules) Apply(text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.transform != "" {
		return f.transform, nil
	}
	return text, nil
}

type recordingSender struct {
	mu       sync.Mutex
	accept   bool
	received []string
}

func (r *recordingSender) SendText(_ context.Context, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, text)
	return r.accept
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}
