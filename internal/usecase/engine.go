package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"ragchat/internal/domain"
	"ragchat/internal/ports"
	"ragchat/internal/tokens"
)

// ErrRequestPending is reported when a send is dropped because an answer is outstanding.
var ErrRequestPending = errors.New("an answer request is already pending")

// Config controls session budgeting.
type Config struct {
	TokenLimit float64
}

// SessionEngine owns the transcript, the draft and the single in-flight answer request.
type SessionEngine struct {
	answers ports.AnswerService
	events  ports.EventSink
	logger  *slog.Logger
	budget  *tokens.Budgeter

	mu         sync.Mutex
	transcript []domain.Message
	draft      domain.Draft
	request    domain.RequestState

	// outbox holds notifications in state-change order; flushing marks the
	// goroutine currently delivering them.
	outbox   []func(ports.EventSink)
	flushing bool

	inflight sync.WaitGroup
}

func NewSessionEngine(answers ports.AnswerService, events ports.EventSink, logger *slog.Logger, cfg Config) *SessionEngine {
	if events == nil {
		events = noopEventSink{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.TokenLimit <= 0 {
		cfg.TokenLimit = tokens.DefaultLimit
	}
	return &SessionEngine{
		answers: answers,
		events:  events,
		logger:  logger,
		budget:  tokens.NewBudgeter(cfg.TokenLimit),
		request: domain.RequestStateIdle,
	}
}

// UpdateDraft replaces the draft text and refreshes its token estimate.
func (e *SessionEngine) UpdateDraft(text string) domain.Draft {
	estimate := tokens.Estimate(text)
	draft := domain.Draft{
		Text:          text,
		TokenEstimate: estimate,
		OverBudget:    estimate > e.budget.Limit(),
	}

	e.mu.Lock()
	e.draft = draft
	e.post(func(s ports.EventSink) { s.DraftChanged(draft) })
	e.mu.Unlock()

	e.flush()
	return draft
}

// Send submits the current draft. It reports whether the send was accepted.
func (e *SessionEngine) Send(ctx context.Context) bool {
	return e.send(ctx, "", false)
}

// SendText submits text in place of the draft, as the speech path does.
func (e *SessionEngine) SendText(ctx context.Context, text string) bool {
	return e.send(ctx, text, true)
}

func (e *SessionEngine) send(ctx context.Context, explicit string, useExplicit bool) bool {
	outbound, err := e.begin(explicit, useExplicit)
	if err != nil {
		if errors.Is(err, ErrRequestPending) {
			e.logger.Debug("send dropped", "reason", err)
		}
		return false
	}

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		answer, err := e.answers.Ask(ctx, outbound)
		e.complete(answer, err)
	}()
	return true
}

var errEmptyInput = errors.New("empty input")

// begin performs every pre-request mutation as one step: truncate, append the
// user message, clear the draft and mark the request pending.
func (e *SessionEngine) begin(explicit string, useExplicit bool) (string, error) {
	e.mu.Lock()
	candidate := e.draft.Text
	if useExplicit {
		candidate = explicit
	}
	if strings.TrimSpace(candidate) == "" {
		e.mu.Unlock()
		return "", errEmptyInput
	}
	if e.request == domain.RequestStatePending {
		e.mu.Unlock()
		return "", ErrRequestPending
	}

	outbound, truncated := e.budget.Truncate(candidate)
	message := domain.Message{Text: outbound, Sender: domain.SenderUser}
	e.transcript = append(e.transcript, message)
	e.draft = domain.Draft{}
	e.request = domain.RequestStatePending
	e.post(
		func(s ports.EventSink) { s.MessageAppended(message) },
		func(s ports.EventSink) { s.DraftChanged(domain.Draft{}) },
		func(s ports.EventSink) { s.RequestStateChanged(domain.RequestStatePending) },
	)
	e.mu.Unlock()

	if truncated {
		e.logger.Info("message truncated to token budget",
			"limit", e.budget.Limit(),
			"estimate", tokens.Estimate(candidate),
		)
	}

	e.flush()
	return outbound, nil
}

func (e *SessionEngine) complete(answer string, err error) {
	message := domain.Message{Text: answer, Sender: domain.SenderBot}
	if err != nil {
		e.logger.Error("answer request failed", "code", domain.ErrorCodeAnswer, "error", err)
		message.Text = domain.ApologyText
	}

	e.mu.Lock()
	e.transcript = append(e.transcript, message)
	e.request = domain.RequestStateIdle
	e.post(
		func(s ports.EventSink) { s.MessageAppended(message) },
		func(s ports.EventSink) { s.RequestStateChanged(domain.RequestStateIdle) },
	)
	e.mu.Unlock()

	e.flush()
}

// post queues notifications. Callers hold e.mu.
func (e *SessionEngine) post(notify ...func(ports.EventSink)) {
	e.outbox = append(e.outbox, notify...)
}

// flush delivers queued notifications outside the lock, in the order they
// were posted. Only one goroutine delivers at a time; a sink that calls back
// into the engine has its notifications delivered after the current one.
func (e *SessionEngine) flush() {
	e.mu.Lock()
	if e.flushing {
		e.mu.Unlock()
		return
	}
	e.flushing = true
	for len(e.outbox) > 0 {
		batch := e.outbox
		e.outbox = nil
		e.mu.Unlock()
		for _, notify := range batch {
			notify(e.events)
		}
		e.mu.Lock()
	}
	e.flushing = false
	e.mu.Unlock()
}

// Wait blocks until the outstanding answer request, if any, has completed.
func (e *SessionEngine) Wait() {
	e.inflight.Wait()
}

// Reset starts a fresh session. It is refused while a request is pending.
func (e *SessionEngine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.request == domain.RequestStatePending {
		return ErrRequestPending
	}
	e.transcript = nil
	e.draft = domain.Draft{}
	return nil
}

// Snapshot returns a copy of the transcript, draft and request state.
// Listening state and voice availability belong to SpeechInput and are left zero.
func (e *SessionEngine) Snapshot() domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	transcript := make([]domain.Message, len(e.transcript))
	copy(transcript, e.transcript)
	return domain.Snapshot{
		Transcript:   transcript,
		Draft:        e.draft,
		RequestState: e.request,
	}
}

// LastAnswer returns the most recent bot reply.
func (e *SessionEngine) LastAnswer() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.transcript) - 1; i >= 0; i-- {
		if e.transcript[i].Sender == domain.SenderBot {
			return e.transcript[i].Text, true
		}
	}
	return "", false
}

type noopEventSink struct{}

func (noopEventSink) MessageAppended(domain.Message)          {}
func (noopEventSink) DraftChanged(domain.Draft)               {}
func (noopEventSink) RequestStateChanged(domain.RequestState) {}
func (noopEventSink) ListeningChanged(domain.ListeningState)  {}
func (noopEventSink) SessionError(domain.ErrorCode, string)   {}
