package main

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"ragchat/internal/bootstrap"
	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/usecase"
)

const (
	eventMessage   = "ragchat:message"
	eventDraft     = "ragchat:draft"
	eventRequest   = "ragchat:request"
	eventListening = "ragchat:listening"
	eventError     = "ragchat:error"
)

var errNotReady = errors.New("application is not initialized")

// App is the Wails application root. It is also the event sink the backend reports to.
type App struct {
	ctx context.Context

	engine *usecase.SessionEngine
	speech *usecase.SpeechInput
	copier *usecase.AnswerCopier
	logger *slog.Logger
	cfg    config.Config

	bootErr error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, wailsClipboard{})
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}
	a.attach(services)
}

func (a *App) attach(services bootstrap.Services) {
	a.cfg = services.Config
	a.logger = services.Logger
	a.engine = services.Engine
	a.speech = services.Speech
	a.copier = services.Copier
}

// shutdown lets an outstanding answer land before the process exits.
func (a *App) shutdown(_ context.Context) {
	if a.engine != nil {
		a.engine.Wait()
	}
}

// UpdateDraft stores the input box contents and returns its live token estimate.
func (a *App) UpdateDraft(text string) (domain.Draft, error) {
	if err := a.requireReady(); err != nil {
		return domain.Draft{}, err
	}
	return a.engine.UpdateDraft(text), nil
}

// Send submits the current draft. It reports false when the send was dropped.
func (a *App) Send() (bool, error) {
	if err := a.requireReady(); err != nil {
		return false, err
	}
	return a.engine.Send(a.context()), nil
}

// StartListening begins one voice capture. It reports false when voice is unavailable or already listening.
func (a *App) StartListening() (bool, error) {
	if err := a.requireReady(); err != nil {
		return false, err
	}
	return a.speech.StartListening(a.context()), nil
}

// GetSnapshot returns everything the UI renders.
func (a *App) GetSnapshot() domain.Snapshot {
	if a.engine == nil {
		return domain.Snapshot{
			Transcript:     []domain.Message{},
			RequestState:   domain.RequestStateIdle,
			ListeningState: domain.ListeningStateIdle,
		}
	}
	snapshot := a.engine.Snapshot()
	snapshot.ListeningState = a.speech.State()
	snapshot.VoiceAvailable = a.speech.Available()
	return snapshot
}

// Reset clears the conversation. It fails while an answer is pending.
func (a *App) Reset() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.engine.Reset()
}

// CopyLastAnswer copies the latest bot reply to the clipboard.
func (a *App) CopyLastAnswer() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	text, err := a.copier.Copy(a.context())
	if err != nil && a.logger != nil {
		a.logger.Warn("copy last answer failed", "error", err)
	}
	return text, err
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	info := map[string]string{
		"answerMode": string(a.cfg.Answer.Mode),
		"speech":     "Deepgram " + a.cfg.Deepgram.Model,
		"audioInput": a.cfg.Audio.InputDevice,
		"tokenLimit": strconv.FormatFloat(a.cfg.Session.TokenLimit, 'f', -1, 64),
	}
	switch a.cfg.Answer.Mode {
	case config.AnswerModeOpenAI:
		info["endpoint"] = a.cfg.Answer.OpenAIBaseURL
		info["model"] = a.cfg.Answer.OpenAIModel
	default:
		info["endpoint"] = a.cfg.Answer.RelayURL
	}
	return info
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.engine == nil || a.speech == nil || a.copier == nil {
		return errNotReady
	}
	return nil
}

func (a *App) context() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

func (a *App) emit(name string, payload any) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, name, payload)
}

// MessageAppended emits a new transcript entry.
func (a *App) MessageAppended(message domain.Message) {
	a.emit(eventMessage, message)
}

func (a *App) DraftChanged(draft domain.Draft) {
	a.emit(eventDraft, draft)
}

func (a *App) RequestStateChanged(state domain.RequestState) {
	a.emit(eventRequest, map[string]string{"state": string(state)})
}

func (a *App) ListeningChanged(state domain.ListeningState) {
	a.emit(eventListening, map[string]string{"state": string(state)})
}

// SessionError emits non-fatal backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeAnswer:
		return "Could not get an answer"
	case domain.ErrorCodeSpeech:
		return "Voice input failed"
	case domain.ErrorCodeRules:
		return "Speech rewrite failed"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

type wailsClipboard struct{}

func (wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
