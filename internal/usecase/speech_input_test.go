package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func TestSpeechInputStartListeningTwice(t *testing.T) {
	t.Parallel()

	recognizer := &fakeRecognizer{available: true}
	events := &fakeEventSink{}
	speech := NewSpeechInput(recognizer, nil, &recordingSender{accept: true}, events, nil)

	assert.True(t, speech.StartListening(context.Background()))
	assert.False(t, speech.StartListening(context.Background()))

	assert.Equal(t, domain.ListeningStateListening, speech.State())
	assert.Equal(t, 1, recognizer.startCount())
	assert.Equal(t, []domain.ListeningState{domain.ListeningStateListening}, events.snapshotListening())
}

func TestSpeechInputUnavailable(t *testing.T) {
	t.Parallel()

	recognizer := &fakeRecognizer{available: false}
	speech := NewSpeechInput(recognizer, nil, &recordingSender{}, nil, nil)
	assert.False(t, speech.Available())
	assert.False(t, speech.StartListening(context.Background()))
	assert.Equal(t, domain.ListeningStateIdle, speech.State())
	assert.Zero(t, recognizer.startCount())

	none := NewSpeechInput(nil, nil, &recordingSender{}, nil, nil)
	assert.False(t, none.Available())
	assert.False(t, none.StartListening(context.Background()))
}

func TestSpeechInputResultThenEnd(t *testing.T) {
	t.Parallel()

	recognizer := &fakeRecognizer{available: true}
	sender := &recordingSender{accept: true}
	events := &fakeEventSink{}
	speech := NewSpeechInput(recognizer, &fakeRules{transform: "what is RAG"}, sender, events, nil)

	require.True(t, speech.StartListening(context.Background()))
	recognizer.handler.OnResult("what is rag")
	assert.Equal(t, domain.ListeningStateListening, speech.State(), "a result alone does not end listening")
	assert.Equal(t, []string{"what is RAG"}, sender.received)

	recognizer.handler.OnEnd()
	assert.Equal(t, domain.ListeningStateIdle, speech.State())
	assert.Equal(t, []domain.ListeningState{
		domain.ListeningStateListening,
		domain.ListeningStateIdle,
	}, events.snapshotListening())

	assert.True(t, speech.StartListening(context.Background()))
	assert.Equal(t, 2, recognizer.startCount())
}

func TestSpeechInputRulesFailureSendsRawText(t *testing.T) {
	t.Parallel()

	recognizer := &fakeRecognizer{available: true}
	sender := &recordingSender{accept: true}
	events := &fakeEventSink{}
	speech := NewSpeechInput(recognizer, &fakeRules{err: errors.New("bad rule")}, sender, events, nil)

	require.True(t, speech.StartListening(context.Background()))
	speech.OnResult("  hello there ")
	assert.Equal(t, []string{"hello there"}, sender.received)

	errs := events.snapshotErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, domain.ErrorCodeRules, errs[0].code)
}

func TestSpeechInputErrorIsSilentInTranscript(t *testing.T) {
	t.Parallel()

	logger, logs := bufferLogger()
	events := &fakeEventSink{}
	engine := NewSessionEngine(&fakeAnswerService{answer: "unused"}, events, logger, Config{})
	recognizer := &fakeRecognizer{available: true}
	speech := NewSpeechInput(recognizer, nil, engine, events, logger)

	require.True(t, speech.StartListening(context.Background()))
	recognizer.handler.OnError(errors.New("microphone busy"))

	assert.Equal(t, domain.ListeningStateIdle, speech.State())
	assert.Empty(t, engine.Snapshot().Transcript)
	assert.Contains(t, logs.String(), "microphone busy")

	errs := events.snapshotErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, domain.ErrorCodeSpeech, errs[0].code)
}

func TestSpeechInputStartFailureResetsToIdle(t *testing.T) {
	t.Parallel()

	recognizer := &fakeRecognizer{available: true, err: errors.New("ffmpeg exited")}
	events := &fakeEventSink{}
	speech := NewSpeechInput(recognizer, nil, &recordingSender{}, events, nil)

	assert.False(t, speech.StartListening(context.Background()))
	assert.Equal(t, domain.ListeningStateIdle, speech.State())
	assert.Equal(t, []domain.ListeningState{
		domain.ListeningStateListening,
		domain.ListeningStateIdle,
	}, events.snapshotListening())
}

func TestSpeechInputResultDroppedWhilePending(t *testing.T) {
	t.Parallel()

	answers := newGatedAnswers("typed answer")
	engine := NewSessionEngine(answers, nil, nil, Config{})
	recognizer := &fakeRecognizer{available: true}
	speech := NewSpeechInput(recognizer, nil, engine, nil, nil)

	engine.UpdateDraft("typed question")
	require.True(t, engine.Send(context.Background()))
	<-answers.started

	require.True(t, speech.StartListening(context.Background()))
	recognizer.handler.OnResult("spoken question")
	recognizer.handler.OnEnd()

	close(answers.gate)
	engine.Wait()

	snap := engine.Snapshot()
	assert.Equal(t, []domain.Message{
		{Text: "typed question", Sender: domain.SenderUser},
		{Text: "typed answer", Sender: domain.SenderBot},
	}, snap.Transcript)
}

func TestSpeechInputResultUsesSendPath(t *testing.T) {
	t.Parallel()

	answers := &fakeAnswerService{answer: "spoken answer"}
	engine := NewSessionEngine(answers, nil, nil, Config{})
	recognizer := &fakeRecognizer{available: true}
	speech := NewSpeechInput(recognizer, nil, engine, nil, nil)

	engine.UpdateDraft("half typed")
	require.True(t, speech.StartListening(context.Background()))
	recognizer.handler.OnResult("spoken question")
	recognizer.handler.OnEnd()
	engine.Wait()

	snap := engine.Snapshot()
	assert.Equal(t, []domain.Message{
		{Text: "spoken question", Sender: domain.SenderUser},
		{Text: "spoken answer", Sender: domain.SenderBot},
	}, snap.Transcript)
	assert.Empty(t, snap.Draft.Text)
}
