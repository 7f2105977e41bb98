package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ragchat/internal/ports"
)

// ErrNoSpeech is reported when a listening session ends without any recognized text.
var ErrNoSpeech = errors.New("no speech recognized")

const (
	defaultChunkSize = 4096
	defaultMaxListen = 15 * time.Second
	streamDrainLimit = 4 * time.Second
)

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey        string
	APIBaseURL    string
	Model         string
	Language      string
	SmartFormat   bool
	EndpointingMS int
	SampleRate    int
	Channels      int
}

// Options controls how a recognition session captures audio.
type Options struct {
	Audio     ports.AudioConfig
	ChunkSize int
	MaxListen time.Duration
	Logger    *slog.Logger
}

// Recognizer implements ports.SpeechRecognizer with one utterance per session:
// microphone audio is streamed until Deepgram marks the speech final.
type Recognizer struct {
	cfg     Config
	capture ports.AudioCapture
	opts    Options
}

func NewRecognizer(cfg Config, capture ports.AudioCapture, opts Options) *Recognizer {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if opts.ChunkSize < 256 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.MaxListen <= 0 {
		opts.MaxListen = defaultMaxListen
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg.SampleRate = opts.Audio.SampleRate
	cfg.Channels = opts.Audio.Channels
	return &Recognizer{cfg: cfg, capture: capture, opts: opts}
}

// Available reports whether an API key is configured and the microphone can be captured.
func (r *Recognizer) Available() bool {
	if strings.TrimSpace(r.cfg.APIKey) == "" || r.capture == nil {
		return false
	}
	return r.capture.Available()
}

// Start opens the provider stream and the microphone, then recognizes in the background.
func (r *Recognizer) Start(ctx context.Context, handler ports.RecognitionHandler) error {
	if !r.Available() {
		return ports.ErrSpeechUnavailable
	}

	listenCtx, cancel := context.WithTimeout(ctx, r.opts.MaxListen)
	s, err := dialStream(listenCtx, r.cfg, r.opts.Logger)
	if err != nil {
		cancel()
		return err
	}

	audio, err := r.capture.Start(listenCtx, r.opts.Audio)
	if err != nil {
		_ = s.Close()
		cancel()
		return fmt.Errorf("failed to start audio capture: %w", err)
	}

	go r.recognize(listenCtx, cancel, audio, s, handler)
	return nil
}

func (r *Recognizer) recognize(
	ctx context.Context,
	cancel context.CancelFunc,
	audio ports.AudioSession,
	s *stream,
	handler ports.RecognitionHandler,
) {
	defer cancel()

	pumpDone := make(chan error, 1)
	go func() {
		pumpDone <- pumpAudio(audio, s, r.opts.ChunkSize)
	}()

	var (
		agg       utteranceAggregator
		pumpErr   error
		pumpEnded bool
	)
	events := s.Events()

listen:
	for {
		select {
		case event, ok := <-events:
			if !ok {
				break listen
			}
			agg.Add(event)
			if event.SpeechFinal {
				break listen
			}
		case err := <-pumpDone:
			pumpEnded = true
			pumpDone = nil
			if err != nil {
				pumpErr = err
				break listen
			}
			// Capture ran dry; let the provider finalize what it has.
			_ = s.CloseSend()
		case <-ctx.Done():
			break listen
		}
	}

	_ = audio.Stop()
	if !pumpEnded {
		// Reads fail once capture is stopped; that is not a recognition error.
		<-pumpDone
	}
	_ = s.CloseSend()
	streamErr := waitForStream(s, streamDrainLimit)
	for event := range events {
		agg.Add(event)
	}

	if text := agg.Text(); text != "" {
		handler.OnResult(text)
		handler.OnEnd()
		return
	}
	switch {
	case pumpErr != nil:
		handler.OnError(pumpErr)
	case streamErr != nil:
		handler.OnError(streamErr)
	default:
		handler.OnError(ErrNoSpeech)
	}
}

// utteranceAggregator joins the final transcript fragments of one utterance.
type utteranceAggregator struct {
	mu    sync.Mutex
	parts []string
}

func (a *utteranceAggregator) Add(event transcriptEvent) {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.parts = append(a.parts, text)
}

func (a *utteranceAggregator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.TrimSpace(strings.Join(a.parts, " "))
}

type audioSink interface {
	SendAudio(chunk []byte) error
}

// pumpAudio copies captured PCM into the stream until the capture ends.
// A clean end of capture returns nil.
func pumpAudio(audio io.Reader, sink audioSink, chunkSize int) error {
	if chunkSize < 256 {
		chunkSize = defaultChunkSize
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := sink.SendAudio(buf[:n]); sendErr != nil {
				return fmt.Errorf("failed to stream audio: %w", sendErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("audio capture error: %w", err)
		}
	}
}

type waiter interface {
	Wait() error
	Close() error
}

func waitForStream(s waiter, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- s.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = s.Close()
		return <-done
	}
}
