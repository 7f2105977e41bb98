package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

const (
	defaultBaseURL  = "https://api.deepgram.com/v1"
	defaultModel    = "nova-2"
	defaultEncoding = "linear16"
)

// transcriptEvent is one finalized piece of recognized speech.
type transcriptEvent struct {
	Text        string
	SpeechFinal bool
}

// stream is a single Deepgram live-transcription websocket.
type stream struct {
	conn   *websocket.Conn
	logger *slog.Logger

	events   chan transcriptEvent
	audio    chan []byte
	sendDone chan struct{}
	readDone chan struct{}
	done     chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
}

func dialStream(ctx context.Context, cfg Config, logger *slog.Logger) (*stream, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("DEEPGRAM_API_KEY is not configured")
	}

	wsURL, err := buildListenURL(cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}

	s := &stream{
		conn:     conn,
		logger:   logger,
		events:   make(chan transcriptEvent, 16),
		audio:    make(chan []byte, 32),
		sendDone: make(chan struct{}),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.events)
		close(s.done)
		_ = conn.Close()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

// SendAudio queues a PCM chunk for the provider.
func (s *stream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.sendDone:
		return errors.New("audio stream is already closed")
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("stream closed")
	}
}

// CloseSend tells the provider no more audio follows.
func (s *stream) CloseSend() error {
	s.closeSendOnce.Do(func() {
		close(s.sendDone)
	})
	return nil
}

func (s *stream) Events() <-chan transcriptEvent {
	return s.events
}

// Wait blocks until both loops have exited and returns the first failure.
func (s *stream) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *stream) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *stream) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}
	if errors.Is(err, net.ErrClosed) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *stream) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case chunk := <-s.audio:
			if err := s.writeAudio(chunk); err != nil {
				return
			}
		case <-s.sendDone:
			s.flush()
			return
		case <-s.readDone:
			return
		}
	}
}

// flush writes whatever was queued before CloseSend, then ends the stream.
func (s *stream) flush() {
	for {
		select {
		case chunk := <-s.audio:
			if err := s.writeAudio(chunk); err != nil {
				return
			}
		default:
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
				s.setErr(fmt.Errorf("failed to close stream: %w", err))
			}
			return
		}
	}
}

func (s *stream) writeAudio(chunk []byte) error {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		s.setErr(fmt.Errorf("failed to send audio: %w", err))
		return err
	}
	return nil
}

func (s *stream) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		var msg listenMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}

		if strings.EqualFold(msg.Type, "Error") {
			reason := strings.TrimSpace(msg.Message)
			if reason == "" {
				reason = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(reason))
			return
		}

		// Interim results are disabled; anything not final is ignored.
		if !msg.IsFinal && !msg.SpeechFinal {
			continue
		}
		s.emit(transcriptEvent{Text: msg.transcript(), SpeechFinal: msg.SpeechFinal})
	}
}

func (s *stream) emit(event transcriptEvent) {
	select {
	case s.events <- event:
	default:
		if s.logger != nil {
			s.logger.Debug("deepgram transcript event dropped, buffer full",
				"speech_final", event.SpeechFinal,
				"chars", len(event.Text),
			)
		}
	}
}

type listenMessage struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (m listenMessage) transcript() string {
	if len(m.Channel.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(m.Channel.Alternatives[0].Transcript)
}

func buildListenURL(cfg Config) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	if base == "" {
		base = defaultBaseURL
	}

	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	query := listenURL.Query()
	query.Set("model", model)
	query.Set("encoding", defaultEncoding)
	query.Set("sample_rate", strconv.Itoa(sampleRate))
	query.Set("channels", strconv.Itoa(channels))
	query.Set("interim_results", "false")
	query.Set("smart_format", strconv.FormatBool(cfg.SmartFormat))
	if cfg.EndpointingMS > 0 {
		query.Set("endpointing", strconv.Itoa(cfg.EndpointingMS))
	}
	if cfg.Language != "" {
		query.Set("language", cfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
