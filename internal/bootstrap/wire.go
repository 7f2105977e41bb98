package bootstrap

import (
	"fmt"
	"log/slog"
	"os"

	"ragchat/internal/audio"
	"ragchat/internal/config"
	"ragchat/internal/ports"
	"ragchat/internal/providers/deepgram"
	"ragchat/internal/providers/openai"
	"ragchat/internal/providers/relay"
	"ragchat/internal/rules"
	"ragchat/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config config.Config
	Logger *slog.Logger
	Engine *usecase.SessionEngine
	Speech *usecase.SpeechInput
	Copier *usecase.AnswerCopier
}

// Build loads configuration and wires every backend dependency.
func Build(eventSink ports.EventSink, clipboard ports.Clipboard) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWithConfig(cfg, eventSink, clipboard)
}

// BuildWithConfig wires the runtime graph from an already resolved configuration.
func BuildWithConfig(cfg config.Config, eventSink ports.EventSink, clipboard ports.Clipboard) (Services, error) {
	logger := NewLogger(cfg.Log, os.Stderr)

	answers, err := newAnswerService(cfg.Answer)
	if err != nil {
		return Services{}, err
	}
	engine := usecase.NewSessionEngine(answers, eventSink, logger, usecase.Config{
		TokenLimit: cfg.Session.TokenLimit,
	})

	audioCfg := ports.AudioConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
	}
	recognizer := deepgram.NewRecognizer(
		deepgram.Config{
			APIKey:        cfg.Deepgram.APIKey,
			APIBaseURL:    cfg.Deepgram.APIBaseURL,
			Model:         cfg.Deepgram.Model,
			Language:      cfg.Deepgram.Language,
			SmartFormat:   cfg.Deepgram.SmartFormat,
			EndpointingMS: cfg.Deepgram.EndpointingMS,
		},
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		deepgram.Options{
			Audio:     audioCfg,
			ChunkSize: cfg.Speech.ChunkSize,
			MaxListen: cfg.Speech.MaxListen,
			Logger:    logger,
		},
	)

	// Speech is optional, so a broken rules file disables rewriting rather than the app.
	rewriter, err := rules.Load(cfg.Speech.RulesPath, cfg.Speech.IterationLimit)
	if err != nil {
		logger.Error("speech rewrite rules disabled", "path", cfg.Speech.RulesPath, "error", err)
		rewriter = rules.New(nil, cfg.Speech.IterationLimit)
	}

	speech := usecase.NewSpeechInput(recognizer, rewriter, engine, eventSink, logger)
	logger.Info("services ready",
		"answer_mode", cfg.Answer.Mode,
		"token_limit", cfg.Session.TokenLimit,
		"voice_available", speech.Available(),
		"rewrite_rules", rewriter.Len(),
	)

	return Services{
		Config: cfg,
		Logger: logger,
		Engine: engine,
		Speech: speech,
		Copier: usecase.NewAnswerCopier(engine, clipboard, eventSink),
	}, nil
}

func newAnswerService(cfg config.AnswerConfig) (ports.AnswerService, error) {
	switch cfg.Mode {
	case config.AnswerModeOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:       cfg.OpenAIAPIKey,
			BaseURL:      cfg.OpenAIBaseURL,
			Model:        cfg.OpenAIModel,
			SystemPrompt: cfg.OpenAISystemPrompt,
			Timeout:      cfg.HTTPTimeout,
		}), nil
	case config.AnswerModeRelay, "":
		return relay.NewClient(cfg.RelayURL, cfg.HTTPTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported answer mode %q", cfg.Mode)
	}
}
