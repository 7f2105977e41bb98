package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// AnswerMode selects which backend answers chat messages.
type AnswerMode string

const (
	AnswerModeRelay  AnswerMode = "relay"
	AnswerModeOpenAI AnswerMode = "openai"
)

// Config stores runtime configuration resolved from the environment.
type Config struct {
	Answer   AnswerConfig
	Deepgram DeepgramConfig
	Audio    AudioConfig
	Speech   SpeechConfig
	Session  SessionConfig
	Log      LogConfig
}

type AnswerConfig struct {
	Mode        AnswerMode    `env:"RAGCHAT_ANSWER_MODE" envDefault:"relay"`
	RelayURL    string        `env:"RAGCHAT_RELAY_URL" envDefault:"http://localhost:8000/rag"`
	HTTPTimeout time.Duration `env:"RAGCHAT_HTTP_TIMEOUT" envDefault:"60s"`

	OpenAIAPIKey       string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `env:"OPENAI_BASE_URL" envDefault:"http://localhost:11434/v1"`
	OpenAIModel        string `env:"OPENAI_MODEL" envDefault:"phi3"`
	OpenAISystemPrompt string `env:"RAGCHAT_SYSTEM_PROMPT"`
}

type DeepgramConfig struct {
	APIKey        string `env:"DEEPGRAM_API_KEY"`
	APIBaseURL    string `env:"DEEPGRAM_API_BASE" envDefault:"https://api.deepgram.com/v1"`
	Model         string `env:"DEEPGRAM_MODEL" envDefault:"nova-2"`
	Language      string `env:"DEEPGRAM_LANGUAGE"`
	SmartFormat   bool   `env:"DEEPGRAM_SMART_FORMAT" envDefault:"true"`
	EndpointingMS int    `env:"DEEPGRAM_ENDPOINTING_MS" envDefault:"300"`
}

type AudioConfig struct {
	RecorderCommand string `env:"RAGCHAT_FFMPEG_COMMAND" envDefault:"ffmpeg"`
	InputFormat     string `env:"RAGCHAT_AUDIO_INPUT_FORMAT" envDefault:"pulse"`
	InputDevice     string `env:"RAGCHAT_AUDIO_INPUT_DEVICE" envDefault:"default"`
	SampleRate      int    `env:"RAGCHAT_SAMPLE_RATE" envDefault:"16000"`
	Channels        int    `env:"RAGCHAT_CHANNELS" envDefault:"1"`
}

type SpeechConfig struct {
	RulesPath      string        `env:"RAGCHAT_SPEECH_RULES_FILE"`
	IterationLimit int           `env:"RAGCHAT_RULE_ITERATION_LIMIT" envDefault:"30"`
	MaxListen      time.Duration `env:"RAGCHAT_MAX_LISTEN" envDefault:"15s"`
	ChunkSize      int           `env:"RAGCHAT_AUDIO_CHUNK_SIZE" envDefault:"4096"`
}

type SessionConfig struct {
	TokenLimit float64 `env:"RAGCHAT_TOKEN_LIMIT" envDefault:"100"`
}

type LogConfig struct {
	Level  string `env:"RAGCHAT_LOG_LEVEL" envDefault:"info"`
	Format string `env:"RAGCHAT_LOG_FORMAT" envDefault:"text"`
}

// Load reads an optional .env file, then resolves configuration from the environment.
// Variables already present in the environment win over the file.
func Load() (Config, error) {
	envFile := strings.TrimSpace(os.Getenv("RAGCHAT_ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Speech.RulesPath == "" {
		cfg.Speech.RulesPath = defaultRulesPath()
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Answer.Mode = AnswerMode(strings.ToLower(strings.TrimSpace(string(c.Answer.Mode))))
	if c.Answer.Mode != AnswerModeOpenAI {
		c.Answer.Mode = AnswerModeRelay
	}
	c.Answer.RelayURL = strings.TrimSpace(c.Answer.RelayURL)
	c.Answer.OpenAIAPIKey = strings.TrimSpace(c.Answer.OpenAIAPIKey)
	if c.Answer.HTTPTimeout <= 0 {
		c.Answer.HTTPTimeout = 60 * time.Second
	}

	c.Deepgram.APIKey = strings.TrimSpace(c.Deepgram.APIKey)
	if c.Deepgram.EndpointingMS < 0 {
		c.Deepgram.EndpointingMS = 0
	}

	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = 1
	}

	if c.Speech.IterationLimit <= 0 {
		c.Speech.IterationLimit = 30
	}
	if c.Speech.MaxListen <= 0 {
		c.Speech.MaxListen = 15 * time.Second
	}
	if c.Speech.ChunkSize < 256 {
		c.Speech.ChunkSize = 4096
	}

	if c.Session.TokenLimit <= 0 {
		c.Session.TokenLimit = 100
	}
}

func defaultRulesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "ragchat", "speech.rules")
}
