// Package config loads daemon settings from flags, an env file and the
// environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"voxrelay/internal/reply"
	"voxrelay/internal/session"
	"voxrelay/internal/stt"
)

const envPrefix = "VOXRELAY_"

const (
	ProviderOpenAI   = "openai"
	ProviderGemini   = "gemini"
	ProviderDeepgram = "deepgram"
)

const (
	greetingFormat     = "Hello! I'm %s, your personal assistant. How can I help you? You can ask me anything."
	systemPromptFormat = "Your name is %s. You are a helpful AI assistant in a voice conversation. Keep your responses conversational, helpful, and concise."
)

var defaultModels = map[string]map[string]string{
	"llm": {ProviderOpenAI: "gpt-4o-mini", ProviderGemini: "gemini-2.0-flash"},
	"stt": {ProviderDeepgram: "nova-3", ProviderOpenAI: "whisper-1"},
	"tts": {ProviderDeepgram: "aura-asteria-en", ProviderOpenAI: "tts-1"},
}

var LogLevels = []string{"debug", "info", "warn", "error"}

type Config struct {
	LogLevel string

	Addr          string
	Proxy         string
	ControlSocket string
	CORSOrigins   []string

	LLM         string
	LLMModel    string
	MaxTokens   int
	Temperature float64

	STT         string
	STTModel    string
	STTLanguage string

	TTS      string
	TTSModel string
	TTSVoice string

	IdleTimeout     time.Duration
	ReapInterval    time.Duration
	ReapBackoff     time.Duration
	ProviderTimeout time.Duration
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	MaxAudioBytes   int

	AssistantName  string
	Greeting       string
	SystemPrompt   string
	ReplayGreeting bool

	OpenAIKey   string
	DeepgramKey string
	GeminiKey   string
}

// Load parses args (without the program name). Flags left unset fall back
// to VOXRELAY_<FLAG_NAME> from the environment or the env file.
func Load(args []string) (Config, error) {
	var cfg Config

	fs := cli.NewFlagSet("voxrelay", cli.ContinueOnError)
	envFile := fs.StringP("env", "e", ".env", "Env file path")
	fs.StringVarP(&cfg.LogLevel, "log", "l", "info", "Log level (debug|info|warn|error)")

	fs.StringVarP(&cfg.Addr, "addr", "a", ":8000", "HTTP listen address")
	fs.StringVarP(&cfg.Proxy, "proxy", "p", "", "SOCKS5 proxy for provider calls (empty = direct)")
	fs.StringVar(&cfg.ControlSocket, "control", "/tmp/voxrelay.sock", "Control socket path (empty disables)")
	fs.StringSliceVar(&cfg.CORSOrigins, "cors-origins", []string{"*"}, "Allowed browser origins")

	fs.StringVar(&cfg.LLM, "llm", ProviderOpenAI, "Reply provider (openai|gemini)")
	fs.StringVar(&cfg.LLMModel, "llm-model", "", "Reply model (provider default when empty)")
	fs.IntVar(&cfg.MaxTokens, "max-tokens", reply.DefaultMaxTokens, "Reply length cap")
	fs.Float64Var(&cfg.Temperature, "temperature", reply.DefaultTemperature, "Sampling temperature")

	fs.StringVar(&cfg.STT, "stt", ProviderDeepgram, "Transcription provider (deepgram|openai)")
	fs.StringVar(&cfg.STTModel, "stt-model", "", "Transcription model (provider default when empty)")
	fs.StringVar(&cfg.STTLanguage, "stt-language", "en", "Transcription language")

	fs.StringVar(&cfg.TTS, "tts", ProviderDeepgram, "Synthesis provider (deepgram|openai)")
	fs.StringVar(&cfg.TTSModel, "tts-model", "", "Synthesis model (provider default when empty)")
	fs.StringVar(&cfg.TTSVoice, "tts-voice", "alloy", "Synthesis voice (openai only)")

	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", session.DefaultIdleTimeout, "Evict sessions idle longer than this")
	fs.DurationVar(&cfg.ReapInterval, "reap-interval", session.DefaultReapInterval, "Reaper period")
	fs.DurationVar(&cfg.ReapBackoff, "reap-backoff", session.DefaultReapBackoff, "Reaper pause after a failed cycle")
	fs.DurationVar(&cfg.ProviderTimeout, "provider-timeout", 30*time.Second, "Timeout for each provider call")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", 10*time.Second, "WebSocket write timeout")
	fs.DurationVar(&cfg.PingInterval, "ping-interval", 30*time.Second, "WebSocket ping interval (0 disables)")
	fs.IntVar(&cfg.MaxAudioBytes, "max-audio-bytes", 10<<20, "Largest accepted audio unit")

	fs.StringVar(&cfg.AssistantName, "assistant-name", "Lisa", "Assistant name used in the default greeting and prompt")
	fs.StringVar(&cfg.Greeting, "greeting", "", "Greeting text (derived from the assistant name when empty)")
	fs.StringVar(&cfg.SystemPrompt, "system-prompt", "", "System prompt (derived from the assistant name when empty)")
	fs.BoolVar(&cfg.ReplayGreeting, "replay-greeting", false, "Include the greeting in model input")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file %s: %w", *envFile, err)
	}

	if err := applyEnv(fs); err != nil {
		return Config{}, err
	}

	cfg.OpenAIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.DeepgramKey = strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY"))
	cfg.GeminiKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))

	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(fs *cli.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *cli.Flag) {
		if f.Changed || f.Name == "env" {
			return
		}
		key := EnvName(f.Name)
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		if err := fs.Set(f.Name, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	})
	return errors.Join(errs...)
}

// EnvName maps a flag name to its environment variable.
func EnvName(flag string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

func (c *Config) fillDefaults() {
	if c.LLMModel == "" {
		c.LLMModel = defaultModels["llm"][c.LLM]
	}
	if c.STTModel == "" {
		c.STTModel = defaultModels["stt"][c.STT]
	}
	if c.TTSModel == "" {
		c.TTSModel = defaultModels["tts"][c.TTS]
	}
	if c.Greeting == "" {
		c.Greeting = fmt.Sprintf(greetingFormat, c.AssistantName)
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = fmt.Sprintf(systemPromptFormat, c.AssistantName)
	}
}

func (c Config) Validate() error {
	var errs []error

	if !slices.Contains(LogLevels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("log: unknown level %q", c.LogLevel))
	}

	switch c.LLM {
	case ProviderOpenAI:
		errs = append(errs, requireKey("OPENAI_API_KEY", c.OpenAIKey, "llm"))
	case ProviderGemini:
		errs = append(errs, requireKey("GEMINI_API_KEY", c.GeminiKey, "llm"))
	default:
		errs = append(errs, fmt.Errorf("llm: unknown provider %q", c.LLM))
	}

	switch c.STT {
	case ProviderDeepgram:
		errs = append(errs, requireKey("DEEPGRAM_API_KEY", c.DeepgramKey, "stt"))
		errs = append(errs, oneOf("stt-model", c.STTModel, stt.DeepgramModels))
	case ProviderOpenAI:
		errs = append(errs, requireKey("OPENAI_API_KEY", c.OpenAIKey, "stt"))
		errs = append(errs, oneOf("stt-model", c.STTModel, stt.OpenAIModels))
	default:
		errs = append(errs, fmt.Errorf("stt: unknown provider %q", c.STT))
	}

	switch c.TTS {
	case ProviderDeepgram:
		errs = append(errs, requireKey("DEEPGRAM_API_KEY", c.DeepgramKey, "tts"))
	case ProviderOpenAI:
		errs = append(errs, requireKey("OPENAI_API_KEY", c.OpenAIKey, "tts"))
	default:
		errs = append(errs, fmt.Errorf("tts: unknown provider %q", c.TTS))
	}

	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max-tokens: must be positive"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature: %v out of range [0, 2]", c.Temperature))
	}
	if c.IdleTimeout <= 0 || c.ReapInterval <= 0 {
		errs = append(errs, fmt.Errorf("idle-timeout and reap-interval must be positive"))
	}
	if c.MaxAudioBytes <= 0 {
		errs = append(errs, fmt.Errorf("max-audio-bytes: must be positive"))
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, fmt.Errorf("provider-timeout: must be positive"))
	}

	return errors.Join(errs...)
}

func requireKey(env, value, option string) error {
	if value == "" {
		return fmt.Errorf("%s: %s not set", option, env)
	}
	return nil
}

func oneOf(option, value string, allowed []string) error {
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("%s: %q is not one of %s", option, value, strings.Join(allowed, ", "))
	}
	return nil
}
