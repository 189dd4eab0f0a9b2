package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"voxrelay/internal/config"
	"voxrelay/internal/conversation"
	"voxrelay/internal/ipc"
	"voxrelay/internal/proxy"
	"voxrelay/internal/relay"
	"voxrelay/internal/reply"
	"voxrelay/internal/server"
	"voxrelay/internal/session"
	"voxrelay/internal/stt"
	"voxrelay/internal/tts"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, cli.ErrHelp) {
		return
	}
	if err != nil {
		log.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[cfg.LogLevel],
		TimeFormat: time.DateTime,
	})))

	log.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient, err := proxy.NewHTTPClient(cfg.Proxy, 0)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.Proxy, "err", err)
		os.Exit(1)
	}
	if cfg.Proxy != "" {
		log.Debug("Loaded proxy", "proxy", cfg.Proxy)
	}

	var oa openai.Client
	if cfg.OpenAIKey != "" {
		oa = openai.NewClient(
			option.WithAPIKey(cfg.OpenAIKey),
			option.WithHTTPClient(httpClient),
		)
	}

	model, err := newModel(ctx, cfg, oa, httpClient)
	if err != nil {
		log.Error("Failed to init reply model", "err", err)
		os.Exit(1)
	}

	registry := session.NewRegistry()
	conversations := conversation.NewStore()

	responder := &reply.Responder{
		Model:          model,
		Conversations:  conversations,
		SystemPrompt:   cfg.SystemPrompt,
		Greeting:       cfg.Greeting,
		ReplayGreeting: cfg.ReplayGreeting,
		MaxTokens:      cfg.MaxTokens,
		Temperature:    cfg.Temperature,
	}
	transcriber := &stt.Gateway{
		Provider: newTranscriber(cfg, oa, httpClient),
		MaxBytes: cfg.MaxAudioBytes,
	}
	synthesizer := &tts.Gateway{
		Provider: newSynthesizer(cfg, oa, httpClient),
	}

	log.Info("Providers ready",
		"llm", model.Name(),
		"stt", transcriber.Provider.Name(),
		"tts", synthesizer.Provider.Name())

	reaper := &session.Reaper{
		Registry:    registry,
		Forget:      conversations.Delete,
		Interval:    cfg.ReapInterval,
		IdleTimeout: cfg.IdleTimeout,
		Backoff:     cfg.ReapBackoff,
	}
	go reaper.Run(ctx)

	if cfg.ControlSocket != "" {
		ctl, err := ipc.StartServer(cfg.ControlSocket, ipc.NewControl(registry, reaper))
		if err != nil {
			log.Error("Failed ipc server", "err", err)
			os.Exit(1)
		}
		defer ctl.Close()
		log.Debug("Control socket ready", "path", ctl.Addr())
	}

	handler := &relay.Handler{
		Registry:      registry,
		Conversations: conversations,
		STT:           transcriber,
		TTS:           synthesizer,
		Responder:     responder,
		Config: relay.Config{
			Greeting:        cfg.Greeting,
			ProviderTimeout: cfg.ProviderTimeout,
			WriteTimeout:    cfg.WriteTimeout,
			PingInterval:    cfg.PingInterval,
			// Oversized audio within twice the cap is rejected by the STT
			// gateway with an error event; anything larger drops the connection.
			MaxMessageBytes: 2 * int64(cfg.MaxAudioBytes),
		},
		CheckOrigin: server.OriginChecker(cfg.CORSOrigins),
		BaseContext: func() context.Context { return ctx },
	}

	srv := server.New(server.Config{
		AllowedOrigins:  cfg.CORSOrigins,
		ProviderTimeout: cfg.ProviderTimeout,
	}, handler, synthesizer, log.Default())

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
			return
		}
		listenErr <- nil
	}()

	log.Info("Boot up - successful", "addr", cfg.Addr)

	select {
	case err := <-listenErr:
		if err != nil {
			log.Error("Failed to serve", "addr", cfg.Addr, "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Shutdown incomplete", "err", err)
	}
	log.Info("Stopped")
}

func newModel(ctx context.Context, cfg config.Config, oa openai.Client, httpClient *http.Client) (reply.Model, error) {
	if cfg.LLM == config.ProviderGemini {
		return reply.NewGeminiModel(ctx, cfg.GeminiKey, cfg.LLMModel, httpClient)
	}
	return &reply.OpenAIModel{Client: oa, Model: cfg.LLMModel}, nil
}

func newTranscriber(cfg config.Config, oa openai.Client, httpClient *http.Client) stt.Provider {
	if cfg.STT == config.ProviderOpenAI {
		return &stt.OpenAI{Client: oa, Model: cfg.STTModel, Language: cfg.STTLanguage}
	}
	return stt.NewDeepgram(cfg.DeepgramKey, cfg.STTModel, cfg.STTLanguage, httpClient)
}

func newSynthesizer(cfg config.Config, oa openai.Client, httpClient *http.Client) tts.Provider {
	if cfg.TTS == config.ProviderOpenAI {
		return &tts.OpenAI{Client: oa, Model: cfg.TTSModel, Voice: cfg.TTSVoice}
	}
	return tts.NewDeepgram(cfg.DeepgramKey, cfg.TTSModel, httpClient)
}
