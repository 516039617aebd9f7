package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zapdoslabs/relay/internal/channels"
	relayslack "github.com/zapdoslabs/relay/internal/channels/slack"
	"github.com/zapdoslabs/relay/internal/config"
	"github.com/zapdoslabs/relay/internal/history"
	"github.com/zapdoslabs/relay/internal/observability"
	"github.com/zapdoslabs/relay/internal/outbound"
)

const shutdownTimeout = 30 * time.Second

// runServe loads configuration, connects to Slack and answers events until
// a shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateSlack(); err != nil {
		return fmt.Errorf("invalid slack credentials: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	logger := setupLogging(cfg.Logging, os.Stderr)

	logger.Info("starting relay",
		"version", version,
		"commit", commit,
		"config", configPath,
		"model", cfg.LLM.Model,
		"search", cfg.Tools.Search.Enabled,
	)

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	tracer, shutdownTracing := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Observability.Tracing.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		Insecure:       cfg.Observability.Tracing.Insecure,
	})
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	rt, err := newRuntime(cfg, logger, metrics, tracer)
	if err != nil {
		return err
	}

	slackCfg := relayslack.Config{
		BotToken: cfg.Slack.BotToken,
		AppToken: cfg.Slack.AppToken,
		Debug:    debug,
		Logger:   logger,
	}
	api, socket := relayslack.NewClients(slackCfg)
	limiter := channels.NewRateLimiter(cfg.Slack.RateLimit, cfg.Slack.RateBurst)
	fetcher := history.NewFetcher(api, history.FetcherConfig{
		Limit:   cfg.Slack.HistoryLimit,
		Timeout: cfg.Slack.HistoryTimeout,
		Logger:  logger,
		Metrics: metrics,
	})
	handler := relayslack.NewTurnHandler(fetcher, rt.loop, relayslack.ThreadSurfaces(api, limiter), rt.turn)
	adapter := relayslack.NewAdapter(slackCfg, api, socket, handler)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var httpServer *http.Server
	errCh := make(chan error, 1)
	if addr := cfg.Observability.MetricsAddr; addr != "" {
		httpServer = &http.Server{
			Addr:              addr,
			Handler:           newHTTPMux(adapter),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		logger.Info("serving metrics", "addr", addr)
	}

	if err := adapter.Start(ctx); err != nil {
		return err
	}
	logger.Info("relay started", "tools", rt.registry.Len())

	select {
	case <-ctx.Done():
	case err := <-errCh:
		cancel()
		logger.Error("shutting down after server error", "error", err)
	}
	logger.Info("shutdown signal received, waiting for running turns")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var errs []error
	if err := adapter.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("relay stopped")
	return nil
}

// newHTTPMux serves /metrics and a /healthz reporting the Slack connection.
func newHTTPMux(adapter channels.Adapter) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := adapter.Status()
		w.Header().Set("Content-Type", "application/json")
		if !status.Connected {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
	return mux
}

// runPrompt answers text as if it were a direct message and prints what the
// bot would post.
func runPrompt(ctx context.Context, configPath, text string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return errors.New("llm.api_key is required")
	}
	logger := setupLogging(cfg.Logging, os.Stderr)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	rt, err := newRuntime(cfg, logger, metrics, nil)
	if err != nil {
		return err
	}

	surface := newConsoleSurface(out)
	handler := relayslack.NewTurnHandler(nil, rt.loop, func(channels.Event) outbound.Surface {
		return surface
	}, rt.turn)

	handler.HandleEvent(ctx, channels.Event{
		Kind:      channels.EventMessage,
		ChannelID: "console",
		UserID:    "local",
		Text:      text,
		TS:        "0",
		ThreadTS:  "0",
	})
	return nil
}

func runConfigValidate(out io.Writer, configPath string, requireSlack bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if requireSlack {
		if err := cfg.ValidateSlack(); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "%s is valid\n", configPath)
	return nil
}

func runConfigSchema(out io.Writer) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(schema))
	return err
}
