package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/yoggys/eventapi"
	"github.com/yoggys/eventapi/internal/config"
)

const shutdownTimeout = 5 * time.Second

type tailOptions struct {
	configPath  string
	host        string
	subs        []string
	metricsAddr string
	logLevel    string
	logFormat   string
}

func tailCmd() *cobra.Command {
	return newTailCmd(&tailOptions{})
}

func newTailCmd(opts *tailOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Subscribe to events and print them as JSON lines",
		Long: `Connect to the EventAPI, subscribe to the configured events and print
every received event to stdout as one JSON object per line.

Subscriptions use the form type[:key=value,...], for example:

  eventapi tail --sub emote_set.update:object_id=62cdd34e72a832540de95857`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			return runTail(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	cmd.Flags().StringVar(&opts.host, "host", "", "EventAPI websocket URL")
	cmd.Flags().StringArrayVar(&opts.subs, "sub", nil, "Subscription as type[:key=value,...] (repeatable)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "", "Log format (text, json)")

	return cmd
}

// resolve loads the config file, if any, and applies flags on top.
func (o *tailOptions) resolve(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = o.host
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	for _, raw := range o.subs {
		sub, err := eventapi.ParseSubscription(raw)
		if err != nil {
			return nil, err
		}
		cfg.Subscriptions = append(cfg.Subscriptions, config.SubscriptionConfig{
			Type:      string(sub.Type),
			Condition: sub.Condition,
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Subscriptions) == 0 {
		return nil, errors.New("no subscriptions given, use --sub or a config file")
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig) (eventapi.Logger, error) {
	level, err := eventapi.ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Format == "json" {
		h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level.SlogLevel()})
		return eventapi.NewSlogLogger(slog.New(h)), nil
	}
	return eventapi.NewLogger(level), nil
}

// eventLine is the JSON shape printed for every event.
type eventLine struct {
	Time  time.Time      `json:"time"`
	Op    string         `json:"op"`
	Event eventapi.Event `json:"event"`
}

func runTail(ctx context.Context, cfg *config.Config, out io.Writer) error {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := append(cfg.ClientOptions(),
		eventapi.WithLogger(logger),
		eventapi.WithMetrics(reg),
		eventapi.WithOnDisconnect(func(err error) {
			logger.Warn("Connection lost: %v", err)
		}),
	)
	client := eventapi.New(opts...)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := client.ConnectStream(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newRouter(reg, client),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Serving metrics on %s", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	for _, sub := range cfg.ClientSubscriptions() {
		if err := client.Subscribe(ctx, sub); err != nil {
			return fmt.Errorf("subscribe %s: %w", sub, err)
		}
	}

	// Close on signal; the stream then drains and the loop below ends.
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")
		_ = client.Close()
	}()

	enc := json.NewEncoder(out)
	for e := range stream.All(context.Background()) {
		line := eventLine{Time: time.Now().UTC(), Op: e.Opcode().String(), Event: e}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	if client.State() == eventapi.StateDisconnected {
		return errors.New("connection lost and could not be restored")
	}
	return nil
}
