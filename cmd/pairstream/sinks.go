package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pairstream/internal/config"
	"pairstream/internal/sink"
)

type metricsEndpoint struct {
	addr      string
	registry  *prometheus.Registry
	collector *sink.Metrics
}

// buildSinks opens every configured sink. Sinks opened before a failure are
// closed.
func buildSinks(ctx context.Context, cfg config.Config, runID string, logger *zap.Logger) (*sink.Multi, *metricsEndpoint, error) {
	var opened []sink.Sink
	fail := func(err error) (*sink.Multi, *metricsEndpoint, error) {
		_ = sink.NewMulti(opened...).Close()
		return nil, nil, err
	}

	for _, name := range cfg.Sinks {
		switch name {
		case config.SinkConsole:
			opened = append(opened, sink.NewConsole(logger))
		case config.SinkJSONL:
			s, err := sink.NewJSONL(cfg.Out, runID)
			if err != nil {
				return fail(err)
			}
			opened = append(opened, s)
		case config.SinkKafka:
			s, err := sink.NewKafka(sink.KafkaConfig{
				Brokers: cfg.KafkaBrokers,
				Topic:   cfg.KafkaTopic,
				Logger:  logger,
			}, runID)
			if err != nil {
				return fail(err)
			}
			opened = append(opened, s)
		case config.SinkRedis:
			s, err := sink.NewRedis(ctx, sink.RedisConfig{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}, runID)
			if err != nil {
				return fail(err)
			}
			opened = append(opened, s)
		case config.SinkPostgres:
			s, err := sink.NewPostgres(ctx, cfg.PGDSN, runID)
			if err != nil {
				return fail(err)
			}
			opened = append(opened, s)
		default:
			return fail(fmt.Errorf("unknown sink: %s", name))
		}
	}

	var endpoint *metricsEndpoint
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		endpoint = &metricsEndpoint{
			addr:      cfg.MetricsAddr,
			registry:  reg,
			collector: sink.NewMetrics(reg),
		}
		opened = append(opened, endpoint.collector)
	}

	logger.Info("sinks ready", zap.Strings("sinks", cfg.Sinks), zap.Bool("metrics", endpoint != nil))
	return sink.NewMulti(opened...), endpoint, nil
}

// serve exposes /metrics until the returned stop is called.
func (m *metricsEndpoint) serve(logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              m.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("metrics listening", zap.String("addr", m.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	return func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Warn("metrics shutdown", zap.Error(err))
		}
	}
}
