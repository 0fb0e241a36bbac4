package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/azdo-client/internal/config"
	"github.com/Sternrassler/azdo-client/pkg/auth"
	"github.com/Sternrassler/azdo-client/pkg/azdo"
	"github.com/Sternrassler/azdo-client/pkg/client"
	"github.com/Sternrassler/azdo-client/pkg/logging"
	"github.com/Sternrassler/azdo-client/pkg/metrics"
	"github.com/Sternrassler/azdo-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// session is everything a command needs to talk to Azure DevOps. All callers in
// one process share its dispatcher.
type session struct {
	cfg        config.Config
	logger     zerolog.Logger
	registry   *prometheus.Registry
	dispatcher *client.Dispatcher
	service    *azdo.Service
	redis      *redis.Client
}

func newSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logCfg := cfg.Logging()
	if verbose {
		logCfg.Level = logging.LevelDebug
	}
	logger := logging.Setup(logCfg)

	scheme, source, err := cfg.TokenSource()
	if err != nil {
		return nil, err
	}
	cred, err := auth.New(ctx, scheme, source)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	sess := &session{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	sess.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []client.Option{client.WithMetrics(metrics.New(sess.registry))}
	if limiter := sess.sharedWindow(ctx); limiter != nil {
		opts = append(opts, client.WithLimiter(limiter))
	}

	sess.dispatcher, err = client.New(cfg.Client("azdo-bridge/"+versionInfo.Version), cred, opts...)
	if err != nil {
		sess.close()
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}

	sess.service = azdo.New(sess.dispatcher, azdo.Options{
		Project:        cfg.Project,
		Team:           cfg.Team,
		MaxIDsPerBatch: cfg.MaxIDsPerBatch,
	})

	logger.Debug().
		Str("organization", cfg.Organization()).
		Int("max_requests", cfg.MaxRequestsPerWindow).
		Dur("window", cfg.RateWindow).
		Bool("shared_window", sess.redis != nil).
		Msg("Session ready")

	return sess, nil
}

// sharedWindow connects to Redis when configured. An unreachable Redis falls
// back to the in-process window.
func (sess *session) sharedWindow(ctx context.Context) ratelimit.Limiter {
	if sess.cfg.RedisAddr == "" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     sess.cfg.RedisAddr,
		Password: sess.cfg.RedisPassword,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		sess.logger.Warn().Err(err).Str("addr", sess.cfg.RedisAddr).Msg("Redis unreachable, using in-process rate window")
		_ = rdb.Close()
		return nil
	}

	sess.redis = rdb
	sess.logger.Info().Str("addr", sess.cfg.RedisAddr).Msg("Connected to Redis, sharing rate window")

	return ratelimit.NewSharedWindow(rdb, sess.cfg.Organization(), sess.cfg.MaxRequestsPerWindow, sess.cfg.RateWindow,
		logging.NewLogger("ratelimit"))
}

func (sess *session) close() {
	if sess.dispatcher != nil {
		_ = sess.dispatcher.Close()
	}
	if sess.redis != nil {
		_ = sess.redis.Close()
	}
}
