// Package app wires configuration into a running message board.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"messageboard/api"
	"messageboard/board"
	"messageboard/config"
	"messageboard/kafka"
	"messageboard/logger"
	"messageboard/models"
	oidcutil "messageboard/oidc"
	"messageboard/store"
)

const broadcastBuffer = 256

// App owns every long-lived component of one board instance.
type App struct {
	cfg       config.Config
	repo      store.Repository
	svc       *board.Service
	server    *api.Server
	consumer  *kafka.Consumer
	broadcast chan models.Delivery
	closers   []func() error
}

// New opens the store, connects optional Kafka and OIDC, and builds the HTTP
// handler. Nothing is served until Run.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	repo, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &App{cfg: cfg, repo: repo, broadcast: make(chan models.Delivery, broadcastBuffer)}

	opts := []board.Option{board.WithFallback(board.ChannelPublisher{C: a.broadcast})}
	if cfg.MessageSchemaFile != "" {
		opts = append(opts, board.WithValidator(board.NewMessageValidatorFromFile(cfg.MessageSchemaFile)))
	}
	deps := api.Deps{
		Repository: repo,
		Broadcast:  a.broadcast,
		PageLimit:  cfg.PageLimit,
		Ready:      map[string]api.ReadinessCheck{},
	}

	if cfg.KafkaEnabled() {
		// Records this instance produced come back as local deliveries.
		instance := uuid.NewString()
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, instance)
		dlq := kafka.NewDLQ(cfg.KafkaBrokers, cfg.KafkaDLQTopic)
		a.consumer = kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, instance, dlq)
		a.closers = append(a.closers, a.consumer.Close, producer.Close, dlq.Close)
		opts = append(opts, board.WithPublisher(producer))
		deps.DLQ = dlq
		deps.Ready["kafka"] = func(ctx context.Context) error {
			_, err := a.consumer.Lag(ctx)
			return err
		}
		logger.Info("kafka fan-out enabled", logger.FieldKV("brokers", cfg.KafkaBrokers),
			logger.FieldKV("topic", cfg.KafkaTopic), logger.FieldKV("instance", instance))
	}

	if cfg.AuthEnabled() {
		v, err := oidcutil.Init(ctx, oidcutil.Options{
			Issuer:       cfg.OIDCIssuer,
			ClientID:     cfg.OIDCClientID,
			Audience:     cfg.OIDCAudience,
			MaxAttempts:  cfg.OIDCMaxAttempts,
			CACertFile:   cfg.OIDCCACertFile,
			DialOverride: cfg.OIDCDialOverride,
		})
		if err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
		deps.Verifier = v
	}

	a.svc = board.NewService(repo, cfg.MaxMessageLength, opts...)
	deps.Service = a.svc
	a.server = api.NewServer(deps)
	return a, nil
}

func (a *App) Handler() http.Handler { return a.server }

func (a *App) Service() *board.Service { return a.svc }

func (a *App) Repository() store.Repository { return a.repo }

// Run serves HTTP on cfg.HTTPAddr and consumes Kafka until ctx is done,
// then shuts the listener down gracefully.
func (a *App) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.server,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	if a.consumer != nil {
		g.Go(func() error { return a.consumer.Run(gctx, a.broadcast) })
	}
	g.Go(func() error {
		logger.Info("http server listening", logger.FieldKV("addr", a.cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases every component. It is safe to call after a failed New.
func (a *App) Close(ctx context.Context) error {
	if a.server != nil {
		a.server.Close()
	}
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	errs = append(errs, a.repo.Close(ctx))
	return errors.Join(errs...)
}
