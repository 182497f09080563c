package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dragonsvault/server/internal/domain/rules"
	"github.com/dragonsvault/server/internal/engine"
	"github.com/dragonsvault/server/internal/events"
	"github.com/dragonsvault/server/internal/infra/ai"
	"github.com/dragonsvault/server/internal/infra/storage"
	"github.com/dragonsvault/server/internal/network"
	"github.com/dragonsvault/server/internal/platform/config"
	"github.com/dragonsvault/server/internal/platform/logger"
	"github.com/dragonsvault/server/internal/platform/metrics"
	"github.com/dragonsvault/server/internal/session"
	"github.com/dragonsvault/server/internal/tutor"
)

// eventWriteTimeout bounds one write-through of an event to SQLite.
const eventWriteTimeout = 2 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	var memory bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			if memory {
				cfg.Server.Memory = true
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	cmd.Flags().BoolVar(&memory, "memory", false, "keep everything in memory (nothing is persisted)")
	return cmd
}

// stores groups the persistence backends chosen by configuration.
type stores struct {
	balance   storage.BalanceStore
	snapshots storage.SnapshotRepository
	recapper  *storage.Recapper
	persister events.Persister
	close     func() error
}

func openStores(cfg *config.Config, m *metrics.Collector) (*stores, error) {
	if cfg.Server.Memory {
		return &stores{
			balance:   storage.NewMemoryBalanceStore(),
			snapshots: storage.NewMemorySnapshotRepository(),
			close:     func() error { return nil },
		}, nil
	}

	db, err := storage.InitSQLite(cfg.Server.DBPath, storage.PoolOptions{
		MaxOpenConns: cfg.Tuning.DBMaxOpenConns,
		MaxIdleConns: cfg.Tuning.DBMaxIdleConns,
	})
	if err != nil {
		return nil, err
	}
	repo := storage.NewSQLiteEventRepository(db)
	return &stores{
		balance:   storage.NewSQLiteBalanceStore(db),
		snapshots: storage.NewSQLiteSnapshotRepository(db),
		recapper:  storage.NewRecapper(repo),
		persister: &storage.EventPersister{Repo: repo, Timeout: eventWriteTimeout, Metrics: m},
		close:     db.Close,
	}, nil
}

func engineConfig(p config.PetConfig) engine.Config {
	return engine.Config{
		InitialHunger:    p.InitialHunger,
		InitialHappiness: p.InitialHappiness,
		DecayInterval:    p.DecayInterval,
		Decay:            rules.DecayParams{Amount: p.DecayAmount},
		GrowthInterval:   p.GrowthInterval,
		Growth:           rules.GrowthParams{Points: p.GrowthPoints},
	}
}

// providerFromConfig builds the text generation provider named by cfg.
func providerFromConfig(ctx context.Context, cfg config.TutorConfig) (ai.LLMProvider, error) {
	gate := ai.NewBudgetGate(cfg.DailyRequestLimit)
	switch cfg.Provider {
	case "gemini":
		p, err := ai.NewGeminiProvider(ctx, ai.GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		}, gate)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "openai":
		return ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		}, gate), nil
	default:
		return ai.NewStaticProvider(cfg.FallbackReply), nil
	}
}

func newTutor(ctx context.Context, cfg config.TutorConfig, el *events.EventLog, log *logger.Logger, m *metrics.Collector) *tutor.Tutor {
	provider, err := providerFromConfig(ctx, cfg)
	if err != nil {
		log.Warn("tutor provider unavailable, using fallback replies", zap.String("provider", cfg.Provider), zap.Error(err))
		provider = ai.NewStaticProvider(cfg.FallbackReply)
	}
	return tutor.New(provider, tutor.Options{
		FallbackReply: cfg.FallbackReply,
		HistoryTurns:  cfg.HistoryTurns,
	}, el, log, m)
}

// serve runs until ctx is done, then drains HTTP and stops every session.
func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	m := metrics.Get()

	st, err := openStores(cfg, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}()

	el := events.NewEventLog(st.persister)
	el.SetRetention(cfg.Tuning.EventRetention)
	el.OnPersistError(func(ev events.Event, err error) {
		log.Warn("event write-through failed", zap.String("event", string(ev.Type)), zap.String("user", ev.UserID), zap.Error(err))
	})

	tu := newTutor(ctx, cfg.Tutor, el, log, m)

	sessions := session.NewManager(session.Options{
		Engine:           engineConfig(cfg.Pet),
		SnapshotInterval: cfg.Server.SnapshotInterval,
	}, session.Deps{
		Store:     st.balance,
		Snapshots: st.snapshots,
		Recapper:  st.recapper,
		EventLog:  el,
		Logger:    log,
		Metrics:   m,
		Forget:    tu,
	})

	hub := network.NewHub(log, m)
	api := network.NewServer(network.Options{
		AllowedOrigins:       cfg.Server.AllowedOrigins,
		ClientSendBuffer:     cfg.Tuning.ClientSendBuffer,
		MaxMessagesPerSecond: cfg.Tuning.MaxMessagesPerSecond,
		MaxClientsPerUser:    cfg.Tuning.MaxClientsPerUser,
	}, sessions, &network.Dispatcher{Tutor: tu}, hub, network.NewHistoryHandler(st.recapper, el, log), log, m)

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.RunEventPoller(gctx, el, cfg.Tuning.EventPollInterval)
		return nil
	})
	g.Go(func() error {
		return sessions.Run(gctx)
	})
	g.Go(func() error {
		log.Info("vault server listening",
			zap.String("addr", cfg.Server.ListenAddr),
			zap.Bool("memory", cfg.Server.Memory),
			zap.String("tutor", cfg.Tutor.Provider),
			zap.String("profile", cfg.Tuning.Profile),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		sessions.Close(shutdownCtx)
		return err
	})

	return g.Wait()
}
