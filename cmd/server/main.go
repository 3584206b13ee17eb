package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/archive"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/config"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/gateway"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/httpapi"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/hub"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/logging"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/queue"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/registry"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/scheduler"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/sessionstore"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/storage"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/vote"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(cfg, log)
	if err != nil {
		return err
	}
	sessions, err := openSessions(ctx, cfg, log)
	if err != nil {
		return err
	}
	reg := registry.New(sessions, registry.Config{
		Instance: cfg.Instance,
		TTL:      cfg.SessionTTL,
	}, log)

	var game gateway.GameClientGateway = gateway.AlwaysOnline{}
	if cfg.GameClientURL != "" {
		game = gateway.NewGameClient(cfg.GameClientURL, cfg.GameClientTimeout)
	} else {
		log.Warn("GAME_CLIENT_URL not set, every player counts as connected")
	}

	var voice gateway.VoicePresenceGateway = gateway.AlwaysOnline{}
	if cfg.DiscordToken != "" {
		v, err := gateway.NewVoice(cfg.DiscordToken, cfg.DiscordGuildID, cfg.DiscordVoiceChannelID, log)
		if err != nil {
			return err
		}
		if err := v.Open(); err != nil {
			return fmt.Errorf("open discord session: %w", err)
		}
		defer v.Close()
		voice = v
	} else {
		log.Warn("DISCORD_TOKEN not set, voice presence is not checked")
	}
	voters := gateway.NewVoterDirectory(cfg.PrivilegedList(), cfg.PrivilegedWeight)

	var arch vote.Archive = archive.Noop{}
	if cfg.ArchiveBucket != "" {
		a, err := archive.NewS3(ctx, archive.Options{
			Bucket:    cfg.ArchiveBucket,
			Endpoint:  cfg.ArchiveEndpoint,
			Region:    cfg.ArchiveRegion,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
		})
		if err != nil {
			return err
		}
		arch = a
	}

	h := hub.NewHub(ctx, hub.Config{
		Store:   store,
		Notify:  reg,
		Starter: game,
	}, log)
	defer h.Shutdown()

	q := queue.New(queue.Config{
		RequireAdmissions: cfg.RequireAdmissions,
		AdmissionTimeout:  cfg.AdmissionTimeout,
		BindTimeout:       cfg.BindTimeout,
		BindPoll:          cfg.BindPoll,
	}, queue.Deps{
		Store:    store,
		Presence: reg,
		Factory:  h,
		Seats:    h,
		Game:     game,
		Voice:    voice,
	}, log)

	votes := vote.New(vote.Config{
		Threshold:     cfg.VoteThreshold,
		LookupTimeout: cfg.LookupTimeout,
	}, vote.Deps{
		Store:   store,
		Lookup:  game,
		Voters:  voters,
		Archive: arch,
		Notify:  reg,
	}, log)

	if err := restore(ctx, log, h, q, votes); err != nil {
		return err
	}

	sched, err := scheduler.New(ctx, log)
	if err != nil {
		return err
	}
	if err := sched.Every("matching-pass", cfg.MatchInterval, func(ctx context.Context) {
		if n := q.RunMatchingPass(ctx); n > 0 {
			log.Info("matching pass created matches", zap.Int("matches", n))
		}
	}); err != nil {
		return err
	}
	if err := sched.Every("session-sweep", cfg.SweepInterval, func(ctx context.Context) {
		if n := reg.Sweep(ctx); n > 0 {
			log.Info("swept stale channels", zap.Int("closed", n))
		}
	}); err != nil {
		return err
	}
	sched.Start()

	api := httpapi.NewServer(httpapi.Deps{
		Queue:    q,
		Drafts:   h,
		Votes:    votes,
		Sessions: reg,
		Admins:   voters,
	}, log)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sched.Shutdown(); err != nil {
			log.Warn("scheduler shutdown", zap.Error(err))
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStorage(cfg *config.Config, log *zap.Logger) (storage.Persistence, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory storage")
		return storage.NewMemory(), nil
	}
	s, err := storage.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}

func openSessions(ctx context.Context, cfg *config.Config, log *zap.Logger) (sessionstore.Store, error) {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR not set, sessions are local to this instance")
		return sessionstore.NewMemory(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return sessionstore.NewRedis(client), nil
}

// restore reloads drafts, the queue and vote tallies left by a previous run.
func restore(ctx context.Context, log *zap.Logger, h *hub.Hub, q *queue.Coordinator, votes *vote.Linker) error {
	drafts, err := h.LoadFromPersistence(ctx)
	if err != nil {
		return fmt.Errorf("restore drafts: %w", err)
	}
	queued, err := q.LoadFromPersistence(ctx)
	if err != nil {
		return fmt.Errorf("restore queue: %w", err)
	}
	tallies, err := votes.LoadFromPersistence(ctx)
	if err != nil {
		return fmt.Errorf("restore votes: %w", err)
	}
	log.Info("state restored",
		zap.Int("drafts", drafts),
		zap.Int("queued", queued),
		zap.Int("tallies", tallies))
	return nil
}
