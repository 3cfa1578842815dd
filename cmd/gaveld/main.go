// gaveld is the auction coordinator daemon: it serves the HTTP/WebSocket
// gateway, runs the round and session state machines, and publishes the
// event stream through the transactional outbox.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/gavel/internal/accounts"
	"github.com/mcdev12/gavel/internal/auction/clock"
	"github.com/mcdev12/gavel/internal/auction/outbox"
	"github.com/mcdev12/gavel/internal/auction/sequencer"
	"github.com/mcdev12/gavel/internal/auction/settle"
	"github.com/mcdev12/gavel/internal/cache/redis"
	"github.com/mcdev12/gavel/internal/config"
	"github.com/mcdev12/gavel/internal/gateway"
	"github.com/mcdev12/gavel/internal/items"
	"github.com/mcdev12/gavel/internal/storage/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load(os.Getenv("GAVEL_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("gaveld exited with error")
	}
	log.Info().Msg("gaveld stopped")
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
}

func run(ctx context.Context, cfg config.Config) error {
	// Storage.
	pg, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer pg.Close()
	if err := pg.RunMigrations(ctx); err != nil {
		return err
	}

	// Snapshot cache is best effort; the daemon runs without it.
	var snapCache gateway.SnapshotCache
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable; running without snapshot cache")
	} else {
		defer redisClient.Close()
		snapCache = redis.NewRoundCache(redisClient)
	}

	// Event publishing.
	jsCfg := outbox.DefaultJetStreamConfig(cfg.NATS.URL)
	if cfg.NATS.StreamName != "" {
		jsCfg.StreamName = cfg.NATS.StreamName
	}
	if cfg.NATS.SubjectPrefix != "" {
		jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
	}
	publisher, err := outbox.NewJetStreamPublisher(jsCfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	clk := clockwork.NewRealClock()
	clocks := clock.New(clk)
	settings := config.NewStore(cfg.Auction)

	pool := pg.Pool()
	accountsApp := accounts.NewApp(postgres.NewBidderStore(pool), settings)
	itemsApp := items.NewApp(postgres.NewItemStore(pool))
	recorder := outbox.NewRecorder(postgres.NewOutboxStore(pool))
	settler := settle.NewHandler(postgres.NewLedger(pool), clk)

	seq := sequencer.New(
		settings,
		clocks,
		clk,
		accountsApp,
		postgres.NewRoundStore(pool),
		postgres.NewSessionStore(pool),
		recorder,
		settler,
	)
	if err := seq.Recover(ctx); err != nil {
		return err
	}

	hub := gateway.NewHub(gateway.DefaultHubConfig())
	consCfg := gateway.DefaultConsumerConfig(cfg.NATS.URL)
	consCfg.StreamName = jsCfg.StreamName
	consCfg.SubjectFilter = jsCfg.SubjectPrefix + ".>"
	consumer, err := gateway.NewEventConsumer(hub, consCfg)
	if err != nil {
		return err
	}
	defer consumer.Close()

	worker := outbox.NewWorker(postgres.NewOutboxStore(pool), publisher, outbox.DefaultConfig(), clk)
	server := gateway.NewServer(seq, accountsApp, itemsApp, settings, hub, snapCache, cfg.Gateway)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return consumer.Run(ctx) })
	g.Go(func() error { return worker.Run(ctx) })
	g.Go(func() error { return seq.RunJanitor(ctx) })
	g.Go(func() error { return server.Run(ctx) })

	return g.Wait()
}
