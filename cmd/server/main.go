package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"sabha/internal/adjudication"
	adjudicationhandler "sabha/internal/adjudication/handler"
	"sabha/internal/audit"
	audithandler "sabha/internal/audit/handler"
	"sabha/internal/directory"
	"sabha/internal/election"
	electionhandler "sabha/internal/election/handler"
	"sabha/internal/eligibility"
	eligibilityhandler "sabha/internal/eligibility/handler"
	"sabha/internal/jwtauth"
	"sabha/internal/nomination"
	nominationhandler "sabha/internal/nomination/handler"
	"sabha/internal/photo"
	"sabha/internal/platform/config"
	"sabha/internal/platform/httpserver"
	"sabha/internal/platform/logger"
	"sabha/internal/platform/metrics"
	platformredis "sabha/internal/platform/redis"
	"sabha/internal/portfolio"
	portfoliohandler "sabha/internal/portfolio/handler"
	"sabha/internal/results"
	resultshandler "sabha/internal/results/handler"
	httptransport "sabha/internal/transport/http"
	"sabha/internal/voting"
	votinghandler "sabha/internal/voting/handler"
	"sabha/pkg/platform/tx"
)

const shutdownTimeout = 10 * time.Second

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx := context.Background()

	db := openPostgres(cfg, log)
	rdb := openRedis(cfg, log)

	// Audit pipeline: postgres-backed trail, optional Kafka fan-out.
	var auditStore audit.Store = audit.NewInMemoryStore()
	if db != nil {
		auditStore = audit.NewPostgres(db)
	}
	publisherOpts := []audit.PublisherOption{audit.WithPublisherLogger(log)}
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := audit.NewKafkaSink(ctx, cfg.Kafka)
		if err != nil {
			log.Error("kafka sink unavailable, audit events stay local", "error", err)
		} else {
			defer sink.Close()
			publisherOpts = append(publisherOpts, audit.WithSink(sink))
		}
	}
	publisher := audit.NewPublisher(auditStore, publisherOpts...)
	defer publisher.Close()

	// Membership directory is an external system; the in-process reader is
	// the development seed until the roster integration lands.
	dir := directory.NewInMemoryDirectory()

	var portfolioStore portfolio.Store = portfolio.NewInMemoryStore()
	if db != nil {
		portfolioStore = portfolio.NewPostgres(db)
	}
	portfolios := portfolio.New(portfolioStore,
		portfolio.WithLogger(log),
		portfolio.WithAuditPublisher(publisher),
	)

	var eligibilityCache eligibility.Cache = eligibility.NewInMemoryCache()
	if rdb != nil {
		eligibilityCache = eligibility.NewRedisCache(rdb.Client, time.Hour)
	}
	rolls := eligibility.New(dir, portfolioStore, eligibility.NewInMemoryCriteriaStore(), eligibilityCache,
		eligibility.WithLogger(log),
		eligibility.WithMetrics(m),
	)

	var electionStore election.Store = election.NewInMemoryStore()
	if db != nil {
		electionStore = election.NewPostgres(db)
	}
	elections := election.New(electionStore, portfolios, rolls,
		election.WithLogger(log),
		election.WithAuditPublisher(publisher),
		election.WithMetrics(m),
	)

	var nominationStore nomination.Store = nomination.NewInMemoryStore()
	if db != nil {
		nominationStore = nomination.NewPostgres(db)
	}
	nominations := nomination.New(nominationStore, elections, rolls, portfolios,
		nomination.WithLogger(log),
		nomination.WithAuditPublisher(publisher),
		nomination.WithMetrics(m),
	)

	var otpStore voting.OTPStore = voting.NewInMemoryOTPStore()
	var sessionStore voting.SessionStore = voting.NewInMemorySessionStore()
	if rdb != nil {
		otpStore = voting.NewRedisOTPStore(rdb.Client)
		sessionStore = voting.NewRedisSessionStore(rdb.Client)
	}
	var voteStore voting.VoteStore = voting.NewInMemoryVoteStore()
	if db != nil {
		voteStore = voting.NewPostgresVoteStore(db)
	}

	photos := openPhotoStore(cfg, log)

	votingOpts := []voting.Option{
		voting.WithLogger(log),
		voting.WithAuditPublisher(publisher),
		voting.WithMetrics(m),
		voting.WithOTPPolicy(cfg.OTPDigits, cfg.OTPTTL, cfg.SessionTTL),
	}
	if db != nil {
		votingOpts = append(votingOpts, voting.WithTxRunner(func(ctx context.Context, fn func(context.Context) error) error {
			return tx.Execute(ctx, db, fn)
		}))
	}
	votes := voting.New(otpStore, sessionStore, voteStore, elections, rolls, nominations,
		voting.NewLogNotifier(log), photos, votingOpts...)

	queue := adjudication.New(voteStore, elections, dir, portfolios,
		adjudication.WithLogger(log),
		adjudication.WithAuditPublisher(publisher),
		adjudication.WithMetrics(m),
	)

	var resultStore results.Store = results.NewInMemoryStore()
	if db != nil {
		resultStore = results.NewPostgres(db)
	}
	tabulator := results.New(resultStore, voteStore, elections, nominations, rolls, portfolios,
		results.WithLogger(log),
		results.WithAuditPublisher(publisher),
		results.WithMetrics(m),
	)

	validator := jwtauth.NewAdapter(jwtauth.New(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience))

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:  log,
		Metrics: m,
		DB:      db,
		Redis:   rdb,
		Handlers: []httptransport.Registrar{
			electionhandler.New(elections, log, validator),
			nominationhandler.New(nominations, log, validator),
			votinghandler.New(votes, log, validator),
			adjudicationhandler.New(queue, photos, log, validator),
			resultshandler.New(tabulator, log, validator),
			eligibilityhandler.New(rolls, elections, portfolios, log, validator),
			audithandler.New(publisher, elections, portfolios, log, validator),
			portfoliohandler.New(portfolios, log, validator),
		},
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting sabha election service", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if db != nil {
		db.Close()
	}
	if rdb != nil {
		rdb.Close()
	}
}

func openPostgres(cfg config.Server, log *slog.Logger) *sql.DB {
	if cfg.PostgresURL == "" {
		log.Warn("postgres not configured, using in-memory stores")
		return nil
	}
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Error("open postgres", "error", err)
		os.Exit(1)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Error("ping postgres", "error", err)
		os.Exit(1)
	}
	return db
}

func openRedis(cfg config.Server, log *slog.Logger) *platformredis.Client {
	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if rdb == nil {
		log.Warn("redis not configured, one-time codes and sessions stay in memory")
	}
	return rdb
}

func openPhotoStore(cfg config.Server, log *slog.Logger) photo.Store {
	if cfg.PhotoDir == "" {
		log.Warn("photo directory not configured, live photos stay in memory")
		return photo.NewInMemoryStore()
	}
	store, err := photo.NewFilesystemStore(cfg.PhotoDir)
	if err != nil {
		log.Error("open photo store", "error", err)
		os.Exit(1)
	}
	return store
}
