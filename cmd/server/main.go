package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/moiseenkov/cinema/internal/config"
	"github.com/moiseenkov/cinema/internal/database"
	"github.com/moiseenkov/cinema/internal/lock"
	"github.com/moiseenkov/cinema/internal/pkg/logger"
	"github.com/moiseenkov/cinema/internal/pkg/metrics"
	"github.com/moiseenkov/cinema/internal/queue"
	"github.com/moiseenkov/cinema/internal/repository"
	"github.com/moiseenkov/cinema/internal/router"
	"github.com/moiseenkov/cinema/internal/service"
	"github.com/moiseenkov/cinema/internal/worker"
)

// stores is the storage backend selected by STORAGE_DRIVER.
type stores struct {
	halls    service.HallStore
	movies   service.MovieStore
	showings service.ShowingStore
	tickets  service.TicketStore
	users    service.UserStore
	tokens   service.TokenStore
}

func openStores(cfg config.Config) (stores, *sql.DB, error) {
	if cfg.StorageDriver == "memory" {
		m := repository.NewMemoryStore()
		return stores{m.Halls(), m.Movies(), m.Showings(), m.Tickets(), m.Users(), m.Tokens()}, nil, nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return stores{}, nil, err
	}
	if cfg.DBMigrate {
		if err := database.Migrate(db); err != nil {
			_ = db.Close()
			return stores{}, nil, err
		}
	}
	return stores{
		halls:    repository.NewHallRepo(db),
		movies:   repository.NewMovieRepo(db),
		showings: repository.NewShowingRepo(db),
		tickets:  repository.NewTicketRepo(db),
		users:    repository.NewUserRepo(db),
		tokens:   repository.NewTokenRepo(db),
	}, db, nil
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.Env)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, db, err := openStores(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	logger.Info("storage ready", zap.String("driver", cfg.StorageDriver))

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	users := service.NewUserService(st.users, st.tokens, cfg)
	inventory := service.NewInventoryService(st.halls, st.movies)
	showings, err := service.NewShowingService(st.showings, st.halls, st.movies, cfg.Booking)
	if err != nil {
		return err
	}
	showings.Metrics = m
	tickets := service.NewTicketService(st.tickets, st.showings, st.halls, st.users, time.Now)
	tickets.Metrics = m

	var locks *lock.LockManager
	if rdb != nil {
		locks = lock.NewLockManager(rdb)
		showings.Locker = locks
	}

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		created, err := users.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			return err
		}
		if created {
			logger.Info("administrator created", zap.String("email", cfg.AdminEmail))
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	// Payments: the dispatcher and the worker side must agree on the driver.
	var payments *service.PaymentService
	process := func(ctx context.Context, job queue.PaymentRequested) error {
		return payments.ProcessPayment(ctx, job)
	}
	var dispatcher queue.Dispatcher
	switch cfg.QueueDriver {
	case "local":
		local := queue.NewLocalQueue(process, cfg.PaymentWorkers, 256)
		local.Start(gctx)
		defer func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Booking.PaymentDelay+10*time.Second)
			defer cancel()
			if err := local.Shutdown(drainCtx); err != nil {
				logger.Warn("local payment queue not drained", zap.Error(err))
			}
		}()
		dispatcher = local
	default:
		dispatcher = queue.NewPublisher(cfg.AMQPURL, cfg.PaymentQueue)
		consumer := queue.NewConsumer(cfg.AMQPURL, cfg.PaymentQueue, cfg.PaymentWorkers, process)
		g.Go(func() error { return consumer.Run(gctx) })
	}
	payments = service.NewPaymentService(tickets, st.tickets, dispatcher,
		cfg.Booking.PaymentDelay, cfg.Booking.SweepLeadTime, time.Now)
	payments.Metrics = m
	logger.Info("payment queue ready", zap.String("driver", cfg.QueueDriver))

	var sweepLock worker.TryLocker
	if locks != nil {
		sweepLock = locks
	}
	sweeper := worker.NewTicketSweeper(payments, sweepLock, cfg.Booking.SweepInterval)
	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})

	e := router.New(router.Deps{
		Config:    cfg,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Redis:     rdb,
		Metrics:   m,
		Users:     users,
		Inventory: inventory,
		Showings:  showings,
		Tickets:   tickets,
		Payments:  payments,
	})

	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
