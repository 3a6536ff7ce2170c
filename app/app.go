package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openshelf/library-service/config"
	"github.com/openshelf/library-service/internal/handler"
	"github.com/openshelf/library-service/internal/repository"
	"github.com/openshelf/library-service/internal/server"
	"github.com/openshelf/library-service/internal/service"
	"github.com/openshelf/library-service/migrations"
	"github.com/openshelf/library-service/pkg/kafka"
	"github.com/openshelf/library-service/pkg/logger"
	"github.com/openshelf/library-service/pkg/postgres"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "library")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return fmt.Errorf("db init %v", err)
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		return fmt.Errorf("repo init %v", err)
	}

	var events service.Notifier
	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		// circulation keeps working without the event stream
		log.Warn("kafka producer init", zap.Error(err))
	} else {
		events = kafka.NewNotifier(producer, cfg.Kafka.Topic, log)
	}

	svc := service.NewService(repo, events, service.Policy{
		LoanPeriodDays: cfg.Circulation.LoanPeriodDays,
		HoldPeriodDays: cfg.Circulation.HoldPeriodDays,
		FinePerDay:     cfg.Circulation.FinePerDay,
	}, log)
	h := handler.New(svc, log)

	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		runSweeper(ctx, svc, cfg.Circulation.SweepInterval, log)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Debug("Graceful shutdown")
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		return srv.Stop(closeCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error("run group", zap.Error(err))
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("producer.Close", zap.Error(err))
		}
	}
	db.Close()
	log.Info("Graceful shutdown finished")
	return nil
}

// runSweeper expires stale holds on a schedule; every pass is
// idempotent so a missed or doubled tick is harmless.
func runSweeper(ctx context.Context, svc *service.Service, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := svc.SweepReservations(ctx); err != nil {
				log.Error("sweep reservations", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
