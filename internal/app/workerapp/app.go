package workerapp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/d-savelev/tasklane/internal/transport"

	"golang.org/x/sync/errgroup"
)

type app struct {
	di  *dependencyInjector
	srv *http.Server
}

func New(ctx context.Context) *app {
	di := newDI()
	di.Logger()
	mux := http.NewServeMux()
	return &app{
		di: di,
		srv: &http.Server{
			Addr: di.Config().Addr,
			Handler: transport.WithRecover(
				transport.LogMiddleware(
					di.Router(ctx).MountRoutes(mux),
				),
			),
		},
	}
}

// Run starts the worker endpoint, the delivery pump, the pubsub consumer
// pool and the cron heartbeat, then blocks until ctx is cancelled. The NATS
// connection closes only after the consumer has drained.
func (a *app) Run(ctx context.Context) error {
	defer a.di.NATSConn(ctx).Close()

	eg, egCtx := errgroup.WithContext(ctx)

	consumer := a.di.Consumer(ctx)
	if err := consumer.Run(egCtx); err != nil {
		return err
	}
	defer consumer.Stop()

	if err := a.di.Heartbeat(ctx).Start(); err != nil {
		return err
	}
	defer a.di.Heartbeat(ctx).Stop()

	eg.Go(func() error {
		slog.Info("starting worker server", slog.String("addr", a.srv.Addr))
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		a.di.Queue(egCtx).Run(egCtx)
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()

		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			a.di.Config().ShutdownTimeout,
		)
		defer cancel()

		return a.srv.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		slog.Error("worker stopped with error", slog.String("error", err.Error()))
		return err
	}

	slog.Info("worker gracefully stopped")
	return nil
}
