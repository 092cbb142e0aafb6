// Package server provides application lifecycle management including
// ordered startup, graceful shutdown and signal handling.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultStopTimeout bounds how long one service may take to stop.
const DefaultStopTimeout = 10 * time.Second

// Service represents a long-running component.
type Service interface {
	// Run blocks until ctx is cancelled or the service fails.
	Run(ctx context.Context) error
}

// Initializer is implemented by services that must finish setting up before
// later services start.
type Initializer interface {
	Init(ctx context.Context) error
}

// Shutdowner is implemented by services with cleanup to do after Run returns.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// FuncService adapts functions into a Service. Nil functions are skipped;
// a nil RunFn blocks until the context is cancelled.
type FuncService struct {
	InitFn     func(ctx context.Context) error
	RunFn      func(ctx context.Context) error
	ShutdownFn func(ctx context.Context) error
}

// Init calls InitFn.
func (f *FuncService) Init(ctx context.Context) error {
	if f.InitFn == nil {
		return nil
	}
	return f.InitFn(ctx)
}

// Run calls RunFn, or waits for ctx.
func (f *FuncService) Run(ctx context.Context) error {
	if f.RunFn == nil {
		<-ctx.Done()
		return nil
	}
	return f.RunFn(ctx)
}

// Shutdown calls ShutdownFn.
func (f *FuncService) Shutdown(ctx context.Context) error {
	if f.ShutdownFn == nil {
		return nil
	}
	return f.ShutdownFn(ctx)
}

// Lifecycle manages the startup and shutdown of multiple services.
// Services are initialized and started in order and stopped in reverse order.
type Lifecycle struct {
	logger      *zap.Logger
	services    []namedService
	mu          sync.Mutex
	stopTimeout time.Duration
	signals     []os.Signal
}

type namedService struct {
	name    string
	service Service
	cancel  context.CancelFunc
	done    chan error
}

// NewLifecycle creates a new Lifecycle manager that shuts down on SIGINT or
// SIGTERM.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		logger:      logger,
		stopTimeout: DefaultStopTimeout,
		signals:     []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// SetStopTimeout replaces DefaultStopTimeout.
func (l *Lifecycle) SetStopTimeout(d time.Duration) { l.stopTimeout = d }

// Add registers a named service for lifecycle management.
// Services are started in the order they are added.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run initializes and starts all services, then blocks until a termination
// signal, a service failure or ctx cancellation. Services are then stopped
// in reverse order.
//
// Postcondition: Every started service is stopped when Run returns. The
// error is the init failure or the first service failure, if any.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()
	l.mu.Lock()
	services := l.services
	l.mu.Unlock()

	errCh := make(chan error, len(services))
	started := 0
	var initErr error
	for i := range services {
		ns := &services[i]
		if init, ok := ns.service.(Initializer); ok {
			if err := init.Init(ctx); err != nil {
				l.logger.Error("service init failed",
					zap.String("service", ns.name),
					zap.Error(err),
				)
				initErr = fmt.Errorf("service %s: %w", ns.name, err)
				break
			}
		}
		l.startService(ns, errCh)
		started++
	}

	var runErr error
	if initErr == nil {
		l.logger.Info("all services started",
			zap.Int("count", len(services)),
			zap.Duration("startup", time.Since(start)),
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, l.signals...)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			l.logger.Info("received signal, shutting down",
				zap.String("signal", sig.String()),
			)
		case runErr = <-errCh:
			l.logger.Error("service error, shutting down",
				zap.Error(runErr),
			)
		case <-ctx.Done():
			l.logger.Info("context cancelled, shutting down")
		}
	}

	l.shutdown(services[:started])

	l.logger.Info("shutdown complete",
		zap.Duration("total_uptime", time.Since(start)),
	)
	if initErr != nil {
		return initErr
	}
	return runErr
}

func (l *Lifecycle) startService(ns *namedService, errCh chan<- error) {
	svcCtx, cancel := context.WithCancel(context.Background())
	ns.cancel = cancel
	ns.done = make(chan error, 1)
	l.logger.Info("starting service",
		zap.String("service", ns.name),
	)
	go func() {
		svcStart := time.Now()
		err := ns.service.Run(svcCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error("service failed",
				zap.String("service", ns.name),
				zap.Error(err),
				zap.Duration("uptime", time.Since(svcStart)),
			)
			errCh <- fmt.Errorf("service %s: %w", ns.name, err)
		}
		ns.done <- err
	}()
}

func (l *Lifecycle) shutdown(services []namedService) {
	shutdownStart := time.Now()
	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		svcStart := time.Now()
		l.logger.Info("stopping service",
			zap.String("service", ns.name),
		)
		ns.cancel()
		select {
		case <-ns.done:
		case <-time.After(l.stopTimeout):
			l.logger.Warn("service did not stop in time",
				zap.String("service", ns.name),
				zap.Duration("timeout", l.stopTimeout),
			)
		}
		if sd, ok := ns.service.(Shutdowner); ok {
			ctx, cancel := context.WithTimeout(context.Background(), l.stopTimeout)
			if err := sd.Shutdown(ctx); err != nil {
				l.logger.Error("service shutdown failed",
					zap.String("service", ns.name),
					zap.Error(err),
				)
			}
			cancel()
		}
		l.logger.Info("service stopped",
			zap.String("service", ns.name),
			zap.Duration("elapsed", time.Since(svcStart)),
		)
	}
	l.logger.Info("all services stopped",
		zap.Duration("shutdown_elapsed", time.Since(shutdownStart)),
	)
}
