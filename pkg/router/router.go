// Package router hosts any number of bots behind one HTTP handler.
//
// Each bot is reachable at its own callback path. Two paths are reserved:
// "/" returns a JSON summary of the registered endpoints and scheduled jobs,
// and "/_health" always answers OK.
//
// # Lifecycle
//
// An Application starts Unstarted while bots are registered. It becomes
// Running when its scheduler starts, either on the first bot with jobs or on
// Start/ListenAndServe. Shutdown moves it to ShuttingDown; there is no way
// back.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keepmind9/groupmebot/internal/logger"
	"github.com/keepmind9/groupmebot/pkg/bot"
	"github.com/keepmind9/groupmebot/pkg/constants"
	"github.com/keepmind9/groupmebot/pkg/scheduler"
	"github.com/sirupsen/logrus"
)

// ErrRouteExists is returned when a path is reserved or already claimed.
var ErrRouteExists = errors.New("route exists")

// State is the lifecycle stage of an Application.
type State int32

const (
	Unstarted State = iota
	Running
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting-down"
	default:
		return "unstarted"
	}
}

var reservedPaths = map[string]string{
	constants.RootPath:   "summary",
	constants.HealthPath: "health",
}

// Application maps callback paths to bots.
type Application struct {
	mu     sync.RWMutex
	routes map[string]*bot.Bot

	sched *scheduler.Scheduler
	state atomic.Int32

	maxBodySize     int64
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
}

// Option configures an Application.
type Option func(*Application)

// WithScheduler uses s for bot jobs instead of a private scheduler.
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(a *Application) { a.sched = s }
}

// WithMaxBodySize caps the size of callback bodies. Non-positive values keep the default.
func WithMaxBodySize(n int64) Option {
	return func(a *Application) {
		if n > 0 {
			a.maxBodySize = n
		}
	}
}

// WithTimeouts sets the HTTP server read and write timeouts used by
// ListenAndServe. Zero values keep the defaults.
func WithTimeouts(read, write time.Duration) Option {
	return func(a *Application) {
		if read > 0 {
			a.readTimeout = read
		}
		if write > 0 {
			a.writeTimeout = write
		}
	}
}

// WithShutdownTimeout bounds the graceful shutdown done by ListenAndServe.
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *Application) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

// New creates an empty Application.
func New(opts ...Option) *Application {
	a := &Application{
		routes:          make(map[string]*bot.Bot),
		maxBodySize:     constants.MaxCallbackBodySize,
		readTimeout:     constants.DefaultReadTimeout,
		writeTimeout:    constants.DefaultWriteTimeout,
		shutdownTimeout: constants.DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.sched == nil {
		a.sched = scheduler.New()
	}
	return a
}

// Register serves b at path and schedules its jobs. The bot is frozen: no
// handlers or jobs can be added to it afterwards.
func (a *Application) Register(b *bot.Bot, path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("callback path %q must start with /", path)
	}
	if _, reserved := reservedPaths[path]; reserved {
		return fmt.Errorf("%w: cannot use one of the reserved routes %s, %s",
			ErrRouteExists, constants.RootPath, constants.HealthPath)
	}

	jobs := b.Jobs()
	for _, j := range jobs {
		if err := j.Schedule.Validate(); err != nil {
			return fmt.Errorf("bot %s job %s: %w", b.Name, j.Name, err)
		}
	}

	a.mu.Lock()
	if _, exists := a.routes[path]; exists {
		a.mu.Unlock()
		return fmt.Errorf("%w: callback path `%s` is already in use, each bot needs its own route", ErrRouteExists, path)
	}
	a.routes[path] = b
	a.mu.Unlock()

	b.Freeze()

	for _, j := range jobs {
		j := j
		name := b.Name + "/" + j.Name
		if _, err := a.sched.Add(name, j.Schedule, func(ctx context.Context) {
			if err := b.RunJob(ctx, j); err != nil {
				logger.WithFields(logrus.Fields{
					"bot":   b.Name,
					"job":   j.Name,
					"error": err,
				}).Error("job-failed")
			}
		}); err != nil {
			return err
		}
	}

	logger.WithFields(logrus.Fields{
		"bot":      b.Name,
		"path":     path,
		"handlers": len(b.Patterns()),
		"jobs":     len(jobs),
	}).Info("bot-registered")

	if len(jobs) > 0 {
		a.Start()
	}
	return nil
}

// Bot returns the bot served at path.
func (a *Application) Bot(path string) (*bot.Bot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.routes[path]
	return b, ok
}

// Paths lists the bot callback paths in sorted order.
func (a *Application) Paths() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	paths := make([]string, 0, len(a.routes))
	for p := range a.routes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Scheduler returns the scheduler running the bots' jobs.
func (a *Application) Scheduler() *scheduler.Scheduler {
	return a.sched
}

// State returns the current lifecycle state.
func (a *Application) State() State {
	return State(a.state.Load())
}

// Start starts the scheduler. It only has an effect on an Unstarted application.
func (a *Application) Start() {
	if a.state.CompareAndSwap(int32(Unstarted), int32(Running)) {
		a.sched.Start()
	}
}

// Shutdown stops the scheduler and waits for running jobs until ctx is done.
func (a *Application) Shutdown(ctx context.Context) error {
	a.state.Store(int32(ShuttingDown))
	a.sched.Stop()
	return a.sched.Wait(ctx)
}

// ListenAndServe serves the application on addr until ctx is cancelled,
// then shuts the server and scheduler down.
func (a *Application) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      a,
		ReadTimeout:  a.readTimeout,
		WriteTimeout: a.writeTimeout,
	}

	a.Start()

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("address", addr).Info("server-listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Shutdown(context.Background())
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("server-shutting-down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if serr := a.Shutdown(shutdownCtx); err == nil {
		err = serr
	}
	logger.Info("server-stopped")
	return err
}
