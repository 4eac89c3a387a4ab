package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dori/terrain/internal/cache"
	"github.com/dori/terrain/internal/config"
	"github.com/dori/terrain/internal/db"
	"github.com/dori/terrain/internal/invoice"
	"github.com/dori/terrain/internal/notify"
	"github.com/dori/terrain/internal/offline"
	"github.com/dori/terrain/internal/onsite"
	"github.com/dori/terrain/internal/procurement"
	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// ErrAlreadyOpen is returned when another terrain process holds the
// intervention open on this device
var ErrAlreadyOpen = errors.New("intervention is already open in another terrain instance")

// App holds the application state and dependencies
type App struct {
	Config     *config.Config
	DB         *db.DB
	Cache      *cache.Store
	Reconciler *offline.Reconciler
	Notifier   *notify.Notifier
	Logger     *zap.Logger

	mu    sync.Mutex
	locks map[string]*flock.Flock
}

// New creates a new application instance
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := cache.Open(cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	notifier := notify.NewNotifier(logger.Named("notify"))
	notifier.SetEnabled(cfg.Notifications)

	database, err := db.Open(cfg.Database.Driver, cfg.Database.DSN,
		db.WithLogger(logger.Named("db")),
		db.WithPollInterval(cfg.PollInterval()))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &App{
		Config:     cfg,
		DB:         database,
		Cache:      store,
		Reconciler: offline.NewReconciler(store, offline.WithLogger(logger.Named("offline"))),
		Notifier:   notifier,
		Logger:     logger,
		locks:      make(map[string]*flock.Flock),
	}, nil
}

// Open acquires the device lock for an intervention and opens a
// controller on it. The returned release closes the controller and
// drops the lock.
func (a *App) Open(ctx context.Context, id string, opts ...onsite.Option) (*onsite.Controller, func(), error) {
	if err := a.lockIntervention(id); err != nil {
		return nil, nil, err
	}

	base := []onsite.Option{
		onsite.WithLogger(a.Logger.Named("onsite").With(zap.String("intervention", id))),
		onsite.WithAlerter(a.Notifier),
		onsite.WithInterval(a.Config.TickInterval()),
		onsite.WithDefaultProfile(a.Config.Profile()),
	}
	if a.Config.Technician != "" {
		base = append(base, onsite.WithTechnician(a.Config.Technician))
	}

	c := onsite.New(a.DB, a.DB, a.Reconciler, append(base, opts...)...)
	if err := c.Open(ctx, id); err != nil {
		a.unlockIntervention(id)
		return nil, nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			c.Close()
			a.unlockIntervention(id)
		})
	}
	return c, release, nil
}

// Procurement returns the order tracking service
func (a *App) Procurement() *procurement.Service {
	return procurement.New(a.DB)
}

// Invoices returns the billing service
func (a *App) Invoices() *invoice.Service {
	return invoice.New(a.DB)
}

// lockIntervention takes an exclusive file lock so two processes on one
// device never run the same timer
func (a *App) lockIntervention(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.locks[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyOpen, id)
	}

	dir := filepath.Join(a.Config.DataDir, "locks")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	lock := flock.New(filepath.Join(dir, cache.EncodeKey(id)+".lock"))

	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrAlreadyOpen, id)
	}

	a.locks[id] = lock
	return nil
}

func (a *App) unlockIntervention(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if lock, ok := a.locks[id]; ok {
		lock.Unlock()
		delete(a.locks, id)
	}
}

// Close cleans up application resources
func (a *App) Close() error {
	var errs []error

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	a.mu.Lock()
	for id, lock := range a.locks {
		lock.Unlock()
		delete(a.locks, id)
	}
	a.mu.Unlock()

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
