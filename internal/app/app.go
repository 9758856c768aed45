package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/semmidev/arkiva/internal/adapter/catalog"
	"github.com/semmidev/arkiva/internal/adapter/notify"
	"github.com/semmidev/arkiva/internal/adapter/remote"
	"github.com/semmidev/arkiva/internal/config"
	"github.com/semmidev/arkiva/internal/domain"
	"github.com/semmidev/arkiva/internal/infrastructure/locker"
	"github.com/semmidev/arkiva/internal/infrastructure/logger"
	"github.com/semmidev/arkiva/internal/infrastructure/scheduler"
	"github.com/semmidev/arkiva/internal/usecase"
)

// App wires configuration, the catalog, locks, remote targets and the
// notifier into runnable use cases.
type App struct {
	cfg         *config.Config
	logger      *logger.Logger
	catalog     *catalog.Catalog
	locker      *locker.Locker
	syncTargets []domain.SyncTarget
	notifier    domain.Notifier
	host        string
}

func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to determine hostname: %w", err)
	}

	cat, err := catalog.Open(filepath.Join(cfg.App.DataDir, "arkiva.sqlite"))
	if err != nil {
		return nil, err
	}

	locks, err := locker.New(cfg.App.LockDir)
	if err != nil {
		cat.Close()
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		logger:  log,
		catalog: cat,
		locker:  locks,
		host:    host,
	}

	if err := a.buildSyncTargets(); err != nil {
		cat.Close()
		return nil, err
	}
	if cfg.Telegram.Enabled {
		notifier, err := notify.NewTelegram(&cfg.Telegram)
		if err != nil {
			log.Warnf("Telegram notifier disabled: %v", err)
		} else {
			a.notifier = notifier
		}
	}

	return a, nil
}

func (a *App) buildSyncTargets() error {
	if a.cfg.Backup.LocalPath != "" {
		target, err := remote.NewLocal(a.cfg.Backup.LocalPath)
		if err != nil {
			return fmt.Errorf("failed to initialize local mirror: %w", err)
		}
		a.syncTargets = append(a.syncTargets, target)
	}
	if a.cfg.AWS.Enabled {
		target, err := remote.NewS3(&a.cfg.AWS)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 target: %w", err)
		}
		a.syncTargets = append(a.syncTargets, target)
	}
	if a.cfg.GDrive.Enabled {
		target, err := remote.NewGDrive(&a.cfg.GDrive)
		if err != nil {
			return fmt.Errorf("failed to initialize Google Drive target: %w", err)
		}
		a.syncTargets = append(a.syncTargets, target)
	}
	return nil
}

// lockAdapter narrows the concrete locker to the use-case interface.
type lockAdapter struct {
	locker *locker.Locker
}

func (l lockAdapter) Acquire(jobName string) (usecase.RunLock, error) {
	return l.locker.Acquire(jobName)
}

func (a *App) backupFor(job config.JobConfig) *usecase.Backup {
	settings := a.cfg.Resolve(job)
	return usecase.NewBackup(
		settings,
		a.host,
		a.catalog,
		lockAdapter{a.locker},
		a.syncTargets,
		a.notifier,
		a.logger.ForJob(job.Name),
	)
}

func (a *App) restoreFor(job config.JobConfig) *usecase.Restore {
	settings := a.cfg.Resolve(job)
	return usecase.NewRestore(
		settings,
		a.host,
		a.catalog,
		lockAdapter{a.locker},
		a.logger.ForJob(job.Name),
	)
}

func (a *App) job(name string) (config.JobConfig, error) {
	job, ok := a.cfg.Job(name)
	if !ok {
		return config.JobConfig{}, fmt.Errorf("unknown job %q", name)
	}
	return job, nil
}

// RunBackup executes one backup run for a single job.
func (a *App) RunBackup(ctx context.Context, jobName string, runType domain.RunType) (*domain.BackupResult, error) {
	job, err := a.job(jobName)
	if err != nil {
		return nil, err
	}
	res := a.backupFor(job).Execute(ctx, runType)
	if res.Err != nil {
		return res, res.Err
	}
	return res, nil
}

// RestoreSet restores a complete backup set.
func (a *App) RestoreSet(ctx context.Context, jobName, setID, dest string) (*domain.RestoreResult, error) {
	job, err := a.job(jobName)
	if err != nil {
		return nil, err
	}
	return a.restoreFor(job).Full(ctx, setID, dest)
}

// RestoreFiles restores an explicit path list from one backup set.
func (a *App) RestoreFiles(ctx context.Context, jobName, setID string, paths []string, dest string) (*domain.RestoreResult, error) {
	job, err := a.job(jobName)
	if err != nil {
		return nil, err
	}
	return a.restoreFor(job).Files(ctx, setID, paths, dest)
}

// ListSets returns the catalog's view of a job's backup sets, newest first.
func (a *App) ListSets(jobName string) ([]domain.BackupSet, error) {
	if _, err := a.job(jobName); err != nil {
		return nil, err
	}
	return a.catalog.ListSets(jobName)
}

// CleanLocks sweeps lock files whose owning processes are gone.
func (a *App) CleanLocks() ([]string, error) {
	return a.locker.CleanStale()
}

// Run schedules every enabled job and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	jobs := a.cfg.EnabledJobs()
	if len(jobs) == 0 {
		return fmt.Errorf("no enabled jobs to schedule")
	}

	sched := scheduler.New()
	for _, job := range jobs {
		job := job
		uc := a.backupFor(job)
		err := sched.Schedule(job.Schedule, func(runCtx context.Context) {
			uc.Execute(runCtx, domain.RunDifferential)
		})
		if err != nil {
			return fmt.Errorf("job %q: %w", job.Name, err)
		}
		a.logger.Infof("Scheduled job %q: %s", job.Name, job.Schedule)
	}

	sched.Start()
	a.logger.Infof("Scheduler running with %d job(s)", len(jobs))

	<-ctx.Done()
	a.logger.Infof("Shutting down, waiting for in-flight runs")
	sched.Stop()
	return nil
}

// Close releases the catalog and flushes logs.
func (a *App) Close() {
	a.catalog.Close()
	a.logger.Close()
}
