package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/stocktracker/internal/config"
	"github.com/aristath/stocktracker/internal/modules/portfolio"
	"github.com/aristath/stocktracker/internal/reliability"
)

const maintenanceSchedule = "0 3 * * *"

// RegisterJobs creates the background jobs and registers them with the scheduler
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	instances := &JobInstances{}

	instances.Refresh = portfolio.NewRefreshJob(
		container.PortfolioRepo,
		container.FundamentalsFetcher,
		container.FundamentalsCache,
		container.EventBus,
		cfg.RefreshMode,
		log,
	)
	if err := container.Scheduler.AddJob(cfg.RefreshSchedule, instances.Refresh); err != nil {
		return nil, fmt.Errorf("failed to register refresh job: %w", err)
	}

	instances.Maintenance = reliability.NewMaintenanceJob(container.Databases(), cfg.DataDir, log)
	if err := container.Scheduler.AddJob(maintenanceSchedule, instances.Maintenance); err != nil {
		return nil, fmt.Errorf("failed to register maintenance job: %w", err)
	}

	if container.BackupService != nil {
		instances.Backup = reliability.NewBackupJob(container.BackupService, cfg.Backup.RetentionDays, log)
		if err := container.Scheduler.AddJob(cfg.Backup.Schedule, instances.Backup); err != nil {
			return nil, fmt.Errorf("failed to register backup job: %w", err)
		}
	}

	return instances, nil
}
