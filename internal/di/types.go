/**
 * Package di provides dependency injection type definitions.
 *
 * The Container holds every long-lived handle of the application: both SQLite
 * databases, the repositories built on them, the provider client, services and
 * the scheduler. It is created once by Wire() and passed to the HTTP server.
 */
package di

import (
	"github.com/aristath/stocktracker/internal/clientdata"
	"github.com/aristath/stocktracker/internal/clients/alphavantage"
	"github.com/aristath/stocktracker/internal/database"
	"github.com/aristath/stocktracker/internal/events"
	"github.com/aristath/stocktracker/internal/modules/fundamentals"
	"github.com/aristath/stocktracker/internal/modules/portfolio"
	"github.com/aristath/stocktracker/internal/reliability"
	"github.com/aristath/stocktracker/internal/scheduler"
)

// Container holds all dependencies for the application.
type Container struct {
	// Databases
	PortfolioDB  *database.DB // users and their portfolios
	ClientDataDB *database.DB // fundamentals cache

	// Repositories
	PortfolioRepo     *portfolio.Repository
	FundamentalsCache *clientdata.FundamentalsCache

	// Clients
	AlphaVantageClient *alphavantage.Client

	// Services
	EventBus            *events.Bus
	FundamentalsFetcher *fundamentals.Fetcher
	PortfolioService    *portfolio.Service
	BackupService       *reliability.BackupService // nil when backups are disabled

	// Scheduling
	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered job instances for manual triggering
type JobInstances struct {
	Refresh     *portfolio.RefreshJob
	Maintenance *reliability.MaintenanceJob
	Backup      *reliability.BackupJob // nil when backups are disabled
}

// Databases returns every open database
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.PortfolioDB, c.ClientDataDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}
