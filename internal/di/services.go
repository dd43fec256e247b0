package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/stocktracker/internal/clientdata"
	"github.com/aristath/stocktracker/internal/clients/alphavantage"
	"github.com/aristath/stocktracker/internal/config"
	"github.com/aristath/stocktracker/internal/events"
	"github.com/aristath/stocktracker/internal/modules/fundamentals"
	"github.com/aristath/stocktracker/internal/modules/portfolio"
	"github.com/aristath/stocktracker/internal/reliability"
	"github.com/aristath/stocktracker/internal/scheduler"
)

// InitializeRepositories creates the repositories on top of the open databases
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.PortfolioRepo = portfolio.NewRepository(container.PortfolioDB.Conn(), log)
	container.FundamentalsCache = clientdata.NewFundamentalsCache(container.ClientDataDB.Conn())

	return nil
}

// InitializeServices creates clients and services
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.EventBus = events.NewBus(log)

	container.AlphaVantageClient = alphavantage.NewClient(cfg.AlphaVantageAPIKey, log)
	if cfg.AlphaVantageBaseURL != "" {
		container.AlphaVantageClient.SetBaseURL(cfg.AlphaVantageBaseURL)
	}
	if cfg.AlphaVantageAPIKey == "" {
		log.Warn().Msg("ALPHAVANTAGE_API_KEY is not set, only cached symbols can be added")
	}

	container.FundamentalsFetcher = fundamentals.NewFetcher(
		container.AlphaVantageClient,
		container.PortfolioRepo,
		container.FundamentalsCache,
		log,
	)

	container.PortfolioService = portfolio.NewService(
		container.PortfolioRepo,
		container.FundamentalsCache,
		container.FundamentalsFetcher,
		container.EventBus,
		log,
	)

	if cfg.Backup.Enabled() {
		s3Client, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to create backup client: %w", err)
		}
		container.BackupService = reliability.NewBackupService(
			s3Client,
			container.Databases(),
			filepath.Join(cfg.DataDir, "backup-staging"),
			container.EventBus,
			log,
		)
	}

	container.Scheduler = scheduler.New(log)

	return nil
}
