package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/stocktracker/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container
// Order of operations:
// 1. Initialize databases
// 2. Initialize repositories
// 3. Seed configured users
// 4. Initialize services
// 5. Register jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeRepositories(container, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := seedUsers(container, cfg.SeedUsers, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to seed users: %w", err)
	}

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	jobs, err := RegisterJobs(container, cfg, log)
	if err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, jobs, nil
}

// Close releases every database handle. It is safe to call on a partially wired container.
func (c *Container) Close() error {
	var firstErr error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s database: %w", db.Name(), err)
		}
	}
	return firstErr
}

// seedUsers creates each configured user with an empty portfolio. Existing users are untouched.
func seedUsers(container *Container, usernames []string, log zerolog.Logger) error {
	for _, username := range usernames {
		created, err := container.PortfolioRepo.CreateUser(context.Background(), username)
		if err != nil {
			return err
		}
		if created {
			log.Info().Str("username", username).Msg("Seeded user")
		}
	}
	return nil
}
