package main

import (
	"context"
	"os"

	"github.com/ammiranda/ordered_tree/cache"
	"github.com/ammiranda/ordered_tree/config"
	"github.com/ammiranda/ordered_tree/engine"
	"github.com/ammiranda/ordered_tree/handlers"
	"github.com/ammiranda/ordered_tree/internal/lambda"
	"github.com/ammiranda/ordered_tree/internal/txretry"
	"github.com/ammiranda/ordered_tree/models"
	"github.com/ammiranda/ordered_tree/repository"

	awslambda "github.com/aws/aws-lambda-go/lambda"
)

func main() {
	ctx := context.Background()

	provider, err := config.NewProvider("")
	if err != nil {
		panic(err)
	}
	logger := config.NewLogger(ctx, provider)

	// Without DB_HOST or DB_PATH the function serves in-memory hierarchies.
	var definitions, components repository.Repository
	_, hostErr := provider.GetString(ctx, "DB_HOST")
	_, pathErr := provider.GetString(ctx, "DB_PATH")
	if hostErr == nil || pathErr == nil {
		dbCfg, err := config.GetDatabaseConfig(ctx, provider)
		if err != nil {
			logger.Error("failed to load database configuration", "error", err)
			os.Exit(1)
		}
		db, err := repository.Open(ctx, dbCfg)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		definitions = db.Repository(repository.Definitions)
		components = db.Repository(repository.Components)
	} else {
		definitions = repository.NewMockRepository(repository.Definitions)
		components = repository.NewMockRepository(repository.Components)
	}

	treeCache, err := cache.New(ctx, config.GetCacheConfig(ctx, provider), logger)
	if err != nil {
		logger.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	retrier := txretry.New(0, logger)

	handler := lambda.NewHandler(logger,
		handlers.NewTreeService(engine.New[models.Definition](definitions, engine.WithLogger(logger)), treeCache, retrier, logger),
		handlers.NewTreeService(engine.New[models.Component](components, engine.WithLogger(logger)), treeCache, retrier, logger),
	)

	awslambda.Start(handler.Handle)
}
