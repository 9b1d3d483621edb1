package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init-db":
		if err := runInitDB(os.Args[2:]); err != nil {
			sugar.Fatalf("init-db: %v", err)
		}
	case "validate-schemas":
		if err := runValidateSchemas(os.Args[2:], os.Stdout); err != nil {
			sugar.Fatalf("validate-schemas: %v", err)
		}
	case "sync-schemas":
		if err := runSyncSchemas(os.Args[2:]); err != nil {
			sugar.Fatalf("sync-schemas: %v", err)
		}
	default:
		sugar.Errorf("unknown command %q", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	logger := zap.S()
	logger.Info("Usage: customapi-tools <command> [options]")
	logger.Info("")
	logger.Info("Commands:")
	logger.Info("  init-db            Create the custom API definitions table and its slug index")
	logger.Info("  validate-schemas   Parse a content-type directory and build a selection tree for every type")
	logger.Info("  sync-schemas       Download content-type documents from S3 into a local directory")
}
