package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/customapi"
	"github.com/lychee-technology/customapi/internal"
)

type initDBOptions struct {
	database customapi.DatabaseConfig
	dryRun   bool
}

// txBeginner is satisfied by *pgxpool.Pool and pgxmock pools.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func parseInitDBFlags(args []string) (initDBOptions, error) {
	flags := flag.NewFlagSet("init-db", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: customapi-tools init-db [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := initDBOptions{database: customapi.DefaultConfig().Database}
	db := &opts.database
	flags.StringVar(&db.Host, "db-host", getenvDefault("DB_HOST", db.Host), "database host")
	flags.IntVar(&db.Port, "db-port", getenvDefaultInt("DB_PORT", db.Port), "database port")
	flags.StringVar(&db.Database, "db-name", getenvDefault("DB_NAME", db.Database), "database name")
	flags.StringVar(&db.Username, "db-user", getenvDefault("DB_USER", db.Username), "database user")
	flags.StringVar(&db.Password, "db-password", getenvDefault("DB_PASSWORD", ""), "database password")
	flags.StringVar(&db.SSLMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", db.SSLMode), "database sslmode")
	flags.BoolVar(&db.UseIAMAuth, "db-use-iam", getenvDefault("DB_USE_IAM", "") == "true", "authenticate with an AWS IAM token")
	flags.StringVar(&db.Region, "db-region", getenvDefault("DB_REGION", ""), "AWS region for IAM authentication")
	flags.StringVar(&db.DefinitionsTable, "definitions-table", getenvDefault("DB_DEFINITIONS_TABLE", db.DefinitionsTable), "definitions table name")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "print the DDL without connecting")

	if err := flags.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

func runInitDB(args []string) error {
	opts, err := parseInitDBFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if opts.dryRun {
		for _, stmt := range internal.DefinitionsTableDDL(opts.database.DefinitionsTable) {
			fmt.Printf("%s;\n", stmt)
		}
		return nil
	}
	return initDatabase(context.Background(), opts)
}

func initDatabase(ctx context.Context, opts initDBOptions) error {
	if err := internal.ValidatePostgresConfig(opts.database); err != nil {
		return err
	}
	password, err := internal.ResolveDatabasePassword(ctx, opts.database)
	if err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, internal.PostgresConnString(opts.database, password))
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	if err := withTx(ctx, pool, func(tx pgx.Tx) error {
		return ensureTables(ctx, tx, opts.database.DefinitionsTable)
	}); err != nil {
		return err
	}

	fmt.Println("Database initialized successfully.")
	return nil
}

func ensureTables(ctx context.Context, tx pgx.Tx, table string) error {
	for _, stmt := range internal.DefinitionsTableDDL(table) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure definitions table %s: %w", table, err)
		}
	}
	fmt.Printf("Created definitions table: %s\n", table)
	return nil
}

func withTx(ctx context.Context, db txBeginner, fn func(pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
