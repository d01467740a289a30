package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"

	"github.com/core-coin/pactum/internal/config"
	"github.com/core-coin/pactum/internal/models"
	"github.com/core-coin/pactum/internal/pactum"
)

func main() {
	app := &cli.App{
		Name:  "pactum",
		Usage: "Pactum verifies USDT subscription payments and runs the subscription lifecycle",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "redis-url", Aliases: []string{"r"}, Usage: "Redis URL for cross-instance user locks"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP API and the periodic subscription sweep",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "api-port", Usage: "HTTP API port"},
					&cli.StringFlag{Name: "admin-token", Usage: "Token required by the admin endpoints"},
					&cli.DurationFlag{Name: "sweep-interval", Usage: "Interval between subscription sweeps"},
				},
				Action: serve,
			},
			{
				Name:   "sweep",
				Usage:  "Run one subscription sweep and exit",
				Action: sweep,
			},
			{
				Name:      "verify",
				Usage:     "Check a transaction against the configured deposit address without crediting it",
				ArgsUsage: "<network> <transaction id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "amount", Value: "0", Usage: "Minimum amount in USDT"},
				},
				Action: verify,
			},
		},
		DefaultCommand: "serve",
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("redis-url") {
		cfg.RedisURL = c.String("redis-url")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("admin-token") {
		cfg.AdminToken = c.String("admin-token")
	}
	if c.IsSet("sweep-interval") {
		cfg.SweepInterval = c.Duration("sweep-interval")
	}

	return cfg, cfg.Validate()
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	app := fx.New(
		coreModule(cfg),
		serverModule,
	)
	app.Run()
	return app.Err()
}

func sweep(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	var manager *pactum.Pactum
	app := fx.New(
		coreModule(cfg),
		fx.Populate(&manager),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(c.Context, fx.DefaultTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	res, err := manager.ProcessMonthlyChecks(c.Context)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	return printJSON(res)
}

func verify(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.ShowSubcommandHelp(c)
	}
	network, err := models.ParseNetwork(c.Args().Get(0))
	if err != nil {
		return err
	}
	txID := c.Args().Get(1)
	amount, err := decimal.NewFromString(c.String("amount"))
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	nc := cfg.Network(network)
	if nc == nil {
		return fmt.Errorf("network %s is not configured", network)
	}

	var verifier models.PaymentVerifier
	app := fx.New(
		verifierModule(cfg),
		fx.Populate(&verifier),
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()
	res := verifier.VerifyPayment(ctx, models.VerificationRequest{
		Network:   network,
		Address:   nc.DepositAddress,
		MinAmount: decimal.Max(amount, cfg.SubscriptionPrice),
		TxID:      &txID,
	})
	if err := printJSON(res); err != nil {
		return err
	}
	if !res.Success {
		return cli.Exit("", 1)
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
