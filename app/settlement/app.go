// Package settlement wires the settlement service: the ledger admission
// controller, the payment distributor, the budget aggregator, the external
// rate and license gateways, the periodic blockade job and the ops HTTP API.
package settlement

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/adchain-network/settlements/pkg/budget"
	"github.com/adchain-network/settlements/pkg/db/ledger"
	"github.com/adchain-network/settlements/pkg/distributor"
	"github.com/adchain-network/settlements/pkg/exchange"
	ledgercore "github.com/adchain-network/settlements/pkg/ledger"
	"github.com/adchain-network/settlements/pkg/license"
	"github.com/adchain-network/settlements/pkg/logging"
	redisclient "github.com/adchain-network/settlements/pkg/redis"
	"github.com/adchain-network/settlements/pkg/utils"
)

// App holds every component of the settlement service.
type App struct {
	// DB backs all three stores: ledger entries, payments and campaigns.
	DB *ledgerdb.DB

	Ledger      *ledgercore.Ledger
	Distributor *distributor.Processor
	Payments    distributor.Store
	Budgets     *budget.Aggregator
	Exchange    exchange.Reader
	License     *license.Reader

	// Cron triggers the blockade job according to CronSpec.
	Cron     *cron.Cron
	CronSpec string

	// Pool bounds the per-account parallelism of the blockade job.
	Pool pond.Pool

	// blockadeMu serializes blockade cycles across the cron schedule and the
	// manual trigger; an overlapping cycle would void the other's fresh
	// reservations.
	blockadeMu sync.Mutex

	// Server is the HTTP server that serves the ops API.
	Server *http.Server

	// AdminToken and JWTSecret authenticate the ops API.
	AdminToken string
	JWTSecret  []byte

	Logger *zap.Logger
}

// Initialize builds the App from the environment.
func Initialize(ctx context.Context) (*App, error) {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	db, dbErr := ledgerdb.New(ctx, logger)
	if dbErr != nil {
		logger.Fatal("Unable to initialize settlement database", zap.Error(dbErr))
	}

	lic := license.NewReader(logger)

	var rates exchange.Reader = exchange.NewClient(logger)
	if utils.Env("REDIS_HOST", "") != "" {
		rdb, redisErr := redisclient.NewClient(ctx, logger)
		if redisErr != nil {
			logger.Fatal("Unable to initialize redis", zap.Error(redisErr))
		}
		rates = exchange.NewCachedReader(logger, rates, rdb)
	}

	app := &App{
		DB:          db,
		Ledger:      ledgercore.New(db, logger),
		Distributor: distributor.NewProcessor(db, lic, utils.EnvFloat("OPERATOR_FEE", 0.01), logger),
		Payments:    db,
		Budgets:     budget.NewAggregator(db, utils.EnvFloat("BONUS_BUDGET_FRACTION", 1), logger),
		Exchange:    rates,
		License:     lic,
		CronSpec:    utils.Env("BLOCKADE_CRON", "0 0 * * * *"),
		Pool:        pond.NewPool(utils.EnvInt("BLOCKADE_WORKERS", 8)),
		AdminToken:  utils.Env("ADMIN_TOKEN", ""),
		JWTSecret:   []byte(utils.Env("JWT_SECRET", "")),
		Logger:      logger,
	}

	if scheduleErr := app.SetupScheduler(ctx, cron.DefaultLogger, app.CronSpec); scheduleErr != nil {
		return nil, scheduleErr
	}
	app.SetupServer()

	return app, nil
}

// SetupScheduler sets up the cron scheduler for the blockade job.
func (a *App) SetupScheduler(ctx context.Context, logger cron.Logger, cronSpec string) error {
	// Seconds field, optional
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger)))

	_, err := a.Cron.AddFunc(cronSpec, func() {
		// keep each run bounded
		rctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		if err := a.RunBlockade(rctx); err != nil {
			logger.Info("[settlement] blockade error", "error", err)
		}
	})
	if err != nil {
		return err
	}

	return nil
}

// StartCron starts the cron scheduler.
func (a *App) StartCron() {
	a.Cron.Start()
	a.Logger.Info("[settlement] Cron started", zap.String("cronSpec", a.CronSpec))
}

// StopCron stops the cron scheduler.
func (a *App) StopCron() {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
}

// Ready indicates whether the application is ready to handle operations.
func (a *App) Ready() bool { return a.DB != nil }

// Alive indicates whether the application is alive.
func (a *App) Alive() bool { return true }

// Start runs the service until ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	a.StartCron()
	go func() { _ = a.Server.ListenAndServe() }()
	<-ctx.Done()
	_ = a.Server.Close()
	a.Logger.Info("[settlement] shutting down…")
	a.StopCron()
	a.Pool.StopAndWait()
	_ = a.DB.Close()
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
