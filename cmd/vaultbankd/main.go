package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vaultbank/adapters"
	"vaultbank/config"
	"vaultbank/core/events"
	"vaultbank/journal"
	"vaultbank/native/bank"
	"vaultbank/observability"
	"vaultbank/observability/logging"
	"vaultbank/rpc"
	"vaultbank/state"
	"vaultbank/storage"
)

const custodyTokenEnv = "VAULTBANK_CUSTODY_TOKEN"

// logEmitter mirrors every bank event into the structured log stream.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	args := []any{slog.String("event_type", evt.EventType())}
	for key, value := range evt.Attributes() {
		args = append(args, logging.MaskField(key, value))
	}
	l.logger.Info("bank event", args...)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VAULTBANK_ENV"))
	logger := logging.Setup("vaultbankd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", slog.Any("error", err))
		os.Exit(1)
	}

	canonical, err := cfg.Canonical()
	if err != nil {
		logger.Error("invalid canonical asset", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	eventJournal, err := journal.Open(cfg.JournalPath)
	if err != nil {
		logger.Error("failed to open event journal", slog.Any("error", err))
		os.Exit(1)
	}
	defer eventJournal.Close()

	emitter := events.MultiEmitter{
		logEmitter{logger: logger},
		journal.NewRecorder(eventJournal, logger),
		observability.NewEventObserver(),
	}

	oracle := bank.NewOracleAdapter(canonical)
	oracle.SetMaxAge(cfg.QuoteMaxAge())
	if oracleURL := strings.TrimSpace(cfg.OracleURL); oracleURL != "" {
		for _, tracked := range cfg.PricedAssets {
			asset, err := bank.ParseAssetID(tracked)
			if err != nil {
				logger.Error("invalid priced asset", slog.String("asset", tracked), slog.Any("error", err))
				os.Exit(1)
			}
			if err := oracle.SetFeed(asset, adapters.NewHTTPOracleFeed(oracleURL, "", asset, nil)); err != nil {
				logger.Error("failed to install price feed", slog.String("asset", tracked), slog.Any("error", err))
				os.Exit(1)
			}
		}
	}

	ledger := bank.NewLedger(state.NewManager(db), oracle, canonical, emitter)
	capLimit, err := cfg.BankCap()
	if err != nil {
		logger.Error("invalid bank cap", slog.Any("error", err))
		os.Exit(1)
	}
	if capLimit.Sign() > 0 {
		if err := ledger.SetCap(capLimit); err != nil {
			logger.Error("failed to apply bank cap", slog.Any("error", err))
			os.Exit(1)
		}
	}
	admission := bank.NewAdmissionController(ledger)

	custodyToken := strings.TrimSpace(os.Getenv(custodyTokenEnv))
	custody := adapters.NewHTTPCustodyClient(cfg.CustodyURL, custodyToken, nil)
	venue := adapters.NewHTTPSwapVenue(cfg.SwapVenueURL, "", nil)
	normalizer := bank.NewNormalizer(venue, admission, canonical)

	roles := bank.NewRoleSet()
	for _, raw := range cfg.AdminOwners {
		owner, err := bank.ParseOwner(raw)
		if err != nil {
			logger.Error("invalid admin owner", slog.String("owner", raw), slog.Any("error", err))
			os.Exit(1)
		}
		roles.Grant(bank.RoleAdmin, owner)
		roles.Grant(bank.RolePauser, owner)
	}

	minAmount, maxAmount, err := cfg.WithdrawBounds()
	if err != nil {
		logger.Error("invalid withdrawal bounds", slog.Any("error", err))
		os.Exit(1)
	}
	engine, err := bank.NewEngine(bank.EngineConfig{
		Canonical:   canonical,
		WithdrawMin: minAmount,
		WithdrawMax: maxAmount,
	}, ledger, oracle, admission, normalizer, custody, custody.Native(), roles, nil, emitter)
	if err != nil {
		logger.Error("failed to construct engine", slog.Any("error", err))
		os.Exit(1)
	}

	rpcServer := rpc.NewServer(engine, eventJournal, cfg.ResolveAdminToken(), logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           rpcServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("rpc server listening", slog.String("address", cfg.ListenAddress))
		serveErr <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", slog.Any("error", err))
		}
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("rpc server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
