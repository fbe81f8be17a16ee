package factoringd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"factorvault/config"
	"factorvault/core/types"
	"factorvault/native/factoring"
	"factorvault/observability/logging"
	telemetry "factorvault/observability/otel"
	"factorvault/storage"
)

// pauseSwitches adapts the configuration kill switches to the engine's
// PauseView.
type pauseSwitches struct {
	factoring bool
}

func (p pauseSwitches) IsPaused(module string) bool {
	return module == "factoring" && p.factoring
}

// allowlistOracle permits exactly the configured addresses. An empty list is
// represented by a nil oracle upstream, which permits everyone.
type allowlistOracle struct {
	allowed map[types.Address]struct{}
}

func newAllowlistOracle(addrs []types.Address) *allowlistOracle {
	if len(addrs) == 0 {
		return nil
	}
	allowed := make(map[types.Address]struct{}, len(addrs))
	for _, addr := range addrs {
		allowed[addr] = struct{}{}
	}
	return &allowlistOracle{allowed: allowed}
}

func (o *allowlistOracle) IsAllowed(addr types.Address) (bool, error) {
	if o == nil {
		return true, nil
	}
	_, ok := o.allowed[addr]
	return ok, nil
}

// oracle keeps the engine's nil-means-open convention when the allowlist is
// empty.
func oracle(addrs []types.Address) factoring.PermissionOracle {
	if o := newAllowlistOracle(addrs); o != nil {
		return o
	}
	return nil
}

// Main runs the factoring vault daemon using the provided command line flags.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "factorvault.toml", "path to factoringd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("FACTORVAULT_ENV"))
	logger := logging.Setup("factoringd", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	otlpEndpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if fromEnv := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); fromEnv != "" {
		otlpEndpoint = fromEnv
	}
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "factoringd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	poolAddr, err := cfg.PoolAddr()
	if err != nil {
		return err
	}
	ownerAddr, err := cfg.OwnerAddr()
	if err != nil {
		return err
	}
	underwriterAddr, err := cfg.UnderwriterAddr()
	if err != nil {
		return err
	}
	treasuryAddr, err := cfg.TreasuryAddr()
	if err != nil {
		return err
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "vault"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	store := storage.NewVaultStore(db)
	ledger := storage.NewTokenLedger(db)

	engine := factoring.NewEngine(poolAddr, ownerAddr)
	engine.SetState(store)
	engine.SetAssetToken(ledger.Bind(poolAddr))
	engine.SetInvoiceAdapter(newHTTPInvoiceAdapter(cfg.AdapterURL))
	engine.SetEmitter(NewEmitter(logger))
	engine.SetPauses(pauseSwitches{factoring: cfg.Pauses.Factoring})
	engine.SetProtocolTreasury(treasuryAddr)

	depositList, err := config.Allowlist("DepositAllowlist", cfg.DepositAllowlist)
	if err != nil {
		return err
	}
	redeemList, err := config.Allowlist("RedeemAllowlist", cfg.RedeemAllowlist)
	if err != nil {
		return err
	}
	factorList, err := config.Allowlist("FactorAllowlist", cfg.FactorAllowlist)
	if err != nil {
		return err
	}
	engine.SetPermissionOracles(oracle(depositList), oracle(redeemList), oracle(factorList))

	if err := engine.SetParams(ownerAddr, cfg.Params); err != nil {
		return fmt.Errorf("apply params: %w", err)
	}
	if !underwriterAddr.IsZero() {
		if err := engine.SetUnderwriter(ownerAddr, underwriterAddr); err != nil {
			return fmt.Errorf("assign underwriter: %w", err)
		}
	}

	server := NewServer(engine, store, cfg.RateLimitPerSecond, logger)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(server, "factoringd"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runSweepLoop(stopCtx, server, time.Duration(cfg.SweepIntervalSeconds)*time.Second, logger)

	errs := make(chan error, 1)
	go func() {
		log.Printf("factoringd listening on %s", cfg.ListenAddress)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// runSweepLoop reconciles paid and overdue invoices on a fixed interval so
// settlements land even when the claim protocol never calls the webhook.
func runSweepLoop(ctx context.Context, server *Server, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := server.Sweep()
			if err != nil {
				logger.Error("sweep failed", slog.String("error", err.Error()))
				continue
			}
			if changed > 0 {
				logger.Info("sweep reconciled invoices", slog.Int("changed", changed))
			}
		}
	}
}
