package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/netreachhq/reachmon/internal/config"
	"github.com/netreachhq/reachmon/internal/controller"
	"github.com/netreachhq/reachmon/internal/health"
	"github.com/netreachhq/reachmon/internal/logging"
	"github.com/netreachhq/reachmon/internal/metrics"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = run(ctx, os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "command %s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Reachmon CLI")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  reachmon run [--config /etc/reachmon/config.yaml] [--verify-key key.pub]")
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "Path to monitor configuration file")
	verifyKey := fs.String("verify-key", "", "Minisign public key; when set, the config file must carry a valid detached signature")

	if err := fs.Parse(args); err != nil {
		return err
	}

	var verifier *config.Verifier
	if *verifyKey != "" {
		v, err := config.NewVerifierFromFile(*verifyKey)
		if err != nil {
			return fmt.Errorf("load verify key: %w", err)
		}
		verifier = v
	}

	cfg, err := loadConfig(ctx, *configPath, verifier)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	monitorCfg, err := cfg.MonitorConfig()
	if err != nil {
		return fmt.Errorf("invalid monitor configuration: %w", err)
	}

	logger := logging.New()
	logger.Printf("monitor starting (interval=%s targets=%d listen=%s)", monitorCfg.Interval, len(monitorCfg.Targets), cfg.Listen.Addr)

	metricsStore := metrics.NewStore()

	ctrl := controller.New(controller.Dependencies{
		Logger:  logger,
		Metrics: metricsStore.ProbeRecorder(),
		Drops:   metricsStore.DropRecorder(),
	})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Initialize(runCtx, monitorCfg); err != nil {
		return fmt.Errorf("initialize monitor: %w", err)
	}
	defer func() {
		if err := ctrl.Dispose(); err != nil && !errors.Is(err, controller.ErrNotInitialized) {
			logger.Printf("dispose failed: %v", err)
		}
	}()
	logger.Printf("initial status: %s", ctrl.CurrentStatus())

	sub, err := ctrl.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Cancel()

	checker := health.NewChecker(metricsStore, health.StaleAfter(monitorCfg.Interval), func() string {
		return string(ctrl.State())
	})
	checkLimiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.Listen.CheckPerMinute)), cfg.Listen.CheckPerMinute)

	grp, groupCtx := errgroup.WithContext(runCtx)

	grp.Go(func() error {
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case event, ok := <-sub.Events():
				if !ok {
					return nil
				}
				if event.Fault() {
					logger.Printf("probe fault: %v", event.Err)
					continue
				}
				logger.Printf("status changed: %s", event.Status)
			}
		}
	})

	grp.Go(func() error {
		return runReloads(groupCtx, *configPath, verifier, ctrl, logger)
	})

	grp.Go(func() error {
		return serveMonitoring(groupCtx, cfg.Listen.Addr, metricsStore, checker, ctrl, checkLimiter, logger)
	})

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		return err
	}

	logger.Printf("monitor stopped")
	return nil
}

func loadConfig(ctx context.Context, path string, verifier *config.Verifier) (config.Config, error) {
	if verifier != nil {
		if err := verifier.VerifyFile(ctx, path, config.SignaturePath(path)); err != nil {
			return config.Config{}, fmt.Errorf("verify config: %w", err)
		}
	}
	return config.Load(ctx, path)
}

// runReloads re-reads the config on SIGHUP and applies interval and target
// changes without disturbing subscribers. A rejected config leaves the
// running one untouched.
func runReloads(ctx context.Context, path string, verifier *config.Verifier, ctrl *controller.Controller, logger *log.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
		}

		cfg, err := loadConfig(ctx, path, verifier)
		if err != nil {
			logger.Printf("reload failed: %v", err)
			continue
		}
		monitorCfg, err := cfg.MonitorConfig()
		if err != nil {
			logger.Printf("reload rejected: %v", err)
			continue
		}
		if err := ctrl.UpdateTargets(ctx, monitorCfg.Targets); err != nil {
			logger.Printf("reload targets rejected: %v", err)
			continue
		}
		if err := ctrl.UpdateInterval(ctx, monitorCfg.Interval); err != nil {
			logger.Printf("reload interval rejected: %v", err)
			continue
		}
		logger.Printf("config reloaded (interval=%s targets=%d)", monitorCfg.Interval, len(monitorCfg.Targets))
	}
}

func serveMonitoring(ctx context.Context, addr string, store *metrics.Store, checker *health.Checker, ctrl *controller.Controller, limiter *rate.Limiter, logger *log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.NewHTTPHandler(store))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ready, reasons := checker.Ready(time.Now().UTC())
		if !ready {
			http.Error(w, strings.Join(reasons, "; "), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/statusz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusPayload{
			State:     string(ctrl.State()),
			Status:    string(ctrl.CurrentStatus()),
			Connected: ctrl.IsConnected(),
		})
	})
	mux.HandleFunc("/check", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !limiter.Allow() {
			http.Error(w, "check rate exceeded", http.StatusTooManyRequests)
			return
		}
		connected, err := ctrl.HasInternetConnection(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, checkPayload{Connected: connected})
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("monitoring listening on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type statusPayload struct {
	State     string `json:"state"`
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
}

type checkPayload struct {
	Connected bool `json:"connected"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
