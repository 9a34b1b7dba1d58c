// Package main is the CLI entry point for agentd.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/parentalcompanion/agentd/internal/commgate"
	"github.com/parentalcompanion/agentd/internal/config"
	"github.com/parentalcompanion/agentd/internal/daemon"
	"github.com/parentalcompanion/agentd/internal/domain"
	"github.com/parentalcompanion/agentd/internal/infra"
	"github.com/parentalcompanion/agentd/internal/metrics"
	"github.com/parentalcompanion/agentd/internal/policy"
	"github.com/parentalcompanion/agentd/internal/remote"
	"github.com/parentalcompanion/agentd/internal/sampler"
	"github.com/parentalcompanion/agentd/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentd",
	Short: "On-device policy enforcement agent",
	Long: `agentd enforces the device policy set by a remote administrator:
daily screen-time budgets, app blocking, allowed-contact screening,
geofence notifications and remote lock. It polls the remote policy
store and keeps enforcing the last known policy while offline.`,
	Version: Version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the enforcement agent",
	Long: `Runs the agent in the foreground: samples usage and position,
enforces the cached policy and serves the localhost screening bridge.
The device must be registered first (see 'agentd register').`,
	RunE: runRun,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register this device with the remote policy store",
	Long: `Seeds the encrypted credential store with the device id and sync
token. Run once before the first 'agentd run'. A missing --device-id
generates a fresh one.`,
	RunE: runRegister,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the agent is running",
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

var (
	configPath string
	deviceID   string
	syncToken  string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (YAML)")
	registerCmd.Flags().StringVar(&deviceID, "device-id", "", "Device id (generated if empty)")
	registerCmd.Flags().StringVar(&syncToken, "token", "", "Sync token issued by the policy store")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := createLogger(cfg.LogPath)
	defer func() { _ = logger.Sync() }()

	// Credentials seeded by `agentd register`.
	store, err := infra.OpenCredentialStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.GetCredential(domain.CredDeviceID)
	if err != nil {
		return fmt.Errorf("device not registered, run 'agentd register' first: %w", err)
	}
	token, err := store.GetCredential(domain.CredSyncToken)
	if err != nil {
		token = ""
	}

	pm := infra.NewProcessManager()
	m := metrics.New()
	cache := policy.NewCache(logger)
	actuator := infra.NewCommandActuator(
		cfg.Actuator.LockCommand,
		cfg.Actuator.HomeCommand,
		cfg.Actuator.NotifyCommand,
		logger)

	client := remote.NewClient(cfg.Sync.BaseURL, id, token, cfg.Sync.WriteTimeout.Std(), logger)
	enforcer := usecase.NewEnforcer(cache, actuator, client, m, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := remote.NewWatcher(client, cfg.Sync.PollInterval.Std(), logger)
	events := watcher.Watch(ctx)

	agent := daemon.NewAgent(
		daemon.Config{
			UsagePoll:    cfg.Intervals.UsagePoll.Std(),
			UsagePublish: cfg.Intervals.UsagePublish.Std(),
			PositionPoll: cfg.Intervals.PositionPoll.Std(),
			Heartbeat:    cfg.Intervals.Heartbeat.Std(),
			WriteTimeout: cfg.Sync.WriteTimeout.Std(),
		},
		cache,
		enforcer,
		sampler.NewUsageSampler(logger),
		sampler.NewPositionSampler(cfg.Location.BridgeURL, cfg.Sync.WriteTimeout.Std(), logger),
		client,
		infra.NewStatusFile(cfg.DataDir),
		events,
		m,
		domain.AgentStatus{
			PID:        pm.GetCurrentPID(),
			DeviceID:   id,
			AppVersion: Version,
		},
		logger,
	)

	bridge := daemon.NewBridge(cfg.Bridge.ListenAddr, commgate.NewGate(cache, logger), m, logger)
	go func() {
		if err := bridge.Serve(); err != nil {
			logger.Error("bridge failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	err = agent.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = bridge.Shutdown(shutdownCtx)

	if err == context.Canceled {
		return nil
	}
	return err
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := infra.OpenCredentialStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	id := deviceID
	if id == "" {
		id = uuid.NewString()
	}

	if err := store.SetCredential(domain.CredDeviceID, id); err != nil {
		return fmt.Errorf("failed to store device id: %w", err)
	}
	if syncToken != "" {
		if err := store.SetCredential(domain.CredSyncToken, syncToken); err != nil {
			return fmt.Errorf("failed to store sync token: %w", err)
		}
	}

	fmt.Printf("Registered device %s\n", id)
	if syncToken == "" {
		fmt.Println("No sync token stored; remote writes will be unauthenticated.")
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	pm := infra.NewProcessManager()
	registry := infra.NewStatusFile(cfg.DataDir)

	fmt.Println("\n=== agentd Status ===")

	status, err := registry.Get()
	if err != nil || status == nil {
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("\nRun 'agentd run' to start enforcement.")
		return nil
	}

	if pm.IsRunning(status.PID) {
		fmt.Printf("Status: RUNNING (pid %d)\n", status.PID)
	} else {
		fmt.Println("Status: NOT RUNNING (stale status file)")
	}

	fmt.Printf("Device id: %s\n", status.DeviceID)
	if status.AppVersion != "" {
		fmt.Printf("Version: %s\n", status.AppVersion)
	}
	if status.StartedAt > 0 {
		fmt.Printf("Started: %s\n", time.Unix(status.StartedAt, 0).Format(time.RFC3339))
	}
	if status.LastHeartbeat > 0 {
		lastBeat := time.Unix(status.LastHeartbeat, 0)
		fmt.Printf("Last heartbeat: %s ago\n", time.Since(lastBeat).Round(time.Second))
	}

	fmt.Println("=====================")
	return nil
}

func createLogger(logPath string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{logPath}
	config.ErrorOutputPaths = []string{logPath}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("agentd %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
