// Package main is the CLI entry point for applockd.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/eliteGoblin/applockd/internal/config"
	"github.com/eliteGoblin/applockd/internal/daemon"
	"github.com/eliteGoblin/applockd/internal/domain"
	"github.com/eliteGoblin/applockd/internal/infra"
	"github.com/eliteGoblin/applockd/internal/policy"
	"github.com/eliteGoblin/applockd/internal/usecase"
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
	Use:   "applockd",
	Short: "App locker - authentication challenges for protected applications",
	Long: `applockd is a daemon that watches for protected applications and locks
them behind an authentication challenge (Touch ID or password) whenever
they come to the foreground. A passed challenge grants a grace period
during which the app stays unlocked.`,
	Version: Version,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start protection (installs and launches the daemon)",
	Long: `Installs the binary, sets up a LaunchAgent so protection survives
reboots, and spawns the daemon in the background.`,
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	Long:  `Sends SIGTERM to the running daemon. An in-flight challenge is allowed to finish.`,
	RunE:  runStop,
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the daemon configuration",
	Long:  `Sends SIGHUP to the running daemon so it re-reads the config file.`,
	RunE:  runReload,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check protection status",
	Long:  `Shows whether the daemon is running, what apps are protected, and which authenticators are available.`,
	RunE:  runStatus,
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Manage the protected application list",
}

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List protected applications",
	RunE:  runTargetsList,
}

var targetsAddCmd = &cobra.Command{
	Use:   "add <app name>...",
	Short: "Add applications to the protected list",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTargetsAdd,
}

var targetsRemoveCmd = &cobra.Command{
	Use:   "remove <app name>...",
	Short: "Remove applications from the protected list",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTargetsRemove,
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Manage the fallback password",
}

var passwordSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the password used when Touch ID is unavailable",
	RunE:  runPasswordSet,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop the daemon and remove the LaunchAgent and installed binary",
	RunE:  runUninstall,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

// Hidden daemon command - used for self-exec and by the launchd plist.
var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Hidden: true,
	RunE:   runDaemon,
}

var jsonOutput bool

func init() {
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	targetsCmd.AddCommand(targetsListCmd)
	targetsCmd.AddCommand(targetsAddCmd)
	targetsCmd.AddCommand(targetsRemoveCmd)
	passwordCmd.AddCommand(passwordSetCmd)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(passwordCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	execMode := infra.DetectExecMode()

	fmt.Printf("Execution mode: %s\n", execMode.Mode)

	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(pm)

	if alive, entry := registry.IsDaemonAlive(); alive {
		fmt.Printf("applockd is already running (pid %d)\n", entry.PID)
		return nil
	}

	currentExecPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Copy binary to the install location so the LaunchAgent keeps
	// working after the build directory disappears.
	binaryPath := execMode.BinaryPath
	if currentExecPath != binaryPath {
		if err := os.MkdirAll(filepath.Dir(binaryPath), 0755); err != nil {
			fmt.Printf("Warning: Could not create binary directory: %v\n", err)
			binaryPath = currentExecPath
		} else if err := copyBinary(currentExecPath, binaryPath); err != nil {
			fmt.Printf("Warning: Could not copy binary to %s: %v\n", binaryPath, err)
			binaryPath = currentExecPath
		} else {
			fmt.Printf("Installed binary to %s\n", binaryPath)
		}
	}

	launchdManager := infra.NewLaunchdManager(execMode)
	if err := launchdManager.CleanupOtherMode(); err != nil {
		fmt.Printf("Warning: Could not clean up other-mode LaunchAgent: %v\n", err)
	}
	if !launchdManager.IsInstalled() {
		if err := launchdManager.Install(binaryPath); err != nil {
			fmt.Printf("Warning: Could not install %s: %v\n", execMode.Mode, err)
			fmt.Println("         (applockd will still run, but won't auto-start)")
		} else {
			fmt.Println("Installed LaunchAgent for auto-start on login")
		}
	} else if launchdManager.NeedsUpdate(binaryPath) {
		if err := launchdManager.Update(binaryPath); err != nil {
			fmt.Printf("Warning: Could not update LaunchAgent: %v\n", err)
		}
	}

	if err := daemon.StartDaemon(binaryPath); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Wait a moment for the daemon to register
	time.Sleep(500 * time.Millisecond)

	cfg, err := config.Load(execMode.ConfigPath())
	if err != nil {
		cfg = config.Default()
	}

	fmt.Println("\n=== applockd Started ===")
	fmt.Printf("Mode: %s\n", execMode.Mode)
	fmt.Printf("Binary: %s\n", binaryPath)
	printTargets(cfg)
	fmt.Println("\nThe daemon is running in the background.")
	fmt.Println("========================")

	return nil
}

// copyBinary copies the binary file to destination using atomic write pattern.
// Writes to temp file first, syncs, chmods, then renames to avoid corruption.
func copyBinary(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	// Create temp file in same directory for atomic rename
	dstDir := filepath.Dir(dst)
	tmpFile, err := os.CreateTemp(dstDir, ".applockd-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err = io.Copy(tmpFile, sourceFile); err != nil {
		tmpFile.Close()
		return err
	}

	if err = tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err = os.Chmod(tmpPath, 0755); err != nil {
		return err
	}

	if err = os.Rename(tmpPath, dst); err != nil {
		return err
	}

	success = true
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(pm)

	alive, entry := registry.IsDaemonAlive()
	if !alive {
		fmt.Println("applockd is not running")
		return nil
	}

	if err := pm.Terminate(entry.PID); err != nil {
		return fmt.Errorf("failed to signal daemon (pid %d): %w", entry.PID, err)
	}

	fmt.Printf("Sent stop signal to daemon (pid %d)\n", entry.PID)
	return nil
}

func runReload(cmd *cobra.Command, args []string) error {
	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(pm)

	alive, entry := registry.IsDaemonAlive()
	if !alive {
		fmt.Println("applockd is not running")
		return nil
	}

	if err := syscall.Kill(entry.PID, syscall.SIGHUP); err != nil {
		return fmt.Errorf("failed to signal daemon (pid %d): %w", entry.PID, err)
	}

	fmt.Printf("Sent reload signal to daemon (pid %d)\n", entry.PID)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	execMode := infra.DetectExecMode()
	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(pm)

	fmt.Println("\n=== applockd Status ===")

	alive, entry := registry.IsDaemonAlive()
	switch {
	case alive:
		fmt.Printf("Status: RUNNING (pid %d, strategy %s)\n", entry.PID, entry.Strategy)
		if entry.LastHeartbeat > 0 {
			lastBeat := time.Unix(entry.LastHeartbeat, 0)
			fmt.Printf("Last heartbeat: %s ago\n", time.Since(lastBeat).Round(time.Second))
		}
	case entry != nil:
		fmt.Printf("Status: NOT RUNNING (stale registry entry for pid %d)\n", entry.PID)
	default:
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("\nRun 'applockd start' to enable protection.")
	}

	fmt.Printf("\nExecution mode: %s\n", execMode.Mode)
	if launchdManager := infra.NewLaunchdManager(execMode); launchdManager.IsInstalled() {
		fmt.Println("Auto-start: enabled")
	} else {
		fmt.Println("Auto-start: disabled (plist missing)")
	}

	cfg, err := config.Load(execMode.ConfigPath())
	if err != nil {
		fmt.Printf("\nConfig: BROKEN (%v) - daemon protects nothing until fixed\n", err)
		cfg = config.Default()
	}
	printTargets(cfg)
	recovery := cfg.Lock.Recovery
	if recovery == "" {
		recovery = "auto"
	}
	fmt.Printf("Grace: %s  Challenge timeout: %s  Recovery: %s\n",
		cfg.Lock.Grace.Std(), cfg.Lock.ChallengeTimeout.Std(), recovery)

	fmt.Println("\nAuthenticators:")
	touchID := infra.NewTouchIDAuthenticator(zap.NewNop())
	fmt.Printf("  touchid:  %s\n", availability(touchID.Available()))
	fmt.Printf("  password: %s\n", availability(passwordConfigured(execMode)))

	printRunningMatches(pm, cfg)

	fmt.Println("=======================")
	return nil
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}

// passwordConfigured checks whether a password hash exists without
// keeping the credential store open.
func passwordConfigured(execMode *infra.ExecModeConfig) bool {
	provider := infra.NewFileKeyProvider(execMode.DataDir)
	if !provider.KeyExists() {
		return false
	}
	key, err := provider.GetKey()
	if err != nil {
		return false
	}
	store, err := infra.NewCredentialStore(execMode.DataDir, key)
	if err != nil {
		return false
	}
	defer store.Close()

	_, err = store.GetSecret(infra.SecretKeyPasswordHash)
	return err == nil
}

func printTargets(cfg *config.Config) {
	fmt.Printf("\nProtected applications (%s match):\n", cfg.Targets.Match)
	if len(cfg.Targets.Entries) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, entry := range cfg.Targets.Entries {
		fmt.Printf("  - %s\n", entry)
	}
}

func printRunningMatches(pm domain.ProcessManager, cfg *config.Config) {
	procs, err := pm.Processes()
	if err != nil {
		return
	}
	set := cfg.TargetSet()

	var running []string
	seen := make(map[string]bool)
	for _, name := range procs {
		if entry, ok := set.Match(name); ok && !seen[entry] {
			seen[entry] = true
			running = append(running, fmt.Sprintf("%s (process %s)", entry, name))
		}
	}
	if len(running) > 0 {
		fmt.Println("\nProtected apps currently running:")
		for _, r := range running {
			fmt.Printf("  - %s\n", r)
		}
	}
}

func runTargetsList(cmd *cobra.Command, args []string) error {
	execMode := infra.DetectExecMode()
	cfg, err := config.Load(execMode.ConfigPath())
	if err != nil {
		return err
	}
	printTargets(cfg)
	return nil
}

func runTargetsAdd(cmd *cobra.Command, args []string) error {
	return editTargets(func(entries []string) []string {
		for _, name := range args {
			name = strings.TrimSpace(name)
			if name == "" || containsFold(entries, name) {
				continue
			}
			entries = append(entries, name)
			fmt.Printf("Added %q\n", name)
		}
		return entries
	})
}

func runTargetsRemove(cmd *cobra.Command, args []string) error {
	return editTargets(func(entries []string) []string {
		kept := entries[:0]
		for _, e := range entries {
			if containsFold(args, e) {
				fmt.Printf("Removed %q\n", e)
				continue
			}
			kept = append(kept, e)
		}
		return kept
	})
}

func containsFold(list []string, name string) bool {
	for _, e := range list {
		if strings.EqualFold(e, name) {
			return true
		}
	}
	return false
}

// editTargets loads the config, applies fn to the entry list, and saves
// atomically. The running daemon picks the change up via its file watcher.
func editTargets(fn func([]string) []string) error {
	execMode := infra.DetectExecMode()
	path := execMode.ConfigPath()

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	cfg.Targets.Entries = fn(cfg.Targets.Entries)

	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("%d protected application(s)\n", len(cfg.Targets.Entries))
	return nil
}

func runPasswordSet(cmd *cobra.Command, args []string) error {
	fmt.Print("New password: ")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Print("Repeat password: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	if string(first) != string(second) {
		return fmt.Errorf("passwords do not match")
	}

	hash, err := infra.HashPassword(string(first))
	if err != nil {
		return err
	}

	execMode := infra.DetectExecMode()
	if err := os.MkdirAll(execMode.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	key, err := infra.EnsureKey(infra.NewFileKeyProvider(execMode.DataDir))
	if err != nil {
		return fmt.Errorf("failed to prepare encryption key: %w", err)
	}

	store, err := infra.NewCredentialStore(execMode.DataDir, key)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer store.Close()

	if err := store.SetSecret(infra.SecretKeyPasswordHash, hash); err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}

	fmt.Println("Password updated.")
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	execMode := infra.DetectExecMode()
	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(pm)

	if alive, entry := registry.IsDaemonAlive(); alive {
		if err := pm.Terminate(entry.PID); err != nil {
			fmt.Printf("Warning: Could not stop daemon (pid %d): %v\n", entry.PID, err)
		} else {
			fmt.Printf("Stopped daemon (pid %d)\n", entry.PID)
		}
	}

	launchdManager := infra.NewLaunchdManager(execMode)
	if launchdManager.IsInstalled() {
		if err := launchdManager.Uninstall(); err != nil {
			fmt.Printf("Warning: Could not remove LaunchAgent: %v\n", err)
		} else {
			fmt.Println("Removed LaunchAgent")
		}
	}
	if err := launchdManager.CleanupOtherMode(); err != nil {
		fmt.Printf("Warning: Could not clean up other-mode LaunchAgent: %v\n", err)
	}

	if err := os.Remove(execMode.BinaryPath); err == nil {
		fmt.Printf("Removed %s\n", execMode.BinaryPath)
	}

	fmt.Printf("Configuration and credentials in %s were kept.\n", execMode.DataDir)
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	execMode := infra.DetectExecMode()

	// Peek at the config for the log level before the store exists, so
	// the store's own load failures get logged at the right place.
	level := "info"
	if cfg, err := config.Load(execMode.ConfigPath()); err == nil {
		level = cfg.Logging.Level
	}
	logger := createLogger(level)
	defer func() { _ = logger.Sync() }()

	store := config.NewStore(execMode.ConfigPath(), logger)
	cfg := store.Load()

	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(pm)

	if alive, entry := registry.IsDaemonAlive(); alive && entry.PID != os.Getpid() {
		return fmt.Errorf("another daemon is already running (pid %d)", entry.PID)
	}

	// Credentials
	if err := os.MkdirAll(execMode.DataDir, 0700); err != nil {
		logger.Error("failed to create data dir", zap.Error(err))
		return err
	}
	key, err := infra.EnsureKey(infra.NewFileKeyProvider(execMode.DataDir))
	if err != nil {
		logger.Error("failed to prepare encryption key", zap.Error(err))
		return err
	}
	creds, err := infra.NewCredentialStore(execMode.DataDir, key)
	if err != nil {
		logger.Error("failed to open credential store", zap.Error(err))
		return err
	}
	defer creds.Close()

	// Authenticator chain: Touch ID first, password fallback.
	auth := infra.NewChainAuthenticator(logger,
		infra.NewTouchIDAuthenticator(logger),
		infra.NewPasswordAuthenticator(creds, logger),
	)

	// Detector per configured strategy, with poll fallback when
	// workspace notifications are unavailable.
	strategy := cfg.Detector.Strategy
	var detector domain.Detector
	if strategy == config.StrategyPush {
		detector, err = infra.NewPushDetector(logger)
		if err != nil {
			logger.Warn("push detector unavailable, falling back to poll", zap.Error(err))
			strategy = config.StrategyPoll
		}
	}
	if detector == nil {
		filter := func() domain.TargetSet { return store.Current().TargetSet() }
		detector = infra.NewPollDetector(pm, filter, cfg.Detector.PollInterval.Std(), logger)
	}

	recovery, err := policy.ForStrategy(cfg.Lock.Recovery, strategy, infra.NewAppLauncher(logger))
	if err != nil {
		logger.Error("invalid recovery policy", zap.Error(err))
		return err
	}

	locker := usecase.NewLocker(
		auth,
		recovery,
		infra.NewNotificationPresenter(logger),
		pm,
		domain.RealClock{},
		logger,
	)

	info := domain.Daemon{
		PID:        os.Getpid(),
		StartedAt:  time.Now(),
		AppVersion: Version,
		Strategy:   strategy,
	}

	d := daemon.New(info, store, locker, detector, registry, strategy, logger)
	housekeeper := daemon.NewHousekeeper(
		daemon.DefaultHousekeeperConfig(),
		registry,
		locker,
		infra.NewLaunchdManager(execMode),
		os.Getpid(),
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGHUP {
				logger.Info("received reload signal")
				d.Reload()
				continue
			}
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			cancel()
			return
		}
	}()

	go func() {
		_ = housekeeper.Run(ctx)
	}()

	return d.Run(ctx)
}

func createLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"/var/tmp/applockd.log"}
	config.ErrorOutputPaths = []string{"/var/tmp/applockd.error.log"}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}

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
		fmt.Printf("applockd %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
