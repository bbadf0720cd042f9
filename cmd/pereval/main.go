package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fstr/pereval/internal/config"
	"github.com/fstr/pereval/internal/database"
	"github.com/fstr/pereval/internal/logging"
	"github.com/fstr/pereval/internal/maintenance"
	"github.com/fstr/pereval/internal/web"
	"github.com/fstr/pereval/internal/web/handlers"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags; unset flags fall back to the environment
var (
	envFile     string
	port        int
	bind        string
	allowSubnet string
	dbPath      string
	logFile     string
	verbosity   int
	schedule    string
	vacuum      bool

	requestTimeout time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "pereval",
		Short:        "Pereval - mountain pass submission service",
		Long:         `Pereval stores mountain pass submissions from the mobile app: submitter, coordinates, seasonal difficulty and photos.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite database path (or set FSTR_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Rotating log file path (or set FSTR_LOG_FILE)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (or set PORT)")
		c.Flags().StringVarP(&bind, "bind", "b", "", "IP address to bind to (e.g., 127.0.0.1, 0.0.0.0)")
		c.Flags().StringVarP(&allowSubnet, "allow-subnet", "a", "", "CIDR subnet allowed to connect (e.g., 192.168.1.0/24)")
		c.Flags().StringVar(&schedule, "optimize-schedule", "", "Cron schedule for PRAGMA optimize (or set FSTR_OPTIMIZE_SCHEDULE)")
		c.Flags().DurationVar(&requestTimeout, "request-timeout", 60*time.Second, "Per-request handler timeout")
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and exit",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}

	statusCmd := &cobra.Command{
		Use:   "status <id> <pending|accepted|rejected>",
		Short: "Set the moderation status of a pass",
		Args:  cobra.ExactArgs(2),
		RunE:  runStatus,
	}

	maintenanceCmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Optimize (and optionally vacuum) the database",
		Args:  cobra.NoArgs,
		RunE:  runMaintenance,
	}
	maintenanceCmd.Flags().BoolVar(&vacuum, "vacuum", false, "Also rebuild the database file")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print row counts",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pereval %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}

	rootCmd.AddCommand(serveCmd, migrateCmd, statusCmd, maintenanceCmd, statsCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig merges dotenv, environment and flags, then sets up logging
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return loadConfigWithLogFile(cmd, false)
}

// loadConfigWithLogFile is loadConfig; fileByDefault places the log next to
// the database when no log file is configured.
func loadConfigWithLogFile(cmd *cobra.Command, fileByDefault bool) (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
	if cfg.Log.File == "" && fileByDefault {
		cfg.Log.File = logging.FilePathForDB(cfg.DBPath)
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = port
	}
	if cmd.Flags().Changed("bind") {
		cfg.Bind = bind
	}
	if cmd.Flags().Changed("allow-subnet") {
		cfg.AllowSubnet = allowSubnet
	}
	if cmd.Flags().Changed("optimize-schedule") {
		cfg.OptimizeSchedule = schedule
	}
	cfg.LogLevel = logging.LevelForVerbosity(cfg.LogLevel, verbosity)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Apply(cfg.LogLevel, cfg.Log)
	return cfg, nil
}

// openStore opens the database and ensures the schema. Callers own Close.
func openStore(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.New(cfg.DBPath, database.Options{
		BusyTimeout: cfg.DBBusyTimeout,
		OpTimeout:   cfg.OpTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}
	return db, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigWithLogFile(cmd, true)
	if err != nil {
		return err
	}

	if (cfg.Bind == "" || cfg.Bind == "0.0.0.0" || cfg.Bind == "::") && cfg.AllowSubnet == "" {
		log.Warn().Msg("Server is accessible from all interfaces without subnet restrictions. Consider using --bind or --allow-subnet.")
	}

	log.Info().
		Str("version", version).
		Int("port", cfg.Port).
		Str("bind", cfg.Bind).
		Str("allow_subnet", cfg.AllowSubnet).
		Str("database", cfg.DBPath).
		Msg("Starting Pereval")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open record store")
	}
	defer db.Close()

	scheduler := maintenance.New(db, cfg.OptimizeSchedule, cfg.OpTimeout)
	if started, err := scheduler.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start maintenance scheduler")
	} else if !started {
		log.Debug().Msg("Maintenance scheduler not started (no schedule configured)")
	}
	defer scheduler.Stop()

	timeouts := config.DefaultTimeoutConfig()
	timeouts.Request = requestTimeout

	server := web.NewServer(db, cfg.Addr(), cfg.AllowedNet(), timeouts, handlers.VersionInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Server error")
		return err
	}

	log.Info().Msg("Pereval stopped")
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	v, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("schema version %d\n", v)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid pass id %q", args[0])
	}
	status := database.Status(args[1])

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SetPassStatus(ctx, id, status); err != nil {
		return err
	}

	fmt.Printf("pass %d is now %s\n", id, status)
	return nil
}

func runMaintenance(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := maintenance.New(db, "", cfg.OpTimeout).RunNow(ctx); err != nil {
		return err
	}
	if vacuum {
		if err := db.Vacuum(ctx); err != nil {
			return err
		}
	}
	log.Info().Bool("vacuum", vacuum).Msg("Maintenance complete")
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("submitters: %d\npasses: %d\nimages: %d\n", stats.Submitters, stats.Passes, stats.Images)
	for _, s := range []database.Status{database.StatusNew, database.StatusPending, database.StatusAccepted, database.StatusRejected} {
		fmt.Printf("  %s: %d\n", s, stats.ByStatus[s])
	}
	return nil
}
