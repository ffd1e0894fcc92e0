package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mesh-intelligence/segments/internal/memory"
	"github.com/mesh-intelligence/segments/internal/paths"
	"github.com/mesh-intelligence/segments/internal/postgres"
	"github.com/mesh-intelligence/segments/internal/sqlite"
	"github.com/mesh-intelligence/segments/pkg/segments"
	"github.com/mesh-intelligence/segments/pkg/types"
)

// app carries the flags and the lazily opened store of one CLI run.
type app struct {
	configDir string
	dataDir   string
	backend   string
	dsn       string
	owner     string
	jsonOut   bool
	verbose   bool
	// emitted is set once a JSON envelope has been written.
	emitted bool

	v        *viper.Viper
	log      *zap.Logger
	cupboard types.Cupboard
	svc      *segments.Service
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "segments",
		Short:             "Manage contact segments and their memberships",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configDir, "config-dir", "", "configuration directory (default: $(CWD)/.segments)")
	pf.StringVar(&a.dataDir, "data-dir", "", "data directory (default: $(CWD)/.segments-db)")
	pf.StringVar(&a.backend, "backend", "", "storage backend: sqlite, postgres or memory")
	pf.StringVar(&a.dsn, "dsn", "", "postgres connection string")
	pf.StringVar(&a.owner, "owner", "", "acting user id (env "+envOwner+")")
	pf.BoolVar(&a.jsonOut, "json", false, "output as JSON")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.initCmd(),
		versionCmd(),
		a.segmentCmd(),
		a.contactCmd(),
		a.memberCmd(),
		a.analyzeCmd(),
		a.cleanupCmd(),
		a.integrityCmd(),
	)
	return root
}

// setup loads config.yaml and builds the logger. The store is opened by
// the first command that needs it.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return sysErr(fmt.Errorf("resolve config dir: %w", err))
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return sysErr(err)
	}

	flags := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{
		cfgKeyBackend: "backend",
		cfgKeyDSN:     "dsn",
		cfgKeyOwner:   "owner",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return sysErr(err)
		}
	}
	if err := v.BindEnv(cfgKeyOwner, envOwner); err != nil {
		return sysErr(err)
	}
	a.v = v

	if a.log, err = newLogger(a.verbose); err != nil {
		return sysErr(fmt.Errorf("initialize logger: %w", err))
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

// storeConfig merges flags, config.yaml and the environment into a backend
// config.
func (a *app) storeConfig() (types.Config, error) {
	dataDir, err := paths.ResolveDataDir(a.dataDir, a.v.GetString(cfgKeyDataDir))
	if err != nil {
		return types.Config{}, sysErr(fmt.Errorf("resolve data dir: %w", err))
	}
	cfg := types.Config{
		Backend:         a.v.GetString(cfgKeyBackend),
		DataDir:         dataDir,
		DSN:             a.v.GetString(cfgKeyDSN),
		SyncStrategy:    a.v.GetString(cfgKeySyncStrategy),
		UniqueRelations: a.v.GetBool(cfgKeyUniqueRelations),
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openCupboard(cfg types.Config) (types.Cupboard, error) {
	var c types.Cupboard
	switch cfg.Backend {
	case types.BackendSQLite:
		c = sqlite.NewBackend()
	case types.BackendPostgres:
		c = postgres.NewBackend()
	default:
		c = memory.NewBackend()
	}
	if err := c.Attach(cfg); err != nil {
		return nil, fmt.Errorf("attach %s backend: %w", cfg.Backend, err)
	}
	return c, nil
}

// service opens the store on first use.
func (a *app) service() (*segments.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	cfg, err := a.storeConfig()
	if err != nil {
		return nil, err
	}
	c, err := openCupboard(cfg)
	if err != nil {
		return nil, sysErr(err)
	}
	a.cupboard = c

	opts := []segments.Option{segments.WithLogger(a.log)}
	if ttl := a.v.GetDuration(cfgKeyCacheTTL); ttl > 0 {
		opts = append(opts, segments.WithCacheTTL(ttl))
	}
	svc, err := segments.New(c, opts...)
	if err != nil {
		return nil, sysErr(err)
	}
	a.log.Debug("store opened",
		zap.String("backend", cfg.Backend),
		zap.String("data_dir", cfg.DataDir))
	a.svc = svc
	return svc, nil
}

// table returns one of the store's tables, opening the store if needed.
func (a *app) table(name string) (types.Table, error) {
	if _, err := a.service(); err != nil {
		return nil, err
	}
	t, err := a.cupboard.GetTable(name)
	if err != nil {
		return nil, sysErr(err)
	}
	return t, nil
}

// ctx returns the command context acting as the configured owner.
func (a *app) ctx(cmd *cobra.Command) context.Context {
	return segments.WithOwner(cmd.Context(), a.v.GetString(cfgKeyOwner))
}

func (a *app) close() error {
	var err error
	if a.svc != nil {
		a.svc.Close()
	}
	if a.cupboard != nil {
		err = a.cupboard.Detach()
		a.cupboard, a.svc = nil, nil
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	return err
}
