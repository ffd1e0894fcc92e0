package main

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/segments/internal/paths"
	"github.com/mesh-intelligence/segments/pkg/types"
)

type initOutput struct {
	ConfigDir string `json:"config_dir" yaml:"config_dir"`
	Backend   string `json:"backend" yaml:"backend"`
	DataDir   string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the configuration file and the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// setup already wrote the default config.yaml.
			configDir, err := paths.ResolveConfigDir(a.configDir)
			if err != nil {
				return sysErr(err)
			}
			if _, err := a.service(); err != nil {
				return err
			}
			cfg, err := a.storeConfig()
			if err != nil {
				return err
			}
			out := &initOutput{ConfigDir: configDir, Backend: cfg.Backend}
			if cfg.Backend == types.BackendSQLite {
				out.DataDir = cfg.DataDir
			}
			return emit(a, cmd, out, nil)
		},
	}
}
