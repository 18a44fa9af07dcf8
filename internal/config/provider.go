package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bancorprotocol/carbon-migrate/internal/domain/config"
)

// ProjectFile is the marker file of a migration project
const ProjectFile = "migrate.toml"

// Provider creates RuntimeConfig for Wire dependency injection
func Provider(v *viper.Viper) (*config.RuntimeConfig, error) {
	projectRoot := v.GetString("project_root")
	if projectRoot == "" {
		var err error
		projectRoot, err = FindProjectRoot("")
		if err != nil {
			return nil, fmt.Errorf("failed to find project root: %w", err)
		}
	}

	cfg := &config.RuntimeConfig{
		ProjectRoot:    projectRoot,
		Debug:          v.GetBool("debug"),
		NonInteractive: v.GetBool("non_interactive"),
		Timeout:        v.GetDuration("timeout"),
		DryRun:         v.GetBool("dry_run"),
		Networks:       splitNetworks(v.GetString("network")),
	}

	project, registry, err := LoadProject(projectRoot)
	if err != nil {
		return nil, err
	}
	if backend := v.GetString("ledger"); backend != "" {
		project.Ledger = config.LedgerBackend(backend)
		if err := validateBackend(project.Ledger); err != nil {
			return nil, err
		}
	}
	cfg.Project = project
	cfg.Registry = registry

	accounts, err := LoadAccounts(project.AccountsFile, registry)
	if err != nil {
		return nil, err
	}
	cfg.Accounts = accounts

	for _, name := range cfg.Networks {
		if !registry.Has(name) {
			return nil, fmt.Errorf("unknown network %q (configured: %s)", name, strings.Join(registry.Names(), ", "))
		}
	}

	return cfg, nil
}

// FindProjectRoot walks up from start (or the working directory) to find migrate.toml
func FindProjectRoot(start string) (string, error) {
	dir := start
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, ProjectFile)); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a migration project (%s not found)", ProjectFile)
		}
		dir = parent
	}
}

// SetupViper creates and configures a viper instance
func SetupViper(projectRoot string, cmd *cobra.Command) *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix("CARBON")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault("timeout", "30m")
	v.SetDefault("debug", false)
	v.SetDefault("non_interactive", false)
	v.SetDefault("project_root", projectRoot)

	if cmd != nil {
		bind := func(f *pflag.Flag) {
			if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil {
				panic(err)
			}
		}
		cmd.Flags().VisitAll(bind)
		cmd.InheritedFlags().VisitAll(bind)
	}

	return v
}

func splitNetworks(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
