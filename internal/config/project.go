package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/config"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
)

// ProjectTOML represents the raw migrate.toml structure
type ProjectTOML struct {
	Project  projectSection            `toml:"project"`
	Proxy    proxySection              `toml:"proxy"`
	Networks map[string]NetworkSection `toml:"networks"`
}

type projectSection struct {
	Migrations  string `toml:"migrations"`
	Artifacts   string `toml:"artifacts"`
	Deployments string `toml:"deployments"`
	Ledger      string `toml:"ledger"`
	AllowGaps   bool   `toml:"allow_gaps"`
	Accounts    string `toml:"accounts"`
}

type proxySection struct {
	Contract    string `toml:"contract"`
	Admin       string `toml:"admin"`
	Initializer string `toml:"initializer"`
}

const (
	defaultMigrationsDir  = "deploy/migrations"
	defaultArtifactsDir   = "artifacts"
	defaultDeploymentsDir = "deployments"
	defaultAccountsFile   = "accounts.toml"
	defaultProxyContract  = "OptimizedTransparentUpgradeableProxy"
	defaultProxyAdmin     = "ProxyAdmin"
	defaultInitializer    = "initialize"
)

// LoadProject reads migrate.toml from projectRoot, after loading .env and
// .env.local so ${VAR} references expand.
func LoadProject(projectRoot string) (*config.ProjectSettings, *models.NetworkRegistry, error) {
	loadEnvFiles(projectRoot)

	path := filepath.Join(projectRoot, ProjectFile)
	var raw ProjectTOML
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, nil, &domain.ConfigurationError{Source: ProjectFile, Reason: "failed to parse", Err: err}
	}

	settings := &config.ProjectSettings{
		MigrationsDir:  resolvePath(projectRoot, raw.Project.Migrations, defaultMigrationsDir),
		ArtifactsDir:   resolvePath(projectRoot, raw.Project.Artifacts, defaultArtifactsDir),
		DeploymentsDir: resolvePath(projectRoot, raw.Project.Deployments, defaultDeploymentsDir),
		AccountsFile:   resolvePath(projectRoot, raw.Project.Accounts, defaultAccountsFile),
		Ledger:         config.LedgerBackend(valueOr(raw.Project.Ledger, string(config.LedgerFile))),
		AllowGaps:      raw.Project.AllowGaps,
		Proxy: config.ProxySettings{
			Contract:    valueOr(raw.Proxy.Contract, defaultProxyContract),
			Admin:       valueOr(raw.Proxy.Admin, defaultProxyAdmin),
			Initializer: valueOr(raw.Proxy.Initializer, defaultInitializer),
		},
	}
	if err := validateBackend(settings.Ledger); err != nil {
		return nil, nil, err
	}

	registry, err := BuildRegistry(raw.Networks)
	if err != nil {
		return nil, nil, err
	}

	return settings, registry, nil
}

func loadEnvFiles(projectRoot string) {
	envFiles := []string{
		filepath.Join(projectRoot, ".env"),
		filepath.Join(projectRoot, ".env.local"),
	}

	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: Failed to load %s: %v\n", envFile, err)
			}
		}
	}
}

func validateBackend(b config.LedgerBackend) error {
	switch b {
	case config.LedgerFile, config.LedgerPebble:
		return nil
	}
	return domain.NewConfigurationError(ProjectFile, "unknown ledger backend %q", b)
}

func resolvePath(root, value, fallback string) string {
	p := os.ExpandEnv(valueOr(value, fallback))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
