package config

import (
	"time"

	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
)

// RuntimeConfig represents the complete runtime configuration
// This is injected into use cases and contains all resolved settings
type RuntimeConfig struct {
	// Core settings
	ProjectRoot string

	// Execution settings
	Debug          bool
	NonInteractive bool
	Timeout        time.Duration
	DryRun         bool

	// Networks selected with --network (may be empty)
	Networks []string

	// Resolved configurations
	Project  *ProjectSettings
	Registry *models.NetworkRegistry
	Accounts *models.NamedAccountTable
}

// LedgerBackend selects the durable ledger implementation
type LedgerBackend string

const (
	LedgerFile   LedgerBackend = "file"
	LedgerPebble LedgerBackend = "pebble"
)

// ProjectSettings holds the [project] and [proxy] sections of migrate.toml
// with paths made absolute.
type ProjectSettings struct {
	MigrationsDir  string
	ArtifactsDir   string
	DeploymentsDir string
	AccountsFile   string
	Ledger         LedgerBackend
	AllowGaps      bool
	Proxy          ProxySettings
}

// ProxySettings configures proxy-backed deployments
type ProxySettings struct {
	// Contract is the proxy artifact deployed in front of implementations
	Contract string
	// Admin is the instance name of the proxy admin
	Admin string
	// Initializer is the default initializer method name
	Initializer string
}
