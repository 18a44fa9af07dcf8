package config

import (
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
)

// NetworkSection is one [networks.<name>] table of migrate.toml
type NetworkSection struct {
	ChainID                    uint64        `toml:"chain_id"`
	RPCURL                     string        `toml:"rpc_url"`
	Signer                     SignerSection `toml:"signer"`
	Persistent                 *bool         `toml:"persistent"`
	Live                       bool          `toml:"live"`
	ForkOf                     string        `toml:"fork_of"`
	GasPrice                   string        `toml:"gas_price"`
	GasLimit                   uint64        `toml:"gas_limit"`
	Confirmations              uint64        `toml:"confirmations"`
	ConfirmTimeout             string        `toml:"confirm_timeout"`
	AllowUnlimitedContractSize bool          `toml:"allow_unlimited_contract_size"`
}

// SignerSection is the inline signer table of a network
type SignerSection struct {
	Type           string `toml:"type"`
	PrivateKey     string `toml:"private_key"`
	DerivationPath string `toml:"derivation_path"`
}

const (
	defaultConfirmations  = 1
	defaultConfirmTimeout = 10 * time.Minute
)

// BuildRegistry converts raw network tables into a validated registry
func BuildRegistry(sections map[string]NetworkSection) (*models.NetworkRegistry, error) {
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	networks := make([]*models.Network, 0, len(names))
	for _, name := range names {
		n, err := buildNetwork(name, sections[name])
		if err != nil {
			return nil, err
		}
		networks = append(networks, n)
	}

	if err := validateNetworks(networks); err != nil {
		return nil, err
	}
	return models.NewNetworkRegistry(networks), nil
}

func buildNetwork(name string, s NetworkSection) (*models.Network, error) {
	source := "networks." + name
	if strings.TrimSpace(name) == "" {
		return nil, domain.NewConfigurationError(ProjectFile, "network with empty name")
	}
	if s.ChainID == 0 {
		return nil, domain.NewConfigurationError(source, "chain_id is required")
	}

	n := &models.Network{
		Name:                name,
		ChainID:             s.ChainID,
		RPCURL:              os.ExpandEnv(s.RPCURL),
		Persistent:          true,
		Live:                s.Live,
		ForkOf:              s.ForkOf,
		GasLimit:            s.GasLimit,
		Confirmations:       s.Confirmations,
		ConfirmTimeout:      defaultConfirmTimeout,
		EnforceContractSize: !s.AllowUnlimitedContractSize,
	}
	if s.Persistent != nil {
		n.Persistent = *s.Persistent
	}
	if n.Confirmations == 0 {
		n.Confirmations = defaultConfirmations
	}
	if s.ConfirmTimeout != "" {
		d, err := time.ParseDuration(s.ConfirmTimeout)
		if err != nil || d <= 0 {
			return nil, domain.NewConfigurationError(source, "invalid confirm_timeout %q", s.ConfirmTimeout)
		}
		n.ConfirmTimeout = d
	}

	gasPrice, err := parseGasPrice(os.ExpandEnv(s.GasPrice))
	if err != nil {
		return nil, &domain.ConfigurationError{Source: source, Reason: "invalid gas_price", Err: err}
	}
	n.GasPrice = gasPrice

	signer, err := buildSigner(source, s.Signer)
	if err != nil {
		return nil, err
	}
	n.Signer = signer

	return n, nil
}

func buildSigner(source string, s SignerSection) (models.SignerSource, error) {
	signer := models.SignerSource{
		Type:           models.SignerType(valueOr(s.Type, string(models.SignerNamed))),
		PrivateKey:     strings.TrimPrefix(os.ExpandEnv(s.PrivateKey), "0x"),
		DerivationPath: s.DerivationPath,
	}
	switch signer.Type {
	case models.SignerNamed, models.SignerLedger, models.SignerImpersonate, models.SignerNone:
	case models.SignerPrivateKey:
		if signer.PrivateKey == "" {
			return signer, domain.NewConfigurationError(source, "private_key signer without a key")
		}
	default:
		return signer, domain.NewConfigurationError(source, "unknown signer type %q", s.Type)
	}
	return signer, nil
}

func parseGasPrice(raw string) (models.GasPrice, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "auto") {
		return models.GasPrice{}, nil
	}
	wei, ok := new(big.Int).SetString(raw, 0)
	if !ok || wei.Sign() <= 0 {
		return models.GasPrice{}, domain.NewConfigurationError("", "%q is neither \"auto\" nor a positive wei amount", raw)
	}
	return models.GasPrice{Wei: wei}, nil
}

// validateNetworks checks chain id uniqueness. Two networks may share a chain
// id only when one is declared a fork of the other.
func validateNetworks(networks []*models.Network) error {
	byName := make(map[string]*models.Network, len(networks))
	for _, n := range networks {
		byName[n.Name] = n
	}

	for _, n := range networks {
		if n.ForkOf == "" {
			continue
		}
		parent, ok := byName[n.ForkOf]
		if !ok {
			return domain.NewConfigurationError("networks."+n.Name, "fork_of names unknown network %q", n.ForkOf)
		}
		if parent.ForkOf != "" {
			return domain.NewConfigurationError("networks."+n.Name, "fork_of %q is itself a fork", n.ForkOf)
		}
	}

	byChain := make(map[uint64]*models.Network)
	for _, n := range networks {
		other, seen := byChain[n.ChainID]
		if !seen {
			byChain[n.ChainID] = n
			continue
		}
		if n.ForkOf == other.Name || other.ForkOf == n.Name {
			if other.ForkOf != "" {
				byChain[n.ChainID] = n
			}
			continue
		}
		return domain.NewConfigurationError(ProjectFile, "chain id %d is used by both %s and %s", n.ChainID, other.Name, n.Name)
	}
	return nil
}
