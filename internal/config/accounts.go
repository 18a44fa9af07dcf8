package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
)

// AccountsTOML represents the raw accounts.toml structure
type AccountsTOML struct {
	NetworkGroups map[string][]string `toml:"network_groups"`
	Layers        []AccountLayer      `toml:"layers"`
}

// AccountLayer is a named contribution of roles to the account table
type AccountLayer struct {
	Name     string                       `toml:"name"`
	Accounts map[string]map[string]string `toml:"accounts"`
}

// LoadAccounts reads the named-account file and merges its layers
func LoadAccounts(path string, registry *models.NetworkRegistry) (*models.NamedAccountTable, error) {
	var raw AccountsTOML
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, &domain.ConfigurationError{Source: filepath.Base(path), Reason: "failed to parse", Err: err}
	}
	table, err := MergeAccountLayers(raw.NetworkGroups, raw.Layers, registry)
	if err != nil {
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) && cfgErr.Source == "" {
			cfgErr.Source = filepath.Base(path)
		}
		return nil, err
	}
	return table, nil
}

// MergeAccountLayers builds the role -> network -> value table from ordered
// layers. Group keys expand to all member networks. Within one role an
// explicit network key overrides a group-expanded one. A role may be defined
// by only one layer.
func MergeAccountLayers(groups map[string][]string, layers []AccountLayer, registry *models.NetworkRegistry) (*models.NamedAccountTable, error) {
	for group, members := range groups {
		if registry.Has(group) {
			return nil, domain.NewConfigurationError("", "network group %q shadows a network name", group)
		}
		for _, m := range members {
			if !registry.Has(m) {
				return nil, domain.NewConfigurationError("", "network group %q lists unknown network %q", group, m)
			}
		}
	}

	owner := make(map[string]string)
	roles := make(map[string]map[string]models.AccountValue)

	for i, layer := range layers {
		layerName := lo.Ternary(layer.Name != "", layer.Name, fmt.Sprintf("#%d", i+1))

		for _, role := range sortedKeys(layer.Accounts) {
			if prev, dup := owner[role]; dup {
				return nil, domain.NewConfigurationError("", "role %q defined by both layer %s and layer %s", role, prev, layerName)
			}
			owner[role] = layerName

			merged, err := mergeRole(role, layer.Accounts[role], groups, registry)
			if err != nil {
				return nil, err
			}
			roles[role] = merged
		}
	}

	return models.NewNamedAccountTable(roles), nil
}

func mergeRole(role string, entries map[string]string, groups map[string][]string, registry *models.NetworkRegistry) (map[string]models.AccountValue, error) {
	fromGroups := make(map[string]models.AccountValue)
	explicit := make(map[string]models.AccountValue)

	for _, key := range sortedKeys(entries) {
		v, err := models.ParseAccountValue(entries[key])
		if err != nil {
			return nil, domain.NewConfigurationError("", "role %q on %s: %v", role, key, err)
		}

		if members, isGroup := groups[key]; isGroup {
			for _, network := range members {
				if prev, set := fromGroups[network]; set && prev != v {
					return nil, domain.NewConfigurationError("", "role %q gets conflicting values for %s from network groups", role, network)
				}
				fromGroups[network] = v
			}
			continue
		}

		if !registry.Has(key) {
			return nil, domain.NewConfigurationError("", "role %q names unknown network %q", role, key)
		}
		explicit[key] = v
	}

	return lo.Assign(fromGroups, explicit), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
