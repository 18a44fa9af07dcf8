package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// LedgerAccountPrefix marks an account held on a Ledger hardware wallet
const LedgerAccountPrefix = "ledger://"

// AccountValue is one cell of the named-account table. An empty Raw value is
// the explicit "not yet assigned" placeholder.
type AccountValue struct {
	Raw     string
	Address common.Address
	Ledger  bool
}

// ParseAccountValue parses a table cell: "", "ledger://0x..." or "0x..."
func ParseAccountValue(raw string) (AccountValue, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AccountValue{}, nil
	}
	v := AccountValue{Raw: raw}
	addr := raw
	if strings.HasPrefix(raw, LedgerAccountPrefix) {
		v.Ledger = true
		addr = strings.TrimPrefix(raw, LedgerAccountPrefix)
	}
	if !common.IsHexAddress(addr) {
		return AccountValue{}, fmt.Errorf("invalid account value %q", raw)
	}
	v.Address = common.HexToAddress(addr)
	return v, nil
}

// Unassigned reports whether the cell is the empty placeholder
func (v AccountValue) Unassigned() bool { return v.Raw == "" }

// Account is a role resolved on a network
type Account struct {
	Role    string
	Network string
	Address common.Address
	Ledger  bool
}

func (a Account) String() string {
	if a.Ledger {
		return fmt.Sprintf("%s (%s, ledger)", a.Role, a.Address.Hex())
	}
	return fmt.Sprintf("%s (%s)", a.Role, a.Address.Hex())
}

// NamedAccountTable maps role -> network -> value. It is immutable once built.
type NamedAccountTable struct {
	roles map[string]map[string]AccountValue
}

// NewNamedAccountTable copies the given mapping into a table
func NewNamedAccountTable(roles map[string]map[string]AccountValue) *NamedAccountTable {
	t := &NamedAccountTable{roles: make(map[string]map[string]AccountValue, len(roles))}
	for role, byNetwork := range roles {
		cp := make(map[string]AccountValue, len(byNetwork))
		for network, v := range byNetwork {
			cp[network] = v
		}
		t.roles[role] = cp
	}
	return t
}

// Lookup returns the value for role on network. roleKnown is false when the
// role is absent from the table, entryKnown when the role has no cell for the
// network.
func (t *NamedAccountTable) Lookup(role, network string) (v AccountValue, roleKnown, entryKnown bool) {
	byNetwork, ok := t.roles[role]
	if !ok {
		return AccountValue{}, false, false
	}
	v, ok = byNetwork[network]
	return v, true, ok
}

// Roles returns all role names in sorted order
func (t *NamedAccountTable) Roles() []string {
	out := make([]string, 0, len(t.roles))
	for role := range t.roles {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}
