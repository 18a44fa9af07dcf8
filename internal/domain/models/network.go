package models

import (
	"math/big"
	"sort"
	"time"
)

// SignerType selects how transactions on a network are signed
type SignerType string

const (
	// SignerNamed derives the signer from the step's `from` account value
	SignerNamed       SignerType = "named"
	SignerPrivateKey  SignerType = "private_key"
	SignerLedger      SignerType = "ledger"
	SignerImpersonate SignerType = "impersonate"
	SignerNone        SignerType = "none"
)

// SignerSource describes the key material for a network
type SignerSource struct {
	Type           SignerType `json:"type"`
	PrivateKey     string     `json:"-"`
	DerivationPath string     `json:"derivationPath,omitempty"`
}

// GasPrice is either "auto" (node suggestion) or a fixed wei value
type GasPrice struct {
	Wei *big.Int
}

// Auto reports whether the node's suggested price is used
func (g GasPrice) Auto() bool { return g.Wei == nil }

func (g GasPrice) String() string {
	if g.Auto() {
		return "auto"
	}
	return g.Wei.String()
}

// EIP170CodeSizeLimit is the maximum runtime bytecode size on enforcing networks
const EIP170CodeSizeLimit = 24576

// Network is a static description of one supported chain
type Network struct {
	Name                string        `json:"name"`
	ChainID             uint64        `json:"chainId"`
	RPCURL              string        `json:"rpcUrl"`
	Signer              SignerSource  `json:"signer"`
	Persistent          bool          `json:"persistent"`
	Live                bool          `json:"live"`
	ForkOf              string        `json:"forkOf,omitempty"`
	GasPrice            GasPrice      `json:"-"`
	GasLimit            uint64        `json:"gasLimit,omitempty"`
	Confirmations       uint64        `json:"confirmations"`
	ConfirmTimeout      time.Duration `json:"confirmTimeout"`
	EnforceContractSize bool          `json:"enforceContractSize"`
}

// NetworkRegistry is the immutable set of configured networks
type NetworkRegistry struct {
	networks map[string]*Network
	names    []string
}

// NewNetworkRegistry builds a registry. Validation happens in the loader.
func NewNetworkRegistry(networks []*Network) *NetworkRegistry {
	r := &NetworkRegistry{networks: make(map[string]*Network, len(networks))}
	for _, n := range networks {
		r.networks[n.Name] = n
		r.names = append(r.names, n.Name)
	}
	sort.Strings(r.names)
	return r
}

// Lookup returns the named network
func (r *NetworkRegistry) Lookup(name string) (*Network, bool) {
	n, ok := r.networks[name]
	return n, ok
}

// Names returns the configured network names in sorted order
func (r *NetworkRegistry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// All returns every network sorted by name
func (r *NetworkRegistry) All() []*Network {
	out := make([]*Network, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.networks[name])
	}
	return out
}

// Has reports whether name is a configured network
func (r *NetworkRegistry) Has(name string) bool {
	_, ok := r.networks[name]
	return ok
}
