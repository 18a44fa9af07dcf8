package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DeploymentRecord is the ledger entry for one instance on one network.
// Records are created by a deploy step and updated by later upgrade and call
// steps; they are never deleted.
type DeploymentRecord struct {
	Instance       string         `json:"instance"`
	Contract       string         `json:"contract"`
	Address        common.Address `json:"address"`
	Proxy          bool           `json:"proxy"`
	Implementation common.Address `json:"implementation"`
	MetadataHash   common.Hash    `json:"metadataHash"`
	ABIHash        common.Hash    `json:"abiHash"`
	LastApplied    StepID         `json:"lastApplied"`
	DeployTx       common.Hash    `json:"deployTx"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Clone returns a copy safe to hand out of a store
func (r *DeploymentRecord) Clone() *DeploymentRecord {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// RoleGrantKey identifies one (instance, role, member) triple
type RoleGrantKey struct {
	Instance string         `json:"instance"`
	Role     common.Hash    `json:"role"`
	Member   common.Address `json:"member"`
}

// RoleGrant records whether a role is held by a member
type RoleGrant struct {
	RoleGrantKey
	RoleName string `json:"roleName"`
	Held     bool   `json:"held"`
	Step     StepID `json:"step"`
}

// CallRecord logs a method call executed by a step
type CallRecord struct {
	Step     StepID      `json:"step"`
	Instance string      `json:"instance"`
	Method   string      `json:"method"`
	Args     []string    `json:"args,omitempty"`
	TxHash   common.Hash `json:"txHash"`
}

// AppliedStep marks a step as applied on a network
type AppliedStep struct {
	ID        StepID        `json:"id"`
	Tag       string        `json:"tag"`
	Action    ActionKind    `json:"action"`
	Instance  string        `json:"instance"`
	TxHashes  []common.Hash `json:"txHashes,omitempty"`
	NoOp      bool          `json:"noop,omitempty"`
	AppliedAt time.Time     `json:"appliedAt"`
}

// StepOutcome is everything one step writes to the ledger. It is committed
// as a single atomic unit.
type StepOutcome struct {
	Step   AppliedStep
	Record *DeploymentRecord
	Grant  *RoleGrant
	Call   *CallRecord
}

// LedgerSnapshot is the full content of one ledger partition
type LedgerSnapshot struct {
	Network string              `json:"network"`
	ChainID uint64              `json:"chainId"`
	Records []*DeploymentRecord `json:"records"`
	Grants  []*RoleGrant        `json:"grants"`
	Calls   []*CallRecord       `json:"calls"`
	Applied []*AppliedStep      `json:"applied"`
}
