package domain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Sentinel errors for domain operations
var (
	// ErrNotFound is returned when a requested resource doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyDeployed is returned when deploying an instance that already has a record
	ErrAlreadyDeployed = errors.New("instance already deployed")

	// ErrNotDeployed is returned when an operation needs a record that doesn't exist
	ErrNotDeployed = errors.New("instance not deployed")

	// ErrLedgerLocked is returned when another run holds the ledger partition
	ErrLedgerLocked = errors.New("ledger is locked by another run")

	// ErrRunAborted is returned when a run is cancelled between steps
	ErrRunAborted = errors.New("migration run aborted")

	// ErrInvalidAddress is returned when an Ethereum address is invalid
	ErrInvalidAddress = errors.New("invalid address")
)

// ConfigurationError reports a malformed network, account, project or step
// definition. It is raised before any chain interaction.
type ConfigurationError struct {
	Source string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Source != "" {
		msg += " in " + e.Source
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError builds a ConfigurationError with a formatted reason
func NewConfigurationError(source, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Source: source, Reason: fmt.Sprintf(format, args...)}
}

// UnresolvedReason distinguishes why a named account has no address
type UnresolvedReason string

const (
	UnresolvedUnknownRole   UnresolvedReason = "unknown role"
	UnresolvedNotApplicable UnresolvedReason = "not applicable to this network"
	UnresolvedNotAssigned   UnresolvedReason = "not yet assigned"
)

// UnresolvedAccountError is returned when a role has no address on a network
type UnresolvedAccountError struct {
	Role    string
	Network string
	Reason  UnresolvedReason
}

func (e *UnresolvedAccountError) Error() string {
	return fmt.Sprintf("account %q is unresolved on network %s: %s", e.Role, e.Network, e.Reason)
}

// TxFailureKind classifies an on-chain failure
type TxFailureKind string

const (
	TxReverted    TxFailureKind = "reverted"
	TxUnderpriced TxFailureKind = "underpriced"
	TxRejected    TxFailureKind = "rejected"
	TxTimeout     TxFailureKind = "timeout"
	TxSend        TxFailureKind = "send"
)

// TransactionError wraps a failed transaction
type TransactionError struct {
	Kind   TxFailureKind
	TxHash common.Hash
	Err    error
}

func (e *TransactionError) Error() string {
	msg := fmt.Sprintf("transaction %s", e.Kind)
	if e.TxHash != (common.Hash{}) {
		msg += " (" + e.TxHash.Hex() + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransactionError) Unwrap() error { return e.Err }

// LedgerUnavailableError reports a ledger storage failure. A run that sees
// one must stop: the applied state is unknown.
type LedgerUnavailableError struct {
	Network string
	Op      string
	Err     error
}

func (e *LedgerUnavailableError) Error() string {
	return fmt.Sprintf("ledger for %s unavailable during %s: %v", e.Network, e.Op, e.Err)
}

func (e *LedgerUnavailableError) Unwrap() error { return e.Err }

// AuthorizationReason distinguishes the two authorization failures
type AuthorizationReason string

const (
	AuthNoRoleManagement AuthorizationReason = "instance does not expose role management"
	AuthNotAdmin         AuthorizationReason = "caller lacks the admin role"
)

// AuthorizationError is returned when a role change cannot be performed
type AuthorizationError struct {
	Instance string
	Role     string
	Caller   common.Address
	Reason   AuthorizationReason
}

func (e *AuthorizationError) Error() string {
	if e.Reason == AuthNotAdmin {
		return fmt.Sprintf("cannot change role %s on %s: %s (%s)", e.Role, e.Instance, e.Reason, e.Caller.Hex())
	}
	return fmt.Sprintf("cannot change role %s on %s: %s", e.Role, e.Instance, e.Reason)
}

// StepError attaches the failing step to an error so the operator always sees
// the sequence tag and instance name.
type StepError struct {
	Network  string
	Seq      uint64
	Index    int
	Tag      string
	Instance string
	Action   string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("[%s] step %s (%s %s) failed: %v", e.Network, e.Tag, e.Action, e.Instance, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
