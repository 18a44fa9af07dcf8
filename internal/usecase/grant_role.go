package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
)

var roleManagementMethods = []string{"hasRole", "getRoleAdmin", "grantRole", "revokeRole"}

// RoleGrantor grants and revokes AccessControl roles on deployed instances.
// Both operations are idempotent: the chain is checked first and nothing is
// sent when the member already has the requested state.
type RoleGrantor struct {
	artifacts ArtifactRepository
	encoder   ABIEncoder
	log       *slog.Logger
}

// NewRoleGrantor creates a new RoleGrantor
func NewRoleGrantor(artifacts ArtifactRepository, encoder ABIEncoder, log *slog.Logger) *RoleGrantor {
	return &RoleGrantor{artifacts: artifacts, encoder: encoder, log: log}
}

// RoleParams describes a grant or revoke with references already resolved
type RoleParams struct {
	Step     models.StepID
	Instance string
	Role     string
	Member   common.Address
	From     models.Account
}

// RoleResult is the ledger-facing result of a role change
type RoleResult struct {
	Grant  *models.RoleGrant
	TxHash common.Hash
	NoOp   bool
}

// Grant gives role to member
func (g *RoleGrantor) Grant(ctx context.Context, t Target, p RoleParams) (*RoleResult, error) {
	return g.apply(ctx, t, p, true)
}

// Revoke takes role away from member
func (g *RoleGrantor) Revoke(ctx context.Context, t Target, p RoleParams) (*RoleResult, error) {
	return g.apply(ctx, t, p, false)
}

func (g *RoleGrantor) apply(ctx context.Context, t Target, p RoleParams, grant bool) (*RoleResult, error) {
	rec, err := t.Ledger.Get(ctx, p.Instance)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%s on %s: %w", p.Instance, t.Network.Name, domain.ErrNotDeployed)
	}
	if err != nil {
		return nil, err
	}

	artifact, err := g.artifacts.Get(ctx, rec.Contract)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact %s: %w", rec.Contract, err)
	}
	if !artifact.HasMethods(roleManagementMethods...) {
		return nil, &domain.AuthorizationError{Instance: p.Instance, Role: p.Role, Reason: domain.AuthNoRoleManagement}
	}

	roleID := models.RoleID(p.Role)
	key := models.RoleGrantKey{Instance: p.Instance, Role: roleID, Member: p.Member}
	result := &RoleResult{
		Grant: &models.RoleGrant{RoleGrantKey: key, RoleName: p.Role, Held: grant, Step: p.Step},
	}

	held, err := g.hasRole(ctx, t, artifact, rec.Address, roleID, p.Member)
	if err != nil {
		return nil, err
	}
	if held == grant {
		known, err := t.Ledger.HasRoleGrant(ctx, key)
		if err != nil {
			return nil, err
		}
		if known != held {
			g.log.Info("role state found on chain differs from ledger, recording chain state",
				"network", t.Network.Name, "instance", p.Instance, "role", p.Role, "member", p.Member.Hex(), "held", held)
		}
		result.NoOp = true
		return result, nil
	}

	adminRole, err := g.roleAdmin(ctx, t, artifact, rec.Address, roleID)
	if err != nil {
		return nil, err
	}
	isAdmin, err := g.hasRole(ctx, t, artifact, rec.Address, adminRole, p.From.Address)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return nil, &domain.AuthorizationError{Instance: p.Instance, Role: p.Role, Caller: p.From.Address, Reason: domain.AuthNotAdmin}
	}

	method := "grantRole"
	if !grant {
		method = "revokeRole"
	}
	calldata, err := g.encoder.EncodeCall(&artifact.ABI, method, []any{roleID, p.Member})
	if err != nil {
		return nil, err
	}
	receipt, err := t.Chain.Send(ctx, TxRequest{From: p.From, To: &rec.Address, Data: calldata})
	if err != nil {
		return nil, fmt.Errorf("failed to %s %s on %s: %w", method, p.Role, p.Instance, err)
	}
	g.log.Info("role updated", "network", t.Network.Name, "instance", p.Instance, "method", method,
		"role", p.Role, "member", p.Member.Hex(), "tx", receipt.Hash.Hex())

	result.TxHash = receipt.Hash
	return result, nil
}

func (g *RoleGrantor) hasRole(ctx context.Context, t Target, artifact *models.Artifact, at common.Address, role common.Hash, member common.Address) (bool, error) {
	out, err := g.read(ctx, t, &artifact.ABI, at, "hasRole", role, member)
	if err != nil {
		return false, err
	}
	held, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("hasRole returned %T", out[0])
	}
	return held, nil
}

func (g *RoleGrantor) roleAdmin(ctx context.Context, t Target, artifact *models.Artifact, at common.Address, role common.Hash) (common.Hash, error) {
	out, err := g.read(ctx, t, &artifact.ABI, at, "getRoleAdmin", role)
	if err != nil {
		return common.Hash{}, err
	}
	admin, ok := out[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("getRoleAdmin returned %T", out[0])
	}
	return common.Hash(admin), nil
}

func (g *RoleGrantor) read(ctx context.Context, t Target, contractABI *abi.ABI, at common.Address, method string, args ...any) ([]any, error) {
	calldata, err := g.encoder.EncodeCall(contractABI, method, args)
	if err != nil {
		return nil, err
	}
	raw, err := t.Chain.Call(ctx, at, calldata)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return out, nil
}
