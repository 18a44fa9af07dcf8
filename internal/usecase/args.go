package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
)

// argResolver replaces $role and @Instance references in step arguments
type argResolver struct {
	network  string
	accounts map[string]models.Account
	ledger   Ledger
}

func (r *argResolver) resolve(ctx context.Context, args []any) ([]any, error) {
	if args == nil {
		return nil, nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		v, err := r.resolveValue(ctx, a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *argResolver) resolveValue(ctx context.Context, a any) (any, error) {
	switch v := a.(type) {
	case string:
		return r.resolveString(ctx, v)
	case []any:
		return r.resolve(ctx, v)
	default:
		return a, nil
	}
}

func (r *argResolver) resolveString(ctx context.Context, s string) (any, error) {
	if role, ok := models.AccountRef(s); ok {
		acct, found := r.accounts[role]
		if !found {
			return nil, &domain.UnresolvedAccountError{Role: role, Network: r.network, Reason: domain.UnresolvedUnknownRole}
		}
		return acct.Address, nil
	}
	if instance, ok := models.InstanceRef(s); ok {
		rec, err := r.ledger.Get(ctx, instance)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("argument %s: %s on %s: %w", s, instance, r.network, domain.ErrNotDeployed)
		}
		if err != nil {
			return nil, err
		}
		return rec.Address, nil
	}
	return s, nil
}

func (r *argResolver) resolveCall(ctx context.Context, call *models.MethodCall) (*models.MethodCall, error) {
	if call == nil {
		return nil, nil
	}
	args, err := r.resolve(ctx, call.Args)
	if err != nil {
		return nil, err
	}
	return &models.MethodCall{Method: call.Method, Args: args}, nil
}

// normalizeArgs converts resolved arguments to JSON-friendly values with a
// single canonical spelling.
func normalizeArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = normalizeArg(a)
	}
	return out
}

func normalizeArg(a any) any {
	switch v := a.(type) {
	case common.Address:
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case []byte:
		return hexutil.Encode(v)
	case *big.Int:
		return v.String()
	case []any:
		return normalizeArgs(v)
	default:
		return a
	}
}

func stringifyArgs(args []any) []string {
	out := make([]string, 0, len(args))
	for _, a := range normalizeArgs(args) {
		if s, ok := a.(string); ok {
			out = append(out, s)
			continue
		}
		encoded, err := json.Marshal(a)
		if err != nil {
			out = append(out, fmt.Sprint(a))
			continue
		}
		out = append(out, string(encoded))
	}
	return out
}
