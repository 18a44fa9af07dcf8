package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// MemoryLedger keeps a partition in memory only. It backs networks whose
// deployments must not be persisted.
type MemoryLedger struct {
	network string
	mu      sync.RWMutex
	state   *state
}

// NewMemoryLedger creates an empty in-memory partition
func NewMemoryLedger(network string, chainID uint64) *MemoryLedger {
	return &MemoryLedger{network: network, state: newState(chainID)}
}

func (l *MemoryLedger) Get(ctx context.Context, instance string) (*models.DeploymentRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.state.Records[instance]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", instance, domain.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (l *MemoryLedger) HasApplied(ctx context.Context, id models.StepID) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.hasApplied(id), nil
}

func (l *MemoryLedger) Applied(ctx context.Context) ([]*models.AppliedStep, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.clone().Applied, nil
}

func (l *MemoryLedger) HasRoleGrant(ctx context.Context, key models.RoleGrantKey) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.hasRoleGrant(key), nil
}

func (l *MemoryLedger) Commit(ctx context.Context, outcome *models.StepOutcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.state.clone()
	if err := next.apply(outcome); err != nil {
		return err
	}
	l.state = next
	return nil
}

func (l *MemoryLedger) Snapshot(ctx context.Context) (*models.LedgerSnapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.snapshot(l.network), nil
}

func (l *MemoryLedger) Import(ctx context.Context, snapshot *models.LedgerSnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.importSnapshot(snapshot)
}

// Close is a no-op; the partition lives as long as the process
func (l *MemoryLedger) Close() error { return nil }

var _ usecase.Ledger = (*MemoryLedger)(nil)
