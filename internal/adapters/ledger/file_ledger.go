package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

const (
	// LedgerFile holds the JSON partition of the file backend
	LedgerFile = "ledger.json"
	// ChainIDFile records the chain id next to the deployments, as hardhat-deploy does
	ChainIDFile = ".chainId"
)

// FileLedger stores a partition as one JSON document. Every commit writes a
// temporary file and renames it over the previous one, so a crash leaves
// either the old or the new document.
type FileLedger struct {
	network string
	dir     string
	mu      sync.RWMutex
	state   *state
	lock    *flock.Flock
}

// OpenFileLedger locks and loads the partition in dir
func OpenFileLedger(network *models.Network, dir string) (*FileLedger, error) {
	lock, err := acquireLock(network.Name, dir)
	if err != nil {
		return nil, err
	}

	l := &FileLedger{network: network.Name, dir: dir, lock: lock}
	if err := l.load(network.ChainID); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return l, nil
}

func (l *FileLedger) path() string { return filepath.Join(l.dir, LedgerFile) }

func (l *FileLedger) load(chainID uint64) error {
	if err := checkChainIDFile(l.network, l.dir, chainID); err != nil {
		return err
	}

	data, err := os.ReadFile(l.path())
	if errors.Is(err, os.ErrNotExist) {
		l.state = newState(chainID)
		return nil
	}
	if err != nil {
		return l.unavailable("read", err)
	}

	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return l.unavailable("decode", err)
	}
	if s.Records == nil {
		s.Records = make(map[string]*models.DeploymentRecord)
	}
	if s.ChainID != 0 && s.ChainID != chainID {
		return domain.NewConfigurationError(l.path(), "ledger belongs to chain %d, network %s is chain %d", s.ChainID, l.network, chainID)
	}
	s.ChainID = chainID
	l.state = &s
	return nil
}

func (l *FileLedger) Get(ctx context.Context, instance string) (*models.DeploymentRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.state.Records[instance]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", instance, domain.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (l *FileLedger) HasApplied(ctx context.Context, id models.StepID) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.hasApplied(id), nil
}

func (l *FileLedger) Applied(ctx context.Context) ([]*models.AppliedStep, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.clone().Applied, nil
}

func (l *FileLedger) HasRoleGrant(ctx context.Context, key models.RoleGrantKey) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.hasRoleGrant(key), nil
}

func (l *FileLedger) Commit(ctx context.Context, outcome *models.StepOutcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.state.clone()
	if err := next.apply(outcome); err != nil {
		return err
	}
	if err := l.save(next); err != nil {
		return err
	}
	l.state = next
	return nil
}

func (l *FileLedger) Snapshot(ctx context.Context) (*models.LedgerSnapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.snapshot(l.network), nil
}

func (l *FileLedger) Import(ctx context.Context, snapshot *models.LedgerSnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.state.clone()
	if err := next.importSnapshot(snapshot); err != nil {
		return err
	}
	if err := l.save(next); err != nil {
		return err
	}
	l.state = next
	return nil
}

// Close releases the partition lock
func (l *FileLedger) Close() error {
	return l.lock.Unlock()
}

// save syncs the new document to a temporary file and renames it into place
// only after the chain id file exists, so a failure leaves the partition on
// disk matching the in-memory state.
func (l *FileLedger) save(s *state) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return l.unavailable("encode", err)
	}

	tmpPath := l.path() + ".tmp"
	if err := writeSynced(tmpPath, data); err != nil {
		_ = os.Remove(tmpPath)
		return l.unavailable("write", err)
	}
	if err := writeChainIDFile(l.network, l.dir, s.ChainID); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, l.path()); err != nil {
		return l.unavailable("rename", err)
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (l *FileLedger) unavailable(op string, err error) error {
	return &domain.LedgerUnavailableError{Network: l.network, Op: op, Err: err}
}

func checkChainIDFile(network, dir string, chainID uint64) error {
	data, err := os.ReadFile(filepath.Join(dir, ChainIDFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &domain.LedgerUnavailableError{Network: network, Op: "read chain id", Err: err}
	}
	stored, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return domain.NewConfigurationError(filepath.Join(dir, ChainIDFile), "malformed chain id %q", strings.TrimSpace(string(data)))
	}
	if stored != chainID {
		return domain.NewConfigurationError(filepath.Join(dir, ChainIDFile), "deployments belong to chain %d, network %s is chain %d", stored, network, chainID)
	}
	return nil
}

func writeChainIDFile(network, dir string, chainID uint64) error {
	path := filepath.Join(dir, ChainIDFile)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(strconv.FormatUint(chainID, 10)), 0644); err != nil {
		return &domain.LedgerUnavailableError{Network: network, Op: "write chain id", Err: err}
	}
	return nil
}

var _ usecase.Ledger = (*FileLedger)(nil)
