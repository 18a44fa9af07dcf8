package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/pebble"
	"github.com/gofrs/flock"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// PebbleDir is the database directory of the pebble backend
const PebbleDir = "ledger.db"

var (
	chainIDKey   = []byte("meta/chainId")
	recordPrefix = []byte("record/")
	stepPrefix   = []byte("step/")
	grantPrefix  = []byte("grant/")
	callPrefix   = []byte("call/")
)

// PebbleLedger stores a partition in a pebble key-value store. A step
// outcome is written as one synced batch.
type PebbleLedger struct {
	network string
	db      *pebble.DB
	lock    *flock.Flock
}

// OpenPebbleLedger locks and opens the partition in dir
func OpenPebbleLedger(network *models.Network, dir string) (*PebbleLedger, error) {
	lock, err := acquireLock(network.Name, dir)
	if err != nil {
		return nil, err
	}

	db, err := pebble.Open(filepath.Join(dir, PebbleDir), &pebble.Options{})
	if err != nil {
		_ = lock.Unlock()
		return nil, &domain.LedgerUnavailableError{Network: network.Name, Op: "open", Err: err}
	}

	l := &PebbleLedger{network: network.Name, db: db, lock: lock}
	if err := l.checkChainID(network.ChainID); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

func (l *PebbleLedger) checkChainID(chainID uint64) error {
	raw, found, err := l.get(chainIDKey)
	if err != nil {
		return err
	}
	if !found {
		if err := l.db.Set(chainIDKey, []byte(strconv.FormatUint(chainID, 10)), pebble.Sync); err != nil {
			return l.unavailable("write chain id", err)
		}
		return nil
	}
	stored, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil || stored != chainID {
		return domain.NewConfigurationError(l.network+"/"+PebbleDir, "ledger belongs to chain %s, network %s is chain %d", raw, l.network, chainID)
	}
	return nil
}

func (l *PebbleLedger) Get(ctx context.Context, instance string) (*models.DeploymentRecord, error) {
	var rec models.DeploymentRecord
	found, err := l.getJSON(recordKey(instance), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("record %s: %w", instance, domain.ErrNotFound)
	}
	return &rec, nil
}

func (l *PebbleLedger) HasApplied(ctx context.Context, id models.StepID) (bool, error) {
	_, found, err := l.get(stepKey(id))
	return found, err
}

func (l *PebbleLedger) Applied(ctx context.Context) ([]*models.AppliedStep, error) {
	var out []*models.AppliedStep
	err := l.scan(stepPrefix, func(value []byte) error {
		var a models.AppliedStep
		if err := json.Unmarshal(value, &a); err != nil {
			return err
		}
		out = append(out, &a)
		return nil
	})
	return out, err
}

func (l *PebbleLedger) HasRoleGrant(ctx context.Context, key models.RoleGrantKey) (bool, error) {
	var g models.RoleGrant
	found, err := l.getJSON(grantKey(key), &g)
	if err != nil {
		return false, err
	}
	return found && g.Held, nil
}

func (l *PebbleLedger) Commit(ctx context.Context, outcome *models.StepOutcome) error {
	last, err := l.lastApplied()
	if err != nil {
		return err
	}
	if err := checkOrder(func() (models.StepID, bool) { return last, !last.IsZero() }, outcome); err != nil {
		return err
	}

	batch := l.db.NewBatch()
	defer batch.Close()

	if err := l.writeOutcome(batch, outcome); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return l.unavailable("commit", err)
	}
	return nil
}

func (l *PebbleLedger) Snapshot(ctx context.Context) (*models.LedgerSnapshot, error) {
	snap := &models.LedgerSnapshot{Network: l.network}

	raw, found, err := l.get(chainIDKey)
	if err != nil {
		return nil, err
	}
	if found {
		snap.ChainID, _ = strconv.ParseUint(string(raw), 10, 64)
	}

	if err := l.scan(recordPrefix, func(v []byte) error {
		var r models.DeploymentRecord
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		snap.Records = append(snap.Records, &r)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := l.scan(grantPrefix, func(v []byte) error {
		var g models.RoleGrant
		if err := json.Unmarshal(v, &g); err != nil {
			return err
		}
		snap.Grants = append(snap.Grants, &g)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := l.scan(callPrefix, func(v []byte) error {
		var c models.CallRecord
		if err := json.Unmarshal(v, &c); err != nil {
			return err
		}
		snap.Calls = append(snap.Calls, &c)
		return nil
	}); err != nil {
		return nil, err
	}
	applied, err := l.Applied(ctx)
	if err != nil {
		return nil, err
	}
	snap.Applied = applied
	return snap, nil
}

func (l *PebbleLedger) Import(ctx context.Context, snapshot *models.LedgerSnapshot) error {
	last, err := l.lastApplied()
	if err != nil {
		return err
	}
	if !last.IsZero() {
		return fmt.Errorf("cannot import into a ledger with applied steps (last %s)", last)
	}

	batch := l.db.NewBatch()
	defer batch.Close()

	var prev models.StepID
	for _, a := range snapshot.Applied {
		if !prev.IsZero() && !prev.Less(a.ID) {
			return fmt.Errorf("snapshot steps out of order at %s", a.ID)
		}
		prev = a.ID
		if err := l.setJSON(batch, stepKey(a.ID), a); err != nil {
			return err
		}
	}
	for _, r := range snapshot.Records {
		if err := l.setJSON(batch, recordKey(r.Instance), r); err != nil {
			return err
		}
	}
	for _, g := range snapshot.Grants {
		if err := l.setJSON(batch, grantKey(g.RoleGrantKey), g); err != nil {
			return err
		}
	}
	for _, c := range snapshot.Calls {
		if err := l.setJSON(batch, callKey(c.Step), c); err != nil {
			return err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return l.unavailable("import", err)
	}
	return nil
}

// Close closes the database and releases the partition lock
func (l *PebbleLedger) Close() error {
	return errors.Join(l.db.Close(), l.lock.Unlock())
}

func (l *PebbleLedger) writeOutcome(batch *pebble.Batch, outcome *models.StepOutcome) error {
	if outcome.Record != nil {
		if err := l.setJSON(batch, recordKey(outcome.Record.Instance), outcome.Record); err != nil {
			return err
		}
	}
	if outcome.Grant != nil {
		if err := l.setJSON(batch, grantKey(outcome.Grant.RoleGrantKey), outcome.Grant); err != nil {
			return err
		}
	}
	if outcome.Call != nil {
		if err := l.setJSON(batch, callKey(outcome.Step.ID), outcome.Call); err != nil {
			return err
		}
	}
	return l.setJSON(batch, stepKey(outcome.Step.ID), &outcome.Step)
}

func (l *PebbleLedger) lastApplied() (models.StepID, error) {
	iter, err := l.db.NewIter(prefixIterOptions(stepPrefix))
	if err != nil {
		return models.StepID{}, l.unavailable("iterate", err)
	}
	defer iter.Close()

	if !iter.Last() {
		return models.StepID{}, nil
	}
	var a models.AppliedStep
	if err := json.Unmarshal(iter.Value(), &a); err != nil {
		return models.StepID{}, l.unavailable("decode", err)
	}
	return a.ID, nil
}

func (l *PebbleLedger) get(key []byte) ([]byte, bool, error) {
	dat, closer, err := l.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, l.unavailable("read", err)
	}
	out := make([]byte, len(dat))
	copy(out, dat)
	if err := closer.Close(); err != nil {
		return nil, false, l.unavailable("read", err)
	}
	return out, true, nil
}

func (l *PebbleLedger) getJSON(key []byte, v any) (bool, error) {
	raw, found, err := l.get(key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, l.unavailable("decode", err)
	}
	return true, nil
}

func (l *PebbleLedger) setJSON(batch *pebble.Batch, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return l.unavailable("encode", err)
	}
	if err := batch.Set(key, data, nil); err != nil {
		return l.unavailable("write", err)
	}
	return nil
}

func (l *PebbleLedger) scan(prefix []byte, fn func(value []byte) error) error {
	iter, err := l.db.NewIter(prefixIterOptions(prefix))
	if err != nil {
		return l.unavailable("iterate", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return l.unavailable("decode", err)
		}
	}
	if err := iter.Error(); err != nil {
		return l.unavailable("iterate", err)
	}
	return nil
}

func (l *PebbleLedger) unavailable(op string, err error) error {
	return &domain.LedgerUnavailableError{Network: l.network, Op: op, Err: err}
}

func prefixIterOptions(prefix []byte) *pebble.IterOptions {
	limit := make([]byte, len(prefix))
	copy(limit, prefix)
	limit[len(limit)-1]++
	return &pebble.IterOptions{LowerBound: prefix, UpperBound: limit}
}

func recordKey(instance string) []byte {
	return append(append([]byte{}, recordPrefix...), instance...)
}

// stepKey zero-pads both parts so byte order equals step order
func stepKey(id models.StepID) []byte {
	return []byte(fmt.Sprintf("%s%020d/%010d", stepPrefix, id.Seq, id.Index))
}

func callKey(id models.StepID) []byte {
	return []byte(fmt.Sprintf("%s%020d/%010d", callPrefix, id.Seq, id.Index))
}

func grantKey(key models.RoleGrantKey) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/%s", grantPrefix, key.Instance, key.Role.Hex(), key.Member.Hex()))
}

var _ usecase.Ledger = (*PebbleLedger)(nil)
