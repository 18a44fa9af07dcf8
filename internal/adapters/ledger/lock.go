package ledger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
)

// LockFile is the advisory lock guarding a partition directory
const LockFile = ".lock"

// acquireLock takes the single-writer lock of a partition directory without
// waiting. A held lock yields domain.ErrLedgerLocked.
func acquireLock(network, dir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &domain.LedgerUnavailableError{Network: network, Op: "create directory", Err: err}
	}
	lock := flock.New(filepath.Join(dir, LockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, &domain.LedgerUnavailableError{Network: network, Op: "lock", Err: err}
	}
	if !locked {
		return nil, fmt.Errorf("%s (%s): %w", network, dir, domain.ErrLedgerLocked)
	}
	return lock, nil
}
