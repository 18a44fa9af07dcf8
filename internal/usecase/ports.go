package usecase

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
)

// Ledger is one network's partition of the deployment ledger. Get returns
// domain.ErrNotFound when the instance has no record. Commit writes a whole
// step outcome atomically and rejects outcomes that are not strictly after
// the last applied step.
type Ledger interface {
	Get(ctx context.Context, instance string) (*models.DeploymentRecord, error)
	HasApplied(ctx context.Context, id models.StepID) (bool, error)
	Applied(ctx context.Context) ([]*models.AppliedStep, error)
	HasRoleGrant(ctx context.Context, key models.RoleGrantKey) (bool, error)
	Commit(ctx context.Context, outcome *models.StepOutcome) error
	Snapshot(ctx context.Context) (*models.LedgerSnapshot, error)
	Import(ctx context.Context, snapshot *models.LedgerSnapshot) error
	Close() error
}

// LedgerFactory opens the ledger partition of a network, taking its
// single-writer lock.
type LedgerFactory interface {
	Open(ctx context.Context, network *models.Network) (Ledger, error)
}

// StepSource loads the ordered migration steps
type StepSource interface {
	Load(ctx context.Context) ([]*models.MigrationStep, error)
}

// ArtifactRepository loads compiled contracts by name
type ArtifactRepository interface {
	Get(ctx context.Context, name string) (*models.Artifact, error)
}

// ABIEncoder packs loosely typed arguments (YAML scalars, addresses, lists)
// into calldata, coercing each to its ABI input type.
type ABIEncoder interface {
	EncodeConstructor(contractABI *abi.ABI, args []any) ([]byte, error)
	EncodeCall(contractABI *abi.ABI, method string, args []any) ([]byte, error)
}

// ChainConnector connects to a network's RPC endpoint
type ChainConnector interface {
	Connect(ctx context.Context, network *models.Network) (ChainClient, error)
}

// ChainClient sends transactions and reads state on one network. Send holds
// the network's signer for the whole send-and-confirm cycle, so only one
// transaction is in flight at a time.
type ChainClient interface {
	ChainID() uint64
	Send(ctx context.Context, req TxRequest) (*TxReceipt, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	ImplementationOf(ctx context.Context, proxy common.Address) (common.Address, error)
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)
	Close()
}

// TxRequest is a transaction to sign and send. A nil To creates a contract.
type TxRequest struct {
	From  models.Account
	To    *common.Address
	Data  []byte
	Value *big.Int
}

// TxReceipt is a confirmed transaction
type TxReceipt struct {
	Hash            common.Hash
	ContractAddress common.Address
	BlockNumber     uint64
	GasUsed         uint64
}

// Progress tracking interfaces

// ProgressEvent represents a progress update
type ProgressEvent struct {
	Network  string
	Stage    string
	Current  int
	Total    int
	Message  string
	Spinner  bool
	Metadata interface{}
}

// ProgressSink receives progress events
type ProgressSink interface {
	OnProgress(ctx context.Context, event ProgressEvent)
	Info(message string)
	Error(message string)
}

// Target is the per-network context a step executes against
type Target struct {
	Network *models.Network
	Ledger  Ledger
	Chain   ChainClient
}
