package adapters

import (
	"github.com/google/wire"

	"github.com/bancorprotocol/carbon-migrate/internal/adapters/blockchain"
	"github.com/bancorprotocol/carbon-migrate/internal/adapters/ledger"
	"github.com/bancorprotocol/carbon-migrate/internal/adapters/steps"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// LedgerSet provides the deployment ledger
var LedgerSet = wire.NewSet(
	ledger.NewFactory,
	wire.Bind(new(usecase.LedgerFactory), new(*ledger.Factory)),
)

// StepsSet provides the migration step source
var StepsSet = wire.NewSet(
	steps.NewYAMLSource,
	wire.Bind(new(usecase.StepSource), new(*steps.YAMLSource)),
)

// BlockchainSet provides artifacts, calldata encoding and RPC clients
var BlockchainSet = wire.NewSet(
	blockchain.NewArtifactRepository,
	wire.Bind(new(usecase.ArtifactRepository), new(*blockchain.ArtifactRepository)),

	blockchain.NewEncoder,
	wire.Bind(new(usecase.ABIEncoder), new(*blockchain.Encoder)),

	blockchain.NewConnector,
	wire.Bind(new(usecase.ChainConnector), new(*blockchain.Connector)),
)

// AllAdapters includes all adapter sets
var AllAdapters = wire.NewSet(
	LedgerSet,
	StepsSet,
	BlockchainSet,
)
