package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/config"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
)

// InstanceDeployer deploys, upgrades and calls instances on one network
type InstanceDeployer struct {
	artifacts ArtifactRepository
	encoder   ABIEncoder
	proxy     config.ProxySettings
	log       *slog.Logger
	now       func() time.Time
}

// NewInstanceDeployer creates a new InstanceDeployer
func NewInstanceDeployer(
	cfg *config.RuntimeConfig,
	artifacts ArtifactRepository,
	encoder ABIEncoder,
	log *slog.Logger,
) *InstanceDeployer {
	return &InstanceDeployer{
		artifacts: artifacts,
		encoder:   encoder,
		proxy:     cfg.Project.Proxy,
		log:       log,
		now:       time.Now,
	}
}

// DeployParams describes a deploy action with references already resolved
type DeployParams struct {
	Step     models.StepID
	Instance string
	Contract string
	Args     []any
	From     models.Account
	// Init overrides the default initializer; Method "-" disables it
	Init *models.MethodCall
}

// UpgradeParams describes an upgrade action with references already resolved
type UpgradeParams struct {
	Step        models.StepID
	Instance    string
	Contract    string
	Args        []any
	From        models.Account
	PostUpgrade *models.MethodCall
}

// CallParams describes a method call on a deployed instance
type CallParams struct {
	Step     models.StepID
	Instance string
	Method   string
	Args     []any
	From     models.Account
}

// DeployResult is the ledger-facing result of a deployer operation
type DeployResult struct {
	Record   *models.DeploymentRecord
	Call     *models.CallRecord
	TxHashes []common.Hash
	NoOp     bool
}

// MetadataHash identifies what an implementation was built from: the
// creation bytecode followed by the canonical JSON of its constructor args.
func MetadataHash(artifact *models.Artifact, args []any) (common.Hash, error) {
	encodedArgs, err := json.Marshal(normalizeArgs(args))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode constructor args: %w", err)
	}
	return crypto.Keccak256Hash(artifact.Bytecode, encodedArgs), nil
}

// DeployProxy deploys an implementation behind a new proxy and runs the
// initializer through the proxy constructor.
func (d *InstanceDeployer) DeployProxy(ctx context.Context, t Target, p DeployParams) (*DeployResult, error) {
	if err := d.ensureAbsent(ctx, t, p.Instance); err != nil {
		return nil, err
	}

	artifact, err := d.loadArtifact(ctx, t.Network, p.Contract)
	if err != nil {
		return nil, err
	}
	admin, err := d.proxyAdmin(ctx, t)
	if err != nil {
		return nil, err
	}
	proxyArtifact, err := d.artifacts.Get(ctx, d.proxy.Contract)
	if err != nil {
		return nil, fmt.Errorf("failed to load proxy artifact %s: %w", d.proxy.Contract, err)
	}
	initData, err := d.initializerData(artifact, p.Init)
	if err != nil {
		return nil, err
	}
	metadataHash, err := MetadataHash(artifact, p.Args)
	if err != nil {
		return nil, err
	}

	impl, implTx, err := d.deployContract(ctx, t, p.From, artifact, p.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy %s implementation: %w", p.Instance, err)
	}
	d.log.Info("deployed implementation", "network", t.Network.Name, "instance", p.Instance, "address", impl.Hex())

	proxyAddr, proxyTx, err := d.deployContract(ctx, t, p.From, proxyArtifact, []any{impl, admin.Address, initData})
	if err != nil {
		return nil, fmt.Errorf("failed to deploy %s proxy: %w", p.Instance, err)
	}
	d.log.Info("deployed proxy", "network", t.Network.Name, "instance", p.Instance, "address", proxyAddr.Hex())

	return &DeployResult{
		Record: &models.DeploymentRecord{
			Instance:       p.Instance,
			Contract:       artifact.Name,
			Address:        proxyAddr,
			Proxy:          true,
			Implementation: impl,
			MetadataHash:   metadataHash,
			ABIHash:        artifact.ABIHash(),
			LastApplied:    p.Step,
			DeployTx:       proxyTx,
			UpdatedAt:      d.now().UTC(),
		},
		TxHashes: []common.Hash{implTx, proxyTx},
	}, nil
}

// Deploy deploys a plain, non-upgradeable contract
func (d *InstanceDeployer) Deploy(ctx context.Context, t Target, p DeployParams) (*DeployResult, error) {
	if err := d.ensureAbsent(ctx, t, p.Instance); err != nil {
		return nil, err
	}

	artifact, err := d.loadArtifact(ctx, t.Network, p.Contract)
	if err != nil {
		return nil, err
	}
	metadataHash, err := MetadataHash(artifact, p.Args)
	if err != nil {
		return nil, err
	}

	addr, tx, err := d.deployContract(ctx, t, p.From, artifact, p.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy %s: %w", p.Instance, err)
	}
	d.log.Info("deployed contract", "network", t.Network.Name, "instance", p.Instance, "address", addr.Hex())

	return &DeployResult{
		Record: &models.DeploymentRecord{
			Instance:     p.Instance,
			Contract:     artifact.Name,
			Address:      addr,
			MetadataHash: metadataHash,
			ABIHash:      artifact.ABIHash(),
			LastApplied:  p.Step,
			DeployTx:     tx,
			UpdatedAt:    d.now().UTC(),
		},
		TxHashes: []common.Hash{tx},
	}, nil
}

// UpgradeProxy points an existing proxy at a new implementation. Nothing is
// sent when the proxy already runs the target: either the recorded metadata
// hash and implementation still match the chain, or the code behind the
// on-chain implementation equals the artifact's runtime code.
func (d *InstanceDeployer) UpgradeProxy(ctx context.Context, t Target, p UpgradeParams) (*DeployResult, error) {
	rec, err := d.existing(ctx, t, p.Instance)
	if err != nil {
		return nil, err
	}
	if !rec.Proxy {
		return nil, domain.NewConfigurationError("", "%s on %s is not proxy-backed and cannot be upgraded", p.Instance, t.Network.Name)
	}

	contract := p.Contract
	if contract == "" {
		contract = rec.Contract
	}
	artifact, err := d.loadArtifact(ctx, t.Network, contract)
	if err != nil {
		return nil, err
	}
	metadataHash, err := MetadataHash(artifact, p.Args)
	if err != nil {
		return nil, err
	}

	updated := rec.Clone()
	updated.LastApplied = p.Step
	updated.UpdatedAt = d.now().UTC()

	onChain, err := t.Chain.ImplementationOf(ctx, rec.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s implementation: %w", p.Instance, err)
	}
	unchanged := metadataHash == rec.MetadataHash && onChain == rec.Implementation
	if !unchanged {
		if unchanged, err = d.runsArtifact(ctx, t, onChain, artifact); err != nil {
			return nil, err
		}
	}
	if unchanged {
		d.log.Info("implementation unchanged, skipping upgrade", "network", t.Network.Name, "instance", p.Instance, "implementation", onChain.Hex())
		updated.Contract = artifact.Name
		updated.Implementation = onChain
		updated.MetadataHash = metadataHash
		updated.ABIHash = artifact.ABIHash()
		return &DeployResult{Record: updated, NoOp: true}, nil
	}

	admin, err := d.proxyAdmin(ctx, t)
	if err != nil {
		return nil, err
	}
	adminArtifact, err := d.artifacts.Get(ctx, admin.Contract)
	if err != nil {
		return nil, fmt.Errorf("failed to load proxy admin artifact %s: %w", admin.Contract, err)
	}

	impl, implTx, err := d.deployContract(ctx, t, p.From, artifact, p.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy %s implementation: %w", p.Instance, err)
	}
	d.log.Info("deployed implementation", "network", t.Network.Name, "instance", p.Instance, "address", impl.Hex())

	calldata, err := d.upgradeCalldata(adminArtifact, artifact, rec.Address, impl, p.PostUpgrade)
	if err != nil {
		return nil, err
	}
	upgrade, err := t.Chain.Send(ctx, TxRequest{From: p.From, To: &admin.Address, Data: calldata})
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade %s: %w", p.Instance, err)
	}

	current, err := t.Chain.ImplementationOf(ctx, rec.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s implementation: %w", p.Instance, err)
	}
	if current != impl {
		return nil, &domain.TransactionError{
			Kind:   domain.TxReverted,
			TxHash: upgrade.Hash,
			Err:    fmt.Errorf("proxy points at %s after upgrade, expected %s", current.Hex(), impl.Hex()),
		}
	}
	d.log.Info("upgraded proxy", "network", t.Network.Name, "instance", p.Instance, "implementation", impl.Hex())

	updated.Contract = artifact.Name
	updated.Implementation = impl
	updated.MetadataHash = metadataHash
	updated.ABIHash = artifact.ABIHash()

	return &DeployResult{
		Record:   updated,
		TxHashes: []common.Hash{implTx, upgrade.Hash},
	}, nil
}

// Execute calls a method on a deployed instance using its current ABI
func (d *InstanceDeployer) Execute(ctx context.Context, t Target, p CallParams) (*DeployResult, error) {
	rec, err := d.existing(ctx, t, p.Instance)
	if err != nil {
		return nil, err
	}
	artifact, err := d.artifacts.Get(ctx, rec.Contract)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact %s: %w", rec.Contract, err)
	}
	calldata, err := d.encoder.EncodeCall(&artifact.ABI, p.Method, p.Args)
	if err != nil {
		return nil, domain.NewConfigurationError("", "cannot encode %s.%s: %v", p.Instance, p.Method, err)
	}

	receipt, err := t.Chain.Send(ctx, TxRequest{From: p.From, To: &rec.Address, Data: calldata})
	if err != nil {
		return nil, fmt.Errorf("failed to call %s.%s: %w", p.Instance, p.Method, err)
	}
	d.log.Info("executed call", "network", t.Network.Name, "instance", p.Instance, "method", p.Method, "tx", receipt.Hash.Hex())

	updated := rec.Clone()
	updated.LastApplied = p.Step
	updated.UpdatedAt = d.now().UTC()

	return &DeployResult{
		Record: updated,
		Call: &models.CallRecord{
			Step:     p.Step,
			Instance: p.Instance,
			Method:   p.Method,
			Args:     stringifyArgs(p.Args),
			TxHash:   receipt.Hash,
		},
		TxHashes: []common.Hash{receipt.Hash},
	}, nil
}

// runsArtifact reports whether the code at impl is the artifact's runtime code
func (d *InstanceDeployer) runsArtifact(ctx context.Context, t Target, impl common.Address, artifact *models.Artifact) (bool, error) {
	if impl == (common.Address{}) || len(artifact.DeployedBytecode) == 0 {
		return false, nil
	}
	code, err := t.Chain.CodeAt(ctx, impl)
	if err != nil {
		return false, fmt.Errorf("failed to read code at %s: %w", impl.Hex(), err)
	}
	return len(code) > 0 && crypto.Keccak256Hash(code) == crypto.Keccak256Hash(artifact.DeployedBytecode), nil
}

func (d *InstanceDeployer) ensureAbsent(ctx context.Context, t Target, instance string) error {
	_, err := t.Ledger.Get(ctx, instance)
	switch {
	case err == nil:
		return fmt.Errorf("%s on %s: %w", instance, t.Network.Name, domain.ErrAlreadyDeployed)
	case errors.Is(err, domain.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (d *InstanceDeployer) existing(ctx context.Context, t Target, instance string) (*models.DeploymentRecord, error) {
	rec, err := t.Ledger.Get(ctx, instance)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%s on %s: %w", instance, t.Network.Name, domain.ErrNotDeployed)
	}
	return rec, err
}

func (d *InstanceDeployer) proxyAdmin(ctx context.Context, t Target) (*models.DeploymentRecord, error) {
	admin, err := t.Ledger.Get(ctx, d.proxy.Admin)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewConfigurationError("", "proxy admin instance %q has no deployment on %s", d.proxy.Admin, t.Network.Name)
	}
	return admin, err
}

func (d *InstanceDeployer) loadArtifact(ctx context.Context, network *models.Network, name string) (*models.Artifact, error) {
	artifact, err := d.artifacts.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact %s: %w", name, err)
	}
	if network.EnforceContractSize && len(artifact.DeployedBytecode) > models.EIP170CodeSizeLimit {
		return nil, domain.NewConfigurationError("", "%s runtime code is %d bytes, above the %d byte limit on %s",
			name, len(artifact.DeployedBytecode), models.EIP170CodeSizeLimit, network.Name)
	}
	return artifact, nil
}

func (d *InstanceDeployer) deployContract(ctx context.Context, t Target, from models.Account, artifact *models.Artifact, args []any) (common.Address, common.Hash, error) {
	if len(artifact.Bytecode) == 0 {
		return common.Address{}, common.Hash{}, domain.NewConfigurationError("", "artifact %s has no bytecode", artifact.Name)
	}
	ctorArgs, err := d.encoder.EncodeConstructor(&artifact.ABI, args)
	if err != nil {
		return common.Address{}, common.Hash{}, domain.NewConfigurationError("", "cannot encode %s constructor: %v", artifact.Name, err)
	}

	var data bytes.Buffer
	data.Write(artifact.Bytecode)
	data.Write(ctorArgs)

	receipt, err := t.Chain.Send(ctx, TxRequest{From: from, Data: data.Bytes()})
	if err != nil {
		return common.Address{}, common.Hash{}, err
	}
	if receipt.ContractAddress == (common.Address{}) {
		return common.Address{}, receipt.Hash, &domain.TransactionError{
			Kind:   domain.TxReverted,
			TxHash: receipt.Hash,
			Err:    errors.New("no contract address in receipt"),
		}
	}
	return receipt.ContractAddress, receipt.Hash, nil
}

// initializerData encodes the proxy initializer. The configured default is
// only used when the implementation has it; an explicit method must exist.
func (d *InstanceDeployer) initializerData(artifact *models.Artifact, init *models.MethodCall) ([]byte, error) {
	if init == nil {
		if d.proxy.Initializer == "" || d.proxy.Initializer == models.DisabledInitializer || !artifact.HasMethods(d.proxy.Initializer) {
			return []byte{}, nil
		}
		init = &models.MethodCall{Method: d.proxy.Initializer}
	}
	if init.Method == models.DisabledInitializer {
		return []byte{}, nil
	}
	data, err := d.encoder.EncodeCall(&artifact.ABI, init.Method, init.Args)
	if err != nil {
		return nil, domain.NewConfigurationError("", "cannot encode initializer %s.%s: %v", artifact.Name, init.Method, err)
	}
	return data, nil
}

func (d *InstanceDeployer) upgradeCalldata(adminArtifact, impl *models.Artifact, proxy, newImpl common.Address, post *models.MethodCall) ([]byte, error) {
	if post == nil && adminArtifact.HasMethods("upgrade") {
		return d.encoder.EncodeCall(&adminArtifact.ABI, "upgrade", []any{proxy, newImpl})
	}

	callData := []byte{}
	if post != nil {
		var err error
		callData, err = d.encoder.EncodeCall(&impl.ABI, post.Method, post.Args)
		if err != nil {
			return nil, domain.NewConfigurationError("", "cannot encode post-upgrade call %s.%s: %v", impl.Name, post.Method, err)
		}
	}
	data, err := d.encoder.EncodeCall(&adminArtifact.ABI, "upgradeAndCall", []any{proxy, newImpl, callData})
	if err != nil {
		return nil, domain.NewConfigurationError("", "cannot encode proxy admin upgrade: %v", err)
	}
	return data, nil
}
