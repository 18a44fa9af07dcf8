package usecase_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/bancorprotocol/carbon-migrate/internal/adapters/blockchain"
	"github.com/bancorprotocol/carbon-migrate/internal/adapters/ledger"
	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/config"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

const (
	accessControlABI = `
  {"type":"function","name":"hasRole","stateMutability":"view","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getRoleAdmin","stateMutability":"view","inputs":[{"name":"role","type":"bytes32"}],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"grantRole","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[]},
  {"type":"function","name":"revokeRole","inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[]}`

	controllerABI = `[
  {"type":"function","name":"initialize","inputs":[],"outputs":[]},
  {"type":"function","name":"setFees","inputs":[{"name":"ppm","type":"uint32"}],"outputs":[]},` + accessControlABI + `
]`

	vortexABI = `[
  {"type":"constructor","inputs":[{"name":"controller","type":"address"},{"name":"vault","type":"address"}]},
  {"type":"function","name":"initialize","inputs":[],"outputs":[]},
  {"type":"function","name":"setTank","inputs":[{"name":"tank","type":"address"}],"outputs":[]},
  {"type":"function","name":"setRewardsPPM","inputs":[{"name":"ppm","type":"uint32"}],"outputs":[]},
  {"type":"function","name":"postUpgrade","inputs":[{"name":"data","type":"bytes"}],"outputs":[]},` + accessControlABI + `
]`

	proxyAdminABI = `[
  {"type":"function","name":"upgrade","inputs":[{"name":"proxy","type":"address"},{"name":"implementation","type":"address"}],"outputs":[]},
  {"type":"function","name":"upgradeAndCall","inputs":[{"name":"proxy","type":"address"},{"name":"implementation","type":"address"},{"name":"data","type":"bytes"}],"outputs":[]}
]`

	proxyABI = `[
  {"type":"constructor","inputs":[{"name":"logic","type":"address"},{"name":"admin","type":"address"},{"name":"data","type":"bytes"}]}
]`

	voucherABI = `[
  {"type":"constructor","inputs":[{"name":"enabled","type":"bool"}]},
  {"type":"function","name":"setController","inputs":[{"name":"controller","type":"address"}],"outputs":[]}
]`
)

const proxyContract = "OptimizedTransparentUpgradeableProxy"

var (
	deployerAddr = common.HexToAddress("0x5bEBA4D3533a963Dedb270a95ae5f7752fA0Fe22")
	vaultAddr    = common.HexToAddress("0x60917e542aDdd13bfd1a7f81cD654758052dAdC4")
	tankAddr     = common.HexToAddress("0xD053Dcd7037AF7204cecE544Ea9F227824d79801")
	daoAddr      = common.HexToAddress("0xeBeD45Ca22fcF70AdCcF6F3ac3BFb98dC4A43Fd3")
)

// memArtifacts serves compiled contracts from memory
type memArtifacts struct {
	byName map[string]*models.Artifact
}

func (m *memArtifacts) Get(ctx context.Context, name string) (*models.Artifact, error) {
	a, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("artifact %s: %w", name, domain.ErrNotFound)
	}
	return a, nil
}

func (m *memArtifacts) add(t *testing.T, name, rawABI, bytecode string, deployedSize int) *models.Artifact {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	require.NoError(t, err)
	creation := hexutil.MustDecode(bytecode)
	deployed := make([]byte, deployedSize)
	copy(deployed, creation)
	a := &models.Artifact{
		Name:             name,
		ABI:              parsed,
		RawABI:           []byte(rawABI),
		Bytecode:         creation,
		DeployedBytecode: deployed,
	}
	m.byName[name] = a
	return a
}

func newArtifacts(t *testing.T) *memArtifacts {
	m := &memArtifacts{byName: make(map[string]*models.Artifact)}
	m.add(t, "ProxyAdmin", proxyAdminABI, "0x60010001", 100)
	m.add(t, proxyContract, proxyABI, "0x60010002", 100)
	m.add(t, "CarbonController", controllerABI, "0x60010003", 20000)
	m.add(t, "CarbonVortex", vortexABI, "0x60010004", 12000)
	m.add(t, "CarbonVortex2", vortexABI, "0x60010005", 12500)
	m.add(t, "Voucher", voucherABI, "0x60010006", 3000)
	m.add(t, "Oversized", voucherABI, "0x60010007", models.EIP170CodeSizeLimit+1)
	return m
}

// sentTx is a transaction the fake chain accepted
type sentTx struct {
	From   common.Address
	To     *common.Address
	Method string
	Hash   common.Hash
}

type fakeContract struct {
	artifact *models.Artifact
	impl     common.Address
	roles    map[common.Hash]map[common.Address]bool
	calls    []string
}

func (c *fakeContract) hasRole(role common.Hash, member common.Address) bool {
	return c.roles[role][member]
}

func (c *fakeContract) setRole(role common.Hash, member common.Address, held bool) {
	if c.roles[role] == nil {
		c.roles[role] = make(map[common.Address]bool)
	}
	c.roles[role][member] = held
}

// fakeChain executes deployments and calls at the ABI level: it recognises
// artifacts by creation bytecode, keeps proxies pointing at implementations
// and enforces AccessControl admin checks.
type fakeChain struct {
	chainID   uint64
	artifacts *memArtifacts

	mu        sync.Mutex
	nonces    map[common.Address]uint64
	contracts map[common.Address]*fakeContract
	txs       []sentTx
	failOn    map[string]error
}

func newFakeChain(chainID uint64, artifacts *memArtifacts) *fakeChain {
	return &fakeChain{
		chainID:   chainID,
		artifacts: artifacts,
		nonces:    make(map[common.Address]uint64),
		contracts: make(map[common.Address]*fakeContract),
		failOn:    make(map[string]error),
	}
}

func (f *fakeChain) ChainID() uint64 { return f.chainID }

func (f *fakeChain) Close() {}

func (f *fakeChain) Send(ctx context.Context, req usecase.TxRequest) (*usecase.TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	from := req.From.Address
	nonce := f.nonces[from]
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	hash := crypto.Keccak256Hash([]byte{byte(f.chainID)}, from.Bytes(), buf[:])

	receipt := &usecase.TxReceipt{Hash: hash, BlockNumber: uint64(len(f.txs) + 1)}
	var method string
	if req.To == nil {
		addr, name, err := f.deploy(from, nonce, req.Data)
		if err != nil {
			return nil, err
		}
		receipt.ContractAddress = addr
		method = "deploy:" + name
	} else {
		c, ok := f.contracts[*req.To]
		if !ok {
			return nil, &domain.TransactionError{Kind: domain.TxReverted, TxHash: hash, Err: errors.New("no code at address")}
		}
		name, err := f.invoke(c, from, req.Data)
		if err != nil {
			return nil, &domain.TransactionError{Kind: domain.TxReverted, TxHash: hash, Err: err}
		}
		method = name
	}

	f.nonces[from] = nonce + 1
	f.txs = append(f.txs, sentTx{From: from, To: req.To, Method: method, Hash: hash})
	return receipt, nil
}

func (f *fakeChain) deploy(from common.Address, nonce uint64, data []byte) (common.Address, string, error) {
	var artifact *models.Artifact
	for _, a := range f.artifacts.byName {
		if bytes.HasPrefix(data, a.Bytecode) {
			artifact = a
			break
		}
	}
	if artifact == nil {
		return common.Address{}, "", errors.New("unknown creation code")
	}
	if err := f.failure("deploy:" + artifact.Name); err != nil {
		return common.Address{}, "", err
	}

	addr := crypto.CreateAddress(from, nonce)
	c := &fakeContract{artifact: artifact, roles: make(map[common.Hash]map[common.Address]bool)}
	f.contracts[addr] = c

	args, err := artifact.ABI.Constructor.Inputs.Unpack(data[len(artifact.Bytecode):])
	if err != nil {
		return common.Address{}, "", err
	}
	if artifact.Name == proxyContract {
		c.impl = args[0].(common.Address)
		if init := args[2].([]byte); len(init) > 0 {
			if _, err := f.invoke(c, from, init); err != nil {
				return common.Address{}, "", err
			}
		}
	} else if artifact.HasMethods("hasRole") {
		c.setRole(common.Hash{}, from, true)
	}
	return addr, artifact.Name, nil
}

// logic returns the contract whose ABI handles calls to c
func (f *fakeChain) logic(c *fakeContract) *fakeContract {
	if c.artifact.Name == proxyContract {
		return f.contracts[c.impl]
	}
	return c
}

func (f *fakeChain) invoke(c *fakeContract, from common.Address, data []byte) (string, error) {
	logic := f.logic(c)
	if logic == nil {
		return "", errors.New("proxy without implementation")
	}
	method, err := logic.artifact.ABI.MethodById(data)
	if err != nil {
		return "", err
	}
	if err := f.failure(method.Name); err != nil {
		return "", err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return "", err
	}

	switch method.Name {
	case "upgrade", "upgradeAndCall":
		proxy := f.contracts[args[0].(common.Address)]
		proxy.impl = args[1].(common.Address)
		if method.Name == "upgradeAndCall" {
			if callData := args[2].([]byte); len(callData) > 0 {
				if _, err := f.invoke(proxy, from, callData); err != nil {
					return "", err
				}
			}
		}
	case "initialize":
		if logic.artifact.HasMethods("hasRole") {
			c.setRole(common.Hash{}, from, true)
		}
	case "grantRole", "revokeRole":
		if !c.hasRole(common.Hash{}, from) {
			return "", fmt.Errorf("AccessControl: account %s is missing role 0x00", from.Hex())
		}
		c.setRole(common.Hash(args[0].([32]byte)), args[1].(common.Address), method.Name == "grantRole")
	}
	c.calls = append(c.calls, method.Name)
	return method.Name, nil
}

func (f *fakeChain) failure(name string) error {
	if err, ok := f.failOn[name]; ok {
		return err
	}
	return nil
}

func (f *fakeChain) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.contracts[to]
	if !ok {
		return nil, errors.New("no code at address")
	}
	method, err := f.logic(c).artifact.ABI.MethodById(data)
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "hasRole":
		return method.Outputs.Pack(c.hasRole(common.Hash(args[0].([32]byte)), args[1].(common.Address)))
	case "getRoleAdmin":
		return method.Outputs.Pack([32]byte{})
	}
	return nil, fmt.Errorf("%s is not a view", method.Name)
}

func (f *fakeChain) ImplementationOf(ctx context.Context, proxy common.Address) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contracts[proxy]
	if !ok {
		return common.Address{}, errors.New("no code at address")
	}
	return c.impl, nil
}

func (f *fakeChain) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contracts[addr]
	if !ok {
		return nil, nil
	}
	return c.artifact.DeployedBytecode, nil
}

func (f *fakeChain) sent() []sentTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentTx(nil), f.txs...)
}

func (f *fakeChain) contractAt(addr common.Address) *fakeContract {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contracts[addr]
}

// fakeConnector hands out one fake chain per network
type fakeConnector struct {
	mu     sync.Mutex
	chains map[string]*fakeChain
	dials  []string
	fail   map[string]error
}

func (c *fakeConnector) Connect(ctx context.Context, network *models.Network) (usecase.ChainClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dials = append(c.dials, network.Name)
	if err := c.fail[network.Name]; err != nil {
		return nil, err
	}
	chain, ok := c.chains[network.Name]
	if !ok {
		return nil, fmt.Errorf("no chain for %s", network.Name)
	}
	return chain, nil
}

// stepList is a fixed StepSource
type stepList []*models.MigrationStep

func (s stepList) Load(ctx context.Context) ([]*models.MigrationStep, error) {
	return s, nil
}

// recordingSink keeps every progress event
type recordingSink struct {
	mu     sync.Mutex
	events []usecase.ProgressEvent
	hook   func(usecase.ProgressEvent)
}

func (s *recordingSink) OnProgress(ctx context.Context, event usecase.ProgressEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(event)
	}
}

func (s *recordingSink) Info(string)  {}
func (s *recordingSink) Error(string) {}

func (s *recordingSink) stages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Stage)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func account(raw string) models.AccountValue {
	v, err := models.ParseAccountValue(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// newTestConfig describes four networks: mainnet, its tenderly fork, base and
// a non-persistent hardhat network
func newTestConfig(t *testing.T) *config.RuntimeConfig {
	t.Helper()
	root := t.TempDir()
	networks := []*models.Network{
		{Name: "mainnet", ChainID: 1, Persistent: true, Live: true, EnforceContractSize: true},
		{Name: "tenderly", ChainID: 1, Persistent: true, ForkOf: "mainnet"},
		{Name: "base", ChainID: 8453, Persistent: true, Live: true, EnforceContractSize: true},
		{Name: "hardhat", ChainID: 31337},
	}
	table := models.NewNamedAccountTable(map[string]map[string]models.AccountValue{
		"deployer": {
			"mainnet":  account("ledger://" + deployerAddr.Hex()),
			"tenderly": account(deployerAddr.Hex()),
			"base":     account(deployerAddr.Hex()),
			"hardhat":  account(deployerAddr.Hex()),
		},
		"vault": {
			"mainnet":  account(vaultAddr.Hex()),
			"tenderly": account(vaultAddr.Hex()),
			"base":     account(vaultAddr.Hex()),
			"hardhat":  account(vaultAddr.Hex()),
		},
		"tank": {
			"mainnet":  account(""),
			"tenderly": account(""),
			"base":     account(tankAddr.Hex()),
			"hardhat":  account(tankAddr.Hex()),
		},
		"dao": {
			"mainnet": account(daoAddr.Hex()),
			"base":    account(daoAddr.Hex()),
		},
	})

	return &config.RuntimeConfig{
		ProjectRoot: root,
		Project: &config.ProjectSettings{
			DeploymentsDir: root,
			Ledger:         config.LedgerFile,
			Proxy: config.ProxySettings{
				Contract:    proxyContract,
				Admin:       "ProxyAdmin",
				Initializer: "initialize",
			},
		},
		Registry: models.NewNetworkRegistry(networks),
		Accounts: table,
	}
}

// carbonSteps is a small but complete migration history
func carbonSteps() stepList {
	return stepList{
		{ID: models.StepID{Seq: 1, Index: 1}, Tag: "0001-ProxyAdmin#1", Action: models.ActionDeploy, Instance: "ProxyAdmin", From: "deployer"},
		{ID: models.StepID{Seq: 2, Index: 1}, Tag: "0002-CarbonController#1", Action: models.ActionDeploy, Instance: "CarbonController", Proxy: true, From: "deployer"},
		{ID: models.StepID{Seq: 3, Index: 1}, Tag: "0003-CarbonVortex#1", Action: models.ActionDeploy, Instance: "CarbonVortex", Proxy: true, From: "deployer",
			Args: []any{"@CarbonController", "$vault"}},
		{ID: models.StepID{Seq: 3, Index: 2}, Tag: "0003-CarbonVortex#2", Action: models.ActionGrantRole, Instance: "CarbonController", From: "deployer",
			Role: "ROLE_FEES_MANAGER", Member: "@CarbonVortex"},
		{ID: models.StepID{Seq: 4, Index: 1}, Tag: "0004-CarbonVortex#1", Action: models.ActionCall, Instance: "CarbonVortex", From: "deployer",
			Method: "setRewardsPPM", Args: []any{"10000"}},
	}
}

// testEnv wires the use cases the way the app does, with fakes at the edges
type testEnv struct {
	cfg       *config.RuntimeConfig
	artifacts *memArtifacts
	ledgers   *ledger.Factory
	resolver  *usecase.NamedAccountResolver
	deployer  *usecase.InstanceDeployer
	grantor   *usecase.RoleGrantor
	sink      *recordingSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := newTestConfig(t)
	artifacts := newArtifacts(t)
	encoder := blockchain.NewEncoder()
	return &testEnv{
		cfg:       cfg,
		artifacts: artifacts,
		ledgers:   ledger.NewFactory(cfg, discardLogger()),
		resolver:  usecase.NewNamedAccountResolver(cfg),
		deployer:  usecase.NewInstanceDeployer(cfg, artifacts, encoder, discardLogger()),
		grantor:   usecase.NewRoleGrantor(artifacts, encoder, discardLogger()),
		sink:      &recordingSink{},
	}
}

func (e *testEnv) runner(steps usecase.StepSource) *usecase.MigrationRunner {
	return usecase.NewMigrationRunner(steps, e.resolver, e.deployer, e.grantor, e.sink, discardLogger())
}

func (e *testEnv) network(name string) *models.Network {
	n, ok := e.cfg.Registry.Lookup(name)
	if !ok {
		panic("unknown network " + name)
	}
	return n
}

// withLedger opens a network's ledger for the duration of fn
func (e *testEnv) withLedger(t *testing.T, name string, fn func(l usecase.Ledger)) {
	t.Helper()
	l, err := e.ledgers.Open(context.Background(), e.network(name))
	require.NoError(t, err)
	defer l.Close()
	fn(l)
}

func (e *testEnv) run(t *testing.T, ctx context.Context, name string, steps usecase.StepSource, chain usecase.ChainClient) (*usecase.RunResult, error) {
	t.Helper()
	l, err := e.ledgers.Open(ctx, e.network(name))
	require.NoError(t, err)
	defer l.Close()
	return e.runner(steps).Run(ctx, usecase.RunParams{Network: e.network(name), Ledger: l, Chain: chain})
}

func methods(txs []sentTx) []string {
	out := make([]string, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.Method)
	}
	return out
}
