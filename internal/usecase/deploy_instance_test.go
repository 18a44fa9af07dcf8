package usecase_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bancorprotocol/carbon-migrate/internal/adapters/ledger"
	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// deployerFixture is one network with a memory ledger and a fake chain
type deployerFixture struct {
	env    *testEnv
	chain  *fakeChain
	ledger *ledger.MemoryLedger
	target usecase.Target
	from   models.Account
	seq    uint64
}

func newDeployerFixture(t *testing.T, network string) *deployerFixture {
	env := newTestEnv(t)
	n := env.network(network)
	chain := newFakeChain(n.ChainID, env.artifacts)
	l := ledger.NewMemoryLedger(n.Name, n.ChainID)
	from, err := env.resolver.Resolve("deployer", network)
	require.NoError(t, err)
	return &deployerFixture{
		env:    env,
		chain:  chain,
		ledger: l,
		target: usecase.Target{Network: n, Ledger: l, Chain: chain},
		from:   from,
	}
}

func (f *deployerFixture) nextStep() models.StepID {
	f.seq++
	return models.StepID{Seq: f.seq, Index: 1}
}

func (f *deployerFixture) commit(t *testing.T, res *usecase.DeployResult) {
	t.Helper()
	require.NoError(t, f.ledger.Commit(context.Background(), &models.StepOutcome{
		Step:   models.AppliedStep{ID: res.Record.LastApplied, Instance: res.Record.Instance, TxHashes: res.TxHashes, NoOp: res.NoOp},
		Record: res.Record,
		Call:   res.Call,
	}))
}

func (f *deployerFixture) deploy(t *testing.T, instance string, proxy bool, args ...any) *models.DeploymentRecord {
	t.Helper()
	p := usecase.DeployParams{Step: f.nextStep(), Instance: instance, Contract: instance, Args: args, From: f.from}
	var (
		res *usecase.DeployResult
		err error
	)
	if proxy {
		res, err = f.env.deployer.DeployProxy(context.Background(), f.target, p)
	} else {
		res, err = f.env.deployer.Deploy(context.Background(), f.target, p)
	}
	require.NoError(t, err)
	f.commit(t, res)
	return res.Record
}

func TestInstanceDeployerDeploy(t *testing.T) {
	ctx := context.Background()

	t.Run("plain deploy records the address", func(t *testing.T) {
		f := newDeployerFixture(t, "base")
		rec := f.deploy(t, "Voucher", false, "true")

		assert.Equal(t, "Voucher", rec.Contract)
		assert.False(t, rec.Proxy)
		assert.NotNil(t, f.chain.contractAt(rec.Address))
		assert.Equal(t, f.env.artifacts.byName["Voucher"].ABIHash(), rec.ABIHash)
		assert.Len(t, f.chain.sent(), 1)
	})

	t.Run("instance is never deployed twice", func(t *testing.T) {
		f := newDeployerFixture(t, "base")
		f.deploy(t, "Voucher", false, true)

		_, err := f.env.deployer.Deploy(ctx, f.target, usecase.DeployParams{
			Step: f.nextStep(), Instance: "Voucher", Contract: "Voucher", Args: []any{true}, From: f.from,
		})
		assert.ErrorIs(t, err, domain.ErrAlreadyDeployed)

		_, err = f.env.deployer.DeployProxy(ctx, f.target, usecase.DeployParams{
			Step: f.nextStep(), Instance: "Voucher", Contract: "Voucher", Args: []any{true}, From: f.from,
		})
		assert.ErrorIs(t, err, domain.ErrAlreadyDeployed)
		assert.Len(t, f.chain.sent(), 1)
	})

	t.Run("proxy deploy runs the default initializer", func(t *testing.T) {
		f := newDeployerFixture(t, "base")
		admin := f.deploy(t, "ProxyAdmin", false)
		rec := f.deploy(t, "CarbonController", true)

		assert.True(t, rec.Proxy)
		proxy := f.chain.contractAt(rec.Address)
		require.NotNil(t, proxy)
		assert.Equal(t, rec.Implementation, proxy.impl)
		assert.Equal(t, []string{"initialize"}, proxy.calls)
		assert.True(t, proxy.hasRole(common.Hash{}, f.from.Address))
		assert.NotEqual(t, admin.Address, rec.Address)
	})

	t.Run("explicit and disabled initializers", func(t *testing.T) {
		f := newDeployerFixture(t, "base")
		f.deploy(t, "ProxyAdmin", false)

		res, err := f.env.deployer.DeployProxy(ctx, f.target, usecase.DeployParams{
			Step: f.nextStep(), Instance: "CarbonVortex", Contract: "CarbonVortex", From: f.from,
			Args: []any{vaultAddr, vaultAddr},
			Init: &models.MethodCall{Method: "setTank", Args: []any{tankAddr}},
		})
		require.NoError(t, err)
		f.commit(t, res)
		assert.Equal(t, []string{"setTank"}, f.chain.contractAt(res.Record.Address).calls)

		res, err = f.env.deployer.DeployProxy(ctx, f.target, usecase.DeployParams{
			Step: f.nextStep(), Instance: "CarbonController", Contract: "CarbonController", From: f.from,
			Init: &models.MethodCall{Method: models.DisabledInitializer},
		})
		require.NoError(t, err)
		assert.Empty(t, f.chain.contractAt(res.Record.Address).calls)
	})

	t.Run("proxy deploy needs the proxy admin", func(t *testing.T) {
		f := newDeployerFixture(t, "base")
		_, err := f.env.deployer.DeployProxy(ctx, f.target, usecase.DeployParams{
			Step: f.nextStep(), Instance: "CarbonController", Contract: "CarbonController", From: f.from,
		})
		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, err.Error(), "ProxyAdmin")
		assert.Empty(t, f.chain.sent())
	})

	t.Run("runtime code above the limit", func(t *testing.T) {
		f := newDeployerFixture(t, "base")
		_, err := f.env.deployer.Deploy(ctx, f.target, usecase.DeployParams{
			Step: f.nextStep(), Instance: "Oversized", Contract: "Oversized", Args: []any{true}, From: f.from,
		})
		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, err.Error(), "byte limit")
		assert.Empty(t, f.chain.sent())

		local := newDeployerFixture(t, "hardhat")
		local.deploy(t, "Oversized", false, true)
	})

	t.Run("missing artifact", func(t *testing.T) {
		f := newDeployerFixture(t, "base")
		_, err := f.env.deployer.Deploy(ctx, f.target, usecase.DeployParams{
			Step: f.nextStep(), Instance: "CarbonPOL", Contract: "CarbonPOL", From: f.from,
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("bad constructor arguments", func(t *testing.T) {
		f := newDeployerFixture(t, "base")
		_, err := f.env.deployer.Deploy(ctx, f.target, usecase.DeployParams{
			Step: f.nextStep(), Instance: "Voucher", Contract: "Voucher", Args: []any{"maybe"}, From: f.from,
		})
		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Empty(t, f.chain.sent())
	})
}

func TestInstanceDeployerUpgrade(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*deployerFixture, *models.DeploymentRecord) {
		f := newDeployerFixture(t, "base")
		f.deploy(t, "ProxyAdmin", false)
		controller := f.deploy(t, "CarbonController", true)
		vortex := f.deploy(t, "CarbonVortex", true, controller.Address, vaultAddr)
		return f, vortex
	}

	t.Run("upgrade keeps the proxy address", func(t *testing.T) {
		f, vortex := setup(t)

		res, err := f.env.deployer.UpgradeProxy(ctx, f.target, usecase.UpgradeParams{
			Step: f.nextStep(), Instance: "CarbonVortex", Contract: "CarbonVortex2", Args: []any{vaultAddr, vaultAddr}, From: f.from,
		})
		require.NoError(t, err)

		assert.False(t, res.NoOp)
		assert.Len(t, res.TxHashes, 2)
		assert.Equal(t, vortex.Address, res.Record.Address)
		assert.Equal(t, vortex.DeployTx, res.Record.DeployTx)
		assert.Equal(t, "CarbonVortex2", res.Record.Contract)
		assert.NotEqual(t, vortex.Implementation, res.Record.Implementation)
		assert.NotEqual(t, vortex.MetadataHash, res.Record.MetadataHash)
		assert.Equal(t, res.Record.Implementation, f.chain.contractAt(vortex.Address).impl)

		sent := methods(f.chain.sent())
		assert.Equal(t, "upgrade", sent[len(sent)-1])
	})

	t.Run("unchanged implementation is a no-op", func(t *testing.T) {
		f, vortex := setup(t)
		controller, err := f.ledger.Get(ctx, "CarbonController")
		require.NoError(t, err)
		before := len(f.chain.sent())

		step := f.nextStep()
		res, err := f.env.deployer.UpgradeProxy(ctx, f.target, usecase.UpgradeParams{
			Step: step, Instance: "CarbonVortex", Args: []any{controller.Address, vaultAddr}, From: f.from,
		})
		require.NoError(t, err)

		assert.True(t, res.NoOp)
		assert.Empty(t, res.TxHashes)
		assert.Equal(t, vortex.Implementation, res.Record.Implementation)
		assert.Equal(t, step, res.Record.LastApplied)
		assert.Len(t, f.chain.sent(), before)
	})

	t.Run("retried upgrade before the ledger commit sends nothing", func(t *testing.T) {
		f, vortex := setup(t)
		params := usecase.UpgradeParams{
			Step: f.nextStep(), Instance: "CarbonVortex", Contract: "CarbonVortex2", Args: []any{vaultAddr, vaultAddr}, From: f.from,
		}

		first, err := f.env.deployer.UpgradeProxy(ctx, f.target, params)
		require.NoError(t, err)
		require.False(t, first.NoOp)
		before := len(f.chain.sent())

		second, err := f.env.deployer.UpgradeProxy(ctx, f.target, params)
		require.NoError(t, err)

		assert.True(t, second.NoOp)
		assert.Empty(t, second.TxHashes)
		assert.Len(t, f.chain.sent(), before)
		assert.Equal(t, first.Record.Implementation, second.Record.Implementation)
		assert.Equal(t, first.Record.MetadataHash, second.Record.MetadataHash)
		assert.Equal(t, first.Record.ABIHash, second.Record.ABIHash)
		assert.Equal(t, "CarbonVortex2", second.Record.Contract)
		assert.Equal(t, first.Record.Implementation, f.chain.contractAt(vortex.Address).impl)
	})

	t.Run("proxy moved off the recorded implementation is upgraded", func(t *testing.T) {
		f, vortex := setup(t)
		other := f.deploy(t, "Voucher", false, true)
		f.chain.contractAt(vortex.Address).impl = other.Address
		controller, err := f.ledger.Get(ctx, "CarbonController")
		require.NoError(t, err)

		res, err := f.env.deployer.UpgradeProxy(ctx, f.target, usecase.UpgradeParams{
			Step: f.nextStep(), Instance: "CarbonVortex", Args: []any{controller.Address, vaultAddr}, From: f.from,
		})
		require.NoError(t, err)

		assert.False(t, res.NoOp)
		assert.Len(t, res.TxHashes, 2)
		assert.Equal(t, res.Record.Implementation, f.chain.contractAt(vortex.Address).impl)
	})

	t.Run("post-upgrade call goes through upgradeAndCall", func(t *testing.T) {
		f, vortex := setup(t)

		res, err := f.env.deployer.UpgradeProxy(ctx, f.target, usecase.UpgradeParams{
			Step: f.nextStep(), Instance: "CarbonVortex", Contract: "CarbonVortex2", From: f.from,
			Args:        []any{vaultAddr, vaultAddr},
			PostUpgrade: &models.MethodCall{Method: "postUpgrade", Args: []any{"0x"}},
		})
		require.NoError(t, err)
		assert.Equal(t, vortex.Address, res.Record.Address)

		sent := methods(f.chain.sent())
		assert.Equal(t, "upgradeAndCall", sent[len(sent)-1])
		assert.Contains(t, f.chain.contractAt(vortex.Address).calls, "postUpgrade")
	})

	t.Run("plain instance cannot be upgraded", func(t *testing.T) {
		f, _ := setup(t)
		_, err := f.env.deployer.UpgradeProxy(ctx, f.target, usecase.UpgradeParams{
			Step: f.nextStep(), Instance: "ProxyAdmin", From: f.from,
		})
		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, err.Error(), "not proxy-backed")
	})

	t.Run("upgrade of an unknown instance", func(t *testing.T) {
		f, _ := setup(t)
		_, err := f.env.deployer.UpgradeProxy(ctx, f.target, usecase.UpgradeParams{
			Step: f.nextStep(), Instance: "CarbonPOL", From: f.from,
		})
		assert.ErrorIs(t, err, domain.ErrNotDeployed)
	})
}

func TestInstanceDeployerExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("call is logged with normalised args", func(t *testing.T) {
		f := newDeployerFixture(t, "base")
		f.deploy(t, "ProxyAdmin", false)
		vortex := f.deploy(t, "CarbonVortex", true, vaultAddr, vaultAddr)

		step := f.nextStep()
		res, err := f.env.deployer.Execute(ctx, f.target, usecase.CallParams{
			Step: step, Instance: "CarbonVortex", Method: "setTank", Args: []any{tankAddr}, From: f.from,
		})
		require.NoError(t, err)

		require.NotNil(t, res.Call)
		assert.Equal(t, "setTank", res.Call.Method)
		assert.Equal(t, []string{tankAddr.Hex()}, res.Call.Args)
		assert.Equal(t, step, res.Record.LastApplied)
		assert.Equal(t, vortex.Address, res.Record.Address)
		assert.Contains(t, f.chain.contractAt(vortex.Address).calls, "setTank")
	})

	t.Run("call on a missing instance", func(t *testing.T) {
		f := newDeployerFixture(t, "base")
		_, err := f.env.deployer.Execute(ctx, f.target, usecase.CallParams{
			Step: f.nextStep(), Instance: "CarbonVortex", Method: "setTank", Args: []any{tankAddr}, From: f.from,
		})
		assert.ErrorIs(t, err, domain.ErrNotDeployed)
	})
}

func TestMetadataHash(t *testing.T) {
	artifacts := newArtifacts(t)
	vortex := artifacts.byName["CarbonVortex"]

	fromAddr, err := usecase.MetadataHash(vortex, []any{vaultAddr, tankAddr})
	require.NoError(t, err)
	fromText, err := usecase.MetadataHash(vortex, []any{vaultAddr.Hex(), tankAddr.Hex()})
	require.NoError(t, err)
	assert.Equal(t, fromAddr, fromText)

	otherArgs, err := usecase.MetadataHash(vortex, []any{tankAddr, vaultAddr})
	require.NoError(t, err)
	assert.NotEqual(t, fromAddr, otherArgs)

	otherCode, err := usecase.MetadataHash(artifacts.byName["CarbonVortex2"], []any{vaultAddr, tankAddr})
	require.NoError(t, err)
	assert.NotEqual(t, fromAddr, otherCode)
}
