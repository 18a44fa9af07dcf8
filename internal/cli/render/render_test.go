package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

func noColor(t *testing.T) {
	t.Helper()
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })
}

func lineWith(t *testing.T, out, needle string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, needle) {
			return line
		}
	}
	require.Failf(t, "line not found", "no line contains %q in:\n%s", needle, out)
	return ""
}

var (
	mainnet = &models.Network{Name: "mainnet", ChainID: 1, Persistent: true, Live: true, Signer: models.SignerSource{Type: models.SignerNamed}}
	fork    = &models.Network{Name: "tenderly", ChainID: 1, Persistent: true, ForkOf: "mainnet", Signer: models.SignerSource{Type: models.SignerImpersonate}}
	local   = &models.Network{Name: "hardhat", ChainID: 31337, Signer: models.SignerSource{Type: models.SignerPrivateKey}}
)

func TestNetworksRenderer(t *testing.T) {
	noColor(t)

	t.Run("registry", func(t *testing.T) {
		var buf bytes.Buffer
		err := NewNetworksRenderer(&buf).RenderNetworksList(&usecase.ListNetworksResult{Networks: []*usecase.NetworkInfo{
			{Network: mainnet}, {Network: fork}, {Network: local},
		}})
		require.NoError(t, err)

		out := buf.String()
		assert.NotContains(t, out, "RPC")
		assert.Contains(t, lineWith(t, out, "tenderly"), "impersonate")
		assert.Contains(t, lineWith(t, out, "tenderly"), "mainnet")
		assert.Contains(t, lineWith(t, out, "hardhat"), "memory")
		assert.Contains(t, lineWith(t, out, "hardhat"), "31337")
	})

	t.Run("checked", func(t *testing.T) {
		var buf bytes.Buffer
		err := NewNetworksRenderer(&buf).RenderNetworksList(&usecase.ListNetworksResult{Networks: []*usecase.NetworkInfo{
			{Network: mainnet, Checked: true},
			{Network: local, Checked: true, Error: errors.New("connection refused")},
		}})
		require.NoError(t, err)

		out := buf.String()
		assert.Contains(t, out, "RPC")
		assert.Contains(t, lineWith(t, out, "mainnet"), "ok")
		assert.Contains(t, lineWith(t, out, "hardhat"), "connection refused")
	})

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewNetworksRenderer(&buf).RenderNetworksList(&usecase.ListNetworksResult{}))
		assert.Equal(t, "No networks configured in migrate.toml\n", buf.String())
	})
}

func TestStatusRenderer(t *testing.T) {
	noColor(t)

	deploy := &models.MigrationStep{ID: models.StepID{Seq: 1, Index: 1}, Tag: "0001-ProxyAdmin", Action: models.ActionDeploy, Instance: "ProxyAdmin"}
	grant := &models.MigrationStep{ID: models.StepID{Seq: 3, Index: 2}, Tag: "0003-CarbonVortex", Action: models.ActionGrantRole, Instance: "CarbonController", Role: "ROLE_FEES_MANAGER", Member: "@CarbonVortex"}
	call := &models.MigrationStep{ID: models.StepID{Seq: 4, Index: 1}, Tag: "0004-rewards", Action: models.ActionCall, Instance: "CarbonVortex", Method: "setRewardsPPM"}

	var buf bytes.Buffer
	err := NewStatusRenderer(&buf).RenderStatus(&usecase.ShowStatusResult{
		Network: mainnet,
		Steps: []usecase.StepStatus{
			{Step: deploy, Applied: &models.AppliedStep{ID: deploy.ID, AppliedAt: time.Now()}},
			{Step: grant, Applied: &models.AppliedStep{ID: grant.ID, NoOp: true, AppliedAt: time.Now()}},
			{Step: call},
		},
		Unknown:      []*models.AppliedStep{{ID: models.StepID{Seq: 9, Index: 1}, Action: models.ActionDeploy, Instance: "Legacy"}},
		AppliedCount: 3,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Migrations on mainnet (chain 1)")
	assert.Contains(t, lineWith(t, out, "0001#1"), "applied")
	assert.Contains(t, lineWith(t, out, "0003#2"), "(no-op)")
	assert.Contains(t, lineWith(t, out, "0003#2"), "CarbonController ROLE_FEES_MANAGER → @CarbonVortex")
	assert.Contains(t, lineWith(t, out, "0004#1"), "pending")
	assert.Contains(t, lineWith(t, out, "0004#1"), "CarbonVortex.setRewardsPPM")
	assert.Contains(t, out, "2 applied, 1 pending")
	assert.Contains(t, out, "1 applied step(s) no longer exist")
	assert.Contains(t, lineWith(t, out, "0009#1"), "Legacy")
}

func TestInstanceRenderer(t *testing.T) {
	noColor(t)

	impl := common.HexToAddress("0x2222222222222222222222222222222222222222")
	var buf bytes.Buffer
	err := NewInstanceRenderer(&buf).RenderInstance(&usecase.ShowInstanceResult{
		Network: mainnet,
		Record: &models.DeploymentRecord{
			Instance:       "CarbonController",
			Contract:       "CarbonController",
			Address:        common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Proxy:          true,
			Implementation: impl,
			LastApplied:    models.StepID{Seq: 2, Index: 1},
			UpdatedAt:      time.Now(),
		},
		Grants: []*models.RoleGrant{{
			RoleGrantKey: models.RoleGrantKey{Instance: "CarbonController", Member: common.HexToAddress("0x3333333333333333333333333333333333333333")},
			RoleName:     "ROLE_FEES_MANAGER",
			Held:         true,
			Step:         models.StepID{Seq: 3, Index: 2},
		}},
		Calls: []*models.CallRecord{{Step: models.StepID{Seq: 4, Index: 1}, Method: "setRewardsPPM", Args: []string{"10000"}, TxHash: common.Hash{0xab}}},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "CarbonController (proxy) on mainnet")
	assert.Contains(t, lineWith(t, out, "Implementation"), impl.Hex())
	assert.Contains(t, lineWith(t, out, "Last Step"), "0002#1")
	assert.Contains(t, lineWith(t, out, "ROLE_FEES_MANAGER"), "yes")
	assert.Contains(t, lineWith(t, out, "0004#1"), "setRewardsPPM(10000)")
}

func TestAccountsRenderer(t *testing.T) {
	noColor(t)

	vault := common.HexToAddress("0x4444444444444444444444444444444444444444")
	var buf bytes.Buffer
	err := NewAccountsRenderer(&buf).RenderAccounts(&usecase.ListAccountsResult{
		Network: "mainnet",
		Accounts: []usecase.AccountResolution{
			{Role: "deployer", Account: &models.Account{Role: "deployer", Address: vault, Ledger: true}, Resolved: true},
			{Role: "tank", Reason: domain.UnresolvedNotAssigned},
		},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, lineWith(t, out, "deployer"), vault.Hex())
	assert.Contains(t, lineWith(t, out, "deployer"), "ledger")
	assert.Contains(t, lineWith(t, out, "tank"), "not yet assigned")
}

func TestMigrateRenderer(t *testing.T) {
	noColor(t)

	step := &models.MigrationStep{ID: models.StepID{Seq: 3, Index: 1}, Action: models.ActionDeploy, Instance: "CarbonVortex", Proxy: true, From: "deployer"}

	t.Run("summary", func(t *testing.T) {
		var buf bytes.Buffer
		err := NewMigrateRenderer(&buf).RenderSummary(&usecase.MigrateNetworksResult{Runs: []*usecase.RunResult{
			{Network: "mainnet", State: usecase.StateDone, Skipped: 2, Executed: []*usecase.ExecutedStep{{Step: step}}},
			{Network: "base", State: usecase.StateFailed, Skipped: 1, Failed: step},
		}})
		require.NoError(t, err)

		out := buf.String()
		assert.Contains(t, lineWith(t, out, "mainnet"), "Done")
		assert.Contains(t, lineWith(t, out, "base"), "Failed")
		assert.Contains(t, lineWith(t, out, "base"), "0003#1 CarbonVortex (proxy)")
		assert.Contains(t, out, "1 of 2 network(s) failed")
	})

	t.Run("all done", func(t *testing.T) {
		var buf bytes.Buffer
		err := NewMigrateRenderer(&buf).RenderSummary(&usecase.MigrateNetworksResult{Runs: []*usecase.RunResult{
			{Network: "mainnet", State: usecase.StateDone},
		}})
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "Migrated 1 network(s)")
	})

	t.Run("plan", func(t *testing.T) {
		var buf bytes.Buffer
		err := NewMigrateRenderer(&buf).RenderPlan(&usecase.MigrateNetworksResult{Runs: []*usecase.RunResult{
			{Network: "mainnet", Skipped: 2, Pending: []*models.MigrationStep{step}},
			{Network: "base", Skipped: 4},
		}})
		require.NoError(t, err)

		out := buf.String()
		assert.Contains(t, out, "mainnet  2 applied, 1 pending")
		assert.Contains(t, lineWith(t, out, "0003#1"), "from $deployer")
		assert.Contains(t, out, "up to date")
	})
}

func TestFormatError(t *testing.T) {
	noColor(t)
	assert.Equal(t, "❌ Ledger is locked", FormatError("mainnet: open ledger: ledger is locked"))
	assert.Equal(t, "✅ Done", FormatSuccess("Done"))
}
