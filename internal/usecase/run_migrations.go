package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
)

// RunState is the state of a per-network migration run
type RunState string

const (
	StateIdle      RunState = "idle"
	StateLoading   RunState = "loading"
	StateSelecting RunState = "selecting"
	StateExecuting RunState = "executing"
	StateRecording RunState = "recording"
	StateDone      RunState = "done"
	StateFailed    RunState = "failed"
)

// Progress stages emitted by the runner
const (
	StageRunStarted    = "run_started"
	StagePlanReady     = "plan_ready"
	StageStepStarting  = "step_starting"
	StageStepCompleted = "step_completed"
	StageStepFailed    = "step_failed"
	StageRunCompleted  = "run_completed"
)

// MigrationRunner applies pending migration steps to one network in order
type MigrationRunner struct {
	steps    StepSource
	resolver *NamedAccountResolver
	deployer *InstanceDeployer
	grantor  *RoleGrantor
	progress ProgressSink
	log      *slog.Logger
	now      func() time.Time
}

// NewMigrationRunner creates a new MigrationRunner
func NewMigrationRunner(
	steps StepSource,
	resolver *NamedAccountResolver,
	deployer *InstanceDeployer,
	grantor *RoleGrantor,
	progress ProgressSink,
	log *slog.Logger,
) *MigrationRunner {
	return &MigrationRunner{
		steps:    steps,
		resolver: resolver,
		deployer: deployer,
		grantor:  grantor,
		progress: progress,
		log:      log,
		now:      time.Now,
	}
}

// RunParams contains parameters for one network run. Chain may be nil for a
// dry run.
type RunParams struct {
	Network *models.Network
	Ledger  Ledger
	Chain   ChainClient
	DryRun  bool
}

// ExecutedStep is a step applied during the run
type ExecutedStep struct {
	Step     *models.MigrationStep
	TxHashes []common.Hash
	NoOp     bool
	Duration time.Duration
}

// RunResult contains the result of a network run
type RunResult struct {
	Network  string
	State    RunState
	Total    int
	Skipped  int
	Executed []*ExecutedStep
	Pending  []*models.MigrationStep
	Failed   *models.MigrationStep
}

// Run drives the network through Loading, Selecting, Executing and
// Recording until no step is pending. Cancellation is honoured only between
// steps; a started step always runs to confirmation and is recorded.
func (r *MigrationRunner) Run(ctx context.Context, p RunParams) (*RunResult, error) {
	result := &RunResult{Network: p.Network.Name, State: StateIdle}
	log := r.log.With("network", p.Network.Name)

	r.transition(log, result, StateLoading, nil)
	steps, err := r.load(ctx, p)
	if err != nil {
		result.State = StateFailed
		return result, err
	}
	result.Total = len(steps)
	r.progress.OnProgress(ctx, ProgressEvent{Network: p.Network.Name, Stage: StageRunStarted, Total: len(steps)})

	if p.DryRun {
		r.transition(log, result, StateSelecting, nil)
		for _, step := range steps {
			applied, err := p.Ledger.HasApplied(ctx, step.ID)
			if err != nil {
				result.State = StateFailed
				return result, err
			}
			if applied {
				result.Skipped++
				continue
			}
			result.Pending = append(result.Pending, step)
		}
		r.progress.OnProgress(ctx, ProgressEvent{Network: p.Network.Name, Stage: StagePlanReady, Total: len(result.Pending), Metadata: result.Pending})
		result.State = StateIdle
		return result, nil
	}

	if p.Chain == nil {
		result.State = StateFailed
		return result, fmt.Errorf("no chain client for %s", p.Network.Name)
	}

	cursor := 0
	for {
		if ctx.Err() != nil {
			log.Warn("run aborted between steps", "reason", ctx.Err())
			result.State = StateIdle
			return result, fmt.Errorf("%s: %w", p.Network.Name, errors.Join(domain.ErrRunAborted, ctx.Err()))
		}

		r.transition(log, result, StateSelecting, nil)
		next, idx, err := r.selectNext(ctx, p.Ledger, steps, cursor)
		if err != nil {
			result.State = StateFailed
			return result, err
		}
		if next == nil {
			r.transition(log, result, StateDone, nil)
			r.progress.OnProgress(ctx, ProgressEvent{Network: p.Network.Name, Stage: StageRunCompleted, Total: len(steps), Metadata: result})
			return result, nil
		}
		result.Skipped += idx - cursor
		cursor = idx + 1

		r.transition(log, result, StateExecuting, next)
		r.progress.OnProgress(ctx, ProgressEvent{
			Network:  p.Network.Name,
			Stage:    StageStepStarting,
			Current:  idx + 1,
			Total:    len(steps),
			Message:  fmt.Sprintf("%s %s %s", next.Tag, next.Action, next.Instance),
			Spinner:  true,
			Metadata: next,
		})

		started := r.now()
		stepCtx := context.WithoutCancel(ctx)
		outcome, err := r.execute(stepCtx, p, next)
		if err != nil {
			return r.fail(ctx, log, result, p.Network, next, err)
		}

		r.transition(log, result, StateRecording, next)
		if err := p.Ledger.Commit(stepCtx, outcome); err != nil {
			return r.fail(ctx, log, result, p.Network, next, err)
		}

		executed := &ExecutedStep{
			Step:     next,
			TxHashes: outcome.Step.TxHashes,
			NoOp:     outcome.Step.NoOp,
			Duration: r.now().Sub(started),
		}
		result.Executed = append(result.Executed, executed)
		log.Info("step applied", "step", next.Tag, "action", next.Action, "instance", next.Instance, "noop", executed.NoOp)
		r.progress.OnProgress(ctx, ProgressEvent{
			Network:  p.Network.Name,
			Stage:    StageStepCompleted,
			Current:  idx + 1,
			Total:    len(steps),
			Metadata: executed,
		})
	}
}

func (r *MigrationRunner) transition(log *slog.Logger, result *RunResult, state RunState, step *models.MigrationStep) {
	result.State = state
	if step != nil {
		log.Debug("runner state", "state", state, "step", step.Tag, "instance", step.Instance)
		return
	}
	log.Debug("runner state", "state", state)
}

func (r *MigrationRunner) fail(ctx context.Context, log *slog.Logger, result *RunResult, network *models.Network, step *models.MigrationStep, err error) (*RunResult, error) {
	result.State = StateFailed
	result.Failed = step
	stepErr := &domain.StepError{
		Network:  network.Name,
		Seq:      step.ID.Seq,
		Index:    step.ID.Index,
		Tag:      step.Tag,
		Instance: step.Instance,
		Action:   string(step.Action),
		Err:      err,
	}
	log.Error("step failed", "step", step.Tag, "instance", step.Instance, "error", err)
	r.progress.OnProgress(ctx, ProgressEvent{Network: network.Name, Stage: StageStepFailed, Message: stepErr.Error(), Metadata: step})
	return result, stepErr
}

// load enumerates the steps and checks the ledger history is a prefix of
// them: nothing may be inserted behind applied steps and no applied step may
// disappear from the source.
func (r *MigrationRunner) load(ctx context.Context, p RunParams) ([]*models.MigrationStep, error) {
	steps, err := r.steps.Load(ctx)
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(steps); i++ {
		if !steps[i-1].ID.Less(steps[i].ID) {
			return nil, domain.NewConfigurationError(steps[i].File, "step %s is not after %s", steps[i].Tag, steps[i-1].Tag)
		}
	}

	applied, err := p.Ledger.Applied(ctx)
	if err != nil {
		return nil, err
	}
	if len(applied) > len(steps) {
		missing := applied[len(steps)]
		return nil, domain.NewConfigurationError("", "applied step %s on %s is missing from the migrations", missing.Tag, p.Network.Name)
	}
	for i, a := range applied {
		if steps[i].ID != a.ID {
			return nil, domain.NewConfigurationError(steps[i].File,
				"migrations diverge from ledger history on %s at %s (ledger has %s)", p.Network.Name, steps[i].Tag, a.Tag)
		}
	}
	return steps, nil
}

// selectNext returns the lowest step at or after cursor that is not applied
func (r *MigrationRunner) selectNext(ctx context.Context, ledger Ledger, steps []*models.MigrationStep, cursor int) (*models.MigrationStep, int, error) {
	for i := cursor; i < len(steps); i++ {
		applied, err := ledger.HasApplied(ctx, steps[i].ID)
		if err != nil {
			return nil, 0, err
		}
		if !applied {
			return steps[i], i, nil
		}
	}
	return nil, len(steps), nil
}

func (r *MigrationRunner) execute(ctx context.Context, p RunParams, step *models.MigrationStep) (*models.StepOutcome, error) {
	network := p.Network.Name
	accounts, err := r.resolver.ResolveAll(step.RequiredRoles(), network)
	if err != nil {
		return nil, err
	}
	from, ok := accounts[step.From]
	if !ok {
		return nil, domain.NewConfigurationError(step.File, "step %s has no sender", step.Tag)
	}

	args := &argResolver{network: network, accounts: accounts, ledger: p.Ledger}
	target := Target{Network: p.Network, Ledger: p.Ledger, Chain: p.Chain}

	outcome := &models.StepOutcome{
		Step: models.AppliedStep{
			ID:       step.ID,
			Tag:      step.Tag,
			Action:   step.Action,
			Instance: step.Instance,
		},
	}

	switch step.Action {
	case models.ActionDeploy, models.ActionUpgrade, models.ActionCall:
		res, err := r.executeInstance(ctx, target, args, step, from)
		if err != nil {
			return nil, err
		}
		outcome.Record = res.Record
		outcome.Call = res.Call
		outcome.Step.TxHashes = res.TxHashes
		outcome.Step.NoOp = res.NoOp

	case models.ActionGrantRole, models.ActionRevokeRole:
		member, err := args.resolveString(ctx, step.Member)
		if err != nil {
			return nil, err
		}
		memberAddr, err := toAddress(member)
		if err != nil {
			return nil, domain.NewConfigurationError(step.File, "step %s member: %v", step.Tag, err)
		}
		params := RoleParams{Step: step.ID, Instance: step.Instance, Role: step.Role, Member: memberAddr, From: from}
		var res *RoleResult
		if step.Action == models.ActionGrantRole {
			res, err = r.grantor.Grant(ctx, target, params)
		} else {
			res, err = r.grantor.Revoke(ctx, target, params)
		}
		if err != nil {
			return nil, err
		}
		outcome.Grant = res.Grant
		outcome.Step.NoOp = res.NoOp
		if !res.NoOp {
			outcome.Step.TxHashes = []common.Hash{res.TxHash}
		}

	default:
		return nil, domain.NewConfigurationError(step.File, "unknown action %q", step.Action)
	}

	outcome.Step.AppliedAt = r.now().UTC()
	return outcome, nil
}

func (r *MigrationRunner) executeInstance(ctx context.Context, t Target, args *argResolver, step *models.MigrationStep, from models.Account) (*DeployResult, error) {
	resolved, err := args.resolve(ctx, step.Args)
	if err != nil {
		return nil, err
	}

	switch step.Action {
	case models.ActionDeploy:
		init, err := args.resolveCall(ctx, step.Init)
		if err != nil {
			return nil, err
		}
		params := DeployParams{Step: step.ID, Instance: step.Instance, Contract: step.ContractName(), Args: resolved, From: from, Init: init}
		if step.Proxy {
			return r.deployer.DeployProxy(ctx, t, params)
		}
		return r.deployer.Deploy(ctx, t, params)

	case models.ActionUpgrade:
		post, err := args.resolveCall(ctx, step.PostUpgrade)
		if err != nil {
			return nil, err
		}
		return r.deployer.UpgradeProxy(ctx, t, UpgradeParams{
			Step:        step.ID,
			Instance:    step.Instance,
			Contract:    step.Contract,
			Args:        resolved,
			From:        from,
			PostUpgrade: post,
		})

	default:
		return r.deployer.Execute(ctx, t, CallParams{Step: step.ID, Instance: step.Instance, Method: step.Method, Args: resolved, From: from})
	}
}

func toAddress(v any) (common.Address, error) {
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case string:
		if common.IsHexAddress(a) {
			return common.HexToAddress(a), nil
		}
	}
	return common.Address{}, fmt.Errorf("%v is not an address: %w", v, domain.ErrInvalidAddress)
}
