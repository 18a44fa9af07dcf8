package ledger

import (
	"fmt"
	"sort"

	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
)

// state is the in-memory form of a ledger partition shared by the memory and
// file backends. It is not safe for concurrent use; callers hold a lock.
type state struct {
	ChainID uint64                              `json:"chainId"`
	Records map[string]*models.DeploymentRecord `json:"records"`
	Grants  []*models.RoleGrant                 `json:"grants"`
	Calls   []*models.CallRecord                `json:"calls"`
	Applied []*models.AppliedStep               `json:"applied"`
}

func newState(chainID uint64) *state {
	return &state{
		ChainID: chainID,
		Records: make(map[string]*models.DeploymentRecord),
	}
}

func (s *state) lastApplied() (models.StepID, bool) {
	if len(s.Applied) == 0 {
		return models.StepID{}, false
	}
	return s.Applied[len(s.Applied)-1].ID, true
}

func (s *state) hasApplied(id models.StepID) bool {
	i := sort.Search(len(s.Applied), func(i int) bool {
		return !s.Applied[i].ID.Less(id)
	})
	return i < len(s.Applied) && s.Applied[i].ID == id
}

func (s *state) grantIndex(key models.RoleGrantKey) int {
	for i, g := range s.Grants {
		if g.RoleGrantKey == key {
			return i
		}
	}
	return -1
}

func (s *state) hasRoleGrant(key models.RoleGrantKey) bool {
	i := s.grantIndex(key)
	return i >= 0 && s.Grants[i].Held
}

// apply adds a step outcome. It rejects any step that is not strictly after
// the last applied one.
func (s *state) apply(outcome *models.StepOutcome) error {
	if err := checkOrder(s.lastApplied, outcome); err != nil {
		return err
	}

	if outcome.Record != nil {
		s.Records[outcome.Record.Instance] = outcome.Record.Clone()
	}
	if outcome.Grant != nil {
		g := *outcome.Grant
		if i := s.grantIndex(g.RoleGrantKey); i >= 0 {
			s.Grants[i] = &g
		} else {
			s.Grants = append(s.Grants, &g)
		}
	}
	if outcome.Call != nil {
		c := *outcome.Call
		s.Calls = append(s.Calls, &c)
	}
	step := outcome.Step
	s.Applied = append(s.Applied, &step)
	return nil
}

func checkOrder(last func() (models.StepID, bool), outcome *models.StepOutcome) error {
	if outcome == nil || outcome.Step.ID.IsZero() {
		return fmt.Errorf("outcome without a step id")
	}
	if prev, ok := last(); ok && !prev.Less(outcome.Step.ID) {
		return fmt.Errorf("step %s recorded out of order: last applied is %s", outcome.Step.ID, prev)
	}
	return nil
}

func (s *state) clone() *state {
	cp := newState(s.ChainID)
	for k, r := range s.Records {
		cp.Records[k] = r.Clone()
	}
	for _, g := range s.Grants {
		g := *g
		cp.Grants = append(cp.Grants, &g)
	}
	for _, c := range s.Calls {
		c := *c
		cp.Calls = append(cp.Calls, &c)
	}
	for _, a := range s.Applied {
		a := *a
		cp.Applied = append(cp.Applied, &a)
	}
	return cp
}

func (s *state) snapshot(network string) *models.LedgerSnapshot {
	cp := s.clone()
	snap := &models.LedgerSnapshot{
		Network: network,
		ChainID: cp.ChainID,
		Grants:  cp.Grants,
		Calls:   cp.Calls,
		Applied: cp.Applied,
	}
	for _, r := range cp.Records {
		snap.Records = append(snap.Records, r)
	}
	sort.Slice(snap.Records, func(i, j int) bool {
		return snap.Records[i].Instance < snap.Records[j].Instance
	})
	return snap
}

// importSnapshot replaces an empty state with the snapshot's content
func (s *state) importSnapshot(snap *models.LedgerSnapshot) error {
	if len(s.Applied) > 0 {
		return fmt.Errorf("cannot import into a ledger with %d applied steps", len(s.Applied))
	}
	for i := 1; i < len(snap.Applied); i++ {
		if !snap.Applied[i-1].ID.Less(snap.Applied[i].ID) {
			return fmt.Errorf("snapshot steps out of order at %s", snap.Applied[i].ID)
		}
	}
	src := &state{
		ChainID: s.ChainID,
		Records: make(map[string]*models.DeploymentRecord, len(snap.Records)),
		Grants:  snap.Grants,
		Calls:   snap.Calls,
		Applied: snap.Applied,
	}
	for _, r := range snap.Records {
		src.Records[r.Instance] = r
	}
	*s = *src.clone()
	return nil
}
