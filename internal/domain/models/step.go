package models

import (
	"fmt"
	"strings"
)

// ActionKind is the kind of work a migration step performs
type ActionKind string

const (
	ActionDeploy     ActionKind = "deploy"
	ActionUpgrade    ActionKind = "upgrade"
	ActionCall       ActionKind = "call"
	ActionGrantRole  ActionKind = "grant-role"
	ActionRevokeRole ActionKind = "revoke-role"
)

// Valid reports whether k is a known action kind
func (k ActionKind) Valid() bool {
	switch k {
	case ActionDeploy, ActionUpgrade, ActionCall, ActionGrantRole, ActionRevokeRole:
		return true
	}
	return false
}

// StepID orders steps: Seq comes from the file tag, Index is the 1-based
// position of the action inside that file.
type StepID struct {
	Seq   uint64 `json:"seq"`
	Index int    `json:"index"`
}

// Less reports whether id sorts before other
func (id StepID) Less(other StepID) bool {
	if id.Seq != other.Seq {
		return id.Seq < other.Seq
	}
	return id.Index < other.Index
}

// IsZero reports whether id is unset
func (id StepID) IsZero() bool { return id.Seq == 0 && id.Index == 0 }

func (id StepID) String() string {
	return fmt.Sprintf("%04d#%d", id.Seq, id.Index)
}

// MethodCall is a method name with unresolved arguments
type MethodCall struct {
	Method string `json:"method"`
	Args   []any  `json:"args,omitempty"`
}

// DisabledInitializer turns off the default proxy initializer
const DisabledInitializer = "-"

// MigrationStep is one ordered unit of deployment work
type MigrationStep struct {
	ID          StepID
	Tag         string
	File        string
	Description string

	Action   ActionKind
	Instance string
	Contract string
	Proxy    bool
	From     string
	Args     []any

	Method string
	Role   string
	Member string

	Init        *MethodCall
	PostUpgrade *MethodCall
	Requires    []string
}

// ContractName returns the artifact name, defaulting to the instance name
func (s *MigrationStep) ContractName() string {
	if s.Contract != "" {
		return s.Contract
	}
	return s.Instance
}

// RequiredRoles lists every named account the step needs: the sender, each
// $role reference in arguments and the explicit requires list.
func (s *MigrationStep) RequiredRoles() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(role string) {
		if role != "" && !seen[role] {
			seen[role] = true
			out = append(out, role)
		}
	}
	add(s.From)
	collectAccountRefs(s.Args, add)
	if ref, ok := AccountRef(s.Member); ok {
		add(ref)
	}
	if s.Init != nil {
		collectAccountRefs(s.Init.Args, add)
	}
	if s.PostUpgrade != nil {
		collectAccountRefs(s.PostUpgrade.Args, add)
	}
	for _, r := range s.Requires {
		add(r)
	}
	return out
}

func collectAccountRefs(args []any, add func(string)) {
	for _, a := range args {
		switch v := a.(type) {
		case string:
			if ref, ok := AccountRef(v); ok {
				add(ref)
			}
		case []any:
			collectAccountRefs(v, add)
		}
	}
}

// AccountRef returns the role name of a "$role" argument
func AccountRef(s string) (string, bool) {
	if len(s) > 1 && strings.HasPrefix(s, "$") {
		return s[1:], true
	}
	return "", false
}

// InstanceRef returns the instance name of an "@Instance" argument
func InstanceRef(s string) (string, bool) {
	if len(s) > 1 && strings.HasPrefix(s, "@") {
		return s[1:], true
	}
	return "", false
}
