package steps

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/config"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

var (
	fileNamePattern = regexp.MustCompile(`^(\d+)-([A-Za-z0-9_.-]+?)\.ya?ml$`)
	integerText     = regexp.MustCompile(`^[-+]?[0-9]+$`)
)

// stepFile is the YAML layout of one migration file
type stepFile struct {
	Description string       `yaml:"description"`
	Actions     []actionSpec `yaml:"actions"`
}

type actionSpec struct {
	Action      string      `yaml:"action"`
	Description string      `yaml:"description"`
	Instance    string      `yaml:"instance"`
	Contract    string      `yaml:"contract"`
	Proxy       bool        `yaml:"proxy"`
	From        string      `yaml:"from"`
	Args        []yaml.Node `yaml:"args"`
	Method      string      `yaml:"method"`
	Role        string      `yaml:"role"`
	Member      string      `yaml:"member"`
	Init        *callSpec   `yaml:"init"`
	PostUpgrade *callSpec   `yaml:"post_upgrade"`
	Requires    []string    `yaml:"requires"`
}

type callSpec struct {
	Method string      `yaml:"method"`
	Args   []yaml.Node `yaml:"args"`
}

// YAMLSource loads migration steps from NNNN-Name.yaml files
type YAMLSource struct {
	dir       string
	allowGaps bool
	log       *slog.Logger
}

// NewYAMLSource creates a step source over the project's migrations directory
func NewYAMLSource(cfg *config.RuntimeConfig, log *slog.Logger) *YAMLSource {
	return &YAMLSource{
		dir:       cfg.Project.MigrationsDir,
		allowGaps: cfg.Project.AllowGaps,
		log:       log,
	}
}

// Load reads every migration file and returns the steps in StepID order
func (s *YAMLSource) Load(ctx context.Context) ([]*models.MigrationStep, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &domain.ConfigurationError{Source: s.dir, Reason: "cannot read migrations directory", Err: err}
	}

	type migrationFile struct {
		seq  uint64
		raw  string
		name string
		path string
	}
	var files []migrationFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		m := fileNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, domain.NewConfigurationError(e.Name(), "migration files must be named NNNN-Name.yaml")
		}
		seq, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return nil, domain.NewConfigurationError(e.Name(), "bad sequence number %q", m[1])
		}
		files = append(files, migrationFile{seq: seq, raw: m[1], name: m[2], path: filepath.Join(s.dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].seq < files[j].seq })

	var out []*models.MigrationStep
	for i, f := range files {
		if i > 0 {
			prev := files[i-1]
			if prev.seq == f.seq {
				return nil, domain.NewConfigurationError(filepath.Base(f.path), "sequence %d is also used by %s", f.seq, filepath.Base(prev.path))
			}
			if !s.allowGaps && f.seq != prev.seq+1 {
				return nil, domain.NewConfigurationError(filepath.Base(f.path), "gap after sequence %d (set allow_gaps to permit)", prev.seq)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fileSteps, err := s.loadFile(f.path, f.seq, f.raw+"-"+f.name)
		if err != nil {
			return nil, err
		}
		out = append(out, fileSteps...)
	}

	s.log.Debug("loaded migration steps", "dir", s.dir, "files", len(files), "steps", len(out))
	return out, nil
}

func (s *YAMLSource) loadFile(path string, seq uint64, tagPrefix string) ([]*models.MigrationStep, error) {
	source := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigurationError{Source: source, Reason: "cannot read file", Err: err}
	}
	var sf stepFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, &domain.ConfigurationError{Source: source, Reason: "invalid YAML", Err: err}
	}
	if len(sf.Actions) == 0 {
		return nil, domain.NewConfigurationError(source, "no actions")
	}

	out := make([]*models.MigrationStep, 0, len(sf.Actions))
	for i, a := range sf.Actions {
		step, err := buildStep(a, models.StepID{Seq: seq, Index: i + 1})
		if err != nil {
			return nil, &domain.ConfigurationError{Source: fmt.Sprintf("%s action %d", source, i+1), Reason: err.Error()}
		}
		step.Tag = fmt.Sprintf("%s#%d", tagPrefix, i+1)
		step.File = path
		if step.Description == "" {
			step.Description = sf.Description
		}
		out = append(out, step)
	}
	return out, nil
}

func buildStep(a actionSpec, id models.StepID) (*models.MigrationStep, error) {
	kind := models.ActionKind(a.Action)
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown action %q", a.Action)
	}
	if a.Instance == "" {
		return nil, fmt.Errorf("%s: instance is required", kind)
	}
	if a.From == "" {
		return nil, fmt.Errorf("%s %s: from is required", kind, a.Instance)
	}

	args, err := nodeValues(a.Args)
	if err != nil {
		return nil, err
	}
	step := &models.MigrationStep{
		ID:          id,
		Description: a.Description,
		Action:      kind,
		Instance:    a.Instance,
		Contract:    a.Contract,
		Proxy:       a.Proxy,
		From:        a.From,
		Args:        args,
		Method:      a.Method,
		Role:        a.Role,
		Member:      a.Member,
		Requires:    a.Requires,
	}
	if step.Init, err = buildCall(a.Init); err != nil {
		return nil, err
	}
	if step.PostUpgrade, err = buildCall(a.PostUpgrade); err != nil {
		return nil, err
	}

	switch kind {
	case models.ActionDeploy:
		if step.Init != nil && !step.Proxy {
			return nil, fmt.Errorf("deploy %s: init needs proxy: true", a.Instance)
		}
	case models.ActionCall:
		if a.Method == "" {
			return nil, fmt.Errorf("call %s: method is required", a.Instance)
		}
	case models.ActionGrantRole, models.ActionRevokeRole:
		if a.Role == "" || a.Member == "" {
			return nil, fmt.Errorf("%s %s: role and member are required", kind, a.Instance)
		}
	}
	if kind != models.ActionDeploy && (a.Proxy || step.Init != nil) {
		return nil, fmt.Errorf("%s %s: proxy and init apply to deploy only", kind, a.Instance)
	}
	if kind != models.ActionUpgrade && step.PostUpgrade != nil {
		return nil, fmt.Errorf("%s %s: post_upgrade applies to upgrade only", kind, a.Instance)
	}
	return step, nil
}

func buildCall(c *callSpec) (*models.MethodCall, error) {
	if c == nil {
		return nil, nil
	}
	if c.Method == "" {
		return nil, fmt.Errorf("method call without a method name")
	}
	args, err := nodeValues(c.Args)
	if err != nil {
		return nil, err
	}
	return &models.MethodCall{Method: c.Method, Args: args}, nil
}

func nodeValues(nodes []yaml.Node) ([]any, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	out := make([]any, 0, len(nodes))
	for i := range nodes {
		v, err := nodeValue(&nodes[i])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// nodeValue converts an argument node. Integers stay in their source text
// so values wider than 64 bits survive until ABI coercion.
func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return nil, nil
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err != nil {
				return nil, err
			}
			return b, nil
		case "!!float":
			// integers past uint64 resolve as floats
			if integerText.MatchString(n.Value) {
				return n.Value, nil
			}
			return nil, fmt.Errorf("line %d: fractional value %s is not an ABI type", n.Line, n.Value)
		default:
			return n.Value, nil
		}
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	default:
		return nil, fmt.Errorf("line %d: unsupported argument; use scalars or lists", n.Line)
	}
}

var _ usecase.StepSource = (*YAMLSource)(nil)
