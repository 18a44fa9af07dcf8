package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/bancorprotocol/carbon-migrate/internal/domain"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/config"
	"github.com/bancorprotocol/carbon-migrate/internal/domain/models"
	"github.com/bancorprotocol/carbon-migrate/internal/usecase"
)

// artifactJSON covers both hardhat (bytecode as a string) and forge
// (bytecode as an object) artifact layouts
type artifactJSON struct {
	ContractName     string          `json:"contractName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         json.RawMessage `json:"bytecode"`
	DeployedBytecode json.RawMessage `json:"deployedBytecode"`
}

// ArtifactRepository loads compiled contracts from the artifacts directory
type ArtifactRepository struct {
	dir string

	mu    sync.Mutex
	cache map[string]*models.Artifact
}

// NewArtifactRepository creates a repository over the project's artifacts
func NewArtifactRepository(cfg *config.RuntimeConfig) *ArtifactRepository {
	return &ArtifactRepository{
		dir:   cfg.Project.ArtifactsDir,
		cache: make(map[string]*models.Artifact),
	}
}

// Get returns the named artifact, looking for <Name>.json first and then the
// forge layout <Name>.sol/<Name>.json
func (r *ArtifactRepository) Get(ctx context.Context, name string) (*models.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.cache[name]; ok {
		return a, nil
	}

	candidates := []string{
		filepath.Join(r.dir, name+".json"),
		filepath.Join(r.dir, name+".sol", name+".json"),
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
		}
		a, err := parseArtifact(name, path, data)
		if err != nil {
			return nil, &domain.ConfigurationError{Source: path, Reason: "invalid artifact", Err: err}
		}
		r.cache[name] = a
		return a, nil
	}
	return nil, fmt.Errorf("artifact %s in %s: %w", name, r.dir, domain.ErrNotFound)
}

func parseArtifact(name, path string, data []byte) (*models.Artifact, error) {
	var raw artifactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw.ABI) == 0 {
		return nil, fmt.Errorf("missing abi")
	}
	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	bytecode, err := decodeBytecode(raw.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("bytecode: %w", err)
	}
	deployed, err := decodeBytecode(raw.DeployedBytecode)
	if err != nil {
		return nil, fmt.Errorf("deployedBytecode: %w", err)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw.ABI); err != nil {
		return nil, err
	}

	return &models.Artifact{
		Name:             name,
		Path:             path,
		ABI:              parsed,
		RawABI:           compact.Bytes(),
		Bytecode:         bytecode,
		DeployedBytecode: deployed,
	}, nil
}

// decodeBytecode accepts "0x..." or {"object": "0x..."}; forge omits the
// 0x prefix in some versions
func decodeBytecode(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		var obj struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("expected a hex string or an object with one")
		}
		hex = obj.Object
	}
	if hex == "" || hex == "0x" {
		return nil, nil
	}
	if strings.Contains(hex, "__") {
		return nil, fmt.Errorf("unlinked library placeholder")
	}
	if !strings.HasPrefix(hex, "0x") {
		hex = "0x" + hex
	}
	return hexutil.Decode(hex)
}

var _ usecase.ArtifactRepository = (*ArtifactRepository)(nil)
