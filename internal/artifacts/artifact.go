// Package artifacts loads compiled Solidity contract artifacts (ABI and
// creation bytecode) produced by Hardhat or Foundry.
package artifacts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrArtifactNotFound = errors.New("popdeploy: contract artifact not found")
	ErrEmptyBytecode    = errors.New("popdeploy: artifact has no creation bytecode")
	ErrUnlinkedBytecode = errors.New("popdeploy: artifact bytecode has unlinked libraries")
)

// ContractArtifact represents a compiled Solidity contract with ABI and bytecode.
type ContractArtifact struct {
	ContractName     string          `json:"contractName,omitempty"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         Bytecode        `json:"bytecode"`
	DeployedBytecode Bytecode        `json:"deployedBytecode,omitempty"`
}

// Bytecode contains hex-encoded contract bytecode. Hardhat writes it as a
// plain string, Foundry as {"object": "0x..."}; both decode here.
type Bytecode struct {
	Object string `json:"object"`
}

// UnmarshalJSON accepts both the string and the object form.
func (b *Bytecode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &b.Object)
	}
	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	b.Object = obj.Object
	return nil
}

// GetBytecode returns the creation bytecode as a hex string (with 0x prefix).
func (a *ContractArtifact) GetBytecode() string {
	if a.Bytecode.Object == "" || strings.HasPrefix(a.Bytecode.Object, "0x") {
		return a.Bytecode.Object
	}
	return "0x" + a.Bytecode.Object
}

// ParsedABI parses the artifact's ABI.
func (a *ContractArtifact) ParsedABI() (abi.ABI, error) {
	if len(a.ABI) == 0 {
		return abi.ABI{}, fmt.Errorf("artifact %s has no ABI", a.ContractName)
	}
	parsed, err := abi.JSON(bytes.NewReader(a.ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse %s ABI: %w", a.ContractName, err)
	}
	return parsed, nil
}

// CreationCode decodes the creation bytecode.
func (a *ContractArtifact) CreationCode() ([]byte, error) {
	hex := a.GetBytecode()
	if hex == "" || hex == "0x" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyBytecode, a.ContractName)
	}
	// Unlinked library references look like __$<hash>$__ and are not hex.
	if strings.Contains(hex, "__") {
		return nil, fmt.Errorf("%w: %s", ErrUnlinkedBytecode, a.ContractName)
	}
	code, err := hexutil.Decode(hex)
	if err != nil {
		return nil, fmt.Errorf("decode %s bytecode: %w", a.ContractName, err)
	}
	return code, nil
}

// BytecodeHash returns the keccak256 hash of the creation bytecode.
func (a *ContractArtifact) BytecodeHash() (string, error) {
	code, err := a.CreationCode()
	if err != nil {
		return "", err
	}
	return crypto.Keccak256Hash(code).Hex(), nil
}

// Parse decodes an artifact from JSON.
func Parse(name string, data []byte) (*ContractArtifact, error) {
	var artifact ContractArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("unmarshal %s artifact: %w", name, err)
	}
	if artifact.ContractName == "" {
		artifact.ContractName = name
	}
	return &artifact, nil
}

// Loader finds and caches artifacts under a root directory.
type Loader struct {
	dir string

	mu    sync.Mutex
	cache map[string]*ContractArtifact
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:   dir,
		cache: make(map[string]*ContractArtifact),
	}
}

// Load returns the artifact for a contract name. It looks for <dir>/<name>.json
// first, then for any <name>.sol/<name>.json below dir, which covers both the
// Hardhat (artifacts/contracts/...) and Foundry (out/...) layouts.
func (l *Loader) Load(name string) (*ContractArtifact, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if a, ok := l.cache[name]; ok {
		return a, nil
	}

	path, err := l.find(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}

	artifact, err := Parse(name, data)
	if err != nil {
		return nil, err
	}

	l.cache[name] = artifact
	return artifact, nil
}

func (l *Loader) find(name string) (string, error) {
	direct := filepath.Join(l.dir, name+".json")
	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	}

	var found string
	want := filepath.Join(name+".sol", name+".json")
	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Hardhat build-info holds compiler input, not artifacts.
			if d.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, string(filepath.Separator)+want) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("search artifacts: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("%w: %s in %s", ErrArtifactNotFound, name, l.dir)
	}
	return found, nil
}
