package deployments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Record is the persisted result of a contract deployment, one per
// deployment name and network.
type Record struct {
	Name            string          `json:"name" yaml:"name"`
	Contract        string          `json:"contract" yaml:"contract"`
	Address         common.Address  `json:"address" yaml:"address"`
	ABI             json.RawMessage `json:"abi,omitempty" yaml:"-"`
	TransactionHash common.Hash     `json:"transactionHash" yaml:"transaction_hash"`
	BlockNumber     uint64          `json:"blockNumber" yaml:"block_number"`
	GasUsed         uint64          `json:"gasUsed" yaml:"gas_used"`
	Deployer        common.Address  `json:"deployer" yaml:"deployer"`
	Args            []string        `json:"args" yaml:"args"`
	ArgsData        string          `json:"argsData" yaml:"-"`
	BytecodeHash    string          `json:"bytecodeHash" yaml:"bytecode_hash"`
	NumDeployments  int             `json:"numDeployments" yaml:"num_deployments"`
	Network         string          `json:"network" yaml:"network"`
	ChainID         uint64          `json:"chainId" yaml:"chain_id"`
	RunID           uuid.UUID       `json:"runId" yaml:"run_id"`
	DeployedAt      time.Time       `json:"deployedAt" yaml:"deployed_at"`
}

// Store persists deployment records.
type Store interface {
	Get(ctx context.Context, network, name string) (*Record, error)
	Save(ctx context.Context, rec *Record) error
	List(ctx context.Context, network string) ([]*Record, error)
}

// FileStore keeps one JSON file per deployment under
// <dir>/<network>/<name>.json, next to a .chainId marker file.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(network, name string) string {
	return filepath.Join(s.dir, network, name+".json")
}

// Get returns the record for name, or ErrRecordNotFound.
func (s *FileStore) Get(_ context.Context, network, name string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(s.path(network, name))
}

func (s *FileStore) read(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRecordCorrupted, path, err)
	}
	return &rec, nil
}

// Save writes rec atomically.
func (s *FileStore) Save(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	netDir := filepath.Join(s.dir, rec.Network)
	if err := os.MkdirAll(netDir, 0755); err != nil {
		return fmt.Errorf("create deployments dir: %w", err)
	}

	chainIDPath := filepath.Join(netDir, ".chainId")
	if err := os.WriteFile(chainIDPath, []byte(fmt.Sprintf("%d", rec.ChainID)), 0644); err != nil {
		return fmt.Errorf("write chain id: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	path := s.path(rec.Network, rec.Name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename record: %w", err)
	}
	return nil
}

// List returns all records for a network sorted by name.
func (s *FileStore) List(_ context.Context, network string) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, network))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	var records []*Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rec, err := s.read(filepath.Join(s.dir, network, e.Name()))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func memoryKey(network, name string) string {
	return network + "/" + name
}

func (s *MemoryStore) Get(_ context.Context, network, name string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[memoryKey(network, name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, network, name)
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[memoryKey(rec.Network, rec.Name)] = &cp
	return nil
}

func (s *MemoryStore) List(_ context.Context, network string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []*Record
	for _, rec := range s.records {
		if rec.Network == network {
			cp := *rec
			records = append(records, &cp)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}
