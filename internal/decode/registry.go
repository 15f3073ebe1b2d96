package decode

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	// ABIERC20 is the generic token ABI, also used for contracts without metadata.
	ABIERC20 = "sep20"
	// ABIFlexUSD is the rebasing token ABI carrying ChangeMultiplier.
	ABIFlexUSD = "flexusd"
	// ABIUniswapV3Pool covers Swap/Mint/Burn/Collect of V3 style pools.
	ABIUniswapV3Pool = "uniswapv3pool"
)

//go:embed abis/*.json
var builtinABIs embed.FS

// Registry holds named ABIs. Names are case-insensitive.
type Registry struct {
	mu   sync.RWMutex
	abis map[string]abi.ABI
}

// NewRegistry returns a registry preloaded with the built-in ABIs.
func NewRegistry() (*Registry, error) {
	r := &Registry{abis: make(map[string]abi.ABI)}
	entries, err := builtinABIs.ReadDir("abis")
	if err != nil {
		return nil, fmt.Errorf("read builtin abis: %w", err)
	}
	for _, entry := range entries {
		data, err := builtinABIs.ReadFile("abis/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read builtin abi %s: %w", entry.Name(), err)
		}
		if err := r.RegisterJSON(strings.TrimSuffix(entry.Name(), ".json"), data); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces an ABI.
func (r *Registry) Register(name string, parsed abi.ABI) {
	r.mu.Lock()
	r.abis[normalizeName(name)] = parsed
	r.mu.Unlock()
}

// RegisterJSON parses and adds an ABI. Both a bare ABI array and a build artifact
// with an "abi" field are accepted.
func (r *Registry) RegisterJSON(name string, data []byte) error {
	if normalizeName(name) == "" {
		return fmt.Errorf("abi name is empty")
	}
	raw := bytes.TrimSpace(data)
	if len(raw) > 0 && raw[0] == '{' {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(raw, &artifact); err != nil {
			return fmt.Errorf("parse abi artifact %s: %w", name, err)
		}
		if len(artifact.ABI) == 0 {
			return fmt.Errorf("abi artifact %s has no abi field", name)
		}
		raw = artifact.ABI
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse abi %s: %w", name, err)
	}
	r.Register(name, parsed)
	return nil
}

// LoadDir registers every <name>.json file of dir and returns how many were loaded.
func (r *Registry) LoadDir(dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("list abi dir: %w", err)
	}
	sort.Strings(paths)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("read abi file: %w", err)
		}
		if err := r.RegisterJSON(strings.TrimSuffix(filepath.Base(path), ".json"), data); err != nil {
			return 0, err
		}
	}
	return len(paths), nil
}

// Get returns the ABI registered under name.
func (r *Registry) Get(name string) (abi.ABI, bool) {
	r.mu.RLock()
	parsed, ok := r.abis[normalizeName(name)]
	r.mu.RUnlock()
	return parsed, ok
}

// Names lists the registered ABI names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.abis))
	for name := range r.abis {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
