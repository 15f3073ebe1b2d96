package contracts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"ledgerScope/internal/model"
)

// DefaultFallbackABIs is assumed for contracts without configured metadata. The worst outcome
// of a wrong guess is an unknown decode.
var DefaultFallbackABIs = []string{"sep20"}

// Options configures a Manager. Without a Caller, unknown contracts get fallback metadata only.
type Options struct {
	Caller       Caller
	Store        Store
	Logger       *zap.Logger
	FallbackABIs []string
}

// Manager resolves contract metadata. Lookups are read-mostly; concurrent misses for the same
// address share a single fetch.
type Manager struct {
	caller    Caller
	store     Store
	logger    *zap.Logger
	fallback  []string
	mu        sync.RWMutex
	byAddress map[string]model.ContractInfo
	group     singleflight.Group
}

// NewManager seeds the cache with static contracts.
func NewManager(static []model.ContractInfo, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fallback := opts.FallbackABIs
	if len(fallback) == 0 {
		fallback = DefaultFallbackABIs
	}
	m := &Manager{
		caller:    opts.Caller,
		store:     opts.Store,
		logger:    logger,
		fallback:  append([]string(nil), fallback...),
		byAddress: make(map[string]model.ContractInfo, len(static)),
	}
	for _, info := range static {
		if len(info.ABINames) == 0 {
			info.ABINames = m.fallbackABIs()
		}
		m.Add(info)
	}
	return m
}

// Add registers or replaces metadata for a contract.
func (m *Manager) Add(info model.ContractInfo) {
	info.Address = model.NormalizeAddress(info.Address)
	m.mu.Lock()
	m.byAddress[info.Address] = info
	m.mu.Unlock()
}

// Lookup returns cached metadata without fetching.
func (m *Manager) Lookup(address string) (model.ContractInfo, bool) {
	m.mu.RLock()
	info, ok := m.byAddress[model.NormalizeAddress(address)]
	m.mu.RUnlock()
	return info, ok
}

// ByName finds a known contract by name or symbol, case-insensitively.
func (m *Manager) ByName(name string) (model.ContractInfo, bool) {
	name = strings.TrimSpace(name)
	for _, info := range m.Contracts() {
		if strings.EqualFold(info.Name, name) || strings.EqualFold(info.Symbol, name) {
			return info, true
		}
	}
	return model.ContractInfo{}, false
}

// Contracts lists the known contracts ordered by address.
func (m *Manager) Contracts() []model.ContractInfo {
	m.mu.RLock()
	out := make([]model.ContractInfo, 0, len(m.byAddress))
	for _, info := range m.byAddress {
		out = append(out, info)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Get returns metadata for address, fetching it on a miss. A contract whose metadata cannot be
// fetched is returned with the fallback ABI list and Fallback set; only context errors fail.
func (m *Manager) Get(ctx context.Context, address string) (model.ContractInfo, error) {
	key := model.NormalizeAddress(address)
	if !common.IsHexAddress(key) {
		return model.ContractInfo{}, fmt.Errorf("invalid contract address: %q", address)
	}
	if info, ok := m.Lookup(key); ok {
		return info, nil
	}

	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		if info, ok := m.Lookup(key); ok {
			return info, nil
		}
		info, err := m.resolve(ctx, key)
		if err != nil {
			return model.ContractInfo{}, err
		}
		m.Add(info)
		return info, nil
	})
	if err != nil {
		return model.ContractInfo{}, err
	}
	return v.(model.ContractInfo), nil
}

func (m *Manager) resolve(ctx context.Context, key string) (model.ContractInfo, error) {
	if m.store != nil {
		info, ok, err := m.store.Load(ctx, key)
		if err != nil {
			m.logger.Warn("contract cache read failed", zap.String("contract", key), zap.Error(err))
		} else if ok {
			return info, nil
		}
	}

	info := model.ContractInfo{Address: key}
	if m.caller != nil {
		fetched, err := FetchContractInfo(ctx, m.caller, common.HexToAddress(key), m.logger)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return model.ContractInfo{}, ctxErr
			}
			m.logger.Warn("contract metadata unavailable", zap.String("contract", key), zap.Error(err))
		} else {
			info = fetched
		}
	}
	info.ABINames = m.fallbackABIs()
	info.Fallback = true

	if m.store != nil && (info.Name != "" || info.Symbol != "" || info.Decimals != 0) {
		if err := m.store.Save(ctx, info); err != nil {
			m.logger.Warn("contract cache write failed", zap.String("contract", key), zap.Error(err))
		}
	}
	m.logger.Info("contract resolved", zap.String("contract", key), zap.String("symbol", info.Symbol), zap.Uint8("decimals", info.Decimals))
	return info, nil
}

func (m *Manager) fallbackABIs() []string {
	return append([]string(nil), m.fallback...)
}
