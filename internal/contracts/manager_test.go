package contracts

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"ledgerScope/internal/model"
)

const flexAddr = "0x7b2b3c5308ab5b2a1d9a94d20d35ccdf61e05b72"

// fakeCaller answers ERC20 metadata calls and counts them per method.
type fakeCaller struct {
	mu       sync.Mutex
	calls    map[string]int
	results  map[string][]byte
	failAll  bool
	balances map[common.Address]*big.Int
}

func newFakeCaller(t *testing.T, name, symbol string, decimals uint8) *fakeCaller {
	t.Helper()
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	results := make(map[string][]byte)
	for method, value := range map[string]interface{}{"name": name, "symbol": symbol, "decimals": decimals} {
		packed, err := parsed.Methods[method].Outputs.Pack(value)
		if err != nil {
			t.Fatalf("pack %s: %v", method, err)
		}
		results[method] = packed
	}
	return &fakeCaller{calls: make(map[string]int), results: results, balances: make(map[common.Address]*big.Int)}
}

func (c *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	parsed, _ := erc20ABIStringInstance()
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method.Name]++
	if c.failAll {
		return nil, errors.New("execution reverted")
	}
	if method.Name == "balanceOf" {
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		balance := c.balances[args[0].(common.Address)]
		if balance == nil {
			balance = new(big.Int)
		}
		return method.Outputs.Pack(balance)
	}
	return c.results[method.Name], nil
}

func (c *fakeCaller) count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

type memoryStore struct {
	mu    sync.Mutex
	infos map[string]model.ContractInfo
	saves int
}

func (s *memoryStore) Load(ctx context.Context, address string) (model.ContractInfo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.infos[address]
	return info, ok, nil
}

func (s *memoryStore) Save(ctx context.Context, info model.ContractInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos[info.Address] = info
	s.saves++
	return nil
}

func TestManagerFetchesOnceUnderConcurrency(t *testing.T) {
	caller := newFakeCaller(t, "flexUSD", "flexUSD", 18)
	manager := NewManager(nil, Options{Caller: caller})

	var wg sync.WaitGroup
	infos := make([]model.ContractInfo, 16)
	for i := range infos {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info, err := manager.Get(context.Background(), "0x7B2B3C5308AB5B2A1D9A94D20D35CCDF61E05B72")
			if err != nil {
				t.Errorf("get: %v", err)
			}
			infos[i] = info
		}(i)
	}
	wg.Wait()

	if n := caller.count("decimals"); n != 1 {
		t.Fatalf("expected a single metadata fetch, got %d", n)
	}
	for _, info := range infos {
		if info.Address != flexAddr || info.Name != "flexUSD" || info.Decimals != 18 {
			t.Fatalf("unexpected info: %+v", info)
		}
		if !info.Fallback || len(info.ABINames) != 1 || info.ABINames[0] != "sep20" {
			t.Fatalf("fetched contract should use the fallback abi: %+v", info)
		}
	}
}

func TestManagerStaticContracts(t *testing.T) {
	caller := newFakeCaller(t, "x", "x", 0)
	static := []model.ContractInfo{
		{Address: "0x7B2B3C5308AB5B2A1D9A94D20D35CCDF61E05B72", Name: "flexUSD", Symbol: "flexUSD", Decimals: 18, ABINames: []string{"flexusd", "sep20"}},
		{Address: "0x3743ec0673453e5009310c727ba4eaf7b3a1cc04", Name: "Wrapped BCH", Symbol: "WBCH", Decimals: 18},
	}
	manager := NewManager(static, Options{Caller: caller})

	info, err := manager.Get(context.Background(), flexAddr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if info.Fallback || len(info.ABINames) != 2 || info.ABINames[0] != "flexusd" {
		t.Fatalf("static metadata not used: %+v", info)
	}
	if caller.count("decimals") != 0 {
		t.Fatalf("static contract should not be fetched")
	}

	wbch, ok := manager.ByName("wbch")
	if !ok || wbch.Address != "0x3743ec0673453e5009310c727ba4eaf7b3a1cc04" {
		t.Fatalf("lookup by symbol failed: %+v", wbch)
	}
	if len(wbch.ABINames) != 1 || wbch.ABINames[0] != "sep20" {
		t.Fatalf("static entry without abis should get the fallback list: %+v", wbch)
	}
	if len(manager.Contracts()) != 2 {
		t.Fatalf("expected 2 contracts")
	}
}

func TestManagerFallsBackWhenFetchFails(t *testing.T) {
	caller := newFakeCaller(t, "", "", 0)
	caller.failAll = true
	manager := NewManager(nil, Options{Caller: caller, FallbackABIs: []string{"sep20", "flexusd"}})

	info, err := manager.Get(context.Background(), flexAddr)
	if err != nil {
		t.Fatalf("missing metadata should not fail: %v", err)
	}
	if !info.Fallback || info.Decimals != 0 || len(info.ABINames) != 2 {
		t.Fatalf("unexpected fallback info: %+v", info)
	}
	if _, err := manager.Get(context.Background(), "not-an-address"); err == nil {
		t.Fatalf("expected invalid address error")
	}
}

func TestManagerUsesPersistentStore(t *testing.T) {
	caller := newFakeCaller(t, "flexUSD", "flexUSD", 18)
	store := &memoryStore{infos: make(map[string]model.ContractInfo)}

	first := NewManager(nil, Options{Caller: caller, Store: store})
	if _, err := first.Get(context.Background(), flexAddr); err != nil {
		t.Fatalf("get: %v", err)
	}
	if store.saves != 1 {
		t.Fatalf("expected the fetched contract to be saved")
	}

	second := NewManager(nil, Options{Caller: caller, Store: store})
	info, err := second.Get(context.Background(), flexAddr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if info.Symbol != "flexUSD" || caller.count("decimals") != 1 {
		t.Fatalf("second manager should read the store, decimals calls = %d", caller.count("decimals"))
	}
}

func TestFetchContractInfoBytes32Fallback(t *testing.T) {
	caller := newFakeCaller(t, "", "", 18)
	var word [32]byte
	copy(word[:], "MKR")
	caller.results["symbol"] = word[:]
	caller.results["name"] = word[:]

	info, err := FetchContractInfo(context.Background(), caller, common.HexToAddress(flexAddr), nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if info.Symbol != "MKR" || info.Name != "MKR" || info.Decimals != 18 {
		t.Fatalf("bytes32 metadata not decoded: %+v", info)
	}
}

func TestBalanceOf(t *testing.T) {
	caller := newFakeCaller(t, "", "", 18)
	owner := common.HexToAddress("0x9f20a29cb0615d37dba2ad7a2679e4cb09a5cf11")
	caller.balances[owner] = big.NewInt(4200)

	balance, err := BalanceOf(context.Background(), caller, common.HexToAddress(flexAddr), owner, nil)
	if err != nil {
		t.Fatalf("balanceOf: %v", err)
	}
	if balance.Int64() != 4200 {
		t.Fatalf("unexpected balance: %s", balance)
	}
}
