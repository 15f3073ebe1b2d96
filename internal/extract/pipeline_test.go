package extract

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"ledgerScope/internal/contracts"
	"ledgerScope/internal/decode"
	"ledgerScope/internal/indexer"
	"ledgerScope/internal/model"
)

var (
	flexAddr      = common.HexToAddress("0x7b2b3c5308ab5b2a1d9a94d20d35ccdf61e05b72")
	trackedA      = common.HexToAddress("0x9f20a29cb0615d37dba2ad7a2679e4cb09a5cf11")
	otherX        = common.HexToAddress("0x1111111111111111111111111111111111111111")
	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	multTopic     = crypto.Keccak256Hash([]byte("ChangeMultiplier(uint256)"))
)

type fakeNode struct {
	mu         sync.Mutex
	logs       []types.Log
	txs        []model.TxRecord
	receipts   map[string][]types.Log
	timestamps map[uint64]uint64
	latest     uint64
}

func matches(log types.Log, query ethereum.FilterQuery) bool {
	if len(query.Addresses) > 0 {
		found := false
		for _, address := range query.Addresses {
			if address == log.Address {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	for i, slot := range query.Topics {
		if len(slot) == 0 {
			continue
		}
		if i >= len(log.Topics) {
			return false
		}
		found := false
		for _, topic := range slot {
			if topic == log.Topics[i] {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (n *fakeNode) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var out []types.Log
	for _, log := range n.logs {
		if log.BlockNumber < query.FromBlock.Uint64() || log.BlockNumber > query.ToBlock.Uint64() {
			continue
		}
		if matches(log, query) {
			out = append(out, log)
		}
	}
	return out, nil
}

func (n *fakeNode) QueryTxByAddr(ctx context.Context, address common.Address, fromBlock, toBlock, limit uint64) ([]model.TxRecord, error) {
	var out []model.TxRecord
	for _, tx := range n.txs {
		if tx.BlockNumber >= fromBlock && tx.BlockNumber <= toBlock {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (n *fakeNode) TransactionReceiptLogs(ctx context.Context, txHash string) ([]types.Log, error) {
	return n.receipts[txHash], nil
}

func (n *fakeNode) GetChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(10000), nil
}

func (n *fakeNode) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return n.latest, nil
}

func (n *fakeNode) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ts, ok := n.timestamps[number]
	if !ok {
		return 0, errors.New("unknown block")
	}
	return ts, nil
}

type recordingSink struct {
	mu     sync.Mutex
	groups map[string][]model.DecodedEvent
	order  []string
}

func (s *recordingSink) WriteGroup(ctx context.Context, key string, events []model.DecodedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groups == nil {
		s.groups = make(map[string][]model.DecodedEvent)
	}
	s.groups[key] = events
	s.order = append(s.order, key)
	return nil
}

type recordingBalances struct {
	contract string
	block    uint64
	balances map[string]*big.Int
}

func (b *recordingBalances) UpsertBalances(ctx context.Context, contract string, block uint64, balances map[string]*big.Int) error {
	b.contract, b.block, b.balances = contract, block, balances
	return nil
}

func word(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}

func mustBig(s string) *big.Int {
	n, _ := new(big.Int).SetString(s, 10)
	return n
}

func scenarioNode(t *testing.T) *fakeNode {
	t.Helper()
	transferHash := common.HexToHash("0x01")
	transfer := types.Log{
		Address:     flexAddr,
		Topics:      []common.Hash{transferTopic, indexer.AddressTopic(otherX), indexer.AddressTopic(trackedA)},
		Data:        word(mustBig("1000000000000000000000")),
		BlockNumber: 10,
		TxHash:      transferHash,
		Index:       0,
	}
	multiplier := types.Log{
		Address:     flexAddr,
		Topics:      []common.Hash{multTopic},
		Data:        word(mustBig("1100000000000000000")),
		BlockNumber: 20,
		TxHash:      common.HexToHash("0x02"),
		Index:       3,
	}

	registry, err := decode.NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	sep20, _ := registry.Get(decode.ABIERC20)
	input, err := sep20.Pack("transfer", otherX, big.NewInt(1))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	return &fakeNode{
		logs: []types.Log{transfer, multiplier},
		txs: []model.TxRecord{{
			BlockNumber: 30,
			TxHash:      common.HexToHash("0x03").Hex(),
			From:        model.NormalizeAddress(trackedA.Hex()),
			To:          model.NormalizeAddress(flexAddr.Hex()),
			Input:       hexutil.Encode(input),
			Value:       "0",
		}},
		receipts: map[string][]types.Log{
			common.HexToHash("0x03").Hex(): {transfer},
		},
		timestamps: map[uint64]uint64{10: 100, 20: 200, 30: 300},
		latest:     100,
	}
}

func newTestPipeline(t *testing.T, node Node, sink *recordingSink, balances *recordingBalances) *Pipeline {
	t.Helper()
	registry, err := decode.NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	manager := contracts.NewManager([]model.ContractInfo{{
		Address:  flexAddr.Hex(),
		Name:     "flexUSD",
		Symbol:   "flexUSD",
		Decimals: 18,
		ABINames: []string{decode.ABIFlexUSD, decode.ABIERC20},
	}}, contracts.Options{})
	opts := Options{
		Scan: indexer.ScanConfig{DefaultWindow: 1_000, GrowthFactor: 2, MaxGrowth: 4, MaxRetries: 1, RetryBackoff: time.Millisecond},
	}
	if sink != nil {
		opts.Sink = sink
	}
	if balances != nil {
		opts.Balances = balances
	}
	return NewPipeline(node, manager, decode.NewDecoder(registry, decode.DefaultFormat()), opts)
}

func TestPipelineEndToEnd(t *testing.T) {
	sink := &recordingSink{}
	balances := &recordingBalances{}
	pipeline := newTestPipeline(t, scenarioNode(t), sink, balances)

	result, err := pipeline.Run(context.Background(), Request{
		Accounts:            []common.Address{trackedA},
		Contracts:           []common.Address{flexAddr},
		Topic0:              []common.Hash{multTopic},
		IncludeTransactions: true,
		FractionDigits:      2,
		Concurrency:         2,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Range.To != 100 || result.Incomplete != 0 {
		t.Fatalf("unexpected result header: %+v / %d", result.Range, result.Incomplete)
	}
	if !reflect.DeepEqual(sink.order, []string{"Transfer", "ChangeMultiplier", "transfer"}) {
		t.Fatalf("unexpected groups: %v", sink.order)
	}

	transfers := sink.groups["Transfer"]
	if len(transfers) != 2 {
		t.Fatalf("expected the original and one synthetic transfer, got %d", len(transfers))
	}
	if transfers[0].IsSynthetic() || transfers[0].BlockDate != "1970-01-01T00:01:40.000Z" {
		t.Fatalf("unexpected first transfer: %+v", transfers[0])
	}
	if p, ok := transfers[0].Extras.Get("value(uint256)_"); !ok || p.String() != "1000.00" {
		t.Fatalf("display value mismatch: %+v", p)
	}
	synthetic := transfers[1]
	if !synthetic.IsSynthetic() || synthetic.BlockTimestamp != 200 {
		t.Fatalf("unexpected synthetic transfer: %+v", synthetic)
	}
	if value, _ := synthetic.Params.BigInt("value"); value.Cmp(mustBig("100000000000000000000")) != 0 {
		t.Fatalf("interest mismatch: %s", value)
	}

	contract := model.NormalizeAddress(flexAddr.Hex())
	account := model.NormalizeAddress(trackedA.Hex())
	if got := result.Balances[contract][account]; got.Cmp(mustBig("1100000000000000000000")) != 0 {
		t.Fatalf("final balance mismatch: %v", got)
	}
	if balances.contract != contract || balances.block != 100 {
		t.Fatalf("balances not stored: %+v", balances)
	}

	calls := sink.groups["transfer"]
	if len(calls) != 1 || calls[0].Source != model.SourceTransaction || calls[0].BlockTimestamp != 300 {
		t.Fatalf("unexpected call records: %+v", calls)
	}
}

func TestPipelineFatalConfiguration(t *testing.T) {
	pipeline := newTestPipeline(t, scenarioNode(t), nil, nil)

	_, err := pipeline.Run(context.Background(), Request{FromBlock: 50, ToBlock: 10, Accounts: []common.Address{trackedA}})
	if !errors.Is(err, indexer.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := pipeline.Run(context.Background(), Request{ToBlock: 10}); !errors.Is(err, ErrNoFilters) {
		t.Fatalf("expected ErrNoFilters, got %v", err)
	}
}

func TestPipelineWithoutTrackedAccountsSkipsReplay(t *testing.T) {
	sink := &recordingSink{}
	pipeline := newTestPipeline(t, scenarioNode(t), sink, nil)

	result, err := pipeline.Run(context.Background(), Request{Contracts: []common.Address{flexAddr}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Balances) != 0 {
		t.Fatalf("no balances expected without tracked accounts")
	}
	for _, event := range result.Events {
		if event.IsSynthetic() {
			t.Fatalf("unexpected synthetic event")
		}
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected both logs of the contract, got %d", len(result.Events))
	}
}

func TestChainOrderPlacesInterestAfterItsMultiplier(t *testing.T) {
	event := func(name string, logIndex uint64, abiKind string) model.DecodedEvent {
		return model.DecodedEvent{BlockNumber: 20, BlockTimestamp: 200, LogIndex: logIndex, EventName: name, ABIKind: abiKind}
	}
	events := []model.DecodedEvent{
		event("Transfer", 5, decode.ABIFlexUSD),
		event("Transfer", 3, model.ABIKindSynthetic),
		event("ChangeMultiplier", 3, decode.ABIFlexUSD),
		event("Transfer", 1, decode.ABIFlexUSD),
		{BlockNumber: 19, BlockTimestamp: 190, LogIndex: 9, EventName: "Approval", ABIKind: decode.ABIERC20},
	}

	sort.SliceStable(events, func(i, j int) bool { return chainOrderLess(events[i], events[j]) })

	var got []string
	for _, e := range events {
		label := e.EventName
		if e.IsSynthetic() {
			label += "*"
		}
		got = append(got, label)
	}
	want := []string{"Approval", "Transfer", "ChangeMultiplier", "Transfer*", "Transfer"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected order: %v", got)
	}
	if events[4].LogIndex != 5 {
		t.Fatalf("later transfer should stay after the interest record: %+v", events[4])
	}
}
