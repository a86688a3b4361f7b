package cosmos_test

import (
	"context"
	"sync"
	"time"

	"github.com/celestiaorg/ismp/pkg/ismp/cosmos"
	"github.com/celestiaorg/ismp/x/ismp/types"
	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/cometbft/cometbft/libs/bytes"
	cmtcrypto "github.com/cometbft/cometbft/proto/tendermint/crypto"
	rpcclient "github.com/cometbft/cometbft/rpc/client"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
)

type abciQuery struct {
	key  string
	opts rpcclient.ABCIQueryOptions
}

// fakeRPC serves a single ismp store, a transaction index and websocket subscriptions from memory.
type fakeRPC struct {
	mu           sync.Mutex
	store        map[string][]byte
	proofs       map[string]*cmtcrypto.ProofOps
	code         uint32
	queries      []abciQuery
	status       coretypes.ResultStatus
	txs          []*coretypes.ResultTx
	searches     []string
	subs         map[string]chan coretypes.ResultEvent
	unsubscribed []string
}

var _ cosmos.RPCClient = (*fakeRPC)(nil)

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		store:  make(map[string][]byte),
		proofs: make(map[string]*cmtcrypto.ProofOps),
		subs:   make(map[string]chan coretypes.ResultEvent),
	}
}

func (f *fakeRPC) set(key, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[string(key)] = value
}

func (f *fakeRPC) setProof(key []byte, ops ...cmtcrypto.ProofOp) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proofs[string(key)] = &cmtcrypto.ProofOps{Ops: ops}
}

func (f *fakeRPC) setStatus(height int64, t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.SyncInfo = coretypes.SyncInfo{LatestBlockHeight: height, LatestBlockTime: t}
}

func (f *fakeRPC) addTx(height int64, code uint32, events ...abci.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, &coretypes.ResultTx{
		Height:   height,
		TxResult: abci.ExecTxResult{Code: code, Events: events},
	})
}

// publish delivers a transaction result to every subscriber.
func (f *fakeRPC) publish(height int64, events ...abci.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- coretypes.ResultEvent{Data: cmttypes.EventDataTx{TxResult: abci.TxResult{Height: height, Result: abci.ExecTxResult{Events: events}}}}
	}
}

// drop closes every subscription as the node does when the websocket connection is lost.
func (f *fakeRPC) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for subscriber, ch := range f.subs {
		close(ch)
		delete(f.subs, subscriber)
	}
}

func (f *fakeRPC) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeRPC) ABCIQueryWithOptions(_ context.Context, path string, data bytes.HexBytes, opts rpcclient.ABCIQueryOptions) (*coretypes.ResultABCIQuery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, abciQuery{key: string(data), opts: opts})

	res := &coretypes.ResultABCIQuery{}
	res.Response.Code = f.code
	res.Response.Height = opts.Height
	if path != "store/"+types.StoreKey+"/key" {
		res.Response.Code = 6
		return res, nil
	}
	res.Response.Value = f.store[string(data)]
	if opts.Prove {
		res.Response.ProofOps = f.proofs[string(data)]
	}
	return res, nil
}

func (f *fakeRPC) Status(context.Context) (*coretypes.ResultStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := f.status
	return &status, nil
}

func (f *fakeRPC) TxSearch(_ context.Context, query string, _ bool, page, perPage *int, _ string) (*coretypes.ResultTxSearch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)

	start := (*page - 1) * *perPage
	if start > len(f.txs) {
		start = len(f.txs)
	}
	end := min(start+*perPage, len(f.txs))
	return &coretypes.ResultTxSearch{Txs: f.txs[start:end], TotalCount: len(f.txs)}, nil
}

func (f *fakeRPC) Subscribe(_ context.Context, subscriber, _ string, _ ...int) (<-chan coretypes.ResultEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan coretypes.ResultEvent, 4)
	f.subs[subscriber] = ch
	return ch, nil
}

func (f *fakeRPC) Unsubscribe(_ context.Context, subscriber, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, subscriber)
	f.unsubscribed = append(f.unsubscribed, subscriber)
	return nil
}

// fakeBroadcaster commits every broadcast in a new block.
type fakeBroadcaster struct {
	height uint64
	msgs   []types.Message
}

func (b *fakeBroadcaster) Broadcast(_ context.Context, msgs ...types.Message) (uint64, error) {
	b.height++
	b.msgs = append(b.msgs, msgs...)
	return b.height, nil
}
