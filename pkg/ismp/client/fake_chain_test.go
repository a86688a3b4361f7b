package client_test

import (
	"context"
	"sync"
	"time"

	"github.com/celestiaorg/ismp/pkg/ismp/client"
	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/filecoin-project/go-clock"
)

var (
	sourceID = types.NewStateMachineID(types.StateMachineKindEVM, 1)
	destID   = types.NewStateMachineID(types.StateMachineKindEVM, 2)
	hubID    = types.NewStateMachineID(types.StateMachineKindTendermint, 3)
)

// fakeChain is an in-memory Chain whose clock is the shared mock clock of a test.
type fakeChain struct {
	id  types.StateMachineID
	clk clock.Clock

	mu              sync.Mutex
	height          uint64
	requestReceipts map[common.Hash][]byte
	latest          map[types.StateMachineID]uint64
	commitments     map[types.StateMachineHeight]types.StateCommitment
	updateTimes     map[types.StateMachineHeight]time.Time
	challenge       map[types.StateMachineID]time.Duration
	updateEvents    []client.StateMachineUpdated
	handledEvents   map[common.Hash]client.RequestHandled
	submitted       []types.Message
	encoded         []types.Message
	queryErr        error
	upstreams       int
	// subscribeGate, when set, holds SubscribeStateMachineUpdates until it is closed.
	subscribeGate chan struct{}

	updateFeeds map[types.StateMachineID]*event.Feed
	vetoFeeds   map[types.StateMachineID]*event.Feed
	handledFeed event.Feed
	failUpdates chan error
}

var _ client.Chain = (*fakeChain)(nil)

func newFakeChain(id types.StateMachineID, clk clock.Clock) *fakeChain {
	return &fakeChain{
		id:              id,
		clk:             clk,
		height:          1,
		requestReceipts: make(map[common.Hash][]byte),
		latest:          make(map[types.StateMachineID]uint64),
		commitments:     make(map[types.StateMachineHeight]types.StateCommitment),
		updateTimes:     make(map[types.StateMachineHeight]time.Time),
		challenge:       make(map[types.StateMachineID]time.Duration),
		handledEvents:   make(map[common.Hash]client.RequestHandled),
		updateFeeds:     make(map[types.StateMachineID]*event.Feed),
		vetoFeeds:       make(map[types.StateMachineID]*event.Feed),
		failUpdates:     make(chan error, 1),
	}
}

func (f *fakeChain) feed(feeds map[types.StateMachineID]*event.Feed, id types.StateMachineID) *event.Feed {
	f.mu.Lock()
	defer f.mu.Unlock()
	feed, ok := feeds[id]
	if !ok {
		feed = new(event.Feed)
		feeds[id] = feed
	}
	return feed
}

func (f *fakeChain) setChallengePeriod(id types.StateMachineID, period time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.challenge[id] = period
}

func (f *fakeChain) setQueryErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryErr = err
}

// finalize stores a state commitment of counterparty in a new block and notifies subscribers.
func (f *fakeChain) finalize(counterparty types.StateMachineID, height, timestamp uint64) client.StateMachineUpdated {
	f.mu.Lock()
	f.height++
	smHeight := types.StateMachineHeight{ID: counterparty, Height: height}
	f.commitments[smHeight] = types.StateCommitment{Timestamp: timestamp, StateRoot: common.Hash{byte(height)}}
	f.updateTimes[smHeight] = f.clk.Now()
	if height > f.latest[counterparty] {
		f.latest[counterparty] = height
	}
	update := client.StateMachineUpdated{StateMachineID: counterparty, LatestHeight: height, BlockHeight: f.height}
	f.updateEvents = append(f.updateEvents, update)
	f.mu.Unlock()

	f.feed(f.updateFeeds, counterparty).Send(update)
	return update
}

// deliver stores a receipt for commitment in a new block and notifies subscribers.
func (f *fakeChain) deliver(commitment common.Hash, relayer []byte) client.RequestHandled {
	f.mu.Lock()
	f.height++
	f.requestReceipts[commitment] = relayer
	handled := client.RequestHandled{Commitment: commitment, Relayer: relayer, BlockHeight: f.height}
	f.handledEvents[commitment] = handled
	f.mu.Unlock()

	f.handledFeed.Send(handled)
	return handled
}

// veto notifies subscribers that the commitment at height was vetoed and returns how many received it.
func (f *fakeChain) veto(height types.StateMachineHeight) int {
	f.mu.Lock()
	f.height++
	veto := client.StateMachineVetoed{Height: height, BlockHeight: f.height}
	f.mu.Unlock()

	return f.feed(f.vetoFeeds, height.ID).Send(veto)
}

func (f *fakeChain) holdSubscriptions() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.subscribeGate = gate
	f.mu.Unlock()
	return func() { close(gate) }
}

func (f *fakeChain) upstreamSubscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upstreams
}

func (f *fakeChain) submittedMessages() []types.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Message(nil), f.submitted...)
}

func (f *fakeChain) encodedMessages() []types.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Message(nil), f.encoded...)
}

func (f *fakeChain) err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryErr
}

func (f *fakeChain) StateMachineID() types.StateMachineID { return f.id }

func (f *fakeChain) QueryTimestamp(context.Context) (time.Time, error) {
	if err := f.err(); err != nil {
		return time.Time{}, err
	}
	return f.clk.Now(), nil
}

func (f *fakeChain) QueryLatestHeight(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height, f.queryErr
}

func (f *fakeChain) QueryRequestReceipt(_ context.Context, commitment common.Hash) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requestReceipts[commitment], f.queryErr
}

func (f *fakeChain) QueryResponseReceipt(context.Context, common.Hash) ([]byte, error) {
	return nil, f.err()
}

func (f *fakeChain) QueryLatestStateMachineHeight(_ context.Context, id types.StateMachineID) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest[id], f.queryErr
}

func (f *fakeChain) QueryStateMachineCommitment(_ context.Context, height types.StateMachineHeight) (types.StateCommitment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	commitment, ok := f.commitments[height]
	if !ok {
		return types.StateCommitment{}, &types.StateCommitmentNotFoundError{Height: height}
	}
	return commitment, f.queryErr
}

func (f *fakeChain) QueryStateMachineUpdateTime(_ context.Context, height types.StateMachineHeight) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.updateTimes[height]
	if !ok {
		return time.Time{}, &types.StateCommitmentNotFoundError{Height: height}
	}
	return t, f.queryErr
}

func (f *fakeChain) QueryChallengePeriod(_ context.Context, id types.StateMachineID) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.challenge[id], f.queryErr
}

func (f *fakeChain) QueryRequestsProof(context.Context, uint64, []common.Hash) ([]byte, error) {
	return []byte("requests proof"), f.err()
}

func (f *fakeChain) QueryResponsesProof(context.Context, uint64, []common.Hash) ([]byte, error) {
	return []byte("responses proof"), f.err()
}

func (f *fakeChain) QueryStateProof(context.Context, uint64, [][]byte) ([]byte, error) {
	return []byte("state proof"), f.err()
}

func (f *fakeChain) QueryStateMachineUpdated(_ context.Context, counterparty types.StateMachineID, height uint64) (*client.StateMachineUpdated, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, update := range f.updateEvents {
		if update.StateMachineID == counterparty && update.LatestHeight >= height {
			return &update, f.queryErr
		}
	}
	return nil, f.queryErr
}

func (f *fakeChain) QueryRequestHandled(_ context.Context, commitment common.Hash, fromHeight uint64) (*client.RequestHandled, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	handled, ok := f.handledEvents[commitment]
	if !ok || handled.BlockHeight < fromHeight {
		return nil, f.queryErr
	}
	return &handled, f.queryErr
}

func (f *fakeChain) SubscribeStateMachineUpdates(_ context.Context, counterparty types.StateMachineID, ch chan<- client.StateMachineUpdated) (event.Subscription, error) {
	f.mu.Lock()
	f.upstreams++
	gate := f.subscribeGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	inner := f.feed(f.updateFeeds, counterparty).Subscribe(ch)
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer inner.Unsubscribe()
		defer func() {
			f.mu.Lock()
			f.upstreams--
			f.mu.Unlock()
		}()

		select {
		case <-quit:
			return nil
		case err := <-f.failUpdates:
			return err
		}
	}), nil
}

func (f *fakeChain) SubscribeRequestHandled(_ context.Context, _ common.Hash, ch chan<- client.RequestHandled) (event.Subscription, error) {
	return f.handledFeed.Subscribe(ch), nil
}

func (f *fakeChain) SubscribeStateMachineVetoes(_ context.Context, counterparty types.StateMachineID, ch chan<- client.StateMachineVetoed) (event.Subscription, error) {
	return f.feed(f.vetoFeeds, counterparty).Subscribe(ch), nil
}

func (f *fakeChain) Submit(_ context.Context, msgs ...types.Message) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return 0, f.queryErr
	}
	f.height++
	f.submitted = append(f.submitted, msgs...)
	return f.height, nil
}

func (f *fakeChain) Encode(msg types.Message) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.encoded = append(f.encoded, msg)
	return []byte(f.id.String() + " calldata"), nil
}

// fakeIndexer answers every query with the same status.
type fakeIndexer struct {
	update *client.StatusUpdate
	err    error
}

func (i fakeIndexer) QueryRequestStatus(context.Context, common.Hash) (*client.StatusUpdate, error) {
	return i.update, i.err
}
