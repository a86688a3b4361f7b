// Package client tracks ISMP requests across their source chain, the hub chain relaying them and their
// destination chain, and builds the messages needed to deliver or time them out.
package client

import (
	"context"
	"time"

	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// StateMachineUpdated reports that a chain finalized a new height of a counterparty state machine.
type StateMachineUpdated struct {
	// StateMachineID is the counterparty that was finalized.
	StateMachineID types.StateMachineID
	// LatestHeight is the finalized height of the counterparty.
	LatestHeight uint64
	// BlockHeight is the height of the observing chain the update was executed at.
	BlockHeight uint64
}

// RequestHandled reports that a chain executed a request or a response.
type RequestHandled struct {
	Commitment  common.Hash
	Relayer     []byte
	BlockHeight uint64
}

// StateMachineVetoed reports that a chain discarded a state commitment during its challenge period.
type StateMachineVetoed struct {
	Height      types.StateMachineHeight
	BlockHeight uint64
}

// Chain is the view of a chain the client needs. There is one implementation per chain kind; the
// client never depends on a concrete chain.
type Chain interface {
	// StateMachineID returns the state machine the chain is known as to its counterparties.
	StateMachineID() types.StateMachineID

	QueryTimestamp(ctx context.Context) (time.Time, error)
	QueryLatestHeight(ctx context.Context) (uint64, error)

	// QueryRequestReceipt returns the relayer that delivered the request, or nil if it was not delivered.
	QueryRequestReceipt(ctx context.Context, commitment common.Hash) ([]byte, error)
	// QueryResponseReceipt returns the relayer that delivered the response to the request, or nil.
	QueryResponseReceipt(ctx context.Context, requestCommitment common.Hash) ([]byte, error)

	QueryLatestStateMachineHeight(ctx context.Context, id types.StateMachineID) (uint64, error)
	QueryStateMachineCommitment(ctx context.Context, height types.StateMachineHeight) (types.StateCommitment, error)
	QueryStateMachineUpdateTime(ctx context.Context, height types.StateMachineHeight) (time.Time, error)
	QueryChallengePeriod(ctx context.Context, id types.StateMachineID) (time.Duration, error)

	// QueryRequestsProof proves the commitments of requests at height.
	QueryRequestsProof(ctx context.Context, height uint64, commitments []common.Hash) ([]byte, error)
	// QueryResponsesProof proves the commitments of responses at height.
	QueryResponsesProof(ctx context.Context, height uint64, commitments []common.Hash) ([]byte, error)
	// QueryStateProof proves the values, or absence, of keys at height.
	QueryStateProof(ctx context.Context, height uint64, keys [][]byte) ([]byte, error)

	// QueryStateMachineUpdated returns the first update of counterparty finalizing at least height,
	// or nil if none can be located.
	QueryStateMachineUpdated(ctx context.Context, counterparty types.StateMachineID, height uint64) (*StateMachineUpdated, error)
	// QueryRequestHandled returns the event emitted when the request was executed at or after
	// fromHeight, or nil if none can be located.
	QueryRequestHandled(ctx context.Context, commitment common.Hash, fromHeight uint64) (*RequestHandled, error)

	SubscribeStateMachineUpdates(ctx context.Context, counterparty types.StateMachineID, ch chan<- StateMachineUpdated) (event.Subscription, error)
	SubscribeRequestHandled(ctx context.Context, commitment common.Hash, ch chan<- RequestHandled) (event.Subscription, error)
	SubscribeStateMachineVetoes(ctx context.Context, counterparty types.StateMachineID, ch chan<- StateMachineVetoed) (event.Subscription, error)

	// Submit executes messages on the chain and returns the height they were included at.
	Submit(ctx context.Context, msgs ...types.Message) (uint64, error)
	// Encode returns the calldata submitting msg to the chain.
	Encode(msg types.Message) ([]byte, error)
}

// Indexer caches message statuses. It is consulted on a best effort basis: misses and errors fall
// through to querying the chains.
type Indexer interface {
	// QueryRequestStatus returns the last known status of a request, or nil if it is unknown.
	QueryRequestStatus(ctx context.Context, commitment common.Hash) (*StatusUpdate, error)
}
