package types

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// IsmpHost is the contract a host state machine exposes to consensus clients, state machine clients
// and the message handlers. It is the only view of persisted protocol state.
type IsmpHost interface {
	// HostStateMachine returns the identifier of the host state machine.
	HostStateMachine() StateMachineID
	// Timestamp returns the current time of the host.
	Timestamp(ctx context.Context) time.Time

	ConsensusState(ctx context.Context, id ConsensusStateID) ([]byte, error)
	StoreConsensusState(ctx context.Context, id ConsensusStateID, state []byte) error
	ConsensusUpdateTime(ctx context.Context, id ConsensusStateID) (time.Time, error)
	StoreConsensusUpdateTime(ctx context.Context, id ConsensusStateID, t time.Time) error
	ConsensusClientID(ctx context.Context, id ConsensusStateID) (ConsensusClientID, error)
	UnbondingPeriod(ctx context.Context, id ConsensusStateID) (time.Duration, error)
	IsConsensusClientFrozen(ctx context.Context, id ConsensusStateID) (bool, error)
	FreezeConsensusClient(ctx context.Context, id ConsensusStateID) error

	StateMachineCommitment(ctx context.Context, height StateMachineHeight) (StateCommitment, error)
	StoreStateMachineCommitment(ctx context.Context, height StateMachineHeight, commitment StateCommitment) error
	StateMachineUpdateTime(ctx context.Context, height StateMachineHeight) (time.Time, error)
	StoreStateMachineUpdateTime(ctx context.Context, height StateMachineHeight, t time.Time) error
	LatestCommitmentHeight(ctx context.Context, id StateMachineID) (uint64, error)
	// StateMachineConsensusStateID returns the consensus client that directly tracks the state machine, if any.
	StateMachineConsensusStateID(ctx context.Context, id StateMachineID) (ConsensusStateID, bool, error)
	ChallengePeriod(ctx context.Context, id StateMachineID) (time.Duration, error)
	StoreChallengePeriod(ctx context.Context, id StateMachineID, period time.Duration) error

	RequestCommitment(ctx context.Context, commitment common.Hash) (FeeMetadata, error)
	ResponseCommitment(ctx context.Context, commitment common.Hash) (FeeMetadata, error)
	RequestReceipt(ctx context.Context, commitment common.Hash) (RequestReceipt, bool, error)
	ResponseReceipt(ctx context.Context, requestCommitment common.Hash) (ResponseReceipt, bool, error)

	// AllowedProxy returns the state machine allowed to relay messages on behalf of others, if configured.
	AllowedProxy(ctx context.Context) (StateMachineID, bool, error)
	ConsensusClient(id ConsensusClientID) (ConsensusClient, error)
}

// StateMachineUpdates maps state machines to the commitments finalized by a consensus update.
type StateMachineUpdates map[StateMachineID][]StateCommitmentHeight

// ConsensusClient verifies consensus proofs of a remote chain and yields its finalized state machines.
type ConsensusClient interface {
	ID() ConsensusClientID
	// VerifyConsensus verifies a consensus proof against the trusted state and returns the new trusted state
	// alongside the state commitments it finalizes.
	VerifyConsensus(ctx context.Context, host IsmpHost, id ConsensusStateID, trustedState, proof []byte) ([]byte, StateMachineUpdates, error)
	// VerifyFraudProof verifies that two proofs attest conflicting finality.
	VerifyFraudProof(ctx context.Context, host IsmpHost, trustedState, proof1, proof2 []byte) error
	// StateMachine returns the client verifying proofs of the given state machine.
	StateMachine(id StateMachineID) (StateMachineClient, error)
}

// RequestResponse is the set of datagrams a membership proof attests to.
type RequestResponse struct {
	Requests  []Request
	Responses []Response
}

// StateMachineClient verifies state proofs against state commitments of a single state machine.
type StateMachineClient interface {
	// VerifyMembership verifies that the commitments of all items are present under root.
	VerifyMembership(ctx context.Context, host IsmpHost, items RequestResponse, root StateCommitment, proof Proof) error
	// ReceiptsStateTrieKey returns the keys under which the counterparty stores receipts for items.
	ReceiptsStateTrieKey(items RequestResponse) [][]byte
	// VerifyStateProof verifies values of keys under root. Absent keys map to a nil value.
	VerifyStateProof(ctx context.Context, host IsmpHost, keys [][]byte, root StateCommitment, proof Proof) (map[string][]byte, error)
}

// IsmpModule is an application module receiving ISMP datagrams.
type IsmpModule interface {
	OnAccept(ctx context.Context, request PostRequest) error
	OnResponse(ctx context.Context, response Response) error
	OnTimeout(ctx context.Context, timeout Timeout) error
}

// Timeout is the datagram passed to IsmpModule.OnTimeout; exactly one field is set.
type Timeout struct {
	Request  Request
	Response *PostResponse
}
