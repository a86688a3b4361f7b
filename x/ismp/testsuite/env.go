// Package testsuite holds host agnostic conformance checks for ISMP hosts.
//
// Every check runs against a fresh Env whose host has MockConsensusClient registered and
// a MockModule routed under ModuleID.
package testsuite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/ethereum/go-ethereum/common"
)

// Env is a host under test.
type Env interface {
	// Context returns the context to execute the next operation with. It observes AdvanceTime.
	Context() context.Context
	Host() types.IsmpHost

	HandleMessage(ctx context.Context, msg types.Message) error
	DispatchRequest(ctx context.Context, req *types.PostRequest, fee types.FeeMetadata) (common.Hash, error)
	DispatchResponse(ctx context.Context, resp *types.PostResponse, fee types.FeeMetadata) (common.Hash, error)
	SetProxy(ctx context.Context, proxy *types.StateMachineID) error

	// AdvanceTime moves the host clock forward by d.
	AdvanceTime(d time.Duration)
}

var (
	// ModuleID is the module the checks send and receive datagrams with.
	ModuleID = []byte("ismp-testsuite")
	Relayer  = []byte("relayer")

	// Counterparty is the state machine tracked by ConsensusStateID.
	Counterparty     = types.NewStateMachineID(types.StateMachineKindEVM, 1)
	ConsensusStateID = types.NewConsensusStateID("MOCK")

	// Proxied is a state machine reached through Counterparty. It is tracked directly by
	// DirectConsensusStateID only when a check says so.
	Proxied                = types.NewStateMachineID(types.StateMachineKindEVM, 2)
	DirectConsensusStateID = types.NewConsensusStateID("DRCT")

	// Unknown is a state machine no consensus client tracks.
	Unknown = types.NewStateMachineID(types.StateMachineKindEVM, 3)
)

const (
	ChallengePeriod = time.Hour
	UnbondingPeriod = 21 * 24 * time.Hour

	// InitialHeight is the height of the state commitment a consensus client is created with.
	InitialHeight = 1
	// CounterpartyClockSkew is how far the counterparty clock runs ahead of the host clock at the
	// initial state commitment. Outgoing requests time out in between.
	CounterpartyClockSkew = 1000
)

var fee = types.FeeMetadata{Payer: Relayer, Fee: math.NewInt(100)}

// createClient instantiates a mock consensus client tracking id with the given challenge period.
func createClient(env Env, csID types.ConsensusStateID, id types.StateMachineID, challenge time.Duration) error {
	ctx := env.Context()
	now := uint64(env.Host().Timestamp(ctx).Unix())

	err := env.HandleMessage(ctx, &types.CreateConsensusStateMessage{
		ConsensusState:    []byte("mock consensus state"),
		ConsensusClientID: MockConsensusClientID,
		ConsensusStateID:  csID,
		UnbondingPeriod:   uint64(UnbondingPeriod / time.Second),
		ChallengePeriods: []types.StateMachineChallengePeriod{
			{ID: id, Period: uint64(challenge / time.Second)},
		},
		StateMachineCommitments: []types.StateMachineCommitment{{
			ID: id,
			Commitment: types.StateCommitmentHeight{
				Commitment: types.StateCommitment{Timestamp: now + CounterpartyClockSkew, StateRoot: common.HexToHash("0x01")},
				Height:     InitialHeight,
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("creating consensus client %s: %w", csID, err)
	}
	return nil
}

// dispatch commits an outgoing request to dest that times out on the counterparty before its
// initial state commitment, and on the host one second from now.
func dispatch(env Env, dest types.StateMachineID) (*types.PostRequest, error) {
	ctx := env.Context()
	req := &types.PostRequest{
		Dest:             dest,
		From:             ModuleID,
		To:               ModuleID,
		TimeoutTimestamp: uint64(env.Host().Timestamp(ctx).Unix()) + 1,
		Body:             []byte("ping"),
	}
	if _, err := env.DispatchRequest(ctx, req, fee); err != nil {
		return nil, fmt.Errorf("dispatching request: %w", err)
	}
	return req, nil
}

// incoming returns a request from source to the host.
func incoming(env Env, source types.StateMachineID, nonce uint64) types.PostRequest {
	return types.PostRequest{
		Source: source,
		Dest:   env.Host().HostStateMachine(),
		Nonce:  nonce,
		From:   ModuleID,
		To:     ModuleID,
		Body:   []byte("pong"),
	}
}

func proofAt(id types.StateMachineID, height uint64, proof []byte) types.Proof {
	return types.Proof{Height: types.StateMachineHeight{ID: id, Height: height}, Proof: proof}
}

// validProof returns a proof at the initial height of id that the mock clients accept.
func validProof(id types.StateMachineID) types.Proof {
	return proofAt(id, InitialHeight, MockProof)
}

// expect reports whether err matches target.
func expect(err, target error, action string) error {
	if errors.Is(err, target) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("%s: succeeded, want %v", action, target)
	}
	return fmt.Errorf("%s: got %v, want %v", action, err, target)
}
