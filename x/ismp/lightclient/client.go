package lightclient

import (
	"bytes"
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/ethereum/go-ethereum/common"
)

// ConsensusClientID is the identifier of the tendermint consensus client.
var ConsensusClientID = types.ConsensusClientID{'T', 'N', 'D', 'M'}

var _ types.ConsensusClient = (*ConsensusClient)(nil)

// ConsensusClient is a consensus client for cometbft chains. Each verified header finalizes the
// application state root of a single state machine.
type ConsensusClient struct {
	stateMachine types.StateMachineID
	clients      map[types.StateMachineID]types.StateMachineClient
}

// NewConsensusClient returns a consensus client whose headers finalize stateMachine, the proofs of
// which are verified by smClient.
func NewConsensusClient(stateMachine types.StateMachineID, smClient types.StateMachineClient) *ConsensusClient {
	return &ConsensusClient{
		stateMachine: stateMachine,
		clients:      map[types.StateMachineID]types.StateMachineClient{stateMachine: smClient},
	}
}

// ID implements types.ConsensusClient.
func (c *ConsensusClient) ID() types.ConsensusClientID {
	return ConsensusClientID
}

// VerifyConsensus implements types.ConsensusClient.
func (c *ConsensusClient) VerifyConsensus(ctx context.Context, host types.IsmpHost, _ types.ConsensusStateID, trustedState, proof []byte) ([]byte, types.StateMachineUpdates, error) {
	trusted, err := DecodeTrustedState(trustedState)
	if err != nil {
		return nil, nil, err
	}
	consensusProof, err := DecodeConsensusProof(proof)
	if err != nil {
		return nil, nil, err
	}

	updated, err := Verify(trusted, consensusProof, host.Timestamp(ctx))
	if err != nil {
		return nil, nil, err
	}

	bz, err := EncodeTrustedState(updated)
	if err != nil {
		return nil, nil, err
	}

	header := consensusProof.SignedHeader
	commitment := types.StateCommitmentHeight{
		Commitment: types.StateCommitment{
			Timestamp: uint64(header.Time.Unix()),
			StateRoot: common.BytesToHash(header.AppHash),
		},
		Height: uint64(header.Height),
	}

	return bz, types.StateMachineUpdates{c.stateMachine: {commitment}}, nil
}

// VerifyFraudProof implements types.ConsensusClient. Two headers at the same height that both verify
// against the trusted state but hash differently prove that the validator set equivocated.
func (c *ConsensusClient) VerifyFraudProof(ctx context.Context, host types.IsmpHost, trustedState, proof1, proof2 []byte) error {
	trusted, err := DecodeTrustedState(trustedState)
	if err != nil {
		return err
	}

	first, err := DecodeConsensusProof(proof1)
	if err != nil {
		return errorsmod.Wrap(types.ErrInvalidFraudProof, err.Error())
	}
	second, err := DecodeConsensusProof(proof2)
	if err != nil {
		return errorsmod.Wrap(types.ErrInvalidFraudProof, err.Error())
	}
	if first.SignedHeader == nil || second.SignedHeader == nil {
		return errorsmod.Wrap(types.ErrInvalidFraudProof, "both proofs must carry a signed header")
	}
	if first.SignedHeader.Height != second.SignedHeader.Height {
		return errorsmod.Wrapf(types.ErrInvalidFraudProof, "headers at different heights %d and %d",
			first.SignedHeader.Height, second.SignedHeader.Height)
	}
	if bytes.Equal(first.SignedHeader.Hash(), second.SignedHeader.Hash()) {
		return errorsmod.Wrap(types.ErrInvalidFraudProof, "headers are identical")
	}

	now := host.Timestamp(ctx)
	if _, err := Verify(trusted, first, now); err != nil {
		return errorsmod.Wrapf(types.ErrInvalidFraudProof, "first header: %v", err)
	}
	if _, err := Verify(trusted, second, now); err != nil {
		return errorsmod.Wrapf(types.ErrInvalidFraudProof, "second header: %v", err)
	}
	return nil
}

// StateMachine implements types.ConsensusClient.
func (c *ConsensusClient) StateMachine(id types.StateMachineID) (types.StateMachineClient, error) {
	client, ok := c.clients[id]
	if !ok {
		return nil, errorsmod.Wrapf(types.ErrStateMachineNotFound, "%s is not finalized by %s", id, ConsensusClientID)
	}
	return client, nil
}
