package types

import (
	errorsmod "cosmossdk.io/errors"
)

// MessageType enumerates the messages understood by an ISMP host.
type MessageType uint8

const (
	MessageTypeCreateConsensusState MessageType = iota + 1
	MessageTypeConsensus
	MessageTypeRequest
	MessageTypeResponse
	MessageTypeTimeout
	MessageTypeFraudProof
)

// Message is a datagram submitted to an ISMP host by a relayer.
type Message interface {
	Type() MessageType
	ValidateBasic() error
}

var (
	_ Message = (*CreateConsensusStateMessage)(nil)
	_ Message = (*ConsensusMessage)(nil)
	_ Message = (*RequestMessage)(nil)
	_ Message = (*ResponseMessage)(nil)
	_ Message = (*TimeoutMessage)(nil)
	_ Message = (*FraudProofMessage)(nil)
)

// Proof is an opaque proof of state at a finalized height of a remote state machine.
type Proof struct {
	Height StateMachineHeight
	Proof  []byte
}

// StateMachineChallengePeriod configures the challenge period of a state machine in seconds.
type StateMachineChallengePeriod struct {
	ID     StateMachineID
	Period uint64
}

// StateMachineCommitment is an initial state commitment of a state machine.
type StateMachineCommitment struct {
	ID         StateMachineID
	Commitment StateCommitmentHeight
}

// CreateConsensusStateMessage instantiates a consensus client from a genesis or checkpoint state.
type CreateConsensusStateMessage struct {
	ConsensusState    []byte
	ConsensusClientID ConsensusClientID
	ConsensusStateID  ConsensusStateID
	// UnbondingPeriod in seconds.
	UnbondingPeriod         uint64
	ChallengePeriods        []StateMachineChallengePeriod
	StateMachineCommitments []StateMachineCommitment
}

func (m *CreateConsensusStateMessage) Type() MessageType { return MessageTypeCreateConsensusState }

// ValidateBasic implements Message.
func (m *CreateConsensusStateMessage) ValidateBasic() error {
	if len(m.ConsensusState) == 0 {
		return errorsmod.Wrap(ErrInvalidMessage, "consensus state must be non-empty")
	}
	if m.ConsensusStateID == (ConsensusStateID{}) {
		return errorsmod.Wrap(ErrInvalidMessage, "consensus state id must be non-zero")
	}
	if m.UnbondingPeriod == 0 {
		return errorsmod.Wrap(ErrInvalidMessage, "unbonding period must be non-zero")
	}
	for _, cp := range m.ChallengePeriods {
		if err := cp.ID.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ConsensusMessage carries a consensus proof advancing a consensus client.
type ConsensusMessage struct {
	ConsensusStateID ConsensusStateID
	ConsensusProof   []byte
	Signer           []byte
}

func (m *ConsensusMessage) Type() MessageType { return MessageTypeConsensus }

// ValidateBasic implements Message.
func (m *ConsensusMessage) ValidateBasic() error {
	if len(m.ConsensusProof) == 0 {
		return errorsmod.Wrap(ErrInvalidMessage, "consensus proof must be non-empty")
	}
	return nil
}

// FraudProofMessage carries two conflicting consensus proofs for the same consensus client.
type FraudProofMessage struct {
	ConsensusStateID ConsensusStateID
	Proof1           []byte
	Proof2           []byte
	Signer           []byte
}

func (m *FraudProofMessage) Type() MessageType { return MessageTypeFraudProof }

// ValidateBasic implements Message.
func (m *FraudProofMessage) ValidateBasic() error {
	if len(m.Proof1) == 0 || len(m.Proof2) == 0 {
		return errorsmod.Wrap(ErrInvalidMessage, "fraud proof must carry two proofs")
	}
	return nil
}

// RequestMessage delivers post requests proven against a finalized state commitment of their source.
type RequestMessage struct {
	Requests []PostRequest
	Proof    Proof
	Signer   []byte
}

func (m *RequestMessage) Type() MessageType { return MessageTypeRequest }

// ValidateBasic implements Message.
func (m *RequestMessage) ValidateBasic() error {
	if len(m.Requests) == 0 {
		return errorsmod.Wrap(ErrInvalidMessage, "request message must carry at least one request")
	}
	for i := range m.Requests {
		if err := m.Requests[i].ValidateBasic(); err != nil {
			return err
		}
	}
	return nil
}

// ResponseMessage delivers post responses, or answers get requests with a state proof.
// Exactly one of PostResponses or GetRequests must be populated.
type ResponseMessage struct {
	PostResponses []PostResponse
	GetRequests   []GetRequest
	Proof         Proof
	Signer        []byte
}

func (m *ResponseMessage) Type() MessageType { return MessageTypeResponse }

// ValidateBasic implements Message.
func (m *ResponseMessage) ValidateBasic() error {
	if (len(m.PostResponses) == 0) == (len(m.GetRequests) == 0) {
		return errorsmod.Wrap(ErrInvalidMessage, "response message must carry either post responses or get requests")
	}
	for i := range m.PostResponses {
		if err := m.PostResponses[i].ValidateBasic(); err != nil {
			return err
		}
	}
	for i := range m.GetRequests {
		if err := m.GetRequests[i].ValidateBasic(); err != nil {
			return err
		}
	}
	return nil
}

// TimeoutMessage times out requests or responses previously dispatched by the host.
// Exactly one of PostRequests, GetRequests or PostResponses must be populated.
// Get requests time out against the host clock and carry no proof.
type TimeoutMessage struct {
	PostRequests  []PostRequest
	GetRequests   []GetRequest
	PostResponses []PostResponse
	Proof         Proof
	Signer        []byte
}

func (m *TimeoutMessage) Type() MessageType { return MessageTypeTimeout }

// ValidateBasic implements Message.
func (m *TimeoutMessage) ValidateBasic() error {
	populated := 0
	for _, n := range []int{len(m.PostRequests), len(m.GetRequests), len(m.PostResponses)} {
		if n > 0 {
			populated++
		}
	}
	if populated != 1 {
		return errorsmod.Wrap(ErrInvalidMessage, "timeout message must carry exactly one kind of datagram")
	}
	return nil
}
