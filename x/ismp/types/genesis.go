package types

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
)

// GenesisState defines the ismp module's genesis state. Periods are in seconds and update times in unix
// nanoseconds.
type GenesisState struct {
	Params Params `json:"params"`
	// Nonce is the next nonce assigned to an outgoing request.
	Nonce uint64 `json:"nonce"`

	ConsensusStates       []GenesisConsensusState        `json:"consensus_states,omitempty"`
	Frozen                []ConsensusStateID             `json:"frozen,omitempty"`
	ChallengePeriods      []StateMachineChallengePeriod  `json:"challenge_periods,omitempty"`
	StateCommitments      []GenesisStateCommitment       `json:"state_commitments,omitempty"`
	LatestHeights         []StateMachineHeight           `json:"latest_heights,omitempty"`
	StateMachineConsensus []GenesisStateMachineConsensus `json:"state_machine_consensus,omitempty"`
	RequestCommitments    []GenesisCommitment            `json:"request_commitments,omitempty"`
	ResponseCommitments   []GenesisCommitment            `json:"response_commitments,omitempty"`
	RequestReceipts       []RequestReceipt               `json:"request_receipts,omitempty"`
	ResponseReceipts      []GenesisResponseReceipt       `json:"response_receipts,omitempty"`

	// Responded lists the incoming requests the host has already answered.
	Responded []common.Hash `json:"responded,omitempty"`
}

// GenesisConsensusState is a consensus state with its client, unbonding period and last update time.
type GenesisConsensusState struct {
	ID              ConsensusStateID  `json:"id"`
	ClientID        ConsensusClientID `json:"client_id"`
	State           []byte            `json:"state"`
	UnbondingPeriod uint64            `json:"unbonding_period"`
	UpdateTime      uint64            `json:"update_time"`
}

// GenesisStateCommitment is a finalized state commitment and the time it was stored.
type GenesisStateCommitment struct {
	Height     StateMachineHeight `json:"height"`
	Commitment StateCommitment    `json:"commitment"`
	UpdateTime uint64             `json:"update_time"`
}

// GenesisStateMachineConsensus maps a state machine to the consensus state tracking it.
type GenesisStateMachineConsensus struct {
	ID               StateMachineID   `json:"id"`
	ConsensusStateID ConsensusStateID `json:"consensus_state_id"`
}

// GenesisCommitment is an outgoing request or response commitment with its fee metadata.
type GenesisCommitment struct {
	Commitment common.Hash `json:"commitment"`
	Meta       FeeMetadata `json:"meta"`
}

// GenesisResponseReceipt is a response receipt keyed by the commitment of the answered request.
type GenesisResponseReceipt struct {
	Request common.Hash     `json:"request"`
	Receipt ResponseReceipt `json:"receipt"`
}

// DefaultGenesis returns the default genesis state.
func DefaultGenesis() *GenesisState {
	return &GenesisState{
		Params: DefaultParams(),
	}
}

// Validate performs basic genesis state validation returning an error upon any failure.
func (gs *GenesisState) Validate() error {
	if err := gs.Params.Validate(); err != nil {
		return err
	}

	consensusStates := make(map[ConsensusStateID]struct{}, len(gs.ConsensusStates))
	for _, cs := range gs.ConsensusStates {
		if _, ok := consensusStates[cs.ID]; ok {
			return errorsmod.Wrapf(ErrInvalidGenesis, "duplicate consensus state %s", cs.ID)
		}
		consensusStates[cs.ID] = struct{}{}
	}

	for _, period := range gs.ChallengePeriods {
		if err := period.ID.Validate(); err != nil {
			return errorsmod.Wrap(ErrInvalidGenesis, err.Error())
		}
	}
	for _, sc := range gs.StateCommitments {
		if err := sc.Height.ID.Validate(); err != nil {
			return errorsmod.Wrap(ErrInvalidGenesis, err.Error())
		}
	}
	for _, height := range gs.LatestHeights {
		if err := height.ID.Validate(); err != nil {
			return errorsmod.Wrap(ErrInvalidGenesis, err.Error())
		}
	}
	for _, smc := range gs.StateMachineConsensus {
		if err := smc.ID.Validate(); err != nil {
			return errorsmod.Wrap(ErrInvalidGenesis, err.Error())
		}
		if _, ok := consensusStates[smc.ConsensusStateID]; !ok {
			return errorsmod.Wrapf(ErrInvalidGenesis, "state machine %s tracked by unknown consensus state %s", smc.ID, smc.ConsensusStateID)
		}
	}

	receipts := make(map[common.Hash]struct{}, len(gs.RequestReceipts))
	for _, receipt := range gs.RequestReceipts {
		if _, ok := receipts[receipt.Commitment]; ok {
			return errorsmod.Wrapf(ErrInvalidGenesis, "duplicate request receipt %s", receipt.Commitment)
		}
		receipts[receipt.Commitment] = struct{}{}
	}
	return nil
}
