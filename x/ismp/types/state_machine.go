package types

import (
	"fmt"
	"strconv"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
)

// StateMachineKind identifies the family of a state machine.
type StateMachineKind uint8

const (
	StateMachineKindUnknown StateMachineKind = iota
	StateMachineKindEVM
	StateMachineKindPolkadot
	StateMachineKindKusama
	StateMachineKindSubstrate
	StateMachineKindTendermint
)

var stateMachineKindNames = map[StateMachineKind]string{
	StateMachineKindEVM:        "EVM",
	StateMachineKindPolkadot:   "POLKADOT",
	StateMachineKindKusama:     "KUSAMA",
	StateMachineKindSubstrate:  "SUBSTRATE",
	StateMachineKindTendermint: "TENDERMINT",
}

// String implements fmt.Stringer.
func (k StateMachineKind) String() string {
	if name, ok := stateMachineKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
}

// StateMachineID uniquely identifies a state machine by its kind and numeric identifier.
type StateMachineID struct {
	Kind StateMachineKind
	ID   uint32
}

// NewStateMachineID returns a new StateMachineID.
func NewStateMachineID(kind StateMachineKind, id uint32) StateMachineID {
	return StateMachineID{Kind: kind, ID: id}
}

// String returns the canonical `KIND-ID` representation, e.g. `EVM-1`.
func (id StateMachineID) String() string {
	return fmt.Sprintf("%s-%d", id.Kind, id.ID)
}

// IsZero reports whether the identifier is unset.
func (id StateMachineID) IsZero() bool {
	return id.Kind == StateMachineKindUnknown && id.ID == 0
}

// Validate performs basic validation of the identifier.
func (id StateMachineID) Validate() error {
	if _, ok := stateMachineKindNames[id.Kind]; !ok {
		return errorsmod.Wrapf(ErrInvalidStateMachine, "unknown state machine kind %d", id.Kind)
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (id StateMachineID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *StateMachineID) UnmarshalText(text []byte) error {
	parsed, err := ParseStateMachineID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseStateMachineID parses the canonical `KIND-ID` representation.
func ParseStateMachineID(s string) (StateMachineID, error) {
	idx := strings.LastIndex(s, "-")
	if idx <= 0 || idx == len(s)-1 {
		return StateMachineID{}, errorsmod.Wrapf(ErrInvalidStateMachine, "malformed state machine id %q", s)
	}

	kindName, rawID := s[:idx], s[idx+1:]
	for kind, name := range stateMachineKindNames {
		if name != kindName {
			continue
		}

		id, err := strconv.ParseUint(rawID, 10, 32)
		if err != nil {
			return StateMachineID{}, errorsmod.Wrapf(ErrInvalidStateMachine, "invalid numeric id in %q: %v", s, err)
		}

		return StateMachineID{Kind: kind, ID: uint32(id)}, nil
	}

	return StateMachineID{}, errorsmod.Wrapf(ErrInvalidStateMachine, "unknown state machine kind %q", kindName)
}

// ConsensusStateID identifies an instance of a consensus client on a host.
type ConsensusStateID [4]byte

// NewConsensusStateID returns the consensus state id for a four character string, e.g. `TNDM`.
func NewConsensusStateID(s string) ConsensusStateID {
	var id ConsensusStateID
	copy(id[:], s)
	return id
}

// String implements fmt.Stringer.
func (id ConsensusStateID) String() string {
	return string(id[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id ConsensusStateID) MarshalText() ([]byte, error) {
	return id[:], nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ConsensusStateID) UnmarshalText(text []byte) error {
	if len(text) != len(id) {
		return fmt.Errorf("consensus state id %q must be %d bytes", text, len(id))
	}
	copy(id[:], text)
	return nil
}

// ConsensusClientID identifies a consensus client implementation, e.g. `TNDM` for tendermint.
type ConsensusClientID [4]byte

// String implements fmt.Stringer.
func (id ConsensusClientID) String() string {
	return string(id[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id ConsensusClientID) MarshalText() ([]byte, error) {
	return id[:], nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ConsensusClientID) UnmarshalText(text []byte) error {
	if len(text) != len(id) {
		return fmt.Errorf("consensus client id %q must be %d bytes", text, len(id))
	}
	copy(id[:], text)
	return nil
}

// StateMachineHeight is a height of a specific state machine.
type StateMachineHeight struct {
	ID     StateMachineID
	Height uint64
}

// String implements fmt.Stringer.
func (h StateMachineHeight) String() string {
	return fmt.Sprintf("%s@%d", h.ID, h.Height)
}

// StateCommitment is a finalized snapshot of a remote state machine as attested by its consensus client.
type StateCommitment struct {
	// Timestamp in seconds.
	Timestamp uint64
	// OverlayRoot is an optional secondary trie root (e.g. a child trie of requests/responses).
	OverlayRoot *common.Hash `rlp:"nil"`
	StateRoot   common.Hash
}

// StateCommitmentHeight pairs a state commitment with the height it was finalized at.
type StateCommitmentHeight struct {
	Commitment StateCommitment
	Height     uint64
}
