package types

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"cosmossdk.io/collections"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// ModuleName defines the module name
	ModuleName = "ismp"

	// StoreKey defines the primary module store key
	StoreKey = ModuleName
)

var (
	ParamsKey                   = collections.NewPrefix(0)
	ConsensusStatesPrefix       = collections.NewPrefix(1)
	ConsensusUpdateTimesPrefix  = collections.NewPrefix(2)
	ConsensusClientIDsPrefix    = collections.NewPrefix(3)
	FrozenConsensusPrefix       = collections.NewPrefix(4)
	UnbondingPeriodsPrefix      = collections.NewPrefix(5)
	ChallengePeriodsPrefix      = collections.NewPrefix(6)
	StateCommitmentsPrefix      = collections.NewPrefix(7)
	StateMachineUpdateTimes     = collections.NewPrefix(8)
	LatestStateMachineHeights   = collections.NewPrefix(9)
	StateMachineConsensusPrefix = collections.NewPrefix(10)
	RequestCommitmentsPrefix    = collections.NewPrefix(11)
	ResponseCommitmentsPrefix   = collections.NewPrefix(12)
	RequestReceiptsPrefix       = collections.NewPrefix(13)
	ResponseReceiptsPrefix      = collections.NewPrefix(14)
	NonceKey                    = collections.NewPrefix(15)
	RespondedPrefix             = collections.NewPrefix(16)
)

// RequestCommitmentKey is the raw store key under which the metadata of an outgoing request is kept.
func RequestCommitmentKey(commitment common.Hash) []byte {
	return storeKey(RequestCommitmentsPrefix, commitment)
}

// ResponseCommitmentKey is the raw store key under which the metadata of an outgoing response is kept.
func ResponseCommitmentKey(commitment common.Hash) []byte {
	return storeKey(ResponseCommitmentsPrefix, commitment)
}

// RequestReceiptKey is the raw store key of the receipt for an incoming request.
func RequestReceiptKey(commitment common.Hash) []byte {
	return storeKey(RequestReceiptsPrefix, commitment)
}

// ResponseReceiptKey is the raw store key of the receipt for an incoming response.
// Response receipts are keyed by the commitment of the request being answered.
func ResponseReceiptKey(requestCommitment common.Hash) []byte {
	return storeKey(ResponseReceiptsPrefix, requestCommitment)
}

// StateCommitmentKey returns the raw store key of a finalized state commitment.
func StateCommitmentKey(height StateMachineHeight) []byte {
	return prefixed(StateCommitmentsPrefix, StateMachineHeightKey(height))
}

// StateMachineUpdateTimeKey returns the raw store key of the time a state commitment was stored.
func StateMachineUpdateTimeKey(height StateMachineHeight) []byte {
	return prefixed(StateMachineUpdateTimes, StateMachineHeightKey(height))
}

// LatestStateMachineHeightKey returns the raw store key of the latest finalized height of a state machine.
func LatestStateMachineHeightKey(id StateMachineID) []byte {
	return prefixed(LatestStateMachineHeights, []byte(id.String()))
}

// ChallengePeriodKey returns the raw store key of the challenge period of a state machine.
func ChallengePeriodKey(id StateMachineID) []byte {
	return prefixed(ChallengePeriodsPrefix, []byte(id.String()))
}

// StateMachineHeightKey encodes a state machine height as `KIND-ID/height(be64)`.
func StateMachineHeightKey(height StateMachineHeight) []byte {
	id := height.ID.String()
	bz := make([]byte, 0, len(id)+9)
	bz = append(bz, id...)
	bz = append(bz, '/')
	return binary.BigEndian.AppendUint64(bz, height.Height)
}

// ParseStateMachineHeightKey decodes a key produced by StateMachineHeightKey.
func ParseStateMachineHeightKey(key []byte) (StateMachineHeight, error) {
	if len(key) < 10 || key[len(key)-9] != '/' {
		return StateMachineHeight{}, fmt.Errorf("malformed state machine height key %x", key)
	}
	id, err := ParseStateMachineID(string(key[:len(key)-9]))
	if err != nil {
		return StateMachineHeight{}, err
	}
	return StateMachineHeight{ID: id, Height: binary.BigEndian.Uint64(key[len(key)-8:])}, nil
}

func storeKey(prefix collections.Prefix, commitment common.Hash) []byte {
	return prefixed(prefix, commitment.Bytes())
}

func prefixed(prefix collections.Prefix, key []byte) []byte {
	p := prefix.Bytes()
	bz := make([]byte, 0, len(p)+len(key))
	bz = append(bz, p...)
	return append(bz, key...)
}

// EncodeHex is a convenience function to encode byte slices as 0x prefixed hexadecimal strings.
func EncodeHex(bz []byte) string {
	return fmt.Sprintf("0x%s", hex.EncodeToString(bz))
}

// DecodeHex is a convenience function to decode 0x prefixed hexadecimal strings as byte slices.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}

	return b, nil
}
