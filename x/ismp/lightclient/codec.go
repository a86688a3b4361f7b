package lightclient

import (
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/celestiaorg/ismp/x/ismp/types"
	cmtmath "github.com/cometbft/cometbft/libs/math"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// trustedStateRLP is the wire envelope of a TrustedState. Validator sets are carried in their
// cometbft protobuf encoding.
type trustedStateRLP struct {
	ChainID             string
	Height              uint64
	Timestamp           uint64
	FinalizedHeaderHash []byte
	Validators          []byte
	NextValidators      []byte
	NextValidatorsHash  []byte
	TrustingPeriod      uint64
	TrustNumerator      uint64
	TrustDenominator    uint64
	ClockDrift          uint64
}

type consensusProofRLP struct {
	SignedHeader   []byte
	Validators     []byte
	NextValidators []byte
}

// EncodeTrustedState encodes a trusted state for persistence on the host.
func EncodeTrustedState(ts TrustedState) ([]byte, error) {
	vals, err := marshalValidatorSet(ts.Validators)
	if err != nil {
		return nil, err
	}
	nextVals, err := marshalValidatorSet(ts.NextValidators)
	if err != nil {
		return nil, err
	}

	return rlp.EncodeToBytes(&trustedStateRLP{
		ChainID:             ts.ChainID,
		Height:              ts.Height,
		Timestamp:           uint64(ts.Timestamp.UnixNano()),
		FinalizedHeaderHash: ts.FinalizedHeaderHash,
		Validators:          vals,
		NextValidators:      nextVals,
		NextValidatorsHash:  ts.NextValidatorsHash,
		TrustingPeriod:      uint64(ts.TrustingPeriod),
		TrustNumerator:      ts.VerificationOptions.TrustThreshold.Numerator,
		TrustDenominator:    ts.VerificationOptions.TrustThreshold.Denominator,
		ClockDrift:          uint64(ts.VerificationOptions.ClockDrift),
	})
}

// DecodeTrustedState decodes a trusted state produced by EncodeTrustedState.
func DecodeTrustedState(bz []byte) (TrustedState, error) {
	var raw trustedStateRLP
	if err := rlp.DecodeBytes(bz, &raw); err != nil {
		return TrustedState{}, errorsmod.Wrapf(types.ErrConversion, "decoding trusted state: %v", err)
	}

	vals, err := unmarshalValidatorSet(raw.Validators)
	if err != nil {
		return TrustedState{}, err
	}
	nextVals, err := unmarshalValidatorSet(raw.NextValidators)
	if err != nil {
		return TrustedState{}, err
	}

	return TrustedState{
		ChainID:             raw.ChainID,
		Height:              raw.Height,
		Timestamp:           time.Unix(0, int64(raw.Timestamp)).UTC(),
		FinalizedHeaderHash: raw.FinalizedHeaderHash,
		Validators:          vals,
		NextValidators:      nextVals,
		NextValidatorsHash:  raw.NextValidatorsHash,
		TrustingPeriod:      time.Duration(raw.TrustingPeriod),
		VerificationOptions: VerificationOptions{
			TrustThreshold: cmtmath.Fraction{Numerator: raw.TrustNumerator, Denominator: raw.TrustDenominator},
			ClockDrift:     time.Duration(raw.ClockDrift),
		},
	}, nil
}

// EncodeConsensusProof encodes a consensus proof for submission in a ConsensusMessage.
func EncodeConsensusProof(p ConsensusProof) ([]byte, error) {
	var (
		raw consensusProofRLP
		err error
	)
	if p.SignedHeader != nil {
		raw.SignedHeader, err = p.SignedHeader.ToProto().Marshal()
		if err != nil {
			return nil, errorsmod.Wrapf(types.ErrConversion, "encoding signed header: %v", err)
		}
	}
	if raw.Validators, err = marshalValidatorSet(p.Validators); err != nil {
		return nil, err
	}
	if raw.NextValidators, err = marshalValidatorSet(p.NextValidators); err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(&raw)
}

// DecodeConsensusProof decodes a consensus proof produced by EncodeConsensusProof.
func DecodeConsensusProof(bz []byte) (ConsensusProof, error) {
	var raw consensusProofRLP
	if err := rlp.DecodeBytes(bz, &raw); err != nil {
		return ConsensusProof{}, errorsmod.Wrapf(types.ErrConversion, "decoding consensus proof: %v", err)
	}

	var proof ConsensusProof
	if len(raw.SignedHeader) > 0 {
		var pb cmtproto.SignedHeader
		if err := pb.Unmarshal(raw.SignedHeader); err != nil {
			return ConsensusProof{}, errorsmod.Wrapf(types.ErrConversion, "decoding signed header: %v", err)
		}
		sh, err := cmttypes.SignedHeaderFromProto(&pb)
		if err != nil {
			return ConsensusProof{}, errorsmod.Wrapf(types.ErrConversion, "converting signed header: %v", err)
		}
		proof.SignedHeader = sh
	}

	var err error
	if proof.Validators, err = unmarshalValidatorSet(raw.Validators); err != nil {
		return ConsensusProof{}, err
	}
	if proof.NextValidators, err = unmarshalValidatorSet(raw.NextValidators); err != nil {
		return ConsensusProof{}, err
	}
	return proof, nil
}

func marshalValidatorSet(vals *cmttypes.ValidatorSet) ([]byte, error) {
	if vals.IsNilOrEmpty() {
		return nil, nil
	}
	pb, err := vals.ToProto()
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrConversion, "encoding validator set: %v", err)
	}
	bz, err := pb.Marshal()
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrConversion, "encoding validator set: %v", err)
	}
	return bz, nil
}

func unmarshalValidatorSet(bz []byte) (*cmttypes.ValidatorSet, error) {
	if len(bz) == 0 {
		return nil, nil
	}
	var pb cmtproto.ValidatorSet
	if err := pb.Unmarshal(bz); err != nil {
		return nil, errorsmod.Wrapf(types.ErrConversion, "decoding validator set: %v", err)
	}
	vals, err := cmttypes.ValidatorSetFromProto(&pb)
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrConversion, "converting validator set: %v", err)
	}
	return vals, nil
}
