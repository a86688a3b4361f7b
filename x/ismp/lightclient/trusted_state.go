package lightclient

import (
	"bytes"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/celestiaorg/ismp/x/ismp/types"
	cmtmath "github.com/cometbft/cometbft/libs/math"
	cmttypes "github.com/cometbft/cometbft/types"
)

// DefaultTrustThreshold is the fraction of the trusted validator set's voting power that must sign a
// header when skipping over intermediate heights.
var DefaultTrustThreshold = cmtmath.Fraction{Numerator: 2, Denominator: 3}

// VerificationOptions are the thresholds a consensus proof must clear.
type VerificationOptions struct {
	TrustThreshold cmtmath.Fraction
	// ClockDrift is the tolerated difference between the host clock and header timestamps.
	ClockDrift time.Duration
}

// DefaultVerificationOptions returns a 2/3 trust threshold with ten seconds of tolerated clock drift.
func DefaultVerificationOptions() VerificationOptions {
	return VerificationOptions{
		TrustThreshold: DefaultTrustThreshold,
		ClockDrift:     10 * time.Second,
	}
}

// TrustThresholdFraction returns the trust threshold as a floating point fraction.
func (o VerificationOptions) TrustThresholdFraction() float64 {
	if o.TrustThreshold.Denominator == 0 {
		return 0
	}
	return float64(o.TrustThreshold.Numerator) / float64(o.TrustThreshold.Denominator)
}

// Validate checks that the trust threshold lies within [1/2, 1].
// Below one half a colluding minority could finalize conflicting headers.
func (o VerificationOptions) Validate() error {
	num, denom := o.TrustThreshold.Numerator, o.TrustThreshold.Denominator
	if denom == 0 {
		return errorsmod.Wrap(types.ErrInvalidTrustedState, "trust threshold denominator must be non-zero")
	}
	if num > denom {
		return errorsmod.Wrapf(types.ErrInvalidTrustedState, "trust threshold %s is above 1", o.TrustThreshold)
	}
	// num/denom >= 1/2 as num >= denom-num, which cannot overflow
	if num < denom-num {
		return errorsmod.Wrapf(types.ErrInvalidTrustedState, "trust threshold %s is below 1/2", o.TrustThreshold)
	}
	return nil
}

// TrustedState is the light client state persisted by the host for a tendermint chain.
type TrustedState struct {
	ChainID             string
	Height              uint64
	Timestamp           time.Time
	FinalizedHeaderHash []byte
	Validators          *cmttypes.ValidatorSet
	NextValidators      *cmttypes.ValidatorSet
	NextValidatorsHash  []byte
	TrustingPeriod      time.Duration
	VerificationOptions VerificationOptions
}

// Validate checks the invariants every persisted trusted state must hold.
func (ts TrustedState) Validate() error {
	if ts.ChainID == "" {
		return errorsmod.Wrap(types.ErrInvalidTrustedState, "chain id must be non-empty")
	}
	if ts.Validators.IsNilOrEmpty() {
		return errorsmod.Wrap(types.ErrInvalidTrustedState, "validator set must be non-empty")
	}
	if ts.NextValidators.IsNilOrEmpty() {
		return errorsmod.Wrap(types.ErrInvalidTrustedState, "next validator set must be non-empty")
	}
	if ts.Height == 0 {
		return errorsmod.Wrap(types.ErrInvalidTrustedState, "height must be non-zero")
	}
	if ts.Timestamp.IsZero() || ts.Timestamp.Unix() <= 0 {
		return errorsmod.Wrap(types.ErrInvalidTrustedState, "timestamp must be non-zero")
	}
	if ts.TrustingPeriod <= 0 {
		return errorsmod.Wrap(types.ErrInvalidTrustedState, "trusting period must be non-zero")
	}
	if isZeroHash(ts.FinalizedHeaderHash) {
		return errorsmod.Wrap(types.ErrInvalidTrustedState, "finalized header hash must be non-zero")
	}
	if len(ts.NextValidatorsHash) > 0 && !bytes.Equal(ts.NextValidators.Hash(), ts.NextValidatorsHash) {
		return errorsmod.Wrapf(types.ErrInvalidTrustedState, "next validators hash mismatch: expected %X, got %X",
			ts.NextValidatorsHash, ts.NextValidators.Hash())
	}
	return ts.VerificationOptions.Validate()
}

// IsValidForHeight reports whether the trusted state can be used to reason about height h.
func (ts TrustedState) IsValidForHeight(h uint64) bool {
	return h <= ts.Height
}

// Expired reports whether the trusting period has elapsed at now.
func (ts TrustedState) Expired(now time.Time) bool {
	return !now.Before(ts.Timestamp.Add(ts.TrustingPeriod))
}

// ConsensusProof is a signed header advancing a trusted state.
type ConsensusProof struct {
	SignedHeader *cmttypes.SignedHeader
	// Validators is the set that signed the header. When nil the trusted next validator set is assumed.
	Validators *cmttypes.ValidatorSet
	// NextValidators must be present whenever the header declares a next validators hash.
	NextValidators *cmttypes.ValidatorSet
}

// Validate checks that the proof carries everything verification needs.
func (p ConsensusProof) Validate() error {
	if p.SignedHeader == nil || p.SignedHeader.Header == nil || p.SignedHeader.Commit == nil {
		return errorsmod.Wrap(types.ErrInvalidConsensusProof, "signed header must be present")
	}
	if len(p.SignedHeader.NextValidatorsHash) > 0 && p.NextValidators.IsNilOrEmpty() {
		return errorsmod.Wrap(types.ErrInvalidConsensusProof, "header declares next validators but the proof does not carry them")
	}
	return nil
}

func isZeroHash(bz []byte) bool {
	for _, b := range bz {
		if b != 0 {
			return false
		}
	}
	return true
}
