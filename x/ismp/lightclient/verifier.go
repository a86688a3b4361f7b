package lightclient

import (
	"bytes"
	"errors"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/celestiaorg/ismp/x/ismp/types"
	cmttypes "github.com/cometbft/cometbft/types"
)

// Verify checks a consensus proof against a trusted state at the host time now and returns the
// trusted state advanced to the proven header.
//
// Headers at trusted.Height+1 are verified sequentially: the header must be signed by the trusted next
// validator set. Any later header is verified by skipping, which additionally requires the trusted next
// validator set to have signed it with at least the configured trust threshold.
func Verify(trusted TrustedState, proof ConsensusProof, now time.Time) (TrustedState, error) {
	if err := trusted.Validate(); err != nil {
		return TrustedState{}, err
	}
	if err := proof.Validate(); err != nil {
		return TrustedState{}, err
	}

	header := proof.SignedHeader
	if header.ChainID != trusted.ChainID {
		return TrustedState{}, errorsmod.Wrapf(types.ErrChainIDMismatch, "expected %s, got %s", trusted.ChainID, header.ChainID)
	}
	if err := header.ValidateBasic(trusted.ChainID); err != nil {
		return TrustedState{}, errorsmod.Wrap(types.ErrInvalidHeader, err.Error())
	}
	if header.Height <= 0 || uint64(header.Height) <= trusted.Height {
		return TrustedState{}, errorsmod.Wrapf(types.ErrInvalidHeader, "header height %d is not above trusted height %d",
			header.Height, trusted.Height)
	}
	if !header.Time.After(trusted.Timestamp) {
		return TrustedState{}, errorsmod.Wrapf(types.ErrInvalidHeader, "header time %s is not after trusted time %s",
			header.Time, trusted.Timestamp)
	}
	if trusted.Expired(now) {
		return TrustedState{}, errorsmod.Wrapf(types.ErrTrustingPeriodExpired, "trusted state at %s expired at %s",
			trusted.Timestamp, trusted.Timestamp.Add(trusted.TrustingPeriod))
	}
	if header.Time.After(now.Add(trusted.VerificationOptions.ClockDrift)) {
		return TrustedState{}, errorsmod.Wrapf(types.ErrHeaderFromFuture, "header time %s, host time %s, clock drift %s",
			header.Time, now, trusted.VerificationOptions.ClockDrift)
	}

	vals := proof.Validators
	if vals.IsNilOrEmpty() {
		vals = trusted.NextValidators
	}
	if !bytes.Equal(vals.Hash(), header.ValidatorsHash) {
		return TrustedState{}, errorsmod.Wrapf(types.ErrInvalidHeader, "validators hash mismatch: header %X, validators %X",
			header.ValidatorsHash, vals.Hash())
	}
	if proof.NextValidators.IsNilOrEmpty() {
		return TrustedState{}, errorsmod.Wrap(types.ErrInvalidConsensusProof, "next validator set must be present")
	}
	if !bytes.Equal(proof.NextValidators.Hash(), header.NextValidatorsHash) {
		return TrustedState{}, errorsmod.Wrapf(types.ErrInvalidHeader, "next validators hash mismatch: header %X, validators %X",
			header.NextValidatorsHash, proof.NextValidators.Hash())
	}

	if uint64(header.Height) == trusted.Height+1 {
		if !bytes.Equal(header.ValidatorsHash, trusted.NextValidatorsHash) {
			return TrustedState{}, errorsmod.Wrapf(types.ErrInvalidHeader, "adjacent header validators %X do not match trusted next validators %X",
				header.ValidatorsHash, trusted.NextValidatorsHash)
		}
	} else {
		err := trusted.NextValidators.VerifyCommitLightTrusting(trusted.ChainID, header.Commit, trusted.VerificationOptions.TrustThreshold)
		if err != nil {
			return TrustedState{}, classifyCommitError(err)
		}
	}

	if err := vals.VerifyCommitLight(trusted.ChainID, header.Commit.BlockID, header.Height, header.Commit); err != nil {
		return TrustedState{}, classifyCommitError(err)
	}

	return TrustedState{
		ChainID:             trusted.ChainID,
		Height:              uint64(header.Height),
		Timestamp:           header.Time.UTC(),
		FinalizedHeaderHash: header.Hash(),
		Validators:          vals,
		NextValidators:      proof.NextValidators,
		NextValidatorsHash:  header.NextValidatorsHash,
		TrustingPeriod:      trusted.TrustingPeriod,
		VerificationOptions: trusted.VerificationOptions,
	}, nil
}

func classifyCommitError(err error) error {
	var notEnough cmttypes.ErrNotEnoughVotingPowerSigned
	if errors.As(err, &notEnough) {
		return errorsmod.Wrapf(types.ErrInsufficientTrust, "got %d, needed more than %d", notEnough.Got, notEnough.Needed)
	}
	return errorsmod.Wrap(types.ErrInvalidHeader, err.Error())
}
