package types

import (
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
)

// Module error codes scoped by ModuleName.
// NOTE: Error code 1 is reserved by cosmos-sdk as internal error / unknown failure

// Protocol invariant violations.
var (
	ErrChallengePeriodNotElapsed  = errorsmod.Register(ModuleName, 2, "challenge period not elapsed")
	ErrUnbondingPeriodElapsed     = errorsmod.Register(ModuleName, 3, "unbonding period elapsed")
	ErrFrozenConsensusClient      = errorsmod.Register(ModuleName, 4, "consensus client is frozen")
	ErrStateCommitmentNotFound    = errorsmod.Register(ModuleName, 5, "state commitment not found")
	ErrRequestProxyProhibited     = errorsmod.Register(ModuleName, 6, "request proxy prohibited")
	ErrResponseProxyProhibited    = errorsmod.Register(ModuleName, 7, "response proxy prohibited")
	ErrDuplicateResponse          = errorsmod.Register(ModuleName, 8, "response commitment already exists")
	ErrDuplicateRequest           = errorsmod.Register(ModuleName, 9, "request already handled")
	ErrRequestCommitmentNotFound  = errorsmod.Register(ModuleName, 10, "request commitment not found")
	ErrResponseCommitmentNotFound = errorsmod.Register(ModuleName, 11, "response commitment not found")
	ErrRequestTimedOut            = errorsmod.Register(ModuleName, 12, "request timed out")
	ErrResponseTimedOut           = errorsmod.Register(ModuleName, 13, "response timed out")
	ErrTimeoutNotElapsed          = errorsmod.Register(ModuleName, 14, "timeout not elapsed")
	ErrInvalidMessageDestination  = errorsmod.Register(ModuleName, 15, "invalid message destination")
	ErrUnsolicitedResponse        = errorsmod.Register(ModuleName, 16, "response for unknown request")
	ErrConsensusStateNotFound     = errorsmod.Register(ModuleName, 17, "consensus state not found")
	ErrConsensusStateExists       = errorsmod.Register(ModuleName, 18, "consensus state already exists")
	ErrConsensusClientNotFound    = errorsmod.Register(ModuleName, 19, "consensus client not found")
	ErrStateMachineNotFound       = errorsmod.Register(ModuleName, 20, "state machine client not found")
	ErrModuleNotFound             = errorsmod.Register(ModuleName, 21, "module not found")
)

// Verification failures.
var (
	ErrInvalidTrustedState    = errorsmod.Register(ModuleName, 30, "invalid trusted state")
	ErrInvalidConsensusProof  = errorsmod.Register(ModuleName, 31, "invalid consensus proof")
	ErrInsufficientTrust      = errorsmod.Register(ModuleName, 32, "insufficient voting power to trust header")
	ErrInvalidHeader          = errorsmod.Register(ModuleName, 33, "invalid header")
	ErrChainIDMismatch        = errorsmod.Register(ModuleName, 34, "chain id mismatch")
	ErrHeaderFromFuture       = errorsmod.Register(ModuleName, 35, "header timestamp is in the future")
	ErrTrustingPeriodExpired  = errorsmod.Register(ModuleName, 36, "trusting period expired")
	ErrConversion             = errorsmod.Register(ModuleName, 37, "conversion error")
	ErrInvalidProof           = errorsmod.Register(ModuleName, 38, "invalid proof")
	ErrInvalidFraudProof      = errorsmod.Register(ModuleName, 39, "invalid fraud proof")
	ErrMembershipVerification = errorsmod.Register(ModuleName, 40, "membership verification failed")
)

// Malformed input.
var (
	ErrInvalidStateMachine = errorsmod.Register(ModuleName, 50, "invalid state machine id")
	ErrInvalidRequest      = errorsmod.Register(ModuleName, 51, "invalid request")
	ErrInvalidResponse     = errorsmod.Register(ModuleName, 52, "invalid response")
	ErrInvalidMessage      = errorsmod.Register(ModuleName, 53, "invalid message")
	ErrInvalidParams       = errorsmod.Register(ModuleName, 54, "invalid params")
	ErrInvalidGenesis      = errorsmod.Register(ModuleName, 55, "invalid genesis state")
)

// ChallengePeriodNotElapsedError reports a proof height whose challenge window is still open.
type ChallengePeriodNotElapsedError struct {
	Height          StateMachineHeight
	UpdateTime      time.Time
	ChallengePeriod time.Duration
	CurrentTime     time.Time
}

func (e *ChallengePeriodNotElapsedError) Error() string {
	return fmt.Sprintf("%s: height %s updated at %s, challenge period %s, current time %s",
		ErrChallengePeriodNotElapsed, e.Height, e.UpdateTime.UTC(), e.ChallengePeriod, e.CurrentTime.UTC())
}

func (e *ChallengePeriodNotElapsedError) Unwrap() error { return ErrChallengePeriodNotElapsed }

// UnbondingPeriodElapsedError reports a consensus client that has not been updated within its unbonding period.
type UnbondingPeriodElapsedError struct {
	ConsensusStateID ConsensusStateID
	LastUpdate       time.Time
	UnbondingPeriod  time.Duration
	CurrentTime      time.Time
}

func (e *UnbondingPeriodElapsedError) Error() string {
	return fmt.Sprintf("%s: consensus state %s last updated at %s, unbonding period %s, current time %s",
		ErrUnbondingPeriodElapsed, e.ConsensusStateID, e.LastUpdate.UTC(), e.UnbondingPeriod, e.CurrentTime.UTC())
}

func (e *UnbondingPeriodElapsedError) Unwrap() error { return ErrUnbondingPeriodElapsed }

// FrozenConsensusClientError reports a message targeting a frozen consensus client.
type FrozenConsensusClientError struct {
	ConsensusStateID ConsensusStateID
}

func (e *FrozenConsensusClientError) Error() string {
	return fmt.Sprintf("%s: %s", ErrFrozenConsensusClient, e.ConsensusStateID)
}

func (e *FrozenConsensusClientError) Unwrap() error { return ErrFrozenConsensusClient }

// StateCommitmentNotFoundError reports a proof height that has not been finalized on the host.
type StateCommitmentNotFoundError struct {
	Height StateMachineHeight
}

func (e *StateCommitmentNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrStateCommitmentNotFound, e.Height)
}

func (e *StateCommitmentNotFoundError) Unwrap() error { return ErrStateCommitmentNotFound }

// ProxyProhibitedError reports a request or response proven through a state machine that is not
// its counterparty and is not an allowed proxy for it.
type ProxyProhibitedError struct {
	Response     bool
	Commitment   common.Hash
	Counterparty StateMachineID
	ProofSource  StateMachineID
}

func (e *ProxyProhibitedError) Error() string {
	return fmt.Sprintf("%s: %s proven through %s, counterparty %s",
		e.Unwrap(), e.Commitment.Hex(), e.ProofSource, e.Counterparty)
}

func (e *ProxyProhibitedError) Unwrap() error {
	if e.Response {
		return ErrResponseProxyProhibited
	}
	return ErrRequestProxyProhibited
}
