package testsuite

import (
	"fmt"
	"time"

	"github.com/celestiaorg/ismp/x/ismp/types"
)

// Check is a named conformance check.
type Check struct {
	Name string
	Run  func(env Env) error
}

// Checks lists every conformance check. Each one expects a fresh Env.
var Checks = []Check{
	{"ChallengePeriod", CheckChallengePeriod},
	{"ClientExpiry", CheckClientExpiry},
	{"FrozenClient", CheckFrozenClient},
	{"MissingStateCommitment", CheckMissingStateCommitment},
	{"RequestSourceProxy", CheckRequestSourceProxy},
	{"ResponseSourceProxy", CheckResponseSourceProxy},
	{"ProxyWithKnownStateMachine", CheckProxyWithKnownStateMachine},
	{"RequestCommitmentLifecycle", CheckRequestCommitmentLifecycle},
	{"DuplicateResponseDispatch", CheckDuplicateResponseDispatch},
	{"FraudProofFreezing", CheckFraudProofFreezing},
	{"TimeoutIdempotence", CheckTimeoutIdempotence},
}

// CheckChallengePeriod verifies that requests, responses and timeouts proven at a height whose
// challenge period is still running are rejected before their proof is looked at.
func CheckChallengePeriod(env Env) error {
	if err := createClient(env, ConsensusStateID, Counterparty, ChallengePeriod); err != nil {
		return err
	}
	out, err := dispatch(env, Counterparty)
	if err != nil {
		return err
	}

	garbage := proofAt(Counterparty, InitialHeight, []byte("garbage"))
	msgs := []struct {
		name string
		msg  types.Message
	}{
		{"request", &types.RequestMessage{Requests: []types.PostRequest{incoming(env, Counterparty, 1)}, Proof: garbage, Signer: Relayer}},
		{"response", &types.ResponseMessage{PostResponses: []types.PostResponse{{Post: *out, Response: []byte("ok")}}, Proof: garbage, Signer: Relayer}},
		{"timeout", &types.TimeoutMessage{PostRequests: []types.PostRequest{*out}, Proof: garbage, Signer: Relayer}},
	}
	for _, m := range msgs {
		if err := expect(env.HandleMessage(env.Context(), m.msg), types.ErrChallengePeriodNotElapsed, m.name+" inside the challenge period"); err != nil {
			return err
		}
	}

	env.AdvanceTime(ChallengePeriod)

	msg := &types.RequestMessage{Requests: []types.PostRequest{incoming(env, Counterparty, 1)}, Proof: validProof(Counterparty), Signer: Relayer}
	if err := env.HandleMessage(env.Context(), msg); err != nil {
		return fmt.Errorf("request after the challenge period: %w", err)
	}
	return nil
}

// CheckClientExpiry verifies that a consensus client not updated within its unbonding period
// rejects further consensus updates.
func CheckClientExpiry(env Env) error {
	if err := createClient(env, ConsensusStateID, Counterparty, 0); err != nil {
		return err
	}

	update := func(height uint64) types.Message {
		return &types.ConsensusMessage{
			ConsensusStateID: ConsensusStateID,
			ConsensusProof: EncodeMockConsensusUpdate(MockConsensusUpdate{
				ID:         Counterparty,
				Height:     height,
				Commitment: types.StateCommitment{Timestamp: uint64(env.Host().Timestamp(env.Context()).Unix())},
			}),
			Signer: Relayer,
		}
	}

	env.AdvanceTime(UnbondingPeriod - time.Second)
	if err := env.HandleMessage(env.Context(), update(InitialHeight+1)); err != nil {
		return fmt.Errorf("consensus update within the unbonding period: %w", err)
	}

	env.AdvanceTime(UnbondingPeriod)
	return expect(env.HandleMessage(env.Context(), update(InitialHeight+2)), types.ErrUnbondingPeriodElapsed, "consensus update after the unbonding period")
}

// CheckFrozenClient verifies that every message relying on a frozen consensus client is rejected.
func CheckFrozenClient(env Env) error {
	if err := createClient(env, ConsensusStateID, Counterparty, 0); err != nil {
		return err
	}
	out, err := dispatch(env, Counterparty)
	if err != nil {
		return err
	}

	freeze := &types.FraudProofMessage{ConsensusStateID: ConsensusStateID, Proof1: []byte("a"), Proof2: []byte("b"), Signer: Relayer}
	if err := env.HandleMessage(env.Context(), freeze); err != nil {
		return fmt.Errorf("freezing consensus client: %w", err)
	}

	proof := validProof(Counterparty)
	msgs := []struct {
		name string
		msg  types.Message
	}{
		{"consensus update", &types.ConsensusMessage{
			ConsensusStateID: ConsensusStateID,
			ConsensusProof:   EncodeMockConsensusUpdate(MockConsensusUpdate{ID: Counterparty, Height: InitialHeight + 1}),
			Signer:           Relayer,
		}},
		{"request", &types.RequestMessage{Requests: []types.PostRequest{incoming(env, Counterparty, 1)}, Proof: proof, Signer: Relayer}},
		{"response", &types.ResponseMessage{PostResponses: []types.PostResponse{{Post: *out, Response: []byte("ok")}}, Proof: proof, Signer: Relayer}},
		{"timeout", &types.TimeoutMessage{PostRequests: []types.PostRequest{*out}, Proof: proof, Signer: Relayer}},
	}
	for _, m := range msgs {
		if err := expect(env.HandleMessage(env.Context(), m.msg), types.ErrFrozenConsensusClient, m.name+" against a frozen client"); err != nil {
			return err
		}
	}
	return nil
}

// CheckMissingStateCommitment verifies that proofs at heights the host has not finalized are rejected.
func CheckMissingStateCommitment(env Env) error {
	if err := createClient(env, ConsensusStateID, Counterparty, 0); err != nil {
		return err
	}

	for _, height := range []types.StateMachineHeight{
		{ID: Counterparty, Height: InitialHeight + 1},
		{ID: Unknown, Height: InitialHeight},
	} {
		msg := &types.RequestMessage{
			Requests: []types.PostRequest{incoming(env, Counterparty, 1)},
			Proof:    proofAt(height.ID, height.Height, MockProof),
			Signer:   Relayer,
		}
		if err := expect(env.HandleMessage(env.Context(), msg), types.ErrStateCommitmentNotFound, "request proven at "+height.String()); err != nil {
			return err
		}
	}
	return nil
}

// CheckRequestSourceProxy verifies that without a proxy a request is only accepted when proven by its source.
func CheckRequestSourceProxy(env Env) error {
	if err := createClient(env, ConsensusStateID, Counterparty, 0); err != nil {
		return err
	}

	msg := &types.RequestMessage{Requests: []types.PostRequest{incoming(env, Proxied, 1)}, Proof: validProof(Counterparty), Signer: Relayer}
	return expect(env.HandleMessage(env.Context(), msg), types.ErrRequestProxyProhibited, "request proven by a third party")
}

// CheckResponseSourceProxy verifies that without a proxy a response is only accepted when proven by its source.
func CheckResponseSourceProxy(env Env) error {
	if err := createClient(env, ConsensusStateID, Counterparty, 0); err != nil {
		return err
	}
	out, err := dispatch(env, Proxied)
	if err != nil {
		return err
	}

	msg := &types.ResponseMessage{PostResponses: []types.PostResponse{{Post: *out, Response: []byte("ok")}}, Proof: validProof(Counterparty), Signer: Relayer}
	return expect(env.HandleMessage(env.Context(), msg), types.ErrResponseProxyProhibited, "response proven by a third party")
}

// CheckProxyWithKnownStateMachine verifies that a configured proxy cannot relay for a state machine
// the host tracks through a distinct consensus client, while it can relay for untracked ones.
func CheckProxyWithKnownStateMachine(env Env) error {
	if err := createClient(env, ConsensusStateID, Counterparty, 0); err != nil {
		return err
	}
	if err := createClient(env, DirectConsensusStateID, Proxied, 0); err != nil {
		return err
	}
	proxy := Counterparty
	if err := env.SetProxy(env.Context(), &proxy); err != nil {
		return fmt.Errorf("configuring proxy: %w", err)
	}

	msg := &types.RequestMessage{Requests: []types.PostRequest{incoming(env, Proxied, 1)}, Proof: validProof(Counterparty), Signer: Relayer}
	if err := expect(env.HandleMessage(env.Context(), msg), types.ErrRequestProxyProhibited, "proxied request from a directly tracked state machine"); err != nil {
		return err
	}

	out, err := dispatch(env, Proxied)
	if err != nil {
		return err
	}
	resp := &types.ResponseMessage{PostResponses: []types.PostResponse{{Post: *out, Response: []byte("ok")}}, Proof: validProof(Counterparty), Signer: Relayer}
	if err := expect(env.HandleMessage(env.Context(), resp), types.ErrResponseProxyProhibited, "proxied response from a directly tracked state machine"); err != nil {
		return err
	}

	msg = &types.RequestMessage{Requests: []types.PostRequest{incoming(env, Unknown, 1)}, Proof: validProof(Counterparty), Signer: Relayer}
	if err := env.HandleMessage(env.Context(), msg); err != nil {
		return fmt.Errorf("proxied request from an untracked state machine: %w", err)
	}
	return nil
}

// CheckRequestCommitmentLifecycle verifies that request commitments exist from dispatch until they are
// consumed by a response or a timeout, and that consumed commitments cannot be acted on again.
func CheckRequestCommitmentLifecycle(env Env) error {
	if err := createClient(env, ConsensusStateID, Counterparty, 0); err != nil {
		return err
	}

	answered, err := dispatch(env, Counterparty)
	if err != nil {
		return err
	}
	if _, err := env.Host().RequestCommitment(env.Context(), answered.Commitment()); err != nil {
		return fmt.Errorf("dispatched request commitment: %w", err)
	}

	resp := &types.ResponseMessage{PostResponses: []types.PostResponse{{Post: *answered, Response: []byte("ok")}}, Proof: validProof(Counterparty), Signer: Relayer}
	if err := env.HandleMessage(env.Context(), resp); err != nil {
		return fmt.Errorf("delivering response: %w", err)
	}
	_, err = env.Host().RequestCommitment(env.Context(), answered.Commitment())
	if err := expect(err, types.ErrRequestCommitmentNotFound, "request commitment lookup after its response"); err != nil {
		return err
	}
	if err := expect(env.HandleMessage(env.Context(), resp), types.ErrDuplicateResponse, "redelivering response"); err != nil {
		return err
	}

	expired, err := dispatch(env, Counterparty)
	if err != nil {
		return err
	}
	timeout := &types.TimeoutMessage{PostRequests: []types.PostRequest{*expired}, Proof: validProof(Counterparty), Signer: Relayer}
	if err := env.HandleMessage(env.Context(), timeout); err != nil {
		return fmt.Errorf("timing out request: %w", err)
	}
	_, err = env.Host().RequestCommitment(env.Context(), expired.Commitment())
	return expect(err, types.ErrRequestCommitmentNotFound, "request commitment lookup after its timeout")
}

// CheckDuplicateResponseDispatch verifies that a received request can be responded to only once and
// that a rejected second dispatch leaves the first response commitment intact.
func CheckDuplicateResponseDispatch(env Env) error {
	if err := createClient(env, ConsensusStateID, Counterparty, 0); err != nil {
		return err
	}

	req := incoming(env, Counterparty, 1)
	unsolicited := &types.PostResponse{Post: req, Response: []byte("ok")}
	_, err := env.DispatchResponse(env.Context(), unsolicited, fee)
	if err := expect(err, types.ErrUnsolicitedResponse, "responding to an unknown request"); err != nil {
		return err
	}

	msg := &types.RequestMessage{Requests: []types.PostRequest{req}, Proof: validProof(Counterparty), Signer: Relayer}
	if err := env.HandleMessage(env.Context(), msg); err != nil {
		return fmt.Errorf("delivering request: %w", err)
	}

	resp := &types.PostResponse{Post: req, Response: []byte("ok")}
	hash, err := env.DispatchResponse(env.Context(), resp, fee)
	if err != nil {
		return fmt.Errorf("dispatching response: %w", err)
	}

	for _, dup := range []*types.PostResponse{resp, {Post: req, Response: []byte("other")}} {
		_, err := env.DispatchResponse(env.Context(), dup, fee)
		if err := expect(err, types.ErrDuplicateResponse, "dispatching a second response"); err != nil {
			return err
		}
	}

	if _, err := env.Host().ResponseCommitment(env.Context(), hash); err != nil {
		return fmt.Errorf("response commitment after duplicate dispatch: %w", err)
	}
	return nil
}

// CheckFraudProofFreezing verifies that a fraud proof freezes its consensus client and that a second
// fraud proof against the frozen client is rejected.
func CheckFraudProofFreezing(env Env) error {
	if err := createClient(env, ConsensusStateID, Counterparty, 0); err != nil {
		return err
	}

	msg := &types.FraudProofMessage{ConsensusStateID: ConsensusStateID, Proof1: []byte("a"), Proof2: []byte("b"), Signer: Relayer}
	if err := env.HandleMessage(env.Context(), msg); err != nil {
		return fmt.Errorf("submitting fraud proof: %w", err)
	}

	frozen, err := env.Host().IsConsensusClientFrozen(env.Context(), ConsensusStateID)
	if err != nil {
		return err
	}
	if !frozen {
		return fmt.Errorf("consensus client %s is not frozen after a fraud proof", ConsensusStateID)
	}

	return expect(env.HandleMessage(env.Context(), msg), types.ErrFrozenConsensusClient, "second fraud proof")
}

// CheckTimeoutIdempotence verifies that premature timeouts are rejected and that timing out an already
// consumed request fails.
func CheckTimeoutIdempotence(env Env) error {
	if err := createClient(env, ConsensusStateID, Counterparty, 0); err != nil {
		return err
	}
	out, err := dispatch(env, Counterparty)
	if err != nil {
		return err
	}

	pending := &types.PostRequest{Dest: Counterparty, From: ModuleID, To: ModuleID, TimeoutTimestamp: out.TimeoutTimestamp + 2*CounterpartyClockSkew}
	if _, err := env.DispatchRequest(env.Context(), pending, fee); err != nil {
		return fmt.Errorf("dispatching request: %w", err)
	}
	premature := &types.TimeoutMessage{PostRequests: []types.PostRequest{*pending}, Proof: validProof(Counterparty), Signer: Relayer}
	if err := expect(env.HandleMessage(env.Context(), premature), types.ErrTimeoutNotElapsed, "premature timeout"); err != nil {
		return err
	}

	timeout := &types.TimeoutMessage{PostRequests: []types.PostRequest{*out}, Proof: validProof(Counterparty), Signer: Relayer}
	if err := env.HandleMessage(env.Context(), timeout); err != nil {
		return fmt.Errorf("timing out request: %w", err)
	}
	return expect(env.HandleMessage(env.Context(), timeout), types.ErrRequestCommitmentNotFound, "timing out a consumed request")
}
