package keeper

import (
	"context"
	"sort"
	"strconv"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/celestiaorg/ismp/x/ismp/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"
)

// HandleMessage validates and executes a datagram submitted by a relayer.
func (k *Keeper) HandleMessage(ctx context.Context, msg types.Message) error {
	if err := msg.ValidateBasic(); err != nil {
		return err
	}

	switch msg := msg.(type) {
	case *types.CreateConsensusStateMessage:
		return k.handleCreateConsensusState(ctx, msg)
	case *types.ConsensusMessage:
		return k.handleConsensus(ctx, msg)
	case *types.RequestMessage:
		return k.handleRequests(ctx, msg)
	case *types.ResponseMessage:
		if len(msg.GetRequests) > 0 {
			return k.handleGetResponses(ctx, msg)
		}
		return k.handlePostResponses(ctx, msg)
	case *types.TimeoutMessage:
		switch {
		case len(msg.PostRequests) > 0:
			return k.handlePostRequestTimeouts(ctx, msg)
		case len(msg.GetRequests) > 0:
			return k.handleGetRequestTimeouts(ctx, msg)
		default:
			return k.handlePostResponseTimeouts(ctx, msg)
		}
	case *types.FraudProofMessage:
		return k.handleFraudProof(ctx, msg)
	default:
		return errorsmod.Wrapf(types.ErrInvalidMessage, "unsupported message %T", msg)
	}
}

func (k *Keeper) handleCreateConsensusState(ctx context.Context, msg *types.CreateConsensusStateMessage) error {
	csID := msg.ConsensusStateID

	exists, err := k.consensusStates.Has(ctx, csID[:])
	if err != nil {
		return err
	}
	if exists {
		return errorsmod.Wrap(types.ErrConsensusStateExists, csID.String())
	}
	if _, err := k.ConsensusClient(msg.ConsensusClientID); err != nil {
		return err
	}

	now := k.Timestamp(ctx)
	if err := k.StoreConsensusState(ctx, csID, msg.ConsensusState); err != nil {
		return err
	}
	if err := k.consensusClientIDs.Set(ctx, csID[:], msg.ConsensusClientID[:]); err != nil {
		return err
	}
	if err := k.StoreConsensusUpdateTime(ctx, csID, now); err != nil {
		return err
	}
	if err := k.unbondingPeriods.Set(ctx, csID[:], uint64(seconds(msg.UnbondingPeriod))); err != nil {
		return err
	}

	for _, cp := range msg.ChallengePeriods {
		if err := k.StoreChallengePeriod(ctx, cp.ID, seconds(cp.Period)); err != nil {
			return err
		}
		if err := k.setStateMachineConsensusStateID(ctx, cp.ID, csID); err != nil {
			return err
		}
	}

	for _, smc := range msg.StateMachineCommitments {
		if _, err := k.storeStateCommitment(ctx, csID, smc.ID, smc.Commitment, now); err != nil {
			return err
		}
	}

	EmitConsensusClientEvent(ctx, types.EventTypeConsensusClientCreated, csID, msg.ConsensusClientID)
	k.Logger(ctx).Info("created consensus client", "consensus_state_id", csID.String(), "client", msg.ConsensusClientID.String())

	return nil
}

func (k *Keeper) handleConsensus(ctx context.Context, msg *types.ConsensusMessage) error {
	csID := msg.ConsensusStateID
	if err := k.checkFrozen(ctx, csID); err != nil {
		return err
	}

	trusted, err := k.ConsensusState(ctx, csID)
	if err != nil {
		return err
	}
	client, err := k.consensusClientFor(ctx, csID)
	if err != nil {
		return err
	}

	now := k.Timestamp(ctx)
	lastUpdate, err := k.ConsensusUpdateTime(ctx, csID)
	if err != nil {
		return err
	}
	unbonding, err := k.UnbondingPeriod(ctx, csID)
	if err != nil {
		return err
	}
	if now.Sub(lastUpdate) >= unbonding {
		return &types.UnbondingPeriodElapsedError{
			ConsensusStateID: csID,
			LastUpdate:       lastUpdate,
			UnbondingPeriod:  unbonding,
			CurrentTime:      now,
		}
	}

	state, updates, err := client.VerifyConsensus(ctx, k, csID, trusted, msg.ConsensusProof)
	if err != nil {
		return err
	}

	if err := k.StoreConsensusState(ctx, csID, state); err != nil {
		return err
	}
	if err := k.StoreConsensusUpdateTime(ctx, csID, now); err != nil {
		return err
	}

	ids := make([]types.StateMachineID, 0, len(updates))
	for id := range updates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, id := range ids {
		updated := false
		for _, commitment := range updates[id] {
			stored, err := k.storeStateCommitment(ctx, csID, id, commitment, now)
			if err != nil {
				return err
			}
			updated = updated || stored
		}
		if !updated {
			continue
		}

		latest, err := k.LatestCommitmentHeight(ctx, id)
		if err != nil {
			return err
		}
		EmitStateMachineUpdatedEvent(ctx, id, latest)
		k.Logger(ctx).Debug("state machine updated", "state_machine", id.String(), "latest_height", latest)
	}

	return nil
}

func (k *Keeper) handleFraudProof(ctx context.Context, msg *types.FraudProofMessage) error {
	csID := msg.ConsensusStateID
	if err := k.checkFrozen(ctx, csID); err != nil {
		return err
	}

	trusted, err := k.ConsensusState(ctx, csID)
	if err != nil {
		return err
	}
	client, err := k.consensusClientFor(ctx, csID)
	if err != nil {
		return err
	}

	if err := client.VerifyFraudProof(ctx, k, trusted, msg.Proof1, msg.Proof2); err != nil {
		return err
	}
	if err := k.FreezeConsensusClient(ctx, csID); err != nil {
		return err
	}

	EmitConsensusClientEvent(ctx, types.EventTypeConsensusClientFrozen, csID, client.ID())
	k.Logger(ctx).Info("froze consensus client", "consensus_state_id", csID.String(), "relayer", types.EncodeHex(msg.Signer))

	return nil
}

// VetoStateCommitment removes a state commitment whose challenge period is still running.
// The latest height of the state machine is not rolled back.
func (k *Keeper) VetoStateCommitment(ctx context.Context, height types.StateMachineHeight) error {
	updateTime, err := k.StateMachineUpdateTime(ctx, height)
	if err != nil {
		return err
	}
	challenge, err := k.ChallengePeriod(ctx, height.ID)
	if err != nil {
		return err
	}
	if k.Timestamp(ctx).Sub(updateTime) >= challenge {
		return errorsmod.Wrapf(types.ErrInvalidMessage, "challenge period of %s has elapsed", height)
	}

	key := types.StateMachineHeightKey(height)
	if err := k.stateCommitments.Remove(ctx, key); err != nil {
		return err
	}
	if err := k.stateMachineUpdateTimes.Remove(ctx, key); err != nil {
		return err
	}

	sdk.UnwrapSDKContext(ctx).EventManager().EmitEvent(sdk.NewEvent(
		types.EventTypeStateMachineVetoed,
		sdk.NewAttribute(types.AttributeKeyStateMachineID, height.ID.String()),
		sdk.NewAttribute(types.AttributeKeyHeight, strconv.FormatUint(height.Height, 10)),
	))
	k.Logger(ctx).Info("vetoed state commitment", "height", height.String())

	return nil
}

// storeStateCommitment persists a newly finalized state commitment. Existing commitments are never
// overwritten and state machines owned by another consensus state are left untouched.
func (k *Keeper) storeStateCommitment(ctx context.Context, csID types.ConsensusStateID, id types.StateMachineID, commitment types.StateCommitmentHeight, now time.Time) (bool, error) {
	owner, ok, err := k.StateMachineConsensusStateID(ctx, id)
	if err != nil {
		return false, err
	}
	if ok && owner != csID {
		k.Logger(ctx).Error("ignoring state machine update from foreign consensus state",
			"state_machine", id.String(), "owner", owner.String(), "consensus_state_id", csID.String())
		return false, nil
	}
	if !ok {
		if err := k.setStateMachineConsensusStateID(ctx, id, csID); err != nil {
			return false, err
		}
	}

	height := types.StateMachineHeight{ID: id, Height: commitment.Height}
	exists, err := k.stateCommitments.Has(ctx, types.StateMachineHeightKey(height))
	if err != nil || exists {
		return false, err
	}

	if err := k.StoreStateMachineCommitment(ctx, height, commitment.Commitment); err != nil {
		return false, err
	}
	if err := k.StoreStateMachineUpdateTime(ctx, height, now); err != nil {
		return false, err
	}
	return true, nil
}

func (k *Keeper) checkFrozen(ctx context.Context, csID types.ConsensusStateID) error {
	frozen, err := k.IsConsensusClientFrozen(ctx, csID)
	if err != nil {
		return err
	}
	if frozen {
		return &types.FrozenConsensusClientError{ConsensusStateID: csID}
	}
	return nil
}

func (k *Keeper) consensusClientFor(ctx context.Context, csID types.ConsensusStateID) (types.ConsensusClient, error) {
	clientID, err := k.ConsensusClientID(ctx, csID)
	if err != nil {
		return nil, err
	}
	return k.ConsensusClient(clientID)
}

// verifyProofHeight checks that a proof height may be used to verify datagrams: its consensus client is
// not frozen, its state commitment exists and its challenge period has elapsed.
func (k *Keeper) verifyProofHeight(ctx context.Context, height types.StateMachineHeight) (types.StateCommitment, types.StateMachineClient, error) {
	csID, ok, err := k.StateMachineConsensusStateID(ctx, height.ID)
	if err != nil {
		return types.StateCommitment{}, nil, err
	}
	if !ok {
		return types.StateCommitment{}, nil, &types.StateCommitmentNotFoundError{Height: height}
	}
	if err := k.checkFrozen(ctx, csID); err != nil {
		return types.StateCommitment{}, nil, err
	}

	updateTime, err := k.StateMachineUpdateTime(ctx, height)
	if err != nil {
		return types.StateCommitment{}, nil, err
	}
	challenge, err := k.ChallengePeriod(ctx, height.ID)
	if err != nil {
		return types.StateCommitment{}, nil, err
	}
	now := k.Timestamp(ctx)
	if now.Sub(updateTime) < challenge {
		return types.StateCommitment{}, nil, &types.ChallengePeriodNotElapsedError{
			Height:          height,
			UpdateTime:      updateTime,
			ChallengePeriod: challenge,
			CurrentTime:     now,
		}
	}

	commitment, err := k.StateMachineCommitment(ctx, height)
	if err != nil {
		return types.StateCommitment{}, nil, err
	}
	client, err := k.consensusClientFor(ctx, csID)
	if err != nil {
		return types.StateCommitment{}, nil, err
	}
	smClient, err := client.StateMachine(height.ID)
	if err != nil {
		return types.StateCommitment{}, nil, err
	}

	return commitment, smClient, nil
}

// checkProxy allows a datagram proven through proofSource when proofSource is its counterparty, or when
// proofSource is the configured proxy and the host has no direct consensus client of its own for the
// counterparty.
func (k *Keeper) checkProxy(ctx context.Context, counterparty, proofSource types.StateMachineID, response bool, commitment common.Hash) error {
	if counterparty == proofSource {
		return nil
	}

	prohibited := &types.ProxyProhibitedError{
		Response:     response,
		Commitment:   commitment,
		Counterparty: counterparty,
		ProofSource:  proofSource,
	}

	proxy, ok, err := k.AllowedProxy(ctx)
	if err != nil {
		return err
	}
	if !ok || proxy != proofSource {
		return prohibited
	}

	direct, ok, err := k.StateMachineConsensusStateID(ctx, counterparty)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	viaProxy, ok, err := k.StateMachineConsensusStateID(ctx, proofSource)
	if err != nil {
		return err
	}
	if !ok || viaProxy != direct {
		return prohibited
	}
	return nil
}

// execute runs a callback of the application module registered under id in a cached context and only
// commits its writes on success.
func (k *Keeper) execute(ctx context.Context, id []byte, fn func(ctx context.Context, module types.IsmpModule) error) error {
	module, err := k.router.Module(id)
	if err != nil {
		return err
	}

	cacheCtx, write := sdk.UnwrapSDKContext(ctx).CacheContext()
	if err := fn(cacheCtx, module); err != nil {
		return err
	}
	write()
	return nil
}

func (k *Keeper) unixNow(ctx context.Context) uint64 {
	return uint64(k.Timestamp(ctx).Unix())
}

func seconds(s uint64) time.Duration {
	return time.Duration(s) * time.Second
}
