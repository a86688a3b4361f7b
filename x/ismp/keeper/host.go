package keeper

import (
	"context"
	"errors"
	"time"

	"cosmossdk.io/collections"
	errorsmod "cosmossdk.io/errors"
	"github.com/celestiaorg/ismp/x/ismp/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"
)

// HostStateMachine implements types.IsmpHost.
func (k *Keeper) HostStateMachine() types.StateMachineID {
	return k.host
}

// Timestamp implements types.IsmpHost. The host clock is the block time.
func (k *Keeper) Timestamp(ctx context.Context) time.Time {
	return sdk.UnwrapSDKContext(ctx).BlockTime().UTC()
}

// ConsensusState implements types.IsmpHost.
func (k *Keeper) ConsensusState(ctx context.Context, id types.ConsensusStateID) ([]byte, error) {
	state, err := k.consensusStates.Get(ctx, id[:])
	if errors.Is(err, collections.ErrNotFound) {
		return nil, errorsmod.Wrap(types.ErrConsensusStateNotFound, id.String())
	}
	return state, err
}

// StoreConsensusState implements types.IsmpHost.
func (k *Keeper) StoreConsensusState(ctx context.Context, id types.ConsensusStateID, state []byte) error {
	return k.consensusStates.Set(ctx, id[:], state)
}

// ConsensusUpdateTime implements types.IsmpHost.
func (k *Keeper) ConsensusUpdateTime(ctx context.Context, id types.ConsensusStateID) (time.Time, error) {
	nanos, err := k.consensusUpdateTimes.Get(ctx, id[:])
	if errors.Is(err, collections.ErrNotFound) {
		return time.Time{}, errorsmod.Wrap(types.ErrConsensusStateNotFound, id.String())
	}
	if err != nil {
		return time.Time{}, err
	}
	return fromUnixNano(nanos), nil
}

// StoreConsensusUpdateTime implements types.IsmpHost.
func (k *Keeper) StoreConsensusUpdateTime(ctx context.Context, id types.ConsensusStateID, t time.Time) error {
	return k.consensusUpdateTimes.Set(ctx, id[:], toUnixNano(t))
}

// ConsensusClientID implements types.IsmpHost.
func (k *Keeper) ConsensusClientID(ctx context.Context, id types.ConsensusStateID) (types.ConsensusClientID, error) {
	bz, err := k.consensusClientIDs.Get(ctx, id[:])
	if errors.Is(err, collections.ErrNotFound) {
		return types.ConsensusClientID{}, errorsmod.Wrap(types.ErrConsensusStateNotFound, id.String())
	}
	if err != nil {
		return types.ConsensusClientID{}, err
	}

	var clientID types.ConsensusClientID
	copy(clientID[:], bz)
	return clientID, nil
}

// UnbondingPeriod implements types.IsmpHost.
func (k *Keeper) UnbondingPeriod(ctx context.Context, id types.ConsensusStateID) (time.Duration, error) {
	period, err := k.unbondingPeriods.Get(ctx, id[:])
	if errors.Is(err, collections.ErrNotFound) {
		return 0, errorsmod.Wrap(types.ErrConsensusStateNotFound, id.String())
	}
	return time.Duration(period), err
}

// IsConsensusClientFrozen implements types.IsmpHost.
func (k *Keeper) IsConsensusClientFrozen(ctx context.Context, id types.ConsensusStateID) (bool, error) {
	return k.frozen.Has(ctx, id[:])
}

// FreezeConsensusClient implements types.IsmpHost.
func (k *Keeper) FreezeConsensusClient(ctx context.Context, id types.ConsensusStateID) error {
	return k.frozen.Set(ctx, id[:])
}

// StateMachineCommitment implements types.IsmpHost.
func (k *Keeper) StateMachineCommitment(ctx context.Context, height types.StateMachineHeight) (types.StateCommitment, error) {
	commitment, err := k.stateCommitments.Get(ctx, types.StateMachineHeightKey(height))
	if errors.Is(err, collections.ErrNotFound) {
		return types.StateCommitment{}, &types.StateCommitmentNotFoundError{Height: height}
	}
	return commitment, err
}

// StoreStateMachineCommitment implements types.IsmpHost.
func (k *Keeper) StoreStateMachineCommitment(ctx context.Context, height types.StateMachineHeight, commitment types.StateCommitment) error {
	if err := k.stateCommitments.Set(ctx, types.StateMachineHeightKey(height), commitment); err != nil {
		return err
	}

	latest, err := k.LatestCommitmentHeight(ctx, height.ID)
	if err != nil {
		return err
	}
	if height.Height > latest {
		return k.latestHeights.Set(ctx, height.ID.String(), height.Height)
	}
	return nil
}

// StateMachineUpdateTime implements types.IsmpHost.
func (k *Keeper) StateMachineUpdateTime(ctx context.Context, height types.StateMachineHeight) (time.Time, error) {
	nanos, err := k.stateMachineUpdateTimes.Get(ctx, types.StateMachineHeightKey(height))
	if errors.Is(err, collections.ErrNotFound) {
		return time.Time{}, &types.StateCommitmentNotFoundError{Height: height}
	}
	if err != nil {
		return time.Time{}, err
	}
	return fromUnixNano(nanos), nil
}

// StoreStateMachineUpdateTime implements types.IsmpHost.
func (k *Keeper) StoreStateMachineUpdateTime(ctx context.Context, height types.StateMachineHeight, t time.Time) error {
	return k.stateMachineUpdateTimes.Set(ctx, types.StateMachineHeightKey(height), toUnixNano(t))
}

// LatestCommitmentHeight implements types.IsmpHost. It returns zero for unknown state machines.
func (k *Keeper) LatestCommitmentHeight(ctx context.Context, id types.StateMachineID) (uint64, error) {
	height, err := k.latestHeights.Get(ctx, id.String())
	if errors.Is(err, collections.ErrNotFound) {
		return 0, nil
	}
	return height, err
}

// StateMachineConsensusStateID implements types.IsmpHost.
func (k *Keeper) StateMachineConsensusStateID(ctx context.Context, id types.StateMachineID) (types.ConsensusStateID, bool, error) {
	bz, err := k.stateMachineConsensus.Get(ctx, id.String())
	if errors.Is(err, collections.ErrNotFound) {
		return types.ConsensusStateID{}, false, nil
	}
	if err != nil {
		return types.ConsensusStateID{}, false, err
	}

	var csID types.ConsensusStateID
	copy(csID[:], bz)
	return csID, true, nil
}

func (k *Keeper) setStateMachineConsensusStateID(ctx context.Context, id types.StateMachineID, csID types.ConsensusStateID) error {
	return k.stateMachineConsensus.Set(ctx, id.String(), csID[:])
}

// ChallengePeriod implements types.IsmpHost. State machines without a configured period have none.
func (k *Keeper) ChallengePeriod(ctx context.Context, id types.StateMachineID) (time.Duration, error) {
	period, err := k.challengePeriods.Get(ctx, id.String())
	if errors.Is(err, collections.ErrNotFound) {
		return 0, nil
	}
	return time.Duration(period), err
}

// StoreChallengePeriod implements types.IsmpHost.
func (k *Keeper) StoreChallengePeriod(ctx context.Context, id types.StateMachineID, period time.Duration) error {
	return k.challengePeriods.Set(ctx, id.String(), uint64(period))
}

// RequestCommitment implements types.IsmpHost.
func (k *Keeper) RequestCommitment(ctx context.Context, commitment common.Hash) (types.FeeMetadata, error) {
	meta, err := k.requestCommitments.Get(ctx, commitment.Bytes())
	if errors.Is(err, collections.ErrNotFound) {
		return types.FeeMetadata{}, errorsmod.Wrap(types.ErrRequestCommitmentNotFound, commitment.Hex())
	}
	return meta, err
}

// ResponseCommitment implements types.IsmpHost.
func (k *Keeper) ResponseCommitment(ctx context.Context, commitment common.Hash) (types.FeeMetadata, error) {
	meta, err := k.responseCommitments.Get(ctx, commitment.Bytes())
	if errors.Is(err, collections.ErrNotFound) {
		return types.FeeMetadata{}, errorsmod.Wrap(types.ErrResponseCommitmentNotFound, commitment.Hex())
	}
	return meta, err
}

// RequestReceipt implements types.IsmpHost.
func (k *Keeper) RequestReceipt(ctx context.Context, commitment common.Hash) (types.RequestReceipt, bool, error) {
	receipt, err := k.requestReceipts.Get(ctx, commitment.Bytes())
	if errors.Is(err, collections.ErrNotFound) {
		return types.RequestReceipt{}, false, nil
	}
	if err != nil {
		return types.RequestReceipt{}, false, err
	}
	return receipt, true, nil
}

// ResponseReceipt implements types.IsmpHost.
func (k *Keeper) ResponseReceipt(ctx context.Context, requestCommitment common.Hash) (types.ResponseReceipt, bool, error) {
	receipt, err := k.responseReceipts.Get(ctx, requestCommitment.Bytes())
	if errors.Is(err, collections.ErrNotFound) {
		return types.ResponseReceipt{}, false, nil
	}
	if err != nil {
		return types.ResponseReceipt{}, false, err
	}
	return receipt, true, nil
}

// AllowedProxy implements types.IsmpHost.
func (k *Keeper) AllowedProxy(ctx context.Context) (types.StateMachineID, bool, error) {
	params, err := k.params.Get(ctx)
	if errors.Is(err, collections.ErrNotFound) {
		return types.StateMachineID{}, false, nil
	}
	if err != nil {
		return types.StateMachineID{}, false, err
	}
	if params.Proxy == nil {
		return types.StateMachineID{}, false, nil
	}
	return *params.Proxy, true, nil
}

// ConsensusClient implements types.IsmpHost.
func (k *Keeper) ConsensusClient(id types.ConsensusClientID) (types.ConsensusClient, error) {
	client, ok := k.clients[id]
	if !ok {
		return nil, errorsmod.Wrap(types.ErrConsensusClientNotFound, id.String())
	}
	return client, nil
}

func toUnixNano(t time.Time) uint64 {
	return uint64(t.UnixNano())
}

func fromUnixNano(nanos uint64) time.Time {
	return time.Unix(0, int64(nanos)).UTC()
}
