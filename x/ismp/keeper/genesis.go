package keeper

import (
	"context"
	"errors"
	"time"

	"cosmossdk.io/collections"
	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/ethereum/go-ethereum/common"
)

// InitGenesis initialises the module genesis state.
func (k *Keeper) InitGenesis(ctx context.Context, gs *types.GenesisState) error {
	if err := gs.Validate(); err != nil {
		return err
	}
	if err := k.nonce.Set(ctx, gs.Nonce); err != nil {
		return err
	}
	if err := k.SetParams(ctx, gs.Params); err != nil {
		return err
	}

	for _, cs := range gs.ConsensusStates {
		if err := k.consensusStates.Set(ctx, cs.ID[:], cs.State); err != nil {
			return err
		}
		if err := k.consensusClientIDs.Set(ctx, cs.ID[:], cs.ClientID[:]); err != nil {
			return err
		}
		if err := k.unbondingPeriods.Set(ctx, cs.ID[:], uint64(seconds(cs.UnbondingPeriod))); err != nil {
			return err
		}
		if err := k.consensusUpdateTimes.Set(ctx, cs.ID[:], cs.UpdateTime); err != nil {
			return err
		}
	}
	for _, id := range gs.Frozen {
		if err := k.frozen.Set(ctx, id[:]); err != nil {
			return err
		}
	}
	for _, period := range gs.ChallengePeriods {
		if err := k.challengePeriods.Set(ctx, period.ID.String(), uint64(seconds(period.Period))); err != nil {
			return err
		}
	}
	for _, sc := range gs.StateCommitments {
		key := types.StateMachineHeightKey(sc.Height)
		if err := k.stateCommitments.Set(ctx, key, sc.Commitment); err != nil {
			return err
		}
		if err := k.stateMachineUpdateTimes.Set(ctx, key, sc.UpdateTime); err != nil {
			return err
		}
	}
	for _, height := range gs.LatestHeights {
		if err := k.latestHeights.Set(ctx, height.ID.String(), height.Height); err != nil {
			return err
		}
	}
	for _, smc := range gs.StateMachineConsensus {
		if err := k.stateMachineConsensus.Set(ctx, smc.ID.String(), smc.ConsensusStateID[:]); err != nil {
			return err
		}
	}
	for _, c := range gs.RequestCommitments {
		if err := k.requestCommitments.Set(ctx, c.Commitment.Bytes(), c.Meta); err != nil {
			return err
		}
	}
	for _, c := range gs.ResponseCommitments {
		if err := k.responseCommitments.Set(ctx, c.Commitment.Bytes(), c.Meta); err != nil {
			return err
		}
	}
	for _, receipt := range gs.RequestReceipts {
		if err := k.requestReceipts.Set(ctx, receipt.Commitment.Bytes(), receipt); err != nil {
			return err
		}
	}
	for _, r := range gs.ResponseReceipts {
		if err := k.responseReceipts.Set(ctx, r.Request.Bytes(), r.Receipt); err != nil {
			return err
		}
	}
	for _, hash := range gs.Responded {
		if err := k.responded.Set(ctx, hash.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// ExportGenesis outputs the modules state for genesis exports.
func (k *Keeper) ExportGenesis(ctx context.Context) (*types.GenesisState, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}

	nonce, err := k.nonce.Peek(ctx)
	if err != nil {
		return nil, err
	}

	gs := &types.GenesisState{
		Params: params,
		Nonce:  nonce,
	}

	err = k.consensusStates.Walk(ctx, nil, func(key, state []byte) (bool, error) {
		cs := types.GenesisConsensusState{State: state}
		copy(cs.ID[:], key)

		clientID, err := optional(ctx, k.consensusClientIDs, key)
		if err != nil {
			return true, err
		}
		copy(cs.ClientID[:], clientID)
		unbonding, err := optional(ctx, k.unbondingPeriods, key)
		if err != nil {
			return true, err
		}
		cs.UnbondingPeriod = uint64(time.Duration(unbonding) / time.Second)
		if cs.UpdateTime, err = optional(ctx, k.consensusUpdateTimes, key); err != nil {
			return true, err
		}

		gs.ConsensusStates = append(gs.ConsensusStates, cs)
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	err = k.frozen.Walk(ctx, nil, func(key []byte) (bool, error) {
		var id types.ConsensusStateID
		copy(id[:], key)
		gs.Frozen = append(gs.Frozen, id)
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	err = k.challengePeriods.Walk(ctx, nil, func(key string, period uint64) (bool, error) {
		id, err := types.ParseStateMachineID(key)
		if err != nil {
			return true, err
		}
		gs.ChallengePeriods = append(gs.ChallengePeriods, types.StateMachineChallengePeriod{
			ID:     id,
			Period: uint64(time.Duration(period) / time.Second),
		})
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	err = k.stateCommitments.Walk(ctx, nil, func(key []byte, commitment types.StateCommitment) (bool, error) {
		height, err := types.ParseStateMachineHeightKey(key)
		if err != nil {
			return true, err
		}
		updateTime, err := optional(ctx, k.stateMachineUpdateTimes, key)
		if err != nil {
			return true, err
		}
		gs.StateCommitments = append(gs.StateCommitments, types.GenesisStateCommitment{
			Height:     height,
			Commitment: commitment,
			UpdateTime: updateTime,
		})
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	err = k.latestHeights.Walk(ctx, nil, func(key string, height uint64) (bool, error) {
		id, err := types.ParseStateMachineID(key)
		if err != nil {
			return true, err
		}
		gs.LatestHeights = append(gs.LatestHeights, types.StateMachineHeight{ID: id, Height: height})
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	err = k.stateMachineConsensus.Walk(ctx, nil, func(key string, csID []byte) (bool, error) {
		id, err := types.ParseStateMachineID(key)
		if err != nil {
			return true, err
		}
		smc := types.GenesisStateMachineConsensus{ID: id}
		copy(smc.ConsensusStateID[:], csID)
		gs.StateMachineConsensus = append(gs.StateMachineConsensus, smc)
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	if gs.RequestCommitments, err = exportCommitments(ctx, k.requestCommitments); err != nil {
		return nil, err
	}
	if gs.ResponseCommitments, err = exportCommitments(ctx, k.responseCommitments); err != nil {
		return nil, err
	}

	err = k.requestReceipts.Walk(ctx, nil, func(_ []byte, receipt types.RequestReceipt) (bool, error) {
		gs.RequestReceipts = append(gs.RequestReceipts, receipt)
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	err = k.responseReceipts.Walk(ctx, nil, func(key []byte, receipt types.ResponseReceipt) (bool, error) {
		gs.ResponseReceipts = append(gs.ResponseReceipts, types.GenesisResponseReceipt{
			Request: common.BytesToHash(key),
			Receipt: receipt,
		})
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	err = k.responded.Walk(ctx, nil, func(key []byte) (bool, error) {
		gs.Responded = append(gs.Responded, common.BytesToHash(key))
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	return gs, nil
}

func exportCommitments(ctx context.Context, m collections.Map[[]byte, types.FeeMetadata]) ([]types.GenesisCommitment, error) {
	var commitments []types.GenesisCommitment
	err := m.Walk(ctx, nil, func(key []byte, meta types.FeeMetadata) (bool, error) {
		commitments = append(commitments, types.GenesisCommitment{Commitment: common.BytesToHash(key), Meta: meta})
		return false, nil
	})
	return commitments, err
}

// optional returns the zero value when key is absent from m.
func optional[V any](ctx context.Context, m collections.Map[[]byte, V], key []byte) (V, error) {
	v, err := m.Get(ctx, key)
	if errors.Is(err, collections.ErrNotFound) {
		return v, nil
	}
	return v, err
}
