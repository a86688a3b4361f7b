package keeper

import (
	"context"
	"strconv"

	"github.com/celestiaorg/ismp/x/ismp/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"
)

// EmitRequestEvent signals dispatch of an outgoing request.
func EmitRequestEvent(ctx context.Context, eventType string, req types.Request, commitment common.Hash) {
	sdk.UnwrapSDKContext(ctx).EventManager().EmitEvent(sdk.NewEvent(
		eventType,
		sdk.NewAttribute(types.AttributeKeyCommitment, commitment.Hex()),
		sdk.NewAttribute(types.AttributeKeySource, req.GetSource().String()),
		sdk.NewAttribute(types.AttributeKeyDest, req.GetDest().String()),
		sdk.NewAttribute(types.AttributeKeyNonce, strconv.FormatUint(req.GetNonce(), 10)),
	))
}

// EmitResponseEvent signals dispatch of an outgoing response.
func EmitResponseEvent(ctx context.Context, resp types.Response, commitment common.Hash) {
	sdk.UnwrapSDKContext(ctx).EventManager().EmitEvent(sdk.NewEvent(
		types.EventTypeResponse,
		sdk.NewAttribute(types.AttributeKeyCommitment, commitment.Hex()),
		sdk.NewAttribute(types.AttributeKeyRequest, resp.Request().Commitment().Hex()),
		sdk.NewAttribute(types.AttributeKeySource, resp.GetSource().String()),
		sdk.NewAttribute(types.AttributeKeyDest, resp.GetDest().String()),
	))
}

// EmitStateMachineUpdatedEvent signals that a new state commitment of a state machine was finalized.
func EmitStateMachineUpdatedEvent(ctx context.Context, id types.StateMachineID, latestHeight uint64) {
	sdk.UnwrapSDKContext(ctx).EventManager().EmitEvent(sdk.NewEvent(
		types.EventTypeStateMachineUpdated,
		sdk.NewAttribute(types.AttributeKeyStateMachineID, id.String()),
		sdk.NewAttribute(types.AttributeKeyLatestHeight, strconv.FormatUint(latestHeight, 10)),
	))
}

// EmitHandledEvent signals that an incoming datagram or a timeout was handled.
func EmitHandledEvent(ctx context.Context, eventType string, commitment common.Hash, relayer []byte) {
	sdk.UnwrapSDKContext(ctx).EventManager().EmitEvent(sdk.NewEvent(
		eventType,
		sdk.NewAttribute(types.AttributeKeyCommitment, commitment.Hex()),
		sdk.NewAttribute(types.AttributeKeyRelayer, types.EncodeHex(relayer)),
	))
}

// EmitConsensusClientEvent signals creation or freezing of a consensus client.
func EmitConsensusClientEvent(ctx context.Context, eventType string, csID types.ConsensusStateID, clientID types.ConsensusClientID) {
	sdk.UnwrapSDKContext(ctx).EventManager().EmitEvent(sdk.NewEvent(
		eventType,
		sdk.NewAttribute(types.AttributeKeyConsensusStateID, csID.String()),
		sdk.NewAttribute(types.AttributeKeyConsensusClientID, clientID.String()),
	))
}
