package keeper

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/ethereum/go-ethereum/common"
)

// DispatchRequest assigns the source and nonce of an outgoing post request and commits it.
// The commitment of the request is returned.
func (k *Keeper) DispatchRequest(ctx context.Context, req *types.PostRequest, fee types.FeeMetadata) (common.Hash, error) {
	nonce, err := k.nonce.Next(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	req.Source, req.Nonce = k.host, nonce

	if err := req.ValidateBasic(); err != nil {
		return common.Hash{}, err
	}
	hash, err := k.commitRequest(ctx, req, fee)
	if err != nil {
		return common.Hash{}, err
	}

	EmitRequestEvent(ctx, types.EventTypeRequest, req, hash)
	return hash, nil
}

// DispatchGet assigns the source and nonce of an outgoing get request and commits it.
func (k *Keeper) DispatchGet(ctx context.Context, get *types.GetRequest, fee types.FeeMetadata) (common.Hash, error) {
	nonce, err := k.nonce.Next(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	get.Source, get.Nonce = k.host, nonce

	if err := get.ValidateBasic(); err != nil {
		return common.Hash{}, err
	}
	hash, err := k.commitRequest(ctx, get, fee)
	if err != nil {
		return common.Hash{}, err
	}

	EmitRequestEvent(ctx, types.EventTypeGetRequest, get, hash)
	return hash, nil
}

// DispatchResponse commits a response to a post request previously received by the host. A request
// can be responded to at most once while its response is pending or delivered.
func (k *Keeper) DispatchResponse(ctx context.Context, resp *types.PostResponse, fee types.FeeMetadata) (common.Hash, error) {
	if err := resp.ValidateBasic(); err != nil {
		return common.Hash{}, err
	}
	if resp.Post.Dest != k.host {
		return common.Hash{}, errorsmod.Wrapf(types.ErrInvalidMessageDestination, "request was addressed to %s", resp.Post.Dest)
	}

	reqHash, hash := resp.Post.Commitment(), resp.Commitment()

	_, received, err := k.RequestReceipt(ctx, reqHash)
	if err != nil {
		return common.Hash{}, err
	}
	if !received {
		return common.Hash{}, errorsmod.Wrap(types.ErrUnsolicitedResponse, reqHash.Hex())
	}

	responded, err := k.responded.Has(ctx, reqHash.Bytes())
	if err != nil {
		return common.Hash{}, err
	}
	if responded {
		return common.Hash{}, errorsmod.Wrap(types.ErrDuplicateResponse, reqHash.Hex())
	}

	if err := k.responseCommitments.Set(ctx, hash.Bytes(), fee); err != nil {
		return common.Hash{}, err
	}
	if err := k.responded.Set(ctx, reqHash.Bytes()); err != nil {
		return common.Hash{}, err
	}

	EmitResponseEvent(ctx, resp, hash)
	return hash, nil
}

func (k *Keeper) commitRequest(ctx context.Context, req types.Request, fee types.FeeMetadata) (common.Hash, error) {
	hash := req.Commitment()

	exists, err := k.requestCommitments.Has(ctx, hash.Bytes())
	if err != nil {
		return common.Hash{}, err
	}
	if exists {
		return common.Hash{}, errorsmod.Wrap(types.ErrDuplicateRequest, hash.Hex())
	}

	if err := k.requestCommitments.Set(ctx, hash.Bytes(), fee); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}
