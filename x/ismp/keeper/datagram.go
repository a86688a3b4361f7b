package keeper

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/ethereum/go-ethereum/common"
)

func (k *Keeper) handleRequests(ctx context.Context, msg *types.RequestMessage) error {
	commitment, smClient, err := k.verifyProofHeight(ctx, msg.Proof.Height)
	if err != nil {
		return err
	}

	params, err := k.GetParams(ctx)
	if err != nil {
		return err
	}

	var (
		now  = k.unixNow(ctx)
		seen = make(map[common.Hash]struct{}, len(msg.Requests))
		reqs = make([]types.Request, 0, len(msg.Requests))
	)
	for i := range msg.Requests {
		req := &msg.Requests[i]
		hash := req.Commitment()

		if req.Dest != k.host && (!params.Hub || req.Source == k.host) {
			return errorsmod.Wrapf(types.ErrInvalidMessageDestination, "request %s is addressed to %s", hash.Hex(), req.Dest)
		}
		if err := k.checkProxy(ctx, req.Source, msg.Proof.Height.ID, false, hash); err != nil {
			return err
		}
		if req.TimedOut(now) {
			return errorsmod.Wrap(types.ErrRequestTimedOut, hash.Hex())
		}
		if _, ok := seen[hash]; ok {
			return errorsmod.Wrap(types.ErrDuplicateRequest, hash.Hex())
		}
		_, received, err := k.RequestReceipt(ctx, hash)
		if err != nil {
			return err
		}
		if received {
			return errorsmod.Wrap(types.ErrDuplicateRequest, hash.Hex())
		}

		seen[hash] = struct{}{}
		reqs = append(reqs, req)
	}

	if err := smClient.VerifyMembership(ctx, k, types.RequestResponse{Requests: reqs}, commitment, msg.Proof); err != nil {
		return err
	}

	for i := range msg.Requests {
		req := &msg.Requests[i]
		hash := req.Commitment()

		if err := k.requestReceipts.Set(ctx, hash.Bytes(), types.RequestReceipt{Commitment: hash, Relayer: msg.Signer}); err != nil {
			return err
		}

		if req.Dest != k.host {
			if err := k.routeRequest(ctx, req, hash); err != nil {
				return err
			}
			EmitHandledEvent(ctx, types.EventTypePostRequestHandled, hash, msg.Signer)
			continue
		}

		if err := k.execute(ctx, req.To, func(ctx context.Context, module types.IsmpModule) error { return module.OnAccept(ctx, *req) }); err != nil {
			k.Logger(ctx).Error("module rejected request", "commitment", hash.Hex(), "err", err)
		}

		EmitHandledEvent(ctx, types.EventTypePostRequestHandled, hash, msg.Signer)
	}

	return nil
}

func (k *Keeper) handlePostResponses(ctx context.Context, msg *types.ResponseMessage) error {
	commitment, smClient, err := k.verifyProofHeight(ctx, msg.Proof.Height)
	if err != nil {
		return err
	}

	var (
		now   = k.unixNow(ctx)
		seen  = make(map[common.Hash]struct{}, len(msg.PostResponses))
		resps = make([]types.Response, 0, len(msg.PostResponses))
	)
	for i := range msg.PostResponses {
		resp := &msg.PostResponses[i]
		hash, reqHash := resp.Commitment(), resp.Post.Commitment()

		if resp.GetDest() != k.host {
			return errorsmod.Wrapf(types.ErrInvalidMessageDestination, "response %s is addressed to %s", hash.Hex(), resp.GetDest())
		}
		if err := k.checkProxy(ctx, resp.GetSource(), msg.Proof.Height.ID, true, hash); err != nil {
			return err
		}
		if _, ok := seen[reqHash]; ok {
			return errorsmod.Wrap(types.ErrDuplicateResponse, hash.Hex())
		}
		_, received, err := k.ResponseReceipt(ctx, reqHash)
		if err != nil {
			return err
		}
		if received {
			return errorsmod.Wrap(types.ErrDuplicateResponse, hash.Hex())
		}
		if _, err := k.RequestCommitment(ctx, reqHash); err != nil {
			return err
		}
		if resp.TimedOut(now) {
			return errorsmod.Wrap(types.ErrResponseTimedOut, hash.Hex())
		}

		seen[reqHash] = struct{}{}
		resps = append(resps, resp)
	}

	if err := smClient.VerifyMembership(ctx, k, types.RequestResponse{Responses: resps}, commitment, msg.Proof); err != nil {
		return err
	}

	for i := range msg.PostResponses {
		resp := &msg.PostResponses[i]
		hash, reqHash := resp.Commitment(), resp.Post.Commitment()

		if err := k.responseReceipts.Set(ctx, reqHash.Bytes(), types.ResponseReceipt{Response: hash, Relayer: msg.Signer}); err != nil {
			return err
		}
		if err := k.requestCommitments.Remove(ctx, reqHash.Bytes()); err != nil {
			return err
		}

		if err := k.execute(ctx, resp.Post.From, func(ctx context.Context, module types.IsmpModule) error { return module.OnResponse(ctx, resp) }); err != nil {
			k.Logger(ctx).Error("module rejected response", "commitment", hash.Hex(), "err", err)
		}

		EmitHandledEvent(ctx, types.EventTypePostResponseHandled, hash, msg.Signer)
	}

	return nil
}

// handleGetResponses answers get requests dispatched by the host with values read from a state proof
// of their destination at the requested height. Get requests cannot be answered through a proxy.
func (k *Keeper) handleGetResponses(ctx context.Context, msg *types.ResponseMessage) error {
	commitment, smClient, err := k.verifyProofHeight(ctx, msg.Proof.Height)
	if err != nil {
		return err
	}

	var (
		now  = k.unixNow(ctx)
		seen = make(map[common.Hash]struct{}, len(msg.GetRequests))
		keys [][]byte
	)
	for i := range msg.GetRequests {
		get := &msg.GetRequests[i]
		hash := get.Commitment()

		if get.Source != k.host {
			return errorsmod.Wrapf(types.ErrInvalidMessageDestination, "get request %s was sent by %s", hash.Hex(), get.Source)
		}
		if get.Dest != msg.Proof.Height.ID {
			return &types.ProxyProhibitedError{Response: true, Commitment: hash, Counterparty: get.Dest, ProofSource: msg.Proof.Height.ID}
		}
		if get.Height != msg.Proof.Height.Height {
			return errorsmod.Wrapf(types.ErrInvalidProof, "get request %s is for height %d, proof is at %s", hash.Hex(), get.Height, msg.Proof.Height)
		}
		if _, ok := seen[hash]; ok {
			return errorsmod.Wrap(types.ErrDuplicateResponse, hash.Hex())
		}
		_, received, err := k.ResponseReceipt(ctx, hash)
		if err != nil {
			return err
		}
		if received {
			return errorsmod.Wrap(types.ErrDuplicateResponse, hash.Hex())
		}
		if _, err := k.RequestCommitment(ctx, hash); err != nil {
			return err
		}
		if get.TimedOut(now) {
			return errorsmod.Wrap(types.ErrRequestTimedOut, hash.Hex())
		}

		seen[hash] = struct{}{}
		keys = append(keys, get.Keys...)
	}

	values, err := smClient.VerifyStateProof(ctx, k, keys, commitment, msg.Proof)
	if err != nil {
		return err
	}

	for i := range msg.GetRequests {
		get := &msg.GetRequests[i]
		hash := get.Commitment()

		resp := &types.GetResponse{Get: *get, Values: make([]types.StorageValue, 0, len(get.Keys))}
		for _, key := range get.Keys {
			resp.Values = append(resp.Values, types.StorageValue{Key: key, Value: values[string(key)]})
		}

		if err := k.responseReceipts.Set(ctx, hash.Bytes(), types.ResponseReceipt{Response: resp.Commitment(), Relayer: msg.Signer}); err != nil {
			return err
		}
		if err := k.requestCommitments.Remove(ctx, hash.Bytes()); err != nil {
			return err
		}

		if err := k.execute(ctx, get.From, func(ctx context.Context, module types.IsmpModule) error { return module.OnResponse(ctx, resp) }); err != nil {
			k.Logger(ctx).Error("module rejected get response", "commitment", hash.Hex(), "err", err)
		}

		EmitHandledEvent(ctx, types.EventTypeGetRequestHandled, hash, msg.Signer)
	}

	return nil
}

// handlePostRequestTimeouts times out requests the destination provably never received before their
// timeout, as observed by the timestamp of the proven state commitment.
func (k *Keeper) handlePostRequestTimeouts(ctx context.Context, msg *types.TimeoutMessage) error {
	commitment, smClient, err := k.verifyProofHeight(ctx, msg.Proof.Height)
	if err != nil {
		return err
	}

	params, err := k.GetParams(ctx)
	if err != nil {
		return err
	}

	seen := make(map[common.Hash]struct{}, len(msg.PostRequests))
	reqs := make([]types.Request, 0, len(msg.PostRequests))
	for i := range msg.PostRequests {
		req := &msg.PostRequests[i]
		hash := req.Commitment()

		if req.Source != k.host && !params.Hub {
			return errorsmod.Wrapf(types.ErrInvalidMessageDestination, "request %s was sent by %s", hash.Hex(), req.Source)
		}
		if err := k.checkProxy(ctx, req.Dest, msg.Proof.Height.ID, false, hash); err != nil {
			return err
		}
		if _, ok := seen[hash]; ok {
			return errorsmod.Wrap(types.ErrRequestCommitmentNotFound, hash.Hex())
		}
		if _, err := k.RequestCommitment(ctx, hash); err != nil {
			return err
		}
		if !req.TimedOut(commitment.Timestamp) {
			return errorsmod.Wrapf(types.ErrTimeoutNotElapsed, "request %s times out at %d, counterparty time is %d",
				hash.Hex(), req.TimeoutTimestamp, commitment.Timestamp)
		}

		seen[hash] = struct{}{}
		reqs = append(reqs, req)
	}

	if err := k.verifyNonMembership(ctx, smClient, types.RequestResponse{Requests: reqs}, commitment, msg.Proof); err != nil {
		return err
	}

	for i := range msg.PostRequests {
		req := &msg.PostRequests[i]
		if req.Source != k.host {
			if err := k.timeoutRoutedRequest(ctx, req, msg.Signer); err != nil {
				return err
			}
			continue
		}
		if err := k.timeoutRequest(ctx, req, msg.Signer); err != nil {
			return err
		}
	}
	return nil
}

// routeRequest commits a request received by a hub host toward its destination. The commitment is
// consumed by a timeout proven against the destination.
func (k *Keeper) routeRequest(ctx context.Context, req *types.PostRequest, hash common.Hash) error {
	if _, err := k.commitRequest(ctx, req, types.FeeMetadata{Fee: math.ZeroInt()}); err != nil {
		return err
	}
	k.Logger(ctx).Debug("routing request", "commitment", hash.Hex(), "source", req.Source, "dest", req.Dest)
	EmitRequestEvent(ctx, types.EventTypeRequest, req, hash)
	return nil
}

// timeoutRoutedRequest drops a routed request that timed out on its destination. The hub receipt is
// deleted so that the source can prove the request was never delivered through the hub.
func (k *Keeper) timeoutRoutedRequest(ctx context.Context, req *types.PostRequest, relayer []byte) error {
	hash := req.Commitment()
	if err := k.requestCommitments.Remove(ctx, hash.Bytes()); err != nil {
		return err
	}
	if err := k.requestReceipts.Remove(ctx, hash.Bytes()); err != nil {
		return err
	}

	EmitHandledEvent(ctx, types.EventTypeRequestTimeoutHandled, hash, relayer)
	return nil
}

// handleGetRequestTimeouts times out get requests against the host clock.
func (k *Keeper) handleGetRequestTimeouts(ctx context.Context, msg *types.TimeoutMessage) error {
	now := k.unixNow(ctx)
	seen := make(map[common.Hash]struct{}, len(msg.GetRequests))
	for i := range msg.GetRequests {
		get := &msg.GetRequests[i]
		hash := get.Commitment()

		if get.Source != k.host {
			return errorsmod.Wrapf(types.ErrInvalidMessageDestination, "get request %s was sent by %s", hash.Hex(), get.Source)
		}
		if _, ok := seen[hash]; ok {
			return errorsmod.Wrap(types.ErrRequestCommitmentNotFound, hash.Hex())
		}
		if _, err := k.RequestCommitment(ctx, hash); err != nil {
			return err
		}
		if !get.TimedOut(now) {
			return errorsmod.Wrapf(types.ErrTimeoutNotElapsed, "get request %s times out at %d, host time is %d",
				hash.Hex(), get.TimeoutTimestamp, now)
		}
		seen[hash] = struct{}{}
	}

	for i := range msg.GetRequests {
		if err := k.timeoutRequest(ctx, &msg.GetRequests[i], msg.Signer); err != nil {
			return err
		}
	}
	return nil
}

// handlePostResponseTimeouts times out responses dispatched by the host that the requesting state
// machine provably never received.
func (k *Keeper) handlePostResponseTimeouts(ctx context.Context, msg *types.TimeoutMessage) error {
	commitment, smClient, err := k.verifyProofHeight(ctx, msg.Proof.Height)
	if err != nil {
		return err
	}

	seen := make(map[common.Hash]struct{}, len(msg.PostResponses))
	resps := make([]types.Response, 0, len(msg.PostResponses))
	for i := range msg.PostResponses {
		resp := &msg.PostResponses[i]
		hash := resp.Commitment()

		if resp.GetSource() != k.host {
			return errorsmod.Wrapf(types.ErrInvalidMessageDestination, "response %s was sent by %s", hash.Hex(), resp.GetSource())
		}
		if err := k.checkProxy(ctx, resp.GetDest(), msg.Proof.Height.ID, true, hash); err != nil {
			return err
		}
		if _, ok := seen[hash]; ok {
			return errorsmod.Wrap(types.ErrResponseCommitmentNotFound, hash.Hex())
		}
		if _, err := k.ResponseCommitment(ctx, hash); err != nil {
			return err
		}
		if !resp.TimedOut(commitment.Timestamp) {
			return errorsmod.Wrapf(types.ErrTimeoutNotElapsed, "response %s times out at %d, counterparty time is %d",
				hash.Hex(), resp.TimeoutTimestamp, commitment.Timestamp)
		}

		seen[hash] = struct{}{}
		resps = append(resps, resp)
	}

	if err := k.verifyNonMembership(ctx, smClient, types.RequestResponse{Responses: resps}, commitment, msg.Proof); err != nil {
		return err
	}

	for i := range msg.PostResponses {
		resp := &msg.PostResponses[i]
		hash := resp.Commitment()

		if err := k.responseCommitments.Remove(ctx, hash.Bytes()); err != nil {
			return err
		}
		if err := k.responded.Remove(ctx, resp.Post.Commitment().Bytes()); err != nil {
			return err
		}

		if err := k.execute(ctx, resp.Post.To, func(ctx context.Context, module types.IsmpModule) error {
			return module.OnTimeout(ctx, types.Timeout{Response: resp})
		}); err != nil {
			k.Logger(ctx).Error("module failed to handle response timeout", "commitment", hash.Hex(), "err", err)
		}

		EmitHandledEvent(ctx, types.EventTypeResponseTimeoutHandled, hash, msg.Signer)
	}
	return nil
}

// verifyNonMembership proves that the counterparty holds no receipt for any of items.
func (k *Keeper) verifyNonMembership(ctx context.Context, smClient types.StateMachineClient, items types.RequestResponse, commitment types.StateCommitment, proof types.Proof) error {
	keys := smClient.ReceiptsStateTrieKey(items)
	values, err := smClient.VerifyStateProof(ctx, k, keys, commitment, proof)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if len(values[string(key)]) > 0 {
			return errorsmod.Wrapf(types.ErrInvalidProof, "counterparty holds a receipt under %s", types.EncodeHex(key))
		}
	}
	return nil
}

func (k *Keeper) timeoutRequest(ctx context.Context, req types.Request, relayer []byte) error {
	hash := req.Commitment()
	if err := k.requestCommitments.Remove(ctx, hash.Bytes()); err != nil {
		return err
	}

	if err := k.execute(ctx, req.GetFrom(), func(ctx context.Context, module types.IsmpModule) error {
		return module.OnTimeout(ctx, types.Timeout{Request: req})
	}); err != nil {
		k.Logger(ctx).Error("module failed to handle request timeout", "commitment", hash.Hex(), "err", err)
	}

	EmitHandledEvent(ctx, types.EventTypeRequestTimeoutHandled, hash, relayer)
	return nil
}
