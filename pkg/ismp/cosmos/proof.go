package cosmos

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	storetypes "cosmossdk.io/store/types"
	"github.com/celestiaorg/ismp/x/ismp/statemachine"
	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/cometbft/cometbft/crypto/merkle"
	cmtcrypto "github.com/cometbft/cometbft/proto/tendermint/crypto"
	ics23 "github.com/cosmos/ics23/go"
	"github.com/ethereum/go-ethereum/common"
)

// proofRuntime decodes the ics23 commitment ops returned by store queries.
var proofRuntime = func() *merkle.ProofRuntime {
	prt := merkle.DefaultProofRuntime()
	prt.RegisterOpDecoder(storetypes.ProofOpIAVLCommitment, storetypes.CommitmentOpDecoder)
	prt.RegisterOpDecoder(storetypes.ProofOpSimpleMerkleCommitment, storetypes.CommitmentOpDecoder)
	return prt
}()

// QueryRequestsProof proves the request commitments kept in the ismp store.
func (c *Chain) QueryRequestsProof(ctx context.Context, height uint64, commitments []common.Hash) ([]byte, error) {
	keys := make([][]byte, len(commitments))
	for i, commitment := range commitments {
		keys[i] = types.RequestCommitmentKey(commitment)
	}
	return c.QueryStateProof(ctx, height, keys)
}

// QueryResponsesProof proves the response commitments kept in the ismp store.
func (c *Chain) QueryResponsesProof(ctx context.Context, height uint64, commitments []common.Hash) ([]byte, error) {
	keys := make([][]byte, len(commitments))
	for i, commitment := range commitments {
		keys[i] = types.ResponseCommitmentKey(commitment)
	}
	return c.QueryStateProof(ctx, height, keys)
}

// QueryStateProof proves keys of the ismp store against the app hash of the block at height. The
// app hash of a block commits to the state left by its parent, so the store is queried at height-1.
// The proof is decoded by statemachine.DecodeProof.
func (c *Chain) QueryStateProof(ctx context.Context, height uint64, keys [][]byte) ([]byte, error) {
	if height < 2 {
		return nil, errorsmod.Wrapf(ErrQuery, "no provable state at height %d", height)
	}

	proofs := make([][]*ics23.CommitmentProof, len(keys))
	for i, key := range keys {
		res, err := c.query(ctx, key, int64(height-1), true)
		if err != nil {
			return nil, err
		}
		proofs[i], err = commitmentProofs(res.Response.ProofOps)
		if err != nil {
			return nil, errorsmod.Wrapf(err, "key %s", types.EncodeHex(key))
		}
	}
	return statemachine.EncodeProof(proofs)
}

func commitmentProofs(ops *cmtcrypto.ProofOps) ([]*ics23.CommitmentProof, error) {
	if ops == nil || len(ops.Ops) == 0 {
		return nil, errorsmod.Wrap(ErrMalformedData, "query returned no proof")
	}

	operators, err := proofRuntime.DecodeProof(ops)
	if err != nil {
		return nil, errorsmod.Wrap(ErrMalformedData, err.Error())
	}

	chain := make([]*ics23.CommitmentProof, len(operators))
	for i, op := range operators {
		commitment, ok := op.(storetypes.CommitmentOp)
		if !ok {
			return nil, errorsmod.Wrapf(ErrMalformedData, "unexpected proof op %s", op.ProofOp().Type)
		}
		chain[i] = commitment.Proof
	}
	return chain, nil
}
