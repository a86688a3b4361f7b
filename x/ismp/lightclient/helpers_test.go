package lightclient_test

import (
	"context"
	"crypto/sha256"
	"fmt"
	"testing"
	"time"

	"github.com/celestiaorg/ismp/x/ismp/lightclient"
	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/cometbft/cometbft/crypto"
	"github.com/cometbft/cometbft/crypto/ed25519"
	"github.com/cometbft/cometbft/crypto/tmhash"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	cmtversion "github.com/cometbft/cometbft/proto/tendermint/version"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/cometbft/cometbft/version"
	"github.com/stretchr/testify/require"
)

var genesisTime = time.Unix(1_700_000_000, 0).UTC()

// testChain signs headers with a fixed set of equally weighted validators.
type testChain struct {
	chainID string
	vals    *cmttypes.ValidatorSet
	keys    map[string]crypto.PrivKey
}

func newTestChain(t *testing.T, chainID string, numVals int) *testChain {
	t.Helper()

	vals := make([]*cmttypes.Validator, numVals)
	keys := make(map[string]crypto.PrivKey, numVals)
	for i := 0; i < numVals; i++ {
		pk := ed25519.GenPrivKeyFromSecret([]byte(fmt.Sprintf("%s-%d", chainID, i)))
		vals[i] = cmttypes.NewValidator(pk.PubKey(), 10)
		keys[pk.PubKey().Address().String()] = pk
	}

	return &testChain{
		chainID: chainID,
		vals:    cmttypes.NewValidatorSet(vals),
		keys:    keys,
	}
}

// trustedState returns a trusted state at height whose next validators are the chain's validators.
func (c *testChain) trustedState(height uint64, ts time.Time) lightclient.TrustedState {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", c.chainID, height)))
	return lightclient.TrustedState{
		ChainID:             c.chainID,
		Height:              height,
		Timestamp:           ts,
		FinalizedHeaderHash: hash[:],
		Validators:          c.vals,
		NextValidators:      c.vals,
		NextValidatorsHash:  c.vals.Hash(),
		TrustingPeriod:      14 * 24 * time.Hour,
		VerificationOptions: lightclient.DefaultVerificationOptions(),
	}
}

// signedHeader returns a header at height committed by the first signers validators.
func (c *testChain) signedHeader(t *testing.T, height int64, ts time.Time, appHash []byte, signers int) *cmttypes.SignedHeader {
	t.Helper()

	header := &cmttypes.Header{
		Version:            cmtversion.Consensus{Block: version.BlockProtocol, App: 1},
		ChainID:            c.chainID,
		Height:             height,
		Time:               ts,
		ValidatorsHash:     c.vals.Hash(),
		NextValidatorsHash: c.vals.Hash(),
		AppHash:            appHash,
		ProposerAddress:    c.vals.Proposer.Address,
	}

	blockID := cmttypes.BlockID{
		Hash: header.Hash(),
		PartSetHeader: cmttypes.PartSetHeader{
			Total: 1,
			Hash:  tmhash.Sum([]byte("partshash")),
		},
	}

	sigs := make([]cmttypes.CommitSig, len(c.vals.Validators))
	for i, val := range c.vals.Validators {
		if i >= signers {
			sigs[i] = cmttypes.NewCommitSigAbsent()
			continue
		}

		vote := &cmttypes.Vote{
			Type:             cmtproto.PrecommitType,
			Height:           height,
			Round:            0,
			BlockID:          blockID,
			Timestamp:        ts,
			ValidatorAddress: val.Address,
			ValidatorIndex:   int32(i),
		}
		sig, err := c.keys[val.Address.String()].Sign(cmttypes.VoteSignBytes(c.chainID, vote.ToProto()))
		require.NoError(t, err)

		sigs[i] = cmttypes.CommitSig{
			BlockIDFlag:      cmttypes.BlockIDFlagCommit,
			ValidatorAddress: val.Address,
			Timestamp:        ts,
			Signature:        sig,
		}
	}

	return &cmttypes.SignedHeader{
		Header: header,
		Commit: &cmttypes.Commit{
			Height:     height,
			Round:      0,
			BlockID:    blockID,
			Signatures: sigs,
		},
	}
}

func (c *testChain) proof(t *testing.T, height int64, ts time.Time, signers int) lightclient.ConsensusProof {
	t.Helper()
	return lightclient.ConsensusProof{
		SignedHeader:   c.signedHeader(t, height, ts, appHash(height), signers),
		NextValidators: c.vals,
	}
}

func appHash(height int64) []byte {
	hash := sha256.Sum256([]byte(fmt.Sprintf("app/%d", height)))
	return hash[:]
}

// clockHost is an IsmpHost that only answers Timestamp.
type clockHost struct {
	types.IsmpHost
	now time.Time
}

func (h clockHost) Timestamp(context.Context) time.Time { return h.now }
