package statemachine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"sort"
	"testing"

	"github.com/celestiaorg/ismp/x/ismp/types"
	ics23 "github.com/cosmos/ics23/go"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	evmID  = types.NewStateMachineID(types.StateMachineKindEVM, 1)
	tmID   = types.NewStateMachineID(types.StateMachineKindTendermint, 1)
	height = types.StateMachineHeight{ID: tmID, Height: 100}
)

// tree is a minimal binary merkle tree laid out as ics23.TendermintSpec expects.
type tree struct {
	root   []byte
	keys   [][]byte
	proofs []*ics23.ExistenceProof
}

func newTree(t *testing.T, kvs map[string][]byte) *tree {
	t.Helper()

	keys := make([][]byte, 0, len(kvs))
	for k := range kvs {
		keys = append(keys, []byte(k))
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })

	proofs := make([]*ics23.ExistenceProof, len(keys))
	for i, k := range keys {
		proofs[i] = &ics23.ExistenceProof{Key: k, Value: kvs[string(k)], Leaf: ics23.TendermintSpec.LeafSpec}
	}

	root := build(t, proofs)
	return &tree{root: root, keys: keys, proofs: proofs}
}

func build(t *testing.T, leaves []*ics23.ExistenceProof) []byte {
	if len(leaves) == 1 {
		hash, err := ics23.TendermintSpec.LeafSpec.Apply(leaves[0].Key, leaves[0].Value)
		require.NoError(t, err)
		return hash
	}

	mid := (len(leaves) + 1) / 2
	left, right := build(t, leaves[:mid]), build(t, leaves[mid:])
	for _, leaf := range leaves[:mid] {
		leaf.Path = append(leaf.Path, &ics23.InnerOp{Hash: ics23.HashOp_SHA256, Prefix: []byte{1}, Suffix: right})
	}
	for _, leaf := range leaves[mid:] {
		leaf.Path = append(leaf.Path, &ics23.InnerOp{Hash: ics23.HashOp_SHA256, Prefix: append([]byte{1}, left...)})
	}

	hash := sha256.Sum256(append(append([]byte{1}, left...), right...))
	return hash[:]
}

func (tr *tree) exist(t *testing.T, key []byte) *ics23.CommitmentProof {
	t.Helper()
	for i, k := range tr.keys {
		if bytes.Equal(k, key) {
			return &ics23.CommitmentProof{Proof: &ics23.CommitmentProof_Exist{Exist: tr.proofs[i]}}
		}
	}
	t.Fatalf("key %x not in tree", key)
	return nil
}

func (tr *tree) nonexist(t *testing.T, key []byte) *ics23.CommitmentProof {
	t.Helper()
	nonexist := &ics23.NonExistenceProof{Key: key}
	for i, k := range tr.keys {
		switch bytes.Compare(k, key) {
		case 0:
			t.Fatalf("key %x is in tree", key)
		case -1:
			nonexist.Left = tr.proofs[i]
		case 1:
			if nonexist.Right == nil {
				nonexist.Right = tr.proofs[i]
			}
		}
	}
	return &ics23.CommitmentProof{Proof: &ics23.CommitmentProof_Nonexist{Nonexist: nonexist}}
}

func (tr *tree) commitment() types.StateCommitment {
	return types.StateCommitment{Timestamp: 1, StateRoot: common.BytesToHash(tr.root)}
}

func encode(t *testing.T, chains ...[]*ics23.CommitmentProof) types.Proof {
	t.Helper()
	bz, err := EncodeProof(chains)
	require.NoError(t, err)
	return types.Proof{Height: height, Proof: bz}
}

func testRequests() []types.Request {
	return []types.Request{
		&types.PostRequest{Source: tmID, Dest: evmID, Nonce: 1, From: []byte("a"), To: []byte("b"), Body: []byte("one")},
		&types.PostRequest{Source: tmID, Dest: evmID, Nonce: 2, From: []byte("a"), To: []byte("b"), Body: []byte("two")},
		&types.PostRequest{Source: tmID, Dest: evmID, Nonce: 3, From: []byte("a"), To: []byte("b"), Body: []byte("three")},
	}
}

func TestVerifyMembership(t *testing.T) {
	var (
		ctx    = context.Background()
		client = NewClient(ics23.TendermintSpec)
		reqs   = testRequests()
	)

	kvs := map[string][]byte{"unrelated": []byte("value")}
	for _, req := range reqs {
		kvs[string(types.RequestCommitmentKey(req.Commitment()))] = []byte("fee")
	}
	tr := newTree(t, kvs)

	proofs := make([][]*ics23.CommitmentProof, len(reqs))
	for i, req := range reqs {
		proofs[i] = []*ics23.CommitmentProof{tr.exist(t, types.RequestCommitmentKey(req.Commitment()))}
	}

	err := client.VerifyMembership(ctx, nil, types.RequestResponse{Requests: reqs}, tr.commitment(), encode(t, proofs...))
	require.NoError(t, err)

	// wrong root
	other := tr.commitment()
	other.StateRoot = common.HexToHash("0x01")
	err = client.VerifyMembership(ctx, nil, types.RequestResponse{Requests: reqs}, other, encode(t, proofs...))
	require.ErrorIs(t, err, types.ErrInvalidProof)

	// proofs out of order
	err = client.VerifyMembership(ctx, nil, types.RequestResponse{Requests: reqs}, tr.commitment(), encode(t, proofs[1], proofs[0], proofs[2]))
	require.ErrorIs(t, err, types.ErrInvalidProof)

	// too few proofs
	err = client.VerifyMembership(ctx, nil, types.RequestResponse{Requests: reqs}, tr.commitment(), encode(t, proofs[0]))
	require.ErrorIs(t, err, types.ErrInvalidProof)

	// an absent request
	absent := &types.PostRequest{Source: tmID, Dest: evmID, Nonce: 4, From: []byte("a"), To: []byte("b")}
	nonexist := []*ics23.CommitmentProof{tr.nonexist(t, types.RequestCommitmentKey(absent.Commitment()))}
	err = client.VerifyMembership(ctx, nil, types.RequestResponse{Requests: []types.Request{absent}}, tr.commitment(), encode(t, nonexist))
	require.ErrorIs(t, err, types.ErrMembershipVerification)

	// garbage
	err = client.VerifyMembership(ctx, nil, types.RequestResponse{Requests: reqs}, tr.commitment(), types.Proof{Proof: []byte("garbage")})
	require.ErrorIs(t, err, types.ErrInvalidProof)
}

func TestVerifyStateProof(t *testing.T) {
	var (
		ctx    = context.Background()
		client = NewClient(ics23.TendermintSpec)
	)

	tr := newTree(t, map[string][]byte{
		"b": []byte("bee"),
		"d": []byte("dee"),
		"f": []byte("eff"),
		"h": []byte("aitch"),
	})

	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("h"), []byte("z")}
	proof := encode(t,
		[]*ics23.CommitmentProof{tr.nonexist(t, keys[0])},
		[]*ics23.CommitmentProof{tr.exist(t, keys[1])},
		[]*ics23.CommitmentProof{tr.nonexist(t, keys[2])},
		[]*ics23.CommitmentProof{tr.exist(t, keys[3])},
		[]*ics23.CommitmentProof{tr.nonexist(t, keys[4])},
	)

	values, err := client.VerifyStateProof(ctx, nil, keys, tr.commitment(), proof)
	require.NoError(t, err)
	require.Equal(t, map[string][]byte{
		"a": nil,
		"b": []byte("bee"),
		"c": nil,
		"h": []byte("aitch"),
		"z": nil,
	}, values)

	// a membership proof for another key
	_, err = client.VerifyStateProof(ctx, nil, [][]byte{[]byte("d")}, tr.commitment(),
		encode(t, []*ics23.CommitmentProof{tr.exist(t, []byte("f"))}))
	require.ErrorIs(t, err, types.ErrInvalidProof)
}

func TestChainedProof(t *testing.T) {
	var (
		ctx    = context.Background()
		client = &Client{
			specs: []*ics23.ProofSpec{ics23.TendermintSpec, ics23.TendermintSpec},
			path:  [][]byte{[]byte(types.StoreKey)},
		}
		req = testRequests()[0]
		key = types.RequestCommitmentKey(req.Commitment())
	)

	substore := newTree(t, map[string][]byte{string(key): []byte("fee"), "other": []byte("x")})
	multistore := newTree(t, map[string][]byte{
		types.StoreKey: substore.root,
		"bank":         []byte("bank root"),
		"staking":      []byte("staking root"),
	})

	chain := []*ics23.CommitmentProof{substore.exist(t, key), multistore.exist(t, []byte(types.StoreKey))}
	err := client.VerifyMembership(ctx, nil, types.RequestResponse{Requests: []types.Request{req}}, multistore.commitment(), encode(t, chain))
	require.NoError(t, err)

	// substore proof committed under the wrong store name
	chain = []*ics23.CommitmentProof{substore.exist(t, key), multistore.exist(t, []byte("bank"))}
	err = client.VerifyMembership(ctx, nil, types.RequestResponse{Requests: []types.Request{req}}, multistore.commitment(), encode(t, chain))
	require.ErrorIs(t, err, types.ErrInvalidProof)

	// missing the multistore level
	err = client.VerifyMembership(ctx, nil, types.RequestResponse{Requests: []types.Request{req}}, multistore.commitment(),
		encode(t, []*ics23.CommitmentProof{substore.exist(t, key)}))
	require.ErrorIs(t, err, types.ErrInvalidProof)
}

func TestReceiptsStateTrieKey(t *testing.T) {
	reqs := testRequests()
	post := reqs[0].(*types.PostRequest)
	resp := &types.PostResponse{Post: *post, Response: []byte("ok")}

	keys := NewClient(ics23.TendermintSpec).ReceiptsStateTrieKey(types.RequestResponse{
		Requests:  reqs[:1],
		Responses: []types.Response{resp},
	})
	require.Equal(t, [][]byte{
		types.RequestReceiptKey(post.Commitment()),
		types.ResponseReceiptKey(post.Commitment()),
	}, keys)
}
