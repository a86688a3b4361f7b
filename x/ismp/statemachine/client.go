// Package statemachine verifies ics23 state proofs of remote state machines.
package statemachine

import (
	"bytes"
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/celestiaorg/ismp/x/ismp/types"
	ics23 "github.com/cosmos/ics23/go"
	"github.com/ethereum/go-ethereum/rlp"
)

var _ types.StateMachineClient = (*Client)(nil)

// Client verifies proofs against the state root of a state commitment. A proof may be chained over
// several trees, e.g. an iavl substore committed under its store name in a multistore.
type Client struct {
	// specs of each tree, innermost first
	specs []*ics23.ProofSpec
	// path of keys committing each inner root into the next tree
	path [][]byte
}

// NewClient returns a client verifying single level proofs with spec.
func NewClient(spec *ics23.ProofSpec) *Client {
	return &Client{specs: []*ics23.ProofSpec{spec}}
}

// NewCosmosClient returns a client verifying proofs of keys held by the store named storeKey of a
// cosmos-sdk multistore.
func NewCosmosClient(storeKey string) *Client {
	return &Client{
		specs: []*ics23.ProofSpec{ics23.IavlSpec, ics23.TendermintSpec},
		path:  [][]byte{[]byte(storeKey)},
	}
}

// VerifyMembership implements types.StateMachineClient. Every request is proven by its request
// commitment key and every response by its response commitment key.
func (c *Client) VerifyMembership(_ context.Context, _ types.IsmpHost, items types.RequestResponse, root types.StateCommitment, proof types.Proof) error {
	keys := make([][]byte, 0, len(items.Requests)+len(items.Responses))
	for _, req := range items.Requests {
		keys = append(keys, types.RequestCommitmentKey(req.Commitment()))
	}
	for _, resp := range items.Responses {
		keys = append(keys, types.ResponseCommitmentKey(resp.Commitment()))
	}

	proofs, err := DecodeProof(proof.Proof)
	if err != nil {
		return err
	}
	if len(proofs) != len(keys) {
		return errorsmod.Wrapf(types.ErrInvalidProof, "expected %d key proofs, got %d", len(keys), len(proofs))
	}

	for i, key := range keys {
		_, exists, err := c.verifyKey(root.StateRoot.Bytes(), key, proofs[i])
		if err != nil {
			return err
		}
		if !exists {
			return errorsmod.Wrapf(types.ErrMembershipVerification, "key %s is absent at %s", types.EncodeHex(key), proof.Height)
		}
	}
	return nil
}

// ReceiptsStateTrieKey implements types.StateMachineClient.
func (c *Client) ReceiptsStateTrieKey(items types.RequestResponse) [][]byte {
	keys := make([][]byte, 0, len(items.Requests)+len(items.Responses))
	for _, req := range items.Requests {
		keys = append(keys, types.RequestReceiptKey(req.Commitment()))
	}
	for _, resp := range items.Responses {
		keys = append(keys, types.ResponseReceiptKey(resp.Request().Commitment()))
	}
	return keys
}

// VerifyStateProof implements types.StateMachineClient.
func (c *Client) VerifyStateProof(_ context.Context, _ types.IsmpHost, keys [][]byte, root types.StateCommitment, proof types.Proof) (map[string][]byte, error) {
	proofs, err := DecodeProof(proof.Proof)
	if err != nil {
		return nil, err
	}
	if len(proofs) != len(keys) {
		return nil, errorsmod.Wrapf(types.ErrInvalidProof, "expected %d key proofs, got %d", len(keys), len(proofs))
	}

	values := make(map[string][]byte, len(keys))
	for i, key := range keys {
		value, exists, err := c.verifyKey(root.StateRoot.Bytes(), key, proofs[i])
		if err != nil {
			return nil, err
		}
		if !exists {
			value = nil
		}
		values[string(key)] = value
	}
	return values, nil
}

// verifyKey verifies a chained proof of key and reports its value if present.
func (c *Client) verifyKey(root, key []byte, chain []*ics23.CommitmentProof) ([]byte, bool, error) {
	if len(chain) != len(c.specs) {
		return nil, false, errorsmod.Wrapf(types.ErrInvalidProof, "expected %d chained proofs, got %d", len(c.specs), len(chain))
	}

	var (
		value  []byte
		exists bool
	)

	subroot, err := calculateRoot(chain[0])
	if err != nil {
		return nil, false, err
	}

	switch {
	case chain[0].GetExist() != nil:
		ep := chain[0].GetExist()
		if !bytes.Equal(ep.Key, key) {
			return nil, false, errorsmod.Wrapf(types.ErrInvalidProof, "proof is for key %s", types.EncodeHex(ep.Key))
		}
		if !ics23.VerifyMembership(c.specs[0], subroot, chain[0], key, ep.Value) {
			return nil, false, errorsmod.Wrapf(types.ErrInvalidProof, "membership of %s", types.EncodeHex(key))
		}
		value, exists = ep.Value, true
	case chain[0].GetNonexist() != nil:
		if !ics23.VerifyNonMembership(c.specs[0], subroot, chain[0], key) {
			return nil, false, errorsmod.Wrapf(types.ErrInvalidProof, "non-membership of %s", types.EncodeHex(key))
		}
	default:
		return nil, false, errorsmod.Wrap(types.ErrInvalidProof, "unsupported commitment proof")
	}

	for i := 1; i < len(chain); i++ {
		ep := chain[i].GetExist()
		if ep == nil {
			return nil, false, errorsmod.Wrapf(types.ErrInvalidProof, "chained proof %d must be an existence proof", i)
		}
		next, err := ep.Calculate()
		if err != nil {
			return nil, false, errorsmod.Wrap(types.ErrInvalidProof, err.Error())
		}
		if !ics23.VerifyMembership(c.specs[i], next, chain[i], c.path[i-1], subroot) {
			return nil, false, errorsmod.Wrapf(types.ErrInvalidProof, "chained proof %d does not commit to %s", i, c.path[i-1])
		}
		subroot = next
	}

	if !bytes.Equal(subroot, root) {
		return nil, false, errorsmod.Wrapf(types.ErrInvalidProof, "proof root %X does not match state root %X", subroot, root)
	}
	return value, exists, nil
}

func calculateRoot(proof *ics23.CommitmentProof) ([]byte, error) {
	var ep *ics23.ExistenceProof
	switch {
	case proof.GetExist() != nil:
		ep = proof.GetExist()
	case proof.GetNonexist() != nil && proof.GetNonexist().Left != nil:
		ep = proof.GetNonexist().Left
	case proof.GetNonexist() != nil && proof.GetNonexist().Right != nil:
		ep = proof.GetNonexist().Right
	default:
		return nil, errorsmod.Wrap(types.ErrInvalidProof, "proof carries no existence proof")
	}

	root, err := ep.Calculate()
	if err != nil {
		return nil, errorsmod.Wrap(types.ErrInvalidProof, err.Error())
	}
	return root, nil
}

// EncodeProof encodes chained commitment proofs, one chain per proven key.
func EncodeProof(proofs [][]*ics23.CommitmentProof) ([]byte, error) {
	raw := make([][][]byte, len(proofs))
	for i, chain := range proofs {
		raw[i] = make([][]byte, len(chain))
		for j, p := range chain {
			bz, err := p.Marshal()
			if err != nil {
				return nil, errorsmod.Wrap(types.ErrConversion, err.Error())
			}
			raw[i][j] = bz
		}
	}
	return rlp.EncodeToBytes(raw)
}

// DecodeProof decodes a proof produced by EncodeProof.
func DecodeProof(bz []byte) ([][]*ics23.CommitmentProof, error) {
	var raw [][][]byte
	if err := rlp.DecodeBytes(bz, &raw); err != nil {
		return nil, errorsmod.Wrapf(types.ErrInvalidProof, "decoding proof: %v", err)
	}

	proofs := make([][]*ics23.CommitmentProof, len(raw))
	for i, chain := range raw {
		proofs[i] = make([]*ics23.CommitmentProof, len(chain))
		for j, bz := range chain {
			p := new(ics23.CommitmentProof)
			if err := p.Unmarshal(bz); err != nil {
				return nil, errorsmod.Wrapf(types.ErrInvalidProof, "decoding commitment proof: %v", err)
			}
			proofs[i][j] = p
		}
	}
	return proofs, nil
}
