package testsuite

import (
	"bytes"
	"context"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// MockConsensusClientID identifies MockConsensusClient.
var MockConsensusClientID = types.ConsensusClientID{'M', 'O', 'C', 'K'}

// MockProof is the only proof accepted by MockStateMachineClient.
var MockProof = []byte("mock proof")

var (
	_ types.ConsensusClient    = (*MockConsensusClient)(nil)
	_ types.StateMachineClient = (*MockStateMachineClient)(nil)
	_ types.IsmpModule         = (*MockModule)(nil)
)

// MockConsensusUpdate is the consensus proof understood by MockConsensusClient: it finalizes a single
// state commitment.
type MockConsensusUpdate struct {
	ID         types.StateMachineID
	Height     uint64
	Commitment types.StateCommitment
}

// EncodeMockConsensusUpdate encodes a consensus proof for MockConsensusClient.
func EncodeMockConsensusUpdate(update MockConsensusUpdate) []byte {
	bz, err := rlp.EncodeToBytes(update)
	if err != nil {
		panic(err)
	}
	return bz
}

// MockConsensusClient trusts every well formed consensus update and treats any two distinct proofs as
// a valid fraud proof.
type MockConsensusClient struct{}

// NewMockConsensusClient returns a MockConsensusClient.
func NewMockConsensusClient() *MockConsensusClient {
	return &MockConsensusClient{}
}

func (c *MockConsensusClient) ID() types.ConsensusClientID { return MockConsensusClientID }

func (c *MockConsensusClient) VerifyConsensus(_ context.Context, _ types.IsmpHost, _ types.ConsensusStateID, trusted, proof []byte) ([]byte, types.StateMachineUpdates, error) {
	var update MockConsensusUpdate
	if err := rlp.DecodeBytes(proof, &update); err != nil {
		return nil, nil, errorsmod.Wrap(types.ErrInvalidConsensusProof, err.Error())
	}

	return trusted, types.StateMachineUpdates{
		update.ID: {{Commitment: update.Commitment, Height: update.Height}},
	}, nil
}

func (c *MockConsensusClient) VerifyFraudProof(_ context.Context, _ types.IsmpHost, _, proof1, proof2 []byte) error {
	if bytes.Equal(proof1, proof2) {
		return errorsmod.Wrap(types.ErrInvalidFraudProof, "proofs are identical")
	}
	return nil
}

func (c *MockConsensusClient) StateMachine(types.StateMachineID) (types.StateMachineClient, error) {
	return &MockStateMachineClient{}, nil
}

// MockStateMachineClient accepts MockProof for any membership claim and reports every key absent.
type MockStateMachineClient struct{}

func (c *MockStateMachineClient) VerifyMembership(_ context.Context, _ types.IsmpHost, _ types.RequestResponse, _ types.StateCommitment, proof types.Proof) error {
	if !bytes.Equal(proof.Proof, MockProof) {
		return errorsmod.Wrap(types.ErrInvalidProof, "not a mock proof")
	}
	return nil
}

func (c *MockStateMachineClient) ReceiptsStateTrieKey(items types.RequestResponse) [][]byte {
	keys := make([][]byte, 0, len(items.Requests)+len(items.Responses))
	for _, req := range items.Requests {
		keys = append(keys, types.RequestReceiptKey(req.Commitment()))
	}
	for _, resp := range items.Responses {
		keys = append(keys, types.ResponseReceiptKey(resp.Request().Commitment()))
	}
	return keys
}

func (c *MockStateMachineClient) VerifyStateProof(_ context.Context, _ types.IsmpHost, keys [][]byte, _ types.StateCommitment, proof types.Proof) (map[string][]byte, error) {
	if !bytes.Equal(proof.Proof, MockProof) {
		return nil, errorsmod.Wrap(types.ErrInvalidProof, "not a mock proof")
	}
	values := make(map[string][]byte, len(keys))
	for _, key := range keys {
		values[string(key)] = nil
	}
	return values, nil
}

// MockModule records the datagrams routed to it.
type MockModule struct {
	mu        sync.Mutex
	Accepted  []types.PostRequest
	Responses []types.Response
	Timeouts  []types.Timeout

	// Err is returned from every callback when set.
	Err error
}

// NewMockModule returns an empty MockModule.
func NewMockModule() *MockModule {
	return &MockModule{}
}

func (m *MockModule) OnAccept(_ context.Context, req types.PostRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Accepted = append(m.Accepted, req)
	return nil
}

func (m *MockModule) OnResponse(_ context.Context, resp types.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Responses = append(m.Responses, resp)
	return nil
}

func (m *MockModule) OnTimeout(_ context.Context, timeout types.Timeout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Timeouts = append(m.Timeouts, timeout)
	return nil
}
