// Package cosmos implements the client view of a cometbft chain running the ismp module.
package cosmos

import (
	"context"
	"fmt"
	"time"

	"cosmossdk.io/collections"
	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"github.com/celestiaorg/ismp/pkg/ismp/client"
	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/cometbft/cometbft/libs/bytes"
	rpcclient "github.com/cometbft/cometbft/rpc/client"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	"github.com/ethereum/go-ethereum/common"
)

// RPCClient is the subset of the cometbft RPC the chain relies on. It is implemented by the
// websocket enabled *http.HTTP client, which must be started before subscribing.
type RPCClient interface {
	ABCIQueryWithOptions(ctx context.Context, path string, data bytes.HexBytes, opts rpcclient.ABCIQueryOptions) (*coretypes.ResultABCIQuery, error)
	Status(ctx context.Context) (*coretypes.ResultStatus, error)
	TxSearch(ctx context.Context, query string, prove bool, page, perPage *int, orderBy string) (*coretypes.ResultTxSearch, error)
	Subscribe(ctx context.Context, subscriber, query string, outCapacity ...int) (<-chan coretypes.ResultEvent, error)
	Unsubscribe(ctx context.Context, subscriber, query string) error
}

// Broadcaster signs and broadcasts ismp messages, returning the height they were committed at.
type Broadcaster interface {
	Broadcast(ctx context.Context, msgs ...types.Message) (uint64, error)
}

var _ client.Chain = (*Chain)(nil)

// Chain queries the ismp store and events of a cometbft chain.
type Chain struct {
	id          types.StateMachineID
	rpc         RPCClient
	broadcaster Broadcaster
	logger      log.Logger
	storePath   string
	pageSize    int
}

type Option func(*Chain)

// WithBroadcaster enables Submit.
func WithBroadcaster(b Broadcaster) Option {
	return func(c *Chain) { c.broadcaster = b }
}

func WithLogger(logger log.Logger) Option {
	return func(c *Chain) { c.logger = logger }
}

// WithPageSize sets the number of transactions fetched per event search page.
func WithPageSize(n int) Option {
	return func(c *Chain) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// NewChain returns a read only chain known to its counterparties as id, unless a broadcaster is given.
func NewChain(id types.StateMachineID, rpc RPCClient, opts ...Option) *Chain {
	c := &Chain{
		id:        id,
		rpc:       rpc,
		logger:    log.NewNopLogger(),
		storePath: fmt.Sprintf("store/%s/key", types.StoreKey),
		pageSize:  50,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("module", "ismp_cosmos", "chain", id.String())
	return c
}

func (c *Chain) StateMachineID() types.StateMachineID { return c.id }

// QueryTimestamp returns the time of the latest block.
func (c *Chain) QueryTimestamp(ctx context.Context) (time.Time, error) {
	status, err := c.rpc.Status(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return status.SyncInfo.LatestBlockTime, nil
}

func (c *Chain) QueryLatestHeight(ctx context.Context) (uint64, error) {
	status, err := c.rpc.Status(ctx)
	if err != nil {
		return 0, err
	}
	return uint64(status.SyncInfo.LatestBlockHeight), nil
}

func (c *Chain) QueryRequestReceipt(ctx context.Context, commitment common.Hash) ([]byte, error) {
	receipt, found, err := queryValue[types.RequestReceipt](ctx, c, types.RequestReceiptKey(commitment), types.RLPValue[types.RequestReceipt]("request_receipt"))
	if err != nil || !found {
		return nil, err
	}
	return relayerOf(receipt.Relayer), nil
}

func (c *Chain) QueryResponseReceipt(ctx context.Context, requestCommitment common.Hash) ([]byte, error) {
	receipt, found, err := queryValue[types.ResponseReceipt](ctx, c, types.ResponseReceiptKey(requestCommitment), types.RLPValue[types.ResponseReceipt]("response_receipt"))
	if err != nil || !found {
		return nil, err
	}
	return relayerOf(receipt.Relayer), nil
}

func (c *Chain) QueryLatestStateMachineHeight(ctx context.Context, id types.StateMachineID) (uint64, error) {
	height, _, err := queryValue[uint64](ctx, c, types.LatestStateMachineHeightKey(id), collections.Uint64Value)
	return height, err
}

func (c *Chain) QueryStateMachineCommitment(ctx context.Context, height types.StateMachineHeight) (types.StateCommitment, error) {
	commitment, found, err := queryValue[types.StateCommitment](ctx, c, types.StateCommitmentKey(height), types.RLPValue[types.StateCommitment]("state_commitment"))
	if err != nil {
		return types.StateCommitment{}, err
	}
	if !found {
		return types.StateCommitment{}, &types.StateCommitmentNotFoundError{Height: height}
	}
	return commitment, nil
}

func (c *Chain) QueryStateMachineUpdateTime(ctx context.Context, height types.StateMachineHeight) (time.Time, error) {
	nanos, found, err := queryValue[uint64](ctx, c, types.StateMachineUpdateTimeKey(height), collections.Uint64Value)
	if err != nil {
		return time.Time{}, err
	}
	if !found {
		return time.Time{}, &types.StateCommitmentNotFoundError{Height: height}
	}
	return time.Unix(0, int64(nanos)).UTC(), nil
}

// QueryChallengePeriod returns zero for state machines without a challenge period.
func (c *Chain) QueryChallengePeriod(ctx context.Context, id types.StateMachineID) (time.Duration, error) {
	period, _, err := queryValue[uint64](ctx, c, types.ChallengePeriodKey(id), collections.Uint64Value)
	return time.Duration(period), err
}

// Submit broadcasts msgs through the configured broadcaster.
func (c *Chain) Submit(ctx context.Context, msgs ...types.Message) (uint64, error) {
	if c.broadcaster == nil {
		return 0, errorsmod.Wrap(ErrReadOnly, c.id.String())
	}
	for _, msg := range msgs {
		if err := msg.ValidateBasic(); err != nil {
			return 0, err
		}
	}

	height, err := c.broadcaster.Broadcast(ctx, msgs...)
	if err != nil {
		return 0, err
	}
	c.logger.Info("submitted messages", "count", len(msgs), "height", height)
	return height, nil
}

func (c *Chain) Encode(msg types.Message) ([]byte, error) {
	return types.EncodeMessage(msg)
}

// query reads the raw value of key from the ismp store, at height when it is non-zero.
func (c *Chain) query(ctx context.Context, key []byte, height int64, prove bool) (*coretypes.ResultABCIQuery, error) {
	res, err := c.rpc.ABCIQueryWithOptions(ctx, c.storePath, key, rpcclient.ABCIQueryOptions{Height: height, Prove: prove})
	if err != nil {
		return nil, err
	}
	if res.Response.Code != 0 {
		return nil, errorsmod.Wrapf(ErrQuery, "key %s: code %d: %s", types.EncodeHex(key), res.Response.Code, res.Response.Log)
	}
	return res, nil
}

// valueDecoder is satisfied by collections value codecs.
type valueDecoder[T any] interface {
	Decode(bz []byte) (T, error)
}

// queryValue reads and decodes the latest value of key, reporting whether it is set.
func queryValue[T any](ctx context.Context, c *Chain, key []byte, codec valueDecoder[T]) (T, bool, error) {
	var zero T
	res, err := c.query(ctx, key, 0, false)
	if err != nil {
		return zero, false, err
	}
	if len(res.Response.Value) == 0 {
		return zero, false, nil
	}

	value, err := codec.Decode(res.Response.Value)
	if err != nil {
		return zero, false, errorsmod.Wrapf(ErrMalformedData, "key %s: %v", types.EncodeHex(key), err)
	}
	return value, true, nil
}

// relayerOf distinguishes an empty relayer from a missing receipt.
func relayerOf(relayer []byte) []byte {
	if relayer == nil {
		return []byte{}
	}
	return relayer
}
