package cosmos

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	errorsmod "cosmossdk.io/errors"
	"github.com/celestiaorg/ismp/pkg/ismp/client"
	"github.com/celestiaorg/ismp/x/ismp/types"
	abci "github.com/cometbft/cometbft/abci/types"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

var subscriberSeq atomic.Uint64

func stateMachineUpdatedQuery(counterparty types.StateMachineID) string {
	return fmt.Sprintf("%s.%s='%s'", types.EventTypeStateMachineUpdated, types.AttributeKeyStateMachineID, counterparty)
}

func requestHandledQuery(commitment common.Hash) string {
	return fmt.Sprintf("%s.%s='%s'", types.EventTypePostRequestHandled, types.AttributeKeyCommitment, commitment.Hex())
}

func vetoQuery(counterparty types.StateMachineID) string {
	return fmt.Sprintf("%s.%s='%s'", types.EventTypeStateMachineVetoed, types.AttributeKeyStateMachineID, counterparty)
}

func attributes(ev abci.Event) map[string]string {
	attrs := make(map[string]string, len(ev.Attributes))
	for _, attr := range ev.Attributes {
		attrs[attr.Key] = attr.Value
	}
	return attrs
}

func parseStateMachineUpdated(ev abci.Event, blockHeight int64) (client.StateMachineUpdated, bool) {
	if ev.Type != types.EventTypeStateMachineUpdated {
		return client.StateMachineUpdated{}, false
	}
	attrs := attributes(ev)
	id, err := types.ParseStateMachineID(attrs[types.AttributeKeyStateMachineID])
	if err != nil {
		return client.StateMachineUpdated{}, false
	}
	height, err := strconv.ParseUint(attrs[types.AttributeKeyLatestHeight], 10, 64)
	if err != nil {
		return client.StateMachineUpdated{}, false
	}
	return client.StateMachineUpdated{StateMachineID: id, LatestHeight: height, BlockHeight: uint64(blockHeight)}, true
}

func parseRequestHandled(ev abci.Event, blockHeight int64) (client.RequestHandled, bool) {
	if ev.Type != types.EventTypePostRequestHandled {
		return client.RequestHandled{}, false
	}
	attrs := attributes(ev)
	commitment, err := types.DecodeHex(attrs[types.AttributeKeyCommitment])
	if err != nil || len(commitment) != common.HashLength {
		return client.RequestHandled{}, false
	}
	relayer, err := types.DecodeHex(attrs[types.AttributeKeyRelayer])
	if err != nil {
		return client.RequestHandled{}, false
	}
	return client.RequestHandled{Commitment: common.BytesToHash(commitment), Relayer: relayer, BlockHeight: uint64(blockHeight)}, true
}

func parseStateMachineVetoed(ev abci.Event, blockHeight int64) (client.StateMachineVetoed, bool) {
	if ev.Type != types.EventTypeStateMachineVetoed {
		return client.StateMachineVetoed{}, false
	}
	attrs := attributes(ev)
	id, err := types.ParseStateMachineID(attrs[types.AttributeKeyStateMachineID])
	if err != nil {
		return client.StateMachineVetoed{}, false
	}
	height, err := strconv.ParseUint(attrs[types.AttributeKeyHeight], 10, 64)
	if err != nil {
		return client.StateMachineVetoed{}, false
	}
	return client.StateMachineVetoed{Height: types.StateMachineHeight{ID: id, Height: height}, BlockHeight: uint64(blockHeight)}, true
}

// search walks the transactions matching query in ascending height order until match accepts an event.
func search[T any](ctx context.Context, c *Chain, query string, parse func(abci.Event, int64) (T, bool), match func(T) bool) (*T, error) {
	perPage := c.pageSize
	for page := 1; ; page++ {
		res, err := c.rpc.TxSearch(ctx, query, false, &page, &perPage, "asc")
		if err != nil {
			return nil, err
		}
		for _, tx := range res.Txs {
			if tx.TxResult.Code != 0 {
				continue
			}
			for _, ev := range tx.TxResult.Events {
				if v, ok := parse(ev, tx.Height); ok && match(v) {
					return &v, nil
				}
			}
		}
		if len(res.Txs) == 0 || page*perPage >= res.TotalCount {
			return nil, nil
		}
	}
}

// QueryStateMachineUpdated searches the transaction index for the first update of counterparty
// to at least height.
func (c *Chain) QueryStateMachineUpdated(ctx context.Context, counterparty types.StateMachineID, height uint64) (*client.StateMachineUpdated, error) {
	query := fmt.Sprintf("%s AND %s.%s>=%d", stateMachineUpdatedQuery(counterparty), types.EventTypeStateMachineUpdated, types.AttributeKeyLatestHeight, height)
	return search(ctx, c, query, parseStateMachineUpdated, func(u client.StateMachineUpdated) bool {
		return u.StateMachineID == counterparty && u.LatestHeight >= height
	})
}

// QueryRequestHandled searches the transaction index for the execution of a post request.
func (c *Chain) QueryRequestHandled(ctx context.Context, commitment common.Hash, fromHeight uint64) (*client.RequestHandled, error) {
	query := fmt.Sprintf("%s AND tx.height>=%d", requestHandledQuery(commitment), fromHeight)
	return search(ctx, c, query, parseRequestHandled, func(h client.RequestHandled) bool {
		return h.Commitment == commitment && h.BlockHeight >= fromHeight
	})
}

func (c *Chain) SubscribeStateMachineUpdates(ctx context.Context, counterparty types.StateMachineID, ch chan<- client.StateMachineUpdated) (event.Subscription, error) {
	return subscribe(ctx, c, stateMachineUpdatedQuery(counterparty), ch, parseStateMachineUpdated, func(u client.StateMachineUpdated) bool {
		return u.StateMachineID == counterparty
	})
}

func (c *Chain) SubscribeRequestHandled(ctx context.Context, commitment common.Hash, ch chan<- client.RequestHandled) (event.Subscription, error) {
	return subscribe(ctx, c, requestHandledQuery(commitment), ch, parseRequestHandled, func(h client.RequestHandled) bool {
		return h.Commitment == commitment
	})
}

func (c *Chain) SubscribeStateMachineVetoes(ctx context.Context, counterparty types.StateMachineID, ch chan<- client.StateMachineVetoed) (event.Subscription, error) {
	return subscribe(ctx, c, vetoQuery(counterparty), ch, parseStateMachineVetoed, func(v client.StateMachineVetoed) bool {
		return v.Height.ID == counterparty
	})
}

// subscribe forwards the events of transactions matching query to ch until unsubscribed. The
// subscription fails with client.ErrSubscriptionClosed when the node drops it.
func subscribe[T any](ctx context.Context, c *Chain, query string, ch chan<- T, parse func(abci.Event, int64) (T, bool), match func(T) bool) (event.Subscription, error) {
	query = fmt.Sprintf("tm.event='Tx' AND %s", query)
	subscriber := fmt.Sprintf("ismp-%d", subscriberSeq.Add(1))

	results, err := c.rpc.Subscribe(ctx, subscriber, query)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("subscribed", "subscriber", subscriber, "query", query)

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer func() {
			if err := c.rpc.Unsubscribe(context.Background(), subscriber, query); err != nil {
				c.logger.Debug("unsubscribing", "subscriber", subscriber, "err", err)
			}
		}()

		for {
			select {
			case <-quit:
				return nil
			case res, ok := <-results:
				if !ok {
					return errorsmod.Wrap(client.ErrSubscriptionClosed, query)
				}
				for _, v := range parseResult(res, parse) {
					if !match(v) {
						continue
					}
					select {
					case ch <- v:
					case <-quit:
						return nil
					}
				}
			}
		}
	}), nil
}

func parseResult[T any](res coretypes.ResultEvent, parse func(abci.Event, int64) (T, bool)) []T {
	data, ok := res.Data.(cmttypes.EventDataTx)
	if !ok || data.Result.Code != 0 {
		return nil
	}

	var out []T
	for _, ev := range data.Result.Events {
		if v, ok := parse(ev, data.Height); ok {
			out = append(out, v)
		}
	}
	return out
}
