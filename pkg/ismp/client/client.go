package client

import (
	"context"
	"time"

	"cosmossdk.io/log"
	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-clock"
)

// DefaultPollInterval is how often a pending request is re-checked for a timeout.
const DefaultPollInterval = 30 * time.Second

// Client follows requests from their source chain through the hub to their destination.
type Client struct {
	hub     Chain
	chains  map[types.StateMachineID]Chain
	indexer Indexer
	bus     *Bus

	clock        clock.Clock
	logger       log.Logger
	metrics      *Metrics
	pollInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithIndexer consults indexer before querying the chains.
func WithIndexer(indexer Indexer) Option {
	return func(c *Client) { c.indexer = indexer }
}

// WithClock sets the clock used for local timers.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

func WithLogger(logger log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithMetrics(metrics *Metrics) Option {
	return func(c *Client) { c.metrics = metrics }
}

// WithPollInterval sets how often a pending request is re-checked for a timeout.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// New returns a Client relaying through hub between chains.
func New(hub Chain, chains []Chain, opts ...Option) *Client {
	c := &Client{
		hub:          hub,
		chains:       make(map[types.StateMachineID]Chain, len(chains)+1),
		clock:        clock.New(),
		logger:       log.NewNopLogger(),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = noopMetrics()
	}
	c.logger = c.logger.With("module", "ismp_client")
	c.bus = NewBus(c.logger, c.metrics)

	c.chains[hub.StateMachineID()] = hub
	for _, chain := range chains {
		c.chains[chain.StateMachineID()] = chain
	}
	return c
}

// Hub returns the hub chain.
func (c *Client) Hub() Chain {
	return c.hub
}

// Chain returns the chain known as id.
func (c *Client) Chain(id types.StateMachineID) (Chain, error) {
	chain, ok := c.chains[id]
	if !ok {
		return nil, ErrUnknownChain.Wrap(id.String())
	}
	return chain, nil
}

// Bus returns the bus sharing state machine update subscriptions between streams.
func (c *Client) Bus() *Bus {
	return c.bus
}

// waitForFinalized waits until observer has finalized counterparty at a height of at least minHeight
// that accept approves of. Subscribing precedes the initial query so no update is missed.
func (c *Client) waitForFinalized(
	ctx context.Context,
	observer Chain,
	counterparty types.StateMachineID,
	minHeight uint64,
	accept func(context.Context, StateMachineUpdated) (bool, error),
) (StateMachineUpdated, error) {
	updates := make(chan StateMachineUpdated, 1)
	sub, err := c.bus.Subscribe(observer, counterparty, updates)
	if err != nil {
		return StateMachineUpdated{}, err
	}
	defer sub.Unsubscribe()

	latest, err := observer.QueryLatestStateMachineHeight(ctx, counterparty)
	if err != nil {
		return StateMachineUpdated{}, err
	}
	if latest >= minHeight {
		update, err := c.locateUpdate(ctx, observer, counterparty, latest)
		if err != nil {
			return StateMachineUpdated{}, err
		}
		ok, err := accept(ctx, update)
		if err != nil || ok {
			return update, err
		}
	}

	for {
		select {
		case update := <-updates:
			if update.LatestHeight < minHeight {
				continue
			}
			ok, err := accept(ctx, update)
			if err != nil || ok {
				return update, err
			}
		case err := <-sub.Err():
			if err == nil {
				err = ErrSubscriptionClosed
			}
			return StateMachineUpdated{}, err
		case <-ctx.Done():
			return StateMachineUpdated{}, ctx.Err()
		}
	}
}

// locateUpdate resolves the block at which observer finalized counterparty at height, falling back to
// the latest block of observer when the event cannot be located.
func (c *Client) locateUpdate(ctx context.Context, observer Chain, counterparty types.StateMachineID, height uint64) (StateMachineUpdated, error) {
	event, err := observer.QueryStateMachineUpdated(ctx, counterparty, height)
	if err != nil {
		return StateMachineUpdated{}, err
	}
	if event != nil {
		return StateMachineUpdated{StateMachineID: counterparty, LatestHeight: height, BlockHeight: event.BlockHeight}, nil
	}

	block, err := observer.QueryLatestHeight(ctx)
	if err != nil {
		return StateMachineUpdated{}, err
	}
	c.logger.Debug("state machine update event not found", "chain", observer.StateMachineID(), "counterparty", counterparty, "height", height)
	return StateMachineUpdated{StateMachineID: counterparty, LatestHeight: height, BlockHeight: block}, nil
}

// locateHandled resolves the block at which chain handled commitment, falling back to fromHeight
// when the event cannot be located.
func locateHandled(ctx context.Context, chain Chain, commitment common.Hash, fromHeight uint64) (uint64, error) {
	event, err := chain.QueryRequestHandled(ctx, commitment, fromHeight)
	if err != nil {
		return 0, err
	}
	if event == nil {
		return fromHeight, nil
	}
	return event.BlockHeight, nil
}

// hubStateHeight is the lowest hub state machine height whose state includes the effects of hub block.
// A hub state commitment at height h carries the app hash of block h, which commits to the state after
// block h-1.
func hubStateHeight(block uint64) uint64 {
	return block + 1
}

// acceptAll approves every update.
func acceptAll(context.Context, StateMachineUpdated) (bool, error) {
	return true, nil
}

func unixSeconds(t time.Time) uint64 {
	if t.Before(time.Unix(0, 0)) {
		return 0
	}
	return uint64(t.Unix())
}
