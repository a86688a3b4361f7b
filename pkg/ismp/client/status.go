package client

import (
	"context"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/ethereum/go-ethereum/common"
)

// MessageStatus is the progress of a request from its source to its destination.
type MessageStatus uint8

const (
	StatusPending MessageStatus = iota
	// StatusSourceFinalized means the hub finalized the source at or above the height the request was
	// dispatched at.
	StatusSourceFinalized
	// StatusHyperbridgeDelivered means the hub executed the request.
	StatusHyperbridgeDelivered
	// StatusHyperbridgeFinalized means the destination finalized a hub state including the block the
	// request was executed at, and the challenge period of that commitment elapsed.
	StatusHyperbridgeFinalized
	StatusDestinationDelivered
	StatusTimeout
)

var messageStatusNames = map[MessageStatus]string{
	StatusPending:              "pending",
	StatusSourceFinalized:      "source_finalized",
	StatusHyperbridgeDelivered: "hyperbridge_delivered",
	StatusHyperbridgeFinalized: "hyperbridge_finalized",
	StatusDestinationDelivered: "destination_delivered",
	StatusTimeout:              "timeout",
}

// String implements fmt.Stringer.
func (s MessageStatus) String() string {
	if name, ok := messageStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// Terminal reports whether no further status follows s.
func (s MessageStatus) Terminal() bool {
	return s == StatusDestinationDelivered || s == StatusTimeout
}

// StatusUpdate is a status of a request along with the data observed when reaching it.
type StatusUpdate struct {
	Status MessageStatus
	// Height is the block the status was observed at, on the hub for SourceFinalized and
	// HyperbridgeDelivered, on the destination otherwise.
	Height uint64
	// Relayer that delivered the request, set for HyperbridgeDelivered and DestinationDelivered when known.
	Relayer []byte
	// Calldata delivering the request to the destination, set for HyperbridgeFinalized.
	Calldata []byte
}

// StatusResult is an item of a status stream. A stream carrying an error ends with it.
type StatusResult struct {
	Update StatusUpdate
	Err    error
}

type streamConfig struct {
	initial StatusUpdate
}

// StreamOption configures a status stream.
type StreamOption func(*streamConfig)

// WithInitialState resumes a stream from a previously observed status.
func WithInitialState(update StatusUpdate) StreamOption {
	return func(cfg *streamConfig) { cfg.initial = update }
}

type requestTracker struct {
	*Client

	req        types.PostRequest
	commitment common.Hash
	// height is the source block the request was dispatched at.
	height uint64
	dest   Chain
}

func (c *Client) newRequestTracker(req types.PostRequest, height uint64) (*requestTracker, error) {
	if err := req.ValidateBasic(); err != nil {
		return nil, err
	}
	dest, err := c.Chain(req.Dest)
	if err != nil {
		return nil, err
	}
	return &requestTracker{
		Client:     c,
		req:        req,
		commitment: req.Commitment(),
		height:     height,
		dest:       dest,
	}, nil
}

// RequestStatusStream follows req, dispatched at source block height, until it is delivered to its
// destination or times out. Every status reached is sent on the returned channel, which is closed after
// a terminal status, after an error, or once ctx is done.
func (c *Client) RequestStatusStream(ctx context.Context, req types.PostRequest, height uint64, opts ...StreamOption) (<-chan StatusResult, error) {
	t, err := c.newRequestTracker(req, height)
	if err != nil {
		return nil, err
	}

	var cfg streamConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.initial.Status.Terminal() {
		return nil, errorsmod.Wrapf(ErrInvalidState, "cannot resume from %s", cfg.initial.Status)
	}

	out := make(chan StatusResult)
	go t.run(ctx, cfg.initial, out)
	return out, nil
}

// QueryRequestStatus returns the current status of req, dispatched at source block height, without
// waiting for progress.
func (c *Client) QueryRequestStatus(ctx context.Context, req types.PostRequest, height uint64) (StatusUpdate, error) {
	t, err := c.newRequestTracker(req, height)
	if err != nil {
		return StatusUpdate{}, err
	}

	update, err := t.checkPending(ctx)
	if err != nil || update != nil {
		return derefUpdate(update), err
	}

	latest, err := c.hub.QueryLatestStateMachineHeight(ctx, req.Source)
	if err != nil {
		return StatusUpdate{}, err
	}
	if latest < height {
		return StatusUpdate{Status: StatusPending}, nil
	}
	finalized, err := c.locateUpdate(ctx, c.hub, req.Source, latest)
	if err != nil {
		return StatusUpdate{}, err
	}
	return StatusUpdate{Status: StatusSourceFinalized, Height: finalized.BlockHeight}, nil
}

func (t *requestTracker) run(ctx context.Context, state StatusUpdate, out chan<- StatusResult) {
	defer close(out)

	logger := t.logger.With("commitment", t.commitment.Hex())
	for !state.Status.Terminal() {
		next, err := t.step(ctx, state)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("request status stream failed", "status", state.Status, "error", err)
			t.send(ctx, out, StatusResult{Err: err})
			return
		}

		logger.Debug("request status", "status", next.Status, "height", next.Height)
		t.metrics.StatusTransitions.WithLabelValues(next.Status.String()).Inc()
		if !t.send(ctx, out, StatusResult{Update: next}) {
			return
		}
		state = next
	}
}

func (t *requestTracker) send(ctx context.Context, out chan<- StatusResult, result StatusResult) bool {
	select {
	case out <- result:
		return true
	case <-ctx.Done():
		return false
	}
}

func (t *requestTracker) step(ctx context.Context, state StatusUpdate) (StatusUpdate, error) {
	if update, ok := t.fromIndexer(ctx, state); ok {
		return update, nil
	}

	switch state.Status {
	case StatusPending:
		return t.pending(ctx)
	case StatusSourceFinalized:
		return t.sourceFinalized(ctx, state.Height)
	case StatusHyperbridgeDelivered:
		return t.hyperbridgeDelivered(ctx, state.Height)
	case StatusHyperbridgeFinalized:
		return t.hyperbridgeFinalized(ctx, state.Height)
	default:
		return StatusUpdate{}, errorsmod.Wrapf(ErrInvalidState, "unexpected status %s", state.Status)
	}
}

// fromIndexer short-circuits to the status reported by the indexer when it is ahead of state. A delivery
// or timeout observed on the destination takes precedence over the indexer, a reported delivery is only
// taken once the destination receipt confirms it, and timeouts are always established on chain.
func (t *requestTracker) fromIndexer(ctx context.Context, state StatusUpdate) (StatusUpdate, bool) {
	if t.indexer == nil {
		return StatusUpdate{}, false
	}

	update, err := t.indexer.QueryRequestStatus(ctx, t.commitment)
	if err != nil {
		t.logger.Debug("indexer query failed", "commitment", t.commitment.Hex(), "error", err)
		return StatusUpdate{}, false
	}
	if update == nil || update.Status <= state.Status {
		return StatusUpdate{}, false
	}

	switch update.Status {
	case StatusSourceFinalized, StatusHyperbridgeDelivered:
		settled, err := t.checkDestination(ctx)
		if err != nil {
			t.logger.Debug("ignoring indexer status", "commitment", t.commitment.Hex(), "error", err)
			return StatusUpdate{}, false
		}
		if settled != nil {
			return *settled, true
		}
		return *update, true
	case StatusDestinationDelivered:
		relayer, err := t.dest.QueryRequestReceipt(ctx, t.commitment)
		if err != nil || len(relayer) == 0 {
			t.logger.Info("ignoring unconfirmed indexer delivery", "commitment", t.commitment.Hex(), "error", err)
			return StatusUpdate{}, false
		}
		return StatusUpdate{Status: StatusDestinationDelivered, Height: update.Height, Relayer: relayer}, true
	default:
		return StatusUpdate{}, false
	}
}

// checkDestination looks for a delivery or a timeout on the destination, in that order. It returns nil
// if neither happened yet.
func (t *requestTracker) checkDestination(ctx context.Context) (*StatusUpdate, error) {
	relayer, err := t.dest.QueryRequestReceipt(ctx, t.commitment)
	if err != nil {
		return nil, err
	}
	if len(relayer) > 0 {
		height, err := locateHandled(ctx, t.dest, t.commitment, 0)
		if err != nil {
			return nil, err
		}
		return &StatusUpdate{Status: StatusDestinationDelivered, Height: height, Relayer: relayer}, nil
	}

	now, err := t.dest.QueryTimestamp(ctx)
	if err != nil {
		return nil, err
	}
	if t.req.TimedOut(unixSeconds(now)) {
		return &StatusUpdate{Status: StatusTimeout}, nil
	}
	return nil, nil
}

// checkPending looks for a delivery, a timeout or a delivery to the hub, in that order. It returns nil
// if none of them happened yet.
func (t *requestTracker) checkPending(ctx context.Context) (*StatusUpdate, error) {
	update, err := t.checkDestination(ctx)
	if err != nil || update != nil {
		return update, err
	}

	relayer, err := t.hub.QueryRequestReceipt(ctx, t.commitment)
	if err != nil {
		return nil, err
	}
	if len(relayer) > 0 {
		height, err := t.hubDeliveryHeight(ctx, 0)
		if err != nil {
			return nil, err
		}
		return &StatusUpdate{Status: StatusHyperbridgeDelivered, Height: height, Relayer: relayer}, nil
	}

	now, err := t.hub.QueryTimestamp(ctx)
	if err != nil {
		return nil, err
	}
	if t.req.TimedOut(unixSeconds(now)) {
		return &StatusUpdate{Status: StatusTimeout}, nil
	}
	return nil, nil
}

// hubDeliveryHeight resolves the hub block the request was executed at, defaulting to the latest hub block.
func (t *requestTracker) hubDeliveryHeight(ctx context.Context, fromHeight uint64) (uint64, error) {
	event, err := t.hub.QueryRequestHandled(ctx, t.commitment, fromHeight)
	if err != nil {
		return 0, err
	}
	if event != nil {
		return event.BlockHeight, nil
	}
	return t.hub.QueryLatestHeight(ctx)
}

func (t *requestTracker) pending(ctx context.Context) (StatusUpdate, error) {
	updates := make(chan StateMachineUpdated, 1)
	sub, err := t.bus.Subscribe(t.hub, t.req.Source, updates)
	if err != nil {
		return StatusUpdate{}, err
	}
	defer sub.Unsubscribe()

	ticker := t.clock.Ticker(t.pollInterval)
	defer ticker.Stop()

	check := func() (*StatusUpdate, error) {
		update, err := t.checkPending(ctx)
		if err != nil || update != nil {
			return update, err
		}
		latest, err := t.hub.QueryLatestStateMachineHeight(ctx, t.req.Source)
		if err != nil || latest < t.height {
			return nil, err
		}
		finalized, err := t.locateUpdate(ctx, t.hub, t.req.Source, latest)
		if err != nil {
			return nil, err
		}
		return &StatusUpdate{Status: StatusSourceFinalized, Height: finalized.BlockHeight}, nil
	}

	update, err := check()
	if err != nil || update != nil {
		return derefUpdate(update), err
	}

	for {
		select {
		case finalized := <-updates:
			if finalized.LatestHeight >= t.height {
				return StatusUpdate{Status: StatusSourceFinalized, Height: finalized.BlockHeight}, nil
			}
		case <-ticker.C:
			update, err := t.checkPending(ctx)
			if err != nil || update != nil {
				return derefUpdate(update), err
			}
		case err := <-sub.Err():
			if err == nil {
				err = ErrSubscriptionClosed
			}
			return StatusUpdate{}, err
		case <-ctx.Done():
			return StatusUpdate{}, ctx.Err()
		}
	}
}

// sourceFinalized waits for the hub to execute the request from hub block height onwards, checking
// for a delivery or a timeout every poll interval.
func (t *requestTracker) sourceFinalized(ctx context.Context, height uint64) (StatusUpdate, error) {
	handled := make(chan RequestHandled, 1)
	sub, err := t.hub.SubscribeRequestHandled(ctx, t.commitment, handled)
	if err != nil {
		return StatusUpdate{}, err
	}
	defer sub.Unsubscribe()

	relayer, err := t.hub.QueryRequestReceipt(ctx, t.commitment)
	if err != nil {
		return StatusUpdate{}, err
	}
	if len(relayer) > 0 {
		delivered, err := locateHandled(ctx, t.hub, t.commitment, height)
		if err != nil {
			return StatusUpdate{}, err
		}
		return StatusUpdate{Status: StatusHyperbridgeDelivered, Height: delivered, Relayer: relayer}, nil
	}

	ticker := t.clock.Ticker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-handled:
			return StatusUpdate{Status: StatusHyperbridgeDelivered, Height: event.BlockHeight, Relayer: event.Relayer}, nil
		case <-ticker.C:
			update, err := t.checkPending(ctx)
			if err != nil || update != nil {
				return derefUpdate(update), err
			}
		case err := <-sub.Err():
			if err == nil {
				err = ErrSubscriptionClosed
			}
			return StatusUpdate{}, err
		case <-ctx.Done():
			return StatusUpdate{}, ctx.Err()
		}
	}
}

// hyperbridgeDelivered waits for the destination to finalize a hub state including hub block height, then
// builds the delivery calldata once the challenge period of that commitment elapsed.
func (t *requestTracker) hyperbridgeDelivered(ctx context.Context, height uint64) (StatusUpdate, error) {
	relayer, err := t.dest.QueryRequestReceipt(ctx, t.commitment)
	if err != nil {
		return StatusUpdate{}, err
	}
	if len(relayer) > 0 {
		delivered, err := locateHandled(ctx, t.dest, t.commitment, 0)
		if err != nil {
			return StatusUpdate{}, err
		}
		return StatusUpdate{Status: StatusDestinationDelivered, Height: delivered, Relayer: relayer}, nil
	}

	hubID := t.hub.StateMachineID()
	finalized, err := t.waitForFinalized(ctx, t.dest, hubID, hubStateHeight(height), acceptAll)
	if err != nil {
		return StatusUpdate{}, err
	}

	proofHeight := types.StateMachineHeight{ID: hubID, Height: finalized.LatestHeight}
	if err := t.waitForChallengePeriod(ctx, t.dest, proofHeight); err != nil {
		return StatusUpdate{}, err
	}

	proof, err := t.hub.QueryRequestsProof(ctx, finalized.LatestHeight, []common.Hash{t.commitment})
	if err != nil {
		return StatusUpdate{}, err
	}
	calldata, err := t.dest.Encode(&types.RequestMessage{
		Requests: []types.PostRequest{t.req},
		Proof:    types.Proof{Height: proofHeight, Proof: proof},
	})
	if err != nil {
		return StatusUpdate{}, err
	}
	return StatusUpdate{Status: StatusHyperbridgeFinalized, Height: finalized.BlockHeight, Calldata: calldata}, nil
}

// hyperbridgeFinalized waits for the destination to execute the request from destination block height onwards.
func (t *requestTracker) hyperbridgeFinalized(ctx context.Context, height uint64) (StatusUpdate, error) {
	handled := make(chan RequestHandled, 1)
	sub, err := t.dest.SubscribeRequestHandled(ctx, t.commitment, handled)
	if err != nil {
		return StatusUpdate{}, err
	}
	defer sub.Unsubscribe()

	relayer, err := t.dest.QueryRequestReceipt(ctx, t.commitment)
	if err != nil {
		return StatusUpdate{}, err
	}
	if len(relayer) > 0 {
		delivered, err := locateHandled(ctx, t.dest, t.commitment, height)
		if err != nil {
			return StatusUpdate{}, err
		}
		return StatusUpdate{Status: StatusDestinationDelivered, Height: delivered, Relayer: relayer}, nil
	}

	select {
	case event := <-handled:
		return StatusUpdate{Status: StatusDestinationDelivered, Height: event.BlockHeight, Relayer: event.Relayer}, nil
	case err := <-sub.Err():
		if err == nil {
			err = ErrSubscriptionClosed
		}
		return StatusUpdate{}, err
	case <-ctx.Done():
		return StatusUpdate{}, ctx.Err()
	}
}

func derefUpdate(update *StatusUpdate) StatusUpdate {
	if update == nil {
		return StatusUpdate{}
	}
	return *update
}
