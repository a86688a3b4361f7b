package client

import (
	"context"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"github.com/celestiaorg/ismp/x/ismp/types"
)

// TimeoutStatus is the progress of collecting the timeout of a request on its source.
type TimeoutStatus uint8

const (
	TimeoutPending TimeoutStatus = iota
	// TimeoutDestinationFinalized means the hub finalized the destination at a height whose timestamp is
	// past the timeout of the request.
	TimeoutDestinationFinalized
	// TimeoutHyperbridgeTimedout means the hub timed out the request.
	TimeoutHyperbridgeTimedout
	// TimeoutHyperbridgeFinalized means the source finalized a hub state including the block the request
	// was timed out at.
	TimeoutHyperbridgeFinalized
	// TimeoutCalldata carries the message timing out the request on its source.
	TimeoutCalldata
)

var timeoutStatusNames = map[TimeoutStatus]string{
	TimeoutPending:              "pending",
	TimeoutDestinationFinalized: "destination_finalized",
	TimeoutHyperbridgeTimedout:  "hyperbridge_timedout",
	TimeoutHyperbridgeFinalized: "hyperbridge_finalized",
	TimeoutCalldata:             "timeout_calldata",
}

// String implements fmt.Stringer.
func (s TimeoutStatus) String() string {
	if name, ok := timeoutStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// TimeoutUpdate is a step of a timeout stream.
type TimeoutUpdate struct {
	Status TimeoutStatus
	// Height is the destination height finalized on the hub for DestinationFinalized, the hub block the
	// timeout was executed at for HyperbridgeTimedout, and the hub height finalized on the source otherwise.
	Height   uint64
	Calldata []byte
}

// TimeoutResult is an item of a timeout stream. A stream carrying an error ends with it.
type TimeoutResult struct {
	Update TimeoutUpdate
	Err    error
}

type timeoutTracker struct {
	*Client

	req          types.PostRequest
	source, dest Chain
}

// TimeoutStream walks the timeout of req back from its destination to its source. The hub is sent the
// timeout when the request reached it, and the stream ends with the calldata timing out the request on
// its source.
func (c *Client) TimeoutStream(ctx context.Context, req types.PostRequest) (<-chan TimeoutResult, error) {
	if err := req.ValidateBasic(); err != nil {
		return nil, err
	}
	if req.TimeoutTimestamp == 0 {
		return nil, errorsmod.Wrap(types.ErrInvalidRequest, "request never times out")
	}
	source, err := c.Chain(req.Source)
	if err != nil {
		return nil, err
	}
	dest, err := c.Chain(req.Dest)
	if err != nil {
		return nil, err
	}

	t := &timeoutTracker{Client: c, req: req, source: source, dest: dest}
	out := make(chan TimeoutResult)
	go t.run(ctx, out)
	return out, nil
}

func (t *timeoutTracker) run(ctx context.Context, out chan<- TimeoutResult) {
	defer close(out)

	logger := t.logger.With("commitment", t.req.Commitment().Hex())
	state := TimeoutUpdate{Status: TimeoutPending}
	for state.Status != TimeoutCalldata {
		next, err := t.step(ctx, state)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("timeout stream failed", "status", state.Status, "error", err)
			select {
			case out <- TimeoutResult{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		logger.Debug("timeout status", "status", next.Status, "height", next.Height)
		t.metrics.TimeoutTransitions.WithLabelValues(next.Status.String()).Inc()
		select {
		case out <- TimeoutResult{Update: next}:
		case <-ctx.Done():
			return
		}
		state = next
	}
}

func (t *timeoutTracker) step(ctx context.Context, state TimeoutUpdate) (TimeoutUpdate, error) {
	switch state.Status {
	case TimeoutPending:
		return t.pending(ctx)
	case TimeoutDestinationFinalized:
		return t.destinationFinalized(ctx, state.Height)
	case TimeoutHyperbridgeTimedout:
		return t.hyperbridgeTimedout(ctx, state.Height)
	case TimeoutHyperbridgeFinalized:
		return t.hyperbridgeFinalized(ctx, state.Height)
	default:
		return TimeoutUpdate{}, errorsmod.Wrapf(ErrInvalidState, "unexpected timeout status %s", state.Status)
	}
}

// timedOutAt accepts updates of a counterparty whose state commitment is past the timeout.
func (t *timeoutTracker) timedOutAt(observer Chain) func(context.Context, StateMachineUpdated) (bool, error) {
	return func(ctx context.Context, update StateMachineUpdated) (bool, error) {
		commitment, err := observer.QueryStateMachineCommitment(ctx, types.StateMachineHeight{
			ID:     update.StateMachineID,
			Height: update.LatestHeight,
		})
		if err != nil {
			return false, err
		}
		return t.req.TimedOut(commitment.Timestamp), nil
	}
}

func (t *timeoutTracker) pending(ctx context.Context) (TimeoutUpdate, error) {
	commitment := t.req.Commitment()

	delivered, err := t.dest.QueryRequestReceipt(ctx, commitment)
	if err != nil {
		return TimeoutUpdate{}, err
	}
	if len(delivered) > 0 {
		return TimeoutUpdate{}, errorsmod.Wrapf(ErrInvalidState, "request %s was delivered", commitment.Hex())
	}

	relayed, err := t.hub.QueryRequestReceipt(ctx, commitment)
	if err != nil {
		return TimeoutUpdate{}, err
	}
	if len(relayed) == 0 {
		// The request never reached the hub, so the hub times it out on its own.
		height, err := t.hub.QueryLatestHeight(ctx)
		if err != nil {
			return TimeoutUpdate{}, err
		}
		return TimeoutUpdate{Status: TimeoutHyperbridgeTimedout, Height: height}, nil
	}

	finalized, err := t.waitForFinalized(ctx, t.hub, t.req.Dest, 0, t.timedOutAt(t.hub))
	if err != nil {
		return TimeoutUpdate{}, err
	}
	return TimeoutUpdate{Status: TimeoutDestinationFinalized, Height: finalized.LatestHeight}, nil
}

// destinationFinalized proves the absence of the request receipt on the destination at height and
// times the request out on the hub.
func (t *timeoutTracker) destinationFinalized(ctx context.Context, height uint64) (TimeoutUpdate, error) {
	proofHeight := types.StateMachineHeight{ID: t.req.Dest, Height: height}

	proof, err := t.dest.QueryStateProof(ctx, height, [][]byte{types.RequestReceiptKey(t.req.Commitment())})
	if err != nil {
		return TimeoutUpdate{}, err
	}
	if err := t.waitForChallengePeriod(ctx, t.hub, proofHeight); err != nil {
		return TimeoutUpdate{}, err
	}

	block, err := t.hub.Submit(ctx, &types.TimeoutMessage{
		PostRequests: []types.PostRequest{t.req},
		Proof:        types.Proof{Height: proofHeight, Proof: proof},
	})
	if err != nil {
		return TimeoutUpdate{}, err
	}
	return TimeoutUpdate{Status: TimeoutHyperbridgeTimedout, Height: block}, nil
}

// hyperbridgeTimedout waits for the source to finalize a hub state including hub block height with a
// timestamp past the timeout.
func (t *timeoutTracker) hyperbridgeTimedout(ctx context.Context, height uint64) (TimeoutUpdate, error) {
	finalized, err := t.waitForFinalized(ctx, t.source, t.hub.StateMachineID(), hubStateHeight(height), t.timedOutAt(t.source))
	if err != nil {
		return TimeoutUpdate{}, err
	}
	return TimeoutUpdate{Status: TimeoutHyperbridgeFinalized, Height: finalized.LatestHeight}, nil
}

// hyperbridgeFinalized proves the absence of the request receipt on the hub at height and encodes the
// timeout for the source.
func (t *timeoutTracker) hyperbridgeFinalized(ctx context.Context, height uint64) (TimeoutUpdate, error) {
	proofHeight := types.StateMachineHeight{ID: t.hub.StateMachineID(), Height: height}

	proof, err := t.hub.QueryStateProof(ctx, height, [][]byte{types.RequestReceiptKey(t.req.Commitment())})
	if err != nil {
		return TimeoutUpdate{}, err
	}
	if err := t.waitForChallengePeriod(ctx, t.source, proofHeight); err != nil {
		return TimeoutUpdate{}, err
	}

	calldata, err := t.source.Encode(&types.TimeoutMessage{
		PostRequests: []types.PostRequest{t.req},
		Proof:        types.Proof{Height: proofHeight, Proof: proof},
	})
	if err != nil {
		return TimeoutUpdate{}, err
	}
	return TimeoutUpdate{Status: TimeoutCalldata, Height: height, Calldata: calldata}, nil
}
