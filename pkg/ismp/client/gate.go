package client

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/filecoin-project/go-clock"
)

// WaitForChallengePeriod blocks until the clock of provider reaches updateTime + challengePeriod.
// It returns ErrStateMachineVetoed if the state commitment at height is vetoed on provider first.
// The veto subscription is opened before the clock of provider is read.
func WaitForChallengePeriod(
	ctx context.Context,
	clk clock.Clock,
	provider Chain,
	height types.StateMachineHeight,
	updateTime time.Time,
	challengePeriod time.Duration,
) error {
	if challengePeriod == 0 {
		return nil
	}

	vetoes := make(chan StateMachineVetoed, 1)
	sub, err := provider.SubscribeStateMachineVetoes(ctx, height.ID, vetoes)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	deadline := updateTime.Add(challengePeriod)
	for {
		now, err := provider.QueryTimestamp(ctx)
		if err != nil {
			return err
		}
		if !now.Before(deadline) {
			return nil
		}

		timer := clk.Timer(deadline.Sub(now))
		select {
		case <-timer.C:
		case veto := <-vetoes:
			timer.Stop()
			if veto.Height == height {
				return errorsmod.Wrapf(ErrStateMachineVetoed, "%s vetoed at block %d", height, veto.BlockHeight)
			}
		case err := <-sub.Err():
			timer.Stop()
			if err == nil {
				err = ErrSubscriptionClosed
			}
			return err
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// waitForChallengePeriod runs the gate for a state commitment of counterparty stored on provider.
func (c *Client) waitForChallengePeriod(ctx context.Context, provider Chain, height types.StateMachineHeight) error {
	updateTime, err := provider.QueryStateMachineUpdateTime(ctx, height)
	if err != nil {
		return err
	}
	period, err := provider.QueryChallengePeriod(ctx, height.ID)
	if err != nil {
		return err
	}

	start := c.clock.Now()
	err = WaitForChallengePeriod(ctx, c.clock, provider, height, updateTime, period)
	c.metrics.ChallengeWaitSeconds.Observe(c.clock.Since(start).Seconds())

	switch {
	case errorsmod.IsOf(err, ErrStateMachineVetoed):
		c.metrics.Vetoes.Inc()
		c.logger.Info("state commitment vetoed", "chain", provider.StateMachineID(), "height", height)
	case err == nil:
		c.logger.Debug("challenge period elapsed", "chain", provider.StateMachineID(), "height", height)
	}
	return err
}
