package cosmos

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/celestiaorg/ismp/x/ismp/types"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	cryptotypes "github.com/cosmos/cosmos-sdk/crypto/types"
)

// TxCommitter is implemented by the cometbft RPC clients.
type TxCommitter interface {
	BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*coretypes.ResultBroadcastTxCommit, error)
}

// TxBroadcaster submits every message in a transaction signed by its key, and waits for it to be
// committed.
type TxBroadcaster struct {
	rpc     TxCommitter
	chainID string
	key     cryptotypes.PrivKey
}

var _ Broadcaster = (*TxBroadcaster)(nil)

func NewTxBroadcaster(rpc TxCommitter, chainID string, key cryptotypes.PrivKey) *TxBroadcaster {
	return &TxBroadcaster{rpc: rpc, chainID: chainID, key: key}
}

// Broadcast returns the height the last message was committed at.
func (b *TxBroadcaster) Broadcast(ctx context.Context, msgs ...types.Message) (uint64, error) {
	var height int64
	for _, msg := range msgs {
		datagram, err := types.EncodeMessage(msg)
		if err != nil {
			return 0, err
		}
		signed, err := types.NewTx(b.chainID, b.key, datagram)
		if err != nil {
			return 0, err
		}
		tx, err := signed.Marshal()
		if err != nil {
			return 0, err
		}

		res, err := b.rpc.BroadcastTxCommit(ctx, tx)
		if err != nil {
			return 0, err
		}
		if res.CheckTx.Code != 0 {
			return 0, errorsmod.Wrapf(ErrTxFailed, "check tx %X: code %d: %s", res.Hash, res.CheckTx.Code, res.CheckTx.Log)
		}
		if res.TxResult.Code != 0 {
			return 0, errorsmod.Wrapf(ErrTxFailed, "deliver tx %X: code %d: %s", res.Hash, res.TxResult.Code, res.TxResult.Log)
		}
		height = res.Height
	}
	return uint64(height), nil
}
