package keeper

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/celestiaorg/ismp/x/ismp/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
)

var _ types.MsgServer = msgServer{}

type msgServer struct {
	*Keeper
}

// NewMsgServerImpl creates and returns a new module MsgServer instance.
func NewMsgServerImpl(keeper *Keeper) types.MsgServer {
	return &msgServer{keeper}
}

// SubmitDatagram implements types.MsgServer.
func (m msgServer) SubmitDatagram(ctx context.Context, msg *types.MsgSubmitDatagram) (*types.MsgSubmitDatagramResponse, error) {
	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	signer, err := sdk.AccAddressFromBech32(msg.Signer)
	if err != nil {
		return nil, err
	}

	datagram, err := types.DecodeMessage(msg.Datagram)
	if err != nil {
		return nil, err
	}
	if _, ok := datagram.(*types.CreateConsensusStateMessage); ok && msg.Signer != m.authority {
		return nil, errorsmod.Wrapf(sdkerrors.ErrUnauthorized, "invalid authority; expected %s, got %s", m.authority, msg.Signer)
	}
	if err := types.SetSigner(datagram, signer); err != nil {
		return nil, err
	}

	if err := m.HandleMessage(ctx, datagram); err != nil {
		return nil, err
	}
	return &types.MsgSubmitDatagramResponse{}, nil
}

// VetoStateCommitment implements types.MsgServer.
func (m msgServer) VetoStateCommitment(ctx context.Context, msg *types.MsgVetoStateCommitment) (*types.MsgVetoStateCommitmentResponse, error) {
	if msg.Authority != m.authority {
		return nil, errorsmod.Wrapf(sdkerrors.ErrUnauthorized, "invalid authority; expected %s, got %s", m.authority, msg.Authority)
	}

	if err := m.Keeper.VetoStateCommitment(ctx, msg.Height); err != nil {
		return nil, err
	}
	return &types.MsgVetoStateCommitmentResponse{}, nil
}

// HandleTx authenticates a transaction produced by types.NewTx for the chain of ctx and submits its
// datagram.
func (k *Keeper) HandleTx(ctx context.Context, bz []byte) error {
	tx, err := types.DecodeTx(bz)
	if err != nil {
		return err
	}
	if err := tx.VerifySignature(sdk.UnwrapSDKContext(ctx).ChainID()); err != nil {
		return err
	}

	_, err = NewMsgServerImpl(k).SubmitDatagram(ctx, &tx.Msg)
	return err
}
