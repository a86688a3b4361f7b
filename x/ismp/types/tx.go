package types

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	cryptotypes "github.com/cosmos/cosmos-sdk/crypto/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
	"github.com/ethereum/go-ethereum/rlp"
)

// MsgServer handles the transactions of the ismp module.
type MsgServer interface {
	SubmitDatagram(ctx context.Context, msg *MsgSubmitDatagram) (*MsgSubmitDatagramResponse, error)
	VetoStateCommitment(ctx context.Context, msg *MsgVetoStateCommitment) (*MsgVetoStateCommitmentResponse, error)
}

// MsgSubmitDatagram submits a datagram encoded with EncodeMessage. Signer is the bech32 address of the
// relayer and is recorded as the relayer of every datagram it delivers.
type MsgSubmitDatagram struct {
	Signer   string
	Datagram []byte
}

// ValidateBasic performs stateless checks of the message.
func (m *MsgSubmitDatagram) ValidateBasic() error {
	if _, err := sdk.AccAddressFromBech32(m.Signer); err != nil {
		return errorsmod.Wrapf(sdkerrors.ErrInvalidAddress, "invalid signer address: %s", err)
	}
	if len(m.Datagram) == 0 {
		return errorsmod.Wrap(ErrInvalidMessage, "datagram must be non-empty")
	}
	return nil
}

type MsgSubmitDatagramResponse struct{}

// MsgVetoStateCommitment removes a state commitment whose challenge period is still open. Only the
// module authority may veto.
type MsgVetoStateCommitment struct {
	Authority string
	Height    StateMachineHeight
}

// ValidateBasic performs stateless checks of the message.
func (m *MsgVetoStateCommitment) ValidateBasic() error {
	if _, err := sdk.AccAddressFromBech32(m.Authority); err != nil {
		return errorsmod.Wrapf(sdkerrors.ErrInvalidAddress, "invalid authority address: %s", err)
	}
	return m.Height.ID.Validate()
}

type MsgVetoStateCommitmentResponse struct{}

// Tx carries a MsgSubmitDatagram signed with the secp256k1 key of its signer.
type Tx struct {
	Msg       MsgSubmitDatagram
	PubKey    []byte
	Signature []byte
}

// NewTx signs a submission of datagram by key for the chain with id chainID.
func NewTx(chainID string, key cryptotypes.PrivKey, datagram []byte) (*Tx, error) {
	pub := key.PubKey()
	msg := MsgSubmitDatagram{Signer: sdk.AccAddress(pub.Address()).String(), Datagram: datagram}

	signBytes, err := SignBytes(chainID, msg)
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(signBytes)
	if err != nil {
		return nil, err
	}
	return &Tx{Msg: msg, PubKey: pub.Bytes(), Signature: sig}, nil
}

// SignBytes returns the bytes signed for msg. The chain id prevents a transaction from being replayed
// on another chain.
func SignBytes(chainID string, msg MsgSubmitDatagram) ([]byte, error) {
	return rlp.EncodeToBytes([]any{chainID, msg.Signer, msg.Datagram})
}

// Marshal encodes the transaction for broadcasting.
func (tx *Tx) Marshal() ([]byte, error) {
	return rlp.EncodeToBytes(tx)
}

// DecodeTx decodes a transaction produced by Tx.Marshal.
func DecodeTx(bz []byte) (*Tx, error) {
	tx := new(Tx)
	if err := rlp.DecodeBytes(bz, tx); err != nil {
		return nil, errorsmod.Wrapf(sdkerrors.ErrTxDecode, "decoding ismp tx: %v", err)
	}
	return tx, nil
}

// VerifySignature checks that tx was signed for chainID by the key its signer address derives from.
func (tx *Tx) VerifySignature(chainID string) error {
	if len(tx.PubKey) != secp256k1.PubKeySize {
		return errorsmod.Wrapf(sdkerrors.ErrInvalidPubKey, "expected %d bytes, got %d", secp256k1.PubKeySize, len(tx.PubKey))
	}
	pub := &secp256k1.PubKey{Key: tx.PubKey}

	if signer := sdk.AccAddress(pub.Address()).String(); signer != tx.Msg.Signer {
		return errorsmod.Wrapf(sdkerrors.ErrUnauthorized, "public key of %s does not match signer %s", signer, tx.Msg.Signer)
	}

	signBytes, err := SignBytes(chainID, tx.Msg)
	if err != nil {
		return err
	}
	if !pub.VerifySignature(signBytes, tx.Signature) {
		return errorsmod.Wrap(sdkerrors.ErrUnauthorized, "signature verification failed")
	}
	return nil
}

// SetSigner records signer as the relayer of msg. A message already naming a different relayer is
// rejected.
func SetSigner(msg Message, signer []byte) error {
	var field *[]byte
	switch msg := msg.(type) {
	case *ConsensusMessage:
		field = &msg.Signer
	case *RequestMessage:
		field = &msg.Signer
	case *ResponseMessage:
		field = &msg.Signer
	case *TimeoutMessage:
		field = &msg.Signer
	case *FraudProofMessage:
		field = &msg.Signer
	default:
		return nil
	}

	if len(*field) > 0 && string(*field) != string(signer) {
		return errorsmod.Wrapf(sdkerrors.ErrUnauthorized, "datagram names relayer %s, submitted by %s", EncodeHex(*field), EncodeHex(signer))
	}
	*field = signer
	return nil
}
