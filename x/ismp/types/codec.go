package types

import (
	"encoding/json"
	"fmt"

	collcodec "cosmossdk.io/collections/codec"
	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/rlp"
)

// envelope tags the RLP body of a message with its type.
type envelope struct {
	Type uint8
	Body rlp.RawValue
}

// EncodeMessage encodes msg as the RLP list [type, body].
func EncodeMessage(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errorsmod.Wrap(ErrInvalidMessage, "nil message")
	}
	body, err := rlp.EncodeToBytes(msg)
	if err != nil {
		return nil, errorsmod.Wrapf(ErrInvalidMessage, "encoding %T: %v", msg, err)
	}
	return rlp.EncodeToBytes(envelope{Type: uint8(msg.Type()), Body: body})
}

// DecodeMessage decodes a message produced by EncodeMessage.
func DecodeMessage(bz []byte) (Message, error) {
	var env envelope
	if err := rlp.DecodeBytes(bz, &env); err != nil {
		return nil, errorsmod.Wrapf(ErrInvalidMessage, "decoding envelope: %v", err)
	}

	var msg Message
	switch MessageType(env.Type) {
	case MessageTypeCreateConsensusState:
		msg = new(CreateConsensusStateMessage)
	case MessageTypeConsensus:
		msg = new(ConsensusMessage)
	case MessageTypeRequest:
		msg = new(RequestMessage)
	case MessageTypeResponse:
		msg = new(ResponseMessage)
	case MessageTypeTimeout:
		msg = new(TimeoutMessage)
	case MessageTypeFraudProof:
		msg = new(FraudProofMessage)
	default:
		return nil, errorsmod.Wrapf(ErrInvalidMessage, "unknown message type %d", env.Type)
	}

	if err := rlp.DecodeBytes(env.Body, msg); err != nil {
		return nil, errorsmod.Wrapf(ErrInvalidMessage, "decoding %T: %v", msg, err)
	}
	return msg, nil
}

// RLPValue returns a collections value codec storing values in their RLP encoding.
func RLPValue[T any](name string) collcodec.ValueCodec[T] {
	return rlpValueCodec[T]{name: name}
}

type rlpValueCodec[T any] struct {
	name string
}

func (c rlpValueCodec[T]) Encode(value T) ([]byte, error) {
	return rlp.EncodeToBytes(&value)
}

func (c rlpValueCodec[T]) Decode(bz []byte) (T, error) {
	var value T
	if err := rlp.DecodeBytes(bz, &value); err != nil {
		return value, fmt.Errorf("%w: decoding %s: %v", collcodec.ErrEncoding, c.name, err)
	}
	return value, nil
}

func (c rlpValueCodec[T]) EncodeJSON(value T) ([]byte, error) {
	return json.Marshal(value)
}

func (c rlpValueCodec[T]) DecodeJSON(bz []byte) (T, error) {
	var value T
	err := json.Unmarshal(bz, &value)
	return value, err
}

func (c rlpValueCodec[T]) Stringify(value T) string {
	return fmt.Sprintf("%+v", value)
}

func (c rlpValueCodec[T]) ValueType() string {
	return "rlp/" + c.name
}
