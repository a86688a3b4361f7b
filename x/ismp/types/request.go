package types

import (
	"encoding/binary"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Request is an ISMP request, either a PostRequest or a GetRequest.
type Request interface {
	GetSource() StateMachineID
	GetDest() StateMachineID
	GetNonce() uint64
	GetFrom() []byte
	GetTimeoutTimestamp() uint64

	// Commitment returns the content addressed identity of the request.
	Commitment() common.Hash
	// TimedOut reports whether the request has timed out at the provided unix timestamp (seconds).
	TimedOut(now uint64) bool
	ValidateBasic() error
}

// Response is an ISMP response to a previously received Request.
type Response interface {
	Request() Request
	// GetSource returns the state machine the response originates from, i.e. the destination of the request.
	GetSource() StateMachineID
	// GetDest returns the state machine the response is addressed to, i.e. the source of the request.
	GetDest() StateMachineID
	GetTimeoutTimestamp() uint64

	Commitment() common.Hash
	TimedOut(now uint64) bool
	ValidateBasic() error
}

var (
	_ Request  = (*PostRequest)(nil)
	_ Request  = (*GetRequest)(nil)
	_ Response = (*PostResponse)(nil)
	_ Response = (*GetResponse)(nil)
)

// PostRequest carries an opaque body from a module on the source state machine to a module on the destination.
type PostRequest struct {
	Source StateMachineID
	Dest   StateMachineID
	Nonce  uint64
	From   []byte
	To     []byte
	// TimeoutTimestamp in seconds, zero means no timeout.
	TimeoutTimestamp uint64
	Body             []byte
}

func (r *PostRequest) GetSource() StateMachineID { return r.Source }
func (r *PostRequest) GetDest() StateMachineID { return r.Dest }
func (r *PostRequest) GetNonce() uint64 { return r.Nonce }
func (r *PostRequest) GetFrom() []byte { return r.From }
func (r *PostRequest) GetTimeoutTimestamp() uint64 { return r.TimeoutTimestamp }

// Commitment implements Request.
func (r *PostRequest) Commitment() common.Hash {
	return crypto.Keccak256Hash(r.packed())
}

// TimedOut implements Request.
func (r *PostRequest) TimedOut(now uint64) bool {
	return timedOut(r.TimeoutTimestamp, now)
}

// ValidateBasic implements Request.
func (r *PostRequest) ValidateBasic() error {
	if err := validateRoute(r.Source, r.Dest); err != nil {
		return err
	}
	if len(r.From) == 0 || len(r.To) == 0 {
		return errorsmod.Wrap(ErrInvalidRequest, "sender and receiver must be non-empty")
	}
	return nil
}

// packed encodes the request with every variable length field prefixed by its length, so that no two
// requests share an encoding.
func (r *PostRequest) packed() []byte {
	var bz []byte
	bz = appendField(bz, []byte(r.Source.String()))
	bz = appendField(bz, []byte(r.Dest.String()))
	bz = binary.BigEndian.AppendUint64(bz, r.Nonce)
	bz = binary.BigEndian.AppendUint64(bz, r.TimeoutTimestamp)
	bz = appendField(bz, r.From)
	bz = appendField(bz, r.To)
	return appendField(bz, r.Body)
}

// GetRequest asks the destination state machine for the values of Keys at Height.
type GetRequest struct {
	Source StateMachineID
	Dest   StateMachineID
	Nonce  uint64
	From   []byte
	Keys   [][]byte
	Height uint64
	// Context is opaque data returned to the sender alongside the response.
	Context          []byte
	TimeoutTimestamp uint64
}

func (r *GetRequest) GetSource() StateMachineID { return r.Source }
func (r *GetRequest) GetDest() StateMachineID { return r.Dest }
func (r *GetRequest) GetNonce() uint64 { return r.Nonce }
func (r *GetRequest) GetFrom() []byte { return r.From }
func (r *GetRequest) GetTimeoutTimestamp() uint64 { return r.TimeoutTimestamp }

// Commitment implements Request.
func (r *GetRequest) Commitment() common.Hash {
	return crypto.Keccak256Hash(r.packed())
}

// TimedOut implements Request.
func (r *GetRequest) TimedOut(now uint64) bool {
	return timedOut(r.TimeoutTimestamp, now)
}

// ValidateBasic implements Request.
func (r *GetRequest) ValidateBasic() error {
	if err := validateRoute(r.Source, r.Dest); err != nil {
		return err
	}
	if len(r.Keys) == 0 {
		return errorsmod.Wrap(ErrInvalidRequest, "get request must query at least one key")
	}
	if r.Height == 0 {
		return errorsmod.Wrap(ErrInvalidRequest, "get request height must be non-zero")
	}
	return nil
}

func (r *GetRequest) packed() []byte {
	var bz []byte
	bz = appendField(bz, []byte(r.Source.String()))
	bz = appendField(bz, []byte(r.Dest.String()))
	bz = binary.BigEndian.AppendUint64(bz, r.Nonce)
	bz = binary.BigEndian.AppendUint64(bz, r.Height)
	bz = binary.BigEndian.AppendUint64(bz, r.TimeoutTimestamp)
	bz = appendField(bz, r.From)
	bz = binary.BigEndian.AppendUint64(bz, uint64(len(r.Keys)))
	for _, key := range r.Keys {
		bz = appendField(bz, key)
	}
	return appendField(bz, r.Context)
}

// PostResponse is the response of a destination module to a PostRequest.
type PostResponse struct {
	Post             PostRequest
	Response         []byte
	TimeoutTimestamp uint64
}

func (r *PostResponse) Request() Request { return &r.Post }
func (r *PostResponse) GetSource() StateMachineID { return r.Post.Dest }
func (r *PostResponse) GetDest() StateMachineID { return r.Post.Source }
func (r *PostResponse) GetTimeoutTimestamp() uint64 { return r.TimeoutTimestamp }

// Commitment implements Response.
func (r *PostResponse) Commitment() common.Hash {
	bz := r.Post.packed()
	bz = appendField(bz, r.Response)
	bz = binary.BigEndian.AppendUint64(bz, r.TimeoutTimestamp)
	return crypto.Keccak256Hash(bz)
}

// TimedOut implements Response.
func (r *PostResponse) TimedOut(now uint64) bool {
	return timedOut(r.TimeoutTimestamp, now)
}

// ValidateBasic implements Response.
func (r *PostResponse) ValidateBasic() error {
	if err := r.Post.ValidateBasic(); err != nil {
		return errorsmod.Wrap(ErrInvalidResponse, err.Error())
	}
	return nil
}

// StorageValue is a single key/value pair read from a remote state machine.
// A nil Value denotes absence of the key.
type StorageValue struct {
	Key   []byte
	Value []byte
}

// GetResponse carries the values read for a GetRequest.
type GetResponse struct {
	Get    GetRequest
	Values []StorageValue
}

func (r *GetResponse) Request() Request { return &r.Get }
func (r *GetResponse) GetSource() StateMachineID { return r.Get.Dest }
func (r *GetResponse) GetDest() StateMachineID { return r.Get.Source }
func (r *GetResponse) GetTimeoutTimestamp() uint64 { return r.Get.TimeoutTimestamp }

// Commitment implements Response.
func (r *GetResponse) Commitment() common.Hash {
	bz := r.Get.packed()
	bz = binary.BigEndian.AppendUint64(bz, uint64(len(r.Values)))
	for _, v := range r.Values {
		bz = appendField(bz, v.Key)
		bz = appendField(bz, v.Value)
	}
	return crypto.Keccak256Hash(bz)
}

// TimedOut implements Response.
func (r *GetResponse) TimedOut(now uint64) bool {
	return timedOut(r.Get.TimeoutTimestamp, now)
}

// ValidateBasic implements Response.
func (r *GetResponse) ValidateBasic() error {
	if err := r.Get.ValidateBasic(); err != nil {
		return errorsmod.Wrap(ErrInvalidResponse, err.Error())
	}
	return nil
}

// appendField appends field to bz behind its big endian length.
func appendField(bz, field []byte) []byte {
	bz = binary.BigEndian.AppendUint64(bz, uint64(len(field)))
	return append(bz, field...)
}

func timedOut(timeout, now uint64) bool {
	return timeout != 0 && now >= timeout
}

func validateRoute(source, dest StateMachineID) error {
	if err := source.Validate(); err != nil {
		return errorsmod.Wrap(ErrInvalidRequest, err.Error())
	}
	if err := dest.Validate(); err != nil {
		return errorsmod.Wrap(ErrInvalidRequest, err.Error())
	}
	return nil
}
