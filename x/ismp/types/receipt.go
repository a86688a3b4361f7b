package types

import (
	"io"
	"math/big"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// FeeMetadata is stored alongside an outgoing request or response commitment from dispatch until
// the commitment is consumed by a response or a timeout.
type FeeMetadata struct {
	// Payer is the account that funded the relayer fee and is refunded on timeout.
	Payer []byte
	Fee   math.Int
}

type feeMetadataRLP struct {
	Payer []byte
	Fee   *big.Int
}

// EncodeRLP implements rlp.Encoder.
func (m FeeMetadata) EncodeRLP(w io.Writer) error {
	fee := new(big.Int)
	if !m.Fee.IsNil() {
		fee = m.Fee.BigInt()
	}
	return rlp.Encode(w, feeMetadataRLP{Payer: m.Payer, Fee: fee})
}

// DecodeRLP implements rlp.Decoder.
func (m *FeeMetadata) DecodeRLP(s *rlp.Stream) error {
	var raw feeMetadataRLP
	if err := s.Decode(&raw); err != nil {
		return err
	}
	m.Payer = raw.Payer
	m.Fee = math.NewIntFromBigInt(raw.Fee)
	return nil
}

// RequestReceipt records that an incoming request was executed by the host.
type RequestReceipt struct {
	Commitment common.Hash
	Relayer    []byte
}

// ResponseReceipt records that a response to one of the host's own requests was executed.
type ResponseReceipt struct {
	// Response is the commitment of the response that was handled.
	Response common.Hash
	Relayer  []byte
}
