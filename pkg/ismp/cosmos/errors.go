package cosmos

import (
	errorsmod "cosmossdk.io/errors"
)

const Codespace = "ismp-cosmos"

var (
	ErrQuery         = errorsmod.Register(Codespace, 2, "abci query failed")
	ErrReadOnly      = errorsmod.Register(Codespace, 3, "chain has no broadcaster")
	ErrMalformedData = errorsmod.Register(Codespace, 4, "malformed chain data")
	ErrTxFailed      = errorsmod.Register(Codespace, 6, "transaction failed")
)
