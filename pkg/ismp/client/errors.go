package client

import (
	errorsmod "cosmossdk.io/errors"
)

// Codespace is the error codespace of the ISMP client.
const Codespace = "ismp-client"

var (
	ErrStateMachineVetoed = errorsmod.Register(Codespace, 2, "state machine commitment vetoed")
	ErrUnknownChain       = errorsmod.Register(Codespace, 3, "unknown chain")
	ErrSubscriptionClosed = errorsmod.Register(Codespace, 4, "subscription closed")
	ErrInvalidState       = errorsmod.Register(Codespace, 5, "invalid state")
)
