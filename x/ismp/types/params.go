package types

import errorsmod "cosmossdk.io/errors"

// Params configures the ISMP host.
type Params struct {
	// Proxy is the state machine allowed to relay requests and responses on behalf of
	// state machines the host has no direct consensus client for.
	Proxy *StateMachineID `rlp:"nil" json:"proxy,omitempty"`
	// Hub lets the host route requests between other state machines. A routed request is receipted
	// and committed again toward its destination instead of being executed.
	Hub bool `json:"hub,omitempty"`
}

// NewParams creates a new Params instance.
func NewParams(proxy *StateMachineID) Params {
	return Params{
		Proxy: proxy,
	}
}

// DefaultParams returns a default set of parameters: no proxy.
func DefaultParams() Params {
	return NewParams(nil)
}

// Validate performs basic validation of the params.
func (p Params) Validate() error {
	if p.Proxy == nil {
		return nil
	}
	if err := p.Proxy.Validate(); err != nil {
		return errorsmod.Wrap(ErrInvalidParams, err.Error())
	}
	return nil
}
