package cmd

import (
	"fmt"

	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	flagSource  = "source"
	flagDest    = "dest"
	flagNonce   = "nonce"
	flagFrom    = "from"
	flagTo      = "to"
	flagTimeout = "timeout"
	flagBody    = "body"
)

// addRequestFlags registers the fields of the tracked post request.
func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().String(flagSource, "", "State machine the request was dispatched from, e.g. EVM-1")
	cmd.Flags().String(flagDest, "", "State machine the request is addressed to")
	cmd.Flags().Uint64(flagNonce, 0, "Nonce of the request on its source")
	cmd.Flags().String(flagFrom, "0x", "Hex encoded sending module")
	cmd.Flags().String(flagTo, "0x", "Hex encoded receiving module")
	cmd.Flags().Uint64(flagTimeout, 0, "Timeout of the request in unix seconds, 0 for none")
	cmd.Flags().String(flagBody, "0x", "Hex encoded request body")
	_ = cmd.MarkFlagRequired(flagSource)
	_ = cmd.MarkFlagRequired(flagDest)
}

func parseRequest(flags *pflag.FlagSet) (types.PostRequest, error) {
	var (
		req types.PostRequest
		err error
	)

	ids := map[string]*types.StateMachineID{flagSource: &req.Source, flagDest: &req.Dest}
	for name, id := range ids {
		raw, err := flags.GetString(name)
		if err != nil {
			return types.PostRequest{}, err
		}
		if *id, err = types.ParseStateMachineID(raw); err != nil {
			return types.PostRequest{}, fmt.Errorf("--%s: %w", name, err)
		}
	}

	fields := map[string]*[]byte{flagFrom: &req.From, flagTo: &req.To, flagBody: &req.Body}
	for name, field := range fields {
		raw, err := flags.GetString(name)
		if err != nil {
			return types.PostRequest{}, err
		}
		if *field, err = types.DecodeHex(raw); err != nil {
			return types.PostRequest{}, fmt.Errorf("--%s: %w", name, err)
		}
	}

	if req.Nonce, err = flags.GetUint64(flagNonce); err != nil {
		return types.PostRequest{}, err
	}
	if req.TimeoutTimestamp, err = flags.GetUint64(flagTimeout); err != nil {
		return types.PostRequest{}, err
	}
	return req, nil
}
