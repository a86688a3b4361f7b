package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/celestiaorg/ismp/pkg/ismp/client"
	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/spf13/cobra"
)

func timeoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeout",
		Short: "Drive the timeout of a post request that was not delivered in time",
		Long: "Drive the timeout of a post request. The timeout is relayed to the hub if the request " +
			"reached it, and the calldata timing the request out on its source is printed once the " +
			"hub is finalized there.",
		Example: "ismp-tracker timeout --source EVM-1 --dest EVM-2 --nonce 7 --body 0x01 --timeout 1700000000",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := parseRequest(cmd.Flags())
			if err != nil {
				return err
			}

			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			t, err := newTracker(cfg, logger)
			if err != nil {
				return err
			}
			defer t.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			results, err := t.client.TimeoutStream(ctx, req)
			if err != nil {
				return err
			}
			for result := range results {
				if result.Err != nil {
					return result.Err
				}
				printTimeout(cmd.OutOrStdout(), result.Update)
			}
			return nil
		},
	}

	addRequestFlags(cmd)
	return cmd
}

func printTimeout(w io.Writer, update client.TimeoutUpdate) {
	fmt.Fprintf(w, "%s height=%d", update.Status, update.Height)
	if update.Calldata != nil {
		fmt.Fprintf(w, " calldata=%s", types.EncodeHex(update.Calldata))
	}
	fmt.Fprintln(w)
}
