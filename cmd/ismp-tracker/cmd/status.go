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

const (
	flagHeight = "height"
	flagFollow = "follow"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report the delivery status of a post request",
		Long: "Report the delivery status of a post request. With --follow the status is streamed " +
			"until the request is delivered or times out, printing the calldata delivering it once " +
			"the hub is finalized on the destination.",
		Example: "ismp-tracker status --source EVM-1 --dest EVM-2 --nonce 7 --body 0x01 --height 120 --follow",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := parseRequest(cmd.Flags())
			if err != nil {
				return err
			}
			height, err := cmd.Flags().GetUint64(flagHeight)
			if err != nil {
				return err
			}
			follow, err := cmd.Flags().GetBool(flagFollow)
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

			logger.Info("tracking request", "commitment", req.Commitment().Hex(), "source", req.Source.String(), "dest", req.Dest.String())
			if !follow {
				update, err := t.client.QueryRequestStatus(ctx, req, height)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), update)
				return nil
			}

			results, err := t.client.RequestStatusStream(ctx, req, height)
			if err != nil {
				return err
			}
			for result := range results {
				if result.Err != nil {
					return result.Err
				}
				printStatus(cmd.OutOrStdout(), result.Update)
			}
			return nil
		},
	}

	addRequestFlags(cmd)
	cmd.Flags().Uint64(flagHeight, 0, "Height of the source block that dispatched the request")
	cmd.Flags().Bool(flagFollow, false, "Stream status updates until the request is delivered or times out")
	return cmd
}

func printStatus(w io.Writer, update client.StatusUpdate) {
	fmt.Fprintf(w, "%s height=%d", update.Status, update.Height)
	if update.Relayer != nil {
		fmt.Fprintf(w, " relayer=%s", types.EncodeHex(update.Relayer))
	}
	if update.Calldata != nil {
		fmt.Fprintf(w, " calldata=%s", types.EncodeHex(update.Calldata))
	}
	fmt.Fprintln(w)
}
