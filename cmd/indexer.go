package cmd

import (
	"context"
	"encoding/json"
	"io"

	"github.com/Layr-Labs/marketplace-indexer/pkg/indexer"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	flagFrom = "from"
	flagSpan = "span"
)

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// syncOutcome turns a busy result into an error so scripts see a non-zero exit.
func syncOutcome(res *indexer.SyncResult) error {
	if res.IsBusy() {
		return errors.Wrap(indexer.ErrSyncInProgress, "another pass holds the lock")
	}
	return nil
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("sync")
		if err != nil {
			return err
		}
		defer a.Close()

		opts := &indexer.SyncOptions{}
		if cmd.Flags().Changed(flagFrom) {
			from, _ := cmd.Flags().GetUint64(flagFrom)
			opts.From = &from
		}
		opts.Span, _ = cmd.Flags().GetUint64(flagSpan)

		res, err := a.indexer.Sync(context.Background(), opts)
		if err != nil {
			a.logger.Sugar().Errorw("Sync failed", zap.Error(err))
			return err
		}
		if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		return syncOutcome(res)
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rewind the cursor and re-scan from a block",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetUint64(flagFrom)
		if from == 0 {
			return errors.New("missing 'from' (block)")
		}

		a, err := newApp("reindex")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.indexer.ReindexFrom(context.Background(), from)
		if err != nil {
			a.logger.Sugar().Errorw("Reindex failed", zap.Uint64("from", from), zap.Error(err))
			return err
		}
		if err := writeJSON(cmd.OutOrStdout(), map[string]interface{}{"ok": true, "res": res}); err != nil {
			return err
		}
		return syncOutcome(res)
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every active listing and the cursor",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("clear")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.indexer.ClearAll(context.Background()); err != nil {
			a.logger.Sugar().Errorw("Clear failed", zap.Error(err))
			return err
		}
		return writeJSON(cmd.OutOrStdout(), map[string]bool{"ok": true})
	},
}
