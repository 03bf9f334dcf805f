package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/Layr-Labs/marketplace-indexer/pkg/service/listingsDataService"
	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
)

const (
	flagSeller = "seller"
	flagNft    = "nft"
	flagMinEth = "min-eth"
	flagMaxEth = "max-eth"
	flagLimit  = "limit"
	flagCursor = "cursor"
	flagFormat = "format"

	outputFormatJson = "json"
	outputFormatCsv  = "csv"
)

// writeListings prints a page. CSV output carries the rows only, the next
// cursor goes to stderr.
func writeListings(out io.Writer, errOut io.Writer, format string, res *listingsDataService.ListActiveResult) error {
	switch format {
	case outputFormatJson:
		return writeJSON(out, res)
	case outputFormatCsv:
		if err := gocsv.Marshal(res.Items, out); err != nil {
			return err
		}
		if res.NextCursor != nil {
			_, _ = fmt.Fprintf(errOut, "next cursor: %s\n", *res.NextCursor)
		}
		return nil
	}
	return fmt.Errorf("unsupported format '%s'", format)
}

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Print a page of active listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString(flagFormat)
		if format != outputFormatJson && format != outputFormatCsv {
			return fmt.Errorf("unsupported format '%s'", format)
		}

		a, err := newApp("listings")
		if err != nil {
			return err
		}
		defer a.Close()

		filter := &listingsDataService.ListingsFilter{}
		filter.Seller, _ = cmd.Flags().GetString(flagSeller)
		filter.Nft, _ = cmd.Flags().GetString(flagNft)
		filter.MinEth, _ = cmd.Flags().GetString(flagMinEth)
		filter.MaxEth, _ = cmd.Flags().GetString(flagMaxEth)
		limit, _ := cmd.Flags().GetInt(flagLimit)
		cursor, _ := cmd.Flags().GetString(flagCursor)

		res, err := a.listings.ListActive(context.Background(), filter, cursor, limit)
		if err != nil {
			return err
		}
		return writeListings(cmd.OutOrStdout(), cmd.ErrOrStderr(), format, res)
	},
}
