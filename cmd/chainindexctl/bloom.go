package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"

	"github.com/ledgerwatch/chainindex/chainindex"
	"github.com/ledgerwatch/chainindex/kv/lmdbkv"
)

var (
	bloomHex  string
	bloomFrom uint64
	bloomTo   uint64
)

func init() {
	rootCmd.AddCommand(bloomCmd)
	bloomCmd.Flags().StringVar(&bloomHex, "bloom", "", "2048-bit bloom filter, 0x-prefixed hex")
	bloomCmd.Flags().Uint64Var(&bloomFrom, "from", 0, "first block number to search")
	bloomCmd.Flags().Uint64Var(&bloomTo, "to", 0, "last block number to search")
}

var bloomCmd = &cobra.Command{
	Use:   "bloom-query",
	Short: "Find canonical blocks whose header bloom matches a query bloom",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := hexutil.Decode(bloomHex)
		if err != nil {
			return fmt.Errorf("chainindexctl: decoding --bloom: %w", err)
		}
		var query types.Bloom
		query.SetBytes(raw)

		db, err := lmdbkv.Open(datadir, defaultMapSize)
		if err != nil {
			return err
		}
		defer db.Close()

		ci, err := chainindex.Open(db, nil, chainindex.DefaultConfig())
		if err != nil {
			return err
		}
		hits, err := ci.BlocksWithBloom(query, bloomFrom, bloomTo)
		if err != nil {
			return err
		}
		for _, n := range hits {
			fmt.Println(n)
		}
		return nil
	},
}
