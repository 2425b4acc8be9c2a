package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ledgerwatch/chainindex/chainindex"
	"github.com/ledgerwatch/chainindex/kv/lmdbkv"
)

func init() {
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(blockCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print best-block and first/ancient markers",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := lmdbkv.Open(datadir, defaultMapSize)
		if err != nil {
			return err
		}
		defer db.Close()

		ci, err := chainindex.Open(db, nil, chainindex.DefaultConfig())
		if err != nil {
			return err
		}
		info := ci.ChainInfo()
		fmt.Printf("best:    #%d %s (td=%s)\n", info.Best.Number, info.Best.Hash, info.Best.TotalDifficulty)
		if first, ok := ci.FirstBlock(); ok {
			fmt.Printf("first:   %s\n", first)
		}
		if anc, ok := ci.BestAncientBlock(); ok {
			fmt.Printf("ancient: #%d %s\n", anc.Number, anc.Hash)
		}
		return nil
	},
}

var blockArg string

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Print a block's number, parent hash and receipt count",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := lmdbkv.Open(datadir, defaultMapSize)
		if err != nil {
			return err
		}
		defer db.Close()

		ci, err := chainindex.Open(db, nil, chainindex.DefaultConfig())
		if err != nil {
			return err
		}
		hash := common.HexToHash(blockArg)
		header, ok, err := ci.BlockHeader(hash)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("unknown block")
			return nil
		}
		receipts, _, err := ci.BlockReceipts(hash)
		if err != nil {
			return err
		}
		fmt.Printf("number:   %d\n", header.Number.Uint64())
		fmt.Printf("parent:   %s\n", header.ParentHash)
		fmt.Printf("receipts: %d\n", len(receipts))
		return nil
	},
}

func init() {
	blockCmd.Flags().StringVar(&blockArg, "hash", "", "block hash, 0x-prefixed")
}
