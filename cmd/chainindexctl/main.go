// Command chainindex is a small operational CLI around the store: enough
// to open a database on disk and answer the same queries an embedding
// client would make, without pulling in a full node.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var datadir string

const defaultMapSize = 1 << 33 // 8 GiB ceiling; LMDB reserves virtual address space only

var rootCmd = &cobra.Command{
	Use:   "chainindex",
	Short: "Inspect a chain-index LMDB store",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&datadir, "datadir", "chaindata", "path to the LMDB environment")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
