// Command cachedbctl inspects and maintains a cachedb directory from
// outside any embedding host program.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cachedb"
)

var keyHex string
var keySize int

func openDB(dir string) (*cachedb.DB, error) {
	key, err := resolveKey()
	if err != nil {
		return nil, err
	}
	return cachedb.OpenWithOptions(dir, key, cachedb.Options{KeySize: keySize})
}

func resolveKey() ([]byte, error) {
	src := keyHex
	if src == "" {
		src = os.Getenv("CACHEDB_KEY")
	}
	if src == "" {
		return nil, fmt.Errorf("cachedbctl: --key or CACHEDB_KEY is required")
	}
	key, err := hex.DecodeString(src)
	if err != nil {
		return nil, fmt.Errorf("cachedbctl: key must be hex-encoded: %w", err)
	}
	return key, nil
}

var rootCmd = &cobra.Command{
	Use:   "cachedbctl",
	Short: "Inspect and maintain a cachedb directory",
}

var statsCmd = &cobra.Command{
	Use:   "stats <dir>",
	Short: "Open a cache directory and print its bookkeeping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		s := db.Stats()
		fmt.Printf("entries:         %d\n", s.EntryCount)
		fmt.Printf("total size:      %d bytes\n", s.TotalSize)
		fmt.Printf("binlog size:     %d bytes\n", s.BinlogSize)
		fmt.Printf("excess length:   %d bytes\n", s.BinlogExcessLength)
		if len(s.PerTag) > 0 {
			fmt.Println("per tag:")
			for tag, ts := range s.PerTag {
				fmt.Printf("  tag %3d: %d entries, %d bytes\n", tag, ts.Count, ts.TotalSize)
			}
		}
		return nil
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact <dir>",
	Short: "Force an immediate binlog compaction regardless of the excess-length gate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Compact(context.Background()); err != nil {
			return err
		}
		fmt.Println("compaction complete")
		return nil
	},
}

var gcCmd = &cobra.Command{
	Use:   "gc <dir>",
	Short: "Run the stale-version sweep once and exit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.GC(context.Background()); err != nil {
			return err
		}
		fmt.Println("gc complete")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&keyHex, "key", "", "hex-encoded encryption key (defaults to $CACHEDB_KEY)")
	rootCmd.PersistentFlags().IntVar(&keySize, "key-size", 0, "key width the directory was created with (0 uses the library default)")
	rootCmd.AddCommand(statsCmd, compactCmd, gcCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
