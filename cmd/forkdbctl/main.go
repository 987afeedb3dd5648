// Command forkdbctl is a small demonstration CLI over the fork database
// core: it builds a tiny in-memory chain, exercises fork-choice and
// root-advance, and round-trips a snapshot file.
package main

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/mezonai/forkdb/blockstate"
	"github.com/mezonai/forkdb/facade"
	"github.com/mezonai/forkdb/forkdb"
	"github.com/mezonai/forkdb/logx"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "forkdbctl",
	Short: "Inspect and drive a fork database instance",
	Long:  "Command line interface for exercising the fork database's fork-choice, pruning, and snapshot behavior.",
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			_ = logx.Errorf("FORKDBCTL CRASHED: %v\n%s", r, debug.Stack())
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "command execution failed:", err.Error())
		os.Exit(1)
	}
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Build a small forked chain and print fork-choice/root/head state",
	Run: func(cmd *cobra.Command, args []string) {
		runDemo()
	},
}

var (
	snapshotPath string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Write a demo chain to a snapshot file, then reload and print it",
	Run: func(cmd *cobra.Command, args []string) {
		runSnapshotRoundTrip(snapshotPath)
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.Flags().StringVar(&snapshotPath, "path", "fork_db.dat", "snapshot file path")
}

func runDemo() {
	root := demoHeader{id: idFromString("genesis"), blockNum: 10, irreversibleBlockNum: 10}
	b := demoHeader{id: idFromString("b"), previous: root.id, blockNum: 11, irreversibleBlockNum: 10}
	c := demoHeader{id: idFromString("c"), previous: root.id, blockNum: 11, irreversibleBlockNum: 10}
	d := demoHeader{id: idFromString("d"), previous: c.id, blockNum: 12, irreversibleBlockNum: 10}

	fdb := forkdb.NewLegacy[demoHeader]()
	fdb.Reset(root)

	if err := fdb.AddSimple(b, false); err != nil {
		fmt.Println("add b:", err)
		return
	}
	if err := fdb.AddSimple(c, false); err != nil {
		fmt.Println("add c:", err)
		return
	}
	if err := fdb.AddSimple(d, false); err != nil {
		fmt.Println("add d:", err)
		return
	}

	fmt.Println("root:", fdb.Root().Block())
	fmt.Println("head before validation:", fdb.Head().Block())

	if err := fdb.MarkValid(fdb.GetBlock(c.id)); err != nil {
		fmt.Println("mark c valid:", err)
		return
	}
	if err := fdb.MarkValid(fdb.GetBlock(d.id)); err != nil {
		fmt.Println("mark d valid:", err)
		return
	}
	fmt.Println("head after validation:", fdb.Head().Block())

	if err := fdb.AdvanceRoot(c.id); err != nil {
		fmt.Println("advance root:", err)
		return
	}
	fmt.Println("root after advance:", fdb.Root().Block())
	fmt.Println("head after advance:", fdb.Head().Block())
}

func runSnapshotRoundTrip(path string) {
	root := demoHeader{id: idFromString("genesis"), blockNum: 1, irreversibleBlockNum: 1}
	f := facade.New[demoHeader](path, demoCodec{})

	active := f.Active()
	active.Reset(root)
	next := demoHeader{id: idFromString("n1"), previous: root.id, blockNum: 2, irreversibleBlockNum: 1}
	if err := active.AddSimple(next, false); err != nil {
		fmt.Println("add:", err)
		return
	}
	if err := active.MarkValid(active.GetBlock(next.id)); err != nil {
		fmt.Println("mark valid:", err)
		return
	}

	if err := f.Close(); err != nil {
		fmt.Println("close:", err)
		return
	}
	fmt.Println("wrote snapshot to", path)

	reopened := facade.New[demoHeader](path, demoCodec{})
	noopValidator := func(time.Time, []blockstate.FeatureDigest, []blockstate.FeatureDigest) error { return nil }
	if err := reopened.Open(noopValidator); err != nil {
		fmt.Println("open:", err)
		return
	}
	fmt.Println("reloaded head:", reopened.Active().Head().Block())
}
