// Command bench_rpc measures round-trip latency for the handful of RPC
// methods a shovel issues per block, against one or more archive nodes, to
// help size worker counts and rate limits before running a fleet.
//
// Adapted from the teacher's bench_rpc tool (same per-node, per-call-kind
// timing loop), generalized from Flow's gRPC access API to the Substrate
// JSON-RPC methods internal/chain wraps.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/substrate-warehouse/shovels/internal/chain"
)

func main() {
	var nodeList string
	var height uint64
	var iterations int
	flag.StringVar(&nodeList, "nodes", os.Getenv("SUBSTRATE_ARCHIVE_NODES"), "comma-separated archive node RPC URLs")
	flag.Uint64Var(&height, "height", 0, "block number to benchmark against (0 = chain tip)")
	flag.IntVar(&iterations, "n", 5, "number of consecutive blocks to fetch for the sequential-fetch benchmark")
	flag.Parse()

	if nodeList == "" {
		fmt.Fprintln(os.Stderr, "usage: bench_rpc -nodes <url,url,...> [-height N] [-n 5]")
		os.Exit(2)
	}

	ctx := context.Background()
	for _, node := range strings.Split(nodeList, ",") {
		node = strings.TrimSpace(node)
		if node == "" {
			continue
		}
		fmt.Printf("\n========== %s ==========\n", node)
		if err := runBench(ctx, node, height, iterations); err != nil {
			fmt.Printf("  FAIL: %v\n", err)
		}
	}
}

func runBench(ctx context.Context, node string, height uint64, iterations int) error {
	cli, err := chain.NewClient(node)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer cli.Close()

	if height == 0 {
		t0 := time.Now()
		head, err := cli.GetChainFinalisedHead(ctx)
		if err != nil {
			return fmt.Errorf("GetChainFinalisedHead: %w", err)
		}
		n, err := cli.GetBlockNumber(ctx, head)
		if err != nil {
			return fmt.Errorf("GetBlockNumber: %w", err)
		}
		fmt.Printf("  GetChainFinalisedHead+GetBlockNumber: OK [%v] height=%d\n", time.Since(t0), n)
		height = n
	}

	t0 := time.Now()
	hash, err := cli.GetBlockHash(ctx, height)
	d1 := time.Since(t0)
	if err != nil {
		return fmt.Errorf("GetBlockHash: %w", err)
	}
	fmt.Printf("  GetBlockHash: OK [%v] hash=%s\n", d1, hash)

	t0 = time.Now()
	exts, err := cli.GetExtrinsics(ctx, height)
	d2 := time.Since(t0)
	if err != nil {
		fmt.Printf("  GetExtrinsics: FAIL (%v) [%v]\n", err, d2)
	} else {
		fmt.Printf("  GetExtrinsics: OK [%v] count=%d\n", d2, len(exts))
	}

	t0 = time.Now()
	events, err := cli.GetEvents(ctx, hash)
	d3 := time.Since(t0)
	if err != nil {
		fmt.Printf("  GetEvents: FAIL (%v) [%v]\n", err, d3)
	} else {
		fmt.Printf("  GetEvents: OK [%v] count=%d\n", d3, len(events))
	}

	t0 = time.Now()
	ts, err := cli.Query(ctx, "Timestamp", "Now", hash)
	d4 := time.Since(t0)
	if err != nil {
		fmt.Printf("  Query(Timestamp.Now): FAIL (%v) [%v]\n", err, d4)
	} else {
		fmt.Printf("  Query(Timestamp.Now): OK [%v] value=%v\n", d4, ts)
	}

	t0 = time.Now()
	for i := 0; i < iterations; i++ {
		if _, err := cli.GetBlockHash(ctx, height+uint64(i)); err != nil {
			fmt.Printf("  sequential GetBlockHash: FAIL at height %d: %v\n", height+uint64(i), err)
			break
		}
	}
	d5 := time.Since(t0)
	fmt.Printf("  %d consecutive GetBlockHash: [%v] avg=%v\n", iterations, d5, d5/time.Duration(iterations))

	return nil
}
