// Command shovel runs exactly one shovel process, selected by SHOVEL_NAME.
// Running one process per shovel (rather than one binary juggling all of
// them) matches spec.md §5's isolation model: each shovel owns its own
// chain/warehouse handles and write buffer, with no cross-shovel shared
// memory.
//
// Grounded on the teacher's main.go: env-var-with-default config read at
// the top, log.Printf progress lines, SIGINT/SIGTERM-driven graceful
// shutdown via context cancellation.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/substrate-warehouse/shovels/internal/blockmeta"
	"github.com/substrate-warehouse/shovels/internal/buffer"
	"github.com/substrate-warehouse/shovels/internal/chain"
	"github.com/substrate-warehouse/shovels/internal/config"
	"github.com/substrate-warehouse/shovels/internal/market"
	"github.com/substrate-warehouse/shovels/internal/shovel"
	"github.com/substrate-warehouse/shovels/internal/shovels/alphatotao"
	"github.com/substrate-warehouse/shovels/internal/shovels/blocktimestamp"
	"github.com/substrate-warehouse/shovels/internal/shovels/dailybalance"
	"github.com/substrate-warehouse/shovels/internal/shovels/dailystake"
	"github.com/substrate-warehouse/shovels/internal/shovels/events"
	"github.com/substrate-warehouse/shovels/internal/shovels/extrinsics"
	"github.com/substrate-warehouse/shovels/internal/shovels/hotkeyownermap"
	"github.com/substrate-warehouse/shovels/internal/shovels/stakemap"
	"github.com/substrate-warehouse/shovels/internal/shovels/subnets"
	"github.com/substrate-warehouse/shovels/internal/shovels/taoprice"
	"github.com/substrate-warehouse/shovels/internal/shovels/validators"
	"github.com/substrate-warehouse/shovels/internal/warehouse"
)

func main() {
	cfg := config.FromEnv()
	if cfg.ShovelName == "" {
		log.Fatal("SHOVEL_NAME is required (one of: block_timestamps, alpha_to_tao, daily_balance, daily_stake, hotkey_owner_map, events, extrinsics, stake_double_map, subnets, validators, tao_price)")
	}

	log.Printf("[%s] starting, archive nodes=%q clickhouse=%s:%d/%s", cfg.ShovelName, cfg.ArchiveNodes, cfg.ClickHouseHost, cfg.ClickHousePort, cfg.ClickHouseDatabase)

	chainClient, err := chain.NewClientFromEnv("SUBSTRATE_ARCHIVE_NODES", cfg.ArchiveNodeURL)
	if err != nil {
		log.Fatalf("chain client: %v", err)
	}
	defer chainClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wh, err := warehouse.Connect(ctx, warehouse.Config{
		Host:     cfg.ClickHouseHost,
		Port:     cfg.ClickHousePort,
		Database: cfg.ClickHouseDatabase,
		User:     cfg.ClickHouseUser,
		Password: cfg.ClickHousePassword,
	})
	if err != nil {
		log.Fatalf("warehouse connect: %v", err)
	}
	defer wh.Close()

	if err := shovel.EnsureCheckpointTable(ctx, wh); err != nil {
		log.Fatalf("ensure checkpoint table: %v", err)
	}

	buf := buffer.New(func(ctx context.Context, table string) (buffer.Batch, error) {
		return wh.PrepareBatch(ctx, table)
	})
	buf.Debug = cfg.Debug

	proc, runtimeCfg, createTableSQL, err := build(cfg, chainClient, wh, buf)
	if err != nil {
		log.Fatalf("build shovel %q: %v", cfg.ShovelName, err)
	}
	runtimeCfg.StartBlock = cfg.StartBlock

	if createTableSQL != "" {
		if err := wh.Execute(ctx, createTableSQL); err != nil {
			log.Fatalf("create table for %q: %v", cfg.ShovelName, err)
		}
	}

	rt := shovel.NewRuntime(proc, chainClient, wh, buf, runtimeCfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("[%s] shutdown signal received", cfg.ShovelName)
		cancel()
	}()

	flushDone := make(chan error, 1)
	go func() {
		flushDone <- buf.FlushLoop(ctx, func() {
			log.Printf("[%s] flush cycle starting", cfg.ShovelName)
		}, func(tables, rows int) {
			if rows > 0 {
				log.Printf("[%s] flushed %d table(s), %d row(s)", cfg.ShovelName, tables, rows)
			}
		})
	}()

	runErr := rt.Run(ctx)
	cancel()
	if err := <-flushDone; err != nil {
		log.Fatalf("[%s] fatal flush error: %v", cfg.ShovelName, err)
	}
	if runErr != nil {
		log.Fatalf("[%s] fatal: %v", cfg.ShovelName, runErr)
	}
	log.Printf("[%s] stopped", cfg.ShovelName)
}

// build wires the Processor named by cfg.ShovelName along with its
// dependency-gate configuration and upfront CREATE TABLE statement. Shovels
// whose schema is derived at runtime (events, extrinsics) return an empty
// createTableSQL since their table name and columns aren't known until the
// first row of each distinct shape is seen.
//
// Every shovel but block_timestamps itself (its own source of truth)
// resolves its block's (hash, timestamp) through a shared blockmeta.Cache
// backed by the block_timestamps table, rather than querying the chain
// directly, matching every original_source shovel's use of the shared
// block_metadata helper. tao_price is the one exception: a low-frequency,
// external-API-bound shovel where a per-call chain round trip is negligible
// next to the CoinMarketCap request it already makes.
func build(cfg config.Config, chainClient *chain.Client, wh *warehouse.Client, buf *buffer.Buffer) (shovel.Processor, shovel.Config, string, error) {
	meta := blockmeta.New(wh, chainClient, blocktimestamp.TableName)

	switch cfg.ShovelName {
	case blocktimestamp.ShovelName:
		return blocktimestamp.New(chainClient, buf), shovel.Config{}, blocktimestamp.CreateTableSQL(wh.Database()), nil

	case alphatotao.ShovelName:
		return alphatotao.New(chainClient, buf, meta), shovel.Config{}, alphatotao.CreateTableSQL(wh.Database()), nil

	case dailybalance.ShovelName:
		return dailybalance.New(chainClient, buf, meta, cfg.SkipInterval), shovel.Config{}, dailybalance.CreateTableSQL(wh.Database()), nil

	case dailystake.ShovelName:
		return dailystake.New(chainClient, buf, meta, cfg.SkipInterval), shovel.Config{}, dailystake.CreateTableSQL(wh.Database()), nil

	case hotkeyownermap.ShovelName:
		return hotkeyownermap.New(chainClient, buf, meta), shovel.Config{}, hotkeyownermap.CreateTableSQL(wh.Database()), nil

	case events.ShovelName:
		return events.New(chainClient, wh, buf, meta), shovel.Config{}, "", nil

	case extrinsics.ShovelName:
		return extrinsics.New(chainClient, wh, buf, meta), shovel.Config{}, "", nil

	case stakemap.ShovelName:
		return stakemap.New(chainClient, buf, meta), shovel.Config{
			Dependencies: []string{events.ShovelName, hotkeyownermap.ShovelName},
		}, stakemap.CreateTableSQL(wh.Database()), nil

	case subnets.ShovelName:
		return subnets.New(chainClient, wh, buf, meta), shovel.Config{
			Dependencies: []string{extrinsics.ShovelName, stakemap.ShovelName, hotkeyownermap.ShovelName},
		}, subnets.CreateTableSQL(wh.Database()), nil

	case validators.ShovelName:
		return validators.New(chainClient, wh, buf, meta, cfg.SkipInterval), shovel.Config{}, validators.CreateTableSQL(wh.Database()), nil

	case taoprice.ShovelName:
		priceClient := market.NewClient(cfg.CMCToken)
		return taoprice.New(chainClient, priceClient, buf), shovel.Config{}, taoprice.CreateTableSQL(wh.Database()), nil

	default:
		return nil, shovel.Config{}, "", fmt.Errorf("unknown shovel name %q", cfg.ShovelName)
	}
}
