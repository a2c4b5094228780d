// Command reset_checkpoint deletes a shovel's durable checkpoint row so it
// restarts from its configured start block on next run.
//
// Adapted from the teacher's reset_checkpoint tool (same one-shot purpose:
// delete a named checkpoint row), generalized from a pgx/Postgres
// indexing_checkpoints table to the fleet's ClickHouse shovel_checkpoints
// table and its shovel-name (not service-name) key.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/substrate-warehouse/shovels/internal/config"
	"github.com/substrate-warehouse/shovels/internal/warehouse"
)

func main() {
	var shovelName string
	flag.StringVar(&shovelName, "shovel", "", "name of the shovel whose checkpoint to reset, e.g. events")
	flag.Parse()

	if shovelName == "" {
		fmt.Fprintln(os.Stderr, "usage: reset_checkpoint -shovel <name>")
		os.Exit(2)
	}

	cfg := config.FromEnv()
	ctx := context.Background()

	wh, err := warehouse.Connect(ctx, warehouse.Config{
		Host:     cfg.ClickHouseHost,
		Port:     cfg.ClickHousePort,
		Database: cfg.ClickHouseDatabase,
		User:     cfg.ClickHouseUser,
		Password: cfg.ClickHousePassword,
	})
	if err != nil {
		log.Fatalf("unable to connect to warehouse: %v", err)
	}
	defer wh.Close()

	rows, err := wh.Query(ctx, "SELECT count() FROM "+warehouse.QuoteIdentifier("shovel_checkpoints")+" WHERE shovel = ?", shovelName)
	if err != nil {
		log.Fatalf("failed to check checkpoint: %v", err)
	}
	var existed uint64
	if rows.Next() {
		if err := rows.Scan(&existed); err != nil {
			rows.Close()
			log.Fatalf("failed to scan checkpoint count: %v", err)
		}
	}
	rows.Close()

	if err := wh.Execute(ctx, "ALTER TABLE "+warehouse.QuoteIdentifier("shovel_checkpoints")+" DELETE WHERE shovel = ?", shovelName); err != nil {
		log.Fatalf("failed to delete checkpoint: %v", err)
	}

	if existed == 0 {
		fmt.Printf("No checkpoint found for %q. It might have already been reset or never existed.\n", shovelName)
	} else {
		fmt.Printf("Successfully deleted checkpoint for %q. The shovel will restart from its configured start block on next run.\n", shovelName)
	}
}
