// Command convert snapshots a PostgreSQL experiment schema into a local
// SQLite file, preserving ids, row indices, and timestamps so the copy is
// interchangeable with the original.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"bazaar/internal/database"
	"bazaar/internal/logging"
)

var (
	dsn       = flag.String("dsn", "", "PostgreSQL connection string")
	schema    = flag.String("schema", "experiment", "Source schema name")
	output    = flag.String("output", "market.db", "Destination SQLite file")
	batchSize = flag.Int("batch-size", database.DefaultBatchSize, "Rows copied per batch")
	pretty    = flag.Bool("pretty", false, "Human-readable log output")
)

func main() {
	flag.Parse()
	logging.Init(logging.Config{PrettyFormat: *pretty})

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "usage: convert -dsn <postgres dsn> [-schema name] [-output file.db]")
		os.Exit(2)
	}

	src, err := database.OpenPostgres(*dsn, *schema, database.SchemaExisting)
	if err != nil {
		log.Fatal().Err(err).Msg("open source")
	}
	defer src.Close()

	dst, err := database.OpenSQLite(*output)
	if err != nil {
		log.Fatal().Err(err).Msg("open destination")
	}
	defer dst.Close()

	if err := database.Convert(src, dst, *batchSize); err != nil {
		log.Fatal().Err(err).Msg("conversion failed")
	}
	log.Info().Str("schema", *schema).Str("output", *output).Msg("conversion complete")
}
