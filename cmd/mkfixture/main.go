// mkfixture generates a synthetic HIS snapshot with injected revenue leakage
// and bulk-loads it into Postgres, or writes its visit features to Parquet.
// Usage: go run ./cmd/mkfixture --dsn $DATABASE_URL --visits 2000 --leak-rate 0.08
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/sktmbtkr01/his-quasar-production/internal/db"
	"github.com/sktmbtkr01/his-quasar-production/internal/features"
	"github.com/sktmbtkr01/his-quasar-production/internal/fixture"
	"github.com/sktmbtkr01/his-quasar-production/internal/logging"
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
	"github.com/sktmbtkr01/his-quasar-production/internal/parquetio"
	"github.com/sktmbtkr01/his-quasar-production/internal/store"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres connection string")
	visits := flag.Int("visits", 1000, "number of visits to generate")
	days := flag.Int("days", 30, "trailing days the visits span")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	leakRate := flag.Float64("leak-rate", 0.08, "share of visits with an injected leak")
	migrate := flag.Bool("migrate", true, "apply migrations before loading")
	parquetOut := flag.String("parquet", "", "write visit features here instead of loading Postgres")
	flag.Parse()

	log := logging.Setup("text", "info")
	ds := fixture.Generate(fixture.Options{
		Visits:   *visits,
		Days:     *days,
		Seed:     *seed,
		LeakRate: *leakRate,
	})
	printLeaks(ds)

	if *parquetOut != "" {
		bills := make([]model.Billing, len(ds.Billings))
		for i, b := range ds.Billings {
			bills[i] = *b
		}
		records := features.PrepareVisitData(bills)
		if err := parquetio.WriteFeatures(*parquetOut, records); err != nil {
			fmt.Fprintf(os.Stderr, "write parquet: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %d visit feature rows to %s\n", len(records), *parquetOut)
		return
	}

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "--dsn or DATABASE_URL is required")
		os.Exit(1)
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, *dsn, 4)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if *migrate {
		if err := db.ApplyMigrations(ctx, pool, log); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
	}
	s := store.New(pool, store.DefaultBatchSize, log)
	if err := fixture.Load(ctx, s, ds, log); err != nil {
		fmt.Fprintf(os.Stderr, "load: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d visits (%d bills, %d prescriptions, %d tests) seed=%d\n",
		*visits, len(ds.Billings), len(ds.Prescriptions), len(ds.Tests), *seed)
}

func printLeaks(ds *fixture.Dataset) {
	counts := map[fixture.Leak]int{}
	for _, l := range ds.Leaks {
		counts[l]++
	}
	names := make([]string, 0, len(counts))
	for l := range counts {
		names = append(names, string(l))
	}
	sort.Strings(names)
	fmt.Println("Injected leaks:")
	for _, n := range names {
		fmt.Printf("  %-20s %d\n", n, counts[fixture.Leak(n)])
	}
}
