// Command migrate applies (or resets) the relational and analytical
// stores' schema migrations, independent of the gateway server process
// (spec §4.11's "Ordered, idempotent schema evolution").
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	gwconfig "github.com/anotherai/gateway/runtime/config"
	"github.com/anotherai/gateway/runtime/store/analytical"
	"github.com/anotherai/gateway/runtime/store/relational"
)

func main() {
	reset := flag.Bool("reset", false, "drop and reapply every migration instead of just applying pending ones")
	envFile := flag.String("env-file", "", "optional .env file to load")
	flag.Parse()

	cfg, err := gwconfig.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *reset && !cfg.IsLocalPostgres() {
		fmt.Fprintln(os.Stderr, "migrate: --reset refused, POSTGRES_DSN does not point at a local database")
		os.Exit(1)
	}

	if *reset {
		if err := relational.Reset(cfg.PostgresDSN); err != nil {
			fmt.Fprintln(os.Stderr, "migrate: reset relational store:", err)
			os.Exit(1)
		}
		if err := analytical.Reset(analytical.ResolveDSN(cfg.PostgresDSN)); err != nil {
			fmt.Fprintln(os.Stderr, "migrate: reset analytical store:", err)
			os.Exit(1)
		}
		fmt.Println("migrate: reset complete")
		return
	}

	ctx := context.Background()

	relStore, err := relational.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate: apply relational migrations:", err)
		os.Exit(1)
	}
	relStore.Close()

	anaStore, err := analytical.Open(ctx, analytical.ResolveDSN(cfg.PostgresDSN))
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate: apply analytical migrations:", err)
		os.Exit(1)
	}
	anaStore.Close()

	fmt.Println("migrate: up to date")
}
