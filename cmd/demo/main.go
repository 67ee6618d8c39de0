// Command demo exercises the dispatch client against whatever workers
// answer multicast discovery, falling back to local execution if none do.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/loadshard/parallelogram/internal/config"
	"github.com/loadshard/parallelogram/internal/dispatch"
	"github.com/loadshard/parallelogram/internal/observability"
	"github.com/loadshard/parallelogram/internal/ops"
	"github.com/loadshard/parallelogram/internal/workerfuncs"
)

func main() {
	groupAddr := flag.String("group-addr", "224.3.29.71:10000", "UDP multicast discovery group")
	n := flag.Int("n", 20, "size of the demo input list")
	flag.Parse()

	logger := observability.NewLogger("parallelogram-demo", "0.1.0", os.Stdout)
	metrics := observability.NewMetrics()

	cfg := config.DefaultConfig()
	cfg.MulticastGroupAddr = *groupAddr

	registry := ops.NewRegistry()
	workerfuncs.RegisterBuiltins(registry)

	engine := dispatch.NewEngine(cfg, logger, metrics)
	client := dispatch.NewClient(engine, registry)

	data := make([]any, *n)
	for i := range data {
		data[i] = i
	}

	mapped, err := client.Map("add_constant", []any{1}, data)
	if err != nil {
		logger.Fatal(err, "map failed")
	}
	fmt.Printf("mapped: %v\n", mapped)

	filtered, err := client.Filter("is_even", nil, mapped)
	if err != nil {
		logger.Fatal(err, "filter failed")
	}
	fmt.Printf("filtered: %v\n", filtered)

	total, err := client.Reduce("sum", nil, filtered)
	if err != nil {
		logger.Fatal(err, "reduce failed")
	}
	fmt.Printf("sum: %v\n", total)
}
