// Command reconcile normalizes already extracted purchase-order JSON without
// calling a model. It reads a file argument or stdin and prints canonical records.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/po-extractor/internal/app"
	"github.com/joseph-ayodele/po-extractor/internal/common"
	"github.com/joseph-ayodele/po-extractor/internal/profiles"
	"github.com/joseph-ayodele/po-extractor/internal/reconcile"
)

func main() {
	customer := flag.String("customer", "", "customer code (required)")
	requireFields := flag.Bool("strict", false, "warn about missing required fields")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: reconcile -customer CODE [file.json]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: loading .env: %v\n", err)
	}
	cfg := common.LoadConfig()
	logger := app.NewLogger(os.Stderr, common.LogConfig{Format: "text", Level: cfg.Log.Level})

	if *customer == "" {
		flag.Usage()
		os.Exit(2)
	}

	var in io.Reader = os.Stdin
	if flag.NArg() > 0 {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: reading input: %v\n", err)
		os.Exit(1)
	}

	reg, err := profiles.Load(cfg.Reconcile.ProfilesFile, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	profile, err := reg.Lookup(*customer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v (known: %v)\n", err, reg.Codes())
		os.Exit(2)
	}

	opts := reconcile.Options{
		QuantityPrecision: cfg.Reconcile.QuantityPrecision,
		MatchThreshold:    cfg.Reconcile.MatchThreshold,
		KeepAddressOnMiss: cfg.Reconcile.KeepAddressOnMiss,
		RequireFields:     *requireFields,
	}
	outcomes, err := reconcile.New(opts, logger).ReconcileDocument(string(raw), profile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(3)
	}

	for _, o := range outcomes {
		for _, w := range o.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reconcile.Records(outcomes)); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
