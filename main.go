package main

import (
	"context"
	"fmt"
	"os"

	"github.com/GiGurra/boa/pkg/boa"
)

// CommonParams are shared by every command.
type CommonParams struct {
	Config  string `descr:"Path to config file (default ~/.subscription-tracker/config.yaml)" optional:"true"`
	Verbose bool   `descr:"Enable debug logging" optional:"true"`
}

// StoreParams select where transactions and subscriptions live.
type StoreParams struct {
	Database string `descr:"Postgres connection string, in-memory store if empty" env:"DATABASE_URL" optional:"true"`
	User     string `descr:"User the data belongs to" default:"local"`
}

// InputParams describe a file to import or parse.
type InputParams struct {
	Source     string `descr:"Data source type, guessed from the file when empty" alts:"csv,xlsx,simple-json,statement,pdf,ocr" optional:"true"`
	Currency   string `descr:"ISO currency code of the amounts" optional:"true"`
	DateFormat string `descr:"Date order used in statement text" alts:"US,EU,ISO" optional:"true"`
}

type ImportParams struct {
	CommonParams
	StoreParams
	InputParams
	File string `descr:"Local path or gs://bucket/object, optionally prefixed with a source (csv:export.txt)" positional:"true"`
}

type ParseParams struct {
	CommonParams
	InputParams
	File string `descr:"Statement document, local path or gs://bucket/object" positional:"true"`
}

type DetectParams struct {
	CommonParams
	StoreParams
	InputParams
	File    string   `descr:"Import this file before detecting (required with the in-memory store)" positional:"true" optional:"true"`
	Output  string   `descr:"Output format" alts:"table,json" default:"table"`
	Show    string   `descr:"Which subscriptions to show" alts:"active,cancelled,pending,all" default:"active"`
	Tags    []string `descr:"Only show subscriptions with any of these tags" optional:"true"`
	Sort    string   `descr:"Sort field" alts:"name,description,amount,next" default:"name"`
	SortDir string   `descr:"Sort direction" alts:"asc,desc" default:"asc"`
}

type AddParams struct {
	CommonParams
	StoreParams
	Merchant string `descr:"Merchant or service name"`
	Amount   string `descr:"Amount charged per period"`
	Interval string `descr:"Billing interval" alts:"weekly,monthly,quarterly,annual" default:"monthly"`
	Currency string `descr:"ISO currency code" optional:"true"`
	Guide    string `descr:"Slug of the cancellation guide to link" optional:"true"`
	Next     string `descr:"Next expected charge (YYYY-MM-DD), one interval from now if empty" optional:"true"`
}

type ServeParams struct {
	CommonParams
	StoreParams
	Addr string `descr:"Listen address" env:"ADDR" default:":8080"`
}

func main() {
	boa.NewCmdT[boa.NoParams]("subscription-tracker").
		WithShort("Track recurring subscriptions from bank transactions").
		WithLong("Imports bank exports and statement documents, detects recurring charges per merchant and predicts the next charge date.").
		WithSubCmds(
			boa.NewCmdT[ImportParams]("import").
				WithShort("Import transactions from a file and re-run detection").
				WithRunFunc(func(params *ImportParams) {
					exitOnErr(runImport(context.Background(), os.Stdout, params))
				}),
			boa.NewCmdT[ParseParams]("parse").
				WithShort("Print the transactions found in a statement without storing them").
				WithRunFunc(func(params *ParseParams) {
					exitOnErr(runParse(context.Background(), os.Stdout, params))
				}),
			boa.NewCmdT[DetectParams]("detect").
				WithShort("Recalculate and list subscriptions").
				WithRunFunc(func(params *DetectParams) {
					exitOnErr(runDetect(context.Background(), os.Stdout, params))
				}),
			boa.NewCmdT[AddParams]("add").
				WithShort("Add a subscription by hand").
				WithRunFunc(func(params *AddParams) {
					exitOnErr(runAdd(context.Background(), os.Stdout, params))
				}),
			boa.NewCmdT[ServeParams]("serve").
				WithShort("Serve the HTTP API").
				WithRunFunc(func(params *ServeParams) {
					exitOnErr(runServe(params))
				}),
		).
		Run()
}

func exitOnErr(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
