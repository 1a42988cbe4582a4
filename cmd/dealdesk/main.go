package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"dealdesk/internal/app"
	"dealdesk/internal/config"
	"dealdesk/internal/logger"
	"dealdesk/internal/pipeline"
	"dealdesk/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	must(run(cfg, os.Args[1], os.Args[2:]))
}

// run owns the opened app so its deferred Close runs before main exits.
func run(cfg config.Config, cmd string, args []string) error {
	log := logger.New(logger.Options{Service: "dealdesk", Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})
	ctx := context.Background()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "setup":
		res, err := a.Setup(ctx)
		if err != nil {
			return err
		}
		return printJSON(res)
	case "intake:expand":
		exp, err := a.Expander()
		if err != nil {
			return err
		}
		res, err := exp.Run(ctx)
		if err != nil {
			return err
		}
		return printJSON(res)
	case "intake:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "deal file (.txt, .eml, .html, .xlsx, .pdf)")
		_ = fs.Parse(args)
		if strings.TrimSpace(*file) == "" {
			return fmt.Errorf("--file is required")
		}
		svc, err := a.Importer()
		if err != nil {
			return err
		}
		res, err := svc.ImportFile(ctx, *file)
		if err != nil {
			return err
		}
		return printJSON(res)
	case "transfer:run":
		res, err := a.RunTransfer(ctx, time.Now())
		if perr := printJSON(res); err == nil {
			err = perr
		}
		return err
	case "transfer:reset":
		trig, err := a.Trigger()
		if err != nil {
			return err
		}
		if err := trig.Reset(); err != nil {
			return err
		}
		return printJSON(map[string]any{"state": trig.State()})
	case "transfer:resolve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.String("run", "", "failed transfer run id")
		_ = fs.Parse(args)
		if strings.TrimSpace(*runID) == "" {
			runs, err := a.DB.ListUnresolved()
			if err != nil {
				return err
			}
			return printJSON(runs)
		}
		svc, err := a.Transfer()
		if err != nil {
			return err
		}
		cleared, err := svc.Resolve(ctx, *runID)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"run": *runID, "cleared": cleared})
	case "reference:join":
		svc, err := a.Join()
		if err != nil {
			return err
		}
		res, err := svc.Run(ctx)
		if err != nil {
			return err
		}
		return printJSON(res)
	case "ledger:export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(args)
		if strings.TrimSpace(*out) == "" {
			return fmt.Errorf("--out is required")
		}
		ledger, err := a.Workbook.Table(cfg.LedgerSheet)
		if err != nil {
			return err
		}
		records, err := pipeline.ReadLedger(ctx, ledger, cfg.LedgerStartRow)
		if err != nil {
			return err
		}
		if err := pipeline.ExportLedgerToXLSX(records, *out); err != nil {
			return err
		}
		return printJSON(map[string]any{"rows": len(records), "out": *out})
	case "runs:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 20, "max runs")
		_ = fs.Parse(args)
		runs, err := a.DB.ListRuns(*limit)
		if err != nil {
			return err
		}
		return printJSON(runs)
	case "watch":
		return watcher.NewService(a).Run(ctx)
	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usage() {
	fmt.Println("usage: dealdesk <command>")
	fmt.Println("commands:")
	fmt.Println("  setup")
	fmt.Println("  intake:expand")
	fmt.Println("  intake:import --file=./deals.eml")
	fmt.Println("  transfer:run")
	fmt.Println("  transfer:reset")
	fmt.Println("  transfer:resolve [--run=<run id>]")
	fmt.Println("  reference:join")
	fmt.Println("  ledger:export --out=./out/ledger.xlsx")
	fmt.Println("  runs:list [--limit=20]")
	fmt.Println("  watch")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
