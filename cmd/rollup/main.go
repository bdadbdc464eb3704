// Command rollup prints the costing summary of a form read as JSON from a
// file or stdin. It talks to no backend.
//
//	rollup -f form.json
//	cat form.json | rollup -format text
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"

	"costing/internal/core"
	"costing/internal/rollup"
)

func main() {
	file := flag.String("f", "-", "form JSON file, - for stdin")
	format := flag.String("format", "json", "output format: json or text")
	validate := flag.Bool("validate", false, "fail when the form would be rejected by a save")
	flag.Parse()

	if err := run(*file, *format, *validate, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "rollup:", err)
		os.Exit(1)
	}
}

func run(file, format string, validate bool, stdin io.Reader, out io.Writer) error {
	in := stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read form: %w", err)
	}
	var form core.CostingForm
	if err := json.Unmarshal(data, &form); err != nil {
		return fmt.Errorf("decode form: %w", err)
	}
	if validate {
		if err := form.Validate(); err != nil {
			return err
		}
	}

	res := rollup.Compute(form)
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "text":
		return writeText(out, res)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func writeText(out io.Writer, r core.RollupResult) error {
	rows := []struct {
		label string
		value string
	}{
		{"Invoice total", core.FormatMoney(r.InvoiceTotal)},
		{"Tax", core.FormatMoney(r.TaxAmount)},
		{"Gross revenue", core.FormatMoney(r.GrossRevenue)},
		{"Trainer fees", core.FormatMoney(r.TrainerTotal)},
		{"Coordinator fee", core.FormatMoney(r.CoordinatorTotal)},
		{"Expenses", core.FormatMoney(r.ExpensesTotal)},
		{"Profit before marketing", core.FormatMoney(r.ProfitBeforeMarketing)},
		{"Marketing", core.FormatMoney(r.MarketingAmount)},
		{"Final profit", core.FormatMoney(r.FinalProfit)},
		{"Margin", r.ProfitMarginPercent.StringFixed(2) + "%"},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(out, "%-24s %18s\n", row.label, row.value); err != nil {
			return err
		}
	}
	return nil
}
