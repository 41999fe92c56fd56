package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"sqlitez/pkg/sqlitez/read"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
)

var (
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
)

func initColors(disabled bool) {
	if disabled {
		color.NoColor = true
	}
}

func printSuccess(w io.Writer, format string, args ...interface{}) {
	_, _ = green.Fprintf(w, "✓ "+format+"\n", args...)
}

func printWarning(w io.Writer, format string, args ...interface{}) {
	_, _ = yellow.Fprintf(w, "⚠ "+format+"\n", args...)
}

func printError(msg string) {
	_, _ = red.Fprintln(os.Stderr, "✗ "+msg)
}

// printTable writes rows as an aligned table with a bold header.
func printTable(w io.Writer, res *read.Result) {
	rows, cols := res.Rows, res.Columns
	if len(rows) == 0 {
		_, _ = dim.Fprintln(w, "(no rows)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = bold.Fprintln(tw, strings.Join(cols, "\t"))
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = formatCell(row[c])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
	_, _ = dim.Fprintf(w, "(%d rows)\n", len(rows))
}

// printJSON writes one JSON object per row.
func printJSON(w io.Writer, res *read.Result) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	for _, row := range res.Rows {
		out := make(map[string]interface{}, len(row))
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			out[k] = v
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	return nil
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
