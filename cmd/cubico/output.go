package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/v09-software/cubico/internal/engine"
)

type table struct {
	header []string
	rows   [][]any
}

func cubeTable(c *engine.Cube, limit int) table {
	t := table{header: c.DimensionNames()}
	n := c.NbrOfRecords()
	if limit > 0 {
		n = min(n, limit)
	}
	for i := 0; i < n; i++ {
		t.rows = append(t.rows, []any(c.Record(i)))
	}
	return t
}

// render writes t to stdout. "auto" picks an aligned table on a terminal
// and CSV when piped.
func render(t table, format string) error {
	tty := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	switch format {
	case "csv":
		return writeCSV(os.Stdout, t)
	case "table":
		return writeTable(colorable.NewColorableStdout(), t, tty)
	case "auto":
		if tty {
			return writeTable(colorable.NewColorableStdout(), t, true)
		}
		return writeCSV(os.Stdout, t)
	default:
		return fmt.Errorf("unknown format %q (auto/table/csv)", format)
	}
}

var printer = message.NewPrinter(language.English)

// displayCell formats numbers with digit grouping for humans.
func displayCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return printer.Sprintf("%d", int64(x))
		}
		return printer.Sprintf("%.4f", x)
	case int:
		return printer.Sprintf("%d", x)
	default:
		return fmt.Sprint(x)
	}
}

// csvCell keeps full precision and leaves absent values empty.
func csvCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func writeTable(w io.Writer, t table, bold bool) error {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	writeLine(tw, t.header)
	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = displayCell(v)
		}
		writeLine(tw, cells)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	// the header is styled after alignment so escape codes take no width
	head, rest, _ := bytes.Cut(buf.Bytes(), []byte("\n"))
	if bold {
		head = append(append([]byte("\x1b[1m"), head...), "\x1b[0m"...)
	}
	if _, err := fmt.Fprintf(w, "%s\n", head); err != nil {
		return err
	}
	_, err := w.Write(rest)
	return err
}

func writeLine(w io.Writer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			io.WriteString(w, "\t")
		}
		io.WriteString(w, c)
	}
	io.WriteString(w, "\n")
}

func writeCSV(w io.Writer, t table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header); err != nil {
		return err
	}
	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = csvCell(v)
		}
		if err := cw.Write(cells); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
