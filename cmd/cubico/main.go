package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"

	"github.com/v09-software/cubico/internal/engine"
	"github.com/v09-software/cubico/internal/ingest"
)

var (
	filePath string
	format   string
	where    []string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "cubico",
	Short: "Query a CSV file as an in-memory data cube",
	Long: `cubico loads a CSV file (optionally gzip, zstd, lz4 or snappy compressed)
into a column-typed cube and runs one query against it.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetOutput(os.Stderr)
		if verbose {
			log.SetLevel(log.INFO)
		} else {
			log.SetLevel(log.WARN)
		}
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "List dimensions with their types and value counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cube, err := loadCube()
		if err != nil {
			return err
		}
		t := table{header: []string{"dimension", "type", "values", "distinct"}}
		for _, d := range cube.Dimensions() {
			t.rows = append(t.rows, []any{d.Name, d.DataType.String(), d.Stats.NonNullCount, d.Stats.DistinctCount})
		}
		return render(t, format)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <dimension>...",
	Short: "Show summary statistics of numeric dimensions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		approximate, _ := cmd.Flags().GetBool("approximate")

		cube, err := loadCube()
		if err != nil {
			return err
		}
		t := table{header: []string{"dimension", "count", "sum", "min", "max", "average", "stddev"}}
		for _, name := range args {
			row, err := statsRow(cube, name, approximate)
			if err != nil {
				return err
			}
			t.rows = append(t.rows, row)
		}
		return render(t, format)
	},
}

var sliceCmd = &cobra.Command{
	Use:   "slice",
	Short: "Print the records matching every --where criterion",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cube, err := loadCube()
		if err != nil {
			return err
		}
		out, err := filter(cube)
		if err != nil {
			return err
		}
		return render(cubeTable(out, limit), format)
	},
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Group records and compute measures",
	Example: `  cubico aggregate -f sales.csv --group-by country --measure sum:income --measure count:*
  cubico aggregate -f sales.csv.gz -w "year>=2020" --group-by country,region --measure avg:income`,
	RunE: func(cmd *cobra.Command, args []string) error {
		groupBy, _ := cmd.Flags().GetStringSlice("group-by")
		specs, _ := cmd.Flags().GetStringArray("measure")

		measures := make([]engine.Measure, len(specs))
		for i, spec := range specs {
			m, err := parseMeasure(spec)
			if err != nil {
				return err
			}
			measures[i] = m
		}

		cube, err := loadCube()
		if err != nil {
			return err
		}
		src, err := filter(cube)
		if err != nil {
			return err
		}
		out, err := src.Aggregate(groupBy, measures...)
		if err != nil {
			return err
		}
		return render(cubeTable(out, 0), format)
	},
}

func loadCube() (*engine.Cube, error) {
	if filePath == "" {
		return nil, fmt.Errorf("no input file, use --file")
	}
	return ingest.LoadCSV(filePath)
}

func filter(cube *engine.Cube) (*engine.Cube, error) {
	if len(where) == 0 {
		return cube, nil
	}
	criteria := make([]engine.Criterion, len(where))
	for i, expr := range where {
		cr, err := engine.ParseCriterion(expr)
		if err != nil {
			return nil, err
		}
		criteria[i] = cr
	}
	return cube.Slice(criteria...)
}

// parseMeasure reads "kind:dimension[=name]", e.g. "sum:income" or
// "count:*=rows".
func parseMeasure(spec string) (engine.Measure, error) {
	spec, name, _ := strings.Cut(spec, "=")
	kind, dim, ok := strings.Cut(spec, ":")
	if !ok {
		return engine.Measure{}, fmt.Errorf("%w: measure %q, want kind:dimension", engine.ErrUnknownAggregation, spec)
	}
	m, err := engine.NewMeasure(kind, dim)
	if err != nil {
		return m, err
	}
	if name != "" {
		m = m.As(name)
	}
	return m, nil
}

func statsRow(cube *engine.Cube, name string, approximate bool) ([]any, error) {
	sum, err := cube.Sum(name)
	if err != nil {
		return nil, err
	}
	count, _ := cube.NonNullCount(name)
	lo, _ := cube.Min(name)
	hi, _ := cube.Max(name)
	avg, _ := cube.Average(name)
	sd, _ := cube.StdDev(name, approximate)
	return []any{name, count, sum, lo, hi, avg, sd}, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&filePath, "file", "f", "", "CSV file (.csv, .gz, .zst, .lz4, .sz)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "auto", "Output format (auto/table/csv)")
	rootCmd.PersistentFlags().StringArrayVarP(&where, "where", "w", nil, `Filter criterion such as "country=AR" or "income>=100" (repeatable)`)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	statsCmd.Flags().Bool("approximate", false, "Use the one-pass standard deviation")

	sliceCmd.Flags().Int("limit", 0, "Maximum records to print (0 for all)")

	aggregateCmd.Flags().StringSlice("group-by", nil, "Dimensions to group by (comma-separated)")
	aggregateCmd.Flags().StringArray("measure", nil, "Measure as kind:dimension[=name] (repeatable)")
	aggregateCmd.MarkFlagRequired("group-by")
	aggregateCmd.MarkFlagRequired("measure")

	rootCmd.AddCommand(schemaCmd, statsCmd, sliceCmd, aggregateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
