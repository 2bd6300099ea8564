package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/gridkit/gridkit/pkg/config"
	"github.com/gridkit/gridkit/pkg/logger"
	"github.com/gridkit/gridkit/pkg/models"
	"github.com/gridkit/gridkit/pkg/table"
)

var version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "gridkit",
		Short: "GridKit - headless typed tabular data engine",
		Long: `GridKit computes derived row sequences from records and declarative state:
filters, multi-key sorting, hierarchical grouping with aggregates, and
pagination, without any UI attached.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("GridKit v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newViewCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newViewCommand builds the view command: load a CSV, apply the declared
// state, print the computed row model.
func newViewCommand() *cobra.Command {
	var (
		csvPath    string
		configPath string
		sortFlags  []string
		groupBy    []string
		filters    []string
		global     string
		pageSize   int
		page       int
		totals     bool
	)

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Compute and print a row model from a CSV file",
		Example: `  gridkit view --csv sales.csv --sort amount:desc --group region
  gridkit view --csv sales.csv --filter "amount=>100" --global west`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			v.SetEnvPrefix("GRIDKIT")
			v.AutomaticEnv()
			_ = v.BindPFlag("csv", cmd.Flags().Lookup("csv"))
			_ = v.BindPFlag("config", cmd.Flags().Lookup("config"))

			cfg := config.Default()
			if path := v.GetString("config"); path != "" {
				loaded, err := config.LoadFromFile(path)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if err := logger.Init(cfg.Logging); err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			path := v.GetString("csv")
			if path == "" {
				return fmt.Errorf("--csv is required")
			}
			columns, records, err := loadCSV(path)
			if err != nil {
				return err
			}
			logger.Info("loaded records",
				zap.String("path", path), zap.Int("records", len(records)))

			cfg.Pagination.PageSize = pageSize
			tbl, err := table.New(table.Options{
				Columns: columns,
				Records: records,
				Config:  cfg,
			})
			if err != nil {
				return err
			}

			err = tbl.Update(func(s models.TableState) models.TableState {
				s.Sorting = parseSortFlags(sortFlags)
				s.ColumnFilters = parseFilterFlags(filters)
				if global != "" {
					s.GlobalFilter = &models.GlobalFilter{Query: global}
				}
				s.Grouping = groupBy
				s.ExpandedDefault = true
				s.Pagination = models.Pagination{PageIndex: page, PageSize: pageSize}
				return s
			})
			if err != nil {
				return err
			}

			render(cmd.OutOrStdout(), tbl)
			if totals {
				renderTotals(cmd.OutOrStdout(), tbl)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file to load (header row required)")
	cmd.Flags().StringVar(&configPath, "config", "", "engine config file (YAML)")
	cmd.Flags().StringArrayVar(&sortFlags, "sort", nil, "sort key column[:desc], repeatable")
	cmd.Flags().StringArrayVar(&groupBy, "group", nil, "grouping column, repeatable")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "column filter col=query, repeatable")
	cmd.Flags().StringVar(&global, "global", "", "global filter query")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "page size, 0 disables pagination")
	cmd.Flags().IntVar(&page, "page", 0, "page index")
	cmd.Flags().BoolVar(&totals, "totals", false, "print column totals")
	return cmd
}

// loadCSV reads a CSV file with a header row into string columns and
// records keyed by row ordinal. Numeric-looking cells stay strings; the
// engine's conversions handle numeric filters and aggregates.
func loadCSV(path string) ([]*models.Column, []*models.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("csv file %s is empty", path)
	}

	header := rows[0]
	columns := make([]*models.Column, len(header))
	for i, name := range header {
		columns[i] = models.NewColumn(name, models.FieldAccessor(name))
	}

	records := make([]*models.Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		data := make(map[string]interface{}, len(header))
		for j, name := range header {
			if j < len(row) {
				data[name] = row[j]
			}
		}
		records = append(records, models.NewRecordAt(i, data))
	}
	return columns, records, nil
}

// parseSortFlags parses repeated column[:desc] flags into sort keys.
func parseSortFlags(flags []string) []models.SortKey {
	keys := make([]models.SortKey, 0, len(flags))
	for _, f := range flags {
		col, dir, _ := strings.Cut(f, ":")
		keys = append(keys, models.SortKey{
			ColumnID: col,
			Desc:     strings.EqualFold(dir, "desc"),
		})
	}
	return keys
}

// parseFilterFlags parses repeated col=query flags into scalar filters. The
// query goes through scalar semantics, so numeric expressions like ">100"
// work directly.
func parseFilterFlags(flags []string) []models.ColumnFilter {
	out := make([]models.ColumnFilter, 0, len(flags))
	for _, f := range flags {
		col, query, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		out = append(out, models.ColumnFilter{
			ColumnID: col,
			Value:    models.ScalarFilter{Value: models.NewString(query)},
		})
	}
	return out
}

// render prints the final row model with group indentation.
func render(out io.Writer, tbl *table.Table) {
	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	order := tbl.ColumnOrder()

	fmt.Fprintf(w, "#\t%s\n", strings.Join(order, "\t"))
	for _, row := range tbl.RowModel().FlatRows {
		cells := make([]string, len(order))
		for i, id := range order {
			col, _ := tbl.Column(id)
			cells[i] = row.CellValue(col).AsString()
		}
		indent := strings.Repeat("  ", row.Depth)
		marker := ""
		if row.IsGroup() {
			marker = fmt.Sprintf(" (%d)", row.Group.LeafCount)
		}
		fmt.Fprintf(w, "%d\t%s%s%s\n", row.Index, indent, strings.Join(cells, "\t"), marker)
	}
	_ = w.Flush()
}

// renderTotals prints the global totals snapshot.
func renderTotals(out io.Writer, tbl *table.Table) {
	totals, grouping := tbl.Totals()
	fmt.Fprintln(out, "totals:")
	for _, id := range tbl.ColumnOrder() {
		if v, ok := totals[id]; ok && !v.IsNull {
			fmt.Fprintf(out, "  %s: %s\n", id, v.AsString())
		}
	}
	if len(grouping) > 0 {
		fmt.Fprintf(out, "  grouped by: %s\n", strings.Join(grouping, ", "))
	}
}
