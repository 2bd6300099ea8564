// Package gridkit provides a headless, strongly-typed tabular data engine:
// given a sequence of records, column definitions, and a declarative table
// state (filters, sort keys, grouping, pagination), it deterministically
// computes the visible and derived row sequence.
//
// GridKit owns no rendering, editing, export, or transport concerns. It
// exposes in-memory contracts only: a host feeds records and column
// definitions in, mutates an immutable TableState through a single entry
// point, and reads back RowModel views at every pipeline stage.
//
// # Architecture
//
// The engine is organized around four ideas:
//
// 1. Immutable snapshots: every state mutation produces a brand-new
// TableState, so concurrent readers never observe a half-applied update.
//
// 2. Staged recompute: the row-model pipeline (Filter, Sort, Group,
// Aggregate, Paginate) tracks a dirty-from marker and recomputes only from
// the lowest invalidated stage, reusing cached upstream outputs.
//
// 3. Ephemeral projections: Row and Cell objects are regenerated on every
// recompute that touches their stage, with deterministic identities, instead
// of being mutated in place.
//
// 4. Windowed remote data: the server-side row model fetches externally
// filtered and sorted row windows from an asynchronous source, with a
// retention-bounded block cache and cancellable fetches.
//
// # Quick Start
//
//	import (
//	    "github.com/gridkit/gridkit/pkg/models"
//	    "github.com/gridkit/gridkit/pkg/table"
//	)
//
//	cols := []*models.Column{
//	    models.NewColumn("name", models.StringAccessor("name")),
//	    models.NewColumn("salary", models.FloatAccessor("salary")),
//	}
//	tbl, err := table.New(table.Options{Columns: cols, Records: records})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tbl.Update(func(s models.TableState) models.TableState {
//	    s.Sorting = []models.SortKey{{ColumnID: "salary", Desc: true}}
//	    return s
//	})
//	for _, row := range tbl.RowModel().Rows {
//	    fmt.Println(row.ID)
//	}
//
// # Packages
//
//   - pkg/models: entity model (Value, Record, Column, Row, RowModel,
//     TableState, filter value variants)
//   - pkg/filter: filter evaluation semantics
//   - pkg/sorting: multi-key stable sort comparator
//   - pkg/aggregate: aggregator registry and built-ins
//   - pkg/grouping: hierarchical grouping engine and totals snapshots
//   - pkg/table: the table orchestrator and stage views
//   - pkg/serverside: windowed server-side row model
//   - pkg/config: unified configuration
//   - pkg/errors, pkg/logger, pkg/metrics: ambient infrastructure
package gridkit
