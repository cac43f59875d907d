package scoring

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/YuminosukeSato/pulearn/pkg/errors"
	"github.com/YuminosukeSato/pulearn/pkg/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Phase tells whether a dictionary was computed on the train or the test
// part of a split.
type Phase string

const (
	PhaseTrain Phase = log.PhaseTrain
	PhaseTest  Phase = log.PhaseTest
)

// Stat marks derived columns.
type Stat string

const (
	StatNone Stat = ""
	StatMean Stat = "mean"
	StatStd  Stat = "std"
)

// SplitResult holds the dictionaries of one cross-validation split.
type SplitResult struct {
	Train Dictionary
	Test  Dictionary
}

func (s SplitResult) dict(p Phase) Dictionary {
	if p == PhaseTrain {
		return s.Train
	}
	return s.Test
}

// RunResult holds the split results of one configuration.
type RunResult struct {
	Name   string
	Params map[string]interface{}
	Splits []SplitResult
}

// ColumnKey identifies a grid column. Split is -1 for derived columns, and
// Phase is empty in grids built by ExtractNested.
type ColumnKey struct {
	Metric string
	Phase  Phase
	Split  int
	Stat   Stat
}

// String returns the column name: "<metric>_<phase><split>" for split
// columns and "<stat>_<metric>_<phase>" for derived ones.
func (k ColumnKey) String() string {
	if k.Stat != StatNone {
		return fmt.Sprintf("%s_%s_%s", k.Stat, k.Metric, k.Phase)
	}
	if k.Phase == "" {
		return k.Metric
	}
	return fmt.Sprintf("%s_%s%d", k.Metric, k.Phase, k.Split)
}

func (k ColumnKey) less(o ColumnKey) bool {
	if k.Metric != o.Metric {
		return k.Metric < o.Metric
	}
	if k.Phase != o.Phase {
		return k.Phase < o.Phase
	}
	return k.Split < o.Split
}

type group struct {
	metric string
	phase  Phase
}

// ScoreGrid is a table of metric values: one row per run (or per split for
// ExtractNested), one column per metric, phase and split, plus mean and std
// columns. Missing and undefined cells are NaN.
type ScoreGrid struct {
	rows   []string
	keys   []ColumnKey
	index  map[string]int
	values [][]float64
}

func newGrid(rows []string) *ScoreGrid {
	return &ScoreGrid{
		rows:   rows,
		index:  make(map[string]int),
		values: make([][]float64, len(rows)),
	}
}

func (g *ScoreGrid) addColumn(key ColumnKey, cell func(row int) float64) {
	g.index[key.String()] = len(g.keys)
	g.keys = append(g.keys, key)
	for r := range g.rows {
		g.values[r] = append(g.values[r], cell(r))
	}
}

type cell struct {
	metric string
	value  float64
}

// expand turns one dictionary entry into scalar cells. Confusion matrices
// become tn_, fp_, fn_ and tp_ cells.
func expand(name string, v Value) []cell {
	if v.Kind != KindConfusionMatrix {
		return []cell{{name, v.Scalar}}
	}
	tn, fp, fn, tp := v.Cells()
	return []cell{
		{"tn_" + name, tn},
		{"fp_" + name, fp},
		{"fn_" + name, fn},
		{"tp_" + name, tp},
	}
}

// Aggregate flattens the dictionaries of every run and split into a grid
// and appends mean and std columns per metric and phase. ScoreKey entries
// are skipped. Std is the sample standard deviation; NaN cells are ignored
// by both statistics.
func Aggregate(results []RunResult) (*ScoreGrid, error) {
	if len(results) == 0 {
		return nil, errors.NewValueError("scoring.Aggregate", "no run results")
	}

	names := make([]string, len(results))
	cells := make([]map[ColumnKey]float64, len(results))
	seen := make(map[ColumnKey]struct{})
	for r, run := range results {
		if len(run.Splits) == 0 {
			return nil, errors.NewValidationError("splits", "run has no splits", r)
		}
		names[r] = run.Name
		if names[r] == "" {
			names[r] = "run" + strconv.Itoa(r)
		}
		cells[r] = make(map[ColumnKey]float64)
		for s, split := range run.Splits {
			for _, phase := range []Phase{PhaseTrain, PhaseTest} {
				for name, v := range split.dict(phase) {
					if name == ScoreKey {
						continue
					}
					for _, c := range expand(name, v) {
						key := ColumnKey{Metric: c.metric, Phase: phase, Split: s}
						cells[r][key] = c.value
						seen[key] = struct{}{}
					}
				}
			}
		}
	}

	keys := make([]ColumnKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	g := newGrid(names)
	var groups []group
	members := make(map[group][]int)
	for _, key := range keys {
		gr := group{key.Metric, key.Phase}
		if _, ok := members[gr]; !ok {
			groups = append(groups, gr)
		}
		members[gr] = append(members[gr], len(g.keys))
		g.addColumn(key, func(r int) float64 {
			if v, ok := cells[r][key]; ok {
				return v
			}
			return math.NaN()
		})
	}

	for _, gr := range groups {
		cols := members[gr]
		means := make([]float64, len(g.rows))
		stds := make([]float64, len(g.rows))
		for r := range g.rows {
			xs := make([]float64, 0, len(cols))
			for _, c := range cols {
				if v := g.values[r][c]; !math.IsNaN(v) {
					xs = append(xs, v)
				}
			}
			means[r], stds[r] = meanStd(xs)
		}
		g.addColumn(ColumnKey{Metric: gr.metric, Phase: gr.phase, Split: -1, Stat: StatMean}, func(r int) float64 { return means[r] })
		g.addColumn(ColumnKey{Metric: gr.metric, Phase: gr.phase, Split: -1, Stat: StatStd}, func(r int) float64 { return stds[r] })
	}

	log.GetLoggerWithName("scoring").Debug("aggregated",
		log.OperationKey, log.OperationAggregate,
		log.RowsKey, len(g.rows),
		log.ColumnsKey, len(g.keys),
	)
	return g, nil
}

func meanStd(xs []float64) (float64, float64) {
	switch len(xs) {
	case 0:
		return math.NaN(), math.NaN()
	case 1:
		return xs[0], math.NaN()
	}
	return stat.MeanStdDev(xs, nil)
}

// ExtractNested builds a grid from a sequence of dictionaries, one row per
// split. Columns are the metric names; there are no derived columns.
func ExtractNested(scores []Dictionary) *ScoreGrid {
	names := make([]string, len(scores))
	cells := make([]map[string]float64, len(scores))
	seen := make(map[string]struct{})
	for i, d := range scores {
		names[i] = "split" + strconv.Itoa(i)
		cells[i] = make(map[string]float64)
		for _, name := range d.Names() {
			for _, c := range expand(name, d[name]) {
				cells[i][c.metric] = c.value
				seen[c.metric] = struct{}{}
			}
		}
	}
	metrics := make([]string, 0, len(seen))
	for m := range seen {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	g := newGrid(names)
	for _, m := range metrics {
		g.addColumn(ColumnKey{Metric: m, Split: -1}, func(r int) float64 {
			if v, ok := cells[r][m]; ok {
				return v
			}
			return math.NaN()
		})
	}
	return g
}

// NumRows returns the number of rows.
func (g *ScoreGrid) NumRows() int {
	return len(g.rows)
}

// Rows returns the row names.
func (g *ScoreGrid) Rows() []string {
	return append([]string(nil), g.rows...)
}

// Keys returns the column keys in column order.
func (g *ScoreGrid) Keys() []ColumnKey {
	return append([]ColumnKey(nil), g.keys...)
}

// Columns returns the column names in column order.
func (g *ScoreGrid) Columns() []string {
	out := make([]string, len(g.keys))
	for i, k := range g.keys {
		out[i] = k.String()
	}
	return out
}

// Column returns a copy of the named column.
func (g *ScoreGrid) Column(name string) ([]float64, bool) {
	c, ok := g.index[name]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(g.rows))
	for r := range g.rows {
		out[r] = g.values[r][c]
	}
	return out, true
}

// Value returns one cell.
func (g *ScoreGrid) Value(row int, column string) (float64, bool) {
	c, ok := g.index[column]
	if !ok || row < 0 || row >= len(g.rows) {
		return math.NaN(), false
	}
	return g.values[row][c], true
}

func (g *ScoreGrid) selectColumns(keep func(ColumnKey) bool) *ScoreGrid {
	out := newGrid(g.Rows())
	for c, key := range g.keys {
		if keep(key) {
			out.addColumn(key, func(r int) float64 { return g.values[r][c] })
		}
	}
	return out
}

// MeanTestScores returns the mean test columns only.
func (g *ScoreGrid) MeanTestScores() *ScoreGrid {
	return g.selectColumns(func(k ColumnKey) bool {
		return k.Stat == StatMean && k.Phase == PhaseTest
	})
}

// BestRow returns the row with the best mean test value of m. Rows where
// the metric is undefined are never picked.
func (g *ScoreGrid) BestRow(m Metric) (int, float64, error) {
	name := ColumnKey{Metric: m.String(), Phase: PhaseTest, Split: -1, Stat: StatMean}.String()
	col, ok := g.Column(name)
	if !ok {
		return -1, math.NaN(), errors.NewValidationError("metric", "not a column of the grid", m.String())
	}
	best, bestValue := -1, math.NaN()
	for r, v := range col {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || (m.GreaterIsBetter() && v > bestValue) || (!m.GreaterIsBetter() && v < bestValue) {
			best, bestValue = r, v
		}
	}
	if best < 0 {
		return -1, math.NaN(), errors.NewValueError("ScoreGrid.BestRow", "metric undefined for every row")
	}
	return best, bestValue, nil
}

// Render writes the grid as a text table.
func (g *ScoreGrid) Render(w io.Writer) error {
	t := table.NewWriter()
	header := table.Row{"run"}
	configs := []table.ColumnConfig{{Number: 1, Align: text.AlignLeft}}
	for i, name := range g.Columns() {
		header = append(header, name)
		configs = append(configs, table.ColumnConfig{Number: i + 2, Align: text.AlignRight})
	}
	t.AppendHeader(header)
	t.SetColumnConfigs(configs)
	for r, name := range g.rows {
		row := table.Row{name}
		for _, v := range g.values[r] {
			row = append(row, formatCell(v))
		}
		t.AppendRow(row)
	}
	_, err := io.WriteString(w, t.Render()+"\n")
	return errors.Wrap(err, "render score grid")
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

type errorPoint struct {
	x, y, err float64
}

type errorPoints []errorPoint

func (e errorPoints) Len() int { return len(e) }

func (e errorPoints) XY(i int) (float64, float64) { return e[i].x, e[i].y }

func (e errorPoints) YError(i int) (float64, float64) { return e[i].err, e[i].err }

// PlotMeanTest saves a bar chart of the mean test value of each metric,
// with std error bars, grouped by row. With no metric names every mean
// test column is drawn. The image format follows the path extension.
func (g *ScoreGrid) PlotMeanTest(path string, metricNames ...string) error {
	if len(metricNames) == 0 {
		for _, k := range g.MeanTestScores().keys {
			metricNames = append(metricNames, k.Metric)
		}
	}
	if len(metricNames) == 0 || len(g.rows) == 0 {
		return errors.NewValueError("ScoreGrid.PlotMeanTest", "nothing to plot")
	}

	p := plot.New()
	p.Title.Text = "Mean test scores"
	p.Y.Label.Text = "score"

	stride := len(metricNames) + 1
	labels := make([]string, stride*len(g.rows))
	for r, rowName := range g.rows {
		means := make(plotter.Values, len(metricNames))
		bars := make(errorPoints, len(metricNames))
		for m, name := range metricNames {
			key := ColumnKey{Metric: name, Phase: PhaseTest, Split: -1, Stat: StatMean}
			mean, ok := g.Value(r, key.String())
			if !ok {
				return errors.NewValidationError("metric", "not a column of the grid", name)
			}
			key.Stat = StatStd
			std, _ := g.Value(r, key.String())
			if math.IsNaN(mean) {
				mean = 0
			}
			if math.IsNaN(std) {
				std = 0
			}
			x := float64(r*stride + m)
			means[m] = mean
			bars[m] = errorPoint{x: x, y: mean, err: std}
			labels[r*stride+m] = name
		}

		chart, err := plotter.NewBarChart(means, vg.Points(14))
		if err != nil {
			return errors.Wrap(err, "bar chart")
		}
		chart.XMin = float64(r * stride)
		chart.Color = plotutil.Color(r)
		chart.LineStyle.Width = 0

		errBars, err := plotter.NewYErrorBars(bars)
		if err != nil {
			return errors.Wrap(err, "error bars")
		}
		p.Add(chart, errBars)
		p.Legend.Add(rowName, chart)
	}
	p.NominalX(labels...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = -1

	width := vg.Length(len(labels)) * vg.Centimeter
	if width < 12*vg.Centimeter {
		width = 12 * vg.Centimeter
	}
	return errors.Wrap(p.Save(width, 10*vg.Centimeter, path), "save plot")
}
