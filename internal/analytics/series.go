// Package analytics holds the return-series arithmetic behind the descriptive
// reports: percentage change, rolling means, row alignment and correlation.
package analytics

import (
	"math"
	"sort"
	"time"
)

type Point struct {
	T time.Time
	V float64
}

type Series struct {
	Name   string
	Points []Point
}

// PctChange returns the fractional change between consecutive points. The
// first point has no predecessor and is dropped. A rise from zero is +Inf,
// and zero following zero is undefined and dropped.
func PctChange(s Series) Series {
	out := Series{Name: s.Name}
	for i := 1; i < len(s.Points); i++ {
		prev, cur := s.Points[i-1].V, s.Points[i].V
		v := cur/prev - 1
		if math.IsNaN(v) {
			continue
		}
		out.Points = append(out.Points, Point{T: s.Points[i].T, V: v})
	}
	return out
}

func Scale(s Series, k float64) Series {
	out := Series{Name: s.Name, Points: make([]Point, len(s.Points))}
	for i, p := range s.Points {
		out.Points[i] = Point{T: p.T, V: p.V * k}
	}
	return out
}

// RollingMean averages each point with the window-1 points before it.
// Points without a full window are dropped.
func RollingMean(s Series, window int) Series {
	out := Series{Name: s.Name}
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(s.Points); i++ {
		var sum float64
		for _, p := range s.Points[i-window+1 : i+1] {
			sum += p.V
		}
		out.Points = append(out.Points, Point{T: s.Points[i].T, V: sum / float64(window)})
	}
	return out
}

// Align keeps only the timestamps present in every series and returns them in
// ascending order with values[row][column] following the order of series.
func Align(series []Series) ([]time.Time, [][]float64) {
	if len(series) == 0 {
		return nil, nil
	}
	type cell struct {
		t    time.Time
		vals []float64
		seen int
	}
	rows := map[int64]*cell{}
	for col, s := range series {
		for _, p := range s.Points {
			key := p.T.UnixNano()
			c, ok := rows[key]
			if !ok {
				if col > 0 {
					continue
				}
				c = &cell{t: p.T, vals: make([]float64, len(series))}
				rows[key] = c
			}
			if c.seen != col {
				continue
			}
			c.vals[col] = p.V
			c.seen++
		}
	}
	var kept []*cell
	for _, c := range rows {
		if c.seen == len(series) {
			kept = append(kept, c)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].t.Before(kept[j].t) })
	dates := make([]time.Time, len(kept))
	values := make([][]float64, len(kept))
	for i, c := range kept {
		dates[i] = c.t
		values[i] = c.vals
	}
	return dates, values
}

// Pearson is NaN when fewer than two pairs exist or either side is constant.
func Pearson(x, y []float64) float64 {
	n := len(x)
	if n != len(y) || n < 2 {
		return math.NaN()
	}
	var mx, my float64
	for i := 0; i < n; i++ {
		mx += x[i]
		my += y[i]
	}
	mx /= float64(n)
	my /= float64(n)
	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	return sxy / math.Sqrt(sxx*syy)
}

// CorrelationMatrix correlates every pair of columns of aligned rows.
func CorrelationMatrix(values [][]float64, columns int) [][]float64 {
	cols := make([][]float64, columns)
	for _, row := range values {
		for c := 0; c < columns; c++ {
			cols[c] = append(cols[c], row[c])
		}
	}
	out := make([][]float64, columns)
	for i := range out {
		out[i] = make([]float64, columns)
		for j := range out[i] {
			r := Pearson(cols[i], cols[j])
			if i == j && !math.IsNaN(r) {
				r = 1
			}
			out[i][j] = r
		}
	}
	return out
}
