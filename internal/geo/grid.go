package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

// s2Level is the bucket size of a Grid. Level 10 cells are 7–10 km across,
// which keeps a metro area's stations in a handful of cells.
const s2Level = 10

// defaultMaxRings bounds how far a Grid search expands before it gives up
// on locality and scans every point.
const defaultMaxRings = 6

// Point is a coordinate stored in a Grid. Callers refer to points by their
// position in the slice passed to NewGrid.
type Point struct {
	Lat float64
	Lon float64
}

// Grid buckets points into s2 cells so a nearest-point query only looks at
// the cells around the query instead of every point. A Grid is immutable
// after NewGrid and safe for concurrent readers.
type Grid struct {
	level    int
	maxRings int
	points   []s2.LatLng
	cells    map[s2.CellID][]int
}

// NewGrid indexes points at the default cell level.
func NewGrid(points []Point) *Grid {
	return newGrid(points, s2Level, defaultMaxRings)
}

func newGrid(points []Point, level, maxRings int) *Grid {
	g := &Grid{
		level:    level,
		maxRings: maxRings,
		points:   make([]s2.LatLng, len(points)),
		cells:    make(map[s2.CellID][]int),
	}
	for i, p := range points {
		ll := s2.LatLngFromDegrees(p.Lat, p.Lon)
		g.points[i] = ll
		cell := s2.CellIDFromLatLng(ll).Parent(level)
		g.cells[cell] = append(g.cells[cell], i)
	}
	return g
}

// Len returns the number of indexed points.
func (g *Grid) Len() int {
	return len(g.points)
}

// DistanceTo returns the distance in meters from (lat, lon) to point i.
func (g *Grid) DistanceTo(i int, lat, lon float64) float64 {
	return angleToMeters(s2.LatLngFromDegrees(lat, lon).Distance(g.points[i]).Radians())
}

// Nearest returns the index of the point closest to (lat, lon) and its
// distance in meters. ok is false only when the grid is empty.
//
// Points whose distance is within epsMeters of the minimum are treated as
// tied and the one ordered first by less wins. The answer therefore depends
// only on the point set, never on bucket iteration order, and matches a
// linear scan over all points.
func (g *Grid) Nearest(lat, lon, epsMeters float64, less func(a, b int) bool) (int, float64, bool) {
	if len(g.points) == 0 {
		return 0, 0, false
	}
	q := s2.LatLngFromDegrees(lat, lon)
	start := s2.CellIDFromLatLng(q).Parent(g.level)
	cellWidth := angleToMeters(s2.MinWidthMetric.Value(g.level))

	visited := map[s2.CellID]bool{start: true}
	frontier := []s2.CellID{start}
	var candidates []int
	best := math.Inf(1)

	for ring := 0; ring <= g.maxRings; ring++ {
		for _, cell := range frontier {
			for _, i := range g.cells[cell] {
				candidates = append(candidates, i)
				if d := g.dist(q, i); d < best {
					best = d
				}
			}
		}
		// Anything outside rings 0..ring is at least this far from q.
		bound := 0.5 * float64(ring) * cellWidth
		if !math.IsInf(best, 1) && best+epsMeters < bound {
			return g.pick(q, candidates, best, epsMeters, less)
		}
		frontier = g.expand(frontier, visited)
		if len(frontier) == 0 {
			break
		}
	}

	all := make([]int, len(g.points))
	for i := range all {
		all[i] = i
	}
	return g.scan(q, all, epsMeters, less)
}

// NearestLinear answers the same query as Nearest by looking at every point.
func (g *Grid) NearestLinear(lat, lon, epsMeters float64, less func(a, b int) bool) (int, float64, bool) {
	if len(g.points) == 0 {
		return 0, 0, false
	}
	all := make([]int, len(g.points))
	for i := range all {
		all[i] = i
	}
	return g.scan(s2.LatLngFromDegrees(lat, lon), all, epsMeters, less)
}

func (g *Grid) scan(q s2.LatLng, idx []int, epsMeters float64, less func(a, b int) bool) (int, float64, bool) {
	best := math.Inf(1)
	for _, i := range idx {
		if d := g.dist(q, i); d < best {
			best = d
		}
	}
	return g.pick(q, idx, best, epsMeters, less)
}

func (g *Grid) pick(q s2.LatLng, idx []int, best, epsMeters float64, less func(a, b int) bool) (int, float64, bool) {
	winner := -1
	var winnerDist float64
	for _, i := range idx {
		d := g.dist(q, i)
		if d > best+epsMeters {
			continue
		}
		if winner < 0 || less(i, winner) {
			winner, winnerDist = i, d
		}
	}
	return winner, winnerDist, winner >= 0
}

func (g *Grid) expand(frontier []s2.CellID, visited map[s2.CellID]bool) []s2.CellID {
	var next []s2.CellID
	for _, cell := range frontier {
		for _, n := range cell.AllNeighbors(g.level) {
			if visited[n] {
				continue
			}
			visited[n] = true
			next = append(next, n)
		}
	}
	return next
}

func (g *Grid) dist(q s2.LatLng, i int) float64 {
	return angleToMeters(q.Distance(g.points[i]).Radians())
}
