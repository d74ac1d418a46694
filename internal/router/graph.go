package router

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"stationwalk.onebusaway.org/internal/geo"
	"stationwalk.onebusaway.org/internal/models"
)

// Network is a pedestrian network as stored on disk: nodes with
// coordinates, and named ways listing the nodes they pass through in order.
// Ways are walkable in both directions.
type Network struct {
	Nodes []NetworkNode `json:"nodes"`
	Ways  []NetworkWay  `json:"ways"`
}

type NetworkNode struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type NetworkWay struct {
	Name  string   `json:"name"`
	Nodes []string `json:"nodes"`
}

// LoadNetwork reads a Network from a JSON file.
func LoadNetwork(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open network file: %w", err)
	}
	defer f.Close()
	return ParseNetwork(f)
}

func ParseNetwork(r io.Reader) (*Network, error) {
	var n Network
	if err := json.NewDecoder(r).Decode(&n); err != nil {
		return nil, fmt.Errorf("failed to decode network: %w", err)
	}
	return &n, nil
}

type edge struct {
	to     int
	street string
	length float64
}

// GraphRouter routes over an in-memory pedestrian network with A*.
// It is immutable after construction and safe for concurrent use.
type GraphRouter struct {
	ArrivalThresholdMeters float64
	// MaxSnapMeters is how far an origin or destination may be from the
	// nearest network node.
	MaxSnapMeters float64
	Logger        *slog.Logger

	ids   []string
	nodes []geo.Point
	adj   [][]edge
	grid  *geo.Grid
}

// NewGraphRouter indexes network. Ways referencing unknown nodes are an error.
func NewGraphRouter(network *Network, maxSnapMeters float64, logger *slog.Logger) (*GraphRouter, error) {
	if len(network.Nodes) == 0 {
		return nil, fmt.Errorf("network has no nodes")
	}
	g := &GraphRouter{
		ArrivalThresholdMeters: DefaultArrivalThresholdMeters,
		MaxSnapMeters:          maxSnapMeters,
		Logger:                 logger,
		ids:                    make([]string, len(network.Nodes)),
		nodes:                  make([]geo.Point, len(network.Nodes)),
		adj:                    make([][]edge, len(network.Nodes)),
	}
	index := make(map[string]int, len(network.Nodes))
	for i, n := range network.Nodes {
		if !geo.IsValidLatLon(n.Lat, n.Lon) {
			return nil, fmt.Errorf("node %q has an invalid coordinate", n.ID)
		}
		if _, dup := index[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %q", n.ID)
		}
		index[n.ID] = i
		g.ids[i] = n.ID
		g.nodes[i] = geo.Point{Lat: n.Lat, Lon: n.Lon}
	}
	for _, w := range network.Ways {
		street := plainText(w.Name)
		for k := 1; k < len(w.Nodes); k++ {
			a, okA := index[w.Nodes[k-1]]
			b, okB := index[w.Nodes[k]]
			if !okA || !okB {
				return nil, fmt.Errorf("way %q references an unknown node", w.Name)
			}
			if a == b {
				continue
			}
			length := geo.HaversineDistance(g.nodes[a].Lat, g.nodes[a].Lon, g.nodes[b].Lat, g.nodes[b].Lon)
			g.adj[a] = append(g.adj[a], edge{to: b, street: street, length: length})
			g.adj[b] = append(g.adj[b], edge{to: a, street: street, length: length})
		}
	}
	g.grid = geo.NewGrid(g.nodes)
	return g, nil
}

func (g *GraphRouter) snap(p models.ResolvedLocation) (int, float64) {
	idx, dist, _ := g.grid.Nearest(p.Latitude, p.Longitude, 0, func(a, b int) bool { return g.ids[a] < g.ids[b] })
	return idx, dist
}

func (g *GraphRouter) bearing(a, b int) float64 {
	return geo.InitialBearing(g.nodes[a].Lat, g.nodes[a].Lon, g.nodes[b].Lat, g.nodes[b].Lon)
}

func (g *GraphRouter) Route(ctx context.Context, from models.ResolvedLocation, to models.Facility) ([]models.DirectionStep, error) {
	dest := to.Destination()
	if arrived(from, dest, g.ArrivalThresholdMeters) {
		return []models.DirectionStep{}, nil
	}

	start, startSnap := g.snap(from)
	if g.MaxSnapMeters > 0 && startSnap > g.MaxSnapMeters {
		return nil, models.RoutingFailed(msgRejected, false,
			fmt.Errorf("origin is %.0f m from the nearest network node", startSnap))
	}
	goal, goalSnap := g.snap(dest)
	if g.MaxSnapMeters > 0 && goalSnap > g.MaxSnapMeters {
		return nil, models.RoutingFailed(fmt.Sprintf(msgNoRoute, displayName(to.Name)), false,
			fmt.Errorf("facility %s is %.0f m from the nearest network node", to.ID, goalSnap))
	}

	if start == goal {
		return []models.DirectionStep{{
			Instruction: "Head " + geo.Compass(geo.InitialBearing(from.Latitude, from.Longitude, dest.Latitude, dest.Longitude)) + " toward " + displayName(to.Name),
			Distance:    FormatDistance(geo.Distance(from, dest)),
		}}, nil
	}

	path, err := g.shortestPath(ctx, start, goal)
	if err != nil {
		return nil, models.RoutingFailed(msgUnreachable, true, err)
	}
	if path == nil {
		return nil, models.RoutingFailed(fmt.Sprintf(msgNoRoute, displayName(to.Name)), false,
			fmt.Errorf("no path between nodes %s and %s", g.ids[start], g.ids[goal]))
	}

	steps := g.directions(path, startSnap, goalSnap)
	if g.Logger != nil {
		g.Logger.Debug("Routed walk over network", "facility_id", to.ID, "edges", len(path), "steps", len(steps))
	}
	return steps, nil
}

// hop is one traversed edge of a path.
type hop struct {
	from, to int
	street   string
	length   float64
}

// segment is a run of consecutive hops along the same street.
type segment struct {
	street       string
	length       float64
	startBearing float64
	endBearing   float64
}

func (g *GraphRouter) directions(path []hop, startSnap, goalSnap float64) []models.DirectionStep {
	var segments []segment
	for _, h := range path {
		b := g.bearing(h.from, h.to)
		if n := len(segments); n > 0 && segments[n-1].street == h.street {
			segments[n-1].length += h.length
			segments[n-1].endBearing = b
			continue
		}
		segments = append(segments, segment{street: h.street, length: h.length, startBearing: b, endBearing: b})
	}

	segments[0].length += startSnap
	segments[len(segments)-1].length += goalSnap

	steps := make([]models.DirectionStep, 0, len(segments))
	for i, s := range segments {
		var instruction string
		if i == 0 {
			instruction = headInstruction(s.startBearing, s.street)
		} else {
			instruction = turnInstruction(classifyTurn(segments[i-1].endBearing, s.startBearing), s.street)
		}
		steps = append(steps, models.DirectionStep{Instruction: instruction, Distance: FormatDistance(s.length)})
	}
	return steps
}

// shortestPath runs A* with the great-circle distance to goal as the
// heuristic, which never overestimates because every edge is at least as
// long as the great circle between its ends. It returns nil when goal is
// unreachable.
func (g *GraphRouter) shortestPath(ctx context.Context, start, goal int) ([]hop, error) {
	dist := make(map[int]float64, 64)
	prev := make(map[int]hop, 64)
	closed := make(map[int]bool, 64)

	h := func(n int) float64 {
		return geo.HaversineDistance(g.nodes[n].Lat, g.nodes[n].Lon, g.nodes[goal].Lat, g.nodes[goal].Lon)
	}

	open := &frontier{}
	dist[start] = 0
	heap.Push(open, &frontierItem{node: start, priority: h(start)})

	for expanded := 0; open.Len() > 0; expanded++ {
		if expanded%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		cur := heap.Pop(open).(*frontierItem).node
		if cur == goal {
			break
		}
		if closed[cur] {
			continue
		}
		closed[cur] = true

		for _, e := range g.adj[cur] {
			if closed[e.to] {
				continue
			}
			nd := dist[cur] + e.length
			if old, seen := dist[e.to]; seen && nd >= old {
				continue
			}
			dist[e.to] = nd
			prev[e.to] = hop{from: cur, to: e.to, street: e.street, length: e.length}
			heap.Push(open, &frontierItem{node: e.to, priority: nd + h(e.to)})
		}
	}

	if _, ok := dist[goal]; !ok {
		return nil, nil
	}
	var path []hop
	for n := goal; n != start; {
		step, ok := prev[n]
		if !ok {
			return nil, nil
		}
		path = append(path, step)
		n = step.from
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

type frontierItem struct {
	node     int
	priority float64
}

// frontier is a min-heap of nodes ordered by A* priority.
type frontier []*frontierItem

func (f frontier) Len() int            { return len(f) }
func (f frontier) Less(i, j int) bool  { return f[i].priority < f[j].priority }
func (f frontier) Swap(i, j int)       { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x interface{}) { *f = append(*f, x.(*frontierItem)) }
func (f *frontier) Pop() interface{} {
	old := *f
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*f = old[:n-1]
	return item
}
