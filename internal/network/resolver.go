package network

import (
	"container/heap"
	"sync/atomic"

	"github.com/bluele/gcache"
)

// Path is an ordered list of edges connecting two stations. Paths handed out
// by the Resolver are shared and must not be modified.
type Path []*Edge

// DistanceKm sums the edge distances.
func (p Path) DistanceKm() float64 {
	var km float64
	for _, e := range p {
		km += e.DistanceKm
	}
	return km
}

// Stations returns the station sequence visited by the path.
func (p Path) Stations() []string {
	if len(p) == 0 {
		return nil
	}
	ids := make([]string, 0, len(p)+1)
	ids = append(ids, p[0].From)
	for _, e := range p {
		ids = append(ids, e.To)
	}
	return ids
}

type pathKey struct {
	from, to string
}

// Resolver memoizes shortest paths per ordered station pair. The graph is
// static, so cached entries are never invalidated.
type Resolver struct {
	graph  *Graph
	cache  gcache.Cache
	misses atomic.Int64
}

// NewResolver creates a resolver sized so that no pair is ever evicted.
func NewResolver(g *Graph) *Resolver {
	r := &Resolver{graph: g}
	size := g.StationCount()*g.StationCount() + 1
	r.cache = gcache.New(size).
		Simple().
		LoaderFunc(func(key interface{}) (interface{}, error) {
			k := key.(pathKey)
			r.misses.Add(1)
			return shortestPath(r.graph, k.from, k.to), nil
		}).
		Build()
	return r
}

// Graph returns the graph the resolver searches.
func (r *Resolver) Graph() *Graph {
	return r.graph
}

// Resolve returns the shortest path from one station to another, or false
// when either station is absent or no path exists.
func (r *Resolver) Resolve(from, to string) (Path, bool) {
	if from == to || !r.graph.HasStation(from) || !r.graph.HasStation(to) {
		return nil, false
	}
	v, err := r.cache.Get(pathKey{from: from, to: to})
	if err != nil {
		return nil, false
	}
	p := v.(Path)
	return p, len(p) > 0
}

// Connected reports whether a path exists between the two stations.
func (r *Resolver) Connected(from, to string) bool {
	_, ok := r.Resolve(from, to)
	return ok
}

// DistanceKm returns the path length between two stations.
func (r *Resolver) DistanceKm(from, to string) (float64, bool) {
	p, ok := r.Resolve(from, to)
	if !ok {
		return 0, false
	}
	return p.DistanceKm(), true
}

// CacheStats reports cached pairs and full searches performed.
func (r *Resolver) CacheStats() (entries int, searches int64) {
	return r.cache.Len(false), r.misses.Load()
}

type queueItem struct {
	node string
	dist float64
	seq  int
}

type pathQueue []queueItem

func (q pathQueue) Len() int { return len(q) }
func (q pathQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].seq < q[j].seq
}
func (q pathQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x interface{}) { *q = append(*q, x.(queueItem)) }
func (q *pathQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// shortestPath runs Dijkstra over edge distances. Equal-distance entries are
// popped in push order and relaxation is strict, so the first-discovered edge
// wins ties. Each edge of the result is then moved to its running track.
func shortestPath(g *Graph, from, to string) Path {
	dist := map[string]float64{from: 0}
	prev := make(map[string]*Edge)
	visited := make(map[string]bool)

	q := &pathQueue{}
	seq := 0
	heap.Push(q, queueItem{node: from, dist: 0, seq: seq})

	for q.Len() > 0 {
		item := heap.Pop(q).(queueItem)
		if visited[item.node] {
			continue
		}
		visited[item.node] = true
		if item.node == to {
			break
		}

		for _, e := range g.Outgoing(item.node) {
			nd := item.dist + e.DistanceKm
			if d, ok := dist[e.To]; ok && nd >= d {
				continue
			}
			dist[e.To] = nd
			prev[e.To] = e
			seq++
			heap.Push(q, queueItem{node: e.To, dist: nd, seq: seq})
		}
	}

	if _, ok := prev[to]; !ok {
		return Path{}
	}

	var path Path
	for cur := to; cur != from; {
		e := prev[cur]
		path = append(path, g.RunningEdge(e))
		cur = e.From
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
