// Package graph implements the Link Graph: an in-memory directed graph of
// markdown link targets, one per tenant, with Tarjan-SCC cycle detection
// and depth/node-bounded traversal.
//
// None of the pack's example repositories implement Tarjan's algorithm or
// a bounded-BFS traversal — this package is built directly from spec.md
// §4.5's operation list rather than adapted from a teacher file.
package graph

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/Aman-CERP/amanmcp/internal/tenant"
)

// Cycle is a strongly-connected component of size >= 2, or a self-loop,
// reported by DetectCycles.
type Cycle struct {
	Nodes []string
}

// signature returns a stable identifier for a cycle so repeated detections
// of the same cycle log only once.
func (c Cycle) signature() string {
	sorted := append([]string(nil), c.Nodes...)
	sort.Strings(sorted)
	sig := ""
	for _, n := range sorted {
		sig += n + "\x00"
	}
	return sig
}

// Graph holds one directed graph per tenant, keyed by relative_path.
type Graph struct {
	logger *slog.Logger

	mu      sync.Mutex
	tenants map[string]*tenantGraph
}

// New creates an empty Graph. logger receives a warning for each newly
// observed cycle signature.
func New(logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{logger: logger, tenants: make(map[string]*tenantGraph)}
}

type tenantGraph struct {
	mu  sync.RWMutex
	out map[string]map[string]struct{} // from -> set of to

	cyclesDirty bool
	cycles      []Cycle
	seenCycles  map[string]bool
}

func newTenantGraph() *tenantGraph {
	return &tenantGraph{
		out:        make(map[string]map[string]struct{}),
		seenCycles: make(map[string]bool),
	}
}

func (g *Graph) graphFor(key tenant.Key) *tenantGraph {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := key.String()
	tg, ok := g.tenants[k]
	if !ok {
		tg = newTenantGraph()
		g.tenants[k] = tg
	}
	return tg
}

// ReplaceOutEdges atomically replaces from's out-edges with toSet. Nodes
// named in toSet that have no edges of their own are implicitly created as
// leaves.
func (g *Graph) ReplaceOutEdges(key tenant.Key, from string, toSet []string) {
	tg := g.graphFor(key)
	tg.mu.Lock()
	defer tg.mu.Unlock()

	edges := make(map[string]struct{}, len(toSet))
	for _, to := range toSet {
		edges[to] = struct{}{}
		if _, exists := tg.out[to]; !exists {
			tg.out[to] = make(map[string]struct{})
		}
	}
	tg.out[from] = edges
	tg.cyclesDirty = true
}

// RemoveNode deletes path and every edge referencing it, in or out.
func (g *Graph) RemoveNode(key tenant.Key, path string) {
	tg := g.graphFor(key)
	tg.mu.Lock()
	defer tg.mu.Unlock()

	delete(tg.out, path)
	for from, edges := range tg.out {
		if _, exists := edges[path]; exists {
			delete(edges, path)
			tg.out[from] = edges
		}
	}
	tg.cyclesDirty = true
}

// Traverse runs a breadth-first search from start, excluding start itself,
// never revisiting a node, stopping once maxDepth levels have been
// expanded or maxNodes results have been collected. Returns visited paths
// in discovery order.
func (g *Graph) Traverse(key tenant.Key, start string, maxDepth, maxNodes int) []string {
	tg := g.graphFor(key)
	tg.mu.RLock()
	defer tg.mu.RUnlock()

	if maxDepth <= 0 || maxNodes <= 0 {
		return nil
	}

	visited := map[string]bool{start: true}
	result := make([]string, 0, maxNodes)

	type frontierNode struct {
		path  string
		depth int
	}
	frontier := []frontierNode{{start, 0}}

	for len(frontier) > 0 && len(result) < maxNodes {
		current := frontier[0]
		frontier = frontier[1:]

		if current.depth >= maxDepth {
			continue
		}

		neighbors := sortedKeys(tg.out[current.path])
		for _, next := range neighbors {
			if visited[next] {
				continue
			}
			visited[next] = true
			result = append(result, next)
			if len(result) >= maxNodes {
				break
			}
			frontier = append(frontier, frontierNode{next, current.depth + 1})
		}
	}

	return result
}

// WouldCreateCycle reports whether adding an edge from->to would create a
// cycle, i.e. whether from is currently reachable from to.
func (g *Graph) WouldCreateCycle(key tenant.Key, from, to string) bool {
	if from == to {
		return true
	}
	tg := g.graphFor(key)
	tg.mu.RLock()
	defer tg.mu.RUnlock()

	visited := map[string]bool{to: true}
	queue := []string{to}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node == from {
			return true
		}
		for next := range tg.out[node] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// DetectCycles returns every strongly-connected component of size >= 2,
// plus self-loops, recomputing via Tarjan's algorithm if the graph has
// changed since the last call. Newly observed cycle signatures are logged
// once at warning level.
func (g *Graph) DetectCycles(key tenant.Key) []Cycle {
	tg := g.graphFor(key)
	tg.mu.Lock()
	defer tg.mu.Unlock()

	if tg.cyclesDirty {
		tg.cycles = tarjanCycles(tg.out)
		tg.cyclesDirty = false

		for _, c := range tg.cycles {
			sig := c.signature()
			if !tg.seenCycles[sig] {
				tg.seenCycles[sig] = true
				g.logger.Warn("cycle detected in link graph",
					slog.String("tenant", key.String()),
					slog.Any("nodes", c.Nodes))
			}
		}
	}

	return append([]Cycle(nil), tg.cycles...)
}

// CyclesContaining filters the cached cycle report to those containing path.
func (g *Graph) CyclesContaining(key tenant.Key, path string) []Cycle {
	var result []Cycle
	for _, c := range g.DetectCycles(key) {
		for _, n := range c.Nodes {
			if n == path {
				result = append(result, c)
				break
			}
		}
	}
	return result
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// tarjanCycles runs Tarjan's strongly-connected-components algorithm over
// out, O(V+E), and returns every component of size >= 2 plus self-loops.
func tarjanCycles(out map[string]map[string]struct{}) []Cycle {
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var cycles []Cycle

	nodes := make([]string, 0, len(out))
	for n := range out {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	var strongconnect func(v string)
	strongconnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		neighbors := sortedKeys(out[v])
		for _, w := range neighbors {
			if _, visited := indices[w]; !visited {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var component []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}

			if len(component) >= 2 {
				sort.Strings(component)
				cycles = append(cycles, Cycle{Nodes: component})
			} else if len(component) == 1 {
				n := component[0]
				if _, selfLoop := out[n][n]; selfLoop {
					cycles = append(cycles, Cycle{Nodes: component})
				}
			}
		}
	}

	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongconnect(n)
		}
	}

	return cycles
}
