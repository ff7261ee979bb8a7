package graph

import (
	"sort"
	"strings"
)

// DefaultMaxPathDepth bounds FindPaths when the caller passes a non-positive
// depth.
const DefaultMaxPathDepth = 5

// FindPaths enumerates all simple paths (no repeated node) from src to dst
// over outgoing edges, visiting at most maxDepth edges per path.
//
// Results are deterministic: shortest paths first, ties broken by node
// sequence. When src == dst the single-node path [src] is included, plus the
// one-edge cycle [src, src] when a self-loop edge exists. Either id being
// blank or unknown yields an empty result.
func (s *Store) FindPaths(src, dst NodeID, maxDepth int) [][]NodeID {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxPathDepth
	}
	if blankID(src) || blankID(dst) {
		return [][]NodeID{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[src]; !ok {
		return [][]NodeID{}
	}
	if _, ok := s.nodes[dst]; !ok {
		return [][]NodeID{}
	}

	if src == dst {
		paths := [][]NodeID{{src}}
		for key := range s.outgoing[src] {
			if key.To == src {
				paths = append(paths, []NodeID{src, src})
				break
			}
		}
		return paths
	}

	var paths [][]NodeID
	visited := map[NodeID]bool{src: true}
	path := []NodeID{src}

	var dfs func(current NodeID)
	dfs = func(current NodeID) {
		if len(path)-1 >= maxDepth {
			return
		}
		for _, next := range s.successorsLocked(current) {
			if next == dst {
				found := make([]NodeID, len(path)+1)
				copy(found, path)
				found[len(path)] = dst
				paths = append(paths, found)
				continue
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			path = append(path, next)
			dfs(next)
			path = path[:len(path)-1]
			visited[next] = false
		}
	}
	dfs(src)

	sort.SliceStable(paths, func(i, j int) bool {
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) < len(paths[j])
		}
		return joinPath(paths[i]) < joinPath(paths[j])
	})
	return paths
}

// FindShortestPath returns one shortest path from src to dst by BFS over
// outgoing edges, or an empty slice when unreachable or either id is
// invalid. src == dst yields [src].
func (s *Store) FindShortestPath(src, dst NodeID) []NodeID {
	if blankID(src) || blankID(dst) {
		return []NodeID{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[src]; !ok {
		return []NodeID{}
	}
	if _, ok := s.nodes[dst]; !ok {
		return []NodeID{}
	}
	if src == dst {
		return []NodeID{src}
	}

	parent := map[NodeID]NodeID{src: src}
	queue := []NodeID{src}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range s.successorsLocked(current) {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = current
			if next == dst {
				return rebuildPath(parent, src, dst)
			}
			queue = append(queue, next)
		}
	}
	return []NodeID{}
}

// GetSubgraph returns every node reachable from root within depth undirected
// hops, in BFS order. Each entry carries all of the node's incident edges
// (in and out) at the time of the call; each node appears once. An invalid
// root yields an empty result.
func (s *Store) GetSubgraph(root NodeID, depth int) []SubgraphEntry {
	if depth < 0 {
		depth = 2
	}
	if blankID(root) {
		return []SubgraphEntry{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[root]; !ok {
		return []SubgraphEntry{}
	}

	type frontier struct {
		id   NodeID
		hops int
	}

	visited := map[NodeID]bool{root: true}
	queue := []frontier{{id: root, hops: 0}}
	result := make([]SubgraphEntry, 0)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		node := s.nodes[current.id]
		result = append(result, SubgraphEntry{
			Node:  s.copyNode(node),
			Edges: s.nodeEdgesLocked(current.id, DirectionBoth),
		})

		if current.hops >= depth {
			continue
		}
		for _, next := range s.undirectedNeighborsLocked(current.id) {
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, frontier{id: next, hops: current.hops + 1})
		}
	}
	return result
}

// ConnectedComponents returns the weakly connected components as sorted id
// slices, ordered by each component's smallest id. Isolated nodes form
// singleton components.
func (s *Store) ConnectedComponents() [][]NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]NodeID, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	visited := make(map[NodeID]bool, len(ids))
	components := make([][]NodeID, 0)

	for _, start := range ids {
		if visited[start] {
			continue
		}
		component := []NodeID{}
		queue := []NodeID{start}
		visited[start] = true

		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			component = append(component, current)

			for _, next := range s.undirectedNeighborsLocked(current) {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}

		sort.Slice(component, func(i, j int) bool { return component[i] < component[j] })
		components = append(components, component)
	}
	return components
}

// successorsLocked returns the distinct targets of the node's outgoing
// edges, ordered by edge insertion. Caller must hold at least a read lock.
func (s *Store) successorsLocked(id NodeID) []NodeID {
	keys := s.outgoing[id]
	if len(keys) == 0 {
		return nil
	}
	edges := make([]*Edge, 0, len(keys))
	for key := range keys {
		if edge := s.edges[key]; edge != nil {
			edges = append(edges, edge)
		}
	}
	sortEdges(edges)

	seen := make(map[NodeID]struct{}, len(edges))
	out := make([]NodeID, 0, len(edges))
	for _, edge := range edges {
		if _, dup := seen[edge.To]; dup {
			continue
		}
		seen[edge.To] = struct{}{}
		out = append(out, edge.To)
	}
	return out
}

// undirectedNeighborsLocked returns the node's neighbors over both edge
// directions, sorted by id. Caller must hold at least a read lock.
func (s *Store) undirectedNeighborsLocked(id NodeID) []NodeID {
	set := make(map[NodeID]struct{})
	for key := range s.outgoing[id] {
		set[key.To] = struct{}{}
	}
	for key := range s.incoming[id] {
		set[key.From] = struct{}{}
	}
	delete(set, id) // a self-loop is not a hop

	out := make([]NodeID, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func rebuildPath(parent map[NodeID]NodeID, src, dst NodeID) []NodeID {
	path := []NodeID{dst}
	for current := dst; current != src; {
		current = parent[current]
		path = append(path, current)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func joinPath(p []NodeID) string {
	parts := make([]string, len(p))
	for i, id := range p {
		parts[i] = string(id)
	}
	return strings.Join(parts, "\x00")
}
