// Package graph orders workflow nodes into dispatchable steps. Nodes
// connected by edges are topologically leveled, and nodes sharing a level
// run together as a group. Nodes without edges each form their own step.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/weave-services/weave/engine/pkg/api"
)

type (
	// Entry is one dispatchable step of a workflow: a single node or a
	// group of nodes that share a topological level
	Entry interface {
		Nodes() []*api.NodeConfig
		IsGroup() bool
	}

	// Single is an entry executing exactly one node
	Single struct {
		Node *api.NodeConfig
	}

	// Group is an entry executing several nodes as one step
	Group struct {
		Members []*api.NodeConfig
	}

	// Graph is the ordered sequence of steps built from a node list
	Graph struct {
		entries []Entry
	}

	buildEntry struct {
		entry Entry
		level int
		order int
	}
)

var (
	ErrDuplicateNodeID  = errors.New("duplicate node ID")
	ErrUnknownEdgeNode  = errors.New("edge references unknown node")
	ErrCycleDetected    = errors.New("workflow graph contains a cycle")
	ErrEntryOutOfRange  = errors.New("step index out of range")
	ErrNoNodesInRequest = errors.New("no nodes to build graph from")
)

// Build validates the node list and edges and produces the step sequence
func Build(nodes []*api.NodeConfig, edges []*api.Edge) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, ErrNoNodesInRequest
	}

	byID := map[api.NodeID]int{}
	for i, n := range nodes {
		if n.ID == "" {
			continue
		}
		if _, ok := byID[n.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNodeID, n.ID)
		}
		byID[n.ID] = i
	}

	connected := map[int]bool{}
	succ := map[int][]int{}
	indeg := map[int]int{}
	for _, e := range edges {
		src, ok := byID[e.Source]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEdgeNode, e.Source)
		}
		dst, ok := byID[e.Target]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEdgeNode, e.Target)
		}
		succ[src] = append(succ[src], dst)
		indeg[dst]++
		connected[src] = true
		connected[dst] = true
	}

	levels, err := levelNodes(nodes, connected, succ, indeg)
	if err != nil {
		return nil, err
	}

	var entries []buildEntry
	for i, n := range nodes {
		if !connected[i] {
			entries = append(entries, buildEntry{
				entry: &Single{Node: n},
				order: i,
			})
		}
	}
	for level, members := range groupByLevel(nodes, connected, levels) {
		be := buildEntry{level: level, order: members[0]}
		if len(members) == 1 {
			be.entry = &Single{Node: nodes[members[0]]}
		} else {
			group := &Group{}
			for _, idx := range members {
				group.Members = append(group.Members, nodes[idx])
			}
			be.entry = group
		}
		entries = append(entries, be)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].level != entries[j].level {
			return entries[i].level < entries[j].level
		}
		return entries[i].order < entries[j].order
	})

	g := &Graph{}
	for _, be := range entries {
		g.entries = append(g.entries, be.entry)
	}
	return g, nil
}

// levelNodes assigns each edge-connected node its longest-path depth,
// rejecting cyclic graphs
func levelNodes(
	nodes []*api.NodeConfig, connected map[int]bool,
	succ map[int][]int, indeg map[int]int,
) (map[int]int, error) {
	levels := map[int]int{}
	var ready []int
	for i := range nodes {
		if connected[i] && indeg[i] == 0 {
			ready = append(ready, i)
		}
	}
	sort.Ints(ready)

	processed := 0
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		processed++
		for _, next := range succ[cur] {
			if levels[cur]+1 > levels[next] {
				levels[next] = levels[cur] + 1
			}
			indeg[next]--
			if indeg[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if processed < len(connected) {
		return nil, ErrCycleDetected
	}
	return levels, nil
}

func groupByLevel(
	nodes []*api.NodeConfig, connected map[int]bool, levels map[int]int,
) map[int][]int {
	res := map[int][]int{}
	for i := range nodes {
		if !connected[i] {
			continue
		}
		lvl := levels[i]
		res[lvl] = append(res[lvl], i)
	}
	for _, members := range res {
		sort.Ints(members)
	}
	return res
}

// Len returns the number of dispatchable steps
func (g *Graph) Len() int {
	return len(g.entries)
}

// Entry returns the step at the given index
func (g *Graph) Entry(i int) (Entry, error) {
	if i < 0 || i >= len(g.entries) {
		return nil, fmt.Errorf("%w: %d", ErrEntryOutOfRange, i)
	}
	return g.entries[i], nil
}

func (s *Single) Nodes() []*api.NodeConfig {
	return []*api.NodeConfig{s.Node}
}

func (*Single) IsGroup() bool {
	return false
}

func (g *Group) Nodes() []*api.NodeConfig {
	return g.Members
}

func (*Group) IsGroup() bool {
	return true
}
