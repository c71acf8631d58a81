package network

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/nvandessel/simwrap/internal/constants"
	"github.com/nvandessel/simwrap/internal/logging"
	"github.com/nvandessel/simwrap/internal/options"
	"github.com/nvandessel/simwrap/internal/pathutil"
)

// Stats summarizes what Clean removed.
type Stats struct {
	NodesBefore int
	NodesAfter  int
	LinksBefore int
	LinksAfter  int
}

// ParseCleanFlag reads --network_clean. Only "yes" enables cleaning; any
// value other than "yes" or "no" is reported and treated as "no".
func ParseCleanFlag(m options.Map, logger *slog.Logger) bool {
	logger = logging.OrDiscard(logger)
	v, ok := m.Value(options.KeyNetworkClean)
	if !ok {
		logger.Info("setting network clean", "value", "no")
		return false
	}
	switch strings.ToLower(v) {
	case "yes":
		logger.Info("setting network clean", "value", "yes")
		return true
	case "no":
		logger.Info("setting network clean", "value", "no")
		return false
	default:
		logger.Warn("invalid value for network clean, using no",
			"key", options.FlagName(options.KeyNetworkClean), "value", v)
		return false
	}
}

// Clean reduces n in place to the largest strongly connected component of
// the links carrying any of modes (all links when modes is empty). Links
// with an endpoint outside that component are dropped.
func Clean(n *Network, modes []string) Stats {
	st := Stats{NodesBefore: len(n.Nodes), LinksBefore: len(n.Links.Items)}

	index := make(map[string]int64, len(n.Nodes))
	g := simple.NewDirectedGraph()
	for i, node := range n.Nodes {
		index[node.ID] = int64(i)
		g.AddNode(simple.Node(i))
	}
	for _, l := range n.Links.Items {
		from, okFrom := index[l.From]
		to, okTo := index[l.To]
		if !okFrom || !okTo || from == to || !l.Allows(modes) {
			continue
		}
		if g.HasEdgeFromTo(from, to) {
			continue
		}
		g.SetEdge(g.NewEdge(simple.Node(from), simple.Node(to)))
	}

	keep := largest(topo.TarjanSCC(g))

	nodes := n.Nodes[:0]
	for i, node := range n.Nodes {
		if keep[int64(i)] {
			nodes = append(nodes, node)
		}
	}
	n.Nodes = nodes

	links := n.Links.Items[:0]
	for _, l := range n.Links.Items {
		from, okFrom := index[l.From]
		to, okTo := index[l.To]
		if okFrom && okTo && keep[from] && keep[to] {
			links = append(links, l)
		}
	}
	n.Links.Items = links

	st.NodesAfter, st.LinksAfter = len(n.Nodes), len(n.Links.Items)
	return st
}

// largest returns the IDs of the biggest component. Ties go to the
// component holding the earliest node in document order.
func largest(components [][]graph.Node) map[int64]bool {
	best := -1
	var bestMin int64
	for i, c := range components {
		minID := minNode(c)
		if best < 0 || len(c) > len(components[best]) ||
			(len(c) == len(components[best]) && minID < bestMin) {
			best, bestMin = i, minID
		}
	}
	keep := make(map[int64]bool)
	if best < 0 {
		return keep
	}
	for _, node := range components[best] {
		keep[node.ID()] = true
	}
	return keep
}

func minNode(c []graph.Node) int64 {
	ids := make([]int64, len(c))
	for i, node := range c {
		ids[i] = node.ID()
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) == 0 {
		return 0
	}
	return ids[0]
}

// CleanedPath returns the file a cleaned copy of original is written to:
// <dir>/<stem>_cleaned<ext>.
func CleanedPath(original string) string {
	return pathutil.InsertSuffix(original, constants.CleanedSuffix)
}

// CleanAndPersist cleans n and writes the result next to original. The
// original file is never overwritten.
func CleanAndPersist(n *Network, original string, modes []string, logger *slog.Logger) (string, Stats, error) {
	logger = logging.OrDiscard(logger)
	st := Clean(n, modes)
	logger.Info("cleaned network",
		"nodes_before", st.NodesBefore, "nodes_after", st.NodesAfter,
		"links_before", st.LinksBefore, "links_after", st.LinksAfter)

	path := CleanedPath(original)
	if path == original {
		return "", st, fmt.Errorf("cleaned network path equals original %s", original)
	}
	if err := Write(path, n); err != nil {
		return "", st, err
	}
	logger.Info("wrote cleaned network", "path", path)
	return path, st, nil
}
