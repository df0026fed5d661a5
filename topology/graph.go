package topology

import (
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// Graph builds the dimension-n hypercube as an undirected graph whose node IDs
// are vertex IDs.
func Graph(n int) graph.Undirected {
	g := simple.NewUndirectedGraph()

	numVertices := NumVertices(n)
	for v := 0; v < numVertices; v++ {
		g.AddNode(simple.Node(v))
	}

	for v := 0; v < numVertices; v++ {
		for j := 0; j < n; j++ {
			u := Neighbor(v, j)
			if u < v {
				continue
			}

			g.SetEdge(simple.Edge{F: simple.Node(v), T: simple.Node(u)})
		}
	}

	return g
}

// Distances returns the hop distance from vertex from to every vertex of the
// dimension-n hypercube, indexed by vertex ID. Unreachable vertices, which a
// hypercube never has, would be reported as -1.
func Distances(n, from int) []int {
	g := Graph(n)
	tree := path.DijkstraFrom(simple.Node(from), g)

	distances := make([]int, NumVertices(n))
	for v := range distances {
		weight := tree.WeightTo(int64(v))
		if math.IsInf(weight, 1) {
			distances[v] = -1
			continue
		}

		distances[v] = int(weight)
	}

	return distances
}
