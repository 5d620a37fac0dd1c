package graph

import "sort"

// Communities partitions the graph using a single-pass, deterministic
// greedy modularity optimisation in the spirit of the Louvain method:
// each node starts in its own community, then nodes are visited in
// fixed ascending id order and moved into whichever neighboring
// community gives the largest modularity gain, repeating until no move
// improves modularity. On a tie with its current community a node
// stays put; ties among other communities break toward the lowest id, so
// the result is reproducible for a fixed graph, which a randomized
// multi-level Louvain pass would not guarantee.
func Communities(g *Graph) [][]int {
	if g.n == 0 {
		return nil
	}

	community := make([]int, g.n)
	for i := range community {
		community[i] = i
	}

	totalWeight := 0.0
	for i := 0; i < g.n; i++ {
		totalWeight += g.Degree(i)
	}
	totalWeight /= 2
	if totalWeight == 0 {
		return singletonCommunities(g.n)
	}

	communityDegree := make([]float64, g.n)
	for i := 0; i < g.n; i++ {
		communityDegree[community[i]] += g.Degree(i)
	}

	improved := true
	for improved {
		improved = false
		for node := 0; node < g.n; node++ {
			currentComm := community[node]
			nodeDegree := g.Degree(node)

			weightToComm := map[int]float64{}
			for _, neigh := range g.Neighbors(node) {
				weightToComm[community[neigh]] += g.Weight(node, neigh)
			}

			communityDegree[currentComm] -= nodeDegree

			bestComm := currentComm
			bestGain := weightToComm[currentComm] - nodeDegree*communityDegree[currentComm]/(2*totalWeight)

			candidates := make([]int, 0, len(weightToComm))
			for c := range weightToComm {
				candidates = append(candidates, c)
			}
			sort.Ints(candidates)

			for _, c := range candidates {
				gain := weightToComm[c] - nodeDegree*communityDegree[c]/(2*totalWeight)
				if gain > bestGain {
					bestGain = gain
					bestComm = c
				}
			}

			communityDegree[bestComm] += nodeDegree
			if bestComm != currentComm {
				community[node] = bestComm
				improved = true
			}
		}
	}

	grouped := map[int][]int{}
	var order []int
	for node, comm := range community {
		if _, ok := grouped[comm]; !ok {
			order = append(order, comm)
		}
		grouped[comm] = append(grouped[comm], node)
	}
	sort.Ints(order)

	out := make([][]int, 0, len(order))
	for _, comm := range order {
		members := grouped[comm]
		sort.Ints(members)
		out = append(out, members)
	}
	return out
}

func singletonCommunities(n int) [][]int {
	out := make([][]int, n)
	for i := 0; i < n; i++ {
		out[i] = []int{i}
	}
	return out
}
