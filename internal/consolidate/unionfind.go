// Package consolidate merges over-segmented conversations into topic groups
// through an ordered chain of merge policies over a disjoint-set arena.
package consolidate

// UnionFind is an arena-indexed disjoint-set over conversation indices:
// a parent array with union by rank and path compression.
type UnionFind struct {
	parent []int
	rank   []int
}

// NewUnionFind creates n singleton sets.
func NewUnionFind(n int) *UnionFind {
	u := &UnionFind{
		parent: make([]int, n),
		rank:   make([]int, n),
	}
	for i := range u.parent {
		u.parent[i] = i
	}
	return u
}

// Find returns the root of x's set, compressing the path.
func (u *UnionFind) Find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

// Union merges the sets holding a and b. Returns false if they were already
// one set, so callers can count real merge operations without double-counting.
func (u *UnionFind) Union(a, b int) bool {
	ra, rb := u.Find(a), u.Find(b)
	if ra == rb {
		return false
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
	return true
}

// Same reports whether a and b are in one set.
func (u *UnionFind) Same(a, b int) bool {
	return u.Find(a) == u.Find(b)
}
