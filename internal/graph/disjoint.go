package graph

// DisjointSet is a union-find structure over arbitrary int keys.
// Keys are remapped to dense indices so that sparse step numbers
// (1, 40, 900) still use compact parent/rank arrays.
type DisjointSet struct {
	index  map[int]int
	keys   []int
	parent []int
	rank   []int
}

// NewDisjointSet creates an empty set with room for n keys.
func NewDisjointSet(n int) *DisjointSet {
	return &DisjointSet{
		index:  make(map[int]int, n),
		keys:   make([]int, 0, n),
		parent: make([]int, 0, n),
		rank:   make([]int, 0, n),
	}
}

// Add registers key as a singleton. Returns false if it was already present.
func (d *DisjointSet) Add(key int) bool {
	if _, ok := d.index[key]; ok {
		return false
	}
	i := len(d.keys)
	d.index[key] = i
	d.keys = append(d.keys, key)
	d.parent = append(d.parent, i)
	d.rank = append(d.rank, 0)
	return true
}

// Has reports whether key was added.
func (d *DisjointSet) Has(key int) bool {
	_, ok := d.index[key]
	return ok
}

// Len returns the number of keys.
func (d *DisjointSet) Len() int {
	return len(d.keys)
}

// Find returns the representative key of key's set.
// ok is false if key was never added.
func (d *DisjointSet) Find(key int) (root int, ok bool) {
	i, ok := d.index[key]
	if !ok {
		return 0, false
	}
	return d.keys[d.find(i)], true
}

// find walks to the root, compressing the path as it goes.
func (d *DisjointSet) find(i int) int {
	root := i
	for d.parent[root] != root {
		root = d.parent[root]
	}
	for d.parent[i] != root {
		next := d.parent[i]
		d.parent[i] = root
		i = next
	}
	return root
}

// Union merges the sets containing a and b, by rank.
// Returns false if either key is unknown or they were already joined.
func (d *DisjointSet) Union(a, b int) bool {
	ia, okA := d.index[a]
	ib, okB := d.index[b]
	if !okA || !okB {
		return false
	}

	ra, rb := d.find(ia), d.find(ib)
	if ra == rb {
		return false
	}

	switch {
	case d.rank[ra] < d.rank[rb]:
		d.parent[ra] = rb
	case d.rank[ra] > d.rank[rb]:
		d.parent[rb] = ra
	default:
		d.parent[rb] = ra
		d.rank[ra]++
	}
	return true
}

// Connected reports whether a and b are in the same set.
func (d *DisjointSet) Connected(a, b int) bool {
	ra, okA := d.Find(a)
	rb, okB := d.Find(b)
	return okA && okB && ra == rb
}

// Groups returns the members of every set. Groups are ordered by the
// insertion order of their first member, and members keep insertion order.
func (d *DisjointSet) Groups() [][]int {
	slot := make(map[int]int)
	var groups [][]int
	for i, key := range d.keys {
		root := d.find(i)
		g, ok := slot[root]
		if !ok {
			g = len(groups)
			slot[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], key)
	}
	return groups
}
