package domain

// BuildForest nests root-to-leaf paths into a deduplicated forest.
//
// Nodes live in an arena indexed by first appearance. The first pass materialises one slot per
// id, the second links consecutive path elements without duplicating children. Roots are the
// heads of non-empty paths in order of first appearance.
func BuildForest(paths []Path) []ActivityNode {
	type slot struct {
		id       int64
		name     string
		children []int
		linked   map[int]struct{}
	}

	var arena []slot
	index := make(map[int64]int)

	for _, path := range paths {
		for _, el := range path {
			if _, ok := index[el.ID]; ok {
				continue
			}
			index[el.ID] = len(arena)
			arena = append(arena, slot{id: el.ID, name: el.Name, linked: make(map[int]struct{})})
		}
	}

	var roots []int
	rootSeen := make(map[int]struct{})
	for _, path := range paths {
		if len(path) == 0 {
			continue
		}
		head := index[path[0].ID]
		if _, ok := rootSeen[head]; !ok {
			rootSeen[head] = struct{}{}
			roots = append(roots, head)
		}
		for i := 1; i < len(path); i++ {
			parent := index[path[i-1].ID]
			child := index[path[i].ID]
			if parent == child {
				continue
			}
			if _, ok := arena[parent].linked[child]; ok {
				continue
			}
			arena[parent].linked[child] = struct{}{}
			arena[parent].children = append(arena[parent].children, child)
		}
	}

	// materialise values; the on-stack set stops malformed input from recursing forever
	onStack := make([]bool, len(arena))
	var build func(i int) ActivityNode
	build = func(i int) ActivityNode {
		onStack[i] = true
		defer func() { onStack[i] = false }()

		node := ActivityNode{ID: arena[i].id, Name: arena[i].name, Children: []ActivityNode{}}
		for _, c := range arena[i].children {
			if onStack[c] {
				continue
			}
			node.Children = append(node.Children, build(c))
		}
		return node
	}

	forest := make([]ActivityNode, 0, len(roots))
	for _, r := range roots {
		forest = append(forest, build(r))
	}
	return forest
}
