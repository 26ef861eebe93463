package hnsw

// LevelStats summarizes one layer of the graph.
type LevelStats struct {
	Level          int
	Nodes          int
	Connections    int
	AvgConnections float64
}

// Stats describes the shape of the graph.
type Stats struct {
	Nodes           int
	MaxLevel        int
	EntryPoint      uint32
	M               int
	MaxConnections0 int
	MaxConnections  int
	EFConstruction  int
	Heuristic       bool
	Levels          []LevelStats
}

// Stats returns statistics about the HNSW graph.
func (h *HNSW) Stats() Stats {
	st := Stats{
		MaxLevel:        -1,
		M:               h.opts.M,
		MaxConnections0: h.maxConnectionsLayer0,
		MaxConnections:  h.maxConnectionsPerLayer,
		EFConstruction:  h.opts.EFConstruction,
		Heuristic:       h.opts.Heuristic,
	}

	if ep := h.entry.Load(); ep != nil {
		st.EntryPoint = uint32(ep.id)
		st.MaxLevel = ep.level
	}

	nodes := *h.nodes.Load()
	st.Nodes = len(nodes)
	if st.MaxLevel < 0 {
		return st
	}

	st.Levels = make([]LevelStats, st.MaxLevel+1)
	for i := range st.Levels {
		st.Levels[i].Level = i
	}
	for _, n := range nodes {
		for layer := 0; layer <= n.level && layer < len(st.Levels); layer++ {
			st.Levels[layer].Nodes++
			st.Levels[layer].Connections += len(n.neighbors(layer))
		}
	}
	for i := range st.Levels {
		if st.Levels[i].Nodes > 0 {
			st.Levels[i].AvgConnections = float64(st.Levels[i].Connections) / float64(st.Levels[i].Nodes)
		}
	}

	return st
}
