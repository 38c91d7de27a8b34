package parser

// chunker accumulates (layer, z) pairs between progress flushes.
type chunker struct {
	total    int
	ratio    float64
	lastSend int

	indices []int
	zs      []float64
	seen    map[int]struct{}
}

func newChunker(total int, ratio float64) *chunker {
	return &chunker{total: total, ratio: ratio, seen: make(map[int]struct{})}
}

// due reports whether line i should flush the pending pairs first.
func (c *chunker) due(i int) bool {
	return float64(i-c.lastSend) > float64(c.total)*c.ratio && len(c.indices) > 0
}

func (c *chunker) add(layer int, z float64) {
	if _, ok := c.seen[layer]; ok {
		return
	}
	c.seen[layer] = struct{}{}
	c.indices = append(c.indices, layer)
	c.zs = append(c.zs, z)
}

// take returns the pending pairs as a chunk and starts a new one.
func (c *chunker) take(progress float64) Chunk {
	ch := Chunk{
		LayerIndices: c.indices,
		ZValues:      c.zs,
		Progress:     progress,
	}
	if ch.LayerIndices == nil {
		ch.LayerIndices = []int{}
		ch.ZValues = []float64{}
	}
	c.indices = nil
	c.zs = nil
	c.seen = make(map[int]struct{})
	return ch
}
