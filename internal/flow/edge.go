package flow

import "fmt"

// Edge is a predecessor edge. One Edge exists per distinct source;
// DupCount records how many arms of Source lead here.
type Edge struct {
	Source   *Block
	DupCount int

	// WeightMin and WeightMax bound the edge's execution weight.
	WeightMin Weight
	WeightMax Weight
}

func (e *Edge) String() string {
	if e.DupCount > 1 {
		return fmt.Sprintf("%sx%d", e.Source, e.DupCount)
	}
	return e.Source.String()
}

// Weight returns the edge's best single weight estimate.
// The second result is false when the bounds disagree.
func (e *Edge) Weight() (Weight, bool) {
	if e.WeightMin == e.WeightMax {
		return e.WeightMin, true
	}
	return (e.WeightMin + e.WeightMax) / 2, false
}

// SetWeights sets both bounds, clamping min to max.
func (e *Edge) SetWeights(lo, hi Weight) {
	if lo < 0 {
		lo = 0
	}
	if hi < lo {
		hi = lo
	}
	e.WeightMin, e.WeightMax = lo, hi
}

// PredEdge returns the edge from src into b, or nil.
func (b *Block) PredEdge(src *Block) *Edge {
	for _, e := range b.Preds {
		if e.Source == src {
			return e
		}
	}
	return nil
}

// RefCount returns the number of incoming arms, counting multiplicity.
func (b *Block) RefCount() int {
	n := 0
	for _, e := range b.Preds {
		n += e.DupCount
	}
	return n
}

// NumPreds returns the number of distinct predecessors.
func (b *Block) NumPreds() int { return len(b.Preds) }

// SinglePred returns b's only predecessor, or nil.
func (b *Block) SinglePred() *Block {
	if len(b.Preds) != 1 {
		return nil
	}
	return b.Preds[0].Source
}

// AddRefPred records one more arm from src into b and returns the edge.
func (g *Graph) AddRefPred(b, src *Block) *Edge {
	g.touch()
	if e := b.PredEdge(src); e != nil {
		e.DupCount++
		return e
	}
	e := &Edge{Source: src, DupCount: 1, WeightMax: src.Weight}
	b.Preds = append(b.Preds, e)
	return e
}

// RemoveRefPred drops one arm from src into b. The edge disappears
// when its multiplicity reaches zero.
func (g *Graph) RemoveRefPred(b, src *Block) *Edge {
	g.touch()
	for i, e := range b.Preds {
		if e.Source != src {
			continue
		}
		e.DupCount--
		if e.DupCount == 0 {
			b.Preds = append(b.Preds[:i], b.Preds[i+1:]...)
		}
		return e
	}
	g.Fatalf("%s is not a predecessor of %s", src, b)
	return nil
}

// RemoveAllRefPreds drops every arm from src into b.
func (g *Graph) RemoveAllRefPreds(b, src *Block) *Edge {
	g.touch()
	for i, e := range b.Preds {
		if e.Source == src {
			b.Preds = append(b.Preds[:i], b.Preds[i+1:]...)
			return e
		}
	}
	g.Fatalf("%s is not a predecessor of %s", src, b)
	return nil
}

// ComputePreds rebuilds every predecessor list from successor arms.
// Edge weights start from the source weight.
func (g *Graph) ComputePreds() {
	for b := range g.Blocks() {
		b.Preds = nil
	}
	for b := range g.Blocks() {
		for _, s := range b.Succs() {
			g.AddRefPred(s, b)
		}
	}
	g.ComputeEdgeWeights()
}

// ComputeEdgeWeights sets edge weight bounds from block weights.
// A source with a single successor gives its full weight to the edge.
func (g *Graph) ComputeEdgeWeights() {
	for b := range g.Blocks() {
		for _, e := range b.Preds {
			src := e.Source
			if len(src.UniqueSuccs()) == 1 {
				e.SetWeights(src.Weight, src.Weight)
				continue
			}
			hi := src.Weight
			if b.Weight < hi {
				hi = b.Weight
			}
			e.SetWeights(0, hi)
		}
	}
}
