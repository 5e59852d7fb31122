package flow

// HandlerKind is the kind of an exception handler.
type HandlerKind uint8

const (
	HandlerCatch HandlerKind = iota
	HandlerFilter
	HandlerFinally
	HandlerFault
)

var handlerKindNames = [...]string{
	HandlerCatch:   "catch",
	HandlerFilter:  "filter",
	HandlerFinally: "finally",
	HandlerFault:   "fault",
}

func (k HandlerKind) String() string {
	if int(k) < len(handlerKindNames) {
		return handlerKindNames[k]
	}
	return "unknown"
}

// Region is one entry of the EH table: a protected try range and its handler.
// Both ranges are contiguous in lexical order.
type Region struct {
	Kind HandlerKind

	TryBeg, TryLast *Block

	// FilterBeg starts the filter code of a HandlerFilter region.
	// The filter runs up to the block before HndBeg.
	FilterBeg *Block

	HndBeg, HndLast *Block

	// EnclosingTry and EnclosingHnd are 1-based indices of the
	// innermost enclosing try and handler; 0 means none.
	EnclosingTry int
	EnclosingHnd int
}

// AddRegion appends r to the EH table and returns its 1-based index.
// Regions must be added innermost first.
func (g *Graph) AddRegion(r *Region) int {
	g.EH = append(g.EH, r)
	g.touch()
	return len(g.EH)
}

// Region returns the region with 1-based index i, or nil for 0.
func (g *Graph) Region(i int) *Region {
	if i <= 0 || i > len(g.EH) {
		return nil
	}
	return g.EH[i-1]
}

// InTry reports whether b is protected by try region i or one nested in it.
func (g *Graph) InTry(b *Block, i int) bool {
	for t := b.TryIndex; t != 0; t = g.Region(t).EnclosingTry {
		if t == i {
			return true
		}
	}
	return false
}

// InHandler reports whether b belongs to handler i or one nested in it.
func (g *Graph) InHandler(b *Block, i int) bool {
	for h := b.HndIndex; h != 0; h = g.Region(h).EnclosingHnd {
		if h == i {
			return true
		}
	}
	return false
}

// SameTryRegion reports whether a and b are protected by the same try.
func SameTryRegion(a, b *Block) bool { return a.TryIndex == b.TryIndex }

// SameHndRegion reports whether a and b are in the same handler.
func SameHndRegion(a, b *Block) bool { return a.HndIndex == b.HndIndex }

// SameEHRegion reports whether a and b share both try and handler regions.
func SameEHRegion(a, b *Block) bool { return SameTryRegion(a, b) && SameHndRegion(a, b) }

// IsTryBeg reports whether b begins a try region.
func (g *Graph) IsTryBeg(b *Block) bool {
	for _, r := range g.EH {
		if r.TryBeg == b {
			return true
		}
	}
	return false
}

// IsHandlerBeg reports whether b begins a handler or a filter.
func (g *Graph) IsHandlerBeg(b *Block) bool {
	for _, r := range g.EH {
		if r.HndBeg == b || r.FilterBeg == b {
			return true
		}
	}
	return false
}

// IsRegionLast reports whether b ends a try or handler region.
func (g *Graph) IsRegionLast(b *Block) bool {
	for _, r := range g.EH {
		if r.TryLast == b || r.HndLast == b {
			return true
		}
	}
	return false
}

// InFilter reports whether b belongs to filter code.
func (g *Graph) InFilter(b *Block) bool {
	r := g.Region(b.HndIndex)
	if r == nil || r.Kind != HandlerFilter || r.FilterBeg == nil {
		return false
	}
	for x := r.FilterBeg; x != nil && x != r.HndBeg; x = x.next {
		if x == b {
			return true
		}
	}
	return false
}

// RegionLast returns the last block of b's innermost region,
// or the graph's last block when b is outside every region.
func (g *Graph) RegionLast(b *Block) *Block {
	switch {
	case b.TryIndex == 0 && b.HndIndex == 0:
		return g.last
	case b.HndIndex == 0 || (b.TryIndex != 0 && b.TryIndex < b.HndIndex):
		return g.Region(b.TryIndex).TryLast
	default:
		return g.Region(b.HndIndex).HndLast
	}
}

// CanRemoveEmptyBlock reports whether deleting b leaves the EH table sound:
// b must not begin a region, and must not be the only block of one.
func (g *Graph) CanRemoveEmptyBlock(b *Block) bool {
	for _, r := range g.EH {
		if r.TryBeg == b || r.HndBeg == b || r.FilterBeg == b {
			return false
		}
		if r.TryLast == b && (b.prev == nil || b.prev.TryIndex != b.TryIndex) {
			return false
		}
		if r.HndLast == b && (b.prev == nil || b.prev.HndIndex != b.HndIndex) {
			return false
		}
	}
	return true
}

// updateForDeletedBlock moves any region end that was b onto the
// previous block of the same region.
func (g *Graph) updateForDeletedBlock(b *Block) {
	for i, r := range g.EH {
		if r.TryBeg == b || r.HndBeg == b || r.FilterBeg == b {
			g.Fatalf("%s: deleting the begin of EH region %d", b, i+1)
		}
		idx := i + 1
		if r.TryLast == b {
			r.TryLast = g.lastInRegion(b, func(x *Block) bool { return g.InTry(x, idx) })
		}
		if r.HndLast == b {
			r.HndLast = g.lastInRegion(b, func(x *Block) bool { return g.InHandler(x, idx) })
		}
	}
}

// lastInRegion returns the nearest block before b that satisfies in.
func (g *Graph) lastInRegion(b *Block, in func(*Block) bool) *Block {
	for x := b.prev; x != nil; x = x.prev {
		if in(x) {
			return x
		}
	}
	g.Fatalf("%s: region left without blocks", b)
	return nil
}

// replaceRegionLast retargets region ends from old to new.
func (g *Graph) replaceRegionLast(old, new *Block) {
	for _, r := range g.EH {
		if r.TryLast == old {
			r.TryLast = new
		}
		if r.HndLast == old {
			r.HndLast = new
		}
	}
}

// ExtendRegionLast makes last the end of every region that ended at old
// and contains last.
func (g *Graph) ExtendRegionLast(old, last *Block) {
	for i, r := range g.EH {
		idx := i + 1
		if r.TryLast == old && g.InTry(last, idx) {
			r.TryLast = last
		}
		if r.HndLast == old && g.InHandler(last, idx) {
			r.HndLast = last
		}
	}
	g.touch()
}
