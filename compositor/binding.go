package compositor

import "encoding/binary"

// MaskNone marks an unclipped entry in the per-batch mask array.
const MaskNone = ^uint32(0)

// ClipNone marks an unclipped CompositeLayer.
const ClipNone = -1

// CompositeLayer is one flattened render operation. It is regenerated from
// the layer tree for every render pass and discarded afterwards.
type CompositeLayer struct {
	// Texture indexes the render pass's layer-texture list.
	Texture uint32

	// Clipped is the flattened-list index of the mask source layer, or
	// ClipNone when the layer is unclipped.
	Clipped int

	// Opacity scales the layer alpha, 0..1.
	Opacity float32

	// Blend selects the combining function.
	Blend BlendingMode
}

// CPUBuffers holds the per-batch scalar arrays uploaded to the shader.
// All slices have the batch capacity; entries past Count are padding
// (slot 0, MaskNone, opacity 0).
type CPUBuffers struct {
	Blends     []uint32
	Opacities  []float32
	Masks      []uint32
	LayerSlots []uint32
	Count      int
}

func newCPUBuffers(capacity int) CPUBuffers {
	b := CPUBuffers{
		Blends:     make([]uint32, capacity),
		Opacities:  make([]float32, capacity),
		Masks:      make([]uint32, capacity),
		LayerSlots: make([]uint32, capacity),
	}
	for i := range b.Masks {
		b.Masks[i] = MaskNone
	}
	return b
}

// encode serializes the arrays little-endian for queue upload.
func (b *CPUBuffers) encode() (blends, opacities, masks, slots []byte) {
	n := len(b.Blends)
	blends = make([]byte, n*4)
	opacities = make([]byte, n*4)
	masks = make([]byte, n*4)
	slots = make([]byte, n*4)
	le := binary.LittleEndian
	for i := 0; i < n; i++ {
		le.PutUint32(blends[i*4:], b.Blends[i])
		le.PutUint32(opacities[i*4:], f32bits(b.Opacities[i]))
		le.PutUint32(masks[i*4:], b.Masks[i])
		le.PutUint32(slots[i*4:], b.LayerSlots[i])
	}
	return blends, opacities, masks, slots
}

// renderBatch is one shader invocation's worth of layers plus the
// deduplicated texture views it binds.
type renderBatch struct {
	bufs CPUBuffers

	// views maps binding slot -> texture index. The same physical texture
	// referenced by both a drawing layer and a clip mask is bound once.
	views []uint32
}

// bindingMapper deduplicates texture references within one batch and
// enforces the view budget.
type bindingMapper struct {
	budget int
	slots  map[uint32]uint32
	views  []uint32
}

func newBindingMapper(budget int) *bindingMapper {
	return &bindingMapper{
		budget: budget,
		slots:  make(map[uint32]uint32, budget),
	}
}

// fits reports whether binding texture (and mask, when clipped) stays
// within the view budget.
func (m *bindingMapper) fits(texture, mask uint32, clipped bool) bool {
	need := 0
	if _, ok := m.slots[texture]; !ok {
		need++
	}
	if clipped && mask != texture {
		if _, ok := m.slots[mask]; !ok {
			need++
		}
	}
	return len(m.views)+need <= m.budget
}

// slot returns the binding slot for a texture, assigning one on first use.
func (m *bindingMapper) slot(texture uint32) uint32 {
	if s, ok := m.slots[texture]; ok {
		return s
	}
	s := uint32(len(m.views))
	m.slots[texture] = s
	m.views = append(m.views, texture)
	return s
}

// buildBatches partitions the flattened layer list into batches of at most
// capacity layers whose deduplicated texture views also fit in capacity
// bindings. Batch order preserves list order; later batches blend on top of
// earlier ones.
func buildBatches(layers []CompositeLayer, capacity int) []renderBatch {
	var batches []renderBatch
	mapper := newBindingMapper(capacity)
	bufs := newCPUBuffers(capacity)

	flush := func() {
		if bufs.Count == 0 {
			return
		}
		batches = append(batches, renderBatch{bufs: bufs, views: mapper.views})
		mapper = newBindingMapper(capacity)
		bufs = newCPUBuffers(capacity)
	}

	for _, l := range layers {
		maskTex := uint32(0)
		clipped := l.Clipped != ClipNone
		if clipped {
			maskTex = layers[l.Clipped].Texture
		}
		if bufs.Count == capacity || !mapper.fits(l.Texture, maskTex, clipped) {
			flush()
		}
		i := bufs.Count
		bufs.Blends[i] = l.Blend.ToU32()
		bufs.Opacities[i] = l.Opacity
		bufs.LayerSlots[i] = mapper.slot(l.Texture)
		if clipped {
			bufs.Masks[i] = mapper.slot(maskTex)
		}
		bufs.Count++
	}
	flush()
	return batches
}
