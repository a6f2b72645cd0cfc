package silica

import "github.com/silicaview/silica/compositor"

// SilicaChunk records where one decoded tile of a layer lives in the shared
// atlas. AtlasIndex is never zero; zero is the "no chunk" sentinel.
type SilicaChunk struct {
	Col        uint32
	Row        uint32
	AtlasIndex uint32
}

// SilicaLayer is a leaf drawable. Pixel data is immutable after load;
// Opacity, Hidden, Clipped and Blend may be mutated by a UI between renders
// (see Document.Update).
type SilicaLayer struct {
	Name    string
	UUID    string
	Blend   compositor.BlendingMode
	Opacity float32
	Hidden  bool
	Clipped bool
	Version uint64

	// Width and Height are the layer's own pixel size, which may differ
	// from the canvas.
	Width  uint32
	Height uint32

	// Image indexes the document's layer-texture list.
	Image uint32

	Chunks []SilicaChunk
}

// SilicaGroup is an ordered container of layers and sub-groups. Children
// are stored front-to-back; compositing traverses them in reverse.
type SilicaGroup struct {
	Name     string
	Hidden   bool
	Children []SilicaHierarchy
}

// SilicaHierarchy is a node of the layer tree: either *SilicaLayer or
// *SilicaGroup.
type SilicaHierarchy interface {
	// CountLayers returns the number of leaf layers beneath the node.
	CountLayers() uint32

	// cloneNode deep-copies the node for render snapshots.
	cloneNode() SilicaHierarchy
}

// CountLayers returns 1.
func (l *SilicaLayer) CountLayers() uint32 { return 1 }

// CountLayers sums the leaf count of all children.
func (g *SilicaGroup) CountLayers() uint32 {
	var n uint32
	for _, c := range g.Children {
		n += c.CountLayers()
	}
	return n
}

func (l *SilicaLayer) cloneNode() SilicaHierarchy {
	c := *l
	c.Chunks = append([]SilicaChunk(nil), l.Chunks...)
	return &c
}

func (g *SilicaGroup) cloneNode() SilicaHierarchy {
	return g.Clone()
}

// Clone deep-copies the group tree. Renders snapshot the tree so that UI
// mutation never races an in-flight composite.
func (g *SilicaGroup) Clone() *SilicaGroup {
	c := &SilicaGroup{Name: g.Name, Hidden: g.Hidden}
	c.Children = make([]SilicaHierarchy, len(g.Children))
	for i, child := range g.Children {
		c.Children[i] = child.cloneNode()
	}
	return c
}
