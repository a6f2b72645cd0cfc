// Package silica reads Procreate documents: it decodes the zip container's
// keyed-archive metadata, decompresses every layer's tile chunks into a
// shared texture atlas, and flattens the layer tree through the compositor.
package silica

import (
	"fmt"
	"image"
	"sync"

	"golang.org/x/exp/mmap"
	"golang.org/x/sync/errgroup"

	"github.com/silicaview/silica/compositor"
)

// Orientation is the document's stored rotation. Values outside 1..4 are
// rejected at load time.
type Orientation uint32

const (
	OrientationNone Orientation = 1
	Orientation180  Orientation = 2
	Orientation270  Orientation = 3
	Orientation90   Orientation = 4
)

// Flipped records the document's mirror state.
type Flipped struct {
	Horizontally bool
	Vertically   bool
}

// Document is an opened Procreate file. Layer pixel data is immutable; the
// tree's opacity/visibility/blend state may be edited through Update while
// renders run concurrently against their own snapshot.
type Document struct {
	mu        sync.RWMutex
	reader    *mmap.ReaderAt
	comp      *compositor.Compositor
	atlas     *compositor.Atlas
	tiling    compositor.CanvasTiling
	textures  []*compositor.LayerTexture
	layers    *SilicaGroup
	composite *SilicaLayer

	Name            string
	AuthorName      string
	StrokeCount     uint64
	Width           uint32
	Height          uint32
	TileSize        uint32
	BackgroundColor [4]float32
	BackgroundHidden bool
	Flipped         Flipped
	Orientation     Orientation
}

// Open memory-maps and fully loads a document: metadata, layer tree, and
// every tile chunk, decoded in parallel across layers. Any failure other
// than the composite preview aborts the load; no partial document is
// returned.
func Open(path string, dev *compositor.Device) (*Document, error) {
	comp, err := compositor.New(dev)
	if err != nil {
		return nil, err
	}

	r, err := mmap.Open(path)
	if err != nil {
		comp.Close()
		return nil, err
	}

	doc, err := load(r, dev, comp)
	if err != nil {
		comp.Close()
		r.Close()
		return nil, err
	}
	doc.reader = r
	return doc, nil
}

func load(r *mmap.ReaderAt, dev *compositor.Device, comp *compositor.Compositor) (*Document, error) {
	zr, err := newZipReader(r, int64(r.Len()))
	if err != nil {
		return nil, err
	}
	ld, err := newLoader(zr, dev)
	if err != nil {
		return nil, err
	}
	root := ld.nka.Root()

	doc := &Document{
		comp:     comp,
		atlas:    ld.atlas,
		tiling:   ld.tiling,
		Width:    ld.canvasW,
		Height:   ld.canvasH,
		TileSize: ld.tiling.TileSize,
	}

	fail := func(err error) (*Document, error) {
		ld.atlas.Destroy()
		return nil, err
	}

	if doc.Name, err = ld.nka.OptString(root, "name"); err != nil {
		return fail(err)
	}
	if doc.AuthorName, err = ld.nka.OptString(root, "authorName"); err != nil {
		return fail(err)
	}
	if doc.StrokeCount, err = ld.nka.Uint(root, "strokeCount"); err != nil {
		return fail(err)
	}
	if doc.BackgroundHidden, err = ld.nka.Bool(root, "backgroundHidden"); err != nil {
		return fail(err)
	}
	bg, err := ld.nka.Bytes(root, "backgroundColor")
	if err != nil {
		return fail(err)
	}
	if doc.BackgroundColor, err = parseBackgroundColor(bg); err != nil {
		return fail(err)
	}
	orientation, err := ld.nka.Uint(root, "orientation")
	if err != nil {
		return fail(err)
	}
	if orientation < 1 || orientation > 4 {
		return fail(fmt.Errorf("orientation %d: %w", orientation, ErrInvalidValue))
	}
	doc.Orientation = Orientation(orientation)
	if doc.Flipped.Horizontally, err = ld.nka.Bool(root, "flippedHorizontally"); err != nil {
		return fail(err)
	}
	if doc.Flipped.Vertically, err = ld.nka.Bool(root, "flippedVertically"); err != nil {
		return fail(err)
	}

	nodes, err := ld.nka.Objects(root, "unwrappedLayers")
	if err != nil {
		return fail(err)
	}
	doc.layers = &SilicaGroup{Name: "Root Layer"}
	for _, n := range nodes {
		node, err := ld.decodeHierarchy(n)
		if err != nil {
			return fail(err)
		}
		doc.layers.Children = append(doc.layers.Children, node)
	}

	// The pre-rendered composite is a convenience; a missing or broken one
	// means "no preview", never a failed load.
	if compositeDict, cerr := ld.nka.Dict(root, "composite"); cerr != nil {
		Logger().Warn("composite preview unavailable", "error", cerr)
	} else if doc.composite, cerr = ld.decodeLayer(compositeDict); cerr != nil {
		Logger().Warn("composite preview unavailable", "error", cerr)
		doc.composite = nil
	}

	// Tile decode fans out across layers; the atlas slot counter is the
	// only shared mutable state between them.
	var g errgroup.Group
	ld.loadTree(&g, doc.layers)
	if err := g.Wait(); err != nil {
		return fail(err)
	}

	if doc.composite != nil {
		if err := ld.loadLayer(doc.composite); err != nil {
			Logger().Warn("composite preview unavailable", "error", err)
			doc.composite = nil
		}
	}

	doc.textures = ld.textures

	Logger().Info("document loaded",
		"name", doc.Name,
		"size", fmt.Sprintf("%dx%d", doc.Width, doc.Height),
		"tile_size", doc.TileSize,
		"layers", doc.layers.CountLayers(),
		"chunks", ld.atlas.Claimed())
	return doc, nil
}

// Close releases the compositor pipeline, the atlas, and the mapped file.
func (d *Document) Close() error {
	d.comp.Close()
	d.atlas.Destroy()
	if d.reader != nil {
		return d.reader.Close()
	}
	return nil
}

// Layers returns the layer tree. Mutate it only through Update.
func (d *Document) Layers() *SilicaGroup { return d.layers }

// Composite returns the pre-rendered flattened preview layer, or nil when
// the document has none (or its decode failed).
func (d *Document) Composite() *SilicaLayer { return d.composite }

// LayerCount returns the leaf layer count plus the composite pseudo-layer.
func (d *Document) LayerCount() uint32 { return d.layers.CountLayers() + 1 }

// Tiling returns the canvas tile geometry.
func (d *Document) Tiling() compositor.CanvasTiling { return d.tiling }

// Atlas returns the shared tile atlas. It is read-only after load.
func (d *Document) Atlas() *compositor.Atlas { return d.atlas }

// Update runs fn with exclusive access to the layer tree. Renders started
// afterwards observe the mutation; in-flight renders keep their snapshot.
func (d *Document) Update(fn func(root *SilicaGroup)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.layers)
}

// Snapshot returns a deep copy of the current layer tree.
func (d *Document) Snapshot() *SilicaGroup {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.layers.Clone()
}

// Render flattens the current layer tree into a new texture. The
// accumulator starts at the document background unless it is hidden.
// Safe to call concurrently with Update; the render works on a snapshot.
func (d *Document) Render() (*compositor.Texture, error) {
	d.mu.RLock()
	snap := d.layers.Clone()
	hidden := d.BackgroundHidden
	bg := d.BackgroundColor
	d.mu.RUnlock()

	var background *[4]float32
	if !hidden {
		background = &bg
	}
	return d.comp.Render(d.Width, d.Height, background, Linearize(snap), d.textures)
}

// RenderImage renders and applies the document's stored orientation and
// mirror state to the output pixels.
func (d *Document) RenderImage() (*image.RGBA, error) {
	tex, err := d.Render()
	if err != nil {
		return nil, err
	}
	return transformImage(tex.Image(), d.Orientation, d.Flipped), nil
}

// CompositeImage returns the document's pre-rendered flattened preview, or
// nil when unavailable.
func (d *Document) CompositeImage() *image.RGBA {
	if d.composite == nil {
		return nil
	}
	return d.textures[d.composite.Image].Image()
}
