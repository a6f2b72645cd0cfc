package silica

import (
	"archive/zip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/klauspost/compress/flate"
	"golang.org/x/sync/errgroup"

	"github.com/silicaview/silica/compositor"
)

// documentArchiveName is the keyed-archive metadata entry inside the
// container.
const documentArchiveName = "Document.archive"

// loader carries the shared state of one document load: the open archive,
// the decoded keyed archive, and the atlas that parallel layer loads claim
// slots from.
type loader struct {
	names    []string
	byName   map[string]*zip.File
	nka      *keyedArchive
	atlas    *compositor.Atlas
	tiling   compositor.CanvasTiling
	canvasW  uint32
	canvasH  uint32
	textures []*compositor.LayerTexture
}

// newZipReader opens the container with the faster flate implementation
// registered for deflate entries.
func newZipReader(r io.ReaderAt, size int64) (*zip.Reader, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open container: %w", err)
	}
	zr.RegisterDecompressor(zip.Deflate, func(rd io.Reader) io.ReadCloser {
		return flate.NewReader(rd)
	})
	return zr, nil
}

func newLoader(zr *zip.Reader, dev *compositor.Device) (*loader, error) {
	ld := &loader{
		byName: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		ld.names = append(ld.names, f.Name)
		ld.byName[f.Name] = f
	}

	meta, ok := ld.byName[documentArchiveName]
	if !ok {
		return nil, fmt.Errorf("entry %q: %w", documentArchiveName, ErrMissingKey)
	}
	data, err := readEntry(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", documentArchiveName, err)
	}
	if ld.nka, err = decodeKeyedArchive(data); err != nil {
		return nil, err
	}

	root := ld.nka.Root()
	sizeStr, err := ld.nka.String(root, "size")
	if err != nil {
		return nil, err
	}
	if ld.canvasW, ld.canvasH, err = parseSize(sizeStr); err != nil {
		return nil, err
	}
	tileSize, err := ld.nka.Uint(root, "tileSize")
	if err != nil {
		return nil, err
	}
	if tileSize == 0 || tileSize > compositor.MaxTextureDim {
		return nil, fmt.Errorf("tile size %d: %w", tileSize, ErrInvalidValue)
	}
	ld.tiling = compositor.NewCanvasTiling(ld.canvasW, ld.canvasH, uint32(tileSize))

	// The atlas is sized by the archive's total entry count: an upper
	// bound on the tile count across all layers plus the composite.
	if ld.atlas, err = compositor.NewAtlas(dev, uint32(len(zr.File)), uint32(tileSize)); err != nil {
		return nil, err
	}
	return ld, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// decodeHierarchy turns one keyed-archive node into a layer or group,
// selected by its archived class name.
func (ld *loader) decodeHierarchy(v any) (SilicaHierarchy, error) {
	d, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("hierarchy node: expected dictionary, got %T: %w", v, ErrTypeMismatch)
	}
	class, err := ld.nka.ClassName(d)
	if err != nil {
		return nil, err
	}
	switch class {
	case "SilicaGroup":
		return ld.decodeGroup(d)
	case "SilicaLayer":
		return ld.decodeLayer(d)
	default:
		return nil, fmt.Errorf("$class %q: %w", class, ErrTypeMismatch)
	}
}

func (ld *loader) decodeGroup(d map[string]any) (*SilicaGroup, error) {
	nka := ld.nka
	hidden, err := nka.Bool(d, "isHidden")
	if err != nil {
		return nil, err
	}
	name, err := nka.OptString(d, "name")
	if err != nil {
		return nil, err
	}
	children, err := nka.Objects(d, "children")
	if err != nil {
		return nil, err
	}
	g := &SilicaGroup{Name: name, Hidden: hidden}
	for _, c := range children {
		node, err := ld.decodeHierarchy(c)
		if err != nil {
			return nil, err
		}
		g.Children = append(g.Children, node)
	}
	return g, nil
}

// decodeLayer reads a layer's metadata and registers its texture. Tile
// decode happens later, in the parallel load phase.
func (ld *loader) decodeLayer(d map[string]any) (*SilicaLayer, error) {
	nka := ld.nka

	uuid, err := nka.String(d, "UUID")
	if err != nil {
		return nil, err
	}

	// extendedBlend supersedes the legacy blend key when present.
	blendVal, ok, err := nka.OptUint(d, "extendedBlend")
	if err != nil {
		return nil, err
	}
	if !ok {
		if blendVal, err = nka.Uint(d, "blend"); err != nil {
			return nil, err
		}
	}
	blend, ok := compositor.BlendingModeFromU32(uint32(blendVal))
	if !ok {
		return nil, fmt.Errorf("layer %s blend %d: %w", uuid, blendVal, ErrInvalidValue)
	}

	clipped, err := nka.Bool(d, "clipped")
	if err != nil {
		return nil, err
	}
	hidden, err := nka.Bool(d, "hidden")
	if err != nil {
		return nil, err
	}
	name, err := nka.OptString(d, "name")
	if err != nil {
		return nil, err
	}
	opacity, err := nka.Float(d, "opacity")
	if err != nil {
		return nil, err
	}
	version, _, err := nka.OptUint(d, "version")
	if err != nil {
		return nil, err
	}

	// Layers carry their own pixel size in newer documents; older ones
	// use the canvas size.
	width, height := ld.canvasW, ld.canvasH
	if w, ok, err := nka.OptUint(d, "sizeWidth"); err != nil {
		return nil, err
	} else if ok {
		width = uint32(w)
	}
	if h, ok, err := nka.OptUint(d, "sizeHeight"); err != nil {
		return nil, err
	} else if ok {
		height = uint32(h)
	}

	l := &SilicaLayer{
		Name:    name,
		UUID:    uuid,
		Blend:   blend,
		Opacity: float32(opacity),
		Hidden:  hidden,
		Clipped: clipped,
		Version: version,
		Width:   width,
		Height:  height,
		Image:   uint32(len(ld.textures)),
	}
	ld.textures = append(ld.textures, compositor.NewLayerTexture(ld.atlas, width, height))
	return l, nil
}

// loadLayer discovers the layer's tile entries by UUID prefix, decodes each
// payload, claims an atlas slot, and uploads the pixels. Layers load
// concurrently; the atlas slot counter is the only shared mutable state.
func (ld *loader) loadLayer(l *SilicaLayer) error {
	lt := ld.textures[l.Image]
	tiling := lt.Tiling()

	for _, name := range ld.names {
		if name == documentArchiveName || !strings.HasPrefix(name, l.UUID) {
			continue
		}
		rest := strings.TrimPrefix(name[len(l.UUID):], "/")
		if dot := strings.IndexByte(rest, '.'); dot >= 0 {
			rest = rest[:dot]
		}
		col, row, err := parseChunkName(rest)
		if err != nil {
			return fmt.Errorf("layer %s: %w", l.UUID, err)
		}
		if col >= tiling.Cols || row >= tiling.Rows {
			return fmt.Errorf("layer %s chunk (%d,%d) outside %dx%d grid: %w",
				l.UUID, col, row, tiling.Cols, tiling.Rows, ErrCorruptedFormat)
		}
		w, h := tiling.TileExtent(col, row)

		raw, err := readEntry(ld.byName[name])
		if err != nil {
			return fmt.Errorf("layer %s chunk %s: %w", l.UUID, name, err)
		}
		pix, err := decompressChunk(name, raw, int(w)*int(h)*4)
		if err != nil {
			return fmt.Errorf("layer %s chunk %s: %w", l.UUID, name, err)
		}

		slot, err := ld.atlas.Claim()
		if err != nil {
			return err
		}
		if err := ld.atlas.Upload(slot, pix, w, h); err != nil {
			return err
		}
		if err := lt.SetChunk(col, row, slot); err != nil {
			return err
		}
		l.Chunks = append(l.Chunks, SilicaChunk{Col: col, Row: row, AtlasIndex: slot})
	}

	Logger().Debug("layer loaded",
		"uuid", l.UUID, "name", l.Name, "chunks", len(l.Chunks))
	return nil
}

// loadTree fans the tile decode of every leaf layer out across the group.
func (ld *loader) loadTree(g *errgroup.Group, node SilicaHierarchy) {
	switch n := node.(type) {
	case *SilicaLayer:
		g.Go(func() error { return ld.loadLayer(n) })
	case *SilicaGroup:
		for _, c := range n.Children {
			ld.loadTree(g, c)
		}
	}
}

// parseChunkName extracts the grid position from a tile entry suffix like
// "12~7". The tilde is mandatory and both halves must be decimal.
func parseChunkName(s string) (col, row uint32, err error) {
	i := strings.IndexByte(s, '~')
	if i < 0 {
		return 0, 0, fmt.Errorf("chunk name %q: %w", s, ErrCorruptedFormat)
	}
	c, err := strconv.ParseUint(s[:i], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("chunk name %q: %w", s, ErrCorruptedFormat)
	}
	r, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("chunk name %q: %w", s, ErrCorruptedFormat)
	}
	return uint32(c), uint32(r), nil
}

// parseBackgroundColor decodes the 16-byte little-endian f32x4 RGBA blob.
func parseBackgroundColor(data []byte) ([4]float32, error) {
	var c [4]float32
	if len(data) != 16 {
		return c, fmt.Errorf("backgroundColor is %d bytes, expected 16: %w",
			len(data), ErrTypeMismatch)
	}
	for i := 0; i < 4; i++ {
		c[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return c, nil
}
