package compositor

import (
	_ "embed"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/composite.wgsl
var compositeShaderWGSL string

// batchConfig maps to the Config uniform in shaders/composite.wgsl:
// eight consecutive u32 fields, 32 bytes.
type batchConfig struct {
	Width     uint32
	Height    uint32
	Count     uint32
	TileSize  uint32
	AtlasCols uint32
	AtlasRows uint32
	ViewCount uint32
}

func (c batchConfig) toBytes() []byte {
	buf := make([]byte, 32)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], c.Width)
	le.PutUint32(buf[4:], c.Height)
	le.PutUint32(buf[8:], c.Count)
	le.PutUint32(buf[12:], c.TileSize)
	le.PutUint32(buf[16:], c.AtlasCols)
	le.PutUint32(buf[20:], c.AtlasRows)
	le.PutUint32(buf[24:], c.ViewCount)
	return buf
}

// viewInfo maps to the ViewInfo struct in the shader: five u32 fields.
type viewInfo struct {
	Width      uint32
	Height     uint32
	Cols       uint32
	Rows       uint32
	GridOffset uint32
}

func encodeViewInfos(infos []viewInfo) []byte {
	buf := make([]byte, len(infos)*20)
	le := binary.LittleEndian
	for i, v := range infos {
		o := i * 20
		le.PutUint32(buf[o:], v.Width)
		le.PutUint32(buf[o+4:], v.Height)
		le.PutUint32(buf[o+8:], v.Cols)
		le.PutUint32(buf[o+12:], v.Rows)
		le.PutUint32(buf[o+16:], v.GridOffset)
	}
	return buf
}

// pipeline holds the compiled compositing shader and the per-batch scalar
// buffers, sized once for the device's batch capacity. Grid and output
// buffers vary per render pass and are allocated by beginPass.
type pipeline struct {
	device hal.Device
	queue  hal.Queue

	module     hal.ShaderModule
	bgLayout   hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	compute    hal.ComputePipeline

	config     hal.Buffer
	blends     hal.Buffer
	opacities  hal.Buffer
	masks      hal.Buffer
	layerSlots hal.Buffer
	viewInfos  hal.Buffer

	capacity int
}

// pipelineBindGroupLayoutEntries matches the @group(0) @binding(N)
// annotations in shaders/composite.wgsl.
func pipelineBindGroupLayoutEntries() []gputypes.BindGroupLayoutEntry {
	uniform := gputypes.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
	storageRO := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
		}
	}
	storageRW := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		}
	}
	return []gputypes.BindGroupLayoutEntry{
		uniform,
		storageRO(1), // blends
		storageRO(2), // opacities
		storageRO(3), // masks
		storageRO(4), // layer_slots
		storageRO(5), // views
		storageRO(6), // grids
		storageRO(7), // atlas
		storageRW(8), // output
	}
}

// newPipeline compiles the compositing shader and allocates the per-batch
// scalar buffers. Any failure here is fatal to compositor construction.
func newPipeline(device hal.Device, queue hal.Queue, capacity int) (*pipeline, error) {
	// Validate the WGSL through naga before handing it to the device.
	spirv, err := naga.Compile(compositeShaderWGSL)
	if err != nil {
		return nil, fmt.Errorf("compositor: compile composite.wgsl: %w", err)
	}
	Logger().Debug("compositor: shader validated",
		"wgsl_bytes", len(compositeShaderWGSL), "spirv_bytes", len(spirv))

	p := &pipeline{device: device, queue: queue, capacity: capacity}

	p.module, err = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "composite",
		Source: hal.ShaderSource{WGSL: compositeShaderWGSL},
	})
	if err != nil {
		return nil, fmt.Errorf("compositor: create shader module: %w", err)
	}

	p.bgLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "composite_bgl",
		Entries: pipelineBindGroupLayoutEntries(),
	})
	if err != nil {
		p.destroy()
		return nil, fmt.Errorf("compositor: create bind group layout: %w", err)
	}

	p.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "composite_pl",
		BindGroupLayouts: []hal.BindGroupLayout{p.bgLayout},
	})
	if err != nil {
		p.destroy()
		return nil, fmt.Errorf("compositor: create pipeline layout: %w", err)
	}

	p.compute, err = device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  "composite",
		Layout: p.pipeLayout,
		Compute: hal.ComputeState{
			Module:     p.module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		p.destroy()
		return nil, fmt.Errorf("compositor: create compute pipeline: %w", err)
	}

	scalarBytes := uint64(capacity) * 4
	uniformCPU := gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	storageCPU := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst

	specs := []struct {
		target *hal.Buffer
		label  string
		size   uint64
		usage  gputypes.BufferUsage
	}{
		{&p.config, "composite_config", 32, uniformCPU},
		{&p.blends, "composite_blends", scalarBytes, storageCPU},
		{&p.opacities, "composite_opacities", scalarBytes, storageCPU},
		{&p.masks, "composite_masks", scalarBytes, storageCPU},
		{&p.layerSlots, "composite_layer_slots", scalarBytes, storageCPU},
		{&p.viewInfos, "composite_views", uint64(capacity) * 20, storageCPU},
	}
	for _, s := range specs {
		buf, berr := device.CreateBuffer(&hal.BufferDescriptor{
			Label: s.label,
			Size:  s.size,
			Usage: s.usage,
		})
		if berr != nil {
			p.destroy()
			return nil, fmt.Errorf("compositor: create %s buffer: %w", s.label, berr)
		}
		*s.target = buf
	}

	return p, nil
}

// passBuffers are the render-pass-scoped buffers: layer grid tables and the
// output accumulator. Allocated per pass, destroyed when the pass ends.
type passBuffers struct {
	grids  hal.Buffer
	output hal.Buffer
}

// beginPass allocates the pass-scoped buffers and uploads the grid tables.
func (p *pipeline) beginPass(grids []uint32, outputPixels uint64) (*passBuffers, error) {
	gridBytes := make([]byte, len(grids)*4)
	for i, g := range grids {
		binary.LittleEndian.PutUint32(gridBytes[i*4:], g)
	}

	pb := &passBuffers{}
	var err error
	pb.grids, err = p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "composite_grids",
		Size:  max64(uint64(len(gridBytes)), 4),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("compositor: create grids buffer: %w", err)
	}
	pb.output, err = p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "composite_output",
		Size:  max64(outputPixels*4, 4),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		p.device.DestroyBuffer(pb.grids)
		return nil, fmt.Errorf("compositor: create output buffer: %w", err)
	}
	if len(gridBytes) > 0 {
		p.queue.WriteBuffer(pb.grids, 0, gridBytes)
	}
	return pb, nil
}

// endPass releases the pass-scoped buffers.
func (p *pipeline) endPass(pb *passBuffers) {
	if pb == nil {
		return
	}
	if pb.grids != nil {
		p.device.DestroyBuffer(pb.grids)
	}
	if pb.output != nil {
		p.device.DestroyBuffer(pb.output)
	}
}

// writeBatch uploads one batch's uniform and scalar arrays.
func (p *pipeline) writeBatch(cfg batchConfig, bufs *CPUBuffers, infos []viewInfo) {
	p.queue.WriteBuffer(p.config, 0, cfg.toBytes())
	blends, opacities, masks, slots := bufs.encode()
	p.queue.WriteBuffer(p.blends, 0, blends)
	p.queue.WriteBuffer(p.opacities, 0, opacities)
	p.queue.WriteBuffer(p.masks, 0, masks)
	p.queue.WriteBuffer(p.layerSlots, 0, slots)
	p.queue.WriteBuffer(p.viewInfos, 0, encodeViewInfos(infos))
}

// destroy releases everything the pipeline owns. Nil-tolerant so it can
// clean up a partially constructed pipeline.
func (p *pipeline) destroy() {
	if p.compute != nil {
		p.device.DestroyComputePipeline(p.compute)
		p.compute = nil
	}
	if p.pipeLayout != nil {
		p.device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bgLayout != nil {
		p.device.DestroyBindGroupLayout(p.bgLayout)
		p.bgLayout = nil
	}
	if p.module != nil {
		p.device.DestroyShaderModule(p.module)
		p.module = nil
	}
	for _, b := range []*hal.Buffer{&p.config, &p.blends, &p.opacities, &p.masks, &p.layerSlots, &p.viewInfos} {
		if *b != nil {
			p.device.DestroyBuffer(*b)
			*b = nil
		}
	}
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
