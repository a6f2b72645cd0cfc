package compositor

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import the Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// gpuBuffer aliases the HAL buffer handle so that sibling files do not need
// their own hal import.
type gpuBuffer = hal.Buffer

const (
	// defaultMaxSampledTextures is the WebGPU baseline for
	// maxSampledTexturesPerShaderStage, assumed when the adapter does not
	// report a higher value.
	defaultMaxSampledTextures = 16

	// maxBatchChunks caps a compositing batch regardless of what the
	// adapter claims, keeping per-batch scalar buffers small.
	maxBatchChunks = 32
)

// Capabilities describes the device properties the compositor depends on.
type Capabilities struct {
	// MaxSampledTextures is the number of textures one shader stage may
	// bind simultaneously. One binding is reserved for the output, the
	// rest bound per-batch layer/mask views.
	MaxSampledTextures uint32

	// MaxTextureDim is the largest single texture dimension.
	MaxTextureDim uint32

	// AdapterName identifies the selected adapter, for logging.
	AdapterName string
}

// Device wraps the GPU device and queue the compositor runs against. A
// software device carries no GPU handles; pixel work then runs entirely on
// the host, which is also the path used by tests.
type Device struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	caps     Capabilities
	software bool
}

// NewDevice creates a GPU-backed device. Failure to find a backend or a
// usable adapter is fatal to the caller; there is no retry.
func NewDevice() (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("compositor: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("compositor: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("compositor: no GPU adapters found")
	}

	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("compositor: open device %q: %w", selected.Info.Name, err)
	}

	d := &Device{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		caps: Capabilities{
			MaxSampledTextures: defaultMaxSampledTextures,
			MaxTextureDim:      MaxTextureDim,
			AdapterName:        selected.Info.Name,
		},
	}
	Logger().Info("compositor: GPU device opened",
		"adapter", selected.Info.Name, "max_chunks", d.MaxChunks())
	return d, nil
}

// NewSoftwareDevice creates a host-only device. Compositing runs on the CPU
// with the same batch limits a baseline GPU would impose.
func NewSoftwareDevice() *Device {
	return &Device{
		caps: Capabilities{
			MaxSampledTextures: defaultMaxSampledTextures,
			MaxTextureDim:      MaxTextureDim,
			AdapterName:        "software",
		},
		software: true,
	}
}

// Software reports whether the device is host-only.
func (d *Device) Software() bool { return d.software }

// Capabilities returns the device properties.
func (d *Device) Capabilities() Capabilities { return d.caps }

// MaxChunks is the compositing batch size: the sampled-texture limit minus
// one binding reserved for the output, capped at maxBatchChunks.
func (d *Device) MaxChunks() int {
	b := d.caps.MaxSampledTextures - 1
	if b > maxBatchChunks {
		b = maxBatchChunks
	}
	return int(b)
}

// Close releases the GPU handles. Safe on a software device.
func (d *Device) Close() {
	if d.device != nil {
		d.device.Destroy()
		d.device = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
	d.queue = nil
}

// createStorageBuffer allocates a device storage buffer the queue can write
// into. Only valid on GPU-backed devices.
func (d *Device) createStorageBuffer(label string, size uint64) (gpuBuffer, error) {
	const minBufSize = 4
	if size < minBufSize {
		size = minBufSize
	}
	return d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
}

// writeBufferRegion mirrors a w x h pixel block into a buffer laid out as a
// row-major RGBA texture array of texW x texH per layer.
func (d *Device) writeBufferRegion(buf gpuBuffer, texW, texH, x, y, layer, w, h uint32, pix []byte) {
	layerStride := uint64(texW) * uint64(texH) * 4
	rowPitch := uint64(texW) * 4
	srcPitch := int(w) * 4
	for r := uint32(0); r < h; r++ {
		off := uint64(layer)*layerStride + uint64(y+r)*rowPitch + uint64(x)*4
		d.queue.WriteBuffer(buf, off, pix[int(r)*srcPitch:int(r+1)*srcPitch])
	}
}

func (d *Device) destroyBuffer(buf gpuBuffer) {
	d.device.DestroyBuffer(buf)
}
