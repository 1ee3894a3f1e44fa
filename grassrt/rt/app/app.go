package app

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gekko3d/grass"
	"github.com/gekko3d/grass/grassrt/rt/core"
	"github.com/gekko3d/grass/grassrt/rt/gpu"
	"github.com/gekko3d/grass/grassrt/rt/mesh"
	"github.com/gekko3d/grass/grassrt/rt/shaders"
	"github.com/gekko3d/grass/grassrt/rt/stream"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	cameraUniformSize = 96
	ribbonSegments    = 5
	depthFormat       = wgpu.TextureFormatDepth24Plus
)

// App is the windowed grass viewer: a fly camera over a streamed field.
type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	Pipeline     *wgpu.RenderPipeline
	CameraBGL    *wgpu.BindGroupLayout
	BatchBGL     *wgpu.BindGroupLayout
	CameraBuf    *wgpu.Buffer
	CameraBG     *wgpu.BindGroup
	VertexBuffer *wgpu.Buffer
	IndexBuffer  *wgpu.Buffer
	DepthTexture *wgpu.Texture
	DepthView    *wgpu.TextureView

	Ribbon   *mesh.Ribbon
	Backend  *gpu.WgpuBackend
	Registry *gpu.WgpuBatchRegistry
	Field    *grass.Field
	Options  []grass.Option

	GrassConfig grass.Config
	Camera      *core.CameraState
	Profiler    *core.Profiler
	Logger      core.Logger

	Wind          mgl32.Vec3 // x = strength, yz = direction
	MouseCaptured bool
	DebugMode     bool

	draws      []stream.DrawDescriptor
	lastMouseX float64
	lastMouseY float64
	mouseValid bool
	startTime  float64
	lastTime   float64
	lastRender float64

	FrameCount int
	FPS        float64
	FPSTime    float64
}

func NewApp(window *glfw.Window, cfg grass.Config, opts ...grass.Option) *App {
	cam := core.NewCameraState()
	cam.Far = float32(cfg.ViewDistance+2) * cfg.ChunkSize * 1.5
	return &App{
		Window:      window,
		GrassConfig: cfg,
		Options:     opts,
		Camera:      cam,
		Profiler:    core.NewProfiler(),
		Logger:      core.NewDefaultLogger("grass", false),
		Wind:        mgl32.Vec3{0.6, 0.8, 0.6},
	}
}

func (a *App) Init() error {
	a.Instance = wgpu.CreateInstance(nil)
	a.Surface = a.Instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(a.Window))

	adapter, err := a.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: a.Surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return err
	}
	a.Adapter = adapter

	a.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		return err
	}
	a.Queue = a.Device.GetQueue()

	width, height := a.Window.GetFramebufferSize()
	caps := a.Surface.GetCapabilities(adapter)
	a.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	a.Surface.Configure(adapter, a.Device, a.Config)
	a.setupDepth(width, height)

	if err := a.setupPipeline(); err != nil {
		return err
	}
	if err := a.setupMesh(); err != nil {
		return err
	}

	a.Backend = gpu.NewWgpuBackend(a.Device)
	a.Registry = gpu.NewWgpuBatchRegistry(a.Backend, a.BatchBGL)

	opts := append([]grass.Option{
		grass.WithLogger(a.Logger),
		grass.WithProfiler(a.Profiler),
	}, a.Options...)
	a.Field, err = grass.New(a.GrassConfig, a.Backend, a.Registry, opts...)
	if err != nil {
		return err
	}

	a.startTime = glfw.GetTime()
	a.lastTime = a.startTime
	return nil
}

func (a *App) setupPipeline() error {
	module, err := a.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "GrassShader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.GrassWGSL},
	})
	if err != nil {
		return err
	}
	defer module.Release()

	a.CameraBGL, err = a.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "GrassCameraBGL",
		Entries: []wgpu.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: wgpu.ShaderStageVertex,
			Buffer: wgpu.BufferBindingLayout{
				Type:           wgpu.BufferBindingTypeUniform,
				MinBindingSize: cameraUniformSize,
			},
		}},
	})
	if err != nil {
		return err
	}
	a.BatchBGL, err = gpu.BatchBindGroupLayout(a.Device)
	if err != nil {
		return err
	}
	layout, err := a.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{a.CameraBGL, a.BatchBGL},
	})
	if err != nil {
		return err
	}

	a.Pipeline, err = a.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "GrassPipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: mesh.VertexStride,
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes: []wgpu.VertexAttribute{
					{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
					{Format: wgpu.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
				},
			}},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    a.Config.Format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            depthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return err
	}

	a.CameraBuf, err = a.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "GrassCamera",
		Size:  cameraUniformSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	a.CameraBG, err = a.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: a.CameraBGL,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: a.CameraBuf, Size: wgpu.WholeSize},
		},
	})
	return err
}

func (a *App) setupMesh() error {
	r, err := mesh.NewRibbon(ribbonSegments)
	if err != nil {
		return err
	}
	a.Ribbon = r

	vb := r.VertexBytes()
	a.VertexBuffer, err = a.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "GrassRibbonVB",
		Size:  uint64(len(vb)),
		Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	if err := a.Queue.WriteBuffer(a.VertexBuffer, 0, vb); err != nil {
		return err
	}

	ib := r.IndexBytes()
	a.IndexBuffer, err = a.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "GrassRibbonIB",
		Size:  uint64(len(ib)),
		Usage: wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	return a.Queue.WriteBuffer(a.IndexBuffer, 0, ib)
}

func (a *App) setupDepth(w, h int) {
	if w == 0 || h == 0 {
		return
	}
	if a.DepthView != nil {
		a.DepthView.Release()
	}
	if a.DepthTexture != nil {
		a.DepthTexture.Release()
	}

	var err error
	a.DepthTexture, err = a.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "GrassDepth",
		Size:          wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        depthFormat,
		Usage:         wgpu.TextureUsageRenderAttachment,
		SampleCount:   1,
	})
	if err != nil {
		panic(err)
	}
	a.DepthView, err = a.DepthTexture.CreateView(nil)
	if err != nil {
		panic(err)
	}
}

func (a *App) Resize(w, h int) {
	if w > 0 && h > 0 {
		a.Config.Width = uint32(w)
		a.Config.Height = uint32(h)
		a.Surface.Configure(a.Adapter, a.Device, a.Config)
		a.setupDepth(w, h)
	}
}

// HandleMouse turns cursor motion into camera look while captured.
func (a *App) HandleMouse(x, y float64) {
	if !a.MouseCaptured {
		a.mouseValid = false
		return
	}
	if a.mouseValid {
		a.Camera.Move(mgl32.Vec3{}, float32(x-a.lastMouseX), float32(y-a.lastMouseY), 0)
	}
	a.lastMouseX, a.lastMouseY = x, y
	a.mouseValid = true
}

func (a *App) viewProj() mgl32.Mat4 {
	aspect := float32(a.Config.Width) / float32(a.Config.Height)
	return a.Camera.GetProjectionMatrix(aspect).Mul4(a.Camera.GetViewMatrix())
}

func (a *App) Update(ctx context.Context) error {
	now := glfw.GetTime()
	dt := float32(now - a.lastTime)
	a.lastTime = now

	var move mgl32.Vec3
	key := func(k glfw.Key) bool { return a.Window.GetKey(k) == glfw.Press }
	if key(glfw.KeyW) {
		move[2]++
	}
	if key(glfw.KeyS) {
		move[2]--
	}
	if key(glfw.KeyD) {
		move[0]++
	}
	if key(glfw.KeyA) {
		move[0]--
	}
	if key(glfw.KeySpace) {
		move[1]++
	}
	if key(glfw.KeyLeftShift) {
		move[1]--
	}
	a.Camera.Move(move, 0, 0, dt)

	a.Profiler.BeginScope("tick")
	_, err := a.Field.Tick(ctx, a.Camera.Position)
	a.Profiler.EndScope("tick")
	if err != nil {
		return err
	}

	a.Queue.WriteBuffer(a.CameraBuf, 0, a.cameraUniform(float32(now-a.startTime)))
	return nil
}

func (a *App) cameraUniform(t float32) []byte {
	buf := make([]byte, cameraUniformSize)
	put := func(off int, v float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
	}
	vp := a.viewProj()
	for i, v := range vp {
		put(i*4, v)
	}
	p := a.Camera.Position
	put(64, p.X())
	put(68, p.Y())
	put(72, p.Z())
	put(76, 1)
	put(80, t)
	put(84, a.Wind.X())
	put(88, a.Wind.Y())
	put(92, a.Wind.Z())
	return buf
}

func (a *App) Render() {
	nextTexture, err := a.Surface.GetCurrentTexture()
	if err != nil {
		a.Logger.Errorf("GetCurrentTexture failed: %v", err)
		return
	}
	defer nextTexture.Release()

	view, err := nextTexture.CreateView(nil)
	if err != nil {
		a.Logger.Errorf("CreateView failed: %v", err)
		return
	}
	defer view.Release()

	encoder, err := a.Device.CreateCommandEncoder(nil)
	if err != nil {
		a.Logger.Errorf("CreateCommandEncoder failed: %v", err)
		return
	}

	a.Profiler.BeginScope("cull")
	frustum := core.ExtractFrustum(a.viewProj())
	a.draws = a.Field.Cull(&frustum, a.draws)
	a.Profiler.EndScope("cull")
	a.Profiler.SetCount("draws", len(a.draws))

	rPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0.55, G: 0.7, B: 0.9, A: 1},
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            a.DepthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1,
		},
	})
	rPass.SetPipeline(a.Pipeline)
	rPass.SetBindGroup(0, a.CameraBG, nil)
	rPass.SetVertexBuffer(0, a.VertexBuffer, 0, wgpu.WholeSize)
	rPass.SetIndexBuffer(a.IndexBuffer, wgpu.IndexFormatUint16, 0, wgpu.WholeSize)
	for _, d := range a.draws {
		bg, ok := a.Registry.BindGroup(d.Batch)
		if !ok {
			continue
		}
		rPass.SetBindGroup(1, bg, nil)
		rPass.DrawIndexed(uint32(a.Ribbon.IndexCount()), uint32(d.InstanceCount), 0, 0, 0)
	}
	if err := rPass.End(); err != nil {
		a.Logger.Errorf("render pass End failed: %v", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		a.Logger.Errorf("encoder Finish failed: %v", err)
		return
	}
	a.Queue.Submit(cmd)
	a.Surface.Present()
	a.Field.EndFrame()

	now := glfw.GetTime()
	if a.lastRender > 0 {
		a.FrameCount++
		a.FPSTime += now - a.lastRender
	}
	a.lastRender = now
	if a.FPSTime >= 1.0 {
		a.FPS = float64(a.FrameCount) / a.FPSTime
		a.FrameCount = 0
		a.FPSTime = 0
		a.Window.SetTitle(a.title())
		if a.DebugMode {
			a.Logger.Infof("%s\n%s", a.title(), a.Profiler.GetStatsString())
		}
	}
}

func (a *App) title() string {
	st := a.Field.Stats()
	return fmt.Sprintf("Grass | %.0f fps | chunk %v | %d active, %d draws",
		a.FPS, st.Center, st.Active, len(a.draws))
}

// Close releases the field first so every batch and buffer goes back through
// the registry and backend before the device is dropped.
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.Field != nil {
		err = a.Field.Close(ctx)
	}
	if a.Registry != nil {
		a.Registry.Release()
	}
	if a.Backend != nil {
		a.Backend.Release()
	}
	for _, b := range []*wgpu.Buffer{a.CameraBuf, a.VertexBuffer, a.IndexBuffer} {
		if b != nil {
			b.Release()
		}
	}
	if a.DepthView != nil {
		a.DepthView.Release()
	}
	if a.DepthTexture != nil {
		a.DepthTexture.Release()
	}
	return err
}
