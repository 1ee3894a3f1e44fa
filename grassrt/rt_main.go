package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"runtime"

	"github.com/gekko3d/grass"
	"github.com/gekko3d/grass/grassrt/rt/app"
	"github.com/gekko3d/grass/grassrt/rt/core"
	"github.com/gekko3d/grass/grassrt/rt/gen"
	"github.com/gekko3d/grass/grassrt/rt/gpu"
	"github.com/gekko3d/grass/grassrt/rt/headless"
	"github.com/gekko3d/grass/grassrt/rt/trace"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults when empty)")
	noWindow := flag.Bool("headless", false, "Run a scripted camera path without a window")
	frames := flag.Int("frames", 600, "Frames to run in headless mode")
	tracePath := flag.String("trace", "", "Write per-update records to this .jsonl.zst file")
	densityPath := flag.String("density", "", "PNG density mask stretched over every chunk")
	terrain := flag.Float64("terrain", 0, "Amplitude of simplex terrain height (0 = flat)")
	async := flag.Bool("async", false, "Generate chunks on background goroutines")
	debug := flag.Bool("debug", false, "Enable debug logging and profiler output")
	flag.Parse()

	logger := core.NewDefaultLogger("grass", *debug)

	cfg := grass.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = grass.LoadConfig(*configPath); err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
	}
	if *async {
		cfg.AsyncGeneration = true
	}

	opts := []grass.Option{grass.WithLogger(logger)}
	sampler, err := buildSampler(cfg, *densityPath, float32(*terrain))
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if sampler != nil {
		opts = append(opts, grass.WithSampler(sampler))
	}
	if *tracePath != "" {
		tw, err := trace.Create(*tracePath)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		opts = append(opts, grass.WithTrace(tw))
	}

	if *noWindow {
		runHeadless(cfg, *frames, opts, logger)
		return
	}
	runWindow(cfg, opts, logger, *debug)
}

func buildSampler(cfg grass.Config, densityPath string, amplitude float32) (gen.Sampler, error) {
	var height, density gen.Sampler
	if amplitude != 0 {
		height = gen.NewNoiseHeightSampler(int64(cfg.Seed), 0, amplitude, 1/(8*cfg.ChunkSize))
	}
	if densityPath != "" {
		f, err := os.Open(densityPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", densityPath, err)
		}
		density = gen.NewImageDensitySampler(img, 64)
	}
	switch {
	case height == nil && density == nil:
		return nil, nil
	case density == nil:
		return height, nil
	case height == nil:
		return density, nil
	}
	return gen.CompositeSampler{Height: height, Density: density}, nil
}

func runHeadless(cfg grass.Config, frames int, opts []grass.Option, logger core.Logger) {
	prof := core.NewProfiler()
	opts = append(opts, grass.WithProfiler(prof))
	path := headless.Orbit(3*cfg.ChunkSize, 1.7, 300)

	res, err := headless.Run(context.Background(), cfg, frames, path, gpu.NewMemoryBackend(), opts...)
	if err != nil {
		logger.Errorf("headless run: %v", err)
		os.Exit(1)
	}
	fmt.Println(prof.GetStatsString())
	fmt.Println(res)
}

func runWindow(cfg grass.Config, opts []grass.Option, logger core.Logger, debug bool) {
	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(1280, 720, "Grass", nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	application := app.NewApp(window, cfg, opts...)
	application.Logger = logger
	application.DebugMode = debug
	if err := application.Init(); err != nil {
		panic(err)
	}
	ctx := context.Background()
	defer func() {
		if err := application.Close(ctx); err != nil {
			application.Logger.Errorf("close: %v", err)
		}
	}()

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		application.Resize(width, height)
	})
	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		application.HandleMouse(xpos, ypos)
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyTab && action == glfw.Press {
			application.MouseCaptured = !application.MouseCaptured
			if application.MouseCaptured {
				w.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
			} else {
				w.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
			}
		}
		if key == glfw.KeyF3 && action == glfw.Press {
			application.DebugMode = !application.DebugMode
		}
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
	})

	for !window.ShouldClose() {
		glfw.PollEvents()
		if err := application.Update(ctx); err != nil {
			application.Logger.Errorf("update: %v", err)
			break
		}
		application.Render()
	}
}
