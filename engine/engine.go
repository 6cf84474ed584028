// Package engine drives the frame loop: a fixed-rate tick goroutine for application logic, and a
// render goroutine that runs every registered Layer through the compute, shadow and main passes
// of one frame.
package engine

import (
	"log"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-core/engine/profiler"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/window"
)

// Layer is one stage of a frame, such as a 3D world or a sprite overlay. Layers run in
// ascending key order within each phase, so lower keys draw first.
type Layer interface {
	// Compute records compute dispatches. It runs between BeginComputeFrame and
	// EndComputeFrame.
	Compute(r renderer.Renderer, dt float32)

	// Shadows records depth passes. It runs after the compute frame and before the main frame.
	Shadows(r renderer.Renderer)

	// Draw records into the main pass of the frame.
	Draw(pass renderer.RenderPass, dt float32)
}

// Resizer is implemented by layers that track the framebuffer size.
type Resizer interface {
	Resize(width, height int)
}

// LayerFuncs adapts plain functions to a Layer. Nil functions are skipped.
type LayerFuncs struct {
	ComputeFn func(r renderer.Renderer, dt float32)
	ShadowsFn func(r renderer.Renderer)
	DrawFn    func(pass renderer.RenderPass, dt float32)
	ResizeFn  func(width, height int)
}

var (
	_ Layer   = LayerFuncs{}
	_ Resizer = LayerFuncs{}
)

func (l LayerFuncs) Compute(r renderer.Renderer, dt float32) {
	if l.ComputeFn != nil {
		l.ComputeFn(r, dt)
	}
}

func (l LayerFuncs) Shadows(r renderer.Renderer) {
	if l.ShadowsFn != nil {
		l.ShadowsFn(r)
	}
}

func (l LayerFuncs) Draw(pass renderer.RenderPass, dt float32) {
	if l.DrawFn != nil {
		l.DrawFn(pass, dt)
	}
}

func (l LayerFuncs) Resize(width, height int) {
	if l.ResizeFn != nil {
		l.ResizeFn(width, height)
	}
}

// engine implements the Engine interface.
type engine struct {
	mu *sync.Mutex

	tickRateChannel chan time.Duration

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once

	window   window.Window
	renderer renderer.Renderer

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	layers map[int]Layer

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine owns the window, the renderer and the frame loop.
type Engine interface {
	// Window returns the window the engine presents into, nil for headless engines.
	Window() window.Window

	// Renderer returns the renderer frames are recorded with.
	Renderer() renderer.Renderer

	// Profiler returns the profiler ticked after every frame while profiling is enabled.
	Profiler() *profiler.Profiler

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick, on the tick goroutine.
	//
	// Parameters:
	//   - callback: receives the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each frame is presented, on the
	// render goroutine.
	//
	// Parameters:
	//   - callback: receives the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// AddLayer registers a layer at the given key, replacing any layer already there.
	//
	// Parameters:
	//   - key: the order key (lower runs first)
	//   - l: the Layer to register
	AddLayer(key int, l Layer)

	// RemoveLayer removes the layer at the given key.
	RemoveLayer(key int)

	// Layer returns the layer at key, nil if there is none.
	Layer(key int) Layer

	// Layers returns a copy of the registered layers keyed by order.
	Layers() map[int]Layer

	// Frame records and presents one frame: the compute frame, every layer's shadow passes,
	// then the main pass. A failed BeginComputeFrame skips the compute phase and a failed
	// BeginFrame skips the main pass; both are logged.
	//
	// Parameters:
	//   - dt: the seconds since the previous frame
	Frame(dt float32)

	// Run starts the tick and render goroutines and runs the window message loop. Blocks until
	// the window closes.
	Run()

	// Quit signals all engine goroutines to stop. Safe to call multiple times.
	Quit()
}

// NewEngine creates an Engine. A window passed with WithWindow has its resize events routed to
// the renderer and to every Resizer layer.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		mu:              &sync.Mutex{},
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		layers:          make(map[int]Layer),
		wg:              sync.WaitGroup{},
		engineTickRate:  time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(profiler.WithStats(profiler.EngineStats))
	}

	if e.window != nil {
		e.window.SetResizeCallback(e.resize)
		e.window.SetCloseCallback(e.signalQuit)
	}
	return e
}

func (e *engine) resize(width, height int) {
	if e.renderer != nil {
		e.renderer.Resize(width, height)
	}
	for _, l := range e.sortedLayers() {
		if r, ok := l.(Resizer); ok {
			r.Resize(width, height)
		}
	}
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) Run() {
	e.running = true
	e.handle()
	if e.window != nil {
		e.window.ProcessMessages()
		e.signalQuit()
	}
	e.wg.Wait()
}

func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine fires the tick callback at the tick rate until quit.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender records frames until quit. A panic in a layer quits the engine instead of
// crashing the process.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Engine] render goroutine recovered from panic: %v", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
			now := time.Now()
			dt := float32(now.Sub(lastRender).Seconds())
			lastRender = now

			e.Frame(dt)

			if e.renderFrameLimit > 0 {
				if remaining := e.renderFrameLimit - time.Since(now); remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

func (e *engine) Frame(dt float32) {
	layers := e.sortedLayers()
	r := e.renderer

	if r != nil && len(layers) > 0 {
		if err := r.BeginComputeFrame(); err != nil {
			log.Printf("[Engine] skipping compute frame: %v", err)
		} else {
			for _, l := range layers {
				l.Compute(r, dt)
			}
			r.EndComputeFrame()
		}

		for _, l := range layers {
			l.Shadows(r)
		}

		if err := r.BeginFrame(); err != nil {
			log.Printf("[Engine] skipping frame: %v", err)
		} else {
			pass := r.Pass()
			for _, l := range layers {
				l.Draw(pass, dt)
			}
			r.EndFrame()
			r.Present()
		}
	}

	if e.renderCallback != nil {
		e.renderCallback(dt)
	}

	if e.profilingEnabled && e.profiler != nil {
		e.profiler.Tick()
	}
}

func (e *engine) sortedLayers() []Layer {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Layer, 0, len(e.layers))
	for _, k := range slices.Sorted(maps.Keys(e.layers)) {
		out = append(out, e.layers[k])
	}
	return out
}

func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate takes effect immediately when the engine is running.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running {
		e.engineTickRate = newRate
		return
	}
	// replace a pending update rather than block
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

func (e *engine) AddLayer(key int, l Layer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.layers[key] = l
}

func (e *engine) RemoveLayer(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.layers, key)
}

func (e *engine) Layer(key int) Layer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layers[key]
}

func (e *engine) Layers() map[int]Layer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.layers)
}
