package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/profiler"
	"github.com/bioglaze/aether3d-sub000/engine/renderer"
	"github.com/bioglaze/aether3d-sub000/engine/scene"
	"github.com/bioglaze/aether3d-sub000/engine/window"
)

// engine implements the Engine interface.
// Coordinates the tick, render, and window threads.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once
	// ctx is canceled by Quit so a frame blocked on its fence returns.
	ctx    context.Context
	cancel context.CancelFunc

	window window.Window

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	scenesMu *sync.RWMutex
	scenes   map[int]scene.Scene

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
	frameTimeout     time.Duration // bound on the fence wait of one frame; 0 = renderer default

	// pendingResize is written by the window thread and applied by the render thread between frames.
	resizeMu      *sync.Mutex
	pendingResize *[2]int

	errMu *sync.Mutex
	err   error

	lastRender time.Time
}

// Engine is the main entry point for the engine.
// It orchestrates the tick loop, the render loop and window management. Every frame is bracketed by
// one BeginFrame and one Present on the renderer of the first active scene; active scenes render
// into it in ascending z-index order.
type Engine interface {
	// Window returns the underlying window, nil for a headless engine.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for game logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// Use this for game logic, camera input and light animation.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called each render frame after the scenes have rendered
	// and before Present, so it may record additional draws into the frame.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// AddScene registers a scene at the given z-index key.
	// Scenes are rendered in ascending key order during the render loop.
	//
	// Parameters:
	//   - key: the z-index determining render order (lower renders first)
	//   - s: the Scene to register
	AddScene(key int, s scene.Scene)

	// RemoveScene removes the scene at the given z-index key.
	//
	// Parameters:
	//   - key: the z-index of the scene to remove
	RemoveScene(key int)

	// Scene retrieves the scene registered at the given z-index key.
	// Returns nil if no scene exists at that key.
	//
	// Parameters:
	//   - key: the z-index of the scene to retrieve
	//
	// Returns:
	//   - scene.Scene: the scene at the key, or nil if not found
	Scene(key int) scene.Scene

	// Scenes returns a copy of all registered scenes keyed by z-index.
	//
	// Returns:
	//   - map[int]scene.Scene: a copy of the scenes map
	Scenes() map[int]scene.Scene

	// Resize schedules a back buffer resize. It is applied by the render thread before the next frame:
	// every distinct renderer is resized, then every scene rebuilds its depth/normal target and camera
	// aspect. Safe to call from the window thread.
	//
	// Parameters:
	//   - width, height: the new framebuffer size in pixels
	Resize(width, height int)

	// RenderFrame renders one frame of every active scene. Run calls it in a loop on the render
	// goroutine; headless callers may drive frames directly.
	//
	// Parameters:
	//   - ctx: bounds the fence wait at the end of the frame
	//
	// Returns:
	//   - error: the first frame or scene error; nil when no scene is active
	RenderFrame(ctx context.Context) error

	// HandleFatal is a renderer.FatalHandler that logs the breadcrumb, records the error and stops the
	// engine instead of panicking. Pass it to renderer.WithFatalHandler.
	//
	// Parameters:
	//   - err: the fatal error
	//   - crumb: the renderer state at the time of the error
	HandleFatal(err error, crumb renderer.Breadcrumb)

	// Run starts the tick and render loops. With a window it runs the window message loop on the
	// calling goroutine and returns once the window closes; headless it blocks until Quit.
	//
	// Returns:
	//   - error: the fatal error that stopped the engine, if any
	Run() error

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Err returns the fatal error recorded by HandleFatal or a recovered render panic.
	Err() error
}

var _ Engine = &engine{}

// NewEngine creates a new Engine instance with the provided options.
// When a window is set, its resize callback is routed to Resize.
//
// Parameters:
//   - options: functional options for engine configuration (profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &engine{
		ctx:             ctx,
		cancel:          cancel,
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		scenesMu:        &sync.RWMutex{},
		scenes:          make(map[int]scene.Scene),
		resizeMu:        &sync.Mutex{},
		errMu:           &sync.Mutex{},
		engineTickRate:  time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler()
	}

	if e.window != nil {
		e.window.SetResizeCallback(e.Resize)
	}

	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Run() error {
	e.running.Store(true)
	e.handle()
	if e.window != nil {
		// GLFW windows must be closed on the thread that runs the message loop.
		e.window.SetUpdateCallback(func() {
			select {
			case <-e.quitChannel:
				if err := e.window.Close(); err != nil && !errors.Is(err, window.ErrClosed) {
					common.Logger().Warn("close window", "err", err)
				}
			default:
			}
		})
		e.window.ProcessMessages()
		e.signalQuit()
	}
	e.wg.Wait()
	e.running.Store(false)
	return e.Err()
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit and cancels in-flight waits.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
		e.cancel()
	})
}

func (e *engine) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

func (e *engine) setErr(err error) {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	if e.err == nil {
		e.err = err
	}
}

func (e *engine) HandleFatal(err error, crumb renderer.Breadcrumb) {
	common.Logger().Error("fatal GPU error, stopping engine", "err", err, "state", crumb)
	e.setErr(err)
	e.signalQuit()
}

// handle launches the tick and render goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
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

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Recovers from panics, including those of the default fatal handler, records them as the engine
// error and signals quit.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("engine: render goroutine panic: %v", r)
			}
			common.Logger().Error("render goroutine recovered from panic", "err", err)
			e.setErr(err)
			e.signalQuit()
		}
	}()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		frameStart := time.Now()
		ctx, cancel := e.frameContext()
		err := e.RenderFrame(ctx)
		cancel()
		if err != nil {
			common.Logger().Warn("frame failed", "err", err)
		}

		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(frameStart); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// frameContext bounds one frame's fence wait by the frame timeout and by Quit.
func (e *engine) frameContext() (context.Context, context.CancelFunc) {
	if e.frameTimeout > 0 {
		return context.WithTimeout(e.ctx, e.frameTimeout)
	}
	return context.WithCancel(e.ctx)
}

// activeScenes returns the active scenes in ascending z-index order.
func (e *engine) activeScenes() []scene.Scene {
	e.scenesMu.RLock()
	defer e.scenesMu.RUnlock()
	keys := make([]int, 0, len(e.scenes))
	for k := range e.scenes {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var active []scene.Scene
	for _, k := range keys {
		if s := e.scenes[k]; s.Active() {
			active = append(active, s)
		}
	}
	return active
}

func (e *engine) RenderFrame(ctx context.Context) error {
	now := time.Now()
	dt := float32(0)
	if !e.lastRender.IsZero() {
		dt = float32(now.Sub(e.lastRender).Seconds())
	}
	e.lastRender = now

	if err := e.applyResize(); err != nil {
		return err
	}

	scenes := e.activeScenes()
	if len(scenes) == 0 {
		return nil
	}
	// The first active scene's renderer owns the frame; scenes on other renderers are skipped.
	r := scenes[0].Renderer()
	if err := r.BeginFrame(ctx); err != nil {
		return fmt.Errorf("engine: begin frame: %w", err)
	}

	var renderErr error
	for _, s := range scenes {
		if s.Renderer() != r {
			continue
		}
		if err := s.Render(); err != nil {
			if errors.Is(err, scene.ErrNoCamera) {
				common.Logger().Debug("scene skipped", "scene", s.Name(), "err", err)
				continue
			}
			renderErr = errors.Join(renderErr, err)
		}
	}

	if e.renderCallback != nil {
		e.renderCallback(dt)
	}

	if err := r.Present(ctx); err != nil {
		return errors.Join(renderErr, fmt.Errorf("engine: present: %w", err))
	}
	if e.profilingEnabled.Load() {
		e.profiler.Tick(r.Stats())
	}
	return renderErr
}

func (e *engine) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		// Minimized windows report 0x0; keep the current size.
		return
	}
	e.resizeMu.Lock()
	defer e.resizeMu.Unlock()
	e.pendingResize = &[2]int{width, height}
}

// applyResize resizes every distinct renderer once, then every scene.
func (e *engine) applyResize() error {
	e.resizeMu.Lock()
	size := e.pendingResize
	e.pendingResize = nil
	e.resizeMu.Unlock()
	if size == nil {
		return nil
	}

	e.scenesMu.RLock()
	defer e.scenesMu.RUnlock()
	resized := make(map[renderer.Renderer]bool)
	for _, s := range e.scenes {
		r := s.Renderer()
		if r == nil || resized[r] {
			continue
		}
		if err := r.Resize(size[0], size[1]); err != nil {
			return fmt.Errorf("engine: resize: %w", err)
		}
		resized[r] = true
	}
	for _, s := range e.scenes {
		width, height := size[0], size[1]
		if r := s.Renderer(); r != nil {
			// The backend may clamp or scale the requested size.
			width, height = r.Size()
		}
		if err := s.Resize(width, height); err != nil {
			return fmt.Errorf("engine: resize scene %q: %w", s.Name(), err)
		}
	}
	common.Logger().Debug("engine resized", "width", size[0], "height", size[1])
	return nil
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running.Load() {
		e.engineTickRate = newRate
		return
	}
	// Non-blocking send; a pending update is replaced by the newer value.
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

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.scenesMu.Lock()
	defer e.scenesMu.Unlock()
	e.scenes[key] = s
}

func (e *engine) RemoveScene(key int) {
	e.scenesMu.Lock()
	defer e.scenesMu.Unlock()
	delete(e.scenes, key)
}

func (e *engine) Scene(key int) scene.Scene {
	e.scenesMu.RLock()
	defer e.scenesMu.RUnlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.scenesMu.RLock()
	defer e.scenesMu.RUnlock()
	cp := make(map[int]scene.Scene, len(e.scenes))
	for k, v := range e.scenes {
		cp[k] = v
	}
	return cp
}
