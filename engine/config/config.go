// Package config loads the engine's TOML configuration and turns it into component builder
// options. Keys left out of the document keep each component's own default.
//
//	[renderer]
//	present_mode = "vsync"        # or "uncapped"
//	msaa = 4                      # 1, 4 or 8
//	software = false
//	validate_shaders = true
//
//	[sprite_batch]
//	size = 1000
//	ring_frames = 4
//	layers = 16
//	cell_width = 512
//	cell_height = 512
//	mipmaps = false
//
//	[clusters]
//	tiles = [32, 18, 48]
//	workgroup = [4, 2, 4]
//	max_lights_per_cluster = 256
//	cpu = false
//	workers = 8
//
//	[model_batch]
//	color_format = "bgra8unorm"
//	depth_format = "depth24plus-stencil8"
//
//	[profiler]
//	enabled = true
//	interval = "1s"
//	memory = false
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/batch"
	"github.com/Carmen-Shannon/oxy-core/engine/environment"
	"github.com/Carmen-Shannon/oxy-core/engine/light"
	"github.com/Carmen-Shannon/oxy-core/engine/model"
	"github.com/Carmen-Shannon/oxy-core/engine/profiler"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pelletier/go-toml/v2"
)

// Config is the engine configuration document.
type Config struct {
	Renderer    RendererConfig    `toml:"renderer"`
	SpriteBatch SpriteBatchConfig `toml:"sprite_batch"`
	Clusters    ClusterConfig     `toml:"clusters"`
	ModelBatch  ModelBatchConfig  `toml:"model_batch"`
	Profiler    ProfilerConfig    `toml:"profiler"`
}

// RendererConfig configures the renderer and its surface.
type RendererConfig struct {
	PresentMode     string `toml:"present_mode"`
	MSAA            int    `toml:"msaa"`
	Software        bool   `toml:"software"`
	ValidateShaders bool   `toml:"validate_shaders"`
}

// SpriteBatchConfig configures both sprite batch kinds. Layers, cell size and mipmaps only
// apply to texture array batches.
type SpriteBatchConfig struct {
	Size       int  `toml:"size"`
	RingFrames int  `toml:"ring_frames"`
	Layers     int  `toml:"layers"`
	CellWidth  int  `toml:"cell_width"`
	CellHeight int  `toml:"cell_height"`
	MipMaps    bool `toml:"mipmaps"`
}

// ClusterConfig configures the clustered light grid of PBR environments.
type ClusterConfig struct {
	Tiles               [3]int `toml:"tiles"`
	Workgroup           [3]int `toml:"workgroup"`
	MaxLightsPerCluster int    `toml:"max_lights_per_cluster"`

	// CPU assigns lights on the CPU instead of with compute shaders.
	CPU     bool `toml:"cpu"`
	Workers int  `toml:"workers"`
}

// ModelBatchConfig sets the target formats of model batches. Empty keeps the surface format
// and Depth24PlusStencil8.
type ModelBatchConfig struct {
	ColorFormat string `toml:"color_format"`
	DepthFormat string `toml:"depth_format"`
}

// ProfilerConfig configures the frame profiler.
type ProfilerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Interval string `toml:"interval"`
	Memory   bool   `toml:"memory"`
}

var presentModes = map[string]renderer.PresentMode{
	"vsync":    renderer.PresentModeVSync,
	"uncapped": renderer.PresentModeUncapped,
}

var textureFormats = map[string]wgpu.TextureFormat{
	"bgra8unorm":           wgpu.TextureFormatBGRA8Unorm,
	"bgra8unorm-srgb":      wgpu.TextureFormatBGRA8UnormSrgb,
	"rgba8unorm":           wgpu.TextureFormatRGBA8Unorm,
	"rgba8unorm-srgb":      wgpu.TextureFormatRGBA8UnormSrgb,
	"rgba16float":          wgpu.TextureFormatRGBA16Float,
	"depth24plus":          wgpu.TextureFormatDepth24Plus,
	"depth24plus-stencil8": wgpu.TextureFormatDepth24PlusStencil8,
	"depth32float":         wgpu.TextureFormatDepth32Float,
}

// Default returns the configuration used when no file is given. Every value in it is also the
// default of the component it configures.
func Default() Config {
	cl := light.DefaultClusterConfig()
	return Config{
		Renderer: RendererConfig{
			PresentMode:     "vsync",
			MSAA:            int(renderer.MSAA4x),
			ValidateShaders: true,
		},
		SpriteBatch: SpriteBatchConfig{
			Size:       batch.DefaultSize,
			RingFrames: batch.DefaultRingFrames,
			Layers:     batch.DefaultLayers,
			CellWidth:  batch.DefaultCellSize,
			CellHeight: batch.DefaultCellSize,
		},
		Clusters: ClusterConfig{
			Tiles:               [3]int{cl.TilesX, cl.TilesY, cl.TilesZ},
			Workgroup:           [3]int{cl.WorkgroupX, cl.WorkgroupY, cl.WorkgroupZ},
			MaxLightsPerCluster: cl.MaxLightsPerCluster,
		},
		Profiler: ProfilerConfig{
			Enabled:  true,
			Interval: "1s",
		},
	}
}

// Parse decodes a TOML document over Default(). Unknown keys are rejected so that typos do not
// silently fall back to defaults.
//
// Parameters:
//   - data: the TOML document
//
// Returns:
//   - Config: the decoded configuration
//   - error: a decode or validation error
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the TOML file at path.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - Config: the decoded configuration
//   - error: a read, decode or validation error
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first value no component accepts.
func (c Config) Validate() error {
	if _, ok := presentModes[c.Renderer.PresentMode]; c.Renderer.PresentMode != "" && !ok {
		return fmt.Errorf("renderer.present_mode: unknown mode %q", c.Renderer.PresentMode)
	}
	switch renderer.MSAASampleCount(c.Renderer.MSAA) {
	case 0, renderer.MSAAOff, renderer.MSAA4x, renderer.MSAA8x:
	default:
		return fmt.Errorf("renderer.msaa: sample count %d is not 1, 4 or 8", c.Renderer.MSAA)
	}
	if c.SpriteBatch.Size < 0 || c.SpriteBatch.Size > batch.MaxSprites {
		return fmt.Errorf("sprite_batch.size: %d is outside 1 to %d", c.SpriteBatch.Size, batch.MaxSprites)
	}
	if c.SpriteBatch.Layers < 0 || c.SpriteBatch.CellWidth < 0 || c.SpriteBatch.CellHeight < 0 {
		return fmt.Errorf("sprite_batch: layers and cell size must not be negative")
	}
	for _, name := range []string{c.ModelBatch.ColorFormat, c.ModelBatch.DepthFormat} {
		if _, ok := textureFormats[name]; name != "" && !ok {
			return fmt.Errorf("model_batch: unknown texture format %q", name)
		}
	}
	if c.Profiler.Interval != "" {
		if _, err := time.ParseDuration(c.Profiler.Interval); err != nil {
			return fmt.Errorf("profiler.interval: %w", err)
		}
	}
	return nil
}

// RendererOptions returns the renderer builder options of the [renderer] section.
func (c Config) RendererOptions() []renderer.RendererBuilderOption {
	def := Default().Renderer
	return []renderer.RendererBuilderOption{
		renderer.WithPresentMode(c.PresentMode()),
		renderer.WithMSAA(renderer.MSAASampleCount(common.Coalesce(c.Renderer.MSAA, def.MSAA))),
		renderer.WithForceSoftwareRenderer(c.Renderer.Software),
		renderer.WithShaderValidation(c.Renderer.ValidateShaders),
	}
}

// PresentMode returns the renderer present mode named by the [renderer] section. Applications
// reloading the configuration pass it to Renderer.SetPresentMode.
func (c Config) PresentMode() renderer.PresentMode {
	return presentModes[common.Coalesce(c.Renderer.PresentMode, Default().Renderer.PresentMode)]
}

// SpriteBatchOptions returns the options of a SpriteBatch.
func (c Config) SpriteBatchOptions() []batch.BatchBuilderOption {
	def := Default().SpriteBatch
	return []batch.BatchBuilderOption{
		batch.WithSize(common.Coalesce(c.SpriteBatch.Size, def.Size)),
		batch.WithRingFrames(common.Coalesce(c.SpriteBatch.RingFrames, def.RingFrames)),
	}
}

// TextureArrayOptions returns the options of a TextureArraySpriteBatch, SpriteBatchOptions
// included.
func (c Config) TextureArrayOptions() []batch.BatchBuilderOption {
	def := Default().SpriteBatch
	return append(c.SpriteBatchOptions(),
		batch.WithLayers(uint32(common.Coalesce(c.SpriteBatch.Layers, def.Layers))),
		batch.WithArrayCellSize(
			uint32(common.Coalesce(c.SpriteBatch.CellWidth, def.CellWidth)),
			uint32(common.Coalesce(c.SpriteBatch.CellHeight, def.CellHeight)),
		),
		batch.WithMipMaps(c.SpriteBatch.MipMaps),
	)
}

// LightClusterConfig returns the cluster grid of the [clusters] section.
func (c Config) LightClusterConfig() light.ClusterConfig {
	def := light.DefaultClusterConfig()
	t, w := c.Clusters.Tiles, c.Clusters.Workgroup
	return light.ClusterConfig{
		TilesX:              common.Coalesce(t[0], def.TilesX),
		TilesY:              common.Coalesce(t[1], def.TilesY),
		TilesZ:              common.Coalesce(t[2], def.TilesZ),
		WorkgroupX:          common.Coalesce(w[0], def.WorkgroupX),
		WorkgroupY:          common.Coalesce(w[1], def.WorkgroupY),
		WorkgroupZ:          common.Coalesce(w[2], def.WorkgroupZ),
		MaxLightsPerCluster: common.Coalesce(c.Clusters.MaxLightsPerCluster, def.MaxLightsPerCluster),
	}
}

// ClusterOptions returns the PBR environment options of the [clusters] section. A worker count
// installs a ClusterAssigner of that size.
func (c Config) ClusterOptions() []environment.PBREnvironmentBuilderOption {
	opts := []environment.PBREnvironmentBuilderOption{
		environment.WithClusterConfig(c.LightClusterConfig()),
		environment.WithCPUClusters(c.Clusters.CPU),
	}
	if c.Clusters.Workers > 0 {
		opts = append(opts, environment.WithClusterAssigner(light.NewClusterAssigner(light.WithWorkers(c.Clusters.Workers))))
	}
	return opts
}

// ModelBatchOptions returns the model batch options of the [model_batch] section.
func (c Config) ModelBatchOptions() []model.ModelBatchBuilderOption {
	var opts []model.ModelBatchBuilderOption
	if f, ok := textureFormats[c.ModelBatch.ColorFormat]; ok {
		opts = append(opts, model.WithColorFormat(f))
	}
	if f, ok := textureFormats[c.ModelBatch.DepthFormat]; ok {
		opts = append(opts, model.WithDepthFormat(f))
	}
	return opts
}

// ProfilerOptions returns the profiler options of the [profiler] section.
func (c Config) ProfilerOptions() []profiler.ProfilerBuilderOption {
	interval, err := time.ParseDuration(common.Coalesce(c.Profiler.Interval, Default().Profiler.Interval))
	if err != nil {
		interval = time.Second
	}
	return []profiler.ProfilerBuilderOption{
		profiler.WithInterval(interval),
		profiler.WithMemoryStats(c.Profiler.Memory),
	}
}
