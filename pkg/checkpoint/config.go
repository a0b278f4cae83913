package checkpoint

// Config governs when and how checkpoints are written (spec §3
// Lifecycle: "the last N (configurable, default 10) are retained per
// agent"; §4.7's filesystem provider size cap). The pointer Enabled
// field follows the teacher's SetDefaults/IsEnabled idiom so the zero
// value of Config is distinguishable from an explicit false.
type Config struct {
	Enabled   *bool  `yaml:"enabled,omitempty"`
	BasePath  string `yaml:"base_path,omitempty"`
	MaxSizeMB int    `yaml:"max_size_mb,omitempty"`
	KeepLastN int    `yaml:"keep_last_n,omitempty"`
}

// DefaultBasePath is where checkpoints land when Config.BasePath is
// unset.
const DefaultBasePath = ".checkpoints"

// DefaultKeepLastN is the default per-agent checkpoint retention count
// (spec §3).
const DefaultKeepLastN = 10

// SetDefaults fills the zero-value fields of Config.
func (c *Config) SetDefaults() {
	if c.Enabled == nil {
		enabled := true
		c.Enabled = &enabled
	}
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = DefaultMaxCheckpointSizeMB
	}
	if c.KeepLastN <= 0 {
		c.KeepLastN = DefaultKeepLastN
	}
}

// IsEnabled reports whether checkpointing is active.
func (c *Config) IsEnabled() bool {
	return c != nil && (c.Enabled == nil || *c.Enabled)
}
