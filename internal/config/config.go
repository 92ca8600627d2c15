// Package config handles converter configuration loading and management.
package config

// Config holds all converter settings.
type Config struct {
	Conversion ConversionConfig `yaml:"conversion"`
	Limits     LimitsConfig     `yaml:"limits"`
	Tilesets   TilesetConfig    `yaml:"tilesets"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ConversionConfig holds object classification and layer matching rules.
type ConversionConfig struct {
	// CollisionLayerPattern is a regular expression; tile layers whose
	// name matches are rasterized into the collision grid.
	CollisionLayerPattern string `yaml:"collision_layer_pattern"`

	// DynamicTypes lists object types placed in the dynamic bucket.
	DynamicTypes []string `yaml:"dynamic_types"`

	// SoundTypes lists object types placed in the ambient-sound bucket.
	SoundTypes []string `yaml:"sound_types"`

	// WayType marks polylines converted into patrol paths.
	WayType string `yaml:"way_type"`

	// CollisionType marks rectangles converted into collision shapes.
	CollisionType string `yaml:"collision_type"`

	// RelationshipKeys are the property names scanned for object links.
	RelationshipKeys []string `yaml:"relationship_keys"`
}

// LimitsConfig bounds untrusted input handling.
type LimitsConfig struct {
	// MaxDecompressedMB caps how far a compressed tile payload may expand.
	MaxDecompressedMB int `yaml:"max_decompressed_mb"`

	// MaxGroupDepth bounds group layer nesting.
	MaxGroupDepth int `yaml:"max_group_depth"`
}

// TilesetConfig holds external tileset handling settings.
type TilesetConfig struct {
	// WatchDirs are directories watched for tileset edits; a change
	// evicts the cached definition.
	WatchDirs []string `yaml:"watch_dirs"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Conversion: ConversionConfig{
			CollisionLayerPattern: `(?i)^collision`,
			DynamicTypes:          []string{"player", "npc", "guard", "enemy", "monster", "spawner"},
			SoundTypes:            []string{"sound", "ambience", "music"},
			WayType:               "way",
			CollisionType:         "collision",
			RelationshipKeys:      []string{"target", "link", "leader", "trigger"},
		},
		Limits: LimitsConfig{
			MaxDecompressedMB: 64,
			MaxGroupDepth:     16,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
