package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagCollision = flag.String("collision", "", "Collision layer name pattern (regexp)")
	flagMaxMB     = flag.Int("max-decompressed-mb", 0, "Decompressed tile payload cap in MiB")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagCollision != "" {
		cfg.Conversion.CollisionLayerPattern = *flagCollision
	}
	if *flagMaxMB > 0 {
		cfg.Limits.MaxDecompressedMB = *flagMaxMB
	}
}
