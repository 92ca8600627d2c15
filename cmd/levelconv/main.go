// levelconv is a CLI utility for converting map editor documents into
// engine level definitions.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Faultbox/tileforge/internal/config"
	"github.com/Faultbox/tileforge/internal/level"
	"github.com/Faultbox/tileforge/internal/logger"
	"github.com/Faultbox/tileforge/pkg/tiled"
)

func main() {
	config.ParseFlags()
	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	switch command {
	case "info":
		cmdInfo(cfg, args)
	case "convert":
		cmdConvert(cfg, args)
	case "check":
		cmdCheck(cfg, args)
	case "init-config":
		cmdInitConfig(cfg, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`levelconv - map document to level definition converter

Usage:
  levelconv [global options] <command> [options]

Commands:
  info <map>                    Show map summary
  convert [-o out.json] <map>   Convert a map to a level definition
  check <dir>                   Parse and convert every map in a directory
  init-config [path]            Write the default config file

Global options:
  -config <file>            Path to config file
  -debug                    Enable debug logging
  -collision <regexp>       Collision layer name pattern
  -max-decompressed-mb <n>  Decompressed tile payload cap in MiB

Options for convert:
  -o <file>   Write the definition to a file instead of stdout
  -watch      Re-convert whenever the map or its tilesets change

Examples:
  levelconv info maps/village.tmx
  levelconv convert -o village.level.json maps/village.tmx
  levelconv convert -watch -o village.level.json maps/village.tmj
  levelconv check maps/`)
}

func parseOptions(cfg *config.Config) *tiled.Options {
	return &tiled.Options{
		Logger:               logger.Log,
		Cache:                tiled.NewTilesetCache(logger.Log),
		MaxDecompressedBytes: int64(cfg.Limits.MaxDecompressedMB) << 20,
		MaxGroupDepth:        cfg.Limits.MaxGroupDepth,
	}
}

func convertOptions(cfg *config.Config) *level.Options {
	return &level.Options{
		CollisionLayerPattern: cfg.Conversion.CollisionLayerPattern,
		Categories: &level.CategoryTable{
			Dynamic:       cfg.Conversion.DynamicTypes,
			Sound:         cfg.Conversion.SoundTypes,
			WayType:       cfg.Conversion.WayType,
			CollisionType: cfg.Conversion.CollisionType,
		},
		RelationshipKeys: cfg.Conversion.RelationshipKeys,
		Logger:           logger.Log,
	}
}

func cmdInfo(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: levelconv info <map>")
		os.Exit(1)
	}

	m, err := tiled.LoadMapFile(args[0], parseOptions(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Map:         %s\n", args[0])
	fmt.Printf("Version:     %s\n", m.Version)
	fmt.Printf("Orientation: %s\n", m.Orientation)
	fmt.Printf("Size:        %dx%d tiles (%dx%d px each)\n", m.Width, m.Height, m.TileWidth, m.TileHeight)
	fmt.Printf("Infinite:    %v\n", m.Infinite)
	fmt.Printf("Tilesets:    %d\n", len(m.Tilesets))
	for _, ts := range m.Tilesets {
		src := "embedded"
		if ts.Source != "" {
			src = ts.Source
		}
		fmt.Printf("  %-20s firstgid=%-6d tiles=%-5d %s\n", ts.Name, ts.FirstGID, ts.TileCount, src)
	}

	layers, objects := countLayers(m.Layers)
	fmt.Printf("Layers:      %d\n", layers)
	fmt.Printf("Objects:     %d\n", objects)
}

func countLayers(layers []*tiled.Layer) (layerCount, objectCount int) {
	for _, l := range layers {
		layerCount++
		objectCount += len(l.Objects)
		if l.Kind == tiled.GroupLayerKind {
			cl, co := countLayers(l.Layers)
			layerCount += cl
			objectCount += co
		}
	}
	return layerCount, objectCount
}

func cmdConvert(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	out := fs.String("o", "", "Output file (default stdout)")
	watch := fs.Bool("watch", false, "Re-convert on file changes")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: levelconv convert [-o out.json] [-watch] <map>")
		os.Exit(1)
	}
	mapPath := fs.Arg(0)

	opts := parseOptions(cfg)
	if err := convertOnce(cfg, opts, mapPath, *out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !*watch {
		return
	}

	dirs := map[string]struct{}{filepath.Dir(mapPath): {}}
	for _, d := range cfg.Tilesets.WatchDirs {
		dirs[d] = struct{}{}
	}

	stopCache, err := opts.Cache.Watch(keys(dirs)...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer stopCache()

	if err := watchAndConvert(cfg, opts, mapPath, *out, keys(dirs)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func convertOnce(cfg *config.Config, opts *tiled.Options, mapPath, outPath string) error {
	start := time.Now()

	m, err := tiled.LoadMapFile(mapPath, opts)
	if err != nil {
		return err
	}

	def, err := level.Convert(m, convertOptions(cfg))
	if err != nil {
		return fmt.Errorf("converting %s: %w", mapPath, err)
	}

	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding definition: %w", err)
	}
	data = append(data, '\n')

	if outPath == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}

	logger.Log.Info("level written",
		zap.String("map", mapPath),
		zap.String("out", outPath),
		zap.Duration("took", time.Since(start)))
	return nil
}

// watchAndConvert re-runs the conversion whenever the map or a tileset in
// a watched directory changes. Events are debounced because editors fire
// several writes per save.
func watchAndConvert(cfg *config.Config, opts *tiled.Options, mapPath, outPath string, dirs []string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	fmt.Fprintf(os.Stderr, "Watching %s (ctrl-c to stop)\n", strings.Join(dirs, ", "))

	last := make(map[string]time.Time)
	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !isMapRelated(event.Name) {
				continue
			}
			now := time.Now()
			if t, ok := last[event.Name]; ok && now.Sub(t) < 200*time.Millisecond {
				continue
			}
			last[event.Name] = now

			if err := convertOnce(cfg, opts, mapPath, outPath); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			fmt.Fprintf(os.Stderr, "Reconverted after change to %s\n", event.Name)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Log.Warn("watcher error", zap.Error(err))
		}
	}
}

func isMapRelated(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tmx", ".tmj", ".tsx", ".tsj", ".xml", ".json":
		return true
	}
	return false
}

func cmdCheck(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: levelconv check <dir>")
		os.Exit(1)
	}

	var maps []string
	for _, pattern := range []string{"*.tmx", "*.tmj"} {
		matches, err := filepath.Glob(filepath.Join(args[0], pattern))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		maps = append(maps, matches...)
	}
	sort.Strings(maps)

	if len(maps) == 0 {
		fmt.Fprintf(os.Stderr, "No map files found in %s\n", args[0])
		os.Exit(1)
	}

	opts := parseOptions(cfg)
	failures := 0
	for _, path := range maps {
		m, err := tiled.LoadMapFile(path, opts)
		if err == nil {
			_, err = level.Convert(m, convertOptions(cfg))
		}
		if err != nil {
			failures++
			fmt.Printf("FAIL %s\n     %v\n", path, err)
			continue
		}
		fmt.Printf("ok   %s\n", path)
	}

	hits, misses := opts.Cache.Stats()
	fmt.Printf("\n%d maps, %d failed (tileset cache: %d hits, %d misses)\n",
		len(maps), failures, hits, misses)
	if failures > 0 {
		os.Exit(1)
	}
}

func cmdInitConfig(cfg *config.Config, args []string) {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}

	defaults := config.Default()
	var err error
	if path == "" {
		err = defaults.Save()
		path = filepath.Join(config.ConfigDir(), "levelconv.yaml")
	} else {
		err = defaults.SaveTo(path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", path)
}
