package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration. It replaces the interactive
// camera and alert prompts with values supplied up front.
type Config struct {
	Mode     string         `mapstructure:"mode" yaml:"mode"`
	Camera   CameraConfig   `mapstructure:"camera" yaml:"camera"`
	Detector DetectorConfig `mapstructure:"detector" yaml:"detector"`
	Alert    AlertConfig    `mapstructure:"alert" yaml:"alert"`
	Display  DisplayConfig  `mapstructure:"display" yaml:"display"`
	Snapshot SnapshotConfig `mapstructure:"snapshot" yaml:"snapshot"`
	Journal  JournalConfig  `mapstructure:"journal" yaml:"journal"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
}

type CameraConfig struct {
	Source        string        `mapstructure:"source" yaml:"source"` // device index ("0", "1") or stream URL
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	MaxReconnects int           `mapstructure:"max_reconnects" yaml:"max_reconnects"`
	BufferSize    int           `mapstructure:"buffer_size" yaml:"buffer_size"` // 0 leaves the backend default
}

type DetectorConfig struct {
	ModelPath     string  `mapstructure:"model_path" yaml:"model_path"`
	ConfigPath    string  `mapstructure:"config_path" yaml:"config_path"` // darknet .cfg, unused for onnx
	Format        string  `mapstructure:"format" yaml:"format"`           // yolov8, darknet
	Backend       string  `mapstructure:"backend" yaml:"backend"`         // auto, cpu, gpu
	Threshold     float64 `mapstructure:"threshold" yaml:"threshold"`
	NMSThreshold  float64 `mapstructure:"nms_threshold" yaml:"nms_threshold"`
	PersonClassID int     `mapstructure:"person_class_id" yaml:"person_class_id"`
	InputSize     int     `mapstructure:"input_size" yaml:"input_size"`
}

type AlertConfig struct {
	Sound      string        `mapstructure:"sound" yaml:"sound"` // high, medium, low, custom
	CustomFile string        `mapstructure:"custom_file" yaml:"custom_file"`
	Cooldown   time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	Duration   time.Duration `mapstructure:"duration" yaml:"duration"`
	PlayerPath string        `mapstructure:"player_path" yaml:"player_path"`
	Muted      bool          `mapstructure:"muted" yaml:"muted"`
}

type DisplayConfig struct {
	WindowName string `mapstructure:"window_name" yaml:"window_name"`
	QuitKey    string `mapstructure:"quit_key" yaml:"quit_key"`
}

type SnapshotConfig struct {
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	Interval  int    `mapstructure:"interval" yaml:"interval"`
}

// JournalConfig enables the SQLite event journal when Path is set.
type JournalConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type PipelineConfig struct {
	ErrorPause           time.Duration `mapstructure:"error_pause" yaml:"error_pause"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors" yaml:"max_consecutive_errors"`
	StatsInterval        time.Duration `mapstructure:"stats_interval" yaml:"stats_interval"`
}

// Load reads a YAML config file on top of the defaults. Environment
// variables prefixed with HUMANWATCH_ override both (HUMANWATCH_ALERT_SOUND).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HUMANWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads configPath when it exists and falls back to Default
// otherwise. A file that exists but does not parse is still an error.
func LoadOrDefault(configPath string) (*Config, error) {
	if configPath == "" {
		return Default(), nil
	}
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(configPath)
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("mode", d.Mode)

	v.SetDefault("camera.source", d.Camera.Source)
	v.SetDefault("camera.max_attempts", d.Camera.MaxAttempts)
	v.SetDefault("camera.retry_delay", d.Camera.RetryDelay)
	v.SetDefault("camera.max_reconnects", d.Camera.MaxReconnects)
	v.SetDefault("camera.buffer_size", d.Camera.BufferSize)

	v.SetDefault("detector.model_path", d.Detector.ModelPath)
	v.SetDefault("detector.config_path", d.Detector.ConfigPath)
	v.SetDefault("detector.format", d.Detector.Format)
	v.SetDefault("detector.backend", d.Detector.Backend)
	v.SetDefault("detector.threshold", d.Detector.Threshold)
	v.SetDefault("detector.nms_threshold", d.Detector.NMSThreshold)
	v.SetDefault("detector.person_class_id", d.Detector.PersonClassID)
	v.SetDefault("detector.input_size", d.Detector.InputSize)

	v.SetDefault("alert.sound", d.Alert.Sound)
	v.SetDefault("alert.custom_file", d.Alert.CustomFile)
	v.SetDefault("alert.cooldown", d.Alert.Cooldown)
	v.SetDefault("alert.duration", d.Alert.Duration)
	v.SetDefault("alert.player_path", d.Alert.PlayerPath)
	v.SetDefault("alert.muted", d.Alert.Muted)

	v.SetDefault("display.window_name", d.Display.WindowName)
	v.SetDefault("display.quit_key", d.Display.QuitKey)

	v.SetDefault("snapshot.output_dir", d.Snapshot.OutputDir)
	v.SetDefault("snapshot.interval", d.Snapshot.Interval)

	v.SetDefault("journal.path", d.Journal.Path)

	v.SetDefault("pipeline.error_pause", d.Pipeline.ErrorPause)
	v.SetDefault("pipeline.max_consecutive_errors", d.Pipeline.MaxConsecutiveErrors)
	v.SetDefault("pipeline.stats_interval", d.Pipeline.StatsInterval)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mode: "debug",
		Camera: CameraConfig{
			Source:        "0",
			MaxAttempts:   3,
			RetryDelay:    2 * time.Second,
			MaxReconnects: 3,
		},
		Detector: DetectorConfig{
			ModelPath:     "yolov8n.onnx",
			Format:        "yolov8",
			Backend:       "auto",
			Threshold:     0.4,
			NMSThreshold:  0.45,
			PersonClassID: 0,
			InputSize:     640,
		},
		Alert: AlertConfig{
			Sound:      "high",
			CustomFile: "alert.mp3",
			Cooldown:   3 * time.Second,
			Duration:   500 * time.Millisecond,
			PlayerPath: "ffplay",
		},
		Display: DisplayConfig{
			WindowName: "Human Detection - YOLOv8n",
			QuitKey:    "q",
		},
		Snapshot: SnapshotConfig{
			OutputDir: "detected_frames",
			Interval:  10,
		},
		Pipeline: PipelineConfig{
			ErrorPause:           time.Second,
			MaxConsecutiveErrors: 30,
			StatsInterval:        15 * time.Second,
		},
	}
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Camera.Source) == "" {
		problems = append(problems, "camera.source is required")
	}
	if c.Camera.MaxAttempts < 1 {
		problems = append(problems, "camera.max_attempts must be at least 1")
	}
	if c.Camera.RetryDelay < 0 {
		problems = append(problems, "camera.retry_delay must not be negative")
	}
	if c.Camera.MaxReconnects < 0 {
		problems = append(problems, "camera.max_reconnects must not be negative")
	}

	if c.Detector.ModelPath == "" {
		problems = append(problems, "detector.model_path is required")
	}
	switch c.Detector.Format {
	case "yolov8", "darknet":
	default:
		problems = append(problems, fmt.Sprintf("detector.format %q is not one of yolov8, darknet", c.Detector.Format))
	}
	switch c.Detector.Backend {
	case "auto", "cpu", "gpu":
	default:
		problems = append(problems, fmt.Sprintf("detector.backend %q is not one of auto, cpu, gpu", c.Detector.Backend))
	}
	if c.Detector.Threshold < 0 || c.Detector.Threshold > 1 {
		problems = append(problems, "detector.threshold must be within [0, 1]")
	}
	if c.Detector.NMSThreshold < 0 || c.Detector.NMSThreshold > 1 {
		problems = append(problems, "detector.nms_threshold must be within [0, 1]")
	}
	if c.Detector.InputSize <= 0 || c.Detector.InputSize%32 != 0 {
		problems = append(problems, "detector.input_size must be a positive multiple of 32")
	}

	switch strings.ToLower(c.Alert.Sound) {
	case "high", "medium", "low", "custom", "1", "2", "3", "4":
	default:
		problems = append(problems, fmt.Sprintf("alert.sound %q is not one of high, medium, low, custom", c.Alert.Sound))
	}
	if c.Alert.Cooldown < 0 {
		problems = append(problems, "alert.cooldown must not be negative")
	}
	if c.Alert.Duration <= 0 {
		problems = append(problems, "alert.duration must be positive")
	}

	if len(c.Display.QuitKey) != 1 {
		problems = append(problems, "display.quit_key must be a single character")
	}

	if c.Snapshot.OutputDir == "" {
		problems = append(problems, "snapshot.output_dir is required")
	}
	if c.Snapshot.Interval < 1 {
		problems = append(problems, "snapshot.interval must be at least 1")
	}

	if c.Pipeline.ErrorPause < 0 {
		problems = append(problems, "pipeline.error_pause must not be negative")
	}
	if c.Pipeline.MaxConsecutiveErrors < 1 {
		problems = append(problems, "pipeline.max_consecutive_errors must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// WriteYAML dumps the effective configuration.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
