package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "yolodet"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "YOLODET"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoaderWithViper creates a loader on v. Flags bound to v override file and env values.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load loads configuration from files, environment variables, and defaults, then validates it.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithFile loads configuration from a specific file path. An empty path searches the
// standard locations.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	config, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// LoadWithFileWithoutValidation loads configuration from a specific file path without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables configures environment variable handling.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	// Global settings
	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)

	// Model defaults
	l.v.SetDefault("model.backend", defaults.Model.Backend)
	l.v.SetDefault("model.path", defaults.Model.Path)
	l.v.SetDefault("model.models_dir", defaults.Model.ModelsDir)
	l.v.SetDefault("model.library_path", defaults.Model.LibraryPath)
	l.v.SetDefault("model.config_file", defaults.Model.ConfigFile)
	l.v.SetDefault("model.classes_file", defaults.Model.ClassesFile)
	l.v.SetDefault("model.remote_url", defaults.Model.RemoteURL)
	l.v.SetDefault("model.remote_timeout", defaults.Model.RemoteTimeout)
	l.v.SetDefault("model.input_size", defaults.Model.InputSize)
	l.v.SetDefault("model.iou_threshold", defaults.Model.IoUThreshold)
	l.v.SetDefault("model.max_detections", defaults.Model.MaxDetections)
	l.v.SetDefault("model.agnostic", defaults.Model.Agnostic)
	l.v.SetDefault("model.num_threads", defaults.Model.NumThreads)

	// Translation defaults
	l.v.SetDefault("translation.file", defaults.Translation.File)
	l.v.SetDefault("translation.dir", defaults.Translation.Dir)
	l.v.SetDefault("translation.source_language", defaults.Translation.SourceLanguage)
	l.v.SetDefault("translation.target_language", defaults.Translation.TargetLanguage)
	l.v.SetDefault("translation.source_column", defaults.Translation.SourceColumn)
	l.v.SetDefault("translation.target_column", defaults.Translation.TargetColumn)
	l.v.SetDefault("translation.class_column", defaults.Translation.ClassColumn)

	// Font defaults
	l.v.SetDefault("font.file", defaults.Font.File)
	l.v.SetDefault("font.search_dirs", defaults.Font.SearchDirs)
	l.v.SetDefault("font.fallbacks", defaults.Font.Fallbacks)

	// Annotation defaults
	l.v.SetDefault("annotation.line_thickness_base", defaults.Annotation.LineThicknessBase)
	l.v.SetDefault("annotation.line_thickness_min", defaults.Annotation.LineThicknessMin)
	l.v.SetDefault("annotation.line_thickness_max", defaults.Annotation.LineThicknessMax)
	l.v.SetDefault("annotation.font_size_base", defaults.Annotation.FontSizeBase)
	l.v.SetDefault("annotation.font_size_min", defaults.Annotation.FontSizeMin)
	l.v.SetDefault("annotation.font_size_max", defaults.Annotation.FontSizeMax)
	l.v.SetDefault("annotation.text_padding", defaults.Annotation.TextPadding)
	l.v.SetDefault("annotation.text_offset", defaults.Annotation.TextOffset)
	l.v.SetDefault("annotation.reference_height", defaults.Annotation.ReferenceHeight)
	l.v.SetDefault("annotation.brightness_threshold", defaults.Annotation.BrightnessThreshold)
	l.v.SetDefault("annotation.jpeg_quality", defaults.Annotation.JPEGQuality)

	// Server defaults
	l.v.SetDefault("server.host", defaults.Server.Host)
	l.v.SetDefault("server.port", defaults.Server.Port)
	l.v.SetDefault("server.cors_origin", defaults.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", defaults.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", defaults.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
	l.v.SetDefault("server.default_confidence", defaults.Server.DefaultConfidence)
	l.v.SetDefault("server.pdf_max_pages", defaults.Server.PDFMaxPages)
	l.v.SetDefault("server.rate_limit.enabled", defaults.Server.RateLimit.Enabled)
	l.v.SetDefault("server.rate_limit.requests_per_minute", defaults.Server.RateLimit.RequestsPerMinute)
	l.v.SetDefault("server.rate_limit.requests_per_hour", defaults.Server.RateLimit.RequestsPerHour)
	l.v.SetDefault("server.rate_limit.max_requests_per_day", defaults.Server.RateLimit.MaxRequestsPerDay)
	l.v.SetDefault("server.rate_limit.max_data_per_day", defaults.Server.RateLimit.MaxDataPerDay)

	// GPU defaults
	l.v.SetDefault("gpu.enabled", defaults.GPU.Enabled)
	l.v.SetDefault("gpu.device", defaults.GPU.Device)
	l.v.SetDefault("gpu.memory_limit", defaults.GPU.MemoryLimit)
}

// WriteYAML renders config as YAML to w.
func WriteYAML(w io.Writer, config *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// GenerateDefaultConfigFile writes the default configuration as YAML. It refuses to
// overwrite an existing file.
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defaults := DefaultConfig()
	if err := WriteYAML(f, &defaults); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists && configDir != "" {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	return append(paths, filepath.Join("/etc", ConfigFileName))
}

// PrintConfigInfo prints information about configuration loading for debugging.
func (l *Loader) PrintConfigInfo(w io.Writer) {
	_, _ = fmt.Fprintf(w, "Configuration file used: %s\n", l.GetConfigFileUsed())
	_, _ = fmt.Fprintf(w, "Configuration search paths: %v\n", GetConfigSearchPaths())
	_, _ = fmt.Fprintf(w, "Environment prefix: %s\n", EnvPrefix)
}
