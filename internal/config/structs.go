//nolint:lll
package config

// Config represents the complete configuration for the yolodet service.
// It covers the serve and annotate commands and supports loading from configuration
// files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Detection backend
	Model ModelConfig `mapstructure:"model" yaml:"model" json:"model"`

	// Label translation
	Translation TranslationConfig `mapstructure:"translation" yaml:"translation" json:"translation"`

	// Label font resolution
	Font FontConfig `mapstructure:"font" yaml:"font" json:"font"`

	// Annotation geometry and colours
	Annotation AnnotationConfig `mapstructure:"annotation" yaml:"annotation" json:"annotation"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// GPU configuration
	GPU GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// ModelConfig selects and tunes the detection backend.
type ModelConfig struct {
	Backend       string  `mapstructure:"backend" yaml:"backend" json:"backend"`
	Path          string  `mapstructure:"path" yaml:"path" json:"path"`
	ModelsDir     string  `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LibraryPath   string  `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	ConfigFile    string  `mapstructure:"config_file" yaml:"config_file" json:"config_file"`
	ClassesFile   string  `mapstructure:"classes_file" yaml:"classes_file" json:"classes_file"`
	RemoteURL     string  `mapstructure:"remote_url" yaml:"remote_url" json:"remote_url"`
	RemoteTimeout int     `mapstructure:"remote_timeout" yaml:"remote_timeout" json:"remote_timeout"`
	InputSize     int     `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
	IoUThreshold  float64 `mapstructure:"iou_threshold" yaml:"iou_threshold" json:"iou_threshold"`
	MaxDetections int     `mapstructure:"max_detections" yaml:"max_detections" json:"max_detections"`
	Agnostic      bool    `mapstructure:"agnostic" yaml:"agnostic" json:"agnostic"`
	NumThreads    int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// TranslationConfig locates the label translation table.
type TranslationConfig struct {
	File           string `mapstructure:"file" yaml:"file" json:"file"`
	Dir            string `mapstructure:"dir" yaml:"dir" json:"dir"`
	SourceLanguage string `mapstructure:"source_language" yaml:"source_language" json:"source_language"`
	TargetLanguage string `mapstructure:"target_language" yaml:"target_language" json:"target_language"`
	SourceColumn   string `mapstructure:"source_column" yaml:"source_column" json:"source_column"`
	TargetColumn   string `mapstructure:"target_column" yaml:"target_column" json:"target_column"`
	ClassColumn    string `mapstructure:"class_column" yaml:"class_column" json:"class_column"`
}

// FontConfig controls label font resolution.
type FontConfig struct {
	File       string   `mapstructure:"file" yaml:"file" json:"file"`
	SearchDirs []string `mapstructure:"search_dirs" yaml:"search_dirs" json:"search_dirs"`
	Fallbacks  []string `mapstructure:"fallbacks" yaml:"fallbacks" json:"fallbacks"`
}

// AnnotationConfig contains box and label drawing settings.
type AnnotationConfig struct {
	LineThicknessBase   int     `mapstructure:"line_thickness_base" yaml:"line_thickness_base" json:"line_thickness_base"`
	LineThicknessMin    int     `mapstructure:"line_thickness_min" yaml:"line_thickness_min" json:"line_thickness_min"`
	LineThicknessMax    int     `mapstructure:"line_thickness_max" yaml:"line_thickness_max" json:"line_thickness_max"`
	FontSizeBase        int     `mapstructure:"font_size_base" yaml:"font_size_base" json:"font_size_base"`
	FontSizeMin         int     `mapstructure:"font_size_min" yaml:"font_size_min" json:"font_size_min"`
	FontSizeMax         int     `mapstructure:"font_size_max" yaml:"font_size_max" json:"font_size_max"`
	TextPadding         int     `mapstructure:"text_padding" yaml:"text_padding" json:"text_padding"`
	TextOffset          int     `mapstructure:"text_offset" yaml:"text_offset" json:"text_offset"`
	ReferenceHeight     int     `mapstructure:"reference_height" yaml:"reference_height" json:"reference_height"`
	BrightnessThreshold float64 `mapstructure:"brightness_threshold" yaml:"brightness_threshold" json:"brightness_threshold"`
	JPEGQuality         int     `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string          `mapstructure:"host" yaml:"host" json:"host"`
	Port              int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin        string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB       int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec        int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout   int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	DefaultConfidence float64         `mapstructure:"default_confidence" yaml:"default_confidence" json:"default_confidence"`
	PDFMaxPages       int             `mapstructure:"pdf_max_pages" yaml:"pdf_max_pages" json:"pdf_max_pages"`
	RateLimit         RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client request and data quotas.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// GPUConfig contains GPU acceleration settings.
type GPUConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Device      int    `mapstructure:"device" yaml:"device" json:"device"`
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
}
