package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/yolodet/internal/config"
)

var (
	// Configuration loader of the running command.
	configLoader *config.Loader
	// Resolved configuration of the running command.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
)

// flagBinding maps a command-line flag to a configuration key.
type flagBinding struct {
	key  string
	flag string
}

// commandBindings holds the flag bindings of each subcommand. They are applied to a
// fresh viper instance when that command runs, so commands sharing a flag name do not
// overwrite each other's bindings.
var commandBindings = map[*cobra.Command][]flagBinding{}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "yolodet",
	Short: "YOLO object detection with translated, annotated output",
	Long: `yolodet runs a YOLO object detection model on images and returns labelled
detections together with an annotated copy of the image.

Class labels can be translated into a second language using a CSV translation
table, and annotations are drawn with a per-class colour palette.

Examples:
  yolodet serve --port 8080
  yolodet annotate photo.jpg --language ru
  yolodet config init`,
	SilenceUsage:      true,
	PersistentPreRunE: preRun,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/yolodet, /etc/yolodet)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
}

// preRun loads the configuration for the executing command and installs the logger.
func preRun(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	globals := []flagBinding{{"verbose", "verbose"}, {"log_level", "log-level"}}
	if err := bindFlags(v, cmd, append(globals, commandBindings[cmd]...)); err != nil {
		return err
	}

	configLoader = config.NewLoaderWithViper(v)
	cfg, err := configLoader.LoadWithFile(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	globalConfig = cfg

	setupLogging(cmd.ErrOrStderr(), cfg)
	slog.Debug("Configuration loaded", "file", configLoader.GetConfigFileUsed())
	return nil
}

// bindFlags binds flags of cmd (including inherited persistent flags) to viper keys.
func bindFlags(v *viper.Viper, cmd *cobra.Command, bindings []flagBinding) error {
	for _, b := range bindings {
		f := cmd.Flags().Lookup(b.flag)
		if f == nil {
			f = cmd.InheritedFlags().Lookup(b.flag)
		}
		if f == nil {
			return fmt.Errorf("unknown flag %q for key %s", b.flag, b.key)
		}
		if err := v.BindPFlag(b.key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", b.flag, err)
		}
	}
	return nil
}

// parseLogLevel maps a config level name to slog. Unknown names mean info.
func parseLogLevel(cfg *config.Config) slog.Level {
	if cfg.Verbose {
		return slog.LevelDebug
	}
	switch cfg.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogging installs a JSON slog handler as the process default.
func setupLogging(w io.Writer, cfg *config.Config) {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLogLevel(cfg),
	}))
	slog.SetDefault(logger)
}

// GetConfig returns the configuration resolved for the running command.
func GetConfig() *config.Config {
	if globalConfig == nil {
		defaults := config.DefaultConfig()
		return &defaults
	}
	return globalConfig
}
