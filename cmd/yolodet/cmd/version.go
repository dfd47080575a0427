package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/yolodet/internal/onnx"
	"github.com/MeKo-Tech/yolodet/internal/version"
)

// versionCmd prints build metadata and, on request, probes the ONNX Runtime library.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, version.String())

		check, _ := cmd.Flags().GetBool("check-runtime")
		if !check {
			return nil
		}
		cfg := GetConfig()
		info, err := onnx.CheckRuntime(cfg.Model.LibraryPath, cfg.GPU.Enabled)
		if err != nil {
			return fmt.Errorf("ONNX Runtime unavailable: %w", err)
		}
		_, _ = fmt.Fprintf(out, "ONNX Runtime %s (%s)\n", info.Version, info.LibraryPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("check-runtime", false, "load the ONNX Runtime shared library and report its version")
}
