package detector

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/yolodet/internal/onnx"
	"github.com/yalue/onnxruntime_go"
)

// createSession creates the ONNX session with the given configuration.
func createSession(modelPath string, inputInfo, outputInfo onnxruntime_go.InputOutputInfo,
	config ONNXConfig,
) (*onnxruntime_go.DynamicAdvancedSession, error) {
	sessionOptions, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := sessionOptions.Destroy(); err != nil {
			slog.Warn("Failed to destroy session options", "error", err)
		}
	}()

	if err := onnx.ConfigureSessionForGPU(sessionOptions, config.GPU); err != nil {
		return nil, fmt.Errorf("failed to configure GPU: %w", err)
	}

	if config.NumThreads > 0 {
		if err = sessionOptions.SetIntraOpNumThreads(config.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := onnxruntime_go.NewDynamicAdvancedSession(modelPath,
		[]string{inputInfo.Name}, []string{outputInfo.Name}, sessionOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return session, nil
}
