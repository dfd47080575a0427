package support

import (
	"image"
	"image/png"
	"io"

	"github.com/MeKo-Tech/yolodet/internal/server"
)

func encodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// serverRateLimit limits only the per-minute window.
func serverRateLimit(perMinute int) server.RateLimitConfig {
	return server.RateLimitConfig{Enabled: true, RequestsPerMinute: perMinute}
}
