// internal/app/system/limits/limits.go
package limits

// Request and frame size limits.
// These limits help prevent memory exhaustion from oversized requests.
const (
	// MaxJSONBody is the maximum size of a JSON API request body.
	MaxJSONBody = 64 << 10 // 64 KB

	// MaxSocketFrame is the maximum size of one inbound websocket frame.
	MaxSocketFrame = 16 << 10 // 16 KB
)
