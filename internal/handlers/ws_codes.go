// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes for the realtime event stream. These give
// clients more specific closure reasons than the standard set.
const (
	BadSubprotocolError   = 3000 // client connected with an unsupported subprotocol
	InvalidAuthTokenError = 3001 // auth token was invalid or expired
	InvalidChannelError   = 3002 // a requested channel key was malformed
	CapacityRejectedError = 3003 // hub at capacity with no evictable lower-priority connection
)
