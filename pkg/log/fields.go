package log

const (
	// Relay
	FieldRoomID   = "room_id"
	FieldStreamID = "stream_id"
	FieldClientID = "client_id"
	FieldUsername = "username"
	FieldViewers  = "viewers"

	// Service
	FieldService = "service"

	// HTTP
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldClientIP  = "client_ip"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
)

const headerRequestID = "X-Request-ID"
