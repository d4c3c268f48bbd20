package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Live room
	FieldRoomID     = "room_id"
	FieldConnID     = "conn_id"
	FieldCmd        = "cmd"
	FieldPopularity = "popularity"

	// Actor
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Domain events
	FieldEvent      = "event"
	FieldGiftName   = "gift_name"
	FieldCount      = "count"
	FieldValueCNY   = "value_cny"
	FieldGuardLevel = "guard_level"

	// Service
	FieldService = "service"
)
