package log

const (
	// 请求
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// 身份（与 middleware 中 c.Set 的 key 一致）
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// 会话与消息
	FieldSessionID   = "session_id"
	FieldSender      = "sender"
	FieldRecipient   = "recipient"
	FieldMessageType = "message_type"
	FieldMessageID   = "message_id"
	FieldDestination = "destination"

	FieldService = "service"
)
