package demowsserver

// Message types
const (
	MsgTypeError               = "error"
	MsgTypeSubscribeRequest    = "subscribe_request"
	MsgTypeSubscribeResponse   = "subscribe_response"
	MsgTypeUnsubscribeRequest  = "unsubscribe_request"
	MsgTypeUnsubscribeResponse = "unsubscribe_response"
	MsgTypeEchoRequest         = "echo_request"
	MsgTypeEchoResponse        = "echo_response"
	MsgTypeHeartbeat           = "heartbeat"
)

// Topic of the heartbeat publication
const TopicHeartbeat = "heartbeat"

// Response status
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Error codes
const (
	// Client has already subscribed to the topic
	ErrCodeAlreadySubscribed = "ALREADY_SUBSCRIBED"
	// Client asks to unsubscribe from a topic it has not subscribed
	ErrCodeNotSubscribed = "NOT_SUBSCRIBED"
	// Client asked the echo to fail
	ErrCodeAskedByClient = "ASKED_BY_CLIENT"
	// Topic is not known by the server
	ErrCodeTopicNotFound = "TOPIC_NOT_FOUND"
	// Message type is missing or not known
	ErrCodeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
	// Message is not valid JSON or does not match its type
	ErrCodeBadRequest = "BAD_REQUEST"
)

/*************************************************************************************************/
/* BASE MESSAGES                                                                                 */
/*************************************************************************************************/

// Base of every message exchanged between the server and a client.
type Message struct {
	// Mandatory message type indicator
	MsgType string `json:"type"`
}

// Data of an error returned by the server.
type ErrorMessageData struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	ReqId   string `json:"reqId,omitempty"`
}

// Base of a client request.
type Request struct {
	Message
	// Optional ID used by the client to match responses
	ReqId string `json:"reqId,omitempty"`
}

// Base of a server response.
type Response struct {
	Message
	ReqId string `json:"reqId,omitempty"`
	// OK or ERROR
	Status string `json:"status"`
	// Set when status is ERROR
	Err *ErrorMessageData `json:"error,omitempty"`
}

// Error message sent when no other response applies.
type ErrorMessage struct {
	Message
	ErrorMessageData
}

/*************************************************************************************************/
/* SUBSCRIPTIONS                                                                                 */
/*************************************************************************************************/

type SubscribeRequest struct {
	Request
	Topic string `json:"topic"`
}

type TopicData struct {
	Topic string `json:"topic"`
}

type SubscribeResponse struct {
	Response
	Data *TopicData `json:"data,omitempty"`
}

type UnsubscribeRequest struct {
	Request
	Topic string `json:"topic"`
}

type UnsubscribeResponse struct {
	Response
	Data *TopicData `json:"data,omitempty"`
}

/*************************************************************************************************/
/* ECHO                                                                                          */
/*************************************************************************************************/

type EchoRequest struct {
	Request
	// Message to echo
	Echo string `json:"echo"`
	// If true, the server returns an error instead of the echo
	Err bool `json:"err,omitempty"`
}

type EchoResponseData struct {
	Echo string `json:"echo"`
}

type EchoResponse struct {
	Response
	Data *EchoResponseData `json:"data,omitempty"`
}

/*************************************************************************************************/
/* PUBLICATIONS                                                                                  */
/*************************************************************************************************/

// Heartbeat publication
type Heartbeat struct {
	Message
	// RFC 3339 timestamp of the publication
	Timestamp string `json:"timestamp"`
	// Session uptime in seconds
	Uptime int64 `json:"uptime_seconds"`
}
