// The package parses the HTTP/1.1 upgrade request which opens a websocket connection and builds
// the server response to it.
package wshandshake

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

/*************************************************************************************************/
/* PARSE OUTCOME                                                                                 */
/*************************************************************************************************/

// Outcome of a Parse call.
type Outcome int

const (
	// The header/body separator has not been received yet: keep the buffer and call Parse again
	// once more bytes are available.
	NeedMoreData Outcome = iota
	// The request is a valid websocket upgrade request.
	Parsed
	// The request is not a valid websocket upgrade request: a 400 response must be sent and the
	// connection dropped.
	Malformed
)

func (o Outcome) String() string {
	switch o {
	case NeedMoreData:
		return "need-more-data"
	case Parsed:
		return "parsed"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

/*************************************************************************************************/
/* ERRORS                                                                                        */
/*************************************************************************************************/

// Reasons a handshake is rejected. They are wrapped in MalformedHandshakeError.
var (
	ErrBadRequestLine        = errors.New("request line is not METHOD PATH VERSION")
	ErrMissingConnection     = errors.New("missing connection header")
	ErrConnectionNotUpgrade  = errors.New("connection header is not upgrade")
	ErrMissingUpgrade        = errors.New("missing upgrade header")
	ErrUpgradeNotWebsocket   = errors.New("upgrade header is not websocket")
	ErrMissingKey            = errors.New("missing sec-websocket-key header")
	ErrInvalidVersion        = errors.New("sec-websocket-version header is not an integer")
	ErrRequestHeaderTooLarge = errors.New("request header too large")
)

// Separator between the request header and its body
var headerSeparator = []byte("\r\n\r\n")

const (
	// Version assumed when Sec-WebSocket-Version is absent
	defaultWebsocketVersion = 13
	// Expected Upgrade header value
	websocketUpgradeToken = "websocket"
	// Expected Connection header value
	connectionUpgradeToken = "upgrade"
	// Lower cased header names
	headerConnection          = "connection"
	headerUpgrade             = "upgrade"
	headerSecWebsocketKey     = "sec-websocket-key"
	headerSecWebsocketVersion = "sec-websocket-version"
	headerSecWebsocketProto   = "sec-websocket-protocol"
)

// Error returned when the upgrade request is malformed or misses a required header.
type MalformedHandshakeError struct {
	// Embedded error: one of the Err*** reasons
	Err error
}

func (err MalformedHandshakeError) Error() string {
	return fmt.Sprintf("websocket http header error: %v", err.Err)
}

func (err MalformedHandshakeError) Unwrap() error {
	return err.Err
}

/*************************************************************************************************/
/* REQUEST                                                                                       */
/*************************************************************************************************/

// A parsed websocket upgrade request.
type Request struct {
	// Request method as sent by the client
	Method string
	// Request path
	Path string
	// HTTP version token of the request line
	Proto string
	// Headers. Keys are lower cased, the last occurence of a header wins.
	Headers map[string]string
	// Value of Sec-WebSocket-Key
	Key string
	// Value of Sec-WebSocket-Version, 13 if absent
	Version int
	// Value of Sec-WebSocket-Protocol if any, echoed verbatim in the response
	Protocol string
	// Number of bytes of the request, separator included
	Size int
}

// Returns the value of the header with the provided name (case insensitive) and whether it exists.
func (req *Request) Header(name string) (string, bool) {
	value, ok := req.Headers[strings.ToLower(name)]
	return value, ok
}

/*************************************************************************************************/
/* PARSER                                                                                        */
/*************************************************************************************************/

// # Description
//
// Parse the bytes received so far on a connection which has not been upgraded yet.
//
// The function is a pure function of buf: it can be called again with the same buffer extended
// with newly received bytes.
//
// # Returns
//
//   - NeedMoreData, nil, nil: the header/body separator has not been received yet.
//   - Parsed, request, nil: the request is a valid websocket upgrade request.
//   - Malformed, nil, MalformedHandshakeError: the request must be rejected with a 400 response.
func Parse(buf []byte) (Outcome, *Request, error) {
	end := bytes.Index(buf, headerSeparator)
	if end < 0 {
		return NeedMoreData, nil, nil
	}
	lines := strings.Split(string(buf[:end]), "\r\n")
	// Request line
	items := strings.Split(lines[0], " ")
	if len(items) != 3 || items[0] == "" || items[1] == "" || items[2] == "" {
		return malformed(ErrBadRequestLine)
	}
	req := &Request{
		Method:  items[0],
		Path:    items[1],
		Proto:   items[2],
		Headers: make(map[string]string, len(lines)-1),
		Version: defaultWebsocketVersion,
		Size:    end + len(headerSeparator),
	}
	// Header lines - lines without a colon are ignored
	for _, line := range lines[1:] {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		req.Headers[key] = strings.TrimSpace(line[colon+1:])
	}
	// Required headers
	connection, ok := req.Headers[headerConnection]
	if !ok {
		return malformed(ErrMissingConnection)
	}
	if !strings.EqualFold(connection, connectionUpgradeToken) {
		return malformed(ErrConnectionNotUpgrade)
	}
	upgrade, ok := req.Headers[headerUpgrade]
	if !ok {
		return malformed(ErrMissingUpgrade)
	}
	if !strings.EqualFold(upgrade, websocketUpgradeToken) {
		return malformed(ErrUpgradeNotWebsocket)
	}
	if version, ok := req.Headers[headerSecWebsocketVersion]; ok {
		v, err := strconv.Atoi(version)
		if err != nil {
			return malformed(ErrInvalidVersion)
		}
		req.Version = v
	}
	key, ok := req.Headers[headerSecWebsocketKey]
	if !ok || key == "" {
		return malformed(ErrMissingKey)
	}
	req.Key = key
	req.Protocol = req.Headers[headerSecWebsocketProto]
	return Parsed, req, nil
}

// Shortcut used to return a Malformed outcome.
func malformed(reason error) (Outcome, *Request, error) {
	return Malformed, nil, MalformedHandshakeError{Err: reason}
}
