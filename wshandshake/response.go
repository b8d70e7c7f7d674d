package wshandshake

import (
	"crypto/sha1"
	"encoding/base64"
	"strings"
)

// GUID appended to the client key before hashing, as mandated by RFC6455.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Response sent when the upgrade request is rejected.
const badRequestResponse = "HTTP/1.1 400 Bad Request\r\n\r\n"

// # Description
//
// Compute the Sec-WebSocket-Accept value for the provided Sec-WebSocket-Key value:
// Base64(SHA-1(key + GUID)).
func AcceptKey(key string) string {
	hash := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// # Description
//
// Build the 101 Switching Protocols response which completes the websocket handshake. The
// sub-protocol requested by the client, if any, is echoed verbatim.
//
// # Returns
//
// The response bytes and the computed accept value.
func SwitchingProtocolsResponse(req *Request) ([]byte, string) {
	accept := AcceptKey(req.Key)
	var sb strings.Builder
	sb.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	sb.WriteString("Upgrade: websocket\r\n")
	sb.WriteString("Connection: Upgrade\r\n")
	sb.WriteString("Sec-WebSocket-Accept: ")
	sb.WriteString(accept)
	sb.WriteString("\r\n")
	if req.Protocol != "" {
		sb.WriteString("Sec-WebSocket-Protocol: ")
		sb.WriteString(req.Protocol)
		sb.WriteString("\r\n")
	}
	sb.WriteString("\r\n")
	return []byte(sb.String()), accept
}

// # Description
//
// Return the 400 Bad Request response sent when the upgrade request is rejected. The response has
// no header and no body.
func BadRequestResponse() []byte {
	return []byte(badRequestResponse)
}
