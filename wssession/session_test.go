package wssession

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/gbdevw/gowsserver/wsframe"
	"github.com/gbdevw/gowsserver/wshandshake"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

/*************************************************************************************************/
/* TEST SUITES                                                                                   */
/*************************************************************************************************/

// Test suite used for Session unit tests
type SessionUnitTestSuite struct {
	suite.Suite
}

// Run SessionUnitTestSuite test suite
func TestSessionUnitTestSuite(t *testing.T) {
	suite.Run(t, new(SessionUnitTestSuite))
}

/*************************************************************************************************/
/* HELPERS                                                                                       */
/*************************************************************************************************/

// Masking key used to build client frames
var testMaskingKey = [4]byte{0x12, 0x34, 0x56, 0x78}

// Minimal valid upgrade request
const upgradeRequest = "GET /chat HTTP/1.1\r\n" +
	"Host: localhost\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Sec-WebSocket-Protocol: chat\r\n" +
	"\r\n"

// Build a masked client frame.
func clientFrame(fin bool, op wsframe.Opcode, payload []byte) []byte {
	h := wsframe.Header{
		Fin:           fin,
		Opcode:        op,
		Masked:        true,
		PayloadLength: uint64(len(payload)),
		MaskingKey:    testMaskingKey,
	}
	masked := append([]byte{}, payload...)
	wsframe.ApplyMask(testMaskingKey, 0, masked)
	return append(h.AppendTo(nil), masked...)
}

// Build a masked client close frame with the provided raw payload.
func clientClose(payload []byte) []byte {
	return clientFrame(true, wsframe.OpClose, payload)
}

// Build a transport mock which accepts any call.
func newTransport() *TransportMock {
	transport := NewTransportMock()
	transport.On("RemoteEndpoint").Return("127.0.0.1:4242")
	transport.On("AsyncRead").Return()
	transport.On("AsyncWrite", mock.Anything).Return()
	transport.On("Close").Return(nil)
	return transport
}

// Build a handler mock which accepts any call.
func newHandler() *HandlerMock {
	handler := NewHandlerMock()
	handler.On("OnRead", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()
	handler.On("OnClose", mock.Anything, mock.Anything).Return()
	return handler
}

// Build a new session without owner.
func (suite *SessionUnitTestSuite) newSession(owner Owner, tp trace.TracerProvider) (*Session, *TransportMock, *HandlerMock) {
	transport := newTransport()
	handler := newHandler()
	session, err := NewSession(transport, handler, owner, nil, zap.NewNop(), tp)
	require.NoError(suite.T(), err)
	return session, transport, handler
}

// Build a session and complete the upgrade handshake.
func (suite *SessionUnitTestSuite) openSession() (*Session, *TransportMock, *HandlerMock) {
	session, transport, handler := suite.newSession(nil, nil)
	session.Start()
	session.OnRead(nil, []byte(upgradeRequest))
	require.Equal(suite.T(), Open, session.State())
	return session, transport, handler
}

// Returns the bytes passed to AsyncWrite, in order.
func writes(transport *TransportMock) [][]byte {
	result := [][]byte{}
	for _, call := range transport.Calls {
		if call.Method == "AsyncWrite" {
			result = append(result, call.Arguments.Get(0).([]byte))
		}
	}
	return result
}

// Decode the frames written by the session after the 101 response.
func serverFrames(t *testing.T, transport *TransportMock) []wsframe.Frame {
	stream := []byte{}
	for _, w := range writes(transport)[1:] {
		stream = append(stream, w...)
	}
	decoder := wsframe.NewDecoder(wsframe.DecoderOptions{})
	frames := []wsframe.Frame{}
	require.NoError(t, decoder.Parse(stream))
	for decoder.PayloadIsReady() {
		frame, _ := decoder.Frame()
		require.False(t, frame.Header.Masked)
		require.True(t, frame.Header.Fin)
		frames = append(frames, frame)
		decoder.Reset()
		if decoder.Buffered() == 0 {
			break
		}
		require.NoError(t, decoder.Parse(nil))
	}
	require.Zero(t, decoder.Buffered())
	return frames
}

// Returns the data passed to OnRead, in order.
func reads(handler *HandlerMock) [][]byte {
	result := [][]byte{}
	for _, call := range handler.Calls {
		if call.Method == "OnRead" {
			result = append(result, call.Arguments.Get(3).([]byte))
		}
	}
	return result
}

/*************************************************************************************************/
/* UNIT TESTS - CONSTRUCTION                                                                     */
/*************************************************************************************************/

// Test NewSession rejects invalid inputs.
func (suite *SessionUnitTestSuite) TestNewSessionInvalidInputs() {
	_, err := NewSession(nil, newHandler(), nil, nil, nil, nil)
	require.Error(suite.T(), err)
	_, err = NewSession(newTransport(), nil, nil, nil, nil, nil)
	require.Error(suite.T(), err)
	_, err = NewSession(newTransport(), newHandler(), nil, NewSessionOptions().WithMaxHandshakeSize(10), nil, nil)
	require.Error(suite.T(), err)
	session, err := NewSession(newTransport(), newHandler(), nil, nil, nil, nil)
	require.NoError(suite.T(), err)
	require.NotEmpty(suite.T(), session.ID())
	require.Equal(suite.T(), AwaitingHandshake, session.State())
	require.Equal(suite.T(), "127.0.0.1:4242", session.RemoteAddress())
}

// Test default options are valid and setters are applied.
func (suite *SessionUnitTestSuite) TestOptions() {
	opts := NewSessionOptions()
	require.NoError(suite.T(), Validate(opts))
	opts.WithMaxHandshakeSize(1024).
		WithMaxPayloadSize(0).
		WithRequireMaskedFrames(false).
		WithStrictControlFrames(false)
	require.NoError(suite.T(), Validate(opts))
	require.Equal(suite.T(), 1024, opts.MaxHandshakeSize)
	require.False(suite.T(), opts.RequireMaskedFrames)
	require.False(suite.T(), opts.StrictControlFrames)
	require.Error(suite.T(), Validate(opts.WithMaxPayloadSize(-1)))
	// The message size limit defaults to the payload size limit
	defaults := NewSessionOptions()
	require.Equal(suite.T(), defaults.MaxPayloadSize, defaults.MaxMessageSize)
	require.Error(suite.T(), Validate(defaults.WithMaxMessageSize(-1)))
	require.NoError(suite.T(), Validate(defaults.WithMaxMessageSize(0)))
}

/*************************************************************************************************/
/* UNIT TESTS - HANDSHAKE                                                                        */
/*************************************************************************************************/

// # Description
//
// Test the upgrade request is buffered until complete, then answered with a 101 response and the
// session opens with the request details exposed through accessors.
func (suite *SessionUnitTestSuite) TestHandshakeSplitAcrossReads() {
	session, transport, _ := suite.newSession(nil, nil)
	session.Start()
	session.OnRead(nil, []byte(upgradeRequest[:10]))
	session.OnRead(nil, []byte(upgradeRequest[10:40]))
	require.Equal(suite.T(), AwaitingHandshake, session.State())
	require.Empty(suite.T(), writes(transport))
	session.OnRead(nil, []byte(upgradeRequest[40:]))
	require.Equal(suite.T(), Open, session.State())
	// One read armed by Start and one per completion
	transport.AssertNumberOfCalls(suite.T(), "AsyncRead", 4)
	w := writes(transport)
	require.Len(suite.T(), w, 1)
	require.True(suite.T(), strings.HasPrefix(string(w[0]), "HTTP/1.1 101 Switching Protocols\r\n"))
	require.Contains(suite.T(), string(w[0]), "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n")
	require.Contains(suite.T(), string(w[0]), "Sec-WebSocket-Protocol: chat\r\n")
	// Accessors
	require.Equal(suite.T(), "GET", session.Method())
	require.Equal(suite.T(), "/chat", session.Path())
	require.Equal(suite.T(), "chat", session.Protocol())
	require.Equal(suite.T(), 13, session.Version())
	require.Equal(suite.T(), "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", session.AcceptKey())
	host, ok := session.Header("Host")
	require.True(suite.T(), ok)
	require.Equal(suite.T(), "localhost", host)
	require.Contains(suite.T(), session.Headers(), "upgrade")
	require.Nil(suite.T(), session.handshakeBuf)
	session.SetURI("ws://localhost/chat")
	require.Equal(suite.T(), "ws://localhost/chat", session.URI())
}

// # Description
//
// Test a malformed request is answered with a 400 response and the session is closed through its
// owner: the application is notified once and the transport released once.
func (suite *SessionUnitTestSuite) TestHandshakeMalformed() {
	owner := NewOwnerMock()
	session, transport, handler := suite.newSession(owner, nil)
	owner.On("OnHandshakeFailure", mock.Anything, session, mock.Anything).Return()
	owner.On("ReleaseSession", session.ID()).Return()
	owner.On("CloseSession", mock.Anything, session.ID()).Run(func(args mock.Arguments) {
		session.Close(args.Get(0).(context.Context))
	}).Return(true)
	session.Start()
	session.OnRead(nil, []byte("GET / HTTP/1.1\r\nUpgrade: websocket\r\n\r\n"))
	require.Equal(suite.T(), Closed, session.State())
	require.True(suite.T(), session.IsClosed())
	require.Equal(suite.T(), [][]byte{wshandshake.BadRequestResponse()}, writes(transport))
	handler.AssertNumberOfCalls(suite.T(), "OnClose", 1)
	transport.AssertNumberOfCalls(suite.T(), "Close", 1)
	owner.AssertNumberOfCalls(suite.T(), "ReleaseSession", 1)
	owner.AssertNumberOfCalls(suite.T(), "OnHandshakeFailure", 1)
	err := owner.Calls[0].Arguments.Error(2)
	require.ErrorIs(suite.T(), err, wshandshake.ErrMissingConnection)
	require.Error(suite.T(), session.Context().Err())
	// Late read completion is ignored
	session.OnRead(nil, []byte("garbage"))
	handler.AssertNumberOfCalls(suite.T(), "OnClose", 1)
}

// Test the session closes itself when the owner does not know it.
func (suite *SessionUnitTestSuite) TestHandshakeMalformedUnknownToOwner() {
	owner := NewOwnerMock()
	session, transport, handler := suite.newSession(owner, nil)
	owner.On("OnHandshakeFailure", mock.Anything, session, mock.Anything).Return()
	owner.On("ReleaseSession", session.ID()).Return()
	owner.On("CloseSession", mock.Anything, session.ID()).Return(false)
	session.OnRead(nil, []byte("GET /\r\n\r\n"))
	require.Equal(suite.T(), Closed, session.State())
	handler.AssertNumberOfCalls(suite.T(), "OnClose", 1)
	transport.AssertNumberOfCalls(suite.T(), "Close", 1)
}

// Test a request which grows beyond the maximum handshake size is rejected.
func (suite *SessionUnitTestSuite) TestHandshakeTooLarge() {
	session, transport, handler := suite.newSession(nil, nil)
	chunk := []byte("X-Padding: " + strings.Repeat("a", 1000) + "\r\n")
	for i := 0; i < 9 && !session.IsClosed(); i++ {
		session.OnRead(nil, chunk)
	}
	require.True(suite.T(), session.IsClosed())
	require.Equal(suite.T(), [][]byte{wshandshake.BadRequestResponse()}, writes(transport))
	handler.AssertNumberOfCalls(suite.T(), "OnClose", 1)
}

// Test frames received along with the upgrade request are processed.
func (suite *SessionUnitTestSuite) TestFramesAfterHandshakeInSameRead() {
	session, _, handler := suite.newSession(nil, nil)
	data := append([]byte(upgradeRequest), clientFrame(true, wsframe.OpText, []byte("hello"))...)
	session.OnRead(nil, data)
	require.Equal(suite.T(), Open, session.State())
	require.Equal(suite.T(), [][]byte{[]byte("hello")}, reads(handler))
}

// # Description
//
// Test the session is published as open only once the 101 response is enqueued: a sender which
// observes the open state writes its frame after the response.
func (suite *SessionUnitTestSuite) TestHandshakeResponsePrecedesConcurrentSend() {
	session, transport, _ := suite.newSession(nil, nil)
	session.Start()
	// Hold the write lock: the handshake cannot complete
	session.writeMu.Lock()
	handshakeDone := make(chan struct{})
	go func() {
		defer close(handshakeDone)
		session.OnRead(nil, []byte(upgradeRequest))
	}()
	sendDone := make(chan error, 1)
	go func() {
		for session.State() != Open {
			time.Sleep(time.Millisecond)
		}
		sendDone <- session.SendText(context.Background(), "early")
	}()
	require.Never(suite.T(), func() bool { return session.State() == Open }, 50*time.Millisecond, 5*time.Millisecond)
	session.writeMu.Unlock()
	<-handshakeDone
	require.NoError(suite.T(), <-sendDone)
	written := writes(transport)
	require.True(suite.T(), strings.HasPrefix(string(written[0]), "HTTP/1.1 101"), string(written[0]))
	frames := serverFrames(suite.T(), transport)
	require.Len(suite.T(), frames, 1)
	require.Equal(suite.T(), []byte("early"), frames[0].Payload)
}

/*************************************************************************************************/
/* UNIT TESTS - FRAMES                                                                           */
/*************************************************************************************************/

// Test a ping with payload "abc" produces exactly one pong with payload "abc".
func (suite *SessionUnitTestSuite) TestPingPong() {
	session, transport, handler := suite.openSession()
	session.OnRead(nil, clientFrame(true, wsframe.OpPing, []byte("abc")))
	frames := serverFrames(suite.T(), transport)
	require.Len(suite.T(), frames, 1)
	require.Equal(suite.T(), wsframe.OpPong, frames[0].Header.Opcode)
	require.Equal(suite.T(), []byte("abc"), frames[0].Payload)
	// Pong is only logged
	session.OnRead(nil, clientFrame(true, wsframe.OpPong, []byte("xyz")))
	require.Len(suite.T(), serverFrames(suite.T(), transport), 1)
	require.Empty(suite.T(), reads(handler))
	require.Equal(suite.T(), Open, session.State())
}

// Test each frame arriving byte by byte is dispatched once complete.
func (suite *SessionUnitTestSuite) TestFrameByteByByte() {
	session, _, handler := suite.openSession()
	payload := []byte(strings.Repeat("0123456789", 20))
	for _, b := range clientFrame(true, wsframe.OpBinary, payload) {
		require.Empty(suite.T(), reads(handler))
		session.OnRead(nil, []byte{b})
	}
	require.Equal(suite.T(), [][]byte{payload}, reads(handler))
	handler.AssertCalled(suite.T(), "OnRead", mock.Anything, session, wsframe.OpBinary, payload)
}

// # Description
//
// Test a fragmented message is delivered chunk by chunk with the message opcode once the final
// frame is received, and that control frames can be interleaved.
func (suite *SessionUnitTestSuite) TestFragmentedMessage() {
	session, transport, handler := suite.openSession()
	data := clientFrame(false, wsframe.OpText, []byte("Hel"))
	data = append(data, clientFrame(false, wsframe.OpContinuation, []byte("lo "))...)
	data = append(data, clientFrame(true, wsframe.OpPing, []byte("p"))...)
	session.OnRead(nil, data)
	require.Empty(suite.T(), reads(handler))
	require.Len(suite.T(), serverFrames(suite.T(), transport), 1)
	session.OnRead(nil, clientFrame(true, wsframe.OpContinuation, []byte("world")))
	require.Equal(suite.T(), [][]byte{[]byte("Hel"), []byte("lo "), []byte("world")}, reads(handler))
	for _, call := range handler.Calls {
		if call.Method == "OnRead" {
			require.Equal(suite.T(), wsframe.OpText, call.Arguments.Get(2))
		}
	}
	require.Zero(suite.T(), session.messages.buffered())
}

// Test framing violations drop the connection without close reply.
func (suite *SessionUnitTestSuite) TestFramingErrors() {
	reserved := clientFrame(true, wsframe.OpText, []byte("x"))
	reserved[0] |= 0x40
	unmasked := wsframe.EncodeFrame(wsframe.OpText, []byte("x"))
	testCases := []struct {
		name     string
		data     []byte
		expected error
	}{
		{name: "reserved bit", data: reserved, expected: wsframe.ErrReservedBits},
		{name: "reserved opcode", data: clientFrame(true, wsframe.Opcode(0x3), nil), expected: wsframe.ErrInvalidOpcode},
		{name: "unmasked", data: unmasked, expected: wsframe.ErrUnmaskedFrame},
		{name: "lone continuation", data: clientFrame(true, wsframe.OpContinuation, []byte("x")), expected: ErrUnexpectedContinuation},
		{name: "interrupted message", data: append(
			clientFrame(false, wsframe.OpText, []byte("a")),
			clientFrame(true, wsframe.OpBinary, []byte("b"))...), expected: ErrMessageInProgress},
		{name: "fragmented ping", data: clientFrame(false, wsframe.OpPing, nil), expected: wsframe.ErrInvalidControlFrame},
	}
	for _, tc := range testCases {
		owner := NewOwnerMock()
		session, transport, handler := suite.newSession(owner, nil)
		owner.On("OnProtocolError", mock.Anything, session, mock.Anything).Return()
		owner.On("ReleaseSession", session.ID()).Return()
		owner.On("CloseSession", mock.Anything, session.ID()).Return(false)
		session.OnRead(nil, []byte(upgradeRequest))
		session.OnRead(nil, tc.data)
		require.Equal(suite.T(), Closed, session.State(), tc.name)
		require.Empty(suite.T(), serverFrames(suite.T(), transport), tc.name)
		require.Empty(suite.T(), reads(handler), tc.name)
		handler.AssertNumberOfCalls(suite.T(), "OnClose", 1)
		owner.AssertNumberOfCalls(suite.T(), "OnProtocolError", 1)
		var err error
		for _, call := range owner.Calls {
			if call.Method == "OnProtocolError" {
				err = call.Arguments.Error(2)
			}
		}
		require.ErrorIs(suite.T(), err, tc.expected, tc.name)
		framingErr := new(wsframe.FramingError)
		require.True(suite.T(), errors.As(err, framingErr), tc.name)
	}
}

// # Description
//
// Test a fragmented message is delivered while it fits in the maximum message size and that a
// message growing beyond it drops the connection, even if every frame is below the payload limit.
func (suite *SessionUnitTestSuite) TestFragmentedMessageTooLarge() {
	opts := NewSessionOptions().WithMaxPayloadSize(100).WithMaxMessageSize(150)
	owner := NewOwnerMock()
	transport := newTransport()
	handler := newHandler()
	session, err := NewSession(transport, handler, owner, opts, zap.NewNop(), nil)
	require.NoError(suite.T(), err)
	owner.On("OnProtocolError", mock.Anything, session, mock.Anything).Return()
	owner.On("ReleaseSession", session.ID()).Return()
	owner.On("CloseSession", mock.Anything, session.ID()).Return(false)
	session.OnRead(nil, []byte(upgradeRequest))
	chunk := []byte(strings.Repeat("a", 75))
	// Exactly at the limit
	data := clientFrame(false, wsframe.OpBinary, chunk)
	data = append(data, clientFrame(true, wsframe.OpContinuation, chunk)...)
	session.OnRead(nil, data)
	require.Len(suite.T(), reads(handler), 2)
	require.Zero(suite.T(), session.messages.buffered())
	// Keep sending fragments
	session.OnRead(nil, clientFrame(false, wsframe.OpBinary, chunk))
	require.Equal(suite.T(), int64(75), session.messages.buffered())
	for i := 0; i < 10 && !session.IsClosed(); i++ {
		session.OnRead(nil, clientFrame(false, wsframe.OpContinuation, chunk))
	}
	require.Equal(suite.T(), Closed, session.State())
	require.Zero(suite.T(), session.messages.buffered())
	require.Len(suite.T(), reads(handler), 2)
	require.Empty(suite.T(), serverFrames(suite.T(), transport))
	handler.AssertNumberOfCalls(suite.T(), "OnClose", 1)
	owner.AssertNumberOfCalls(suite.T(), "OnProtocolError", 1)
	for _, call := range owner.Calls {
		if call.Method == "OnProtocolError" {
			require.ErrorIs(suite.T(), call.Arguments.Error(2), ErrMessageTooLarge)
		}
	}
}

/*************************************************************************************************/
/* UNIT TESTS - CLOSE                                                                            */
/*************************************************************************************************/

// # Description
//
// Test valid close codes are echoed verbatim and invalid ones answered with 1002. In both cases,
// the application is notified once and the transport released once.
func (suite *SessionUnitTestSuite) TestCloseCodes() {
	for _, code := range []wsframe.StatusCode{999, 1004, 1005, 1006, 1015, 5000} {
		session, transport, handler := suite.openSession()
		session.OnRead(nil, clientClose(wsframe.NewClosePayload(code, "bye")))
		frames := serverFrames(suite.T(), transport)
		require.Len(suite.T(), frames, 1, "code %d", code)
		require.Equal(suite.T(), wsframe.OpClose, frames[0].Header.Opcode)
		replyCode, reason, err := wsframe.ParseClosePayload(frames[0].Payload)
		require.NoError(suite.T(), err)
		require.Equal(suite.T(), wsframe.ProtocolError, replyCode, "code %d", code)
		require.Equal(suite.T(), reasonInvalidCloseCode, reason)
		require.Equal(suite.T(), Closed, session.State())
		handler.AssertNumberOfCalls(suite.T(), "OnClose", 1)
		transport.AssertNumberOfCalls(suite.T(), "Close", 1)
	}
	for _, code := range []wsframe.StatusCode{1000, 1001, 1002, 1003, 3000, 4999} {
		session, transport, handler := suite.openSession()
		payload := wsframe.NewClosePayload(code, "bye")
		session.OnRead(nil, clientClose(payload))
		frames := serverFrames(suite.T(), transport)
		require.Len(suite.T(), frames, 1, "code %d", code)
		require.Equal(suite.T(), payload, frames[0].Payload, "code %d", code)
		require.Equal(suite.T(), Closed, session.State())
		handler.AssertNumberOfCalls(suite.T(), "OnClose", 1)
		transport.AssertNumberOfCalls(suite.T(), "Close", 1)
	}
}

// Test a close payload of length 1 is answered with 1002.
func (suite *SessionUnitTestSuite) TestCloseIncompleteCode() {
	session, transport, _ := suite.openSession()
	session.OnRead(nil, clientClose([]byte{0x03}))
	frames := serverFrames(suite.T(), transport)
	require.Len(suite.T(), frames, 1)
	code, reason, err := wsframe.ParseClosePayload(frames[0].Payload)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), wsframe.ProtocolError, code)
	require.Equal(suite.T(), reasonIncompleteCloseCode, reason)
	require.True(suite.T(), session.IsClosed())
}

// Test an empty close frame is echoed.
func (suite *SessionUnitTestSuite) TestCloseEmpty() {
	session, transport, _ := suite.openSession()
	session.OnRead(nil, clientClose(nil))
	frames := serverFrames(suite.T(), transport)
	require.Len(suite.T(), frames, 1)
	require.Empty(suite.T(), frames[0].Payload)
	require.True(suite.T(), session.IsClosed())
}

// # Description
//
// Test only the first close frame is answered: a second close frame in the same read, a read
// error and explicit close calls have no effect.
func (suite *SessionUnitTestSuite) TestCloseIsIdempotent() {
	session, transport, handler := suite.openSession()
	payload := wsframe.NewClosePayload(wsframe.NormalClosure, "")
	session.OnRead(nil, append(clientClose(payload), clientClose(payload)...))
	session.OnRead(io.EOF, nil)
	session.Close(context.Background())
	session.CloseWithStatus(context.Background(), wsframe.GoingAway, "again")
	require.Len(suite.T(), serverFrames(suite.T(), transport), 1)
	handler.AssertNumberOfCalls(suite.T(), "OnClose", 1)
	transport.AssertNumberOfCalls(suite.T(), "Close", 1)
}

// Test a read error closes the session.
func (suite *SessionUnitTestSuite) TestReadError() {
	session, transport, handler := suite.openSession()
	session.OnRead(io.EOF, []byte("ignored"))
	require.True(suite.T(), session.IsClosed())
	require.Empty(suite.T(), serverFrames(suite.T(), transport))
	handler.AssertNumberOfCalls(suite.T(), "OnClose", 1)
	transport.AssertNumberOfCalls(suite.T(), "Close", 1)
}

// Test a session closed before the handshake completes still notifies the application once.
func (suite *SessionUnitTestSuite) TestCloseBeforeHandshake() {
	session, transport, handler := suite.newSession(nil, nil)
	session.Close(context.Background())
	session.Close(context.Background())
	require.True(suite.T(), session.IsClosed())
	require.Empty(suite.T(), writes(transport))
	handler.AssertNumberOfCalls(suite.T(), "OnClose", 1)
	transport.AssertNumberOfCalls(suite.T(), "Close", 1)
}

// Test CloseWithStatus sends a close frame carrying the code before closing the session.
func (suite *SessionUnitTestSuite) TestCloseWithStatus() {
	session, transport, handler := suite.openSession()
	session.CloseWithStatus(context.Background(), wsframe.GoingAway, "server shutdown")
	frames := serverFrames(suite.T(), transport)
	require.Len(suite.T(), frames, 1)
	code, reason, err := wsframe.ParseClosePayload(frames[0].Payload)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), wsframe.GoingAway, code)
	require.Equal(suite.T(), "server shutdown", reason)
	require.True(suite.T(), session.IsClosed())
	handler.AssertNumberOfCalls(suite.T(), "OnClose", 1)
	require.ErrorIs(suite.T(), session.SendText(context.Background(), "late"), ErrSessionNotOpen)
}

// Test a close frame sent by the application is completed by the peer answer without reply.
func (suite *SessionUnitTestSuite) TestSendCloseThenPeerAnswers() {
	session, transport, handler := suite.openSession()
	payload := wsframe.NewClosePayload(wsframe.NormalClosure, "done")
	require.NoError(suite.T(), session.Send(context.Background(), wsframe.OpClose, payload))
	require.Equal(suite.T(), Closing, session.State())
	// Data received while closing is still delivered
	session.OnRead(nil, clientFrame(true, wsframe.OpText, []byte("last")))
	require.Equal(suite.T(), [][]byte{[]byte("last")}, reads(handler))
	session.OnRead(nil, clientClose(payload))
	require.True(suite.T(), session.IsClosed())
	require.Len(suite.T(), serverFrames(suite.T(), transport), 1)
	handler.AssertNumberOfCalls(suite.T(), "OnClose", 1)
}

/*************************************************************************************************/
/* UNIT TESTS - SEND                                                                             */
/*************************************************************************************************/

// Test Send writes header then payload and validates its inputs.
func (suite *SessionUnitTestSuite) TestSend() {
	session, transport, _ := suite.newSession(nil, nil)
	require.ErrorIs(suite.T(), session.SendText(context.Background(), "early"), ErrSessionNotOpen)
	session.OnRead(nil, []byte(upgradeRequest))
	require.NoError(suite.T(), session.SendText(context.Background(), "hello"))
	w := writes(transport)
	require.Len(suite.T(), w, 3)
	require.Equal(suite.T(), []byte{0x81, 5}, w[1])
	require.Equal(suite.T(), []byte("hello"), w[2])
	// Empty payload: header only
	require.NoError(suite.T(), session.SendBinary(context.Background(), nil))
	w = writes(transport)
	require.Len(suite.T(), w, 4)
	require.Equal(suite.T(), []byte{0x82, 0}, w[3])
	// Large payload uses the extended length
	large := make([]byte, 70000)
	require.NoError(suite.T(), session.SendBinary(context.Background(), large))
	frames := serverFrames(suite.T(), transport)
	require.Len(suite.T(), frames, 3)
	require.Len(suite.T(), frames[2].Payload, 70000)
	// Invalid inputs
	err := session.Send(context.Background(), wsframe.OpPing, make([]byte, 126))
	require.ErrorIs(suite.T(), err, wsframe.ErrInvalidControlFrame)
	err = session.Send(context.Background(), wsframe.Opcode(0xB), nil)
	require.ErrorIs(suite.T(), err, wsframe.ErrInvalidOpcode)
	err = session.Send(context.Background(), wsframe.OpContinuation, nil)
	require.ErrorIs(suite.T(), err, wsframe.ErrInvalidOpcode)
	require.Len(suite.T(), serverFrames(suite.T(), transport), 3)
}

// Test the idle counter is reset by received and sent frames.
func (suite *SessionUnitTestSuite) TestIdleTicks() {
	session, _, _ := suite.openSession()
	require.Equal(suite.T(), int64(1), session.Tick())
	require.Equal(suite.T(), int64(2), session.Tick())
	session.OnRead(nil, clientFrame(true, wsframe.OpPong, nil))
	require.Zero(suite.T(), session.IdleTicks())
	session.Tick()
	require.NoError(suite.T(), session.SendText(context.Background(), "x"))
	require.Zero(suite.T(), session.IdleTicks())
}

/*************************************************************************************************/
/* UNIT TESTS - TRACING                                                                          */
/*************************************************************************************************/

// Test spans are recorded for reads, handshake, frames and callbacks.
func (suite *SessionUnitTestSuite) TestTracing() {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	session, _, _ := suite.newSession(nil, tp)
	session.OnRead(nil, []byte(upgradeRequest))
	session.OnRead(nil, clientFrame(true, wsframe.OpText, []byte("hi")))
	session.Close(context.Background())
	names := map[string]int{}
	for _, span := range recorder.Ended() {
		names[span.Name()]++
	}
	require.Equal(suite.T(), 2, names[spanRead])
	require.Equal(suite.T(), 1, names[spanHandshake])
	require.Equal(suite.T(), 1, names[spanFrame])
	require.Equal(suite.T(), 1, names[spanOnRead])
	require.Equal(suite.T(), 1, names[spanOnClose])
	require.Equal(suite.T(), 1, names[spanClose])
}
