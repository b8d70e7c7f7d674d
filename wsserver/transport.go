package wsserver

import (
	"net"
	"sync"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/zap"
)

// wssession.Transport implementation on top of a net.Conn.
//
// A reader goroutine performs one Read each time a read is armed and delivers the completion to
// the read callback. A writer goroutine drains an ordered queue of pending writes. Close stops
// accepting writes, flushes the queue within the write timeout and closes the connection.
type tcpTransport struct {
	// Underlying connection
	conn net.Conn
	// Peer address
	remote string
	// Size of the read buffer
	readBufferSize int
	// Maximum time granted to flush pending writes on close
	writeTimeout time.Duration
	// Read completion callback. Must be set before the first read is armed.
	onRead func(err error, data []byte)
	// Optional accounting hook called with the number of bytes written by each write
	onWrite func(n int)
	// Logger
	logger *zap.Logger

	// Signals one armed read
	armed chan struct{}
	// Closed when Close is called
	closing chan struct{}
	// Wakes the writer up
	wake chan struct{}
	// Closed when the writer has exited and the connection is closed
	done chan struct{}

	// Mutex which protects pending and closed
	mu sync.Mutex
	// Pending writes ([]byte)
	pending *queue.Queue
	// Set once Close has been called
	closed bool
	// Error returned by conn.Close
	closeErr error
	// Ensure Close runs once
	closeOnce sync.Once
}

// # Description
//
// Factory - Build a transport for the provided connection and start its reader and writer
// goroutines. The read callback must be set before the first AsyncRead call.
func newTCPTransport(conn net.Conn, readBufferSize int, writeTimeout time.Duration, onWrite func(n int), logger *zap.Logger) *tcpTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &tcpTransport{
		conn:           conn,
		remote:         conn.RemoteAddr().String(),
		readBufferSize: readBufferSize,
		writeTimeout:   writeTimeout,
		onWrite:        onWrite,
		logger:         logger,
		armed:          make(chan struct{}, 1),
		closing:        make(chan struct{}),
		wake:           make(chan struct{}, 1),
		done:           make(chan struct{}),
		pending:        queue.New(),
	}
	go t.readLoop()
	go t.writeLoop()
	return t
}

// Arm one read. Non blocking.
func (t *tcpTransport) AsyncRead() {
	select {
	case t.armed <- struct{}{}:
	default:
		// Already armed
	}
}

// Enqueue a copy of data for output. Writes enqueued after Close are dropped.
func (t *tcpTransport) AsyncWrite(data []byte) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.pending.Add(append([]byte(nil), data...))
	t.mu.Unlock()
	t.signal()
}

// # Description
//
// Stop accepting writes, flush pending writes and close the connection. The method waits for the
// writer to exit: it is bounded by the write timeout and never waits for the reader, so it can be
// called from the read callback. Only the first call has an effect.
func (t *tcpTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		close(t.closing)
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
		t.signal()
	})
	<-t.done
	return t.closeErr
}

// Returns the peer address.
func (t *tcpTransport) RemoteEndpoint() string {
	return t.remote
}

// Wake the writer up.
func (t *tcpTransport) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Returns true once Close has been called.
func (t *tcpTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Perform one read each time a read is armed until the transport closes or a read fails.
func (t *tcpTransport) readLoop() {
	buf := make([]byte, t.readBufferSize)
	for {
		select {
		case <-t.armed:
		case <-t.closing:
			return
		}
		var n int
		var err error
		for n == 0 && err == nil {
			n, err = t.conn.Read(buf)
		}
		if t.isClosed() {
			return
		}
		if n > 0 {
			// A pending error is reported by the next read
			t.onRead(nil, append([]byte(nil), buf[:n]...))
			continue
		}
		t.onRead(err, nil)
		return
	}
}

// Write pending data in order until the transport is closed and the queue drained.
func (t *tcpTransport) writeLoop() {
	defer close(t.done)
	broken := false
	for {
		t.mu.Lock()
		for t.pending.Length() == 0 && !t.closed {
			t.mu.Unlock()
			<-t.wake
			t.mu.Lock()
		}
		if t.pending.Length() == 0 {
			t.mu.Unlock()
			if err := t.conn.Close(); err != nil && !broken {
				t.closeErr = err
			}
			return
		}
		data := t.pending.Remove().([]byte)
		t.mu.Unlock()
		if broken {
			continue
		}
		n, err := t.conn.Write(data)
		if t.onWrite != nil && n > 0 {
			t.onWrite(n)
		}
		if err != nil {
			// The reader gets an error and the session closes
			t.logger.Debug("transport write failed", zap.String("remote", t.remote), zap.Error(err))
			broken = true
			_ = t.conn.Close()
		}
	}
}
