package wssession

import (
	"github.com/stretchr/testify/mock"
)

// Mock for Transport
type TransportMock struct {
	mock.Mock
}

// Factory
func NewTransportMock() *TransportMock {
	return &TransportMock{
		Mock: mock.Mock{},
	}
}

// Mock AsyncRead
func (mock *TransportMock) AsyncRead() {
	mock.Called()
}

// Mock AsyncWrite. data is copied before it is recorded.
func (mock *TransportMock) AsyncWrite(data []byte) {
	mock.Called(append([]byte(nil), data...))
}

// Mock Close
func (mock *TransportMock) Close() error {
	args := mock.Called()
	return args.Error(0)
}

// Mock RemoteEndpoint
func (mock *TransportMock) RemoteEndpoint() string {
	args := mock.Called()
	return args.String(0)
}
