package wssession

import (
	"context"

	"github.com/gbdevw/gowsserver/wsframe"
	"github.com/stretchr/testify/mock"
)

// Mock for Handler
type HandlerMock struct {
	mock.Mock
}

// Factory
func NewHandlerMock() *HandlerMock {
	return &HandlerMock{
		Mock: mock.Mock{},
	}
}

// Mock OnRead
func (mock *HandlerMock) OnRead(ctx context.Context, session *Session, opcode wsframe.Opcode, data []byte) {
	mock.Called(ctx, session, opcode, data)
}

// Mock OnClose
func (mock *HandlerMock) OnClose(ctx context.Context, session *Session) {
	mock.Called(ctx, session)
}

// Mock for Owner. The mock also implements Observer.
type OwnerMock struct {
	mock.Mock
}

// Factory
func NewOwnerMock() *OwnerMock {
	return &OwnerMock{
		Mock: mock.Mock{},
	}
}

// Mock CloseSession
func (mock *OwnerMock) CloseSession(ctx context.Context, id string) bool {
	args := mock.Called(ctx, id)
	return args.Bool(0)
}

// Mock ReleaseSession
func (mock *OwnerMock) ReleaseSession(id string) {
	mock.Called(id)
}

// Mock OnHandshakeFailure
func (mock *OwnerMock) OnHandshakeFailure(ctx context.Context, session *Session, err error) {
	mock.Called(ctx, session, err)
}

// Mock OnProtocolError
func (mock *OwnerMock) OnProtocolError(ctx context.Context, session *Session, err error) {
	mock.Called(ctx, session, err)
}
