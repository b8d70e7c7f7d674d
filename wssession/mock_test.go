package wssession

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Test mocks fully implement interfaces they mock
func TestMockInterfaceCompliance(t *testing.T) {
	var transport any = new(TransportMock)
	_, ok := transport.(Transport)
	require.True(t, ok)
	var handler any = new(HandlerMock)
	_, ok = handler.(Handler)
	require.True(t, ok)
	var owner any = new(OwnerMock)
	_, ok = owner.(Owner)
	require.True(t, ok)
	_, ok = owner.(Observer)
	require.True(t, ok)
}
