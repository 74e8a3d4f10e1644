package ipc

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kassenov/sumo/internal/simtime"
	"github.com/kassenov/sumo/meso"
)

func TestClientVaporizeRoundTrip(t *testing.T) {
	t.Parallel()
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	dispatcher := NewDispatcher(meso.NewNetwork(), func() simtime.Tick { return 0 }, nil)
	listener := NewListener(dispatcher, nil)
	go listener.handleConn(serverConn)

	client := &Client{conn: clientConn}
	result, err := client.Vaporize("missing-segment")
	require.NoError(t, err)
	assert.False(t, result.OK)
}
