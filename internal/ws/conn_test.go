package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smancode/sman-sub006/pkg/types"
)

func TestConnSendAfterClose(t *testing.T) {
	pair := newConnPair(t)
	defer pair.teardown()

	pair.server.Close()
	err := pair.server.Send(types.PongFrame())
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestConnFlushesQueuedFramesOnClose(t *testing.T) {
	pair := newConnPair(t)
	defer pair.teardown()

	for i := 0; i < 5; i++ {
		require.NoError(t, pair.server.Send(types.CompleteFrame("sess1")))
	}
	pair.server.Close()

	// Everything queued before Close still reaches the client.
	received := 0
	for {
		pair.client.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame types.Frame
		if err := pair.client.ReadJSON(&frame); err != nil {
			break
		}
		received++
	}
	assert.Equal(t, 5, received)
}

func TestConnBindSessionID(t *testing.T) {
	pair := newConnPair(t)
	defer pair.teardown()

	assert.Empty(t, pair.server.SessionID())
	pair.server.bind("sess1")
	assert.Equal(t, "sess1", pair.server.SessionID())
}
