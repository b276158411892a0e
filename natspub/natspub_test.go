package natspub_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalpath/signalpath"
	"github.com/signalpath/signalpath/natspub"
	"github.com/signalpath/signalpath/pipeline"
)

// fakeConn records published messages in place of a live NATS server.
type fakeConn struct {
	mu       sync.Mutex
	messages map[string][][]byte
	flushed  int
}

func newFakeConn() *fakeConn {
	return &fakeConn{messages: make(map[string][][]byte)}
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.messages[subject] = append(c.messages[subject], cp)
	return nil
}

func (c *fakeConn) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushed++
	return nil
}

func (c *fakeConn) count(subject string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages[subject])
}

func TestMarshalRoundtrip(t *testing.T) {
	f := signalpath.Format{NumChannels: 2, SampleRate: 48000, FrameLen: 3}
	block := []float32{0.1, -0.2, 0.3, -0.4, 0.5, -0.6}

	got, gf, ok := natspub.Unmarshal(natspub.Marshal(block, f))
	require.True(t, ok)
	assert.Equal(t, f, gf)
	assert.Equal(t, block, got)
}

func TestUnmarshalRejectsTruncated(t *testing.T) {
	_, _, ok := natspub.Unmarshal([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestStagePublishesThroughPipeline(t *testing.T) {
	conn := newFakeConn()

	p := pipeline.New()
	f := signalpath.Format{NumChannels: 1, SampleRate: 48000, FrameLen: 4}
	require.NoError(t, p.Init(f))
	require.NoError(t, p.Add("tap", natspub.New(conn, "audio.blocks")))

	buf := []float32{0.1, 0.2, 0.3, 0.4}
	p.Process(buf, &f)

	require.Eventually(t, func() bool {
		return conn.count("audio.blocks") == 1
	}, time.Second, time.Millisecond)

	conn.mu.Lock()
	msg := conn.messages["audio.blocks"][0]
	conn.mu.Unlock()
	block, gf, ok := natspub.Unmarshal(msg)
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, block)
	assert.Equal(t, f, gf)

	p.Dispose()
	assert.Equal(t, 1, conn.flushed)
}
