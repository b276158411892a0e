// Package natspub provides an observing stage that publishes captured
// blocks to a NATS subject, so audio taps can feed remote analysis
// without touching the audio thread: publishing happens entirely on the
// stage's observer worker.
package natspub

import (
	"encoding/binary"
	"math"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/signalpath/signalpath"
	"github.com/signalpath/signalpath/log"
)

// headerSize is the fixed frame header: channel count, sample rate and
// frame count, little-endian uint32 each.
const headerSize = 12

// Connection is the part of *nats.Conn the stage needs, kept as an
// interface for dependency injection in tests.
type Connection interface {
	Publish(subject string, data []byte) error
	Flush() error
}

// Stage publishes each observed block as one binary message.
type Stage struct {
	conn    Connection
	subject string
	logger  *logrus.Logger
}

// New returns a publishing stage. The caller owns the connection.
func New(conn Connection, subject string) *Stage {
	return &Stage{
		conn:    conn,
		subject: subject,
		logger:  log.GetLogger(),
	}
}

// Connect dials the NATS server and returns a stage publishing on it.
func Connect(url, subject string) (*Stage, *nats.Conn, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, nil, err
	}
	return New(conn, subject), conn, nil
}

// Init implements signalpath.Stage.
func (s *Stage) Init(signalpath.Format) error { return nil }

// Dispose flushes pending publishes. The connection stays open for its
// owner.
func (s *Stage) Dispose() {
	if err := s.conn.Flush(); err != nil {
		s.logger.Warn("flush: ", err)
	}
}

// Observe publishes the block. Runs on the observer worker, so blocking
// on the wire is fine.
func (s *Stage) Observe(block []float32, f signalpath.Format) {
	if err := s.conn.Publish(s.subject, Marshal(block, f)); err != nil {
		s.logger.Warnf("publish %v: %v", s.subject, err)
	}
}

// Marshal encodes a block as a 12-byte header followed by little-endian
// float32 samples.
func Marshal(block []float32, f signalpath.Format) []byte {
	data := make([]byte, headerSize+len(block)*4)
	binary.LittleEndian.PutUint32(data[0:], uint32(f.NumChannels))
	binary.LittleEndian.PutUint32(data[4:], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(data[8:], uint32(f.FrameLen))
	for i, v := range block {
		binary.LittleEndian.PutUint32(data[headerSize+i*4:], math.Float32bits(v))
	}
	return data
}

// Unmarshal decodes a published message back into samples and format.
func Unmarshal(data []byte) ([]float32, signalpath.Format, bool) {
	var f signalpath.Format
	if len(data) < headerSize || (len(data)-headerSize)%4 != 0 {
		return nil, f, false
	}
	f.NumChannels = int(binary.LittleEndian.Uint32(data[0:]))
	f.SampleRate = int(binary.LittleEndian.Uint32(data[4:]))
	f.FrameLen = int(binary.LittleEndian.Uint32(data[8:]))
	block := make([]float32, (len(data)-headerSize)/4)
	for i := range block {
		block[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[headerSize+i*4:]))
	}
	if len(block) != f.Samples() {
		return nil, f, false
	}
	return block, f, true
}
