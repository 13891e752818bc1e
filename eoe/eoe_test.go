package eoe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openecat/go-ecat/ecat"
)

// captureMailbox records sent frames and has a configurable capacity.
type captureMailbox struct {
	capacity int
	sent     []*ecat.MailboxFrame
}

func (m *captureMailbox) Send(req *ecat.MailboxFrame) error {
	m.sent = append(m.sent, req)
	return nil
}

func (m *captureMailbox) Exchange(req *ecat.MailboxFrame, timeout time.Duration) (*ecat.MailboxFrame, error) {
	return nil, ecat.ErrMailboxTimeout
}

func (m *captureMailbox) Poll(timeout time.Duration) (*ecat.MailboxFrame, error) {
	return nil, ecat.ErrMailboxTimeout
}

func (m *captureMailbox) Capacity() int { return m.capacity }
func (m *captureMailbox) Pos() int      { return 0 }

func ethFrame(dst, src byte, size int) []byte {
	frame := make([]byte, size)
	for i := 0; i < 6; i++ {
		frame[i] = dst
		frame[6+i] = src
	}
	frame[12] = 0x08
	for i := 14; i < size; i++ {
		frame[i] = byte(i)
	}
	return frame
}

func TestSendFrameSingleFragment(t *testing.T) {
	require := require.New(t)

	mbx := &captureMailbox{capacity: 122}
	frame := ethFrame(0xAA, 0xBB, 60)

	require.NoError(SendFrame(mbx, frame, 5))
	require.Len(mbx.sent, 1)
	require.Equal(ecat.MailboxTypeEoE, mbx.sent[0].Type)

	var asm Assembler
	out, err := asm.Add(mbx.sent[0].Data)
	require.NoError(err)
	require.Equal(frame, out)
}

func TestSendFrameFragmented(t *testing.T) {
	require := require.New(t)

	// Capacity 122 leaves 118 bytes after the header; the 32-byte
	// granularity rounds that down to 96 per fragment.
	mbx := &captureMailbox{capacity: 122}
	frame := ethFrame(0x01, 0x02, 300)

	require.NoError(SendFrame(mbx, frame, 3))
	require.Len(mbx.sent, 4) // 96+96+96+12

	var asm Assembler
	var out []byte
	for _, sent := range mbx.sent {
		got, err := asm.Add(sent.Data)
		require.NoError(err)
		out = got
	}
	require.Equal(frame, out)
}

func TestSendFrameMailboxTooSmall(t *testing.T) {
	require := require.New(t)

	mbx := &captureMailbox{capacity: 20}
	err := SendFrame(mbx, ethFrame(1, 2, 60), 0)
	require.ErrorIs(err, ecat.ErrMailboxUnsupported)
}

func TestAssemblerStrayContinuation(t *testing.T) {
	require := require.New(t)

	mbx := &captureMailbox{capacity: 122}
	require.NoError(SendFrame(mbx, ethFrame(1, 2, 300), 7))
	require.Greater(len(mbx.sent), 1)

	// Feeding only a continuation fragment must not produce a frame.
	var asm Assembler
	out, err := asm.Add(mbx.sent[1].Data)
	require.NoError(err)
	require.Nil(out)
}

func TestAssemblerRestartDiscardsPartial(t *testing.T) {
	require := require.New(t)

	mbx := &captureMailbox{capacity: 122}
	require.NoError(SendFrame(mbx, ethFrame(1, 2, 300), 1))
	partial := mbx.sent

	mbx2 := &captureMailbox{capacity: 122}
	whole := ethFrame(3, 4, 60)
	require.NoError(SendFrame(mbx2, whole, 2))

	var asm Assembler
	out, err := asm.Add(partial[0].Data)
	require.NoError(err)
	require.Nil(out)

	// A new fragment 0 replaces the incomplete frame entirely.
	out, err = asm.Add(mbx2.sent[0].Data)
	require.NoError(err)
	require.Equal(whole, out)
}

func TestFrameFromMailboxIgnoresOtherProtocols(t *testing.T) {
	require := require.New(t)

	var asm Assembler
	out, err := FrameFromMailbox(&asm, &ecat.MailboxFrame{Type: ecat.MailboxTypeCoE, Data: []byte{1, 2, 3, 4}})
	require.NoError(err)
	require.Nil(out)
}

func TestFrameCounterWraps(t *testing.T) {
	require := require.New(t)

	var c FrameCounter
	for want := uint8(1); want <= 15; want++ {
		require.Equal(want, c.Next())
	}
	require.Equal(uint8(0), c.Next())
	require.Equal(uint8(1), c.Next())
}
