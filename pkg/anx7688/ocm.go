package anx7688

import (
	"errors"
	"fmt"
	"time"

	"anxd/pkg/regio"

	"github.com/womat/debug"
)

// The OCM message interface is a pair of mailbox registers in the TCPC
// space. A frame is [len][cmd][payload(len-1)][checksum] with at most 32
// bytes total; the checksum byte makes the sum of all frame bytes zero
// mod 256.

const (
	// maxPayload is the maximum OCM message payload size.
	maxPayload = 29

	// sendQueuePollInterval and sendQueuePollAttempts bound the wait
	// for the hardware send queue to drain (30 ms total).
	sendQueuePollInterval = 100 * time.Microsecond
	sendQueuePollAttempts = 300
)

var (
	// ErrBusy is returned by Send when the hardware send queue is
	// occupied. There is no internal queuing or retry.
	ErrBusy = errors.New("ocm send queue busy")

	// ErrBadFrame is returned by Receive for malformed inbound frames.
	ErrBadFrame = errors.New("malformed ocm frame")

	// ErrPayloadTooLarge is returned by Send for oversized payloads.
	ErrPayloadTooLarge = errors.New("ocm payload too large")
)

// ocmTransport frames and checksums messages exchanged with the on-chip
// microcontroller over the TCPC register space.
type ocmTransport struct {
	tcpc  *regio.Regs
	sleep func(time.Duration)
}

func newOCMTransport(tcpc *regio.Regs, sleep func(time.Duration)) *ocmTransport {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &ocmTransport{tcpc: tcpc, sleep: sleep}
}

// buildFrame assembles a wire frame for cmd and payload, including the
// checksum byte.
func buildFrame(cmd uint8, payload []byte) []byte {
	pkt := make([]byte, len(payload)+3)
	pkt[0] = uint8(len(payload) + 1)
	pkt[1] = cmd
	copy(pkt[2:], payload)
	var sum uint8
	for _, b := range pkt[:len(pkt)-1] {
		sum += b
	}
	pkt[len(pkt)-1] = -sum
	return pkt
}

// Send transmits one message. Delivery is at most once: a full send
// queue fails immediately with ErrBusy and a queue that does not drain
// within 30 ms fails with regio.ErrTimeout. The caller decides whether
// to retry.
func (t *ocmTransport) Send(cmd uint8, payload []byte) error {
	if len(payload) > maxPayload {
		debug.DebugLog.Printf("invalid ocm message length cmd=0x%02x len=%d", cmd, len(payload))
		return ErrPayloadTooLarge
	}

	pkt := buildFrame(cmd, payload)
	debug.DebugLog.Printf("send ocm message cmd=0x%02x % x", cmd, pkt)

	v, err := t.tcpc.Read(tcpcRegInterfaceSend)
	if err != nil {
		return err
	}
	if v != 0 {
		debug.ErrorLog.Print("failed to send ocm message (tx buffer full)")
		return ErrBusy
	}

	if err := t.tcpc.WriteBlock(tcpcRegInterfaceSend, pkt); err != nil {
		return err
	}

	// wait until the OCM has consumed the message
	err = regio.Poll(sendQueuePollAttempts, sendQueuePollInterval, t.sleep, func() (bool, error) {
		v, err := t.tcpc.Read(tcpcRegInterfaceSend)
		if err != nil {
			return false, err
		}
		return v == 0, nil
	})
	if errors.Is(err, regio.ErrTimeout) {
		debug.ErrorLog.Print("timeout waiting for the ocm message queue flush")
		return fmt.Errorf("ocm send cmd=0x%02x: %w", cmd, err)
	}
	return err
}

// Receive reads one inbound frame from the receive mailbox and clears
// it. Malformed frames are logged and dropped; the frame is never
// retried and the session state is left untouched.
func (t *ocmTransport) Receive() (cmd uint8, payload []byte, err error) {
	var pkt [32]byte
	if err := t.tcpc.ReadBlock(tcpcRegInterfaceRecv, pkt[:]); err != nil {
		debug.ErrorLog.Printf("failed to read ocm message: %v", err)
		return 0, nil, err
	}

	if err := t.tcpc.Write(tcpcRegInterfaceRecv, 0); err != nil {
		debug.WarningLog.Printf("failed to clear ocm recv fifo: %v", err)
	}

	n := int(pkt[0])
	if n == 0 || n > len(pkt)-2 {
		debug.ErrorLog.Printf("received invalid ocm message: % x", pkt)
		return 0, nil, ErrBadFrame
	}

	var sum uint8
	for _, b := range pkt[:n+2] {
		sum += b
	}
	if sum != 0 {
		debug.ErrorLog.Printf("bad checksum on received ocm message: % x", pkt[:n+2])
		return 0, nil, ErrBadFrame
	}

	debug.DebugLog.Printf("recv ocm message cmd=0x%02x % x", pkt[1], pkt[:n+2])
	return pkt[1], pkt[2 : n+1], nil
}
