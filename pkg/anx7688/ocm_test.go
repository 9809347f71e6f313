package anx7688

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"anxd/pkg/regio"
)

func TestBuildFrame(t *testing.T) {
	tests := []struct {
		name    string
		cmd     uint8
		payload []byte
	}{
		{"no payload", 0x10, nil},
		{"svid", 0x03, []byte{0x00, 0x00, 0x01, 0xff}},
		{"single pdo", 0x00, []byte{0x2c, 0x91, 0x01, 0x00}},
		{"max payload", 0x01, bytes.Repeat([]byte{0xa5}, maxPayload)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt := buildFrame(tt.cmd, tt.payload)

			if got, want := len(pkt), len(tt.payload)+3; got != want {
				t.Fatalf("frame length = %d, want %d", got, want)
			}
			if pkt[0] != uint8(len(tt.payload)+1) {
				t.Errorf("length byte = %d, want %d", pkt[0], len(tt.payload)+1)
			}
			if pkt[1] != tt.cmd {
				t.Errorf("cmd byte = 0x%02x, want 0x%02x", pkt[1], tt.cmd)
			}
			if !bytes.Equal(pkt[2:len(pkt)-1], tt.payload) {
				t.Errorf("payload = % x, want % x", pkt[2:len(pkt)-1], tt.payload)
			}

			var sum uint8
			for _, b := range pkt {
				sum += b
			}
			if sum != 0 {
				t.Errorf("frame bytes sum to %d, want 0", sum)
			}
		})
	}
}

func TestSendBusy(t *testing.T) {
	conn := &fakeConn{}
	conn.mem[tcpcRegInterfaceSend] = 1

	ocm := newOCMTransport(regio.New(conn, "test"), func(time.Duration) {})
	err := ocm.Send(uint8(KindSrcCap), nil)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("Send = %v, want ErrBusy", err)
	}
	if len(conn.frames) != 0 {
		t.Errorf("frame was written despite busy queue")
	}
}

func TestSendQueueTimeout(t *testing.T) {
	// no auto consume: the mailbox never drains after the write
	conn := &fakeConn{}

	ocm := newOCMTransport(regio.New(conn, "test"), func(time.Duration) {})
	err := ocm.Send(uint8(KindSrcCap), []byte{1, 2, 3, 4})
	if !errors.Is(err, regio.ErrTimeout) {
		t.Fatalf("Send = %v, want regio.ErrTimeout", err)
	}
}

func TestSendPayloadTooLarge(t *testing.T) {
	conn := &fakeConn{}

	ocm := newOCMTransport(regio.New(conn, "test"), func(time.Duration) {})
	err := ocm.Send(uint8(KindSrcCap), make([]byte, maxPayload+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("Send = %v, want ErrPayloadTooLarge", err)
	}
	if conn.writes != 0 {
		t.Errorf("register writes happened for an oversized payload")
	}
}

func TestSendConsumed(t *testing.T) {
	conn := &fakeConn{autoConsume: true}

	ocm := newOCMTransport(regio.New(conn, "test"), func(time.Duration) {})
	payload := []byte{0x32, 0x90, 0x01, 0x36}
	if err := ocm.Send(uint8(KindSrcCap), payload); err != nil {
		t.Fatalf("Send = %v", err)
	}

	if len(conn.frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(conn.frames))
	}
	want := buildFrame(uint8(KindSrcCap), payload)
	if !bytes.Equal(conn.frames[0], want) {
		t.Errorf("frame = % x, want % x", conn.frames[0], want)
	}
}

func TestReceive(t *testing.T) {
	conn := &fakeConn{}
	payload := []byte{0x2c, 0x91, 0x01, 0x00}
	conn.putFrame(uint8(KindSnkCap), payload)

	ocm := newOCMTransport(regio.New(conn, "test"), func(time.Duration) {})
	cmd, got, err := ocm.Receive()
	if err != nil {
		t.Fatalf("Receive = %v", err)
	}
	if cmd != uint8(KindSnkCap) {
		t.Errorf("cmd = 0x%02x, want 0x%02x", cmd, uint8(KindSnkCap))
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = % x, want % x", got, payload)
	}
	if conn.mem[tcpcRegInterfaceRecv] != 0 {
		t.Errorf("receive mailbox was not cleared")
	}
}

func TestReceiveMalformed(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
	}{
		{"zero length", []byte{0x00, 0x05, 0xfb}},
		{"oversized length", []byte{0xff, 0x05}},
		{"bad checksum", []byte{0x02, 0x05, 0x01, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeConn{}
			copy(conn.mem[tcpcRegInterfaceRecv:], tt.frame)

			ocm := newOCMTransport(regio.New(conn, "test"), func(time.Duration) {})
			if _, _, err := ocm.Receive(); !errors.Is(err, ErrBadFrame) {
				t.Fatalf("Receive = %v, want ErrBadFrame", err)
			}
		})
	}
}
