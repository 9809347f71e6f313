// Package regio provides byte-oriented register access to an I2C device.
package regio

import (
	"errors"
	"fmt"
	"time"

	"github.com/womat/debug"
)

var (
	// ErrTimeout is returned by Poll when the condition does not become
	// true within the configured number of attempts.
	ErrTimeout = errors.New("timeout waiting for register condition")
)

// Conn is the minimum interface to an I2C device at a fixed address.
// A write followed by an optional read, in one transaction. Passing a
// nil slice skips the corresponding transfer.
type Conn interface {
	Tx(w, r []byte) error
}

// Regs gives register-level access to one address space of a chip.
type Regs struct {
	conn Conn
	name string
	buf  [33]byte
}

// New wraps conn as a register space. The name is used in log messages
// only.
func New(conn Conn, name string) *Regs {
	return &Regs{conn: conn, name: name}
}

// Read reads a single register.
func (r *Regs) Read(reg uint8) (uint8, error) {
	r.buf[0] = reg
	if err := r.conn.Tx(r.buf[:1], r.buf[1:2]); err != nil {
		debug.ErrorLog.Printf("%s: read failed at 0x%02x: %v", r.name, reg, err)
		return 0, fmt.Errorf("%s: read 0x%02x: %w", r.name, reg, err)
	}
	return r.buf[1], nil
}

// Write writes a single register.
func (r *Regs) Write(reg uint8, value uint8) error {
	r.buf[0] = reg
	r.buf[1] = value
	if err := r.conn.Tx(r.buf[:2], nil); err != nil {
		debug.ErrorLog.Printf("%s: write failed at 0x%02x: %v", r.name, reg, err)
		return fmt.Errorf("%s: write 0x%02x: %w", r.name, reg, err)
	}
	return nil
}

// UpdateBits clears mask and sets value in a register.
func (r *Regs) UpdateBits(reg uint8, mask, value uint8) error {
	v, err := r.Read(reg)
	if err != nil {
		return err
	}
	v &^= mask
	v |= value
	return r.Write(reg, v)
}

// ReadBlock reads len(b) consecutive registers starting at reg.
func (r *Regs) ReadBlock(reg uint8, b []byte) error {
	r.buf[0] = reg
	if err := r.conn.Tx(r.buf[:1], b); err != nil {
		debug.ErrorLog.Printf("%s: block read failed at 0x%02x: %v", r.name, reg, err)
		return fmt.Errorf("%s: block read 0x%02x: %w", r.name, reg, err)
	}
	return nil
}

// WriteBlock writes the bytes in b to consecutive registers starting at
// reg.
func (r *Regs) WriteBlock(reg uint8, b []byte) error {
	r.buf[0] = reg
	copy(r.buf[1:], b)
	if err := r.conn.Tx(r.buf[:1+len(b)], nil); err != nil {
		debug.ErrorLog.Printf("%s: block write failed at 0x%02x: %v", r.name, reg, err)
		return fmt.Errorf("%s: block write 0x%02x: %w", r.name, reg, err)
	}
	return nil
}

// Poll calls cond up to attempts times, sleeping interval between
// attempts, until it reports true. A cond error aborts the poll and is
// returned as is; exhausting all attempts returns ErrTimeout.
//
// The sleep function is injectable for tests; pass nil to use
// time.Sleep.
func Poll(attempts int, interval time.Duration, sleep func(time.Duration), cond func() (bool, error)) error {
	if sleep == nil {
		sleep = time.Sleep
	}
	for i := 0; i < attempts; i++ {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		sleep(interval)
	}
	return ErrTimeout
}
