// Package raspberry watches and drives gpio lines.
package raspberry

import (
	"fmt"

	"github.com/warthog618/gpiod"
	"github.com/womat/debug"

	"anxd/pkg/port"
)

var ErrInvalidParam = fmt.Errorf("invalid parameters")

// Chip represents a single GPIO chip that controls a set of lines.
type Chip struct {
	gpiodChip *gpiod.Chip
}

// Line represents a single requested input line.
type Line struct {
	gpiodLine *gpiod.Line
	// send edge changes to channel
	C chan port.Event
}

// Open opens a GPIO character device.
func Open() (*Chip, error) {
	c, err := gpiod.NewChip("gpiochip0")
	chip := Chip{gpiodChip: c}
	return &chip, err
}

// NewLine requests control of a single input line on a chip and watches
// it for edge changes.
//   If granted, control is maintained until the Line is closed.
//   Edges are delivered raw to channel C; debouncing is the consumer's
//   concern. There can only be one watcher on the line at a time.
func (c *Chip) NewLine(gpio int, terminator string) (*Line, error) {
	var err error

	line := &Line{
		C: make(chan port.Event, 8)}

	handler := func(evt gpiod.LineEvent) {
		e := port.Event{Timestamp: evt.Timestamp}
		switch evt.Type {
		case gpiod.LineEventRisingEdge:
			e.Type = port.RisingEdge
		case gpiod.LineEventFallingEdge:
			e.Type = port.FallingEdge
		default:
			debug.ErrorLog.Printf("invalid line event: %v", evt.Type)
			return
		}

		// drop instead of blocking the gpiod event goroutine
		select {
		case line.C <- e:
		default:
		}
	}

	switch terminator {
	case "pullup":
		line.gpiodLine, err = c.gpiodChip.RequestLine(gpio, gpiod.WithEventHandler(handler),
			gpiod.WithBothEdges, gpiod.AsInput, gpiod.WithPullUp)
	case "pulldown":
		line.gpiodLine, err = c.gpiodChip.RequestLine(gpio, gpiod.WithEventHandler(handler),
			gpiod.WithBothEdges, gpiod.AsInput, gpiod.WithPullDown)
	case "none":
		line.gpiodLine, err = c.gpiodChip.RequestLine(gpio, gpiod.WithEventHandler(handler),
			gpiod.WithBothEdges, gpiod.AsInput)
	default:
		return nil, ErrInvalidParam
	}

	return line, err
}

// Close releases the Chip.
//
// It does not release any lines which may be requested - they must be
// closed independently.
func (c *Chip) Close() error {
	return c.gpiodChip.Close()
}

// Read returns the current level of the line.
func (l *Line) Read() (bool, error) {
	v, err := l.gpiodLine.Value()
	return v != 0, err
}

// Close releases all resources held by the requested line.
//
// Note that this includes waiting for any running event handler to return.
// As a consequence the Close must not be called from the context of the event
// handler - the Close should be called from a different goroutine.
func (l *Line) Close() error {
	if err := l.gpiodLine.Close(); err != nil {
		return err
	}
	close(l.C)
	return nil
}
