// Package canbus adapts github.com/brutella/can to the small interface
// the input/output BMS sessions need, so codec and session logic can be
// unit tested without a real SocketCAN interface. Grounded on
// other_examples/ssokol-rcdcan__rcdcan.go, the only user of
// github.com/brutella/can in the retrieval pack.
package canbus

import (
	"fmt"
	"net"

	"github.com/brutella/can"

	"github.com/ulukas/bms-gateway/internal/pylontech"
)

// Conn is a single CAN interface: send frames, subscribe to received
// frames, run the receive loop until Close.
type Conn interface {
	Send(f pylontech.Frame) error
	Subscribe(handler func(pylontech.Frame))
	Run() error
	Close() error
}

// socketCANConn is the production Conn backed by a real SocketCAN
// network interface via github.com/brutella/can.
type socketCANConn struct {
	bus *can.Bus
}

// Open binds to the named SocketCAN interface (e.g. "can_in_1").
func Open(ifname string) (Conn, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("canbus: interface %s: %w", ifname, err)
	}
	rwc, err := can.NewReadWriteCloserForInterface(iface)
	if err != nil {
		return nil, fmt.Errorf("canbus: opening %s: %w", ifname, err)
	}
	return &socketCANConn{bus: can.NewBus(rwc)}, nil
}

func (c *socketCANConn) Send(f pylontech.Frame) error {
	frame := can.Frame{ID: f.ID}
	frame.Length = uint8(len(f.Data))
	copy(frame.Data[:], f.Data)
	return c.bus.Publish(frame)
}

func (c *socketCANConn) Subscribe(handler func(pylontech.Frame)) {
	c.bus.SubscribeFunc(func(f can.Frame) {
		handler(pylontech.Frame{
			ID:   f.ID,
			Data: append([]byte(nil), f.Data[:f.Length]...),
		})
	})
}

func (c *socketCANConn) Run() error {
	return c.bus.ConnectAndPublish()
}

func (c *socketCANConn) Close() error {
	return c.bus.Disconnect()
}
