// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

/*
Haptic packet (BigEndian), 17 bytes:

|<- 4 bytes ->|<--- 8 bytes --->|<- 1 ->|<- 4 bytes ->|
+-------------+-----------------+-------+-------------+
|  Sequence   |    Timestamp    |  Cmd  |  Intensity  |
|  (uint32)   |  (int64, ns)    | uint8 |  (float32)  |
+-------------+-----------------+-------+-------------+

Receivers drop packets whose sequence is not newer than the last one seen.
*/

// PacketSize is the encoded size of a Packet.
const PacketSize = 4 + 8 + 1 + 4

// Command identifies what a packet asks the receiver to do.
type Command uint8

const (
	CmdIntensity Command = iota + 1
	CmdStop
	CmdAccent
)

func (c Command) String() string {
	switch c {
	case CmdIntensity:
		return "intensity"
	case CmdStop:
		return "stop"
	case CmdAccent:
		return "accent"
	default:
		return fmt.Sprintf("command(%d)", uint8(c))
	}
}

var ErrShortPacket = errors.New("udp: short packet")

// Packet is one haptic command on the wire.
type Packet struct {
	Seq       uint32
	Timestamp int64
	Command   Command
	Intensity float32
}

// AppendBinary appends the encoded packet to b.
func (p Packet) AppendBinary(b []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, p.Seq)
	b = binary.BigEndian.AppendUint64(b, uint64(p.Timestamp))
	b = append(b, byte(p.Command))
	return binary.BigEndian.AppendUint32(b, math.Float32bits(p.Intensity))
}

// DecodePacket parses a packet produced by AppendBinary.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < PacketSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	return Packet{
		Seq:       binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
		Command:   Command(b[12]),
		Intensity: math.Float32frombits(binary.BigEndian.Uint32(b[13:17])),
	}, nil
}
