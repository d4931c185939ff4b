// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
)

// WrapperSize is the cumulative size of non-body bytes that contribute to calculation of the packet
// size that precedes a binary packet. Eight bytes are accounted for by the packet ID and type,
// while two bytes are accounted for by the null byte termination of the body and packet. The packet
// size itself is not included in the size calculation.
const WrapperSize = 4 + 4 + 2

// MaximumRequestSize is the largest packet size a client will encode. Minecraft servers read
// inbound packets into a 1460 byte buffer, so an entire request frame including its four byte size
// prefix must fit in that space. Larger requests fail with [ErrPacketTooLarge] before anything is
// written to the wire.
const MaximumRequestSize = 1460 - 4

// MaximumFragmentSize is the largest body a server puts in one response packet. Longer command
// output is split across several packets, all but the last carrying exactly this many bytes.
const MaximumFragmentSize = 4096

// MaximumResponseSize is the largest packet size a client will decode.
const MaximumResponseSize = MaximumFragmentSize + WrapperSize

const (
	// PacketTypeResponse is the type servers put on every reply. Clients do not validate it; only
	// the packet ID is used to match a reply with its request.
	PacketTypeResponse = 0

	// PacketTypeCommand represents a client request packet that contains a command to be executed
	// by the server.
	PacketTypeCommand = 2

	// PacketTypeLogin represents a client login request packet. Its body carries the server
	// password in plain text.
	PacketTypeLogin = 3
)

// Packet is a singular RCON protocol packet, either as a request from a client or a response from
// a server.
type Packet struct {
	// ID correlates requests with responses. A session stamps every request with the same ID and
	// the server echoes it back. Servers answer a rejected login with an ID of -1.
	ID int32

	// Type indicates the purpose of the packet, one of [PacketTypeLogin] or [PacketTypeCommand]
	// for requests. Response types are not interpreted.
	Type int32

	// Body is the password, the command text, or the server's reply. It may be empty and never
	// contains the trailing null bytes.
	Body []byte
}

// Size returns the value of the size field that precedes the packet on the wire.
func (p Packet) Size() int {
	return len(p.Body) + WrapperSize
}

// MarshalBinary encodes the receiving [Packet] into binary form and returns the result. This
// satisfies the [encoding.BinaryMarshaler] interface. Packets larger than [MaximumRequestSize]
// are rejected with [ErrPacketTooLarge].
func (p Packet) MarshalBinary() ([]byte, error) {
	return p.marshal(MaximumRequestSize)
}

func (p Packet) marshal(limit int) ([]byte, error) {
	size := p.Size()
	if size > limit {
		return nil, fmt.Errorf("%w: size %d exceeds %d", ErrPacketTooLarge, size, limit)
	}

	b := make([]byte, 4+size)
	binary.LittleEndian.PutUint32(b[0:4], uint32(size))
	binary.LittleEndian.PutUint32(b[4:8], uint32(p.ID))
	binary.LittleEndian.PutUint32(b[8:12], uint32(p.Type))
	copy(b[12:], p.Body)
	// The final two bytes are already zero.

	return b, nil
}

// WriteTo writes a binary representation of the packet to [io.Writer] w in a single Write call.
// This method satisfies the [io.WriterTo] interface.
func (p Packet) WriteTo(w io.Writer) (int64, error) {
	bs, err := p.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(bs)

	return int64(n), err
}

// UnmarshalBinary decodes the binary encoded packet b into the receiving [Packet]. This satisfies
// the [encoding.BinaryUnmarshaler] interface. Bytes left over after the packet are an error.
func (p *Packet) UnmarshalBinary(b []byte) error {
	r := bytes.NewReader(b)
	if _, err := p.ReadFrom(r); err != nil {
		return err
	}
	if r.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedPacket, r.Len())
	}
	return nil
}

// ReadFrom reads a binary representation of a packet into the receiving [Packet] instance. This
// method satisfies the [io.ReaderFrom] interface.
//
// The size prefix is read first and exactly that many further bytes are then consumed, across as
// many underlying reads as it takes. A stream that ends partway through a packet yields
// [ErrMalformedPacket] wrapping [io.ErrUnexpectedEOF]; a stream that ends cleanly before the size
// prefix yields [io.EOF].
func (p *Packet) ReadFrom(r io.Reader) (int64, error) {
	n := int64(0)

	var prefix [4]byte
	m, err := io.ReadFull(r, prefix[:])
	n += int64(m)
	if err != nil {
		if err == io.EOF {
			return n, err
		}
		return n, fmt.Errorf("%w: reading size: %w", ErrMalformedPacket, err)
	}

	size := int32(binary.LittleEndian.Uint32(prefix[:]))
	if size < WrapperSize {
		return n, fmt.Errorf("%w: size %d", ErrPacketTooSmall, size)
	}
	if size > MaximumResponseSize {
		return n, fmt.Errorf("%w: size %d exceeds %d", ErrPacketTooLarge, size, MaximumResponseSize)
	}

	rest := make([]byte, size)
	m, err = io.ReadFull(r, rest)
	n += int64(m)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return n, fmt.Errorf("%w: read %d of %d bytes: %w", ErrMalformedPacket, m, size, err)
	}

	// Ensure the packet is properly terminated by two zero bytes.
	if rest[size-2] != 0 || rest[size-1] != 0 {
		return n, fmt.Errorf("%w: incorrectly terminated", ErrMalformedPacket)
	}

	p.ID = int32(binary.LittleEndian.Uint32(rest[0:4]))
	p.Type = int32(binary.LittleEndian.Uint32(rest[4:8]))
	p.Body = rest[8 : size-2 : size-2]

	return n, nil
}

// EqualTo determines if the provided Packet content matches the receiving Packet content. A nil
// body and an empty body are considered equal.
func (p Packet) EqualTo(p2 Packet) bool {
	switch {
	case p.ID != p2.ID:
		return false
	case p.Type != p2.Type:
		return false
	case !bytes.Equal(p.Body, p2.Body):
		return false
	}
	return true
}

// Clone returns a deep copy of the receiving packet.
func (p Packet) Clone() Packet {
	c := p
	if p.Body != nil {
		c.Body = bytes.Clone(p.Body)
	}
	return c
}

// String returns a short human readable description of the packet. Login bodies are masked.
func (p Packet) String() string {
	body := p.Body
	if p.Type == PacketTypeLogin {
		body = []byte("xxxxx")
	}
	return fmt.Sprintf("Packet{ID:%d Type:%d Body:%q}", p.ID, p.Type, body)
}

// hexDump renders the wire form of p for debug logs, without the size limit applied to requests.
func (p Packet) hexDump() string {
	bs, err := p.marshal(math.MaxInt32)
	if err != nil {
		return ""
	}
	return hex.EncodeToString(bs)
}
