// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon_test

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
	"math"
	"strconv"
	"testing"
	"testing/iotest"

	"github.com/schultz-is/mcrcon-go"
)

func TestPacketBinaryFormatting(t *testing.T) {
	ps := []rcon.Packet{
		{}, // Empty packet
		{ID: 1, Type: rcon.PacketTypeLogin, Body: []byte("password")},                // Example login request
		{ID: 1, Type: rcon.PacketTypeCommand, Body: nil},                             // Example successful login response
		{ID: -1, Type: rcon.PacketTypeCommand, Body: nil},                            // Example rejected login response
		{ID: 3, Type: rcon.PacketTypeCommand, Body: []byte("list")},                  // Example command request
		{ID: 4, Type: rcon.PacketTypeResponse, Body: []byte("There are 0 of a max")}, // Example command response
		{ID: math.MaxInt32, Type: math.MaxInt32, Body: make([]byte, rcon.MaximumRequestSize-rcon.WrapperSize)}, // Largest request allowed, non-standard type field
		{ID: math.MinInt32, Type: math.MinInt32, Body: []byte{0xff, 0x00, 0x7f}},                                // Extreme IDs and binary body
	}

	for _, p := range ps {
		b, err := p.MarshalBinary()
		if err != nil {
			t.Fatalf("Packet[%v].MarshalBinary() failed unexpectedly: %s", p, err)
		}

		var buf bytes.Buffer
		n, err := p.WriteTo(&buf)
		if err != nil {
			t.Fatalf("Packet[%v].WriteTo() failed unexpectedly: %s", p, err)
		}

		// Ensure MarshalBinary is a pure function.
		b2, err := p.MarshalBinary()
		if err != nil {
			t.Fatalf("Packet[%v].MarshalBinary() failed unexpectedly: %s", p, err)
		}
		if !bytes.Equal(b, b2) {
			t.Fatalf("Packet[%v].MarshalBinary() got two different results: %0x, %0x", p, b, b2)
		}
		if !bytes.Equal(b, buf.Bytes()) {
			t.Fatalf("Packet[%v].WriteTo() disagrees with MarshalBinary: %0x, %0x", p, buf.Bytes(), b)
		}

		// The size prefix counts everything after itself.
		size := int32(binary.LittleEndian.Uint32(b[:4]))
		if want := int32(4 + 4 + len(p.Body) + 2); size != want || int(size) != p.Size() {
			t.Fatalf("Packet[%v] size field = %d, want %d", p, size, want)
		}
		if int64(len(b)) != n || len(b) != int(size)+4 {
			t.Fatalf("Packet[%v] encoded to %d bytes, want %d", p, len(b), size+4)
		}
		if !bytes.Equal(b[len(b)-2:], []byte{0, 0}) {
			t.Fatalf("Packet[%v] is not null terminated: %0x", p, b)
		}

		var p2 rcon.Packet
		err = p2.UnmarshalBinary(b)
		if err != nil {
			t.Fatalf("Packet.UnmarshalBinary(%0x) failed unexpectedly: %s", b, err)
		}

		var p3 rcon.Packet
		n3, err := p3.ReadFrom(&buf)
		if err != nil {
			t.Fatalf("Packet.ReadFrom(%0x) failed unexpectedly: %s", buf.Bytes(), err)
		}

		// Check that MarshalBinary is the identity function.
		if !p.EqualTo(p2) {
			t.Fatalf("Packet[%v].MarshalBinary() is not the identity function, got: %v", p, p2)
		}

		// Ensure WriteTo is the identity function.
		if n != n3 || !p.EqualTo(p3) {
			t.Fatalf("Packet[%v].WriteTo() is not the identity function, got: %v", p, p3)
		}
	}

	// Disallow requests above the limit servers accept.
	p := rcon.Packet{Body: make([]byte, rcon.MaximumRequestSize-rcon.WrapperSize+1)}
	_, err := p.MarshalBinary()
	if !errors.Is(err, rcon.ErrPacketTooLarge) {
		t.Fatalf("Packet[%d byte body].MarshalBinary() = %v, want ErrPacketTooLarge", len(p.Body), err)
	}
	var buf bytes.Buffer
	if n, err := p.WriteTo(&buf); err == nil || n != 0 || buf.Len() != 0 {
		t.Fatalf("oversized Packet.WriteTo() wrote %d bytes, err %v", n, err)
	}

	bss := []struct {
		hex  string
		want error
	}{
		{"d6ffffff", rcon.ErrPacketTooSmall},                         // Negative packet size
		{"09000000", rcon.ErrPacketTooSmall},                         // Packet size smaller than allowed by protocol
		{"0b100000", rcon.ErrPacketTooLarge},                         // Packet size larger than allowed for responses
		{"0a00000011", rcon.ErrMalformedPacket},                      // Packet shorter than provided size
		{"0a0000001111111122222222333333330000", rcon.ErrMalformedPacket}, // Packet longer than provided size
		{"0a00000011111111222222223333", rcon.ErrMalformedPacket},         // Missing double null byte termination
		{"0a00000001000000000000000000ff", rcon.ErrMalformedPacket},       // Trailing byte after a valid packet
		{"0a0000", rcon.ErrMalformedPacket},                               // Truncated size prefix
	}

	for _, bs := range bss {
		b, err := hex.DecodeString(bs.hex)
		if err != nil {
			t.Fatalf("invalid hex string in test table: %s, %s", bs.hex, err)
		}

		// Expect the unmarshal to fail.
		var p rcon.Packet
		err = p.UnmarshalBinary(b)
		if !errors.Is(err, bs.want) {
			t.Fatalf("Packet.UnmarshalBinary(%s) = %v, want %v", bs.hex, err, bs.want)
		}
	}
}

func TestPacketReadFromFragmentedStream(t *testing.T) {
	want := rcon.Packet{ID: 7, Type: rcon.PacketTypeResponse, Body: bytes.Repeat([]byte("Alice, Bob, "), 300)}
	b := wire(want)

	// One byte per Read forces the size driven loop to accumulate.
	var got rcon.Packet
	n, err := got.ReadFrom(iotest.OneByteReader(bytes.NewReader(b)))
	if err != nil {
		t.Fatalf("ReadFrom over one byte reads failed: %s", err)
	}
	if n != int64(len(b)) || !want.EqualTo(got) {
		t.Fatalf("ReadFrom over one byte reads = %d bytes %v, want %d bytes %v", n, got, len(b), want)
	}

	// Two packets back to back are read one at a time.
	stream := append(append([]byte{}, b...), b...)
	r := iotest.HalfReader(bytes.NewReader(stream))
	for i := 0; i < 2; i++ {
		var p rcon.Packet
		if _, err := p.ReadFrom(r); err != nil || !want.EqualTo(p) {
			t.Fatalf("packet %d: %v, %s", i, p, err)
		}
	}
	var p rcon.Packet
	if _, err := p.ReadFrom(r); err != io.EOF {
		t.Fatalf("ReadFrom at end of stream = %v, want io.EOF", err)
	}
}

func TestPacketReadFromTruncatedStream(t *testing.T) {
	b, err := rcon.Packet{ID: 7, Body: []byte("There are 2 of a max of 20 players online")}.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	for _, cut := range []int{1, 3, 4, 5, 12, len(b) - 1} {
		var p rcon.Packet
		_, err := p.ReadFrom(bytes.NewReader(b[:cut]))
		if !errors.Is(err, rcon.ErrMalformedPacket) || !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Fatalf("ReadFrom(%d of %d bytes) = %v, want ErrMalformedPacket and io.ErrUnexpectedEOF", cut, len(b), err)
		}
	}
}

func TestPacketSizeProperty(t *testing.T) {
	for _, l := range []int{0, 1, 2, 9, 10, 100, 1000, rcon.MaximumRequestSize - rcon.WrapperSize} {
		p := rcon.Packet{ID: 42, Type: rcon.PacketTypeCommand, Body: bytes.Repeat([]byte{'a'}, l)}
		b, err := p.MarshalBinary()
		if err != nil {
			t.Fatalf("len %d: %s", l, err)
		}
		if got := binary.LittleEndian.Uint32(b); int(got) != 4+4+l+2 {
			t.Fatalf("len %d: size field %d, want %d", l, got, 4+4+l+2)
		}
		var q rcon.Packet
		if err := q.UnmarshalBinary(b); err != nil || q.ID != 42 || q.Type != rcon.PacketTypeCommand || len(q.Body) != l {
			t.Fatalf("len %d: round trip got %v, %v", l, q, err)
		}
	}
}

func TestPacketEqualTo(t *testing.T) {
	p := rcon.Packet{}
	if !p.EqualTo(p) {
		t.Fatalf("Packet[%v].EqualTo(%v) returned false when comparing a packet to itself", p, p)
	}

	p = rcon.Packet{
		ID:   12345,
		Type: rcon.PacketTypeResponse,
		Body: []byte("some command response value goes here..."),
	}
	if !p.EqualTo(p) {
		t.Fatalf("Packet[%v].EqualTo(%v) returned false when comparing a packet to itself", p, p)
	}

	p2 := p.Clone()
	if !p.EqualTo(p2) {
		t.Fatalf("Packet[%v].EqualTo(%v) returned false when comparing a packet to a clone of itself", p, p2)
	}
	p2.Body[0] = 'S'
	if p.Body[0] != 's' {
		t.Fatal("Packet.Clone() shares its body with the original")
	}
	p2.Body[0] = 's'

	p2.ID = p.ID - 1
	if p.EqualTo(p2) {
		t.Fatalf("Packet[%v].EqualTo(%v) incorrectly returned true for different IDs", p, p2)
	}

	p2.ID = p.ID
	p2.Type = p.Type + 1
	if p.EqualTo(p2) {
		t.Fatalf("Packet[%v].EqualTo(%v) incorrectly returned true for different types", p, p2)
	}

	p2.Type = p.Type
	p2.Body = append(p2.Body, 'X')
	if p.EqualTo(p2) {
		t.Fatalf("Packet[%v].EqualTo(%v) incorrectly returned true for different bodies", p, p2)
	}
}

func TestPacketStringMasksPassword(t *testing.T) {
	p := rcon.Packet{ID: 1, Type: rcon.PacketTypeLogin, Body: []byte("hunter2")}
	if s := p.String(); bytes.Contains([]byte(s), []byte("hunter2")) {
		t.Fatalf("Packet.String() leaked the password: %s", s)
	}
}

// wire encodes p by hand, since responses may exceed the request size limit.
func wire(p rcon.Packet) []byte {
	b := make([]byte, 12, 12+len(p.Body)+2)
	binary.LittleEndian.PutUint32(b[0:], uint32(p.Size()))
	binary.LittleEndian.PutUint32(b[4:], uint32(p.ID))
	binary.LittleEndian.PutUint32(b[8:], uint32(p.Type))
	b = append(b, p.Body...)
	b = append(b, 0, 0)
	return b
}

func BenchmarkMarshalBinary(b *testing.B) {
	bodySizes := []int{
		0,
		5,
		10,
		15,
		25,
		125,
		250,
		500,
		1000,
		rcon.MaximumRequestSize - rcon.WrapperSize,
	}

	for _, bodySize := range bodySizes {
		b.Run(
			strconv.Itoa(bodySize),
			func(b *testing.B) {
				for n := 0; n < b.N; n++ {
					p := rcon.Packet{
						Body: make([]byte, bodySize),
					}
					bs, err := p.MarshalBinary()
					if err != nil {
						b.Fatal(err)
					}
					b.SetBytes(int64(len(bs)))
				}
			},
		)
	}
}
