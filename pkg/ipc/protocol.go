// Package ipc implements the request socket through which the greeter asks
// the daemon to start sessions or shut the machine down.
//
// Every message is a packet: a one-byte type, a little-endian uint16
// payload length and the payload, which is CBOR where present.
package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ProtocolVersion is reported in reply to CmdQueryVersion.
const ProtocolVersion uint16 = 1

// EnvSocket names the environment variable that tells the greeter where the
// socket is.
const EnvSocket = "SLGREET_SOCK"

// DefaultSocketPath is used when nothing else is configured.
const DefaultSocketPath = "/run/slgreetd.sock"

// Command codes (client → server).
const (
	CmdQueryVersion uint8 = 0
	CmdGreet        uint8 = 1
	CmdLogin        uint8 = 2
	CmdShutdown     uint8 = 3
)

// Reply codes (server → client).
const (
	RplyOK      uint8 = 50
	RplyError   uint8 = 51
	RplyBadReq  uint8 = 52
	RplyVersion uint8 = 58
)

// MaxPayloadSize bounds the payload of a single packet.
const MaxPayloadSize = 4096

// WritePacket writes a packet: [type(1)][payloadLen(2)][payload(N)].
func WritePacket(w io.Writer, pktType uint8, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("payload too large: %d > %d", len(payload), MaxPayloadSize)
	}
	buf := make([]byte, 3+len(payload))
	buf[0] = pktType
	binary.LittleEndian.PutUint16(buf[1:], uint16(len(payload)))
	copy(buf[3:], payload)
	_, err := w.Write(buf)
	// buf may hold a password.
	clear(buf)
	return err
}

// ReadPacket reads a packet: [type(1)][payloadLen(2)][payload(N)].
func ReadPacket(r io.Reader) (pktType uint8, payload []byte, err error) {
	var hdr [3]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	pktType = hdr[0]
	pLen := binary.LittleEndian.Uint16(hdr[1:])
	if pLen > MaxPayloadSize {
		return 0, nil, fmt.Errorf("payload too large: %d", pLen)
	}
	if pLen > 0 {
		payload = make([]byte, pLen)
		if _, err = io.ReadFull(r, payload); err != nil {
			clear(payload)
			return 0, nil, err
		}
	}
	return pktType, payload, nil
}

func encodeVersion(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func decodeVersion(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("data too short for version: need 2, have %d", len(data))
	}
	return binary.LittleEndian.Uint16(data), nil
}
