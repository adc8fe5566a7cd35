// Package wire implements the two trace command encodings the server must
// decode: the fixed-layout binary packet and the whitespace-separated text
// line (spec §4.1). Only decoding is implemented; clients own the encoder.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/titglob/rtsv/internal/record"
)

// ErrMalformedRecord is returned for any input that cannot be decoded into
// a Record (spec §7).
var ErrMalformedRecord = errors.New("wire: malformed record")

// MaxPacketLen is the maximum binary packet length, including the framing
// length byte's payload (spec §4.1).
const MaxPacketLen = 150

// DecodeBinary decodes one binary packet payload (spec §4.1):
//
//	byte 0      : cmd_kind (low 7 bits) | wide_id_flag (bit 7)
//	bytes 1..4  : time, big-endian, 32-bit unsigned
//	next N      : group_id, then id1, then id2 (4 or 8 bytes each, big-endian)
//	remainder   : UTF-8 text, NUL-terminated within the payload
//
// payload is the packet body after the framing length byte L has already
// been read by the caller. DecodeBinary itself rejects an empty payload or
// one longer than MaxPacketLen.
func DecodeBinary(payload []byte) (*record.Record, error) {
	if len(payload) == 0 || len(payload) > MaxPacketLen {
		return nil, fmt.Errorf("%w: payload length %d out of range", ErrMalformedRecord, len(payload))
	}

	cmdByte := payload[0]
	wide := cmdByte&0x80 != 0
	kind := record.Kind(cmdByte & 0x7f)
	if kind.String() == "unknown" {
		return nil, fmt.Errorf("%w: unknown command byte 0x%02x", ErrMalformedRecord, cmdByte)
	}

	idWidth := 4
	if wide {
		idWidth = 8
	}
	need := 1 + 4 + 3*idWidth
	if len(payload) < need {
		return nil, fmt.Errorf("%w: payload too short for fixed fields", ErrMalformedRecord)
	}

	r := &record.Record{Cmd: kind}
	r.Time = beUint32(payload[1:5])

	off := 5
	r.GroupID = record.ID(beUint(payload[off : off+idWidth]))
	off += idWidth
	r.ID1 = record.ID(beUint(payload[off : off+idWidth]))
	off += idWidth
	r.ID2 = record.ID(beUint(payload[off : off+idWidth]))
	off += idWidth

	text := payload[off:]
	if nul := bytes.IndexByte(text, 0); nul >= 0 {
		text = text[:nul]
	}
	if len(text) > record.TextPayloadMax {
		text = text[:record.TextPayloadMax]
	}
	r.Text = string(text)

	return r, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func beUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// DecodeText decodes one text line (spec §4.1):
//
//	<cmd_name> @<time> [#<group_id>] [<id1>] [<id2>] <text...>
//
// A leading '#'/'%' or an empty line is a comment and yields (nil, nil).
func DecodeText(line string) (*record.Record, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || trimmed[0] == '#' || trimmed[0] == '%' {
		return nil, nil
	}

	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return nil, nil
	}

	kind, ok := record.ParseKind(fields[0])
	if !ok {
		return nil, fmt.Errorf("%w: unknown command %q", ErrMalformedRecord, fields[0])
	}

	r := &record.Record{Cmd: kind}
	rest := fields[1:]

	timeSeen := false
	numericIdx := 0 // how many bare numeric ids have been consumed (group counts separately)
	textStart := -1

tokenLoop:
	for i, tok := range rest {
		switch {
		case strings.HasPrefix(tok, "@"):
			if timeSeen {
				textStart = i
				break tokenLoop
			}
			v, err := parseNumber(tok[1:])
			if err != nil {
				return nil, fmt.Errorf("%w: bad time token %q", ErrMalformedRecord, tok)
			}
			r.Time = uint32(v)
			timeSeen = true
		case strings.HasPrefix(tok, "#"):
			v, err := parseNumber(tok[1:])
			if err != nil {
				textStart = i
				break tokenLoop
			}
			r.GroupID = record.ID(v)
		default:
			v, err := parseNumber(tok)
			if err != nil {
				textStart = i
				break tokenLoop
			}
			switch numericIdx {
			case 0:
				r.ID1 = record.ID(v)
			case 1:
				r.ID2 = record.ID(v)
			default:
				textStart = i
				break tokenLoop
			}
			numericIdx++
		}
	}

	if !timeSeen {
		return nil, fmt.Errorf("%w: missing mandatory @time field", ErrMalformedRecord)
	}

	if textStart >= 0 {
		r.Text = strings.Join(rest[textStart:], " ")
	}

	return r, nil
}

// parseNumber accepts decimal, hexadecimal (0x...) or octal (0...) tokens,
// as the original text encoding does (spec §4.1).
func parseNumber(tok string) (uint64, error) {
	if tok == "" {
		return 0, fmt.Errorf("empty numeric token")
	}
	return strconv.ParseUint(tok, 0, 64)
}
