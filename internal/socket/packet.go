package socket

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Engine.IO packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioNoop    = '6'
)

// Socket.IO packet types, carried inside an Engine.IO message.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioConnectError = '4'
)

type packetKind int

const (
	packetUnknown packetKind = iota
	packetOpen
	packetClose
	packetPing
	packetNoop
	packetConnect
	packetDisconnect
	packetConnectError
	packetEvent
)

type packet struct {
	kind    packetKind
	name    string
	payload json.RawMessage
}

var errMalformed = errors.New("malformed socket.io packet")

// parsePacket decodes one Engine.IO text frame. Only the default namespace
// is supported; acknowledgement ids are not.
func parsePacket(msg []byte) (packet, error) {
	if len(msg) == 0 {
		return packet{}, errMalformed
	}

	switch msg[0] {
	case eioOpen:
		return packet{kind: packetOpen, payload: msg[1:]}, nil
	case eioClose:
		return packet{kind: packetClose}, nil
	case eioPing:
		return packet{kind: packetPing}, nil
	case eioNoop, eioPong:
		return packet{kind: packetNoop}, nil
	case eioMessage:
	default:
		return packet{kind: packetUnknown}, nil
	}

	if len(msg) < 2 {
		return packet{}, errMalformed
	}
	body := msg[2:]

	switch msg[1] {
	case sioConnect:
		return packet{kind: packetConnect, payload: body}, nil
	case sioDisconnect:
		return packet{kind: packetDisconnect}, nil
	case sioConnectError:
		return packet{kind: packetConnectError, payload: body}, nil
	case sioEvent:
		return parseEvent(body)
	default:
		return packet{kind: packetUnknown}, nil
	}
}

func parseEvent(body []byte) (packet, error) {
	start := bytes.IndexByte(body, '[')
	if start < 0 {
		return packet{}, errors.Wrap(errMalformed, "event without argument list")
	}

	var args []json.RawMessage
	if err := json.Unmarshal(body[start:], &args); err != nil {
		return packet{}, errors.Wrap(err, "failed to decode event arguments")
	}
	if len(args) == 0 {
		return packet{}, errors.Wrap(errMalformed, "event without name")
	}

	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return packet{}, errors.Wrap(err, "failed to decode event name")
	}

	p := packet{kind: packetEvent, name: name}
	if len(args) > 1 {
		p.payload = args[1]
	}
	return p, nil
}

const (
	framePong    = "3"
	frameConnect = "40"
)
