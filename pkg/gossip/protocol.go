package gossip

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ugorji/go/codec"
)

type messageType uint8

const (
	// messageTypePush contains hot rumors pushed by a peer.
	messageTypePush messageType = iota + 1
	// messageTypePullRequest requests the peers hot and cold rumors.
	messageTypePullRequest
	// messageTypePullResponse contains rumors in response to a pull request.
	messageTypePullResponse
)

func (t messageType) String() string {
	switch t {
	case messageTypePush:
		return "push"
	case messageTypePullRequest:
		return "pull-request"
	case messageTypePullResponse:
		return "pull-response"
	default:
		return "unknown"
	}
}

const (
	supportedVersion uint8 = 0
)

// packetHeader identifies the sender of a packet.
type packetHeader struct {
	NodeID string `codec:"node_id"`
	Addr   string `codec:"addr"`
}

// rumorEntry is a rumor payload with the senders push counter.
type rumorEntry struct {
	Counter uint8  `codec:"counter"`
	Payload []byte `codec:"payload"`
}

type encoder struct {
	encoder *codec.Encoder
}

func newEncoder(writer io.Writer) *encoder {
	var handle codec.MsgpackHandle
	return &encoder{
		encoder: codec.NewEncoder(writer, &handle),
	}
}

func (e *encoder) Encode(v interface{}) error {
	return e.encoder.Encode(v)
}

type decoder struct {
	decoder *codec.Decoder
}

func newDecoder(reader io.Reader) *decoder {
	var handle codec.MsgpackHandle
	return &decoder{
		decoder: codec.NewDecoder(reader, &handle),
	}
}

func (d *decoder) Decode(v interface{}) error {
	return d.decoder.Decode(v)
}

// encodePacket encodes a packet with the given type, header and entries.
//
// Entries that would take the packet over maxPacketSize are skipped, so the
// returned packet may include only a subset of entries. Returns the number of
// entries included.
func encodePacket(
	t messageType,
	header packetHeader,
	entries []rumorEntry,
	maxPacketSize int,
) ([]byte, int, error) {
	// Add fixed header.
	var buf bytes.Buffer
	_ = buf.WriteByte(uint8(t))
	_ = buf.WriteByte(supportedVersion)

	encoder := newEncoder(&buf)

	if err := encoder.Encode(&header); err != nil {
		return nil, 0, fmt.Errorf("encode: %w", err)
	}

	if buf.Len() > maxPacketSize {
		return nil, 0, fmt.Errorf(
			"max packet size too small for header: %d < %d",
			maxPacketSize, buf.Len(),
		)
	}

	// Encode each entry separately to check it fits before adding it to
	// the packet.
	var entryBuf bytes.Buffer
	entryEncoder := newEncoder(&entryBuf)

	included := 0
	for _, entry := range entries {
		entryBuf.Reset()
		if err := entryEncoder.Encode(&entry); err != nil {
			return nil, 0, fmt.Errorf("encode: %w", err)
		}

		if buf.Len()+entryBuf.Len() > maxPacketSize {
			// A later smaller entry may still fit.
			continue
		}
		_, _ = buf.Write(entryBuf.Bytes())
		included++
	}

	return buf.Bytes(), included, nil
}

// maxPayloadSize returns the largest rumor payload that fits in a packet with
// the given header.
func maxPayloadSize(header packetHeader, maxPacketSize int) (int, error) {
	var buf bytes.Buffer
	encoder := newEncoder(&buf)
	if err := encoder.Encode(&header); err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}
	entry := rumorEntry{
		Counter: math.MaxUint8,
		Payload: []byte{},
	}
	if err := encoder.Encode(&entry); err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}

	// Type and version bytes, plus the payload length prefix growing up to
	// 4 bytes for large payloads.
	overhead := 2 + buf.Len() + 4
	if overhead >= maxPacketSize {
		return 0, nil
	}
	return maxPacketSize - overhead, nil
}

// decodePacket decodes a packet encoded with encodePacket.
func decodePacket(b []byte) (messageType, packetHeader, []rumorEntry, error) {
	r := bytes.NewBuffer(b)

	firstByte, err := r.ReadByte()
	if err != nil {
		return 0, packetHeader{}, nil, fmt.Errorf("read: %w", err)
	}
	t := messageType(firstByte)
	if t.String() == "unknown" {
		return 0, packetHeader{}, nil, fmt.Errorf("unsupported message type: %d", firstByte)
	}
	version, err := r.ReadByte()
	if err != nil {
		return 0, packetHeader{}, nil, fmt.Errorf("read: %w", err)
	}
	if version != supportedVersion {
		return 0, packetHeader{}, nil, fmt.Errorf("unsupported version: %d", version)
	}

	decoder := newDecoder(r)
	var header packetHeader
	if err := decoder.Decode(&header); err != nil {
		return 0, packetHeader{}, nil, fmt.Errorf("decode: %w", err)
	}

	var entries []rumorEntry
	for {
		// Read entries until EOF.
		var entry rumorEntry
		if err := decoder.Decode(&entry); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, packetHeader{}, nil, fmt.Errorf("decode: %w", err)
		}
		entries = append(entries, entry)
	}

	return t, header, entries, nil
}
