// Package session implements the envelope format used to ship session
// blobs to and from the backup store. The payload stays opaque; the
// envelope only adds enough metadata to identify and order blobs.
package session

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"

	"whatsapp-session-keeper/types"
)

// Envelope layout: magic (4 bytes) | uint32 header length | JSON header |
// gzip-compressed payload. The magic doubles as a format version.
var magic = [4]byte{'W', 'S', 'K', '1'}

const maxHeaderLen = 1 << 16

type header struct {
	Identity  types.BotIdentity `json:"identity"`
	CreatedAt time.Time         `json:"created_at"`
	Size      int               `json:"size"`
}

// Encode serializes a session blob into a store-ready envelope.
func Encode(blob types.SessionBlob) ([]byte, error) {
	hdr, err := json.Marshal(header{
		Identity:  blob.Identity,
		CreatedAt: blob.CreatedAt.UTC(),
		Size:      len(blob.Data),
	})
	if err != nil {
		return nil, fmt.Errorf("encode session header: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(magic[:])
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(hdr))); err != nil {
		return nil, err
	}
	buf.Write(hdr)

	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(blob.Data); err != nil {
		return nil, fmt.Errorf("compress session payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress session payload: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses an envelope produced by Encode. It rejects envelopes with
// an unknown magic, a truncated header, or a payload whose length does not
// match the header.
func Decode(data []byte) (types.SessionBlob, error) {
	var blob types.SessionBlob

	if len(data) < len(magic)+4 {
		return blob, fmt.Errorf("session envelope too short (%d bytes)", len(data))
	}
	if !bytes.Equal(data[:len(magic)], magic[:]) {
		return blob, fmt.Errorf("unrecognized session envelope magic %q", data[:len(magic)])
	}

	hdrLen := binary.BigEndian.Uint32(data[len(magic) : len(magic)+4])
	if hdrLen > maxHeaderLen {
		return blob, fmt.Errorf("session envelope header too large (%d bytes)", hdrLen)
	}
	rest := data[len(magic)+4:]
	if uint32(len(rest)) < hdrLen {
		return blob, fmt.Errorf("truncated session envelope header")
	}

	var hdr header
	if err := json.Unmarshal(rest[:hdrLen], &hdr); err != nil {
		return blob, fmt.Errorf("decode session header: %w", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(rest[hdrLen:]))
	if err != nil {
		return blob, fmt.Errorf("decompress session payload: %w", err)
	}
	payload, err := io.ReadAll(zr)
	if cerr := zr.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return blob, fmt.Errorf("decompress session payload: %w", err)
	}
	if len(payload) != hdr.Size {
		return blob, fmt.Errorf("session payload length %d does not match header %d", len(payload), hdr.Size)
	}

	blob = types.SessionBlob{
		Identity:  hdr.Identity,
		Data:      payload,
		CreatedAt: hdr.CreatedAt,
	}
	return blob, nil
}
