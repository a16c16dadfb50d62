package encryption

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/tink-crypto/tink-go/v2/tink"
)

// chunkSize is the plaintext size of every chunk but the last.
const chunkSize = 64 * 1024

// sivTagSize is what AES-SIV adds to every chunk.
const sivTagSize = 16

// streamingWriter encrypts everything written to it in fixed-size chunks.
// Close must be called to emit the final chunk; a stream without one is
// rejected as truncated when read back.
type streamingWriter struct {
	w          io.Writer
	daead      tink.DeterministicAEAD
	buffer     []byte
	header     []byte
	chunkIndex uint64
	closed     bool
}

func newStreamingWriter(w io.Writer, daead tink.DeterministicAEAD, header []byte) *streamingWriter {
	hdrCopy := make([]byte, len(header))
	copy(hdrCopy, header)

	return &streamingWriter{
		w:      w,
		daead:  daead,
		buffer: make([]byte, 0, chunkSize),
		header: hdrCopy,
	}
}

// Write implements io.Writer, buffering data until a complete chunk can be encrypted.
// A full buffer is only flushed once more data arrives, so the last chunk is
// always written by Close with the final flag set.
func (sw *streamingWriter) Write(data []byte) (int, error) {
	if sw.closed {
		return 0, errors.New("write to closed streaming writer") //nolint:err113
	}

	sw.buffer = append(sw.buffer, data...)

	for len(sw.buffer) > chunkSize {
		if err := sw.flushChunk(chunkSize, false); err != nil {
			return 0, err
		}
	}

	return len(data), nil
}

// Close encrypts the remaining buffered data, possibly none, as the final chunk.
func (sw *streamingWriter) Close() error {
	if sw.closed {
		return nil
	}

	sw.closed = true

	return sw.flushChunk(len(sw.buffer), true)
}

func (sw *streamingWriter) flushChunk(size int, final bool) error {
	ad := buildChunkAssociatedData(sw.header, sw.chunkIndex, final)

	encrypted, err := sw.daead.EncryptDeterministically(sw.buffer[:size], ad)
	if err != nil {
		return fmt.Errorf("encrypting chunk: %w", err)
	}

	if err := binary.Write(sw.w, binary.BigEndian, uint32(len(encrypted))); err != nil { //nolint:gosec
		return fmt.Errorf("writing chunk size: %w", err)
	}

	if _, err := sw.w.Write(encrypted); err != nil {
		return fmt.Errorf("writing encrypted chunk: %w", err)
	}

	sw.buffer = append(sw.buffer[:0], sw.buffer[size:]...)
	sw.chunkIndex++

	return nil
}

// buildChunkAssociatedData binds a chunk to its file, its position and whether it ends the stream.
func buildChunkAssociatedData(header []byte, index uint64, final bool) []byte {
	const chunkIndexSize = 8

	ad := make([]byte, len(header)+chunkIndexSize+1)
	copy(ad, header)
	binary.BigEndian.PutUint64(ad[len(header):], index)

	if final {
		ad[len(ad)-1] = 1
	}

	return ad
}
