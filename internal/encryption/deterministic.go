package encryption

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/tink-crypto/tink-go/v2/daead"
	"github.com/tink-crypto/tink-go/v2/insecurecleartextkeyset"
	"github.com/tink-crypto/tink-go/v2/keyset"
	aes_sivpb "github.com/tink-crypto/tink-go/v2/proto/aes_siv_go_proto"
	tinkpb "github.com/tink-crypto/tink-go/v2/proto/tink_go_proto"
	"github.com/tink-crypto/tink-go/v2/tink"

	"google.golang.org/protobuf/proto"
)

// newDeterministicAEAD builds the AES-SIV primitive for a 64-byte key.
func newDeterministicAEAD(key []byte) (tink.DeterministicAEAD, error) {
	handle, err := newDeterministicAEADKeyHandle(key)
	if err != nil {
		return nil, err
	}

	primitive, err := daead.New(handle)
	if err != nil {
		return nil, fmt.Errorf("creating deterministic AEAD: %w", err)
	}

	return primitive, nil
}

// decryptChunks reads length-prefixed chunks from r until EOF and writes their plaintext to w.
// Each chunk is authenticated before it is written; the stream must end with a chunk
// sealed as final.
func decryptChunks(r io.Reader, w io.Writer, primitive tink.DeterministicAEAD, header []byte) error {
	bufReader := bufio.NewReaderSize(r, chunkSize+sivTagSize+4)

	for index := uint64(0); ; index++ {
		var size uint32
		if err := binary.Read(bufReader, binary.BigEndian, &size); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: stream truncated before final chunk", ErrAuthentication)
			}

			return fmt.Errorf("reading chunk size: %w", err)
		}

		if size < sivTagSize || size > chunkSize+sivTagSize {
			return fmt.Errorf("%w: chunk %d has invalid size %d", ErrAuthentication, index, size)
		}

		encrypted := make([]byte, size)
		if _, err := io.ReadFull(bufReader, encrypted); err != nil {
			return fmt.Errorf("%w: reading chunk %d: %w", ErrAuthentication, index, err)
		}

		_, peekErr := bufReader.Peek(1)
		final := errors.Is(peekErr, io.EOF)

		if peekErr != nil && !final {
			return fmt.Errorf("reading input: %w", peekErr)
		}

		decrypted, err := primitive.DecryptDeterministically(encrypted, buildChunkAssociatedData(header, index, final))
		if err != nil {
			return fmt.Errorf("%w: chunk %d", ErrAuthentication, index)
		}

		if _, err := w.Write(decrypted); err != nil {
			return fmt.Errorf("writing decrypted chunk: %w", err)
		}

		if final {
			return nil
		}
	}
}

// newDeterministicAEADKeyHandle creates a Tink keyset handle for AES-SIV from raw key bytes.
func newDeterministicAEADKeyHandle(key []byte) (*keyset.Handle, error) {
	aesSivKey := &aes_sivpb.AesSivKey{
		Version:  0,
		KeyValue: key,
	}

	serializedKey, err := proto.Marshal(aesSivKey)
	if err != nil {
		return nil, fmt.Errorf("serializing AesSivKey: %w", err)
	}

	keyData := &tinkpb.KeyData{
		TypeUrl:         "type.googleapis.com/google.crypto.tink.AesSivKey",
		Value:           serializedKey,
		KeyMaterialType: tinkpb.KeyData_SYMMETRIC,
	}

	keySet := &tinkpb.Keyset{
		PrimaryKeyId: 1,
		Key: []*tinkpb.Keyset_Key{
			{
				KeyData:          keyData,
				Status:           tinkpb.KeyStatusType_ENABLED,
				KeyId:            1,
				OutputPrefixType: tinkpb.OutputPrefixType_RAW,
			},
		},
	}

	serializedKeyset, err := proto.Marshal(keySet)
	if err != nil {
		return nil, fmt.Errorf("serializing keyset: %w", err)
	}

	handle, err := insecurecleartextkeyset.Read(keyset.NewBinaryReader(bytes.NewReader(serializedKeyset)))
	if err != nil {
		return nil, fmt.Errorf("creating keyset handle: %w", err)
	}

	return handle, nil
}
