package encryption

import (
	"bufio"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
)

// encryptCBC streams r through AES-CBC into w, padding the final block.
func encryptCBC(block cipher.Block, iv []byte, r io.Reader, w io.Writer) error {
	cbcMode := cipher.NewCBCEncrypter(block, iv)
	bufReader := bufio.NewReaderSize(r, defaultBufferSize)

	buf := getBuffer()
	defer putBuffer(buf)

	pending := make([]byte, 0, defaultBufferSize+aes.BlockSize)

	for {
		n, err := bufReader.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
		}

		isEOF := errors.Is(err, io.EOF)
		if err != nil && !isEOF {
			return fmt.Errorf("reading input: %w", err)
		}

		if isEOF {
			padded := pkcs7Pad(pending, aes.BlockSize)
			cbcMode.CryptBlocks(padded, padded)

			if _, err := w.Write(padded); err != nil {
				return fmt.Errorf("writing final encrypted block: %w", err)
			}

			return nil
		}

		full := len(pending) - len(pending)%aes.BlockSize
		if full == 0 {
			continue
		}

		cbcMode.CryptBlocks(pending[:full], pending[:full])

		if _, err := w.Write(pending[:full]); err != nil {
			return fmt.Errorf("writing encrypted block: %w", err)
		}

		pending = append(pending[:0], pending[full:]...)
	}
}

// decryptCBC streams r through AES-CBC into w.
// The last block is held back until EOF so its padding can be verified;
// a padding failure is reported as ErrBadDecrypt.
func decryptCBC(block cipher.Block, iv []byte, r io.Reader, w io.Writer) error {
	cbcMode := cipher.NewCBCDecrypter(block, iv)
	bufReader := bufio.NewReaderSize(r, defaultBufferSize)

	buf := getBuffer()
	defer putBuffer(buf)

	pending := make([]byte, 0, defaultBufferSize+aes.BlockSize)

	for {
		n, err := bufReader.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
		}

		isEOF := errors.Is(err, io.EOF)
		if err != nil && !isEOF {
			return fmt.Errorf("reading input: %w", err)
		}

		if isEOF {
			if len(pending) == 0 || len(pending)%aes.BlockSize != 0 {
				return ErrInvalidBlockSize
			}

			cbcMode.CryptBlocks(pending, pending)

			unpadded, err := pkcs7Unpad(pending[len(pending)-aes.BlockSize:])
			if err != nil {
				return fmt.Errorf("%w: %w", ErrBadDecrypt, err)
			}

			tail := pending[:len(pending)-aes.BlockSize+len(unpadded)]

			if _, err := w.Write(tail); err != nil {
				return fmt.Errorf("writing final decrypted block: %w", err)
			}

			return nil
		}

		// Without a partial block the newest complete block may be the last one.
		full := len(pending) - len(pending)%aes.BlockSize
		if full == len(pending) {
			full -= aes.BlockSize
		}

		if full <= 0 {
			continue
		}

		cbcMode.CryptBlocks(pending[:full], pending[:full])

		if _, err := w.Write(pending[:full]); err != nil {
			return fmt.Errorf("writing decrypted block: %w", err)
		}

		pending = append(pending[:0], pending[full:]...)
	}
}
