package encryption

import "errors"

var (
	// ErrEmptyData is returned when attempting to process empty input data.
	ErrEmptyData = errors.New("empty data")
	// ErrInvalidPadding is returned when PKCS7 padding is malformed.
	ErrInvalidPadding = errors.New("invalid padding")
	// ErrInvalidBlockSize is returned when encrypted data length is not aligned with AES block size.
	ErrInvalidBlockSize = errors.New("ciphertext is not a multiple of block size")
	// ErrBadDecrypt is returned when CBC decryption produced garbage, almost always a wrong password.
	// The message matches what openssl(1) prints in the same situation.
	ErrBadDecrypt = errors.New("bad decrypt")
	// ErrAuthentication is returned when a sealed chunk fails authentication:
	// the password is wrong or the file was modified.
	ErrAuthentication = errors.New("message authentication failed")
	// ErrInvalidHeader is returned when a file does not start with a recognised header.
	ErrInvalidHeader = errors.New("invalid header")
	// ErrEmptyPassword is returned by the native formats, which refuse to derive a key from nothing.
	ErrEmptyPassword = errors.New("empty password")
)
