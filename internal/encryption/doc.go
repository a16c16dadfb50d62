// Package encryption implements the password-based file formats used by the native backends.
//
// OpenSSL writes the format of `openssl enc -aes-256-cbc -salt -pbkdf2`, so its output can be
// read by openssl(1) and the other way round. Sealed writes an authenticated, chunked format
// built on tink's AES-SIV, where a wrong password is detected reliably instead of guessed from
// a padding check.
package encryption
