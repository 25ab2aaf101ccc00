// Package aescrypt reads and writes the AES Crypt stream format, version 2.
//
// A stream is laid out as:
//
//	"AES" | version 0x02 | reserved 0x00
//	extensions: repeated (uint16 length | bytes), terminated by a zero length
//	IV1 (16)
//	AES-256-CBC(key, IV1, IV2 | session key) (48)
//	HMAC-SHA256(key, previous 48 bytes) (32)
//	AES-256-CBC(session key, IV2, padded plaintext)
//	plaintext length mod 16 (1)
//	HMAC-SHA256(session key, ciphertext) (32)
//
// The key is the password stretched with 8192 rounds of SHA-256 over the
// IV and the UTF-16LE encoded password.
package aescrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
)

const (
	version        = 2
	kdfRounds      = 8192
	keySize        = 32
	macSize        = sha256.Size
	maxPasswordLen = 1024
	createdBy      = "microlearn"
	containerSize  = 128
)

var (
	// ErrInvalidFormat is returned when the input is not an AES Crypt v2 stream.
	ErrInvalidFormat = errors.New("aescrypt: invalid format")
	// ErrAuthentication is returned when a MAC check fails: the password is
	// wrong or the stream was modified.
	ErrAuthentication = errors.New("aescrypt: wrong password or corrupted data")
	// ErrPassword is returned for an empty or oversized password.
	ErrPassword = errors.New("aescrypt: invalid password")
)

// Encrypt reads all of r and writes the encrypted stream to w.
func Encrypt(w io.Writer, r io.Reader, password string) error {
	plain, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read plaintext: %w", err)
	}
	out, err := EncryptBytes(plain, password)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// Decrypt reads all of r and writes the decrypted plaintext to w.
func Decrypt(w io.Writer, r io.Reader, password string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read ciphertext: %w", err)
	}
	out, err := DecryptBytes(data, password)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// EncryptBytes encrypts plain with password.
func EncryptBytes(plain []byte, password string) ([]byte, error) {
	pw, err := encodePassword(password)
	if err != nil {
		return nil, err
	}

	iv1 := make([]byte, aes.BlockSize)
	sessionIV := make([]byte, aes.BlockSize)
	sessionKey := make([]byte, keySize)
	for _, b := range [][]byte{iv1, sessionIV, sessionKey} {
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate random bytes: %w", err)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("AES")
	buf.WriteByte(version)
	buf.WriteByte(0)
	writeExtension(&buf, []byte("CREATED_BY\x00"+createdBy))
	writeExtension(&buf, make([]byte, containerSize))
	writeExtension(&buf, nil)
	buf.Write(iv1)

	key := stretch(pw, iv1)
	header := append(append([]byte{}, sessionIV...), sessionKey...)
	encHeader, err := cbcEncrypt(key, iv1, header)
	if err != nil {
		return nil, err
	}
	buf.Write(encHeader)
	buf.Write(mac(key, encHeader))

	fs16 := len(plain) % aes.BlockSize
	padded := plain
	if fs16 != 0 {
		padLen := aes.BlockSize - fs16
		padded = append(append([]byte{}, plain...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
	}
	body, err := cbcEncrypt(sessionKey, sessionIV, padded)
	if err != nil {
		return nil, err
	}
	buf.Write(body)
	buf.WriteByte(byte(fs16))
	buf.Write(mac(sessionKey, body))

	return buf.Bytes(), nil
}

// DecryptBytes decrypts an AES Crypt v2 stream.
func DecryptBytes(data []byte, password string) ([]byte, error) {
	pw, err := encodePassword(password)
	if err != nil {
		return nil, err
	}

	if len(data) < 5 || string(data[:3]) != "AES" {
		return nil, fmt.Errorf("%w: missing AES header", ErrInvalidFormat)
	}
	if data[3] != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, data[3])
	}
	rest := data[5:]

	for {
		if len(rest) < 2 {
			return nil, fmt.Errorf("%w: truncated extensions", ErrInvalidFormat)
		}
		n := int(binary.BigEndian.Uint16(rest))
		rest = rest[2:]
		if n == 0 {
			break
		}
		if len(rest) < n {
			return nil, fmt.Errorf("%w: truncated extension", ErrInvalidFormat)
		}
		rest = rest[n:]
	}

	const headerLen = aes.BlockSize + 48 + macSize
	if len(rest) < headerLen+1+macSize {
		return nil, fmt.Errorf("%w: truncated stream", ErrInvalidFormat)
	}
	iv1 := rest[:aes.BlockSize]
	encHeader := rest[aes.BlockSize : aes.BlockSize+48]
	headerMAC := rest[aes.BlockSize+48 : headerLen]
	rest = rest[headerLen:]

	key := stretch(pw, iv1)
	if !hmac.Equal(mac(key, encHeader), headerMAC) {
		return nil, ErrAuthentication
	}
	header, err := cbcDecrypt(key, iv1, encHeader)
	if err != nil {
		return nil, err
	}
	sessionIV, sessionKey := header[:aes.BlockSize], header[aes.BlockSize:]

	body := rest[:len(rest)-1-macSize]
	fs16 := int(rest[len(rest)-1-macSize])
	bodyMAC := rest[len(rest)-macSize:]
	if len(body)%aes.BlockSize != 0 || fs16 >= aes.BlockSize || (len(body) == 0 && fs16 != 0) {
		return nil, fmt.Errorf("%w: bad ciphertext length", ErrInvalidFormat)
	}
	if !hmac.Equal(mac(sessionKey, body), bodyMAC) {
		return nil, ErrAuthentication
	}
	plain, err := cbcDecrypt(sessionKey, sessionIV, body)
	if err != nil {
		return nil, err
	}
	if trim := (aes.BlockSize - fs16) % aes.BlockSize; trim != 0 {
		plain = plain[:len(plain)-trim]
	}
	return plain, nil
}

func encodePassword(password string) ([]byte, error) {
	if password == "" || len([]rune(password)) > maxPasswordLen {
		return nil, ErrPassword
	}
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	pw, err := enc.Bytes([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPassword, err)
	}
	return pw, nil
}

func stretch(password, iv []byte) []byte {
	digest := make([]byte, keySize)
	copy(digest, iv)
	for range kdfRounds {
		h := sha256.New()
		h.Write(digest)
		h.Write(password)
		digest = h.Sum(digest[:0])
	}
	return digest
}

func mac(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func writeExtension(buf *bytes.Buffer, ext []byte) {
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(ext)))
	buf.Write(n[:])
	buf.Write(ext)
}

func cbcEncrypt(key, iv, plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plain)
	return out, nil
}

func cbcDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}
