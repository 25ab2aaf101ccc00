package aescrypt_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/msomdec/microlearn/internal/aescrypt"
)

func TestRoundTrip(t *testing.T) {
	cases := map[string][]byte{
		"empty":         {},
		"short":         []byte("REG1,Alice"),
		"block aligned": bytes.Repeat([]byte("x"), 32),
		"unaligned":     bytes.Repeat([]byte("y"), 70),
		"unicode":       []byte("Zoë,Ñandú,東京"),
	}
	for name, plain := range cases {
		t.Run(name, func(t *testing.T) {
			enc, err := aescrypt.EncryptBytes(plain, "s3cret-päss")
			if err != nil {
				t.Fatalf("EncryptBytes: %v", err)
			}
			if !bytes.HasPrefix(enc, []byte("AES\x02\x00")) {
				t.Fatalf("unexpected header %q", enc[:5])
			}
			dec, err := aescrypt.DecryptBytes(enc, "s3cret-päss")
			if err != nil {
				t.Fatalf("DecryptBytes: %v", err)
			}
			if !bytes.Equal(dec, plain) {
				t.Fatalf("round trip mismatch: got %q, want %q", dec, plain)
			}
		})
	}
}

// The testdata streams carry pyAesCrypt's extension block and were produced
// outside this package by testdata/gen_fixtures.py on top of OpenSSL.
func TestDecryptKnownStreams(t *testing.T) {
	cases := []struct {
		file     string
		password string
	}{
		{"students.csv", "Secret123"},
		{"aligned.txt", "pässwörd"},
	}
	for _, tc := range cases {
		t.Run(tc.file, func(t *testing.T) {
			want, err := os.ReadFile(filepath.Join("testdata", tc.file))
			if err != nil {
				t.Fatal(err)
			}
			enc, err := os.ReadFile(filepath.Join("testdata", tc.file+".aes"))
			if err != nil {
				t.Fatal(err)
			}
			got, err := aescrypt.DecryptBytes(enc, tc.password)
			if err != nil {
				t.Fatalf("DecryptBytes: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("got %q, want %q", got, want)
			}

			if _, err := aescrypt.DecryptBytes(enc, tc.password+"x"); !errors.Is(err, aescrypt.ErrAuthentication) {
				t.Fatalf("expected ErrAuthentication for wrong password, got %v", err)
			}
		})
	}
}

func TestStreamRoundTrip(t *testing.T) {
	var enc, dec bytes.Buffer
	if err := aescrypt.Encrypt(&enc, strings.NewReader("hello roster"), "pw"); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if err := aescrypt.Decrypt(&dec, &enc, "pw"); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if dec.String() != "hello roster" {
		t.Fatalf("got %q", dec.String())
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	enc, err := aescrypt.EncryptBytes([]byte("data"), "right")
	if err != nil {
		t.Fatalf("EncryptBytes: %v", err)
	}
	_, err = aescrypt.DecryptBytes(enc, "wrong")
	if !errors.Is(err, aescrypt.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestDecryptTampered(t *testing.T) {
	enc, err := aescrypt.EncryptBytes(bytes.Repeat([]byte("z"), 40), "pw")
	if err != nil {
		t.Fatalf("EncryptBytes: %v", err)
	}
	// Flip a bit in the first ciphertext block after the 48+32 byte header.
	enc[len(enc)-33-16] ^= 0x01
	_, err = aescrypt.DecryptBytes(enc, "pw")
	if !errors.Is(err, aescrypt.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestDecryptInvalidFormat(t *testing.T) {
	for name, data := range map[string][]byte{
		"garbage":   []byte("not an aes file"),
		"version 1": []byte("AES\x01\x00"),
		"truncated": []byte("AES\x02\x00\x00\x00"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := aescrypt.DecryptBytes(data, "pw")
			if !errors.Is(err, aescrypt.ErrInvalidFormat) {
				t.Fatalf("expected ErrInvalidFormat, got %v", err)
			}
		})
	}
}

func TestEmptyPassword(t *testing.T) {
	if _, err := aescrypt.EncryptBytes([]byte("x"), ""); !errors.Is(err, aescrypt.ErrPassword) {
		t.Fatalf("expected ErrPassword, got %v", err)
	}
}
