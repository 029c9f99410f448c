// Package cipher encrypts and decrypts job artifacts with AES-256-CBC. The
// on-disk format matches `openssl enc -aes-256-cbc -salt -pbkdf2 -md sha256`:
// a "Salted__" header, an 8-byte salt, and PKCS#7-padded ciphertext, with
// key and IV derived by PBKDF2-HMAC-SHA256 at 10000 iterations. Artifacts
// stay recoverable with stock openssl even without this tool.
package cipher

import (
	"bytes"
	"context"
	"crypto/aes"
	cryptocipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hostvault/hostvault/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltMagic  = "Salted__"
	saltLen    = 8
	keyLen     = 32
	iterations = 10000
	chunkSize  = 64 * 1024 // must be a multiple of aes.BlockSize
)

// Service defines the interface for file encryption operations.
type Service interface {
	Encrypt(ctx context.Context, plainFile, cipherFile, passphrase string) (*models.CipherResult, error)
	Decrypt(ctx context.Context, cipherFile, plainFile, passphrase string) (*models.CipherResult, error)
}

// Impl implements the Service interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new cipher service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

func deriveKeyIV(passphrase string, salt []byte) (key, iv []byte) {
	material := pbkdf2.Key([]byte(passphrase), salt, iterations, keyLen+aes.BlockSize, sha256.New)
	return material[:keyLen], material[keyLen:]
}

// Encrypt writes an encrypted copy of plainFile to cipherFile. The plaintext
// is left in place; removing it is the caller's decision.
func (s *Impl) Encrypt(ctx context.Context, plainFile, cipherFile, passphrase string) (*models.CipherResult, error) {
	s.logger.Info().Str("source", plainFile).Str("dest", cipherFile).Msg("encrypting")

	start := time.Now()

	in, err := os.Open(plainFile)
	if err != nil {
		return nil, fmt.Errorf("opening plaintext: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(cipherFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating ciphertext: %w", err)
	}
	defer func() { _ = out.Close() }()

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	key, iv := deriveKeyIV(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}

	if _, err := out.Write(append([]byte(saltMagic), salt...)); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	if err := encryptStream(ctx, out, in, cryptocipher.NewCBCEncrypter(block, iv)); err != nil {
		return &models.CipherResult{
			Duration: time.Since(start),
			Error:    fmt.Errorf("encrypting %s: %w", plainFile, err),
		}, nil
	}
	if err := out.Sync(); err != nil {
		return nil, fmt.Errorf("flushing ciphertext: %w", err)
	}

	result := &models.CipherResult{Path: cipherFile, Duration: time.Since(start)}
	if info, err := os.Stat(cipherFile); err == nil {
		result.SizeBytes = info.Size()
	}

	s.logger.Info().
		Str("dest", cipherFile).
		Int64("size", result.SizeBytes).
		Dur("duration", result.Duration).
		Msg("encryption completed")

	return result, nil
}

// Decrypt writes a decrypted copy of cipherFile to plainFile. A wrong
// passphrase surfaces as a padding error in the result.
func (s *Impl) Decrypt(ctx context.Context, cipherFile, plainFile, passphrase string) (*models.CipherResult, error) {
	s.logger.Info().Str("source", cipherFile).Str("dest", plainFile).Msg("decrypting")

	start := time.Now()

	in, err := os.Open(cipherFile)
	if err != nil {
		return nil, fmt.Errorf("opening ciphertext: %w", err)
	}
	defer func() { _ = in.Close() }()

	header := make([]byte, len(saltMagic)+saltLen)
	if _, err := io.ReadFull(in, header); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if !bytes.HasPrefix(header, []byte(saltMagic)) {
		return nil, fmt.Errorf("%s is not a salted cipher file", cipherFile)
	}

	key, iv := deriveKeyIV(passphrase, header[len(saltMagic):])
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}

	out, err := os.OpenFile(plainFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating plaintext: %w", err)
	}
	defer func() { _ = out.Close() }()

	if err := decryptStream(ctx, out, in, cryptocipher.NewCBCDecrypter(block, iv)); err != nil {
		return &models.CipherResult{
			Duration: time.Since(start),
			Error:    fmt.Errorf("decrypting %s: %w", cipherFile, err),
		}, nil
	}

	result := &models.CipherResult{Path: plainFile, Duration: time.Since(start)}
	if info, err := os.Stat(plainFile); err == nil {
		result.SizeBytes = info.Size()
	}

	s.logger.Info().
		Str("dest", plainFile).
		Int64("size", result.SizeBytes).
		Dur("duration", result.Duration).
		Msg("decryption completed")

	return result, nil
}

func encryptStream(ctx context.Context, dst io.Writer, src io.Reader, mode cryptocipher.BlockMode) error {
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := io.ReadFull(src, buf)
		switch err {
		case nil:
			mode.CryptBlocks(buf, buf)
			if _, werr := dst.Write(buf); werr != nil {
				return werr
			}
		case io.EOF, io.ErrUnexpectedEOF:
			// Final chunk, possibly empty: PKCS#7 always pads, so a source
			// that is an exact block multiple gains one full padding block.
			pad := aes.BlockSize - n%aes.BlockSize
			final := append(buf[:n], bytes.Repeat([]byte{byte(pad)}, pad)...)
			mode.CryptBlocks(final, final)
			if _, werr := dst.Write(final); werr != nil {
				return werr
			}
			return nil
		default:
			return err
		}
	}
}

func decryptStream(ctx context.Context, dst io.Writer, src io.Reader, mode cryptocipher.BlockMode) error {
	buf := make([]byte, chunkSize)
	var last []byte // previous decrypted chunk, held back until we know it is not final
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := io.ReadFull(src, buf)
		if n > 0 {
			if n%aes.BlockSize != 0 {
				return fmt.Errorf("truncated ciphertext")
			}
			chunk := make([]byte, n)
			mode.CryptBlocks(chunk, buf[:n])
			if last != nil {
				if _, werr := dst.Write(last); werr != nil {
					return werr
				}
			}
			last = chunk
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return err
		}
	}

	if len(last) == 0 {
		return fmt.Errorf("empty ciphertext")
	}

	pad := int(last[len(last)-1])
	if pad < 1 || pad > aes.BlockSize || pad > len(last) {
		return fmt.Errorf("wrong passphrase or corrupted ciphertext")
	}
	for _, b := range last[len(last)-pad:] {
		if int(b) != pad {
			return fmt.Errorf("wrong passphrase or corrupted ciphertext")
		}
	}

	_, err := dst.Write(last[:len(last)-pad])
	return err
}
