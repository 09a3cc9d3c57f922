package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"econsensus/config"
)

// Encrypt seals a stored secret with the configured encryption key
func Encrypt(plaintext string) (string, error) {
	return EncryptWithKey([]byte(config.AppConfig.EncryptionKey), plaintext)
}

// Decrypt opens a secret sealed by Encrypt
func Decrypt(ciphertext string) (string, error) {
	return DecryptWithKey([]byte(config.AppConfig.EncryptionKey), ciphertext)
}

func EncryptWithKey(key []byte, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

func DecryptWithKey(key []byte, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	decoded, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	if len(decoded) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, sealed := decoded[:gcm.NonceSize()], decoded[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
