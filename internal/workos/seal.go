package workos

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Sealed cookie layout: base64url(salt[16] || nonce[12] || AES-256-GCM
// ciphertext). The key is derived from the cookie password with PBKDF2-SHA256.
const (
	sealSaltLen   = 16
	sealNonceLen  = 12
	sealKeyLen    = 32
	sealKDFRounds = 4096
)

var errMalformedSeal = errors.New("malformed sealed session")

func unseal(sealed, password string) (sessionPayload, error) {
	if password == "" {
		return sessionPayload{}, errors.New("cookie password not configured")
	}
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return sessionPayload{}, errMalformedSeal
	}
	if len(raw) < sealSaltLen+sealNonceLen {
		return sessionPayload{}, errMalformedSeal
	}

	salt := raw[:sealSaltLen]
	nonce := raw[sealSaltLen : sealSaltLen+sealNonceLen]
	ciphertext := raw[sealSaltLen+sealNonceLen:]

	gcm, err := sealCipher(password, salt)
	if err != nil {
		return sessionPayload{}, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return sessionPayload{}, fmt.Errorf("decrypt sealed session: %w", err)
	}

	var payload sessionPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return sessionPayload{}, errMalformedSeal
	}
	return payload, nil
}

// SealSession is the inverse of the cookie unseal. The proxy never seals in
// production (WorkOS does); tests and local tooling use this to mint cookies.
func SealSession(accessToken, refreshToken, password string) (string, error) {
	plaintext, err := json.Marshal(sessionPayload{AccessToken: accessToken, RefreshToken: refreshToken})
	if err != nil {
		return "", fmt.Errorf("marshal session payload: %w", err)
	}

	salt := make([]byte, sealSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, sealNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	gcm, err := sealCipher(password, salt)
	if err != nil {
		return "", err
	}
	sealed := append(append(salt, nonce...), gcm.Seal(nil, nonce, plaintext, nil)...)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func sealCipher(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, sealKDFRounds, sealKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}
