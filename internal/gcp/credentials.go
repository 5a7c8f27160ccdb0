package gcp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

// ServiceAccountKey is the subset of a service account key file needed for
// the JWT bearer token exchange.
type ServiceAccountKey struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

// encryptedEnvelope is the at-rest format for password-protected key files:
// PBKDF2-HMAC-SHA256 derives an AES-256 key, AES-GCM seals the key JSON.
// All fields are base64 encoded.
type encryptedEnvelope struct {
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Tag        string `json:"tag"`
	Ciphertext string `json:"ciphertext"`
}

const (
	kdfIterations = 480000
	kdfKeyLen     = 32
)

// LoadKey reads a service account key file. Files in the encrypted envelope
// format are decrypted with password; plain key JSON is accepted as-is.
func LoadKey(path, password string) (*ServiceAccountKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	var envelope encryptedEnvelope
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Ciphertext != "" {
		if password == "" {
			return nil, fmt.Errorf("credentials file %s is encrypted but no password was provided", path)
		}
		data, err = decryptEnvelope(&envelope, password)
		if err != nil {
			return nil, fmt.Errorf("decrypt credentials file: %w", err)
		}
	}

	key := &ServiceAccountKey{}
	if err := json.Unmarshal(data, key); err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("credentials file %s is missing client_email or private_key", path)
	}
	if key.TokenURI == "" {
		key.TokenURI = defaultTokenURI
	}
	return key, nil
}

func decryptEnvelope(envelope *encryptedEnvelope, password string) ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(envelope.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(envelope.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(envelope.Tag)
	if err != nil {
		return nil, fmt.Errorf("decode tag: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(envelope.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	derived := pbkdf2.Key([]byte(password), salt, kdfIterations, kdfKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	// The sealing side stores the GCM tag separately; Open expects it
	// appended to the ciphertext.
	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("wrong password or corrupted credentials file")
	}
	return plaintext, nil
}
