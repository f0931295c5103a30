package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/cascade/pkg/domain"
)

const (
	// responsePrefix marks an encrypted LastResponse.
	responsePrefix = "enc:v1:"
	// envelopeKey holds the encrypted ExtractedVariables.
	envelopeKey = "__encrypted__"
)

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried when the active key fails, so keys can be rotated.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	Store
	config EncryptionConfig
}

// NewEncryptionMiddleware encrypts node outputs (last response and extracted
// variables) with AES-GCM before they reach the store and decrypts them on
// read. Prompts stay in clear text. Values written before encryption was
// enabled are returned as they are.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	return func(next Store) Store {
		return &encryptionMiddleware{Store: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) UpdateNode(ctx context.Context, id string, update domain.NodeUpdate) error {
	if update.LastResponse != nil {
		sealed, err := m.sealString(*update.LastResponse)
		if err != nil {
			return err
		}
		update.LastResponse = &sealed
	}
	if update.ExtractedVariables != nil {
		env, err := m.sealMap(update.ExtractedVariables)
		if err != nil {
			return err
		}
		update.ExtractedVariables = env
	}
	return m.Store.UpdateNode(ctx, id, update)
}

func (m *encryptionMiddleware) PutTree(ctx context.Context, root *domain.PromptNode) error {
	cloned := root.Clone()
	var err error
	cloned.Walk(func(n *domain.PromptNode, _ int) bool {
		err = m.sealNode(n)
		return err == nil
	})
	if err != nil {
		return err
	}
	return m.Store.PutTree(ctx, cloned)
}

func (m *encryptionMiddleware) CreateNode(ctx context.Context, parentID string, node domain.PromptNode) (*domain.PromptNode, error) {
	if err := m.sealNode(&node); err != nil {
		return nil, err
	}
	n, err := m.Store.CreateNode(ctx, parentID, node)
	if err != nil {
		return nil, err
	}
	return n, m.openNode(n)
}

func (m *encryptionMiddleware) GetNode(ctx context.Context, id string) (*domain.PromptNode, error) {
	n, err := m.Store.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	return n, m.openNode(n)
}

func (m *encryptionMiddleware) GetSubtree(ctx context.Context, rootID string) (*domain.PromptNode, error) {
	root, err := m.Store.GetSubtree(ctx, rootID)
	if err != nil {
		return nil, err
	}
	root.Walk(func(n *domain.PromptNode, _ int) bool {
		err = m.openNode(n)
		return err == nil
	})
	return root, err
}

func (m *encryptionMiddleware) ListRoots(ctx context.Context) ([]*domain.PromptNode, error) {
	roots, err := m.Store.ListRoots(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range roots {
		if err := m.openNode(r); err != nil {
			return nil, err
		}
	}
	return roots, nil
}

func (m *encryptionMiddleware) sealNode(n *domain.PromptNode) error {
	if n.LastResponse != "" {
		s, err := m.sealString(n.LastResponse)
		if err != nil {
			return err
		}
		n.LastResponse = s
	}
	if n.ExtractedVariables != nil {
		env, err := m.sealMap(n.ExtractedVariables)
		if err != nil {
			return err
		}
		n.ExtractedVariables = env
	}
	return nil
}

func (m *encryptionMiddleware) openNode(n *domain.PromptNode) error {
	if rest, ok := strings.CutPrefix(n.LastResponse, responsePrefix); ok {
		plain, err := m.open(rest)
		if err != nil {
			return fmt.Errorf("node %s: failed to decrypt response: %w", n.ID, err)
		}
		n.LastResponse = string(plain)
	}
	if blob, ok := n.ExtractedVariables[envelopeKey].(string); ok && len(n.ExtractedVariables) == 1 {
		plain, err := m.open(blob)
		if err != nil {
			return fmt.Errorf("node %s: failed to decrypt variables: %w", n.ID, err)
		}
		var vars map[string]any
		if err := json.Unmarshal(plain, &vars); err != nil {
			return fmt.Errorf("node %s: failed to unmarshal variables: %w", n.ID, err)
		}
		n.ExtractedVariables = vars
	}
	return nil
}

func (m *encryptionMiddleware) sealString(s string) (string, error) {
	ct, err := encrypt([]byte(s), m.config.ActiveKey)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt response: %w", err)
	}
	return responsePrefix + base64.StdEncoding.EncodeToString(ct), nil
}

func (m *encryptionMiddleware) sealMap(v map[string]any) (map[string]any, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal variables: %w", err)
	}
	ct, err := encrypt(plain, m.config.ActiveKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt variables: %w", err)
	}
	return map[string]any{envelopeKey: base64.StdEncoding.EncodeToString(ct)}, nil
}

func (m *encryptionMiddleware) open(b64 string) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	return decryptWithRotation(ct, m.config.ActiveKey, m.config.FallbackKeys)
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
