package crypto

import (
	"context"
	"fmt"
	"strings"
)

const mockPrefix = "mock:"

// MockEncryptor implements Encryptor for local development (no KMS required).
// Ciphertext is "mock:<accountID>:<plaintext>" so an account mismatch still fails.
type MockEncryptor struct{}

func NewMockEncryptor() *MockEncryptor {
	return &MockEncryptor{}
}

func (m *MockEncryptor) Encrypt(ctx context.Context, accountID, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return mockPrefix + accountID + ":" + plaintext, nil
}

func (m *MockEncryptor) Decrypt(ctx context.Context, accountID, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	bound := mockPrefix + accountID + ":"
	if !strings.HasPrefix(ciphertext, bound) {
		return "", fmt.Errorf("failed to decrypt data: ciphertext not bound to account %q", accountID)
	}
	return ciphertext[len(bound):], nil
}
