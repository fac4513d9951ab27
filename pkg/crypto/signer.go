package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
)

type Signer struct {
	secretKey []byte
	logger    *slog.Logger
}

func NewSigner(secretKey string, logger *slog.Logger) *Signer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signer{
		secretKey: []byte(secretKey),
		logger:    logger,
	}
}

// Enabled reports whether a signing secret is configured. Verification is
// only enforced when it is.
func (s *Signer) Enabled() bool {
	return len(s.secretKey) > 0
}

func (s *Signer) Sign(data []byte) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write(data)
	signature := mac.Sum(nil)
	return hex.EncodeToString(signature)
}

func (s *Signer) Verify(data []byte, signature string) (bool, error) {
	expectedSignature := s.Sign(data)

	if !hmac.Equal([]byte(expectedSignature), []byte(signature)) {
		s.logger.Warn("Signature verification failed",
			slog.String("expected", expectedSignature),
			slog.String("received", signature))
		return false, fmt.Errorf("invalid signature")
	}

	return true, nil
}

// SignProcessingTrigger signs a process-due request so external schedulers
// can authenticate their triggers.
func (s *Signer) SignProcessingTrigger(workspaceID string, asOfUnix int64) string {
	data := fmt.Sprintf("%s:%d", workspaceID, asOfUnix)
	return s.Sign([]byte(data))
}

func (s *Signer) VerifyProcessingTrigger(workspaceID string, asOfUnix int64, signature string) (bool, error) {
	data := fmt.Sprintf("%s:%d", workspaceID, asOfUnix)
	return s.Verify([]byte(data), signature)
}
