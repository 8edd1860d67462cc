// Package payment decides whether a video download has been paid for.
package payment

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"toonlab/internal/domain"
	"toonlab/internal/infra"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Claim is what a client submits to unlock a download.
type Claim struct {
	VideoID         string
	TransactionHash string
	// ClientVerified is the legacy client-asserted flag. Only ClaimVerifier
	// looks at it.
	ClientVerified bool
}

// Verifier confirms a payment claim. It returns nil when the payment is
// confirmed, domain.ErrPaymentRequired when it is not, domain.ErrValidation
// for malformed claims and domain.ErrUnavailable when the check could not run.
type Verifier interface {
	Verify(ctx context.Context, claim Claim) error
}

// ValidateTransactionHash normalises and checks a transaction hash.
func ValidateTransactionHash(hash string) (string, error) {
	hash = strings.TrimSpace(hash)
	if !txHashPattern.MatchString(hash) {
		return "", fmt.Errorf("%w: transaction hash must be 0x followed by 64 hex digits", domain.ErrValidation)
	}
	return strings.ToLower(hash), nil
}

// ClaimVerifier trusts the client-asserted flag. It exists for clients that
// predate receipt verification and logs every use.
type ClaimVerifier struct {
	logger *infra.Logger
}

// NewClaimVerifier builds the legacy verifier.
func NewClaimVerifier(logger *infra.Logger) *ClaimVerifier {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &ClaimVerifier{logger: logger}
}

func (v *ClaimVerifier) Verify(_ context.Context, claim Claim) error {
	if _, err := ValidateTransactionHash(claim.TransactionHash); err != nil {
		return err
	}
	v.logger.Warn().
		Str("video_id", claim.VideoID).
		Str("tx_hash", claim.TransactionHash).
		Bool("client_verified", claim.ClientVerified).
		Msg("payment: accepting client-asserted payment without on-chain verification")
	if !claim.ClientVerified {
		return fmt.Errorf("%w: payment not verified", domain.ErrPaymentRequired)
	}
	return nil
}

var _ Verifier = (*ClaimVerifier)(nil)
