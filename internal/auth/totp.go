package auth

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP parameters: RFC 6238 defaults shared by every mainstream
// authenticator app. Changing these breaks already-provisioned secrets.
const (
	totpPeriod = 30 // seconds per step
	totpSkew   = 1  // accept one step either side for clock drift
)

// GenerateTOTPSecret creates a new TOTP secret for a user and returns
// the raw base32 secret plus the otpauth:// provisioning URI.
//
// The secret and URI are disclosed exactly once, in the response to the
// enable call. The secret is considered active immediately: the next
// login will demand a code.
func GenerateTOTPSecret(issuer, accountName string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("generating totp secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// VerifyTOTPCode checks a 6-digit code against a secret, accepting the
// current time step plus one step either side (±30s) for clock drift.
// A code older than that is rejected even if it was once valid.
func VerifyTOTPCode(code, secret string) bool {
	return VerifyTOTPCodeAt(code, secret, time.Now())
}

// VerifyTOTPCodeAt is VerifyTOTPCode with an explicit clock, for tests.
func VerifyTOTPCodeAt(code, secret string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
