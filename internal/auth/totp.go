package auth

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30
	totpDigits = otp.DigitsSix

	// One step of clock skew is accepted on either side of the current
	// TOTP window.
	totpSkew = 1
)

// TOTPEnrollment is the result of generating a fresh secret: the secret to
// persist and the otpauth URL for provisioning an authenticator app.
type TOTPEnrollment struct {
	Secret string
	URL    string
}

// GenerateTOTPSecret creates a fresh secret for the given account.
func GenerateTOTPSecret(issuer, email string) (TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: email,
		Period:      totpPeriod,
		Digits:      totpDigits,
	})
	if err != nil {
		return TOTPEnrollment{}, err
	}
	return TOTPEnrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// VerifyTOTP checks a code against the secret at the given instant,
// accepting one step of skew before and after.
func VerifyTOTP(secret, code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period: totpPeriod,
		Skew:   totpSkew,
		Digits: totpDigits,
	})
	return err == nil && ok
}

// TOTPStep maps an instant to its TOTP step counter. Used to enforce
// single use of a code within one step window.
func TOTPStep(at time.Time) int64 {
	return at.UTC().Unix() / totpPeriod
}
