package credential

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/opst/mlgate/pkg/auth"
	"github.com/opst/mlgate/pkg/auth/token"
	kcs "github.com/opst/mlgate/pkg/configs/server"
	"golang.org/x/crypto/bcrypt"
)

// Issuer issues a token for an authenticated subject.
type Issuer interface {
	Issue(subject string, role auth.Role) (token.Issued, error)
}

type Verifier struct {
	store  Store
	issuer Issuer
	logger echo.Logger

	// compared when the username is unknown, to spend the same time as known one.
	dummy Credential
}

func NewVerifier(store Store, issuer Issuer, logger echo.Logger) (*Verifier, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword(seed, bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Verifier{
		store:  store,
		issuer: issuer,
		logger: logger,
		dummy:  Credential{SecretHash: hash},
	}, nil
}

// Authenticate checks username and secret, and issues a token on success.
//
// # Returns
//
// - token.Issued: token with the role of the matched credential.
//
// - error: [ErrInvalidCredentials] when username or secret is empty, unknown, or mismatched.
// [kcs.ErrConfiguration] when no admin credential is configured.
// Other errors come from the store or the issuer.
func (v *Verifier) Authenticate(ctx context.Context, username string, secret string) (token.Issued, error) {
	if username == "" || secret == "" {
		v.logger.Warnf("login failed: username or password is empty")
		return token.Issued{}, ErrInvalidCredentials
	}

	hasAdmin, err := v.store.HasAdmin(ctx)
	if err != nil {
		return token.Issued{}, err
	}
	if !hasAdmin {
		v.logger.Error("login refused: no admin credential is configured")
		return token.Issued{}, fmt.Errorf("%w: admin credential is not configured", kcs.ErrConfiguration)
	}

	cred, err := v.store.Lookup(ctx, username)
	if errors.Is(err, ErrMissing) {
		v.dummy.Match(secret)
		v.logger.Warnf("login failed for %q", username)
		return token.Issued{}, ErrInvalidCredentials
	} else if err != nil {
		return token.Issued{}, err
	}

	if !cred.Match(secret) {
		v.logger.Warnf("login failed for %q", username)
		return token.Issued{}, ErrInvalidCredentials
	}

	issued, err := v.issuer.Issue(cred.Subject, cred.Role)
	if err != nil {
		return token.Issued{}, err
	}
	v.logger.Infof("login succeeded for %q (role = %s)", cred.Subject, cred.Role)
	return issued, nil
}
