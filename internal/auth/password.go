package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/GehirnInc/crypt"
	"github.com/GehirnInc/crypt/md5_crypt"
	"github.com/GehirnInc/crypt/sha256_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"

	"github.com/hnrobert/macusers/internal/config"
	"github.com/hnrobert/macusers/internal/macusers"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnsupportedHash    = errors.New("unsupported password hash")
)

// Authenticator checks credentials against the provisioned operator
// account first and the local directory node after that.
type Authenticator struct {
	Dir *macusers.Directory
	Cfg *config.Store
}

func New(dir *macusers.Directory, cfg *config.Store) *Authenticator {
	return &Authenticator{Dir: dir, Cfg: cfg}
}

func (a *Authenticator) VerifyPassword(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" {
		return ErrInvalidCredentials
	}

	cfg, err := a.Cfg.Get()
	if err != nil {
		return err
	}
	if cfg.OperatorName != "" && username == cfg.OperatorName {
		if cfg.OperatorHash == "" {
			return ErrInvalidCredentials
		}
		ok, err := verifyCrypt(cfg.OperatorHash, password)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidCredentials
		}
		return nil
	}

	ok, err := a.Dir.Authenticate(ctx, username, password)
	if err != nil {
		// dscl itself failed; fall back to su(1) so login still works
		// while directory services misbehave.
		ok2, err2 := verifyWithSu(username, password)
		if err2 != nil {
			return err2
		}
		if !ok2 {
			return ErrInvalidCredentials
		}
		return nil
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}

func verifyCrypt(hash, password string) (bool, error) {
	// Support common crypt formats:
	// $1$ (md5-crypt), $5$ (sha256-crypt), $6$ (sha512-crypt).
	var crypters []crypt.Crypter
	crypters = append(crypters, sha512_crypt.New())
	crypters = append(crypters, sha256_crypt.New())
	crypters = append(crypters, md5_crypt.New())

	// Try known crypters. Verify returns nil on success.
	for _, c := range crypters {
		if err := c.Verify(hash, []byte(password)); err == nil {
			return true, nil
		}
	}

	// Detect an obviously unsupported hash prefix.
	if strings.HasPrefix(hash, "$y$") || strings.HasPrefix(hash, "$7$") || strings.HasPrefix(hash, "$2") {
		return false, ErrUnsupportedHash
	}
	return false, nil
}

// IsAdmin reports whether the user may hit admin-only endpoints. The
// operator account always qualifies; everyone else needs admin-group
// membership.
func (a *Authenticator) IsAdmin(ctx context.Context, username string) (bool, error) {
	cfg, err := a.Cfg.Get()
	if err != nil {
		return false, err
	}
	if cfg.OperatorName != "" && username == cfg.OperatorName {
		return true, nil
	}
	ok, err := a.Dir.IsMember(ctx, username, macusers.AdminGroup)
	if err != nil {
		if errors.Is(err, macusers.ErrUserNotFound) || errors.Is(err, macusers.ErrGroupNotFound) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

func HumanAuthError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password."
	case errors.Is(err, ErrUnsupportedHash):
		return "The operator credential uses an unsupported hash format."
	default:
		return fmt.Sprintf("Authentication failed: %v", err)
	}
}
