package auth

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnrobert/macusers/internal/config"
	"github.com/hnrobert/macusers/internal/macusers"
)

// Reference sha512-crypt vector from the SHA-crypt specification.
const operatorHash = "$6$saltstring$svn8UoSVapNtMuq1ukKS4tPQd8iKwSMHWjl/O817G3uBnIFNjnQJuesI68u4OTLiBFdcbYEdFCoEOfaS35inz1"

type fakeResp struct {
	stdout string
	stderr string
	err    error
}

type fakeRunner struct {
	responses map[string]fakeResp
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, string, error) {
	key := name + " " + strings.Join(args, " ")
	r, ok := f.responses[key]
	if !ok {
		return "", "", errors.New("unexpected command: " + key)
	}
	return r.stdout, r.stderr, r.err
}

func newTestAuthenticator(t *testing.T, responses map[string]fakeResp) *Authenticator {
	t.Helper()
	cfg := config.NewStore(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, cfg.Ensure())
	return New(macusers.New(&fakeRunner{responses: responses}), cfg)
}

func TestVerifyOperatorPassword(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	require.NoError(t, a.Cfg.SetOperator("operator", operatorHash))

	assert.NoError(t, a.VerifyPassword(context.Background(), "operator", "Hello world!"))
	assert.ErrorIs(t, a.VerifyPassword(context.Background(), "operator", "nope"), ErrInvalidCredentials)
}

func TestVerifyOperatorUnsupportedHash(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	require.NoError(t, a.Cfg.SetOperator("operator", "$2a$10$abcdefghijklmnopqrstuv"))

	err := a.VerifyPassword(context.Background(), "operator", "whatever")
	assert.ErrorIs(t, err, ErrUnsupportedHash)
}

func TestVerifyDirectoryPassword(t *testing.T) {
	a := newTestAuthenticator(t, map[string]fakeResp{
		"/usr/bin/dscl /Local/Default -authonly jane secret": {},
		"/usr/bin/dscl /Local/Default -authonly jane wrong": {
			err: errors.New("dscl: eDSAuthFailed"),
		},
	})

	assert.NoError(t, a.VerifyPassword(context.Background(), "jane", "secret"))
	assert.ErrorIs(t, a.VerifyPassword(context.Background(), "jane", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, a.VerifyPassword(context.Background(), "  ", "x"), ErrInvalidCredentials)
}

func TestIsAdmin(t *testing.T) {
	a := newTestAuthenticator(t, map[string]fakeResp{
		"/usr/bin/dsmemberutil checkmembership -U jane -G admin": {
			stdout: "user is a member of the group\n",
		},
		"/usr/bin/dsmemberutil checkmembership -U mike -G admin": {
			stdout: "user is not a member of the group\n",
		},
		"/usr/bin/dsmemberutil checkmembership -U ghost -G admin": {
			err: errors.New("the user could not be found"),
		},
	})
	require.NoError(t, a.Cfg.SetOperator("operator", operatorHash))

	for name, want := range map[string]bool{
		"operator": true,
		"jane":     true,
		"mike":     false,
		"ghost":    false,
	} {
		got, err := a.IsAdmin(context.Background(), name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}

func TestHumanAuthError(t *testing.T) {
	assert.Empty(t, HumanAuthError(nil))
	assert.Equal(t, "Invalid username or password.", HumanAuthError(ErrInvalidCredentials))
	assert.Contains(t, HumanAuthError(errors.New("boom")), "boom")
}
