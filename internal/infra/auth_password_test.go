package infra

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/applockd/internal/domain"
)

func storeWithPassword(t *testing.T, password string) *memorySecretStore {
	t.Helper()
	store := newMemorySecretStore()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	require.NoError(t, store.SetSecret(SecretKeyPasswordHash, hash))
	return store
}

func TestPasswordAuthenticator_UnavailableWithoutHash(t *testing.T) {
	auth := NewPasswordAuthenticatorWithRunner(newMemorySecretStore(), &mockCommandRunner{}, zap.NewNop())

	assert.False(t, auth.Available())

	res := auth.Challenge(context.Background(), "unlock Notes")
	assert.Equal(t, domain.ChallengeUnavailable, res.Verdict)
}

func TestPasswordAuthenticator_CorrectPasswordSucceeds(t *testing.T) {
	store := storeWithPassword(t, "hunter2")
	runner := &mockCommandRunner{
		outputs: [][]byte{[]byte("button returned:OK, text returned:hunter2\n")},
	}
	auth := NewPasswordAuthenticatorWithRunner(store, runner, zap.NewNop())

	require.True(t, auth.Available())

	res := auth.Challenge(context.Background(), "unlock Notes")
	assert.Equal(t, domain.ChallengeSuccess, res.Verdict)
	assert.Equal(t, 1, runner.commandCount())
}

func TestPasswordAuthenticator_WrongPasswordRetriesThreeTimes(t *testing.T) {
	store := storeWithPassword(t, "hunter2")
	runner := &mockCommandRunner{
		outputs: [][]byte{
			[]byte("button returned:OK, text returned:wrong\n"),
			[]byte("button returned:OK, text returned:also wrong\n"),
			[]byte("button returned:OK, text returned:still wrong\n"),
		},
	}
	auth := NewPasswordAuthenticatorWithRunner(store, runner, zap.NewNop())

	res := auth.Challenge(context.Background(), "unlock Notes")
	assert.Equal(t, domain.ChallengeFailure, res.Verdict)
	assert.Equal(t, passwordAttempts, runner.commandCount())
}

func TestPasswordAuthenticator_ThirdAttemptCanSucceed(t *testing.T) {
	store := storeWithPassword(t, "hunter2")
	runner := &mockCommandRunner{
		outputs: [][]byte{
			[]byte("button returned:OK, text returned:nope\n"),
			[]byte("button returned:OK, text returned:nope\n"),
			[]byte("button returned:OK, text returned:hunter2\n"),
		},
	}
	auth := NewPasswordAuthenticatorWithRunner(store, runner, zap.NewNop())

	res := auth.Challenge(context.Background(), "unlock Notes")
	assert.Equal(t, domain.ChallengeSuccess, res.Verdict)
}

func TestPasswordAuthenticator_CancelledDialogFails(t *testing.T) {
	store := storeWithPassword(t, "hunter2")
	runner := &mockCommandRunner{
		outErrs: []error{errors.New("exit status 1")},
	}
	auth := NewPasswordAuthenticatorWithRunner(store, runner, zap.NewNop())

	res := auth.Challenge(context.Background(), "unlock Notes")
	assert.Equal(t, domain.ChallengeFailure, res.Verdict)
	assert.Equal(t, "dialog cancelled", res.Cause)
	assert.Equal(t, 1, runner.commandCount())
}

func TestPasswordAuthenticator_ExpiredContextDoesNotPrompt(t *testing.T) {
	store := storeWithPassword(t, "hunter2")
	runner := &mockCommandRunner{}
	auth := NewPasswordAuthenticatorWithRunner(store, runner, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := auth.Challenge(ctx, "unlock Notes")
	assert.Equal(t, domain.ChallengeFailure, res.Verdict)
	assert.Zero(t, runner.commandCount())
}

func TestParseDialogAnswer(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want string
		ok   bool
	}{
		{"plain", "button returned:OK, text returned:hunter2\n", "hunter2", true},
		{"empty answer", "button returned:OK, text returned:\n", "", true},
		{"comma in password", "button returned:OK, text returned:a,b,c\n", "a,b,c", true},
		{"no record", "gibberish\n", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseDialogAnswer(tt.out)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHashPassword_RejectsEmpty(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}

func TestChainAuthenticator_FirstAvailableWins(t *testing.T) {
	store := storeWithPassword(t, "hunter2")
	runner := &mockCommandRunner{
		outputs: [][]byte{[]byte("button returned:OK, text returned:hunter2\n")},
	}
	password := NewPasswordAuthenticatorWithRunner(store, runner, zap.NewNop())
	touchid := NewTouchIDAuthenticator(zap.NewNop()) // unavailable off darwin, skipped if so

	chain := NewChainAuthenticator(zap.NewNop(), touchid, password)
	require.True(t, chain.Available())

	res := chain.Challenge(context.Background(), "unlock Notes")
	// Either backend may answer depending on platform; off darwin the
	// password dialog must have been driven.
	if !touchid.Available() {
		assert.Equal(t, domain.ChallengeSuccess, res.Verdict)
		assert.Equal(t, 1, runner.commandCount())
	}
}

func TestChainAuthenticator_NoBackendIsUnavailable(t *testing.T) {
	chain := NewChainAuthenticator(zap.NewNop(),
		NewPasswordAuthenticatorWithRunner(newMemorySecretStore(), &mockCommandRunner{}, zap.NewNop()))

	assert.False(t, chain.Available())

	res := chain.Challenge(context.Background(), "unlock Notes")
	assert.Equal(t, domain.ChallengeUnavailable, res.Verdict)
}
