package main

import (
	"bytes"
	"encoding/base64"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestConfigPrintMasksSecrets(t *testing.T) {
	t.Setenv("IDENTITY_JWT_KEY", "0123456789abcdef0123456789abcdef")
	out, err := run(t, "config", "print")
	require.NoError(t, err)
	assert.NotContains(t, out, "0123456789abcdef")
	assert.Contains(t, out, "rate_limit:")
}

func TestConfigCheck(t *testing.T) {
	_, err := run(t, "config", "check")
	require.ErrorContains(t, err, "IDENTITY_JWT_KEY")

	t.Setenv("IDENTITY_JWT_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("IDENTITY_MFA_SEAL_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))
	out, err := run(t, "config", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "hs256_signing")
	assert.Contains(t, out, "config ok")
}

func TestMigrateArgs(t *testing.T) {
	_, err := run(t, "migrate", "sideways")
	require.Error(t, err)

	_, err = run(t, "migrate", "up")
	require.ErrorContains(t, err, "database.driver=postgres")
}
