package server

import (
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfSignedTLSGeneratesAndReuses(t *testing.T) {
	dir := t.TempDir()

	first, err := TLSConfig("", "", dir)
	require.NoError(t, err)
	require.Len(t, first.Certificates, 1)
	assert.FileExists(t, filepath.Join(dir, "cert.pem"))
	assert.FileExists(t, filepath.Join(dir, "key.pem"))

	leaf, err := x509.ParseCertificate(first.Certificates[0].Certificate[0])
	require.NoError(t, err)
	assert.Contains(t, leaf.DNSNames, "localhost")

	second, err := TLSConfig("", "", dir)
	require.NoError(t, err)
	assert.Equal(t, first.Certificates[0].Certificate[0], second.Certificates[0].Certificate[0])
}

func TestTLSConfigFromFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := TLSConfig("", "", dir)
	require.NoError(t, err)

	cfg, err := TLSConfig(filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem"), t.TempDir())
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
}

func TestTLSConfigMissingFiles(t *testing.T) {
	_, err := TLSConfig("/nonexistent/cert.pem", "/nonexistent/key.pem", t.TempDir())
	assert.Error(t, err)
}

func TestSelfSignedTLSRegeneratesCorruptCache(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cert.pem"), []byte("junk"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "key.pem"), []byte("junk"), 0o600))

	cfg, err := TLSConfig("", "", dir)
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
}
