package middleware

import (
	"context"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOIDCHTTPClient_TrustsProvidedCA(t *testing.T) {
	tlsServer := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer tlsServer.Close()

	caPath := filepath.Join(t.TempDir(), "issuer_ca.crt")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: tlsServer.Certificate().Raw})
	require.NoError(t, os.WriteFile(caPath, certPEM, 0o600))

	client, err := newOIDCHTTPClient(OIDCAuthConfig{CAFile: caPath})
	require.NoError(t, err)

	resp, err := client.Get(tlsServer.URL)
	require.NoError(t, err, "custom CA should be trusted")
	_ = resp.Body.Close()
}

func TestNewOIDCHTTPClient_FailsWithoutCAForSelfSignedIssuer(t *testing.T) {
	tlsServer := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer tlsServer.Close()

	client, err := newOIDCHTTPClient(OIDCAuthConfig{})
	require.NoError(t, err)

	_, err = client.Get(tlsServer.URL)
	assert.Error(t, err)
}

func TestNewOIDCHTTPClient_CAFileErrors(t *testing.T) {
	dir := t.TempDir()
	invalid := filepath.Join(dir, "invalid_ca.crt")
	require.NoError(t, os.WriteFile(invalid, []byte("not a certificate"), 0o600))

	_, err := newOIDCHTTPClient(OIDCAuthConfig{CAFile: invalid})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contains no certificates")

	_, err = newOIDCHTTPClient(OIDCAuthConfig{CAFile: filepath.Join(dir, "missing.crt")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read oidc CA file")
}

func TestNewOIDCVerifier_RejectsBadIssuer(t *testing.T) {
	tests := []struct {
		name string
		cfg  OIDCAuthConfig
		want string
	}{
		{name: "missing audience", cfg: OIDCAuthConfig{IssuerURL: "https://issuer.example"}, want: "issuer/audience not configured"},
		{name: "missing issuer", cfg: OIDCAuthConfig{Audience: "neo4j-graphql"}, want: "issuer/audience not configured"},
		{name: "plain http", cfg: OIDCAuthConfig{IssuerURL: "http://issuer.example", Audience: "neo4j-graphql"}, want: "must use https"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOIDCVerifier(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
