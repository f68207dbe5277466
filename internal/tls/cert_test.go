package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func generate(t *testing.T, hosts ...string) *CertInfo {
	t.Helper()
	dir := t.TempDir()
	info, err := GenerateCertificate(CertConfig{
		CertPath:      filepath.Join(dir, "certs", "test.crt"),
		KeyPath:       filepath.Join(dir, "certs", "test.key"),
		Hosts:         hosts,
		ValidDuration: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("GenerateCertificate failed: %v", err)
	}
	return info
}

func TestGenerateCertificate(t *testing.T) {
	info := generate(t, "localhost", "127.0.0.1", "chat.example")

	if !info.IsGenerated {
		t.Error("IsGenerated should be true for newly generated cert")
	}
	parts := strings.Split(info.Fingerprint, ":")
	if len(parts) != 32 {
		t.Errorf("Fingerprint should have 32 parts, got %d", len(parts))
	}
	expectedExpiry := info.NotBefore.Add(24 * time.Hour)
	if info.NotAfter.Sub(expectedExpiry).Abs() > time.Minute {
		t.Errorf("NotAfter should be ~24 hours after NotBefore")
	}

	keyInfo, err := os.Stat(info.KeyPath)
	if err != nil {
		t.Fatalf("Failed to stat key file: %v", err)
	}
	if keyInfo.Mode().Perm() != 0600 {
		t.Errorf("Key file should have 0600 permissions, got %o", keyInfo.Mode().Perm())
	}

	pemData, err := os.ReadFile(info.CertPath)
	if err != nil {
		t.Fatal(err)
	}
	block, _ := pem.Decode(pemData)
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}
	if len(cert.IPAddresses) != 1 || len(cert.DNSNames) != 2 {
		t.Errorf("SANs = %v %v", cert.IPAddresses, cert.DNSNames)
	}
	if ComputeFingerprint(cert) != info.Fingerprint {
		t.Error("fingerprint mismatch between file and CertInfo")
	}
}

func TestGenerateCertificateRequiresPaths(t *testing.T) {
	if _, err := GenerateCertificate(CertConfig{}); err == nil {
		t.Error("expected error without paths")
	}
}

func TestEnsureCertificateLoadsExisting(t *testing.T) {
	first := generate(t)

	again, err := EnsureCertificate(CertConfig{CertPath: first.CertPath, KeyPath: first.KeyPath})
	if err != nil {
		t.Fatalf("EnsureCertificate failed: %v", err)
	}
	if again.IsGenerated {
		t.Error("existing certificate was regenerated")
	}
	if again.Fingerprint != first.Fingerprint {
		t.Error("fingerprint changed on reload")
	}
}

func TestEnsureCertificateRegeneratesIfKeyMissing(t *testing.T) {
	first := generate(t)
	os.Remove(first.KeyPath)

	again, err := EnsureCertificate(CertConfig{CertPath: first.CertPath, KeyPath: first.KeyPath})
	if err != nil {
		t.Fatalf("EnsureCertificate failed: %v", err)
	}
	if !again.IsGenerated || again.Fingerprint == first.Fingerprint {
		t.Error("expected a new certificate")
	}
}

func TestLoadCertificateNotFound(t *testing.T) {
	if _, err := LoadCertificate("/nonexistent/cert.crt", "/nonexistent/key.key"); err == nil {
		t.Error("expected error for missing files")
	}
}

func TestDefaultPaths(t *testing.T) {
	certPath, err := DefaultCertPath()
	if err != nil {
		t.Fatalf("DefaultCertPath failed: %v", err)
	}
	keyPath, err := DefaultKeyPath()
	if err != nil {
		t.Fatalf("DefaultKeyPath failed: %v", err)
	}
	if !strings.Contains(certPath, filepath.Join(".chatlink", "certs")) || filepath.Dir(certPath) != filepath.Dir(keyPath) {
		t.Errorf("paths = %s, %s", certPath, keyPath)
	}
}

func TestClientConfigNone(t *testing.T) {
	cfg, err := ClientConfig("", "")
	if err != nil || cfg != nil {
		t.Errorf("ClientConfig = %v, %v; want nil, nil", cfg, err)
	}
}

func TestClientConfigErrors(t *testing.T) {
	if _, err := ClientConfig("/nonexistent/ca.pem", ""); err == nil {
		t.Error("expected error for missing CA file")
	}

	empty := filepath.Join(t.TempDir(), "empty.pem")
	os.WriteFile(empty, []byte("not pem"), 0644)
	if _, err := ClientConfig(empty, ""); err == nil {
		t.Error("expected error for CA file without certificates")
	}

	if _, err := ClientConfig("", "AA:BB"); err == nil {
		t.Error("expected error for short fingerprint")
	}
}

// serveWith starts an HTTPS server using info's certificate.
func serveWith(t *testing.T, info *CertInfo) *httptest.Server {
	t.Helper()
	serverCfg, err := ServerConfig(info.CertPath, info.KeyPath)
	if err != nil {
		t.Fatalf("ServerConfig failed: %v", err)
	}
	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	ts.TLS = serverCfg
	ts.StartTLS()
	t.Cleanup(ts.Close)
	return ts
}

func get(url string, cfg *tls.Config) error {
	client := &http.Client{Timeout: 5 * time.Second, Transport: &http.Transport{TLSClientConfig: cfg}}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func TestClientConfigTrustsCAFile(t *testing.T) {
	info := generate(t)
	ts := serveWith(t, info)

	if err := get(ts.URL, &tls.Config{}); err == nil {
		t.Fatal("self-signed certificate trusted without configuration")
	}

	cfg, err := ClientConfig(info.CertPath, "")
	if err != nil {
		t.Fatalf("ClientConfig failed: %v", err)
	}
	if err := get(ts.URL, cfg); err != nil {
		t.Errorf("request with CA file failed: %v", err)
	}
}

func TestClientConfigPinsFingerprint(t *testing.T) {
	info := generate(t)
	ts := serveWith(t, info)

	lower := strings.ToLower(strings.ReplaceAll(info.Fingerprint, ":", ""))
	cfg, err := ClientConfig("", lower)
	if err != nil {
		t.Fatalf("ClientConfig failed: %v", err)
	}
	if err := get(ts.URL, cfg); err != nil {
		t.Errorf("request with pinned fingerprint failed: %v", err)
	}

	other := generate(t)
	cfg, err = ClientConfig("", other.Fingerprint)
	if err != nil {
		t.Fatal(err)
	}
	if err := get(ts.URL, cfg); err == nil || !strings.Contains(err.Error(), "fingerprint mismatch") {
		t.Errorf("err = %v, want fingerprint mismatch", err)
	}
}
