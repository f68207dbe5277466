// Package tls manages the self-signed certificate served by the development
// server and builds the client-side trust configuration for connecting to a
// server whose certificate is not in the system pool.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CertConfig holds configuration for certificate generation.
type CertConfig struct {
	// CertPath is where the certificate is written.
	// If empty, defaults to ~/.chatlink/certs/devserver.crt
	CertPath string

	// KeyPath is where the private key is written.
	// If empty, defaults to ~/.chatlink/certs/devserver.key
	KeyPath string

	// Hosts are the hostnames and IP addresses the certificate is valid for.
	// If empty, defaults to localhost and 127.0.0.1.
	Hosts []string

	// ValidDuration defaults to 365 days.
	ValidDuration time.Duration
}

// CertInfo describes a loaded or generated certificate.
type CertInfo struct {
	CertPath string
	KeyPath  string

	// Fingerprint is the SHA-256 of the DER certificate as colon-separated
	// uppercase hex, e.g. "AA:BB:CC:...".
	Fingerprint string

	NotBefore time.Time
	NotAfter  time.Time

	// IsGenerated is false when existing files were loaded.
	IsGenerated bool
}

// DefaultCertPath returns ~/.chatlink/certs/devserver.crt.
func DefaultCertPath() (string, error) {
	return certsFile("devserver.crt")
}

// DefaultKeyPath returns ~/.chatlink/certs/devserver.key.
func DefaultKeyPath() (string, error) {
	return certsFile("devserver.key")
}

func certsFile(name string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".chatlink", "certs", name), nil
}

// EnsureCertificate loads the certificate at the configured paths, or
// generates a new one if either file is missing.
func EnsureCertificate(cfg CertConfig) (*CertInfo, error) {
	var err error
	if cfg.CertPath == "" {
		if cfg.CertPath, err = DefaultCertPath(); err != nil {
			return nil, err
		}
	}
	if cfg.KeyPath == "" {
		if cfg.KeyPath, err = DefaultKeyPath(); err != nil {
			return nil, err
		}
	}

	if fileExists(cfg.CertPath) && fileExists(cfg.KeyPath) {
		info, err := LoadCertificate(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}
		return info, nil
	}

	info, err := GenerateCertificate(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate: %w", err)
	}
	return info, nil
}

// LoadCertificate loads a certificate and key pair and describes it.
func LoadCertificate(certPath, keyPath string) (*CertInfo, error) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate pair: %w", err)
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &CertInfo{
		CertPath:    certPath,
		KeyPath:     keyPath,
		Fingerprint: ComputeFingerprint(cert),
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
	}, nil
}

// GenerateCertificate creates a self-signed ECDSA P-256 certificate and
// writes it and its key to the configured paths. The key file is 0600.
func GenerateCertificate(cfg CertConfig) (*CertInfo, error) {
	if cfg.CertPath == "" || cfg.KeyPath == "" {
		return nil, errors.New("certificate and key paths are required")
	}
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1"}
	}
	validFor := cfg.ValidDuration
	if validFor == 0 {
		validFor = 365 * 24 * time.Hour
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"chatlink"},
			CommonName:   "chatlink dev server",
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		// Self-signed and used as its own trust anchor by --ca.
		IsCA: true,
	}
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.CertPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}
	if err := writePEM(cfg.CertPath, "CERTIFICATE", der, 0644); err != nil {
		return nil, err
	}
	if err := writePEM(cfg.KeyPath, "PRIVATE KEY", keyDER, 0600); err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated certificate: %w", err)
	}
	return &CertInfo{
		CertPath:    cfg.CertPath,
		KeyPath:     cfg.KeyPath,
		Fingerprint: ComputeFingerprint(cert),
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
		IsGenerated: true,
	}, nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ComputeFingerprint returns the SHA-256 fingerprint of cert as
// colon-separated uppercase hex.
func ComputeFingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	hexStr := strings.ToUpper(hex.EncodeToString(sum[:]))

	parts := make([]string, 0, len(sum))
	for i := 0; i < len(hexStr); i += 2 {
		parts = append(parts, hexStr[i:i+2])
	}
	return strings.Join(parts, ":")
}

// normalizeFingerprint accepts upper or lower case, with or without colons.
func normalizeFingerprint(fp string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(fp), ":", ""))
}

// ServerConfig loads a certificate pair for serving.
func ServerConfig(certPath, keyPath string) (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientConfig builds the trust configuration for connecting to a server.
//
// With caPath set, certificates in that PEM file are trusted in addition to
// the system pool. With fingerprint set, the server's leaf certificate must
// match it; chain verification is then skipped, so a pinned self-signed
// certificate needs no CA file. With neither set it returns nil, meaning the
// library defaults.
func ClientConfig(caPath, fingerprint string) (*tls.Config, error) {
	if caPath == "" && fingerprint == "" {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if caPath != "" {
		pemData, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("no certificates found in %s", caPath)
		}
		cfg.RootCAs = pool
	}

	if fingerprint != "" {
		want := normalizeFingerprint(fingerprint)
		if len(want) != sha256.Size*2 {
			return nil, fmt.Errorf("invalid fingerprint %q", fingerprint)
		}
		cfg.InsecureSkipVerify = true
		cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return errors.New("server presented no certificate")
			}
			cert, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				return fmt.Errorf("failed to parse server certificate: %w", err)
			}
			if got := normalizeFingerprint(ComputeFingerprint(cert)); got != want {
				return fmt.Errorf("certificate fingerprint mismatch: got %s", ComputeFingerprint(cert))
			}
			return nil
		}
	}
	return cfg, nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
