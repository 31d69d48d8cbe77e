package server

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"
)

// CertificateRequest describes a self-signed serving certificate.
type CertificateRequest struct {
	// Hosts are the DNS names and IP addresses of the webhook service,
	// e.g. "lineage.lineage-system.svc". The first is the common name.
	Hosts []string

	// Organization of the subject.
	Organization string

	// NotBefore defaults to now.
	NotBefore time.Time

	// Validity defaults to one year.
	Validity time.Duration

	// KeySize is the RSA key size: 2048, 3072 or 4096. Default: 2048.
	KeySize int
}

// GenerateSelfSigned creates a self-signed certificate and key in PEM form.
// The certificate is its own CA, so certPEM is also the caBundle of the
// webhook registration.
func GenerateSelfSigned(req CertificateRequest) (certPEM, keyPEM []byte, err error) {
	if len(req.Hosts) == 0 {
		return nil, nil, errors.New("at least one host is required")
	}
	if req.KeySize == 0 {
		req.KeySize = 2048
	}
	if req.KeySize != 2048 && req.KeySize != 3072 && req.KeySize != 4096 {
		return nil, nil, fmt.Errorf("invalid key size: %d (must be 2048, 3072, or 4096)", req.KeySize)
	}
	if req.Validity <= 0 {
		req.Validity = 365 * 24 * time.Hour
	}
	if req.NotBefore.IsZero() {
		req.NotBefore = time.Now()
	}

	var dnsNames []string
	var ipAddresses []net.IP
	for _, host := range req.Hosts {
		if ip := net.ParseIP(host); ip != nil {
			ipAddresses = append(ipAddresses, ip)
		} else {
			dnsNames = append(dnsNames, host)
		}
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, req.KeySize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{req.Organization},
			CommonName:   req.Hosts[0],
		},
		NotBefore:             req.NotBefore,
		NotAfter:              req.NotBefore.Add(req.Validity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              dnsNames,
		IPAddresses:           ipAddresses,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	return certPEM, keyPEM, nil
}
