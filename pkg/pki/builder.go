// Package pki generates the certificate authority and per-identity
// keypairs kubernix's components need, using a functional-options
// Builder over RSA-2048/PKCS8 encoding, where a nil signing parent means
// self-signed, letting the same Builder bootstrap a CA from nothing and
// then sign every identity beneath it.
package pki

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"
)

// longValidity is used for every certificate kubernix issues: this is a
// throwaway dev cluster, so certificate rotation is out of scope and
// validity is simply "long".
const longValidity = 10 * 365 * 24 * time.Hour

// Option configures a Builder.
type Option func(*Builder) error

func WithCommonName(cn string) Option {
	return func(b *Builder) error {
		b.commonName = cn
		return nil
	}
}

func WithOrganization(org string) Option {
	return func(b *Builder) error {
		b.organizations = append(b.organizations, org)
		return nil
	}
}

func WithDNSName(name string) Option {
	return func(b *Builder) error {
		b.dnsNames = append(b.dnsNames, name)
		return nil
	}
}

func WithIPAddress(ip net.IP) Option {
	return func(b *Builder) error {
		if ip == nil {
			return fmt.Errorf("nil ip address")
		}
		b.ipAddresses = append(b.ipAddresses, ip)
		return nil
	}
}

func WithExpiration(t time.Time) Option {
	return func(b *Builder) error {
		b.expiration = t
		return nil
	}
}

// SignedBy makes the generated certificate a leaf signed by ca instead of
// self-signed.
func SignedBy(ca *CA) Option {
	return func(b *Builder) error {
		b.signBy = ca
		return nil
	}
}

// Builder assembles one x509 certificate + RSA keypair.
type Builder struct {
	organizations []string
	commonName    string
	dnsNames      []string
	ipAddresses   []net.IP
	expiration    time.Time
	signBy        *CA
}

// NewBuilder returns a Builder defaulted to CN=localhost and longValidity
// before opts are applied.
func NewBuilder(opts ...Option) (*Builder, error) {
	b := &Builder{
		expiration: time.Now().Add(longValidity),
		commonName: "localhost",
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, fmt.Errorf("unable to apply option: %w", err)
		}
	}
	return b, nil
}

// KeyPair is a PEM-encoded certificate and private key.
type KeyPair struct {
	CertPEM []byte
	KeyPEM  []byte
}

// Generate creates the key/cert pair described by the builder.
func (b *Builder) Generate() (*KeyPair, error) {
	pkey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("unable to generate private key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("unable to generate serial number: %w", err)
	}

	tpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: b.organizations,
			CommonName:   b.commonName,
		},
		NotBefore:             time.Now(),
		NotAfter:              b.expiration,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              b.dnsNames,
		IPAddresses:           b.ipAddresses,
	}

	signerCert := tpl
	signerKey := pkey
	if b.signBy != nil {
		signerCert = b.signBy.cert
		signerKey = b.signBy.key
	} else {
		tpl.IsCA = true
		tpl.KeyUsage |= x509.KeyUsageCertSign
		tpl.BasicConstraintsValid = true
	}

	der, err := x509.CreateCertificate(rand.Reader, tpl, signerCert, &pkey.PublicKey, signerKey)
	if err != nil {
		return nil, fmt.Errorf("unable to create certificate: %w", err)
	}

	certBuf := &bytes.Buffer{}
	if err := pem.Encode(certBuf, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		return nil, fmt.Errorf("unable to encode certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(pkey)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal private key: %w", err)
	}
	keyBuf := &bytes.Buffer{}
	if err := pem.Encode(keyBuf, &pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}); err != nil {
		return nil, fmt.Errorf("unable to encode private key: %w", err)
	}

	return &KeyPair{CertPEM: certBuf.Bytes(), KeyPEM: keyBuf.Bytes()}, nil
}

// CA holds a parsed certificate authority usable to sign leaves.
type CA struct {
	cert    *x509.Certificate
	key     *rsa.PrivateKey
	KeyPair *KeyPair
}

// ParseCA parses a PEM cert/key pair produced by Generate (with no SignedBy
// option) into a CA that can sign further leaves.
func ParseCA(kp *KeyPair) (*CA, error) {
	certBlock, _ := pem.Decode(kp.CertPEM)
	if certBlock == nil {
		return nil, fmt.Errorf("unable to decode ca certificate PEM")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("unable to parse ca certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(kp.KeyPEM)
	if keyBlock == nil {
		return nil, fmt.Errorf("unable to decode ca key PEM")
	}
	key, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("unable to parse ca key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("ca key is not an RSA key")
	}

	return &CA{cert: cert, key: rsaKey, KeyPair: kp}, nil
}
