// Package kubeconfig assembles the per-identity kubeconfig files every
// kubernix component (and the interactive shell) needs to talk to the
// apiserver, rendering each from a text/template rather than building
// the clientcmdapi types by hand.
package kubeconfig

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"text/template"

	"github.com/kubernix/kubernix/pkg/paths"
	"github.com/kubernix/kubernix/pkg/pki"
)

var tmpl = template.Must(template.New("kubeconfig").Parse(`apiVersion: v1
kind: Config
clusters:
- name: kubernix
  cluster:
    server: {{ .Server }}
    certificate-authority-data: {{ .CACert }}
contexts:
- name: kubernix
  context:
    cluster: kubernix
    user: {{ .User }}
current-context: kubernix
preferences: {}
users:
- name: {{ .User }}
  user:
    client-certificate-data: {{ .ClientCert }}
    client-key-data: {{ .ClientKey }}
`))

type templateData struct {
	Server     string
	User       string
	CACert     string
	ClientCert string
	ClientKey  string
}

// Write renders and writes the kubeconfig for identity, pointing at
// server, using the CA and identity keypair out of bundle.
func Write(layout *paths.Layout, bundle *pki.Bundle, identity, server string) error {
	kp, ok := bundle.Identities[identity]
	if !ok {
		return fmt.Errorf("no pki identity named %q", identity)
	}

	data := templateData{
		Server:     server,
		User:       identity,
		CACert:     base64.StdEncoding.EncodeToString(bundle.CA.KeyPair.CertPEM),
		ClientCert: base64.StdEncoding.EncodeToString(kp.CertPEM),
		ClientKey:  base64.StdEncoding.EncodeToString(kp.KeyPEM),
	}

	buf := &bytes.Buffer{}
	if err := tmpl.Execute(buf, data); err != nil {
		return fmt.Errorf("unable to render kubeconfig for %s: %w", identity, err)
	}

	if err := os.MkdirAll(layout.KubeconfigDir(), 0o755); err != nil {
		return fmt.Errorf("unable to create kubeconfig dir: %w", err)
	}

	if err := os.WriteFile(layout.Kubeconfig(identity), buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("unable to write kubeconfig for %s: %w", identity, err)
	}
	return nil
}

// WriteAll renders every identity's kubeconfig against the given secure
// apiserver address (host:port).
func WriteAll(layout *paths.Layout, bundle *pki.Bundle, apiserverAddr string, nodes int) error {
	server := fmt.Sprintf("https://%s", apiserverAddr)

	identities := []string{
		pki.IdentityAdmin, pki.IdentityControllerManager,
		pki.IdentityScheduler, pki.IdentityProxy,
	}
	for i := 0; i < nodes; i++ {
		identities = append(identities, pki.KubeletIdentity(i))
	}

	for _, identity := range identities {
		if err := Write(layout, bundle, identity, server); err != nil {
			return err
		}
	}
	return nil
}
