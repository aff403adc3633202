package paho

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/rustyeddy/tbmqtt/config"
)

// buildTLSConfig assembles a *tls.Config from the Verification and
// Authentication sections of a transport configuration.
func buildTLSConfig(cfg config.Transport) (*tls.Config, error) {
	tlsCfg := &tls.Config{}

	if cfg.Verification.CertPEM != "" {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(cfg.Verification.CertPEM)) {
			return nil, fmt.Errorf("paho: failed to parse verification cert PEM")
		}
		tlsCfg.RootCAs = pool
	}

	if cfg.Verification.SkipCommonNameCheck {
		// Only the host-name check is skipped: the chain is verified here.
		tlsCfg.InsecureSkipVerify = true //nolint:gosec — chain verified in VerifyConnection
		tlsCfg.VerifyConnection = func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return fmt.Errorf("paho: server presented no certificate")
			}
			opts := x509.VerifyOptions{Roots: tlsCfg.RootCAs, Intermediates: x509.NewCertPool()}
			for _, c := range cs.PeerCertificates[1:] {
				opts.Intermediates.AddCert(c)
			}
			_, err := cs.PeerCertificates[0].Verify(opts)
			return err
		}
	}

	if cfg.Credentials.Kind == config.CredentialsX509 {
		if cfg.Authentication.ClientCertPEM == "" || cfg.Authentication.ClientKeyPEM == "" {
			return nil, fmt.Errorf("paho: x509 credentials require client cert and key PEM")
		}
		// ClientKeyPassword (encrypted private keys) is not handled here;
		// Go's stdlib has no supported PEM decryption path since the
		// removal of x509.DecryptPEMBlock. Provide an unencrypted key.
		cert, err := tls.X509KeyPair([]byte(cfg.Authentication.ClientCertPEM), []byte(cfg.Authentication.ClientKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("paho: parse client key pair: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	return tlsCfg, nil
}
