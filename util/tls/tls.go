package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"
)

type config struct {
	CaFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Tls configures a listener that serves TLS and requires clients to present
// a certificate signed by CaFile.
type Tls struct {
	*config
}

func (config *Tls) UnmarshalYAML(unmarshal func(interface{}) error) error {
	err := unmarshal(&config.config)
	if err != nil {
		return err
	}

	if config.CaFile == "" &&
		config.CertFile == "" &&
		config.KeyFile == "" {
		return nil
	}

	if config.CaFile == "" ||
		config.CertFile == "" ||
		config.KeyFile == "" {
		return errors.New("ca_file, cert_file, and key_file must all be set")
	}

	return nil
}

// Enabled reports whether any TLS files are configured.
func (config *Tls) Enabled() bool {
	return config != nil && config.config != nil && config.CertFile != ""
}

// GetServerTlsConfig returns the server side configuration, or nil when TLS
// is not configured.
func (config *Tls) GetServerTlsConfig() (*tls.Config, error) {
	if !config.Enabled() {
		return nil, nil
	}

	certificate, err := tls.LoadX509KeyPair(config.CertFile, config.KeyFile)
	if err != nil {
		return nil, err
	}
	caFile, err := os.ReadFile(config.CaFile)
	if err != nil {
		return nil, err
	}

	clientCAs := x509.NewCertPool()
	ok := clientCAs.AppendCertsFromPEM(caFile)
	if !ok {
		return nil, errors.New("failed to append cert")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{certificate},
		ClientCAs:    clientCAs,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
