// Package kafka holds the Kafka cluster settings shared by the Kafka broker
// adapter and translates them into franz-go client options.
package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"
)

// SASL mechanisms accepted in Auth.Mechanism.
const (
	MechanismPlain       = "PLAIN"
	MechanismScramSHA256 = "SCRAM-SHA-256"
	MechanismScramSHA512 = "SCRAM-SHA-512"
)

// Cluster describes how to reach a Kafka cluster.
type Cluster struct {
	Brokers []string
	Auth    Auth
	TLS     TLS
}

// Auth is optional SASL authentication.
type Auth struct {
	Mechanism string
	Username  string
	Password  string
}

// TLS enables TLS on broker connections. CAFile is optional; without it the
// system roots are used.
type TLS struct {
	Enabled    bool
	CAFile     string
	SkipVerify bool
}

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Validate reports every problem with the cluster settings at once.
func (c Cluster) Validate() error {
	var errs []error
	if len(c.Brokers) == 0 {
		errs = append(errs, errors.New("at least one broker is required"))
	}
	if c.Auth.Mechanism != "" {
		if _, err := c.Auth.mechanism(); err != nil {
			errs = append(errs, err)
		}
		if c.Auth.Username == "" {
			errs = append(errs, errors.New("username is required when a SASL mechanism is set"))
		}
		if c.Auth.Password == "" {
			errs = append(errs, errors.New("password is required when a SASL mechanism is set"))
		}
	}
	return errors.Join(errs...)
}

// Options returns the franz-go options for connecting to the cluster.
func (c Cluster) Options() ([]kgo.Opt, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	opts := []kgo.Opt{kgo.SeedBrokers(c.Brokers...)}

	if c.Auth.Mechanism != "" {
		m, err := c.Auth.mechanism()
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.SASL(m))
	}

	if c.TLS.Enabled {
		cfg, err := c.TLS.config()
		if err != nil {
			return nil, fmt.Errorf("tls: %w", err)
		}
		opts = append(opts, kgo.DialTLSConfig(cfg))
	}
	return opts, nil
}

func (a Auth) mechanism() (sasl.Mechanism, error) {
	switch strings.ToUpper(a.Mechanism) {
	case MechanismPlain:
		return plain.Auth{User: a.Username, Pass: a.Password}.AsMechanism(), nil
	case MechanismScramSHA256:
		return scram.Auth{User: a.Username, Pass: a.Password}.AsSha256Mechanism(), nil
	case MechanismScramSHA512:
		return scram.Auth{User: a.Username, Pass: a.Password}.AsSha512Mechanism(), nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism %q", a.Mechanism)
	}
}

func (t TLS) config() (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.SkipVerify, //nolint:gosec // opt-in for local clusters
	}
	if t.CAFile == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(t.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", t.CAFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}
