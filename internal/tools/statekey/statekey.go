// Package statekey generates the secret that signs OAuth state values.
package statekey

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/provider"
)

// EnvKey is the variable the broker reads the secret from.
const EnvKey = "OAUTHBROKER_STATE_SECRET"

// MinBytes is the shortest secret accepted for HS256 signing.
const MinBytes = 32

// Config holds configuration for secret generation.
type Config struct {
	Bytes int
	// Raw prints only the secret, without the env assignment.
	Raw bool
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Bytes: MinBytes}
	fs.IntVar(&cfg.Bytes, "bytes", cfg.Bytes, "number of random bytes")
	fs.BoolVar(&cfg.Raw, "raw", false, "print the secret without the variable name")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run generates a secret, checks that it signs and verifies a state, and
// writes it to out.
func Run(cfg Config, out io.Writer, reader io.Reader) error {
	if cfg.Bytes < MinBytes {
		return fmt.Errorf("bytes must be at least %d", MinBytes)
	}
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}

	buf := make([]byte, cfg.Bytes)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return fmt.Errorf("generate random bytes: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	if err := selfCheck(secret); err != nil {
		return err
	}

	if cfg.Raw {
		_, err := fmt.Fprintln(out, secret)
		return err
	}
	_, err := fmt.Fprintf(out, "%s=%s\n", EnvKey, secret)
	return err
}

func selfCheck(secret string) error {
	signer, err := provider.NewStateSigner([]byte(secret), 0)
	if err != nil {
		return fmt.Errorf("create signer: %w", err)
	}
	state, err := signer.Sign("check", "check")
	if err != nil {
		return fmt.Errorf("sign check state: %w", err)
	}
	if _, err := signer.Verify(state); err != nil {
		return fmt.Errorf("verify check state: %w", err)
	}
	return nil
}
