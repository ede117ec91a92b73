package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"
	"golang.org/x/term"

	ddns "github.com/Travis-Britz/cfddns"
	"github.com/Travis-Britz/cfddns/internal/config"
)

// readPassword is replaced in tests.
var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

// runSetup prompts for an API token, verifies it and writes it to keyFile.
func runSetup(ctx context.Context, logger logr.Logger, fsys afero.Fs, keyFile, baseURL string, stdout io.Writer) error {
	logger.Info("running setup", "keyFile", keyFile)
	if _, err := fsys.Stat(keyFile); err == nil {
		return fmt.Errorf("runSetup: key file \"%s\" already exists", keyFile)
	}

	fmt.Fprintf(stdout, "Enter Cloudflare API Token: \n")
	bytekey, err := readPassword()
	if err != nil {
		return fmt.Errorf("runSetup: error reading from stdin: %w", err)
	}
	key := ddns.APIToken(string(bytekey))

	provider, err := ddns.NewCloudflare(ddns.CloudflareConfig{Credentials: key, BaseURL: baseURL})
	if err != nil {
		return fmt.Errorf("error creating api client: %w", err)
	}
	provider.SetLogger(logger.WithName("provider"))
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	logger.Info("verifying token...")
	ok, err := provider.VerifyToken(ctx)
	if err != nil {
		return fmt.Errorf("unable to verify api token: %w", err)
	}
	if !ok {
		return errors.New("api token is not active")
	}
	logger.Info("token verified successfully")

	if err := config.WriteKeyFile(fsys, keyFile, string(key)); err != nil {
		return err
	}
	logger.Info("token written", "keyFile", keyFile)
	return nil
}
