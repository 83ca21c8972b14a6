package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lsst-sqre/gafaelfawr/keyset"
)

// commandGenerateKey implements the `generate-key` CLI command (§6): it
// prints a fresh RSA keypair as PKCS#1 PEM to stdout, the format key_path
// is expected to point at.
func commandGenerateKey() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-key",
		Short: "Generate a new RSA signing key and print it as PEM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := keyset.Generate(uuid.NewString())
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			_, err = os.Stdout.Write(keys.EncodePEM())
			return err
		},
	}
}
