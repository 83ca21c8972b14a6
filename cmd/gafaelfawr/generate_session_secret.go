package main

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lsst-sqre/gafaelfawr/pkg/crypto"
)

// commandGenerateSessionSecret implements the `generate-session-secret`
// CLI command (§6): prints a fresh base64-encoded 32-byte key suitable for
// the session_secret config option.
func commandGenerateSessionSecret() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-session-secret",
		Short: "Generate a new session secret and print it base64-encoded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := crypto.RandBytes(crypto.CookieKeySize)
			if err != nil {
				return fmt.Errorf("generate session secret: %w", err)
			}
			fmt.Println(base64.StdEncoding.EncodeToString(secret))
			return nil
		},
	}
}
