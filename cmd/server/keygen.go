package main

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"certledger/internal/certificate/issuer"
	"certledger/internal/platform/config"
	"certledger/pkg/secrets"
)

func keygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate issuer and operator key material as environment assignments",
		// Key generation needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			seed, key, err := issuer.GenerateKeyMaterial()
			if err != nil {
				return err
			}
			iss, err := issuer.New(seed, key)
			if err != nil {
				return err
			}
			signingKey, err := secrets.Generate()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# issuer public key: %s\n", iss.PublicKey())
			fmt.Fprintf(out, "%s_ISSUER_SEED=%s\n", config.EnvPrefix, base64.StdEncoding.EncodeToString(seed))
			fmt.Fprintf(out, "%s_ISSUER_CIPHER_KEY=%s\n", config.EnvPrefix, base64.StdEncoding.EncodeToString(key))
			fmt.Fprintf(out, "%s_OPERATOR_SIGNING_KEY=%s\n", config.EnvPrefix, signingKey)
			return nil
		},
	}
}
