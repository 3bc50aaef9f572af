package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"certledger/internal/platform/operatorauth"
	platformstrings "certledger/pkg/platform/strings"
	"certledger/pkg/platform/validation"
)

type tokenOutput struct {
	Token     string   `json:"token"`
	Subject   string   `json:"subject"`
	Scopes    []string `json:"scopes"`
	ExpiresIn string   `json:"expires_in"`
}

func tokenCommand() *cobra.Command {
	var (
		subject    string
		scopes     []string
		ttl        time.Duration
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an operator bearer token with the configured signing key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			scopes = platformstrings.DedupeAndTrim(scopes)
			if err := validation.CheckSliceCount("scopes", len(scopes), validation.MaxScopes); err != nil {
				return err
			}
			if err := validation.CheckEachStringLength("scope", scopes, validation.MaxScopeLength); err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Operator.TokenTTL
			}

			svc := operatorauth.New(cfg.Operator.SigningKey, ttl, operatorauth.WithEnv(cfg.Environment))
			token, err := svc.Generate(cmd.Context(), subject, scopes)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(tokenOutput{
					Token:     token,
					Subject:   subject,
					Scopes:    scopes,
					ExpiresIn: ttl.String(),
				})
			}
			fmt.Fprintf(out, "Subject:    %s\n", subject)
			fmt.Fprintf(out, "Scopes:     %s\n", strings.Join(scopes, ","))
			fmt.Fprintf(out, "Expires In: %s\n\n", ttl)
			fmt.Fprintln(out, token)
			fmt.Fprintln(out)
			fmt.Fprintln(out, `Usage: curl -H "Authorization: Bearer <token>" http://localhost:8080/certificates`)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "operator subject recorded in audit events")
	cmd.Flags().StringSliceVar(&scopes, "scopes", operatorauth.DefaultScopes, "comma-separated scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to the configured operator token ttl)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
