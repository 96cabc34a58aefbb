package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/stepcause/internal/auth"
)

type tokenOptions struct {
	subject string
	email   string
	name    string
	scopes  []string
	ttl     time.Duration
}

func newTokenCmd(a *app) *cobra.Command {
	opts := tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for local development",
		Long: `Signs an HS256 token with JWT_SECRET and JWT_ISSUER.

Example:
  stepcausectl token --subject user-1 --scopes steps:write,steps:read`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := issueToken(auth.Config{Secret: a.cfg.JWTSecret, Issuer: a.cfg.JWTIssuer}, opts, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.subject, "subject", "", "User ID placed in the sub claim (required)")
	cmd.Flags().StringVar(&opts.email, "email", "", "Email claim")
	cmd.Flags().StringVar(&opts.name, "name", "", "Display name claim")
	cmd.Flags().StringSliceVar(&opts.scopes, "scopes",
		[]string{auth.ScopeStepsWrite, auth.ScopeStepsRead, auth.ScopeCausesWrite}, "Scopes to grant")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func issueToken(cfg auth.Config, opts tokenOptions, now time.Time) (string, error) {
	if opts.ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive, got %s", opts.ttl)
	}
	scopes := make(map[string]struct{}, len(opts.scopes))
	for _, scope := range opts.scopes {
		if scope != "" {
			scopes[scope] = struct{}{}
		}
	}
	return auth.Issue(cfg, auth.Claims{
		Subject:   opts.subject,
		Email:     opts.email,
		Name:      opts.name,
		Scopes:    scopes,
		ExpiresAt: now.Add(opts.ttl),
	})
}
