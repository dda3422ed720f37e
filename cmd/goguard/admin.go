package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/fingerprint"
	"github.com/MrEthical07/goGuard/identity"
)

type issuedPair struct {
	Subject          string    `json:"subject"`
	Role             string    `json:"role"`
	AccessToken      string    `json:"access_token"`
	AccessTokenID    string    `json:"access_token_id"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshTokenID   string    `json:"refresh_token_id"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func newIssueCmd(c *cli) *cobra.Command {
	var (
		subject string
		role    string
		device  string
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue an access and refresh token pair",
		Long: `Issue a token pair for a subject and record it in the revocation store.
The role defaults to the subject's role from the identity backend.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, c.env, c.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			if role == "" {
				id, err := rt.resolver.FindByID(ctx, subject)
				if err != nil {
					if errors.Is(err, identity.ErrNotFound) {
						return fmt.Errorf("subject %q not found; pass --role to issue anyway", subject)
					}
					return err
				}
				role = id.Role
			}

			pair, err := rt.engine.IssueSession(ctx, goGuard.SessionInput{
				Subject:     subject,
				Role:        role,
				Fingerprint: fingerprint.New(device),
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(issuedPair{
				Subject:          subject,
				Role:             role,
				AccessToken:      pair.Access.Value,
				AccessTokenID:    pair.Access.ID,
				AccessExpiresAt:  pair.Access.ExpiresAt.UTC(),
				RefreshToken:     pair.Refresh.Value,
				RefreshTokenID:   pair.Refresh.ID,
				RefreshExpiresAt: pair.Refresh.ExpiresAt.UTC(),
			})
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "subject identifier")
	cmd.Flags().StringVarP(&role, "role", "r", "", "role claim")
	cmd.Flags().StringVar(&device, "fingerprint", "", "bind the access token to this device fingerprint")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newRevokeCmd(c *cli) *cobra.Command {
	var byID bool
	cmd := &cobra.Command{
		Use:   "revoke TOKEN",
		Short: "Blacklist a token",
		Long:  `Blacklist a signed token, or a bare token identifier with --id.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, c.env, c.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			if byID {
				err = rt.engine.Blacklist(ctx, args[0])
			} else {
				err = rt.engine.Revoke(ctx, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "revoked")
			return nil
		},
	}
	cmd.Flags().BoolVar(&byID, "id", false, "treat the argument as a token identifier")
	return cmd
}

func newPruneCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove expired revocation records",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, c.env, c.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.engine.Prune(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d records\n", n)
			return nil
		},
	}
}
