package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xenking/golden-feast/internal/domain/auth"
	"github.com/xenking/golden-feast/internal/jwtauth"
)

func (r *root) tokenCmd() *cobra.Command {
	var (
		secret string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Mint a bearer token for a user",
		Example: `  storectl token admin-1 --role admin
  JWT_SECRET=dev storectl token customer-42 --ttl 1h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mintToken(cmd.OutOrStdout(), secret, args[0], role, ttl)
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "signing secret (default from JWT_SECRET)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleCustomer), "token role: admin or customer")
	cmd.Flags().DurationVar(&ttl, "ttl", jwtauth.DefaultTTL, "token lifetime")
	return cmd
}

func mintToken(out io.Writer, secret, userID, role string, ttl time.Duration) error {
	r, err := auth.ParseRole(role)
	if err != nil {
		return err
	}
	tokens, err := jwtauth.New(secret, jwtauth.WithTTL(ttl))
	if err != nil {
		return err
	}
	token, err := tokens.Issue(auth.Identity{UserID: userID, Role: r})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
