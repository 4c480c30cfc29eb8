package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/xenking/golden-feast/internal/domain/auth"
	"github.com/xenking/golden-feast/internal/domain/user"
	"github.com/xenking/golden-feast/internal/storage/postgres"
)

func (r *root) createUserCmd() *cobra.Command {
	var (
		reg  user.Registration
		role string
	)
	cmd := &cobra.Command{
		Use:     "create-user EMAIL",
		Short:   "Create an account, typically an admin",
		Example: `  FEAST_USER_PASSWORD=... storectl create-user chef@example.com --role admin --name Chef`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rl, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			reg.Email, reg.Role = args[0], rl

			pool, err := r.pool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			return createUser(cmd.Context(), cmd.OutOrStdout(), user.NewService(postgres.NewUserRepository(pool), nil), reg)
		},
	}
	cmd.Flags().StringVar(&reg.Name, "name", "", "display name")
	cmd.Flags().StringVar(&reg.Password, "password", os.Getenv("FEAST_USER_PASSWORD"),
		"account password (default from FEAST_USER_PASSWORD)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleAdmin), "account role: admin or customer")
	return cmd
}

func createUser(ctx context.Context, out io.Writer, svc *user.Service, reg user.Registration) error {
	u, err := svc.Register(ctx, reg)
	if err != nil {
		return errors.Wrap(err, "create user")
	}
	_, err = fmt.Fprintf(out, "%s\t%s\t%s\n", u.ID, u.Email, u.Role)
	return err
}
