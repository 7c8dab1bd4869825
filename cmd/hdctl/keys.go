package main

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appkg "github.com/xenking/hdcontrol/internal/app"
	"github.com/xenking/hdcontrol/internal/domain/auth"
	"github.com/xenking/hdcontrol/internal/domain/user"
)

// issueKey stores a new API key for userID and returns the raw key.
func issueKey(ctx context.Context, b *appkg.Backend, pepper, raw, name string, userID int64) (string, error) {
	if raw == "" {
		raw = uuid.NewString()
	}
	info := &auth.APIKeyInfo{
		KeyHash: auth.HashKey([]byte(pepper), raw),
		Name:    name,
		UserID:  userID,
	}
	if err := b.APIKeys.Create(ctx, info); err != nil {
		return "", errors.Wrap(err, "create api key")
	}
	return raw, nil
}

func newSeedCmd(e *env) *cobra.Command {
	var (
		admin    user.User
		password string
		apiKey   string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the first admin user and an API key for it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if admin.Email == "" || len(password) < 8 {
				return errors.New("--email and a --password of at least 8 characters are required")
			}

			b, err := appkg.OpenStore(ctx, e.lg, e.cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			hash, err := user.NewBcryptHasher(e.cfg.Bcrypt.Cost).Hash(password)
			if err != nil {
				return errors.Wrap(err, "hash password")
			}
			admin.PasswordHash = hash
			admin.Roles = []user.Role{{Authority: user.RoleAdmin}}

			var key string
			err = b.Tx.InTx(ctx, func(ctx context.Context) error {
				if err := b.Users.Create(ctx, &admin); err != nil {
					return errors.Wrap(err, "create admin")
				}
				key, err = issueKey(ctx, b, e.cfg.APIKeyPepper, apiKey, "seed", admin.ID)
				return err
			})
			if err != nil {
				return err
			}

			e.lg.Info("Admin created", zap.Int64("user_id", admin.ID), zap.String("email", admin.Email))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&admin.Email, "email", "", "Admin e-mail")
	f.StringVar(&admin.FirstName, "first-name", "Admin", "Admin first name")
	f.StringVar(&admin.LastName, "last-name", "", "Admin last name")
	f.StringVar(&password, "password", "", "Admin password")
	f.StringVar(&apiKey, "api-key", "", "API key to store; generated when empty")
	return cmd
}

func newCreateAPIKeyCmd(e *env) *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "create-api-key",
		Short: "Issue an API key for an existing user and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			b, err := appkg.OpenStore(ctx, e.lg, e.cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			u, err := b.Users.GetByEmail(ctx, email)
			if err != nil {
				return errors.Wrapf(err, "find user %q", email)
			}
			key, err := issueKey(ctx, b, e.cfg.APIKeyPepper, "", name, u.ID)
			if err != nil {
				return err
			}
			e.lg.Info("API key issued", zap.Int64("user_id", u.ID), zap.String("name", name))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Owner e-mail")
	cmd.Flags().StringVar(&name, "name", "cli", "Key label")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
