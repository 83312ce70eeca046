package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/credcore"
	"github.com/MrEthical07/credcore/account"
	"github.com/MrEthical07/credcore/notify"
	"github.com/MrEthical07/credcore/stores/memory"
	"github.com/MrEthical07/credcore/stores/postgres"
)

// NewScenarioCmd runs the full account lifecycle once against the configured
// backends and reports each step.
func NewScenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenario",
		Short: "Run a sign-up to sign-out smoke scenario",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fc, err := loadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := fc.engineConfig()
			if err != nil {
				return err
			}
			logger := newLogger(fc)
			ctx := cmd.Context()

			var users account.Store = memory.New()
			if fc.Postgres.DSN != "" {
				pool, err := pgxpool.New(ctx, fc.Postgres.DSN)
				if err != nil {
					return fmt.Errorf("connect: %w", err)
				}
				defer pool.Close()
				pg := postgres.New(pool)
				if err := pg.Migrate(ctx); err != nil {
					return err
				}
				users = pg
			}

			outbox := notify.NewOutbox()
			b := credcore.New().
				WithConfig(cfg).
				WithUserStore(users).
				WithNotifier(outbox).
				WithLogger(logger)
			if fc.Redis.Addr != "" {
				client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{fc.Redis.Addr}})
				defer client.Close()
				b = b.WithRedis(client)
			}
			engine, err := b.Build()
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx = credcore.WithClientID(ctx, "scenario-"+uuid.NewString())
			return runScenario(ctx, cmd.OutOrStdout(), engine, outbox, logger)
		},
	}
}

func runScenario(ctx context.Context, w io.Writer, e *credcore.Engine, outbox *notify.Outbox, logger *slog.Logger) error {
	suffix := uuid.NewString()[:8]
	email := "alice+" + suffix + "@example.com"
	newEmail := "alice.new+" + suffix + "@example.com"

	step := func(name string, fn func() error) error {
		if err := fn(); err != nil {
			fmt.Fprintf(w, "FAIL %s: %v\n", name, err)
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Fprintf(w, "ok   %s\n", name)
		return nil
	}
	lastToken := func(kind notify.Kind, to string) (string, error) {
		msg, ok := outbox.Last(kind, to)
		if !ok {
			return "", fmt.Errorf("no %s message for %s", kind, to)
		}
		return msg.Token, nil
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"sign up", func() error {
			_, err := e.SignUp(ctx, credcore.SignUpRequest{
				Email:       email,
				Password:    "Passw0rd!",
				Role:        credcore.RoleEndUser,
				DisplayName: "Alice",
				NationalID:  "SC-" + suffix,
			})
			return err
		}},
		{"confirm email", func() error {
			tok, err := lastToken(notify.KindEmailConfirmation, email)
			if err != nil {
				return err
			}
			_, err = e.ConfirmEmail(ctx, tok)
			return err
		}},
		{"sign in", func() error {
			_, err := e.SignIn(ctx, email, "Passw0rd!")
			return err
		}},
		{"current identity", func() error {
			id, ok := e.CurrentIdentity(ctx)
			if !ok || id.Email != email {
				return fmt.Errorf("unexpected identity %+v", id)
			}
			return nil
		}},
		{"refresh session", func() error {
			_, err := e.RefreshSession(ctx)
			return err
		}},
		{"password reset", func() error {
			if err := e.RequestPasswordReset(ctx, email); err != nil {
				return err
			}
			tok, err := lastToken(notify.KindPasswordReset, email)
			if err != nil {
				return err
			}
			return e.CompletePasswordReset(ctx, tok, "N3wPassw0rd!")
		}},
		{"old password rejected", func() error {
			_, err := e.SignIn(ctx, email, "Passw0rd!")
			if !errors.Is(err, credcore.ErrInvalidCredentials) {
				return fmt.Errorf("expected invalid credentials, got %v", err)
			}
			return nil
		}},
		{"sign in with new password", func() error {
			_, err := e.SignIn(ctx, email, "N3wPassw0rd!")
			return err
		}},
		{"email change", func() error {
			if err := e.RequestEmailChange(ctx, email, newEmail); err != nil {
				return err
			}
			tok, err := lastToken(notify.KindEmailChange, newEmail)
			if err != nil {
				return err
			}
			_, err = e.ConfirmEmailChange(ctx, tok)
			return err
		}},
		{"sign in with new email", func() error {
			_, err := e.SignIn(ctx, newEmail, "N3wPassw0rd!")
			return err
		}},
		{"sign out", func() error {
			if err := e.SignOut(ctx); err != nil {
				return err
			}
			if _, ok := e.CurrentIdentity(ctx); ok {
				return errors.New("identity still present")
			}
			return nil
		}},
	}

	for _, s := range steps {
		if err := step(s.name, s.fn); err != nil {
			return err
		}
	}
	logger.InfoContext(ctx, "scenario passed", slog.String("email", newEmail))
	return nil
}
