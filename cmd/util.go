package cmd

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/jrschumacher/linkdash/internal/revocation"
	"github.com/spf13/cobra"
)

const cookieKeyBytes = 32

var revokeTTL time.Duration

var utilCmd = &cobra.Command{
	Use:     "util",
	Aliases: []string{"utils"},
	Short:   "Utility commands for linkdash",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("Available utility commands:")
		fmt.Println("  generate-cookie-key - Generate a cookie signature key")
		fmt.Println("  revoke <uid>        - Block session refresh for a user")
		fmt.Println("  restore <uid>       - Lift a revocation")
	},
}

var utilGenerateCookieKeyCmd = &cobra.Command{
	Use:   "generate-cookie-key",
	Short: "Generate a random secret for COOKIE_SIGNATURE_KEYS",
	RunE: func(cmd *cobra.Command, _ []string) error {
		buf := make([]byte, cookieKeyBytes)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), base64.RawURLEncoding.EncodeToString(buf))
		return nil
	},
}

var utilRevokeCmd = &cobra.Command{
	Use:   "revoke <uid>",
	Short: "Add a user to the revocation list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRevocationStore(cmd.Context(), func(ctx context.Context, store *revocation.RedisStore) error {
			if err := store.Revoke(ctx, args[0], revokeTTL); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s\n", args[0])
			return nil
		})
	},
}

var utilRestoreCmd = &cobra.Command{
	Use:   "restore <uid>",
	Short: "Remove a user from the revocation list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRevocationStore(cmd.Context(), func(ctx context.Context, store *revocation.RedisStore) error {
			if err := store.Restore(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", args[0])
			return nil
		})
	},
}

func withRevocationStore(ctx context.Context, fn func(context.Context, *revocation.RedisStore) error) error {
	if cfg == nil || cfg.RedisURL == "" {
		return errors.New("REDIS_URL is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := revocation.Open(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

func init() {
	rootCmd.AddCommand(utilCmd)
	utilCmd.AddCommand(utilGenerateCookieKeyCmd, utilRevokeCmd, utilRestoreCmd)
	utilRevokeCmd.Flags().DurationVar(&revokeTTL, "ttl", 0, "how long the revocation lasts (0 keeps it until restored)")
}
