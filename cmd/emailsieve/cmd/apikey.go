package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bigcats-cc/email-sieve/internal/core/auth"
	"github.com/bigcats-cc/email-sieve/internal/core/config"
)

var apikeySecretID string

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Generate an admin API key",
	Long: `Generate a key for the admin HTTP API, signed by one of the secrets in
SIEVE_ADMIN_SECRET or SIEVE_ADMIN_SECRET_<n>. Keys are not stored; removing
the signing secret revokes every key it issued.`,
	Args: cobra.NoArgs,
	RunE: runAPIKey,
}

func init() {
	apikeyCmd.Flags().StringVar(&apikeySecretID, "secret-id", "", "secret to sign with (default: lowest configured secret ID)")
	rootCmd.AddCommand(apikeyCmd)
}

func runAPIKey(cmd *cobra.Command, _ []string) error {
	secrets, err := config.AdminSecrets()
	if err != nil {
		return err
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no admin secrets configured (set %s)", config.AdminSecretEnv)
	}

	secretID := apikeySecretID
	if secretID == "" {
		ids := make([]string, 0, len(secrets))
		for id := range secrets {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		secretID = ids[0]
	}
	secret, ok := secrets[secretID]
	if !ok {
		return fmt.Errorf("secret %s is not configured", secretID)
	}

	key, err := auth.GenerateAPIKey(secretID, secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}
