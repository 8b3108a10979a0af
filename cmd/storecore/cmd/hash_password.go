package cmd

import (
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/spf13/cobra"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Generate an argon2id hash for a seed identity",
	Long: `Generate an argon2id hash of a password for use in a seed file.

The output can be used directly in the identities[].password_hash
field of the auth seed file.

Example:
  storecore hash-password "hunter2"
  # Output: $argon2id$v=19$m=65536,t=1,p=...

Security note: The password will appear in shell history.
Consider clearing history after use or using an environment variable:
  storecore hash-password "$SEED_PASSWORD"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := argon2id.CreateHash(args[0], argon2id.DefaultParams)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}
