package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexastudio/creditmeter/adapters/hasher"
	"github.com/nexastudio/creditmeter/adapters/random"
)

var keyCost int

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the service key",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a service key and its bcrypt hash",
	Long: `Generate a new service key for calling /v1.

The key is printed once. Give the key to trusted callers (X-Service-Key
header) and configure the server with the hash:

  CREDITMETER_AUTH_SERVICE_KEY_HASH='<hash>' creditmeter serve`,
	RunE: runKeysGenerate,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd)

	keysGenerateCmd.Flags().IntVar(&keyCost, "cost", 12, "bcrypt cost")
}

func runKeysGenerate(cmd *cobra.Command, args []string) error {
	key, err := random.ServiceKey(random.Real{})
	if err != nil {
		return err
	}

	h := hasher.NewBcrypt(keyCost)
	hash, err := h.Hash(key)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}

	out := stdout(cmd)
	fmt.Fprintf(out, "Service key: %s\n", key)
	fmt.Fprintf(out, "Hash:        %s\n\n", hash)
	fmt.Fprintln(out, "Save the key now, it cannot be recovered.")
	fmt.Fprintf(out, "CREDITMETER_AUTH_SERVICE_KEY_HASH='%s'\n", hash)
	return nil
}
