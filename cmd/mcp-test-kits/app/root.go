// Package app implements the mcp-test-kits command line.
package app

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X .../app.version=...".
var version = "1.0.0"

// NewRootCmd creates the mcp-test-kits root command.
func NewRootCmd() *cobra.Command {
	v := newViper()

	rootCmd := &cobra.Command{
		Use:   "mcp-test-kits",
		Short: "MCP test server with a built-in OAuth 2.1 authorization server",
		Long: `mcp-test-kits serves a set of MCP test tools over streamable HTTP.

With --oauth the MCP endpoint requires a Bearer token issued by the built-in
authorization server (authorization code flow with PKCE, dynamic client
registration, revocation and discovery metadata).`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadEnvFile(v.GetString(keyEnvFile))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to a .env file loaded into the environment")
	_ = v.BindPFlag(keyConfig, rootCmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag(keyEnvFile, rootCmd.PersistentFlags().Lookup("env-file"))

	rootCmd.AddCommand(newServeCmd(v))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("mcp-test-kits %s\n", version)
		},
	}
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}
