// ABOUTME: trust-token subcommand minting signed trust assertions
// ABOUTME: Useful for exercising the delegation handshake from curl or tests

package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/me/gatehouse/internal/config"
	"github.com/me/gatehouse/internal/trust"
)

var trustTokenTTL time.Duration

var trustTokenCmd = &cobra.Command{
	Use:   "trust-token <username>",
	Short: "Mint a trust assertion for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrustToken(args[0])
	},
}

func init() {
	trustTokenCmd.Flags().DurationVar(&trustTokenTTL, "ttl", 5*time.Minute, "assertion validity window")
}

func runTrustToken(username string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if !cfg.Trust.Enabled {
		return fmt.Errorf("trust delegation is not enabled in %s", cfgFile)
	}

	delegate, err := trust.New(trust.Config{
		Secret: []byte(cfg.Trust.Secret),
		Header: cfg.Trust.Header,
		Issuer: cfg.Trust.Issuer,
	})
	if err != nil {
		return err
	}
	defer delegate.Close()

	token, err := delegate.Mint(username, trustTokenTTL)
	if err != nil {
		return err
	}

	color.Green("assertion for %s (valid %s)", username, trustTokenTTL)
	fmt.Println(token)
	fmt.Printf("\ncurl -H '%s: %s' ...\n", delegate.Header(), token)
	return nil
}
