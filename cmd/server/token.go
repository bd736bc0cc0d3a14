package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mcp-knowledge-go/internal/config"
	"mcp-knowledge-go/pkg/token"
)

const tokenIssuer = "mcp-knowledge-go"

var tokenSubject string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API token signed with auth.jwt_secret",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "caller name stored in the token")
	_ = tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not set")
	}
	m := token.NewJWTManager(cfg.Auth.JWTSecret, tokenIssuer, cfg.Auth.TokenExpireHours)
	tok, err := m.GenerateToken(tokenSubject, cfg.Knowledge.Domain)
	if err != nil {
		return fmt.Errorf("签发 token 失败: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
