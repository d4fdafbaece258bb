package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/tokenAuth/jwt"
)

const secretBytes = 32

func newKeygenCommand() *cobra.Command {
	var (
		method string
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate signing key material",
		Long: `Generate signing key material.

ed25519 writes signing.key and signing.pub (PEM) into --out.
hs256 writes a random secret to signing.secret, or prints it base64
encoded when --out is empty.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch jwt.SigningMethod(method) {
			case jwt.MethodEd25519:
				if outDir == "" {
					return fmt.Errorf("ed25519 needs --out")
				}
				priv, pub, err := jwt.GenerateEd25519PEM()
				if err != nil {
					return err
				}
				if err := writeKeyFile(filepath.Join(outDir, "signing.key"), priv, 0o600); err != nil {
					return err
				}
				if err := writeKeyFile(filepath.Join(outDir, "signing.pub"), pub, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n",
					filepath.Join(outDir, "signing.key"), filepath.Join(outDir, "signing.pub"))
			case jwt.MethodHS256:
				secret, err := jwt.GenerateSecret(secretBytes)
				if err != nil {
					return err
				}
				if outDir == "" {
					fmt.Fprintln(cmd.OutOrStdout(), base64.RawURLEncoding.EncodeToString(secret))
					return nil
				}
				path := filepath.Join(outDir, "signing.secret")
				if err := writeKeyFile(path, secret, 0o600); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			default:
				return fmt.Errorf("unknown signing method %q (want ed25519 or hs256)", method)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&method, "method", string(jwt.MethodEd25519), "ed25519 or hs256")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory for the key files")
	return cmd
}

func writeKeyFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
