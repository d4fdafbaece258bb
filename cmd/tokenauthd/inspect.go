package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	tokenAuth "github.com/MrEthical07/tokenAuth"
	"github.com/MrEthical07/tokenAuth/internal/settings"
)

type inspection struct {
	Status    string     `json:"status"`
	Kind      string     `json:"kind,omitempty"`
	Subject   string     `json:"subject,omitempty"`
	Claims    []string   `json:"claims,omitempty"`
	TokenID   string     `json:"tokenId,omitempty"`
	Family    string     `json:"family,omitempty"`
	IssuedAt  *time.Time `json:"issuedAt,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func newInspectCommand(configPath *string) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "inspect [token]",
		Short: "Classify a token with the configured keys",
		Long:  "Classify a token with the configured keys. The token is read from stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load(*configPath)
			if err != nil {
				return err
			}
			raw, err := tokenArg(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			now := time.Now()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}

			engine, err := inspectEngine(s)
			if err != nil {
				return err
			}
			defer engine.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(describe(engine.Classify(raw, now)))
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "classify as of this RFC 3339 instant instead of now")
	return cmd
}

// inspectEngine needs keys only; no ledger, throttle or audit.
func inspectEngine(s *settings.Settings) (*tokenAuth.Engine, error) {
	kp, err := s.KeyProvider()
	if err != nil {
		return nil, err
	}
	cfg := s.EngineConfig()
	cfg.Security.EnableLoginThrottle = false
	cfg.Security.EnableIPThrottle = false
	cfg.Audit.Enabled = false
	cfg.Refresh.ReuseDetection = false
	return tokenAuth.New().WithConfig(cfg).WithKeyProvider(kp).Build()
}

func tokenArg(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	b, err := io.ReadAll(io.LimitReader(stdin, 64<<10))
	if err != nil {
		return "", err
	}
	raw := strings.TrimSpace(string(b))
	if raw == "" {
		return "", fmt.Errorf("no token given")
	}
	return raw, nil
}

func describe(r tokenAuth.Result) inspection {
	out := inspection{Status: r.Status.String()}
	if !r.IssuedAt.IsZero() {
		iat := r.IssuedAt.UTC()
		out.IssuedAt = &iat
	}
	if !r.ExpiresAt.IsZero() {
		exp := r.ExpiresAt.UTC()
		out.ExpiresAt = &exp
	}
	if !r.Valid() {
		return out
	}
	out.Kind = r.Kind.String()
	out.Subject = r.Identity.Subject
	out.Claims = r.Identity.Claims
	out.TokenID = r.TokenID
	out.Family = r.Family
	return out
}
