package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/paiban/medsched/internal/auth"
)

// TokenOutput token 命令输出
type TokenOutput struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	Role      string    `json:"role,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func buildTokenCommand(root *rootOptions) *cobra.Command {
	var subject, role string
	cmd := &cobra.Command{
		Use:     "token",
		Short:   "用配置中的密钥签发访问令牌",
		Example: `  MEDSCHED_AUTH_SECRET=s3cret medsched token --subject ward-3 --role planner`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(true)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return errors.New("未配置 auth.secret，无法签发令牌")
			}
			tm := auth.NewTokenManager(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
			token, exp, err := tm.Issue(subject, role)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), "", TokenOutput{
				Token:     token,
				Subject:   subject,
				Role:      role,
				ExpiresAt: exp,
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "令牌主体（调用方标识）")
	cmd.Flags().StringVar(&role, "role", "", "角色")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
