package cli

import (
	"errors"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dosada05/bracket-automation/middleware"
	"github.com/Dosada05/bracket-automation/models"
)

type issuedToken struct {
	Token     string          `json:"token"`
	UserID    int             `json:"user_id"`
	Role      models.UserRole `json:"role"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		role   string
		userID int
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token for an operator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return errors.New("--user-id must be positive")
			}
			cfg, _, err := rootOpts.setup()
			if err != nil {
				return err
			}
			p := models.Principal{UserID: userID, Role: models.UserRole(role)}
			signed, err := middleware.IssueToken([]byte(cfg.JWTSecretKey), p, ttl)
			if err != nil {
				return err
			}
			out := issuedToken{Token: signed, UserID: p.UserID, Role: p.Role}
			if ttl > 0 {
				exp := time.Now().Add(ttl).UTC()
				out.ExpiresAt = &exp
			}
			return render(cmd.OutOrStdout(), rootOpts.Format, out, func(tw *tabwriter.Writer) {
				line(tw, "%s", out.Token)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", string(models.RoleOrganizer), "admin, organizer or player")
	cmd.Flags().IntVar(&userID, "user-id", 0, "user id carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime, 0 for no expiry")
	return cmd
}
