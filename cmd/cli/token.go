package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/keytrust/internal/application/dto"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	token := &cobra.Command{
		Use:   "token",
		Short: "Issue tokens",
	}

	req := &dto.TokenIssueRequest{}
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign a token for a subject with the active key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			req.TTLSeconds = int64(ttl.Seconds())
			issued, err := rt.issuer.Issue(cmd.Context(), req)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), dto.NewTokenResponse(issued))
			}
			fmt.Fprintln(cmd.OutOrStdout(), issued.Token)
			return nil
		},
	}
	issue.Flags().StringVar(&req.Subject, "subject", "", "token subject (required)")
	issue.Flags().StringVar(&req.UserID, "user-id", "", "user_id claim")
	issue.Flags().StringSliceVar(&req.Authorities, "authority", nil, "granted authority, repeatable")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, capped by token.ttl (default: token.ttl)")
	_ = issue.MarkFlagRequired("subject")

	token.AddCommand(issue)
	return token
}
