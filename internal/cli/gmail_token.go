package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

func newGmailTokenCmd(actions Actions) *cobra.Command {
	return &cobra.Command{
		Use:   "gmail-token",
		Short: "Authorize a Gmail account and print its refresh token",
		Long: `Prints the Google consent URL, reads the authorization code from stdin and
exchanges it for a refresh token. Store the token on the account with
PUT /api/v1/projects/{id}/account as oauth_refresh_token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			oc, err := actions.GmailOAuth()
			if err != nil {
				return err
			}
			return authorizeGmail(cmd.Context(), oc, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func authorizeGmail(ctx context.Context, oc *oauth2.Config, in io.Reader, out io.Writer) error {
	authURL := oc.AuthCodeURL("task-inbox", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(out, "Go to the following link in your browser:\n%s\n\n", authURL)
	fmt.Fprint(out, "Enter the authorization code: ")

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("authorization code is required")
	}

	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("unable to exchange authorization code: %w", err)
	}
	if tok.RefreshToken == "" {
		return fmt.Errorf("no refresh token returned; revoke the app's access and try again")
	}

	fmt.Fprintf(out, "\nRefresh Token: %s\n", tok.RefreshToken)
	return nil
}
