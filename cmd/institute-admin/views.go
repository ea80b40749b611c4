package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/target/institute-web/internal/authstate"
	"github.com/target/institute-web/internal/client"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"golang.org/x/term"
)

func newSignInCmd(a *app) *cobra.Command {
	var (
		email         string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "sign-in",
		Short: "Sign in with email and password",
		Long:  `Sign in and keep the session for later commands. The password is read from stdin, without echo on a terminal.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(email) == "" {
				return errors.New("--email is required")
			}
			password, err := readPassword(cmd, passwordStdin)
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			return a.withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				sess, err := c.SignIn(ctx, email, password)
				if err != nil {
					return err
				}
				return writef(cmd.OutOrStdout(), "Signed in as %s\n", sess.Email)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin without prompting")
	return cmd
}

// readPassword prompts without echo when stdin is a terminal and otherwise reads one line.
func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	in := cmd.InOrStdin()
	if fromStdin {
		return readLine(in)
	}
	if err := writef(cmd.ErrOrStderr(), "Password: "); err != nil {
		return "", err
	}
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return readLine(in)
	}
	raw, err := term.ReadPassword(int(f.Fd()))
	if err != nil {
		return "", err
	}
	if err := writef(cmd.ErrOrStderr(), "\n"); err != nil {
		return "", err
	}
	return checkPassword(string(raw))
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return checkPassword(strings.TrimRight(line, "\r\n"))
}

func checkPassword(p string) (string, error) {
	if p == "" {
		return "", errors.New("empty password")
	}
	return p, nil
}

func newSignOutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sign-out",
		Short: "End the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				if err := c.SignOut(ctx); err != nil && !client.IsStatus(err, http.StatusUnauthorized) {
					return err
				}
				return writef(cmd.OutOrStdout(), "Signed out\n")
			})
		},
	}
}

type whoami struct {
	SignedIn   bool                 `json:"signed_in"`
	UserID     string               `json:"user_id,omitempty"`
	Email      string               `json:"email,omitempty"`
	Role       domainauth.Role      `json:"role,omitempty"`
	RoleSource authstate.RoleSource `json:"role_source"`
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity and its role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withAuth(cmd.Context(), func(ctx context.Context, _ *client.Client, auth *authstate.Context) error {
				snap, err := auth.WaitResolved(ctx)
				if err != nil {
					return err
				}
				w := whoami{SignedIn: snap.SignedIn(), Role: snap.Role, RoleSource: snap.RoleSource}
				if snap.User != nil {
					w.UserID = snap.User.ID
					w.Email = snap.User.Email
				}
				out := cmd.OutOrStdout()
				if a.jsonOutput {
					return json.NewEncoder(out).Encode(w)
				}
				if !w.SignedIn {
					return writef(out, "Not signed in\n")
				}
				role := string(w.Role)
				if role == "" {
					role = "none"
				}
				return writef(out, "%s (%s)\nrole: %s (from %s)\n", w.Email, w.UserID, role, w.RoleSource)
			})
		},
	}
}

// guarded runs fetch only after the admin guard has authorized the signed-in user.
func (a *app) guarded(cmd *cobra.Command, fetch func(ctx context.Context, c *client.Client) error) error {
	return a.withAuth(cmd.Context(), func(ctx context.Context, c *client.Client, auth *authstate.Context) error {
		guard := authstate.NewGuard(auth, domainauth.RoleAdmin)
		err := guard.Run(ctx, func(ctx context.Context, _ authstate.Snapshot) error {
			return fetch(ctx, c)
		})
		var denied *authstate.DeniedError
		if errors.As(err, &denied) {
			return fmt.Errorf("access denied (%s): %w", denied.Reason, err)
		}
		return err
	})
}

func newUsersCmd(a *app) *cobra.Command {
	users := &cobra.Command{
		Use:   "users",
		Short: "Manage user roles (admin)",
	}

	var viaService bool
	// run picks the session-and-guard path or, with --service, the service key path.
	run := func(cmd *cobra.Command, session, keyed func(ctx context.Context, c *client.Client) error) error {
		if viaService {
			return a.withServiceClient(cmd.Context(), keyed)
		}
		return a.guarded(cmd, session)
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every user and role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			show := func(profiles []*domainauth.Profile, err error) error {
				if err != nil {
					return err
				}
				return a.printProfiles(cmd.OutOrStdout(), profiles)
			}
			return run(cmd,
				func(ctx context.Context, c *client.Client) error { return show(c.ListUsers(ctx)) },
				func(ctx context.Context, c *client.Client) error { return show(c.ServiceListUsers(ctx)) },
			)
		},
	}

	setRole := &cobra.Command{
		Use:   "set-role <user-id> <role>",
		Short: "Change a user's role (user or admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := domainauth.ParseRole(args[1])
			if !role.Valid() {
				return fmt.Errorf("unknown role %q (valid: user, admin)", args[1])
			}
			show := func(p *domainauth.Profile, err error) error {
				if err != nil {
					return err
				}
				return a.printProfiles(cmd.OutOrStdout(), []*domainauth.Profile{p})
			}
			return run(cmd,
				func(ctx context.Context, c *client.Client) error { return show(c.SetRole(ctx, args[0], role)) },
				func(ctx context.Context, c *client.Client) error { return show(c.ServiceSetRole(ctx, args[0], role)) },
			)
		},
	}

	users.PersistentFlags().BoolVar(&viaService, "service", false,
		"authenticate with "+envServiceKey+" instead of the saved session")
	users.AddCommand(list, setRole)
	return users
}

func newArchiveCmd(a *app) *cobra.Command {
	archive := &cobra.Command{
		Use:   "archive",
		Short: "Inspect the document archive (admin)",
	}
	archive.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every archive entry regardless of visibility",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.guarded(cmd, func(ctx context.Context, c *client.Client) error {
				entries, err := c.ListArchive(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.jsonOutput {
					return json.NewEncoder(out).Encode(entries)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				if err := writef(tw, "ID\tTITLE\tMIN ROLE\tCREATED\n"); err != nil {
					return err
				}
				for _, e := range entries {
					if err := writef(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Title, e.MinRole, formatTime(e.CreatedAt)); err != nil {
						return err
					}
				}
				return tw.Flush()
			})
		},
	})
	return archive
}

func (a *app) printProfiles(out io.Writer, profiles []*domainauth.Profile) error {
	if a.jsonOutput {
		return json.NewEncoder(out).Encode(profiles)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writef(tw, "ID\tEMAIL\tROLE\tUPDATED\n"); err != nil {
		return err
	}
	for _, p := range profiles {
		if err := writef(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Email, p.Role, formatTime(p.UpdatedAt)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
