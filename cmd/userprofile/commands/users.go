package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"userprofile/internal/domain"
	"userprofile/internal/repository"
	"userprofile/internal/transport"

	_ "userprofile/internal/repository/sqlite"
)

// userReader is what both the local store and the gRPC client offer.
type userReader interface {
	list(ctx context.Context) ([]domain.User, error)
	get(ctx context.Context, id string) (domain.User, error)
	activity(ctx context.Context, id string) ([]repository.Activity, error)
	close() error
}

type storeReader struct{ s repository.Store }

func (r storeReader) list(ctx context.Context) ([]domain.User, error) { return r.s.GetAll(ctx) }
func (r storeReader) get(ctx context.Context, id string) (domain.User, error) {
	return r.s.FindByID(ctx, id)
}
func (r storeReader) activity(ctx context.Context, id string) ([]repository.Activity, error) {
	return r.s.Activity(ctx, id)
}
func (r storeReader) close() error { return r.s.Close() }

type remoteReader struct{ c *transport.QueryClient }

func (r remoteReader) list(ctx context.Context) ([]domain.User, error) { return r.c.ListUsers(ctx) }
func (r remoteReader) get(ctx context.Context, id string) (domain.User, error) {
	return r.c.GetUser(ctx, id)
}
func (r remoteReader) activity(ctx context.Context, id string) ([]repository.Activity, error) {
	return r.c.GetActivity(ctx, id)
}
func (r remoteReader) close() error { return r.c.Close() }

func (c *CLI) newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect stored user profiles",
	}
	cmd.PersistentFlags().String("addr", "", "Query a running service at host:port instead of opening the database")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all users, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := c.openReader(cmd)
			if err != nil {
				return err
			}
			defer r.close()
			users, err := r.list(cmd.Context())
			if err != nil {
				return err
			}
			return writeUsers(cmd.OutOrStdout(), users)
		},
	})

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one user as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.openReader(cmd)
			if err != nil {
				return err
			}
			defer r.close()
			u, err := r.get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			raw, err := u.ToJSON()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(raw))

			if withActivity, _ := cmd.Flags().GetBool("activity"); withActivity {
				acts, err := r.activity(cmd.Context(), u.ID)
				if err != nil {
					return err
				}
				return writeActivity(cmd.OutOrStdout(), acts)
			}
			return nil
		},
	}
	get.Flags().Bool("activity", false, "Also print the user's orders and notifications")
	cmd.AddCommand(get)
	return cmd
}

func (c *CLI) openReader(cmd *cobra.Command) (userReader, error) {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cl, err := transport.Dial(addr)
		if err != nil {
			return nil, err
		}
		return remoteReader{c: cl}, nil
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := repository.Open(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := s.CreateTable(cmd.Context()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return storeReader{s: s}, nil
}

func writeUsers(w io.Writer, users []domain.User) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tUSER NAME\tEMAIL\tUPDATED")
	for _, u := range users {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.UserName, u.Email, u.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func writeActivity(w io.Writer, acts []repository.Activity) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KIND\tREF\tSTATUS\tDETAIL\tAT")
	for _, a := range acts {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.Kind, a.Ref, a.Status, a.Detail, a.OccurredAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
