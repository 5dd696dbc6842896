package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"formdesk/api/internal/auth"
	"formdesk/api/internal/canvas"
	"formdesk/api/internal/client"
	"formdesk/api/internal/designer"
	"formdesk/api/internal/rbac"
)

func (c *cli) api() *client.Client {
	return client.New(c.apiURL, c.token)
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) runImport(ctx context.Context, args []string) error {
	fs := c.flags("import")
	formID := fs.String("form", "", "existing form id to save into")
	title := fs.String("title", "", "form title (overrides the document)")
	logo := fs.String("logo", "", "image file to use as the logo")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(c.stderr, "usage: formctl import [-form ID] [-title T] [-logo FILE] <file>")
		return errUsage
	}

	session := designer.NewSession(c.api())
	if err := c.readDocument(session, fs.Arg(0)); err != nil {
		return err
	}
	if *formID != "" {
		session.Bind(*formID)
	}
	if *title != "" {
		session.SetTitle(*title)
	}
	if *logo != "" {
		session.SetLogo(fileAsset(*logo))
	}
	if session.Title() == "" {
		prompted, err := c.prompt(ctx)
		if err != nil {
			return err
		}
		session.SetTitle(prompted)
	}

	ref, err := session.Save(ctx)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	fmt.Fprintf(c.stdout, "%s\tv%d\t%s\n", ref.FormID, ref.Version, ref.Status)
	return nil
}

func (c *cli) readDocument(session *designer.Session, path string) error {
	if path == "-" {
		return session.Import(c.stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return session.Import(f)
}

// fileAsset attaches a local file as a transient asset. It is read and
// encoded when the session is saved.
func fileAsset(path string) *canvas.Asset {
	return canvas.TransientAsset(canvas.TransientRef{
		Name:      filepath.Base(path),
		MediaType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	})
}

func (c *cli) runExport(ctx context.Context, args []string) error {
	if len(args) != 3 {
		fmt.Fprintln(c.stderr, "usage: formctl export <formId> <version> <file|->")
		return errUsage
	}
	version, err := parseVersion(args[1])
	if err != nil {
		return err
	}

	session := designer.NewSession(c.api())
	if err := session.Load(ctx, args[0], version); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if args[2] == "-" {
		return session.Export(c.stdout)
	}
	f, err := os.Create(args[2])
	if err != nil {
		return err
	}
	if err := session.Export(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (c *cli) runPublish(ctx context.Context, args []string) error {
	if len(args) != 2 {
		fmt.Fprintln(c.stderr, "usage: formctl publish <formId> <version>")
		return errUsage
	}
	version, err := parseVersion(args[1])
	if err != nil {
		return err
	}
	ref, err := c.api().Publish(ctx, args[0], version)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	fmt.Fprintf(c.stdout, "%s\tv%d\t%s\n", ref.FormID, ref.Version, ref.Status)
	return nil
}

func (c *cli) runList(ctx context.Context, args []string) error {
	fs := c.flags("list")
	status := fs.String("status", "", "WIP or PUBLISH (default WIP)")
	page := fs.Int("page", 0, "1-based page")
	limit := fs.Int("limit", 0, "page size")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	result, err := c.api().ListForms(ctx, *status, *page, *limit)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FORM\tVERSION\tSTATUS\tTITLE\tUPDATED")
	for _, form := range result.Forms {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", form.FormID, form.Version, form.Status, form.Title, form.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func (c *cli) runSearch(ctx context.Context, args []string) error {
	fs := c.flags("search")
	limit := fs.Int("limit", 0, "maximum results")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	query := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(c.stderr, "usage: formctl search [-limit N] <query>")
		return errUsage
	}
	resp, err := c.api().Search(ctx, query, *limit)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	for _, hit := range resp.Results {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", hit.FormID, hit.Version, hit.Status, hit.Title)
	}
	return tw.Flush()
}

func (c *cli) runToken(args []string) error {
	fs := c.flags("token")
	role := fs.String("role", string(rbac.RoleEditor), "viewer, editor, publisher or admin")
	name := fs.String("name", "", "display name")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(c.stderr, "usage: formctl token [-role R] [-name N] [-ttl D] <userId>")
		return errUsage
	}
	cfg, err := c.cfg()
	if err != nil {
		return err
	}
	tok, err := auth.IssueToken([]byte(cfg.JWTSecret), fs.Arg(0), *name, string(rbac.Normalize(*role)), *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, tok)
	return nil
}

func parseVersion(raw string) (int, error) {
	version, err := strconv.Atoi(raw)
	if err != nil || version < 1 {
		return 0, errors.New("version must be a positive integer")
	}
	return version, nil
}
