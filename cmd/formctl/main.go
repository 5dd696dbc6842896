// Command formctl imports, exports, publishes and lists forms through the
// formdesk HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"formdesk/api/internal/config"
)

const usage = `usage: formctl [-api URL] [-token JWT] <command> [args]

commands:
  import [-form ID] [-title T] [-logo FILE] <file>   save an exported form document
  export <formId> <version> <file|->                   write a version as a form document
  publish <formId> <version>                           publish the latest draft
  list [-status WIP|PUBLISH] [-page N] [-limit N]      list your forms
  search [-limit N] <query>                            search your forms by title
  token [-role R] [-name N] [-ttl D] <userId>          mint a development token
`

var errUsage = errors.New("invalid usage")

// cli holds the global options and IO of one invocation.
type cli struct {
	apiURL string
	token  string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	prompt titlePrompter
	cfg    func() (config.Config, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		prompt: terminalPrompt(os.Stdin),
		cfg:    config.Load,
	}
	if err := c.run(ctx, os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "formctl:", err)
		}
		os.Exit(1)
	}
}

func (c *cli) run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("formctl", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() { fmt.Fprint(c.stderr, usage) }
	fs.StringVar(&c.apiURL, "api", envOr("FORMDESK_API_URL", "http://localhost:8787"), "API base URL")
	fs.StringVar(&c.token, "token", os.Getenv("FORMDESK_TOKEN"), "bearer token")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "import":
		return c.runImport(ctx, rest)
	case "export":
		return c.runExport(ctx, rest)
	case "publish":
		return c.runPublish(ctx, rest)
	case "list":
		return c.runList(ctx, rest)
	case "search":
		return c.runSearch(ctx, rest)
	case "token":
		return c.runToken(rest)
	default:
		fmt.Fprintf(c.stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return errUsage
	}
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
