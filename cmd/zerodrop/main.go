package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/mehmetcc/zerodrop/internal/client"
)

const defaultServer = "http://localhost:3007"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "zerodrop",
		Short:         "Run commands and queries on a ZeroDrop gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("ZERODROP_SERVER")
	if server == "" {
		server = defaultServer
	}
	rootCmd.PersistentFlags().String("server", server, "gateway base URL (env ZERODROP_SERVER)")
	rootCmd.PersistentFlags().String("token-file", "", "token file (default: user config dir/zerodrop/tokens.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log HTTP and refresh activity to stderr")

	rootCmd.AddCommand(
		sessionCmd("login", "Log in and store tokens", (*client.Client).Login),
		sessionCmd("register", "Create an account and store tokens", (*client.Client).Register),
		logoutCmd(),
		runCmd(),
		queryCmd(),
		denyCmd("deny-command", "Add a command to the denylist", (*client.Client).AddDeniedCommand),
		denyCmd("deny-query", "Add a query to the denylist", (*client.Client).AddDeniedQuery),
	)
	return rootCmd
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	server, _ := cmd.Flags().GetString("server")
	tokenFile, _ := cmd.Flags().GetString("token-file")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if tokenFile == "" {
		path, err := client.DefaultTokenPath()
		if err != nil {
			return nil, err
		}
		tokenFile = path
	}

	logger := zap.NewNop()
	if verbose {
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		l, err := cfg.Build()
		if err != nil {
			return nil, err
		}
		logger = l
	}
	return client.New(server, client.NewFileStore(tokenFile), nil, logger), nil
}

type sessionFunc func(c *client.Client, ctx context.Context, identifier, password string) (*client.Session, error)

func sessionCmd(use, short string, start sessionFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <identifier>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				if password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			session, err := start(c, cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (id %d)\n", session.User.Identifier, session.User.ID)
			return nil
		},
	}
	cmd.Flags().String("password", "", "password (prompted when omitted)")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the stored refresh token and forget both tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := c.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <command>...",
		Short: "Execute a shell command on the gateway host",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			output, err := c.RunCommand(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Execute SQL against the gateway database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			useGet, _ := cmd.Flags().GetBool("get")
			var raw json.RawMessage
			if useGet {
				raw, err = c.RunQueryGet(cmd.Context(), args[0])
			} else {
				raw, err = c.RunQuery(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, raw, "", "  "); err != nil {
				pretty.Reset()
				pretty.Write(raw)
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}
	cmd.Flags().Bool("get", false, "send the query as a URL parameter")
	return cmd
}

type denyFunc func(c *client.Client, ctx context.Context, text string) (uint, error)

func denyCmd(use, short string, deny denyFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <text>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			id, err := deny(c, cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added entry %d\n", id)
			return nil
		},
	}
}

// readPassword prompts without echo on a terminal and reads one line otherwise.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
