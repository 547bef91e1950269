package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/cvdesk/internal/cvapi"
)

// readPassword returns --password or the first line of stdin.
func readPassword(cmd *cobra.Command) (string, error) {
	if pw, _ := cmd.Flags().GetString("password"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Local().Format(time.DateTime)
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Log in and store the session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.auth.Login(cmd.Context(), args[0], password)
		if err != nil {
			return errorf("login failed", err)
		}
		printSuccess("Logged in as %s (session expires %s)", sess.Username, formatExpiry(sess.ExpiresAt))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.auth.Logout(); err != nil {
			return err
		}
		printSuccess("Logged out")
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Create an account on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		role, _ := cmd.Flags().GetString("role")
		priority, _ := cmd.Flags().GetInt("priority")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		msg, err := a.auth.Register(cmd.Context(), cvapi.RegisterRequest{
			Username: args[0],
			Password: password,
			Name:     name,
			Role:     role,
			Priority: priority,
		})
		if err != nil {
			return errorf("registration failed", err)
		}
		printSuccess("%s", msg.Message)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if a.cfg.Auth.Token != "" {
			printStatus("Token", "from CVDESK_TOKEN")
			return nil
		}
		sess, err := a.auth.Session()
		if err != nil {
			return err
		}
		if !sess.LoggedIn() {
			printWarning("Not logged in")
			return nil
		}
		printStatus("User", "%s", orDash(sess.Username))
		printStatus("Expires", "%s", formatExpiry(sess.ExpiresAt))
		printStatus("Server", "%s", a.api.BaseURL())
		return nil
	},
}

func init() {
	loginCmd.Flags().String("password", "", "password (read from stdin when omitted)")
	registerCmd.Flags().String("password", "", "password (read from stdin when omitted)")
	registerCmd.Flags().String("name", "", "display name")
	registerCmd.Flags().String("role", "", "account role")
	registerCmd.Flags().Int("priority", 0, "account priority")
}
