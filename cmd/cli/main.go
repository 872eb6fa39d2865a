package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iho/coinledger/internal/infrastructure/auth"
	"github.com/iho/coinledger/internal/infrastructure/logger"
	"github.com/iho/coinledger/internal/infrastructure/postgres"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// apiClient talks to the coinledger HTTP API.
type apiClient struct {
	baseURL        string
	http           *http.Client
	idempotencyKey string
}

func (c *apiClient) do(method, path string, body any, out io.Writer) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.idempotencyKey != "" && method == http.MethodPost {
		req.Header.Set("Idempotency-Key", c.idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}

	return printJSON(out, data)
}

// printJSON pretty-prints a JSON document.
func printJSON(out io.Writer, data []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	_, err := fmt.Fprintln(out, buf.String())
	return err
}

func newRootCmd() *cobra.Command {
	var (
		baseURL string
		timeout time.Duration
		key     string
	)

	client := &apiClient{}

	rootCmd := &cobra.Command{
		Use:           "coinledger-cli",
		Short:         "Coinledger CLI tool",
		Long:          `A command line interface for interacting with the coinledger API.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			client.baseURL = baseURL
			client.http = &http.Client{Timeout: timeout}
			client.idempotencyKey = key
		},
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the coinledger API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&key, "idempotency-key", "", "Idempotency-Key header for POST requests")

	rootCmd.AddCommand(
		newWalletCmd(client),
		newTransferCmd(client),
		newTopCmd(client),
		newTransactionsCmd(client),
		newProvisionCmd(client),
		newTokenCmd(),
		newMigrateCmd(),
	)

	return rootCmd
}

func newWalletCmd(client *apiClient) *cobra.Command {
	walletCmd := &cobra.Command{
		Use:   "wallet",
		Short: "Wallet operations",
	}

	var (
		owner   int64
		balance int64
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"owner_id": owner}
			if cmd.Flags().Changed("balance") {
				body["starting_balance"] = balance
			}
			return client.do(http.MethodPost, "/api/v1/wallets", body, cmd.OutOrStdout())
		},
	}
	createCmd.Flags().Int64Var(&owner, "owner", 0, "Owner ID")
	createCmd.Flags().Int64Var(&balance, "balance", 0, "Starting balance (server default when omitted)")
	_ = createCmd.MarkFlagRequired("owner")

	getCmd := &cobra.Command{
		Use:   "get <wallet-id>",
		Short: "Show a wallet and its balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return client.do(http.MethodGet, fmt.Sprintf("/api/v1/wallets/%d", id), nil, cmd.OutOrStdout())
		},
	}

	var listOwner int64
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's wallets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.do(http.MethodGet, fmt.Sprintf("/api/v1/owners/%d/wallets", listOwner), nil, cmd.OutOrStdout())
		},
	}
	listCmd.Flags().Int64Var(&listOwner, "owner", 0, "Owner ID")
	_ = listCmd.MarkFlagRequired("owner")

	var amount int64
	incrementCmd := &cobra.Command{
		Use:   "increment <wallet-id>",
		Short: "Add coins to a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			body := map[string]any{"amount": amount}
			return client.do(http.MethodPost, fmt.Sprintf("/api/v1/wallets/%d/increment", id), body, cmd.OutOrStdout())
		},
	}
	incrementCmd.Flags().Int64Var(&amount, "amount", 1, "Coins to add")

	walletCmd.AddCommand(createCmd, getCmd, listCmd, incrementCmd)

	return walletCmd
}

func newTransferCmd(client *apiClient) *cobra.Command {
	var from, to, amount int64

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Move coins between wallets",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"sender_wallet_id":    from,
				"recipient_wallet_id": to,
				"amount":              amount,
			}
			return client.do(http.MethodPost, "/api/v1/transfers", body, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int64Var(&from, "from", 0, "Sender wallet ID")
	cmd.Flags().Int64Var(&to, "to", 0, "Recipient wallet ID")
	cmd.Flags().Int64Var(&amount, "amount", 0, "Coins to move")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func newTopCmd(client *apiClient) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the richest owners",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/leaderboard"
			if cmd.Flags().Changed("n") {
				path += "?n=" + strconv.Itoa(n)
			}
			return client.do(http.MethodGet, path, nil, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 100, "Number of owners")

	return cmd
}

func newTransactionsCmd(client *apiClient) *cobra.Command {
	var (
		wallet        int64
		since, until  string
		limit, offset int
	)

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "Query the transaction log",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/transfers"
			if wallet > 0 {
				path = fmt.Sprintf("/api/v1/wallets/%d/transactions", wallet)
			}

			q := url.Values{}
			for name, value := range map[string]string{"since": since, "until": until} {
				if value == "" {
					continue
				}
				if _, err := time.Parse(time.RFC3339, value); err != nil {
					return fmt.Errorf("--%s must be RFC 3339: %w", name, err)
				}
				q.Set(name, value)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			return client.do(http.MethodGet, path, nil, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int64Var(&wallet, "wallet", 0, "Only records involving this wallet")
	cmd.Flags().StringVar(&since, "since", "", "Earliest time, inclusive (RFC 3339)")
	cmd.Flags().StringVar(&until, "until", "", "Latest time, exclusive (RFC 3339)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Records to skip")

	return cmd
}

func newProvisionCmd(client *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "provision <owner-id>",
		Short: "Get or create an owner's default wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return client.do(http.MethodPost, fmt.Sprintf("/api/v1/owners/%d/provision", id), nil, cmd.OutOrStdout())
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		owner  int64
		secret string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for an owner",
		Long:  `Signs a token for the /api/v1/me routes with the server's JWT_SECRET.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret or JWT_SECRET is required")
			}

			token, err := auth.NewJWTManager(secret, ttl).Generate(owner)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().Int64Var(&owner, "owner", 0, "Owner ID")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (defaults to $JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func newMigrateCmd() *cobra.Command {
	var databaseURL, path string

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the postgres schema",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			return nil
		},
	}
	migrateCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL (defaults to $DATABASE_URL)")
	migrateCmd.PersistentFlags().StringVar(&path, "path", "internal/infrastructure/postgres/migrations", "Migrations directory")

	log := func(cmd *cobra.Command) zerolog.Logger {
		return logger.NewWithWriter(logger.Config{Level: "info", Format: "console"}, cmd.ErrOrStderr())
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postgres.RunMigrations(databaseURL, path, log(cmd))
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postgres.RunMigrationsDown(databaseURL, path, log(cmd))
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			version, dirty, err := postgres.MigrationVersion(databaseURL, path, log(cmd))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return err
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd, versionCmd)

	return migrateCmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
