package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tinikov/stockapi/pkg/client"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

const defaultServerURL = "http://localhost:8000"

var (
	cfgFile   string
	serverURL string
	username  string
	secret    string
	timeout   time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stockctl",
	Short: "Command-line client for the stock API",
	Long: `stockctl adds and sells stock, reads totals and fetches the digest
protected /secret resource of a stockd server.

Credentials are only needed for protected routes and may come from flags,
~/.stockctl/config.yaml (username, secret, server_url) or STOCKCTL_* env vars.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.stockctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("stockctl")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = defaultServerURL
		}
		if username == "" {
			username = viper.GetString("username")
		}
		if secret == "" {
			secret = viper.GetString("secret")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.stockctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default "+defaultServerURL+")")
	rootCmd.PersistentFlags().StringVar(&username, "user", "", "digest username")
	rootCmd.PersistentFlags().StringVar(&secret, "secret", "", "digest shared secret")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	rootCmd.AddCommand(stockCmd)
	rootCmd.AddCommand(sellCmd)
	rootCmd.AddCommand(salesCmd)
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	opts := []client.Option{client.WithTimeout(timeout)}
	if username != "" {
		opts = append(opts, client.WithCredentials(username, secret))
	}
	return client.New(serverURL, opts...)
}

// ── stock ────────────────────────────────────────────────────────────────────

var stockCmd = &cobra.Command{
	Use:   "stock",
	Short: "Manage stock levels",
}

var (
	addAmount  int
	listFormat string
)

var stockAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add stock for a good, creating it if needed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.AddStock(cmd.Context(), args[0], addAmount); err != nil {
			return err
		}
		n, err := c.Stock(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", args[0], n)
		return nil
	},
}

var stockGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show the amount held of a good",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		n, err := c.Stock(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", args[0], n)
		return nil
	},
}

var stockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every good in stock",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		stocks, err := c.Stocks(cmd.Context())
		if err != nil {
			return err
		}
		return printStocks(cmd.OutOrStdout(), stocks, listFormat)
	},
}

var stockClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every good (sales totals are kept)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.ClearStocks(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Stock deleted")
		return nil
	},
}

func init() {
	stockAddCmd.Flags().IntVar(&addAmount, "amount", 0, "units to add (server default 1)")
	stockListCmd.Flags().StringVar(&listFormat, "format", "text", "Output format: text or json")

	stockCmd.AddCommand(stockAddCmd, stockGetCmd, stockListCmd, stockClearCmd)
}

// printStocks writes stocks ordered by name.
func printStocks(w io.Writer, stocks map[string]int, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stocks)
	case "text":
	default:
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}

	names := make([]string, 0, len(stocks))
	for name := range stocks {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tAMOUNT")
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%d\n", name, stocks[name])
	}
	return tw.Flush()
}

// ── sell / sales ─────────────────────────────────────────────────────────────

var (
	sellAmount int
	sellPrice  float64
)

var sellCmd = &cobra.Command{
	Use:   "sell <name>",
	Short: "Sell units of a good",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		sale := client.Sale{Name: args[0], Amount: sellAmount, Price: sellPrice}
		if err := c.Sell(cmd.Context(), sale); err != nil {
			return err
		}
		n, err := c.Stock(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sold %s, %d left\n", args[0], n)
		return nil
	},
}

var salesCmd = &cobra.Command{
	Use:   "sales",
	Short: "Show the cumulative sales value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		v, err := c.Sales(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%.2f\n", v)
		return nil
	},
}

func init() {
	sellCmd.Flags().IntVar(&sellAmount, "amount", 0, "units to sell (server default 1)")
	sellCmd.Flags().Float64Var(&sellPrice, "price", 0, "unit price (server default 0)")
}

// ── secret ───────────────────────────────────────────────────────────────────

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Fetch /secret, answering the digest challenge",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if username == "" {
			return fmt.Errorf("--user is required (or set username in the config file)")
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		body, err := c.Secret(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(body))
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the stockctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "stockctl %s\n", version)
	},
}
