package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/mikey/insight-pipeline/internal/di"
)

var (
	version = "dev"
	commit  = "none"
)

var flags = &di.CLIFlags{}

var rootCmd = &cobra.Command{
	Use:           "insight-cli",
	Short:         "Financial insights from a mailbox",
	Long:          "insight-cli fetches recent mail from Gmail or Outlook, classifies it and asks an LLM for financial insights.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()

	// LLM provider flags
	pf.StringVar(&flags.LLMProvider, "llm", "openai", "LLM provider (openai, openrouter, gemini, bedrock)")
	pf.StringVar(&flags.ModelName, "model", "", "model name or Bedrock model id")
	pf.StringVar(&flags.APIKey, "api-key", os.Getenv("INSIGHTS_LLM_API_KEY"), "API key for OpenAI-compatible or Gemini providers")
	pf.StringVar(&flags.BaseURL, "base-url", "", "base URL of the OpenAI-compatible API")
	pf.IntVar(&flags.MaxTokens, "max-tokens", 0, "maximum tokens for the LLM response")
	pf.Float64Var(&flags.Temperature, "temperature", -1, "sampling temperature, negative keeps the default")
	pf.IntVar(&flags.MaxBodySize, "max-body-size", 0, "maximum prompt size sent to the LLM")
	pf.StringVar(&flags.Timeout, "llm-timeout", "", "LLM request timeout (e.g. 60s)")
	pf.StringVar(&flags.BedrockRegion, "bedrock-region", "", "AWS region for Bedrock")

	// Mail flags
	pf.StringVar(&flags.GmailEndpoint, "gmail-endpoint", "", "override the Gmail API endpoint")
	pf.StringVar(&flags.OutlookBaseURL, "outlook-base-url", "", "override the Microsoft Graph base URL")

	// Pipeline flags
	pf.StringSliceVar(&flags.SkipTypes, "skip-types", nil, "message types left out of the LLM prompt")
	pf.StringSliceVar(&flags.IgnoredDomains, "ignore-domains", nil, "sender domains dropped before classification")

	// Bank flags
	pf.StringVar(&flags.BankMode, "bank", "none", "bank insight source (none, llm, http)")
	pf.StringVar(&flags.BankBackendURL, "bank-url", "", "base URL of the bank insight backend")
	pf.StringVar(&flags.TransactionsFile, "transactions", "", "JSON file of bank transactions")

	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable verbose logging")
	pf.BoolVar(&flags.JSONLog, "json-log", false, "output logs in JSON format")
	pf.StringVar(&flags.ConfigFile, "config", "", "path to a config file (overrides the flags above)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(parseCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "insight-cli %s (commit: %s)\n", version, commit)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
