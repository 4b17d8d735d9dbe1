package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/core"
	"github.com/mikey/insight-pipeline/internal/di"
	"github.com/mikey/insight-pipeline/internal/factory"
	"github.com/mikey/insight-pipeline/internal/pipeline"
	"github.com/mikey/insight-pipeline/internal/utils"
)

var (
	flagProvider string
	flagToken    string
	flagUser     string
	flagMax      int
	flagType     string
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Compute merged email and bank insights",
	RunE:  runInsights,
}

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "List classified messages without calling the LLM",
	RunE:  runMessages,
}

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Recover insight records from raw LLM output",
	Long:  "parse reads raw LLM output from a file or stdin and prints the insight records recovered from it.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runParse,
}

func init() {
	for _, c := range []*cobra.Command{insightsCmd, messagesCmd} {
		c.Flags().StringVar(&flagProvider, "provider", "gmail", "mail provider (gmail, outlook)")
		c.Flags().StringVar(&flagToken, "token", os.Getenv("INSIGHTS_MAIL_TOKEN"), "OAuth access token for the mail provider")
		c.Flags().IntVar(&flagMax, "max", 0, "maximum number of messages to fetch")
	}
	insightsCmd.Flags().StringVar(&flagUser, "user", "", "user identity used for bank insights")
	messagesCmd.Flags().StringVar(&flagType, "type", "", "only print messages of this type")
}

func mailRequest() (core.InsightRequest, error) {
	provider, err := core.ParseProvider(strings.ToLower(flagProvider))
	if err != nil {
		return core.InsightRequest{}, fmt.Errorf("%w: %s", err, flagProvider)
	}
	if flagToken == "" {
		return core.InsightRequest{}, fmt.Errorf("a mail access token is required (--token or INSIGHTS_MAIL_TOKEN)")
	}
	return core.InsightRequest{
		UserIdentity: strings.ToLower(strings.TrimSpace(flagUser)),
		Provider:     provider,
		Token:        flagToken,
		MaxResults:   flagMax,
	}, nil
}

func runInsights(cmd *cobra.Command, args []string) error {
	req, err := mailRequest()
	if err != nil {
		return err
	}

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		return fmt.Errorf("failed to build dependency container: %w", err)
	}

	return container.Invoke(func(service *core.InsightService, llm core.LLMClient, logger *zap.Logger) error {
		defer logger.Sync()
		if closer, ok := llm.(interface{ Close() error }); ok {
			defer closer.Close()
		}

		records, err := service.GetOrCompute(cmd.Context(), req)
		if err != nil {
			return err
		}
		logger.Info("Computed insights", zap.Int("count", len(records)))
		return printJSON(cmd.OutOrStdout(), records)
	})
}

type messagesOutput struct {
	Messages []core.AIReadableMessage `json:"messages"`
	Summary  core.MessageSummary      `json:"summary"`
}

// runMessages builds the pipeline without an LLM client, since listing
// messages never prompts one
func runMessages(cmd *cobra.Command, args []string) error {
	req, err := mailRequest()
	if err != nil {
		return err
	}

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		return fmt.Errorf("failed to build dependency container: %w", err)
	}

	return container.Invoke(func(
		f *factory.PipelineFactory,
		providers []core.MailProvider,
		textProcessor *utils.TextProcessor,
		logger *zap.Logger,
	) error {
		defer logger.Sync()

		p, err := f.CreateEmailPipeline(providers, nil, textProcessor)
		if err != nil {
			return err
		}
		msgs, err := p.Messages(cmd.Context(), req)
		if err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), messagesOutput{
			Messages: pipeline.FilterByType(msgs, core.MessageType(flagType)),
			Summary:  pipeline.Summarize(msgs),
		})
	})
}

func runParse(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer f.Close()
		r = f
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), core.NormalizeText(string(raw)))
}
