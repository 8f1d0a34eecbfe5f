package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gcpassist/gcpassist/engine/rag"
	"github.com/gcpassist/gcpassist/pkg/config"
	"github.com/gcpassist/gcpassist/pkg/logger"
)

// AskCmd answers one question from the command line.
func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ask <question>",
		Short:   "Answer a single question against the indexed guidelines",
		Example: `  gcpassist ask "What does ICH E6 say about source data verification?"`,
		Args:    cobra.MinimumNArgs(1),
		RunE:    runAsk,
	}
	cmd.Flags().Bool("json", false, "Print the full response as JSON")
	cmd.Flags().String("mode", "", "Retrieval mode override (similarity or mmr)")
	cmd.Flags().Int("top-k", 0, "Number of chunks to retrieve")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	log := logger.FromContext(ctx)
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("failed to get json flag: %w", err)
	}
	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to release resources", "error", err)
		}
	}()
	resp, err := app.Conversation.Answer(ctx, rag.Request{Message: strings.Join(args, " ")})
	if err != nil {
		return err
	}
	return writeAnswer(cmd.OutOrStdout(), resp, asJSON)
}

func writeAnswer(w io.Writer, resp *rag.Response, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	if _, err := fmt.Fprintln(w, resp.Content); err != nil {
		return err
	}
	if len(resp.Citations) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nSources:")
	for _, c := range resp.Citations {
		if c.Page != nil {
			fmt.Fprintf(w, "  - %s, p. %d\n", c.Source, *c.Page)
			continue
		}
		fmt.Fprintf(w, "  - %s\n", c.Source)
	}
	return nil
}
