package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/researcher/internal/agent/researcher"
	"github.com/mohammad-safakhou/researcher/internal/protocol"
)

func messageCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "message [raw]",
		Short: "Handle one protocol message (argument or stdin) and print the reply",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := messageInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			rt, err := bootstrapRuntime(cmd.Context(), *cfgPath, needs{})
			if err != nil {
				return err
			}
			defer rt.Shutdown()

			outcome, err := rt.agent.HandleMessage(cmd.Context(), raw)
			if err != nil {
				return err
			}
			return writeOutcome(cmd.OutOrStdout(), outcome)
		},
	}
}

func messageInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read message: %w", err)
	}
	return string(raw), nil
}

func writeOutcome(w io.Writer, outcome researcher.Outcome) error {
	switch outcome.Kind {
	case researcher.OutcomeReply:
		_, err := fmt.Fprintln(w, protocol.Serialize(*outcome.Reply))
		return err
	case researcher.OutcomeTerminate:
		return nil
	default:
		return fmt.Errorf("unexpected outcome %v", outcome.Kind)
	}
}

func indexCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "index <url>...",
		Short: "Crawl urls into the research folder and reindex it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrapRuntime(cmd.Context(), *cfgPath, needs{retrieve: true, crawl: true})
			if err != nil {
				return err
			}
			defer rt.Shutdown()
			return reportIndex(cmd.OutOrStdout(), rt, rt.agent.Index(cmd.Context(), args))
		},
	}
}

func searchCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the web for query, crawl the results and reindex",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrapRuntime(cmd.Context(), *cfgPath, needs{retrieve: true, crawl: true, search: true})
			if err != nil {
				return err
			}
			defer rt.Shutdown()
			err = rt.agent.SearchAndIndex(cmd.Context(), strings.Join(args, " "))
			return reportIndex(cmd.OutOrStdout(), rt, err)
		},
	}
}

func reindexCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Index every folder below the research folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrapRuntime(cmd.Context(), *cfgPath, needs{retrieve: true})
			if err != nil {
				return err
			}
			defer rt.Shutdown()
			return reportIndex(cmd.OutOrStdout(), rt, rt.agent.Reindex(cmd.Context()))
		},
	}
}

// reportIndex prints the index size and, for partial reindexes, each failed folder.
func reportIndex(w io.Writer, rt *researchRuntime, err error) error {
	var partial *researcher.ReindexError
	if errors.As(err, &partial) {
		for _, f := range partial.Failures() {
			fmt.Fprintf(w, "failed: %s: %v\n", f.Folder, f.Err)
		}
	}
	folders, chunks := rt.store.Stats()
	fmt.Fprintf(w, "indexed %d folders, %d chunks under %s\n", folders, chunks, rt.agent.Folder())
	return err
}

func inferCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "infer <problem>",
		Short: "Answer a problem statement from the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrapRuntime(cmd.Context(), *cfgPath, needs{retrieve: true, infer: true, rebuild: true})
			if err != nil {
				return err
			}
			defer rt.Shutdown()

			answer, err := rt.agent.Infer(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), answer)
			return err
		},
	}
}
