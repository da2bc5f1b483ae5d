package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/nexus-search/internal/search"
)

const exitCommand = "exit"

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search [keyword]",
		Short: "Query the index for a keyword",
		Long: `With a keyword, prints its ranked results and exits. Without one, prompts
for keywords until "exit" or end of input.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			resolver := appInstance.Resolver()
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				return printResults(cmd.Context(), out, resolver, args[0])
			}
			return searchPrompt(cmd.Context(), cmd.InOrStdin(), out, resolver)
		},
	}
}

func searchPrompt(ctx context.Context, in io.Reader, out io.Writer, resolver *search.Resolver) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nEnter search term (or 'exit' to quit): ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		query := scanner.Text()
		if strings.EqualFold(strings.TrimSpace(query), exitCommand) {
			return nil
		}
		// A backend failure is reported and the prompt keeps going.
		if err := printResults(ctx, out, resolver, query); err != nil {
			fmt.Fprintf(out, "Search failed: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func printResults(ctx context.Context, out io.Writer, resolver *search.Resolver, query string) error {
	results, err := resolver.Find(ctx, query)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No results found. Try crawling more pages!")
		return nil
	}
	fmt.Fprintf(out, "Found %d results:\n", len(results))
	for i, res := range results {
		fmt.Fprintf(out, "%d. %s\n", i+1, res.Title)
		fmt.Fprintf(out, "   %s\n\n", res.URL)
	}
	return nil
}
