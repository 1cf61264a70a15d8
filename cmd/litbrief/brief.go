// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litbrief/internal/search"
	"github.com/pdiddy/litbrief/internal/workflow"
	"github.com/pdiddy/litbrief/pkg/types"
)

var briefCmd = &cobra.Command{
	Use:   "brief",
	Short: "Create briefs and move them through the workflow",
	Long: `A brief is one research question carried through four steps:

  define    the research question
  refine    chat about the question and choose arXiv search terms
  search    run the terms against arXiv, score and select papers
  generate  write a cited review from the selected papers

Steps unlock in order; "brief steps" shows where a brief stands.`,
}

var briefNewCmd = &cobra.Command{
	Use:   "new QUESTION...",
	Short: "Create a brief for a research question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			b, err := a.pipeline.CreateBrief(ctx, title, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), b)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", b.ID, b.Title)
			return nil
		})
	},
}

var briefListCmd = &cobra.Command{
	Use:   "list",
	Short: "List briefs, most recently updated first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			briefs, err := a.store.ListBriefs(ctx)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), briefs)
			}
			w := cmd.OutOrStdout()
			if len(briefs) == 0 {
				fmt.Fprintln(w, "No briefs.")
				return nil
			}
			for _, b := range briefs {
				status := "open"
				if b.CompletedAt != nil {
					status = "done"
				}
				fmt.Fprintf(w, "%-36s  %-4s  %s  %s\n", b.ID, status, b.UpdatedAt.Local().Format("2006-01-02 15:04"), b.Title)
			}
			return nil
		})
	},
}

var briefShowCmd = &cobra.Command{
	Use:   "show BRIEF",
	Short: "Open a brief and print it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			b, err := a.pipeline.OpenBrief(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), b)
			}
			printBrief(cmd.OutOrStdout(), b)
			return nil
		})
	},
}

var briefDeleteCmd = &cobra.Command{
	Use:   "delete BRIEF",
	Short: "Delete a brief and its paper associations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			return a.store.DeleteBrief(ctx, args[0])
		})
	},
}

var briefRefineCmd = &cobra.Command{
	Use:   "refine BRIEF MESSAGE...",
	Short: "Send a message to the refinement chat",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		apply, _ := cmd.Flags().GetBool("apply")
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			reply, err := a.pipeline.Refine(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, reply.Message.Content)
			if reply.Suggestion != "" && apply {
				if _, err := a.store.UpdateBrief(ctx, args[0], types.BriefPatch{Query: &reply.Suggestion}); err != nil {
					return err
				}
				fmt.Fprintf(w, "\nResearch question updated: %s\n", reply.Suggestion)
			}
			return nil
		})
	},
}

var briefQueriesCmd = &cobra.Command{
	Use:   "queries BRIEF",
	Short: "List, generate, add, or toggle search terms",
	Long: `Without flags, lists the brief's search terms. --generate asks the model
for new terms; they are added unchecked, and checked terms are kept.
--add adds a term, --activate and --deactivate toggle terms by id.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		generate, _ := cmd.Flags().GetBool("generate")
		add, _ := cmd.Flags().GetStringSlice("add")
		activate, _ := cmd.Flags().GetStringSlice("activate")
		deactivate, _ := cmd.Flags().GetStringSlice("deactivate")
		id := args[0]
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			w := cmd.OutOrStdout()
			if generate {
				res, err := a.pipeline.GenerateQueries(ctx, id)
				if err != nil {
					return err
				}
				if res.Fallback {
					fmt.Fprintln(os.Stderr, "The model's answer was unreadable; added a catch-all term instead.")
				}
				if res.DateConstraint != nil {
					fmt.Fprintf(w, "Date constraint: %s\n", formatConstraint(res.DateConstraint))
				}
			}
			for _, term := range add {
				if _, err := a.pipeline.AddQuery(ctx, id, term, true); err != nil {
					return err
				}
			}
			for _, q := range activate {
				if _, err := a.pipeline.SetQueryActive(ctx, id, q, true); err != nil {
					return err
				}
			}
			for _, q := range deactivate {
				if _, err := a.pipeline.SetQueryActive(ctx, id, q, false); err != nil {
					return err
				}
			}
			b, err := a.store.GetBrief(ctx, id)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(w, b.SearchQueries)
			}
			printQueries(w, b.SearchQueries)
			return nil
		})
	},
}

var briefSearchCmd = &cobra.Command{
	Use:   "search BRIEF",
	Short: "Run the brief's checked search terms against arXiv",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			progress := func(view []types.SearchQueryWithStatus) {
				for _, q := range view {
					if q.Status == types.QueryProcessing {
						fmt.Fprintf(os.Stderr, "searching: %s\n", q.Term)
					}
				}
			}
			res, err := a.pipeline.RunSearch(ctx, args[0], progress)
			if res != nil {
				for _, q := range res.Queries {
					if q.Status == types.QueryFailed {
						fmt.Fprintf(os.Stderr, "failed: %s: %s\n", q.Term, q.Error)
					}
				}
			}
			if err != nil {
				return err
			}
			papers := make([]types.Paper, len(res.Hits))
			for i, h := range res.Hits {
				papers[i] = h.Paper
			}
			if jsonOutput(cmd) {
				return search.FormatJSON(papers, cmd.OutOrStdout())
			}
			search.FormatTable(papers, cmd.OutOrStdout())
			if res.Duplicates > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d duplicate sightings merged\n", res.Duplicates)
			}
			return nil
		})
	},
}

var briefScoreCmd = &cobra.Command{
	Use:   "score BRIEF",
	Short: "Score unscored papers for relevancy",
	Long: `Each call scores a share of the unscored papers (relevancy.batch_fraction,
at least one). --all repeats until every paper has a score.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			progress := func(pct int) { fmt.Fprintf(os.Stderr, "\rscoring: %3d%%", pct) }
			for {
				res, err := a.pipeline.ScoreRelevancy(ctx, args[0], progress)
				if res != nil && len(res.Scores) > 0 {
					fmt.Fprintln(os.Stderr)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scored %d (%d defaulted), %d remaining\n",
					len(res.Scores), res.Degraded, res.Remaining)
				if !all || res.Remaining == 0 || len(res.Scores) == 0 {
					return nil
				}
			}
		})
	},
}

var briefPapersCmd = &cobra.Command{
	Use:   "papers BRIEF",
	Short: "List the brief's papers with scores and selection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			rows, err := paperRows(ctx, a, args[0])
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			w := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(w, "No papers. Run \"litbrief brief search\" first.")
				return nil
			}
			fmt.Fprintf(w, "%-3s  %-5s  %-12s  %s\n", "Sel", "Score", "ID", "Title")
			for _, r := range rows {
				sel := ""
				if r.Association.Selected {
					sel = "*"
				}
				score := "-"
				if r.Association.RelevancyScore != nil {
					score = fmt.Sprintf("%d", *r.Association.RelevancyScore)
				}
				fmt.Fprintf(w, "%-3s  %-5s  %-12s  %s\n", sel, score, r.Paper.ID, strings.Join(strings.Fields(r.Paper.Title), " "))
			}
			return nil
		})
	},
}

var briefSelectCmd = &cobra.Command{
	Use:   "select BRIEF PAPER...",
	Short: "Select papers for the review",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		remove, _ := cmd.Flags().GetBool("remove")
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			for _, paperID := range args[1:] {
				if _, err := a.pipeline.SelectPaper(ctx, args[0], paperID, !remove); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var briefGenerateCmd = &cobra.Command{
	Use:   "generate BRIEF",
	Short: "Write the review from the selected papers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			res, err := a.pipeline.GenerateBrief(ctx, args[0])
			if err != nil {
				return err
			}
			if len(res.Unknown) > 0 {
				fmt.Fprintf(os.Stderr, "warning: review cites unknown keys: %s\n", strings.Join(res.Unknown, ", "))
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), res.Brief)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, res.Brief.Review)
			fmt.Fprintln(w, "\nReferences")
			for i, r := range res.Brief.References {
				fmt.Fprintf(w, "%d. %s\n", i+1, r.Citation)
			}
			return nil
		})
	},
}

var briefStepsCmd = &cobra.Command{
	Use:   "steps BRIEF",
	Short: "Show the brief's workflow steps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			steps, err := a.pipeline.Steps(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), steps)
			}
			for _, s := range steps {
				mark := " "
				switch {
				case s.Complete:
					mark = "x"
				case s.Available:
					mark = ">"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %d. %-9s %s\n", mark, s.Index+1, s.ID, s.Title)
			}
			return nil
		})
	},
}

var briefGotoCmd = &cobra.Command{
	Use:   "goto BRIEF FROM TO",
	Short: "Check whether the brief may move from one step to another",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			err := a.pipeline.Navigate(ctx, args[0], args[1], args[2])
			var nav *workflow.NavigationError
			if errors.As(err, &nav) {
				fmt.Fprintln(cmd.OutOrStdout(), nav.Error())
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s\n", args[2])
			return nil
		})
	},
}

var briefExportCmd = &cobra.Command{
	Use:   "export BRIEF",
	Short: "Export the brief's bibliography",
	Long: `Writes the selected papers (or all papers when none are selected) as
CSL-YAML, or the review's BibTeX with --format bibtex.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		return runWithApp(cmd, func(ctx context.Context, a *app) error {
			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			switch format {
			case "csl":
				n, err := a.pipeline.ExportCSL(ctx, args[0], w)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "exported %d papers\n", n)
				return nil
			case "bibtex":
				b, err := a.store.GetBrief(ctx, args[0])
				if err != nil {
					return err
				}
				if b.Bibtex == "" {
					return errors.New("brief has no BibTeX yet; run \"litbrief brief generate\" first")
				}
				_, err = io.WriteString(w, b.Bibtex)
				return err
			default:
				return fmt.Errorf("unknown format %q (want csl or bibtex)", format)
			}
		})
	},
}

func init() {
	briefNewCmd.Flags().String("title", "", "brief title (default: derived from the question)")
	briefRefineCmd.Flags().Bool("apply", false, "replace the research question with the model's suggestion")
	briefQueriesCmd.Flags().Bool("generate", false, "ask the model for new search terms")
	briefQueriesCmd.Flags().StringSlice("add", nil, "add a checked search term (repeatable)")
	briefQueriesCmd.Flags().StringSlice("activate", nil, "check search terms by id")
	briefQueriesCmd.Flags().StringSlice("deactivate", nil, "uncheck search terms by id")
	briefScoreCmd.Flags().Bool("all", false, "keep scoring until no paper is unscored")
	briefSelectCmd.Flags().Bool("remove", false, "deselect instead")
	briefExportCmd.Flags().String("format", "csl", "output format: csl or bibtex")
	briefExportCmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")

	briefCmd.PersistentFlags().Bool("json", false, "output as JSON")

	briefCmd.AddCommand(briefNewCmd, briefListCmd, briefShowCmd, briefDeleteCmd,
		briefRefineCmd, briefQueriesCmd, briefSearchCmd, briefScoreCmd, briefPapersCmd,
		briefSelectCmd, briefGenerateCmd, briefStepsCmd, briefGotoCmd, briefExportCmd)
	rootCmd.AddCommand(briefCmd)
}

// paperRow pairs a paper with its association to the brief.
type paperRow struct {
	Paper       types.Paper                 `json:"paper"`
	Association types.PaperBriefAssociation `json:"association"`
}

// paperRows lists the brief's papers, highest score first.
func paperRows(ctx context.Context, a *app, briefID string) ([]paperRow, error) {
	papers, err := a.store.ListBriefPapers(ctx, briefID)
	if err != nil {
		return nil, err
	}
	assocs, err := a.store.ListAssociations(ctx, briefID)
	if err != nil {
		return nil, err
	}
	byPaper := make(map[string]types.PaperBriefAssociation, len(assocs))
	for _, as := range assocs {
		byPaper[as.PaperID] = as
	}
	rows := make([]paperRow, len(papers))
	for i, p := range papers {
		rows[i] = paperRow{Paper: p, Association: byPaper[p.ID]}
	}
	score := func(r paperRow) int {
		if r.Association.RelevancyScore == nil {
			return -1
		}
		return *r.Association.RelevancyScore
	}
	sort.SliceStable(rows, func(i, j int) bool { return score(rows[i]) > score(rows[j]) })
	return rows, nil
}

func printBrief(w io.Writer, b *types.Brief) {
	fmt.Fprintf(w, "%s\n%s\n\nQuestion: %s\n", b.Title, b.ID, b.Query)
	if b.DateConstraint != nil {
		fmt.Fprintf(w, "Dates:    %s\n", formatConstraint(b.DateConstraint))
	}
	if len(b.SearchQueries) > 0 {
		fmt.Fprintln(w, "\nSearch terms:")
		printQueries(w, b.SearchQueries)
	}
	if len(b.ChatMessages) > 0 {
		fmt.Fprintf(w, "\nChat: %d messages\n", len(b.ChatMessages))
	}
	if b.Review != "" {
		fmt.Fprintf(w, "\nReview (%d references):\n%s\n", len(b.References), b.Review)
	}
}

func printQueries(w io.Writer, queries []types.SearchQuery) {
	if len(queries) == 0 {
		fmt.Fprintln(w, "No search terms.")
		return
	}
	for _, q := range queries {
		mark := " "
		if q.IsActive {
			mark = "x"
		}
		fmt.Fprintf(w, "[%s] %-36s  %s\n", mark, q.ID, q.Term)
	}
}

func formatConstraint(dc *types.DateConstraint) string {
	deref := func(s *string) string {
		if s == nil {
			return "?"
		}
		return *s
	}
	switch dc.Type {
	case types.DateBefore:
		return "before " + deref(dc.BeforeDate)
	case types.DateAfter:
		return "after " + deref(dc.AfterDate)
	case types.DateBetween:
		return deref(dc.AfterDate) + " to " + deref(dc.BeforeDate)
	default:
		return string(dc.Type)
	}
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
