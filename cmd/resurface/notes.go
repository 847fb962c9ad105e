package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	relatedMin   float64
	backfillSize int
)

var addCmd = &cobra.Command{
	Use:   "add [content]",
	Short: "Store a note and link it to similar notes",
	Long:  `Store a note from the arguments, or from stdin when no arguments are given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		content := strings.Join(args, " ")
		if len(args) == 0 {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			content = string(data)
		}

		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		note, links, err := eng.CreateAndLink(cmd.Context(), content)
		if err != nil {
			switch {
			case note.HasEmbedding():
				fmt.Fprintf(os.Stderr, "Note %s stored but not linked; run 'resurface relink %s' later.\n", note.ID, note.ID)
			case note.ID != "":
				fmt.Fprintf(os.Stderr, "Note %s stored without embedding; run 'resurface backfill' later.\n", note.ID)
			}
			return err
		}

		if jsonOutput {
			return printJSON(map[string]any{"note": note, "links": links})
		}
		fmt.Printf("Note %s saved, %d links created.\n", note.ID, len(links))
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		note, err := eng.GetNote(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(note)
		}
		fmt.Printf("%s  %s\n%s\n", note.ID, note.CreatedAt.Format("2006-01-02 15:04"), note.Content)
		return nil
	},
}

var relatedCmd = &cobra.Command{
	Use:   "related <id>",
	Short: "List notes linked from a note, strongest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		related, err := eng.Related(cmd.Context(), args[0], relatedMin)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(related)
		}
		if len(related) == 0 {
			fmt.Println("No related notes.")
			return nil
		}
		for _, r := range related {
			fmt.Printf("%.3f  %s  %s\n", r.Strength, r.ID, r.Content)
		}
		return nil
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed and link notes stored without an embedding",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		res, err := eng.EmbedPending(cmd.Context(), backfillSize)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		fmt.Printf("Embedded %d notes, %d links created.\n", res.Embedded, res.Links)
		return nil
	},
}

var relinkCmd = &cobra.Command{
	Use:   "relink <id>",
	Short: "Re-run link discovery for an embedded note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		links, err := eng.Relink(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(links)
		}
		fmt.Printf("%d links created.\n", len(links))
		return nil
	},
}

func init() {
	relatedCmd.Flags().Float64Var(&relatedMin, "min-strength", 0, "Weakest link to include")
	backfillCmd.Flags().IntVar(&backfillSize, "batch", 0, "Notes per pass (0 for the default)")

	rootCmd.AddCommand(addCmd, getCmd, relatedCmd, relinkCmd, backfillCmd)
}
