package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hubenschmidt/go-resurface/engine"
)

var (
	recallLimit int
	graphMin    float64
)

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Recall clusters of notes related to a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		clusters, err := eng.Recall(cmd.Context(), strings.Join(args, " "), recallLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(clusters)
		}
		if len(clusters) == 0 {
			fmt.Println("Nothing resurfaced.")
			return nil
		}
		for _, c := range clusters {
			fmt.Printf("# %s\n", c.Label)
			for _, n := range c.Notes {
				fmt.Printf("  %.3f  %s  %s\n", n.RelevanceScore, n.CreatedAt.Format("2006-01-02"), n.Content)
			}
		}
		return nil
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph [query]",
	Short: "Show notes and the strong links among them",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		g, err := eng.Graph(cmd.Context(), strings.Join(args, " "), graphMin)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(g)
		}
		fmt.Printf("%d notes, %d links\n", len(g.Nodes), len(g.Edges))
		for _, e := range g.Edges {
			fmt.Printf("  %.3f  %s -> %s\n", e.Strength, e.SourceID, e.TargetID)
		}
		return nil
	},
}

func init() {
	recallCmd.Flags().IntVarP(&recallLimit, "limit", "n", 10, "Maximum number of clusters")
	graphCmd.Flags().Float64Var(&graphMin, "min-strength", engine.DefaultGraphMinStrength, "Weakest link to include")

	rootCmd.AddCommand(recallCmd, graphCmd)
}
