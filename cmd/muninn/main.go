// Package main provides the Muninn CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/orneryd/muninn/pkg/analysis"
	"github.com/orneryd/muninn/pkg/config"
	"github.com/orneryd/muninn/pkg/muninn"
	"github.com/orneryd/muninn/pkg/snapshot"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "muninn",
		Short: "Muninn - embedded knowledge graph engine",
		Long: `Muninn is an in-memory knowledge graph engine with five layers:
Information, Knowledge, Experience, Strategy, and Intuition.

The CLI operates on JSON snapshots:
  • stats    - node/edge counts and per-type breakdown
  • analyze  - communities, centrality, and graph metrics
  • compact  - load, validate, and atomically re-save a snapshot
  • backups  - list or prune snapshot backups`,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to muninn.yaml")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Muninn v%s (%s)\n", version, commit)
		},
	})

	statsCmd := &cobra.Command{
		Use:   "stats <snapshot>",
		Short: "Summarize a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runStats,
	}
	rootCmd.AddCommand(statsCmd)

	analyzeCmd := &cobra.Command{
		Use:   "analyze <snapshot>",
		Short: "Run community detection and graph metrics over a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().Int64("seed", 12345, "Random seed for community detection")
	analyzeCmd.Flags().Int("hubs", 5, "Number of top hubs to print")
	rootCmd.AddCommand(analyzeCmd)

	compactCmd := &cobra.Command{
		Use:   "compact <snapshot>",
		Short: "Load, validate, and atomically re-save a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompact,
	}
	rootCmd.AddCommand(compactCmd)

	backupsCmd := &cobra.Command{
		Use:   "backups <snapshot>",
		Short: "List or prune snapshot backups",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackups,
	}
	backupsCmd.Flags().Bool("cleanup", false, "Delete all but the newest backups")
	backupsCmd.Flags().Int("keep", 5, "Backups to keep with --cleanup")
	rootCmd.AddCommand(backupsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openDB(cmd *cobra.Command, snapshotPath string) (*muninn.DB, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	cfg.Persistence.SnapshotPath = snapshotPath
	cfg.Archive.Enabled = false

	db, err := muninn.Open(cfg, muninn.Options{})
	if err != nil {
		return nil, err
	}
	if err := db.LoadSnapshot(context.Background(), snapshotPath); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func runStats(cmd *cobra.Command, args []string) error {
	db, err := openDB(cmd, args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	stats := db.Stats()
	fmt.Printf("Nodes:    %d\n", stats.NodeCount)
	fmt.Printf("Edges:    %d\n", stats.EdgeCount)
	fmt.Printf("Isolated: %d\n", stats.IsolatedNodes)

	fmt.Println("\nNodes by type:")
	for _, line := range sortedCounts(stats.NodesByType) {
		fmt.Println("  " + line)
	}
	fmt.Println("\nEdges by type:")
	for _, line := range sortedCounts(stats.EdgesByType) {
		fmt.Println("  " + line)
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	db, err := openDB(cmd, args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	seed, _ := cmd.Flags().GetInt64("seed")
	hubCount, _ := cmd.Flags().GetInt("hubs")
	runID := uuid.NewString()[:8]

	fmt.Printf("Analysis run %s over %s\n\n", runID, args[0])

	clusters := db.DetectCommunities(analysis.CommunityOptions{
		Resolution:       1.0,
		MinCommunitySize: 1,
		MaxIterations:    200,
		RandomSeed:       seed,
	})
	fmt.Printf("Communities (%d):\n", len(clusters))
	for _, c := range clusters {
		fmt.Printf("  %-16s %3d nodes  coherence %.3f  modularity %+.4f\n",
			c.ID, len(c.Nodes), c.Coherence, c.Modularity)
	}

	metrics := db.GraphMetrics()
	fmt.Println("\nGraph metrics:")
	fmt.Printf("  density            %.4f\n", metrics.Density)
	fmt.Printf("  avg path length    %.3f\n", metrics.AveragePathLength)
	fmt.Printf("  diameter           %d\n", metrics.Diameter)
	fmt.Printf("  clustering coeff   %.4f\n", metrics.ClusteringCoefficient)
	fmt.Printf("  components         %d\n", metrics.ComponentCount)
	fmt.Printf("  modularity         %.4f\n", metrics.Modularity)

	engine := analysis.NewCentralityEngine()
	hubs := engine.Hubs(db.Graph(), hubCount)
	fmt.Printf("\nTop %d hubs:\n", len(hubs))
	nodeMetrics := engine.NodeMetrics(db.Graph())
	for _, id := range hubs {
		m := nodeMetrics[id]
		fmt.Printf("  %-24s degree %3d  pagerank %.4f\n", id, m.Degree, m.PageRank)
	}
	return nil
}

func runCompact(cmd *cobra.Command, args []string) error {
	db, err := openDB(cmd, args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	digest, err := db.SaveSnapshot(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Re-saved %s (digest %s)\n", args[0], digest[:16])
	return nil
}

func runBackups(cmd *cobra.Command, args []string) error {
	// Backup management needs no graph in memory.
	ctrl := snapshot.NewController(nil, nil)

	if cleanup, _ := cmd.Flags().GetBool("cleanup"); cleanup {
		keep, _ := cmd.Flags().GetInt("keep")
		removed, err := ctrl.CleanupOldBackups(args[0], keep)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d old backups\n", removed)
		return nil
	}

	backups, err := ctrl.ListBackups(args[0])
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Println("No backups found")
		return nil
	}
	for _, b := range backups {
		digest := b.Digest
		if len(digest) > 16 {
			digest = digest[:16]
		}
		fmt.Printf("%s  %8d bytes  %s  %s\n",
			b.Created.Format("2006-01-02 15:04:05"), b.Size, digest, b.Path)
	}
	return nil
}

func sortedCounts(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%-24s %d", k, counts[k]))
	}
	return out
}
