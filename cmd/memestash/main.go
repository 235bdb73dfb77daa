package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"memestash/internal/analyze"
	"memestash/internal/collect"
	"memestash/internal/config"
	"memestash/internal/database"
	"memestash/internal/fetch"
	"memestash/internal/generate"
	"memestash/internal/imagesel"
	"memestash/internal/llm"
	"memestash/internal/memegen"
	"memestash/internal/server"
	"memestash/internal/styleguide"
	"memestash/internal/trends"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	// Local .env files hold API keys and the session secret.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "memestash",
	Short:   "Personal meme collection and generation",
	Long:    "memestash collects memes, analyzes what makes them work, and generates new ones in the same voice.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init, version and hash-password
		switch cmd.Name() {
		case "init", "version", "hash-password":
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(trendsCmd)
	rootCmd.AddCommand(guideCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hashPasswordCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("memestash", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/memestash/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure feeds, the LLM provider, and server credentials.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Collection:")
		fmt.Printf("  Total posts: %d\n", stats.TotalPosts)
		fmt.Printf("  Analyzed: %d\n", stats.AnalyzedPosts)
		fmt.Printf("  With images: %d\n", stats.PostsWithImages)
		fmt.Println("\nOutput:")
		fmt.Printf("  Generated memes: %d\n", stats.GeneratedMemes)
		fmt.Printf("  Style guides: %d\n", stats.StyleGuides)
		return nil
	},
}

// --- collect command ---

var collectDaysBack int

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect posts from configured feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Println("Collecting posts from feeds...")
		collector := collect.NewCollector(cfg, db, collectDaysBack)
		result := collector.Collect()

		fmt.Println("\nCollection complete:")
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  New posts: %d\n", result.NewPosts)
		fmt.Printf("  Refreshed: %d\n", result.Refreshed)

		if len(result.Sources) > 0 {
			fmt.Println("\nPosts by source:")
			type kv struct {
				key string
				val int
			}
			var sorted []kv
			for k, v := range result.Sources {
				sorted = append(sorted, kv{k, v})
			}
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
			for _, s := range sorted {
				fmt.Printf("  %s: %d\n", s.key, s.val)
			}
		}
		return nil
	},
}

func init() {
	collectCmd.Flags().IntVar(&collectDaysBack, "days-back", 7, "Lookback window for feed entries (days)")
}

// --- fetch command ---

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Backfill text for posts collected without it",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fetcher := fetch.NewTextFetcher(db, 0)
		result := fetcher.FetchMissingText()

		fmt.Printf("Text backfill complete: %d fetched, %d failed\n", result.Fetched, result.Failed)
		return nil
	},
}

// --- analyze command ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze unanalyzed posts with the LLM",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		analyzer := analyze.NewAnalyzer(db, mainProvider())
		result, err := analyzer.AnalyzeAll(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("Analysis complete: %d processed, %d errors\n", result.Processed, result.Errors)
		return nil
	},
}

// --- trends command ---

var trendsDays int

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show trending topics in the collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		report, err := trends.NewAggregator(db).Aggregate(trendsDays)
		if err != nil {
			return err
		}

		if len(report.Trends) == 0 {
			fmt.Printf("No analyzed posts in the last %d days. Run 'memestash analyze' first.\n", report.WindowDays)
			return nil
		}

		fmt.Printf("Trending topics (last %d days, %d posts):\n\n", report.WindowDays, report.TotalPosts)
		for i, t := range report.Trends {
			fmt.Printf("  %2d. %-24s %3d posts, avg %.0f likes\n", i+1, t.Topic, t.Count, t.AvgLikes)
		}
		return nil
	},
}

func init() {
	trendsCmd.Flags().IntVar(&trendsDays, "days", 7, "Trend window (days)")
}

// --- guide command ---

var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Manage the meme style guide",
}

var guideGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Synthesize a new style guide from the analyzed collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		synth := styleguide.NewSynthesizer(db, mainProvider())
		result, err := synth.Synthesize(context.Background())
		if err != nil {
			return err
		}

		fmt.Println(result.Message)
		printGuide(result.Guide)
		return nil
	},
}

var guideShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the latest style guide",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		guide, err := db.GetLatestStyleGuide()
		if err != nil {
			return err
		}
		if guide == nil {
			fmt.Println("No style guide yet. Run 'memestash guide generate' first.")
			return nil
		}

		fmt.Printf("Style guide from %s (%d memes):\n", derefOr(guide.CreatedAt, "?"), guide.MemeCount)
		printGuide(guide)
		return nil
	},
}

func printGuide(guide *database.StyleGuide) {
	if guide == nil {
		return
	}
	if guide.Content.WritingStyle != "" {
		fmt.Printf("\nWriting style:\n  %s\n", guide.Content.WritingStyle)
	}
	if len(guide.Content.TopTopics) > 0 {
		fmt.Println("\nTop topics:")
		for _, t := range guide.Content.TopTopics {
			fmt.Printf("  - %s\n", t.Topic)
		}
	}
	if len(guide.Content.HumorPatterns) > 0 {
		fmt.Println("\nHumor patterns:")
		for _, p := range guide.Content.HumorPatterns {
			fmt.Printf("  - %s (%s)\n", p.Pattern, p.Effectiveness)
		}
	}
	if len(guide.Content.Dos) > 0 {
		fmt.Println("\nDo:")
		for _, d := range guide.Content.Dos {
			fmt.Printf("  - %s\n", d)
		}
	}
	if len(guide.Content.Donts) > 0 {
		fmt.Println("\nDon't:")
		for _, d := range guide.Content.Donts {
			fmt.Printf("  - %s\n", d)
		}
	}
}

func init() {
	guideCmd.AddCommand(guideGenerateCmd)
	guideCmd.AddCommand(guideShowCmd)
}

// --- generate command ---

var (
	genTopic        string
	genStyle        string
	genFormat       string
	genCount        int
	genInstructions string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate new memes from the collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		orch := newOrchestrator(db)
		result, err := orch.Run(context.Background(), generate.Request{
			Topic:        genTopic,
			Style:        genStyle,
			Format:       genFormat,
			Count:        genCount,
			Instructions: genInstructions,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Generated %d meme(s) on the %s path (%d saved):\n", result.Used, result.Path, result.Saved)
		for i, item := range result.Items {
			fmt.Printf("\n%d. %s\n", i+1, item.Text)
			if item.ImageURL != nil {
				fmt.Printf("   image: %s\n", *item.ImageURL)
			}
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&genTopic, "topic", "", "Topic to generate memes about (required)")
	generateCmd.Flags().StringVar(&genStyle, "style", memegen.DefaultStyle, "Humor style")
	generateCmd.Flags().StringVar(&genFormat, "format", "both", "Generation format: text-only, image or both")
	generateCmd.Flags().IntVar(&genCount, "count", 3, "How many memes to generate")
	generateCmd.Flags().StringVar(&genInstructions, "instructions", "", "Extra steering instructions")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		synth := styleguide.NewSynthesizer(db, mainProvider())
		analyzer := analyze.NewAnalyzer(db, mainProvider())

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(cfg, db, synth, newOrchestrator(db), analyzer, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// --- hash-password command ---

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Hash a password for the server config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := server.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		fmt.Println("\nPut this in config.yaml under server.password_hash.")
		return nil
	},
}

// --- helpers ---

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "memestash.db")
	return database.Open(dbPath)
}

// mainProvider builds the multimodal tier used for analysis, synthesis and
// caption generation.
func mainProvider() llm.Provider {
	return llm.CreateProvider(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.OllamaURL, cfg.LLM.OpenAIModel, cfg.LLM.APIKeyEnv)
}

// cheapProvider builds the low-cost text tier used for image shortlisting.
func cheapProvider() llm.Provider {
	return llm.CreateProvider(cfg.LLM.Provider, cfg.LLM.CheapModel, cfg.LLM.OllamaURL, cfg.LLM.OpenAICheapModel, cfg.LLM.APIKeyEnv)
}

func newOrchestrator(db *database.DB) *generate.Orchestrator {
	selector := imagesel.NewSelector(db, cheapProvider())
	generator := memegen.NewGenerator(db, mainProvider())
	return generate.NewOrchestrator(db, selector, generator)
}

func derefOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
