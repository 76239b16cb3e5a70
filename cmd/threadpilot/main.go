package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhinavprkash/ThreadPilot/internal/config"
	"github.com/abhinavprkash/ThreadPilot/internal/database"
	"github.com/abhinavprkash/ThreadPilot/internal/feedback"
	"github.com/abhinavprkash/ThreadPilot/internal/rank"
	"github.com/abhinavprkash/ThreadPilot/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "threadpilot",
	Short:   "Feedback-driven ranking for team digests",
	Long:    "ThreadPilot stores reaction feedback on digest items, mines it into prompt directives, and ranks items per recipient.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
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
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(directivesCmd)
	rootCmd.AddCommand(personaCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("threadpilot", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/threadpilot/",
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
		fmt.Println("Edit it to tune feedback windows and the server port.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
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

		fmt.Printf("Today: %s\n\n", database.Today())
		fmt.Println("Digest items:")
		fmt.Printf("  Total: %d\n", stats.TotalItems)
		fmt.Printf("  Teams with items: %d\n", stats.TeamsWithItems)
		fmt.Println("\nFeedback:")
		fmt.Printf("  Events: %d\n", stats.TotalFeedback)
		fmt.Printf("  Personas configured: %d\n", stats.TotalPersonas)
		fmt.Println("\nDirectives:")
		fmt.Printf("  Total: %d\n", stats.TotalDirectives)
		fmt.Printf("  Active: %d\n", stats.ActiveDirectives)
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if !cmd.Flags().Changed("port") && cfg.Server.Port > 0 {
			servePort = cfg.Server.Port
		}

		fmt.Printf("Starting server at http://localhost:%d\n", servePort)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, servePort, cfg.Feedback.DailyFeedbackLimit)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- metrics command ---

var (
	metricsDays int
	metricsTeam string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print a feedback metrics snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var team *string
		if metricsTeam != "" {
			team = &metricsTeam
		}

		m := feedback.NewMetrics(db, cfg.Feedback.DailyFeedbackLimit)
		snapshot, err := m.ComputeSnapshot(metricsDays, team)
		if err != nil {
			return fmt.Errorf("computing snapshot: %w", err)
		}

		if verbose {
			m.LogSnapshot(snapshot)
		}

		out, err := json.MarshalIndent(snapshot, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	metricsCmd.Flags().IntVar(&metricsDays, "days", 7, "Lookback window in days")
	metricsCmd.Flags().StringVar(&metricsTeam, "team", "", "Restrict to one team")
}

// --- rank command ---

var (
	rankRunID      string
	rankUser       string
	rankRole       string
	rankTeam       string
	rankSourceTeam string
	rankDays       int
	rankExplain    bool
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank recent digest items for a recipient",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var items []database.DigestItem
		if rankRunID != "" {
			items, err = db.GetItemsByRun(rankRunID)
		} else {
			var team *string
			if rankTeam != "" {
				team = &rankTeam
			}
			items, err = db.GetRecentItems(rankDays, team)
		}
		if err != nil {
			return fmt.Errorf("loading items: %w", err)
		}
		if len(items) == 0 {
			fmt.Println("No digest items found.")
			return nil
		}

		ranker := rank.NewRanker(db)
		ranked, err := ranker.RankForUser(rankUser, items, rankRole, rankTeam, rankSourceTeam)
		if err != nil {
			return fmt.Errorf("ranking items: %w", err)
		}

		main, fyi, excluded := rank.PartitionByConfidence(ranked, rank.HighThreshold, rank.LowThreshold)

		printSection := func(name string, section []rank.RankedItem) {
			if len(section) == 0 {
				return
			}
			fmt.Printf("\n%s:\n", name)
			for _, item := range section {
				marker := " "
				if item.IsCrossTeam {
					marker = "*"
				}
				fmt.Printf("  [%.2f] %s %-11s %s\n", item.FinalScore, marker, item.Item.ItemType, item.Item.Title)
				if rankExplain {
					fmt.Printf("          %s\n", rank.Explain(item))
				}
			}
		}

		printSection("Main", main)
		printSection("FYI", fyi)
		printSection("Excluded", excluded)
		return nil
	},
}

func init() {
	rankCmd.Flags().StringVar(&rankRunID, "run", "", "Rank items from one pipeline run")
	rankCmd.Flags().StringVar(&rankUser, "user", "", "Recipient user ID")
	rankCmd.Flags().StringVar(&rankRole, "role", "", "Role override (lead, ic)")
	rankCmd.Flags().StringVar(&rankTeam, "team", "", "Team override")
	rankCmd.Flags().StringVar(&rankSourceTeam, "source-team", "", "Team whose digest this is")
	rankCmd.Flags().IntVar(&rankDays, "days", 7, "Lookback window when no run is given")
	rankCmd.Flags().BoolVar(&rankExplain, "explain", false, "Show the score breakdown per item")
}

// --- directives command ---

var directivesTeam string

var directivesCmd = &cobra.Command{
	Use:   "directives",
	Short: "Manage mined prompt directives",
}

var directivesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active directives for a team",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		directives, err := db.GetActiveDirectives(directivesTeam, cfg.Feedback.MaxDirectives, cfg.Feedback.ExpiryDays)
		if err != nil {
			return err
		}
		if len(directives) == 0 {
			fmt.Printf("No active directives for %s.\n", directivesTeam)
			return nil
		}

		fmt.Printf("Active directives for %s:\n\n", directivesTeam)
		for _, d := range directives {
			fmt.Printf("  [%d] (confirmed %dx) %s\n", d.ID, d.ConfirmationCount, d.Directive)
		}
		return nil
	},
}

var directivesGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Mine recent feedback into directives for a team",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		block, err := newEnhancer(db).GenerateDirectives(directivesTeam)
		if err != nil {
			return fmt.Errorf("generating directives: %w", err)
		}
		if block == "" {
			fmt.Println("No directives generated.")
			return nil
		}
		fmt.Println(block)
		return nil
	},
}

var directivesExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Deactivate directives past the expiry window",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		count, err := db.ExpireDirectives(cfg.Feedback.ExpiryDays)
		if err != nil {
			return err
		}
		fmt.Printf("Expired %d directive(s).\n", count)
		return nil
	},
}

var directivesConfirmCmd = &cobra.Command{
	Use:   "confirm [text]",
	Short: "Confirm a directive, extending its lifespan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := newEnhancer(db).ConfirmDirective(directivesTeam, args[0]); err != nil {
			return err
		}
		fmt.Println("Directive confirmed.")
		return nil
	},
}

var directivesDropCmd = &cobra.Command{
	Use:   "drop [text]",
	Short: "Deactivate a directive immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := newEnhancer(db).ForceExpire(directivesTeam, args[0]); err != nil {
			return err
		}
		fmt.Println("Directive deactivated.")
		return nil
	},
}

func init() {
	directivesCmd.PersistentFlags().StringVar(&directivesTeam, "team", "", "Team the directives belong to")
	directivesCmd.MarkPersistentFlagRequired("team")

	directivesCmd.AddCommand(directivesListCmd)
	directivesCmd.AddCommand(directivesGenCmd)
	directivesCmd.AddCommand(directivesExpireCmd)
	directivesCmd.AddCommand(directivesConfirmCmd)
	directivesCmd.AddCommand(directivesDropCmd)
}

// --- persona command ---

var (
	personaRole   string
	personaTeam   string
	personaTopics []string
	personaBoosts []string
)

var personaCmd = &cobra.Command{
	Use:   "persona",
	Short: "Manage recipient personas",
}

var personaShowCmd = &cobra.Command{
	Use:   "show [user]",
	Short: "Show a user's stored persona",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pcfg, err := db.GetUserPersona(args[0])
		if err != nil {
			return err
		}
		if pcfg == nil {
			fmt.Printf("No persona stored for %s.\n", args[0])
			return nil
		}

		out, err := json.MarshalIndent(pcfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var personaSetCmd = &cobra.Command{
	Use:   "set [user]",
	Short: "Store a user's persona",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		boosts, err := parseBoosts(personaBoosts)
		if err != nil {
			return err
		}

		pcfg := database.UserPersonaConfig{
			UserID:       args[0],
			Role:         personaRole,
			Team:         personaTeam,
			CustomTopics: personaTopics,
			CustomBoosts: boosts,
		}
		if err := db.SetUserPersona(pcfg); err != nil {
			return err
		}
		fmt.Printf("Stored persona for %s.\n", args[0])
		return nil
	},
}

var personaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored personas",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		personas, err := db.GetAllUserPersonas()
		if err != nil {
			return err
		}
		if len(personas) == 0 {
			fmt.Println("No personas stored. Add one with: threadpilot persona set")
			return nil
		}

		for _, p := range personas {
			fmt.Printf("  %s  role=%s team=%s topics=%d boosts=%d\n",
				p.UserID, p.Role, p.Team, len(p.CustomTopics), len(p.CustomBoosts))
		}
		return nil
	},
}

func init() {
	personaSetCmd.Flags().StringVar(&personaRole, "role", "", "Role (lead, ic)")
	personaSetCmd.Flags().StringVar(&personaTeam, "team", "", "Team")
	personaSetCmd.Flags().StringSliceVar(&personaTopics, "topic", nil, "Custom topic (repeatable)")
	personaSetCmd.Flags().StringSliceVar(&personaBoosts, "boost", nil, "Custom boost as type=multiplier (repeatable)")

	personaCmd.AddCommand(personaShowCmd)
	personaCmd.AddCommand(personaSetCmd)
	personaCmd.AddCommand(personaListCmd)
}

// parseBoosts parses type=multiplier pairs, validating the item type.
func parseBoosts(pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	boosts := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid boost %q, expected type=multiplier", pair)
		}
		if _, err := database.ParseItemType(key); err != nil {
			return nil, err
		}
		mult, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid boost multiplier %q", value)
		}
		boosts[key] = mult
	}
	return boosts, nil
}

func newEnhancer(db *database.DB) *feedback.Enhancer {
	e := feedback.NewEnhancer(db)
	if cfg.Feedback.MaxDirectives > 0 {
		e.MaxDirectives = cfg.Feedback.MaxDirectives
	}
	if cfg.Feedback.ExpiryDays > 0 {
		e.ExpiryDays = cfg.Feedback.ExpiryDays
	}
	if cfg.Feedback.RotationDays > 0 {
		e.RotationDays = cfg.Feedback.RotationDays
	}
	return e
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "threadpilot.db")
	return database.Open(dbPath)
}
