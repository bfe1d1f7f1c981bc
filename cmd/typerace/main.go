// Package main provides the CLI entrypoint for typerace.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/typerace/internal/anticheat"
	"github.com/verte-zerg/typerace/internal/config"
	"github.com/verte-zerg/typerace/internal/generator"
	"github.com/verte-zerg/typerace/internal/model"
	"github.com/verte-zerg/typerace/internal/scoring"
	"github.com/verte-zerg/typerace/internal/stats"
	"github.com/verte-zerg/typerace/internal/store"
	"github.com/verte-zerg/typerace/internal/tui"
	"github.com/verte-zerg/typerace/internal/wordlist"
)

const (
	defaultLang        = "en"
	defaultWords       = 25
	defaultDuration    = 60 * time.Second
	defaultCaps        = 0.0
	defaultPunct       = 0.0
	defaultPolicy      = "default"
	defaultCurveWindow = 20
	defaultLogLevel    = "warn"
	defaultUserID      = "local"
)

const defaultPunctSet = ".,!?;:\"'-"

var (
	logLevel string

	practiceLang     string
	practiceWords    int
	practiceDuration time.Duration
	practiceCaps     float64
	practicePunct    float64
	practicePunctSet string
	practicePolicy   string
	practiceRanked   bool

	statsLang         string
	statsSince        string
	statsLast         int
	statsCurveWindow  int
	statsAcceptedOnly bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "typerace",
		Short:         "Terminal typing trainer and racer",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runPracticeCmd,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	addPracticeFlags(rootCmd)
	rootCmd.Flags().BoolVar(&practiceRanked, "ranked", false, "update rating for accepted attempts")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newLangsCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newRaceCmd())

	return rootCmd
}

func addPracticeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&practiceLang, "lang", defaultLang, "language code")
	cmd.Flags().IntVar(&practiceWords, "words", defaultWords, "words per text")
	cmd.Flags().DurationVar(&practiceDuration, "duration", defaultDuration, "time budget per attempt")
	cmd.Flags().Float64Var(&practiceCaps, "caps", defaultCaps, "probability of capitalized first letter (0-1)")
	cmd.Flags().Float64Var(&practicePunct, "punct", defaultPunct, "punctuation probability per word (0-1)")
	cmd.Flags().StringVar(&practicePunctSet, "punct-set", defaultPunctSet, "punctuation set")
	cmd.Flags().StringVar(&practicePolicy, "policy", defaultPolicy, "anti-cheat policy (default, advisory)")
}

func runPracticeCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadFileConfig(cmd)
	if err != nil {
		return err
	}
	cfg, err := practiceConfig(cmd, fileCfg)
	if err != nil {
		return err
	}
	envCfg, err := config.LoadEnv()
	if err != nil {
		return err
	}

	gen, err := newGenerator(cfg)
	if err != nil {
		return err
	}
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()
	submitter, err := newSubmitter(cfg.Policy, st)
	if err != nil {
		return err
	}

	opts := tui.Options{
		UserID:   userID(envCfg),
		Lang:     cfg.Lang,
		Words:    cfg.Words,
		Duration: cfg.Duration,
		Ranked:   practiceRanked,
	}
	m, err := tui.NewModel(opts, gen, submitter, st)
	if err != nil {
		return err
	}
	return runProgram(m)
}

// loadFileConfig reads the TOML config and applies the log level.
func loadFileConfig(cmd *cobra.Command) (config.FileConfig, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("invalid --log-level: %w", err)
	}
	logrus.SetLevel(level)
	return fileCfg, nil
}

func practiceConfig(cmd *cobra.Command, fileCfg config.FileConfig) (model.Config, error) {
	applyStringConfig(cmd, "lang", &practiceLang, fileCfg.Practice.Lang)
	applyIntConfig(cmd, "words", &practiceWords, fileCfg.Practice.Words)
	if err := applyDurationConfig(cmd, "duration", &practiceDuration, fileCfg.Practice.Duration); err != nil {
		return model.Config{}, err
	}
	applyFloatConfig(cmd, "caps", &practiceCaps, fileCfg.Practice.CapsPct)
	applyFloatConfig(cmd, "punct", &practicePunct, fileCfg.Practice.PunctPct)
	applyStringConfig(cmd, "punct-set", &practicePunctSet, fileCfg.Practice.PunctSet)
	applyStringConfig(cmd, "policy", &practicePolicy, fileCfg.Anticheat.Policy)

	cfg := model.Config{
		Lang:     practiceLang,
		Words:    practiceWords,
		Duration: practiceDuration,
		CapsPct:  practiceCaps,
		PunctPct: practicePunct,
		PunctSet: practicePunctSet,
		Policy:   practicePolicy,
	}
	if err := validateConfig(cfg); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}

func newGenerator(cfg model.Config) (*generator.Generator, error) {
	wordPath := config.DefaultWordListPath(cfg.Lang)
	words, builtin, err := wordlist.LoadOrDefault(wordPath, cfg.Lang)
	if err != nil {
		return nil, wordListLoadError(cfg.Lang, wordPath, err)
	}
	if builtin {
		logrus.WithField("lang", cfg.Lang).Debug("using built-in word list")
	}
	gen, err := generator.New(words, generator.Options{
		CapsPct:  cfg.CapsPct,
		PunctPct: cfg.PunctPct,
		PunctSet: []rune(cfg.PunctSet),
	})
	if err != nil {
		return nil, fmt.Errorf("word list %s for %q: %w", wordPath, cfg.Lang, err)
	}
	return gen, nil
}

func newSubmitter(policyName string, st scoring.ScoreStore) (*scoring.Submitter, error) {
	policy, err := anticheat.PolicyByName(policyName)
	if err != nil {
		return nil, err
	}
	return scoring.NewSubmitter(anticheat.New(policy), st), nil
}

func userID(envCfg config.EnvConfig) string {
	if id := strings.TrimSpace(envCfg.UserID); id != "" {
		return id
	}
	return defaultUserID
}

// runProgram runs m on the alternate screen. Log output goes to the log
// file until the program exits.
func runProgram(m tea.Model) error {
	restore, err := redirectLogs(config.DefaultLogPath())
	if err != nil {
		return err
	}
	defer restore()
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func redirectLogs(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	prev := logrus.StandardLogger().Out
	logrus.SetOutput(file)
	return func() {
		logrus.SetOutput(prev)
		if cerr := file.Close(); cerr != nil {
			logErrf("failed to close log file: %v\n", cerr)
		}
	}, nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func newLangsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "langs",
		Short: "List available wordlist languages",
		Args:  cobra.NoArgs,
		RunE:  runLangsCmd,
	}
}

func runLangsCmd(cmd *cobra.Command, _ []string) error {
	langs, err := listLangs(config.DefaultWordListDir())
	if err != nil {
		return err
	}
	for _, lang := range langs {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), lang); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

// listLangs returns the languages with a word list in dir. English is always
// available through the built-in corpus.
func listLangs(dir string) ([]string, error) {
	seen := map[string]struct{}{defaultLang: {}}
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read wordlist directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".txt") {
			continue
		}
		seen[strings.TrimSuffix(name, ".txt")] = struct{}{}
	}
	langs := make([]string, 0, len(seen))
	for lang := range seen {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs, nil
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stats",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	cmd.Flags().StringVar(&statsLang, "lang", "", "language filter")
	cmd.Flags().StringVar(&statsSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&statsLast, "last", 0, "limit to last N sessions")
	cmd.Flags().IntVar(&statsCurveWindow, "curve-window", defaultCurveWindow, "moving average window")
	cmd.Flags().BoolVar(&statsAcceptedOnly, "accepted-only", false, "hide rejected sessions")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	if _, err := loadFileConfig(cmd); err != nil {
		return err
	}
	sinceTime, err := parseSince(statsSince)
	if err != nil {
		return err
	}
	if statsLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}

	cfg := model.StatsConfig{
		Lang:         statsLang,
		Since:        sinceTime,
		Last:         statsLast,
		CurveWindow:  statsCurveWindow,
		AcceptedOnly: statsAcceptedOnly,
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	return renderStats(context.Background(), cmd.OutOrStdout(), st, cfg)
}

func renderStats(ctx context.Context, w io.Writer, src stats.SessionLister, cfg model.StatsConfig) error {
	report, err := stats.BuildReport(ctx, src, cfg)
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	if err := report.Render(w); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func parseSince(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.ParseInLocation("2006-01-02", value, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid --since value: %w", err)
	}
	return &parsed, nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyDurationConfig(cmd *cobra.Command, name string, target *time.Duration, value *string) error {
	if value == nil {
		return nil
	}
	if cmd.Flags().Changed(name) {
		return nil
	}
	d, err := time.ParseDuration(*value)
	if err != nil {
		return fmt.Errorf("invalid %s in config: %w", name, err)
	}
	*target = d
	return nil
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# typerace configuration
# Uncomment a value to enable it. CLI flags override config values.

[practice]
# lang = "en"             # Language code (default %q)
# words = %d              # Words per text
# duration = %q          # Time budget per attempt
# caps = %.2f             # Probability of capitalized first letter (0-1)
# punct = %.2f            # Punctuation probability per word (0-1)
# punct-set = %q          # Punctuation set

[anticheat]
# policy = %q       # default or advisory

[race]
# backend = "memory"      # memory or redis; redis when TYPERACE_REDIS_ADDR is set
# name = "anonymous"      # Name shown to other racers

[log]
# level = %q            # debug, info, warn or error
`,
		defaultLang,
		defaultWords,
		defaultDuration.String(),
		defaultCaps,
		defaultPunct,
		defaultPunctSet,
		defaultPolicy,
		defaultLogLevel,
	)
}

func validateConfig(cfg model.Config) error {
	if cfg.Words <= 0 {
		return fmt.Errorf("--words must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("--duration must be > 0")
	}
	if cfg.CapsPct < 0 || cfg.CapsPct > 1 {
		return fmt.Errorf("--caps must be between 0 and 1")
	}
	if cfg.PunctPct < 0 || cfg.PunctPct > 1 {
		return fmt.Errorf("--punct must be between 0 and 1")
	}
	if cfg.PunctPct > 0 && cfg.PunctSet == "" {
		return fmt.Errorf("--punct-set must not be empty")
	}
	if _, err := anticheat.PolicyByName(cfg.Policy); err != nil {
		return fmt.Errorf("--policy: %w", err)
	}
	return nil
}

func wordListLoadError(lang, path string, err error) error {
	lines := []string{
		fmt.Sprintf("failed to load word list: %v", err),
		fmt.Sprintf("expected word list at: %s", path),
		fmt.Sprintf("language %q not found", lang),
		"Run: typerace langs",
	}
	return fmt.Errorf("%s", strings.Join(lines, "\n"))
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
