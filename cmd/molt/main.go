package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"molt/internal/app"
	"molt/internal/config"
	"molt/internal/encryption"
	"molt/internal/molt"
	"molt/internal/settings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and wires a fully constructed App. The caller
// must defer a.Close().
func newApp(cmd *cobra.Command) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// newSink builds the event sink for a run. With --porcelain it writes
// machine-readable tab-separated lines to stdout; otherwise it prints
// phase transitions for a human.
func newSink(porcelain bool) molt.EventSink {
	if porcelain {
		return func(ev molt.Event) {
			switch e := ev.(type) {
			case molt.PhaseEvent:
				fmt.Printf("phase\t%s\n", e.Phase)
			case molt.ProgressEvent:
				fmt.Printf("progress\t%d\t%d\n", e.Received, e.Total)
			case molt.ResultEvent:
				fmt.Printf("result\t%s\t%s\n", e.Result.Outcome, e.Result.Version)
			}
		}
	}
	return func(ev molt.Event) {
		if e, ok := ev.(molt.PhaseEvent); ok {
			fmt.Printf("  %s\n", e.Phase)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "molt",
	Short: "Self-update engine for the desktop application",
}

// check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Query the registry for a newer release",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		porcelain, _ := cmd.Flags().GetBool("porcelain")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Check(cmd.Context(), molt.RunOptions{
			Force: force,
			Sink:  newSink(porcelain),
		})
		if err != nil {
			return err
		}

		if porcelain {
			return printCheckPorcelain(res)
		}

		switch {
		case res.Skipped:
			fmt.Println("Check skipped: interval has not elapsed (use --force).")
		case res.Release == nil:
			fmt.Printf("Up to date at %s.\n", orUnknown(res.CurrentVersion))
		default:
			fmt.Printf("Update available: %s -> %s\n", orUnknown(res.CurrentVersion), res.Release.Version)
			if !res.Release.PublishedAt.IsZero() {
				fmt.Printf("Published: %s\n", res.Release.PublishedAt.Format("2006-01-02 15:04:05"))
			}
			if res.Release.Notes != "" {
				fmt.Printf("\n%s\n", strings.TrimRight(res.Release.Notes, "\n"))
			}
		}
		return nil
	},
}

func printCheckPorcelain(res *molt.CheckResult) error {
	switch {
	case res.Skipped:
		fmt.Println("check\tskipped")
	case res.Release == nil:
		fmt.Printf("check\tup-to-date\t%s\n", res.CurrentVersion)
	default:
		fmt.Printf("check\tavailable\t%s\t%s\n", res.CurrentVersion, res.Release.Version)
	}
	return nil
}

func orUnknown(version string) string {
	if version == "" {
		return "(unknown)"
	}
	return version
}

// update command
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Run the full update pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		yes, _ := cmd.Flags().GetBool("yes")
		hostPID, _ := cmd.Flags().GetInt("host-pid")
		checkOnly, _ := cmd.Flags().GetBool("check-only")
		porcelain, _ := cmd.Flags().GetBool("porcelain")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if checkOnly {
			res, err := a.Check(cmd.Context(), molt.RunOptions{
				Force: force,
				Sink:  newSink(porcelain),
			})
			if err != nil {
				return err
			}
			if porcelain {
				return printCheckPorcelain(res)
			}
			if res.Release != nil {
				fmt.Printf("Update available: %s -> %s\n", orUnknown(res.CurrentVersion), res.Release.Version)
			} else if !res.Skipped {
				fmt.Printf("Up to date at %s.\n", orUnknown(res.CurrentVersion))
			}
			return nil
		}

		host, err := a.Host(hostPID)
		if err != nil {
			return err
		}

		res := a.Update(cmd.Context(), molt.RunOptions{
			Force:    force,
			ApplyNow: yes,
			Host:     host,
			Sink:     newSink(porcelain),
		})

		if !porcelain {
			printResult(res)
		}
		if res.Outcome == molt.OutcomeFailed {
			// Non-zero exit; the details are already printed.
			cmd.SilenceErrors = true
			cmd.SilenceUsage = true
			return res.Err
		}
		return nil
	},
}

func printResult(res *molt.Result) {
	switch res.Outcome {
	case molt.OutcomeUpToDate:
		fmt.Printf("Up to date at %s.\n", orUnknown(res.Version))
	case molt.OutcomeUpdated:
		fmt.Printf("Updated to %s.\n", res.Version)
		if res.Relaunched {
			fmt.Println("Application relaunched.")
		}
	case molt.OutcomeSkipped:
		fmt.Println("Skipped: check interval has not elapsed (use --force).")
	case molt.OutcomeStaged:
		fmt.Printf("Version %s staged. Run 'molt update --yes' to apply.\n", res.Version)
	case molt.OutcomeFailed:
		fmt.Printf("Update failed: %v\n", res.Err)
		if res.RolledBack {
			fmt.Println("Previous version restored.")
		}
		if res.BackupDir != "" {
			fmt.Printf("Backup retained at %s\n", res.BackupDir)
		}
	}
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show installation and scheduler state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Status()
		if err != nil {
			return err
		}

		fmt.Printf("Version:     %s\n", orUnknown(st.CurrentVersion))
		fmt.Printf("Install dir: %s\n", st.InstallDir)
		fmt.Printf("Repository:  %s\n", orNone(st.Repository))
		fmt.Printf("Auto-apply:  %t\n", st.AutoApply)
		if st.LastCheck.IsZero() {
			fmt.Println("Last check:  never")
		} else {
			fmt.Printf("Last check:  %s\n", st.LastCheck.Format("2006-01-02 15:04:05"))
			fmt.Printf("Next check:  %s\n", st.NextCheck.Format("2006-01-02 15:04:05"))
		}
		if st.InProgress {
			fmt.Println("An update attempt is currently running.")
		}
		return nil
	},
}

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View update attempt history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(recs) == 0 {
			fmt.Println("No update attempts recorded.")
			return nil
		}

		for _, r := range recs {
			extra := ""
			if r.RolledBack {
				extra = "  [rolled back]"
			}
			if r.Error != "" {
				extra += "  " + r.Error
			}
			fmt.Printf("%s  %s  %s -> %s  %-10s%s\n",
				shortID(r.ID),
				r.FinishedAt.Local().Format("2006-01-02 15:04:05"),
				orUnknown(r.FromVersion),
				r.ToVersion,
				r.Outcome,
				extra,
			)
		}
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// manifest command
var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Manage the local installation manifest",
}

var manifestRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-inventory the installation tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		version, _ := cmd.Flags().GetString("version")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.RebuildManifest(version)
		if err != nil {
			return err
		}

		fmt.Printf("Manifest rebuilt: version %s, %d file(s), %d bytes\n",
			m.Version, len(m.Files), m.TotalSize)
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		installDir, _ := cmd.Flags().GetString("install-dir")
		repository, _ := cmd.Flags().GetString("repository")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(installDir, defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Install Dir: %s\n", cfg.InstallDir)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)

		if repository != "" {
			store := settings.NewFileStore(cfg.SettingsPath())
			if err := store.Save(settings.Default(repository)); err != nil {
				return fmt.Errorf("seeding settings: %w", err)
			}
			fmt.Printf("Repository:  %s\n", repository)
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Install Dir: %s\n", cfg.InstallDir)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Registry:    %s\n", cfg.Registry.Type)
		if cfg.Registry.Type == "http" {
			fmt.Printf("Base URL:    %s\n", cfg.Registry.BaseURL)
		}
		if cfg.Registry.Type == "s3" {
			fmt.Printf("Bucket:      %s\n", cfg.Registry.S3Bucket)
		}
		fmt.Printf("Encryption:  %s\n", cfg.Encryption.Type)
		fmt.Printf("Database:    %s\n", cfg.Database.Type)
		return nil
	},
}

var configKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the age identity for encrypted releases",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		if cfg.Encryption.IdentityPath == "" {
			return fmt.Errorf("encryption.identity_path not configured")
		}

		recipient, err := encryption.Keygen(cfg.Encryption.IdentityPath)
		if err != nil {
			return err
		}

		fmt.Printf("Identity written to %s\n", cfg.Encryption.IdentityPath)
		fmt.Printf("Public recipient (give this to the release publisher):\n%s\n", recipient)
		return nil
	},
}

// login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the registry auth token",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		token, err := readToken()
		if err != nil {
			return err
		}
		if token == "" {
			return fmt.Errorf("no token entered")
		}

		store := settings.NewFileStore(cfg.SettingsPath())
		s, err := store.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		s.AuthToken = token
		if err := store.Save(s); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}

		fmt.Println("Token stored.")
		return nil
	},
}

// readToken prompts for the registry token. On a terminal the input is
// not echoed; otherwise one line is read from stdin.
func readToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Print("Registry token: ")
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading token: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func init() {
	checkCmd.Flags().Bool("force", false, "Bypass the check-interval gate")
	checkCmd.Flags().Bool("porcelain", false, "Machine-readable tab-separated output")

	updateCmd.Flags().Bool("force", false, "Bypass the check-interval gate")
	updateCmd.Flags().BoolP("yes", "y", false, "Apply even when auto-apply is off")
	updateCmd.Flags().Int("host-pid", 0, "PID of the running host application")
	updateCmd.Flags().Bool("check-only", false, "Stop after discovery")
	updateCmd.Flags().Bool("porcelain", false, "Machine-readable tab-separated output")

	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of attempts to show")

	manifestCmd.AddCommand(manifestRebuildCmd)
	manifestRebuildCmd.Flags().String("version", "", "Version to record (default: keep current)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeygenCmd)
	configInitCmd.Flags().String("install-dir", "", "Directory of the managed installation")
	configInitCmd.Flags().String("repository", "", "Release repository (e.g. acme/desktop)")
	configInitCmd.MarkFlagRequired("install-dir")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(loginCmd)
}
