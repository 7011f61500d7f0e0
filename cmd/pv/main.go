package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pv-go/internal/app"
	"pv-go/internal/config"
	"pv-go/internal/mirror"
	"pv-go/internal/vault"

	"github.com/cheggaaa/pb/v3"
	"github.com/eiannone/keyboard"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Save", "MirrorSync").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// readPasscode prompts on stdout and reads a passcode without echo.
func readPasscode(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading passcode: %w", err)
	}
	return string(b), nil
}

// cancelOnEsc maps Esc to stop while a long command runs. Raw mode swallows
// Ctrl-C, so that key maps to stop as well. The returned cleanup restores
// the terminal; without a terminal attached this is a no-op.
func cancelOnEsc(stop context.CancelFunc) func() {
	if err := keyboard.Open(); err != nil {
		return func() {}
	}
	go func() {
		for {
			_, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			if key == keyboard.KeyEsc || key == keyboard.KeyCtrlC {
				stop()
				return
			}
		}
	}()
	fmt.Println("Press Esc to cancel.")
	return func() { keyboard.Close() }
}

var rootCmd = &cobra.Command{
	Use:   "pv",
	Short: "Personal photo and file vault",
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
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
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

		mirrorType := cfg.Mirror.Type
		if mirrorType == "" {
			mirrorType = "none"
		}
		encryption := "disabled"
		if cfg.Encryption.Enabled {
			encryption = "enabled"
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Vault Root: %s\n", cfg.Vault.RootDir)
		fmt.Printf("Workers:    %d\n", cfg.Vault.Workers)
		fmt.Printf("Journal:    %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Mirror:     %s\n", mirrorType)
		fmt.Printf("Encryption: %s\n", encryption)
		fmt.Printf("Inbox:      %s -> %s\n", cfg.Importer.Inbox, cfg.Importer.Folder)
		return nil
	},
}

// folder command
var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage vault folders",
}

var folderCreateCmd = &cobra.Command{
	Use:   "create PARENT NAME",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("CreateFolder")
		if err != nil {
			return err
		}
		defer a.Close()

		folder, err := a.CreateFolder(args[0], args[1])
		if err != nil {
			return fmt.Errorf("creating folder: %w", err)
		}

		fmt.Printf("Created folder: %s\n", folder.RelPath())
		return nil
	},
}

var folderListCmd = &cobra.Command{
	Use:   "list [PATH]",
	Short: "List folder contents",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := "PhotoVault"
		if len(args) > 0 {
			target = args[0]
		}

		a, err := newApp("ListFolder")
		if err != nil {
			return err
		}
		defer a.Close()

		folder, err := a.ListFolder(target)
		if err != nil {
			return err
		}

		fmt.Printf("%s  (%d files, %d folders)\n", folder.RelPath(), folder.FilesCount, folder.FoldersCount)
		if len(folder.Items) == 0 {
			fmt.Println("Empty folder.")
			return nil
		}
		for _, it := range folder.Items {
			switch {
			case it.Folder != nil:
				fmt.Printf("  folder       %s/\n", it.Folder.Name)
			case it.File != nil:
				fmt.Printf("  %-11s  %s  %s\n", it.File.Type, it.File.ID, it.File.Name)
			}
		}
		return nil
	},
}

var folderRmCmd = &cobra.Command{
	Use:   "rm PATH",
	Short: "Remove a folder and its contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("RemoveFolder")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RemoveFolder(args[0]); err != nil {
			return fmt.Errorf("removing folder: %w", err)
		}

		fmt.Printf("Removed folder: %s\n", args[0])
		return nil
	},
}

// save command
var saveCmd = &cobra.Command{
	Use:   "save FOLDER FILE...",
	Short: "Save files into the vault",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Save")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		paths := args[1:]
		bar := pb.StartNew(len(paths))
		results, err := a.SaveFiles(ctx, args[0], paths, func(res vault.SaveResult) {
			bar.Increment()
		})
		bar.Finish()
		if err != nil {
			return fmt.Errorf("saving: %w", err)
		}

		var created, existed, failed int
		for _, res := range results {
			switch res.Status {
			case vault.StatusCreated:
				created++
			case vault.StatusExists:
				existed++
			default:
				failed++
				fmt.Printf("failed: %s: %v\n", res.Name, res.Err)
			}
		}
		fmt.Printf("Saved %d file(s), %d already present, %d failed\n", created, existed, failed)
		return nil
	},
}

// rm command
var rmCmd = &cobra.Command{
	Use:   "rm FOLDER ID...",
	Short: "Remove files from a folder",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Remove")
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.RemoveFiles(args[0], args[1:])
		if err != nil {
			return fmt.Errorf("removing: %w", err)
		}

		removed := 0
		for _, res := range results {
			if res.Status == vault.DeleteRemoved {
				removed++
				continue
			}
			fmt.Printf("failed: %s: %v\n", res.ID, res.Err)
		}
		fmt.Printf("Removed %d file(s)\n", removed)
		return nil
	},
}

// livephoto command
var livephotoCmd = &cobra.Command{
	Use:   "livephoto",
	Short: "Manage live photos",
}

var livephotoMakeCmd = &cobra.Command{
	Use:   "make FOLDER NAME CLIP",
	Short: "Pair a still and a clip into a live photo",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		photo, _ := cmd.Flags().GetString("photo")

		a, err := newApp("MakeLivePhoto")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()
		defer cancelOnEsc(stop)()

		file, err := a.MakeLivePhoto(ctx, args[0], args[1], photo, args[2])
		if err != nil {
			return fmt.Errorf("making live photo: %w", err)
		}

		fmt.Printf("Created live photo %s (%s)\n", file.Name, file.ID)
		return nil
	},
}

var livephotoExtractCmd = &cobra.Command{
	Use:   "extract FOLDER ID DEST",
	Short: "Unpack a live photo's still and clip",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ExtractLivePhoto")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		identifier, err := a.ExtractLivePhoto(ctx, args[0], args[1], args[2])
		if err != nil {
			return fmt.Errorf("extracting live photo: %w", err)
		}

		fmt.Printf("Extracted live photo to %s\n", args[2])
		fmt.Printf("Content identifier: %s\n", identifier)
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Manage inbox imports",
}

var importRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the inbox and import new files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ImportRun")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		fmt.Println("Watching the inbox. Ctrl-C to stop.")
		stats, err := a.ImportRun(ctx)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		fmt.Printf("Imported %d file(s), skipped %d, failed %d\n", stats.Imported, stats.Skipped, stats.Failed)
		return nil
	},
}

// mirror command
var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Manage the vault mirror",
}

var mirrorSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push the vault to the mirror",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("MirrorSync")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()
		defer cancelOnEsc(stop)()

		var bar *pb.ProgressBar
		results, err := a.MirrorSync(ctx, func(done, total int, res mirror.SyncResult) {
			if bar == nil {
				bar = pb.StartNew(total)
			}
			bar.Increment()
		})
		if bar != nil {
			bar.Finish()
		}
		if err != nil {
			return fmt.Errorf("mirror sync failed: %w", err)
		}

		var uploaded, skipped, failed int
		for _, res := range results {
			switch res.Status {
			case mirror.SyncUploaded:
				uploaded++
			case mirror.SyncSkipped:
				skipped++
			default:
				failed++
				fmt.Printf("failed: %s: %v\n", res.Key, res.Err)
			}
		}
		fmt.Printf("Mirrored %d object(s), %d up to date, %d failed\n", uploaded, skipped, failed)
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export FOLDER ID DEST",
	Short: "Copy a file out of the vault",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Export")
		if err != nil {
			return err
		}
		defer a.Close()

		passcode := ""
		if enabled, _ := a.LockStatus(); enabled {
			passcode, err = readPasscode("Passcode: ")
			if err != nil {
				return err
			}
		}

		path, err := a.Export(args[0], args[1], args[2], passcode)
		if err != nil {
			return fmt.Errorf("exporting: %w", err)
		}

		fmt.Printf("Exported to %s\n", path)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-16s  %s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
			)
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check vault consistency",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Verify")
		if err != nil {
			return err
		}
		defer a.Close()

		issues, err := a.Verify()
		if err != nil {
			return fmt.Errorf("verify failed: %w", err)
		}

		if len(issues) == 0 {
			fmt.Println("Vault is consistent.")
			return nil
		}
		for _, issue := range issues {
			fmt.Printf("%-17s  %s", issue.Kind, issue.Path)
			if issue.Detail != "" {
				fmt.Printf("  (%s)", issue.Detail)
			}
			fmt.Println()
		}
		fmt.Printf("\nFound %d issue(s)\n", len(issues))
		return nil
	},
}

// lock command
var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Manage vault encryption",
}

var lockInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Provision encryption keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("LockInit")
		if err != nil {
			return err
		}
		defer a.Close()

		if enabled, _ := a.LockStatus(); !enabled {
			return fmt.Errorf("encryption is not enabled in the config")
		}

		passcode, err := readPasscode("New passcode: ")
		if err != nil {
			return err
		}
		confirm, err := readPasscode("Confirm passcode: ")
		if err != nil {
			return err
		}
		if passcode != confirm {
			return fmt.Errorf("passcodes do not match")
		}

		if err := a.LockInit(passcode); err != nil {
			return fmt.Errorf("initializing lock: %w", err)
		}

		fmt.Println("Vault lock initialized. New files are encrypted at rest.")
		return nil
	},
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "View encryption status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("LockStatus")
		if err != nil {
			return err
		}
		defer a.Close()

		enabled, configured := a.LockStatus()
		switch {
		case !enabled:
			fmt.Println("Encryption: disabled")
		case !configured:
			fmt.Println("Encryption: enabled, no keys yet (run 'pv lock init')")
		default:
			fmt.Println("Encryption: enabled, keys in place")
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// folder subcommands
	folderCmd.AddCommand(folderCreateCmd)
	folderCmd.AddCommand(folderListCmd)
	folderCmd.AddCommand(folderRmCmd)

	// livephoto subcommands
	livephotoCmd.AddCommand(livephotoMakeCmd)
	livephotoMakeCmd.Flags().StringP("photo", "p", "", "Still to pair; derived from the clip when omitted")
	livephotoCmd.AddCommand(livephotoExtractCmd)

	// import and mirror subcommands
	importCmd.AddCommand(importRunCmd)
	mirrorCmd.AddCommand(mirrorSyncCmd)

	// lock subcommands
	lockCmd.AddCommand(lockInitCmd)
	lockCmd.AddCommand(lockStatusCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(folderCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(livephotoCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(mirrorCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(lockCmd)
}
