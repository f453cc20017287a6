package main

import (
	"fmt"
	"log/slog"

	"github.com/adg-dev/khaata/internal/cli"
	"github.com/adg-dev/khaata/internal/provider"
	"github.com/adg-dev/khaata/internal/provider/dominos"
	"github.com/adg-dev/khaata/internal/provider/swiggy"
	"github.com/adg-dev/khaata/internal/provider/zomato"
	"github.com/adg-dev/khaata/internal/service"
	"github.com/adg-dev/khaata/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func fetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <dominos|swiggy|zomato>",
		Short: "Log in to a platform and ingest its full order history",
		Long: `Fetch runs one platform's phone/OTP login flow, walks every page of the
order history, and records each delivered order in the local ledger.
Orders already in the ledger are left untouched, so re-running is safe.

A header file with the platform's static request headers is required,
one "key: value" pair per line.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{dominos.Name, swiggy.Name, zomato.Name},
		RunE:      runFetch,
	}

	cmd.Flags().String("headers", "", "header file (default: <platform>_headers)")
	cmd.Flags().String("db", "", "ledger database path")
	cmd.Flags().String("audit-dir", ".", "directory for the raw order audit artifact")
	cmd.Flags().Bool("no-progress", false, "disable the progress bar")
	return cmd
}

func runFetch(cmd *cobra.Command, args []string) error {
	name := args[0]
	prompter := cli.NewPrompter(nil, nil)

	prov, err := buildProvider(name, headerPath(cmd, name), prompter)
	if err != nil {
		return err
	}

	path, err := dbPath(cmd)
	if err != nil {
		return err
	}
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close ledger", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if err := store.EnsureSchema(ctx, name); err != nil {
		return err
	}

	auditDir, _ := cmd.Flags().GetString("audit-dir")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	pipe := &provider.Pipeline{
		Provider: prov,
		Store:    store,
		Trail:    provider.NewTrail(auditDir, name),
		Progress: !noProgress,
	}
	if err := pipe.Run(ctx); err != nil {
		return err
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("%s order history ingested", name)))
	return nil
}

// headerPath resolves the static header file: flag, then config, then the
// conventional <platform>_headers next to the working directory.
func headerPath(cmd *cobra.Command, name string) string {
	if path, _ := cmd.Flags().GetString("headers"); path != "" {
		return path
	}
	if path := viper.GetString("headers." + name); path != "" {
		return path
	}
	return name + "_headers"
}

func buildProvider(name, headerPath string, prompter service.Prompter) (provider.Provider, error) {
	switch name {
	case dominos.Name:
		return dominos.New(headerPath, prompter)
	case swiggy.Name:
		return swiggy.New(headerPath, prompter)
	case zomato.Name:
		return zomato.New(headerPath, prompter)
	default:
		return nil, fmt.Errorf("unknown platform %q (expected dominos, swiggy or zomato)", name)
	}
}
