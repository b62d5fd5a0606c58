package ingest

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jkarvon/vikinglab/internal/conf"
	"github.com/jkarvon/vikinglab/internal/datastore"
	"github.com/jkarvon/vikinglab/internal/importer"
)

// Command creates the ingest command for importing Viking export files.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Import Viking export files",
		Long:  `Decode one or more Viking export files and store their sessions and channels in the database.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(settings, args)
		},
	}

	setupFlags(cmd, settings)

	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().BoolVar(&settings.Import.KeepEmptyChannels, "keep-empty", settings.Import.KeepEmptyChannels, "Keep channels whose data key was missing")
	cmd.Flags().BoolVar(&settings.Import.RequireSignature, "require-signature", settings.Import.RequireSignature, "Reject files without a Viking signature line")
}

func runIngest(settings *conf.Settings, paths []string) error {
	store := datastore.New(settings)
	if store == nil {
		return fmt.Errorf("no database output is enabled in the configuration")
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close()

	imp := importer.New(store, settings)
	for _, path := range paths {
		sessionID, err := imp.ImportFile(path)
		if err != nil {
			return fmt.Errorf("importing %s: %w", path, err)
		}
		fmt.Printf("%s -> session %d\n", path, sessionID)
	}

	return nil
}
