package sessions

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jkarvon/vikinglab/internal/conf"
	"github.com/jkarvon/vikinglab/internal/datastore"
	"github.com/jkarvon/vikinglab/internal/labeling"
)

// Command creates the sessions command for inspecting and driving the
// labeling workflow.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage recording sessions",
	}

	cmd.AddCommand(listCommand(settings))
	cmd.AddCommand(statusCommand(settings))
	cmd.AddCommand(doubleCheckCommand(settings))

	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all recording sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store datastore.Interface) error {
				sessions, err := store.GetSessions()
				if err != nil {
					return err
				}
				for i := range sessions {
					s := &sessions[i]
					fmt.Printf("%d\t%s\t%s\t%s\t%s\n",
						s.ID, s.MeasurementType, s.Status, s.InputFileName,
						s.UpdatedAt.Format("2006-01-02 15:04:05"))
				}
				return nil
			})
		},
	}
}

func statusCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "status [session-id] [status]",
		Short: "Update a session's workflow status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(settings, func(store datastore.Interface) error {
				return labeling.NewService(store).UpdateSessionStatus(sessionID, args[1])
			})
		},
	}
}

func doubleCheckCommand(settings *conf.Settings) *cobra.Command {
	var disable bool
	cmd := &cobra.Command{
		Use:   "doublecheck [session-id]",
		Short: "Enable or disable double-check mode on a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(settings, func(store datastore.Interface) error {
				service := labeling.NewService(store)
				if disable {
					return service.DisableDoubleCheckMode(sessionID)
				}
				return service.EnableDoubleCheckMode(sessionID)
			})
		},
	}
	cmd.Flags().BoolVar(&disable, "disable", false, "Disable double-check mode instead of enabling it")
	return cmd
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid session ID %q: %w", raw, err)
	}
	return uint(id), nil
}

func withStore(settings *conf.Settings, fn func(store datastore.Interface) error) error {
	store := datastore.New(settings)
	if store == nil {
		return fmt.Errorf("no database output is enabled in the configuration")
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
