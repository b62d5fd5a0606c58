package channels

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jkarvon/vikinglab/internal/conf"
	"github.com/jkarvon/vikinglab/internal/datastore"
	"github.com/jkarvon/vikinglab/internal/labeling"
)

// Command creates the channels command for inspecting decoded signals.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Inspect decoded channels",
	}

	cmd.AddCommand(listCommand(settings))
	cmd.AddCommand(showCommand(settings))

	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list [session-id]",
		Short: "List the channels of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(settings, func(store datastore.Interface) error {
				channels, err := store.GetChannelsBySession(sessionID)
				if err != nil {
					return err
				}
				for i := range channels {
					c := &channels[i]
					sweep := "-"
					if c.SweepIndex != nil {
						sweep = strconv.Itoa(*c.SweepIndex)
					}
					fmt.Printf("%d\tch%d\t%s\tsweep=%s\t%.1f ms\t%.1f kHz\n",
						c.ID, c.ChannelNumber, c.Kind, sweep, c.DurationMs, c.EffectiveRateKhz())
				}
				return nil
			})
		},
	}
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show [channel-id]",
		Short: "Show a channel's signal summary and annotations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			channelID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(settings, func(store datastore.Interface) error {
				signal, err := labeling.NewService(store).GetChannelSignal(channelID)
				if err != nil {
					return err
				}
				fmt.Printf("sampling rate: %.1f Hz\nduration: %.1f ms\nsamples: %d\n",
					signal.SamplingRateHz, signal.DurationMs, len(signal.Samples))
				for i := range signal.Annotations {
					a := &signal.Annotations[i]
					fmt.Printf("  [%g, %g) %s\t%s\n", a.StartTimeMs, a.EndTimeMs, a.LabelName, a.Note)
				}
				return nil
			})
		},
	}
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q: %w", raw, err)
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
