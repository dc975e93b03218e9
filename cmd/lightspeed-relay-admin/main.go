package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/tcriess/lightspeed-relay/config"
	"github.com/tcriess/lightspeed-relay/globals"
	"github.com/tcriess/lightspeed-relay/persistence"
)

// A very simple CLI tool for inspecting and pruning the room lifecycle event log.

var (
	configPath string
	persister  persistence.Persister
)

// parseTime accepts either an RFC 3339 timestamp or a duration counted back from now.
func parseTime(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither a duration nor an RFC 3339 timestamp", s)
	}
	return t, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	flagSet := config.GetFlagSet()

	var rootCmd = &cobra.Command{
		Use:          "lightspeed-relay-admin",
		Short:        "Inspect the room lifecycle event log",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			globalConfig, err := config.ReadConfiguration(configPath, flagSet)
			if err != nil {
				return err
			}
			globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
			persister, err = persistence.NewPersister(globalConfig)
			if err != nil {
				return err
			}
			if persister == nil {
				return errors.New("no persistence configured")
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if persister == nil {
				return nil
			}
			return persister.Close()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file or directory")
	rootCmd.PersistentFlags().AddFlagSet(flagSet)

	var since, until string
	var offset, limit int
	var cmdEvents = &cobra.Command{
		Use:   "events [room code]",
		Short: "Show lifecycle events",
		Long:  `events prints the lifecycle events of all rooms, or of the given room, newest first.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			from, err := parseTime(since, now)
			if err != nil {
				return err
			}
			to, err := parseTime(until, now)
			if err != nil {
				return err
			}
			roomCode := ""
			if len(args) > 0 {
				roomCode = args[0]
			}
			events, err := persister.GetEventHistory(roomCode, from, to.Add(time.Nanosecond), offset, limit)
			if err != nil {
				globals.AppLogger.Error("could not get events", "error", err)
				return err
			}
			return printJSON(events)
		},
	}
	cmdEvents.Flags().StringVar(&since, "since", "24h", "start of the time range, duration before now or RFC 3339 timestamp")
	cmdEvents.Flags().StringVar(&until, "until", "", "end of the time range (default: now)")
	cmdEvents.Flags().IntVar(&offset, "offset", 0, "number of events to skip")
	cmdEvents.Flags().IntVar(&limit, "limit", 100, "maximum number of events (0: no limit)")

	var before string
	var cmdPurge = &cobra.Command{
		Use:   "purge",
		Short: "Delete old lifecycle events",
		Long:  `purge removes all lifecycle events recorded before the given point in time.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if before == "" {
				return errors.New("--before is required")
			}
			ts, err := parseTime(before, time.Now())
			if err != nil {
				return err
			}
			n, err := persister.DeleteEventsBefore(ts)
			if err != nil {
				globals.AppLogger.Error("could not delete events", "error", err)
				return err
			}
			globals.AppLogger.Info("purged lifecycle events", "count", n, "before", ts)
			return nil
		},
	}
	cmdPurge.Flags().StringVar(&before, "before", "", "delete events older than this, duration before now or RFC 3339 timestamp")

	rootCmd.AddCommand(cmdEvents, cmdPurge)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
