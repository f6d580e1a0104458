package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ibeckermayer/uibot/internal/app"
	"github.com/ibeckermayer/uibot/internal/tinder"
	"github.com/ibeckermayer/uibot/internal/types"
)

func newTinderCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tinder",
		Short: "Tinder web sessions",
	}
	cmd.AddCommand(
		newSwipeCmd(c),
		newMatchesCmd(c),
		newMessageCmd(c),
		newUnmatchCmd(c),
		newPrefsCmd(c),
		newProfileCmd(c),
		newScheduleCmd(c),
	)
	return cmd
}

func sessionFlags(f *pflag.FlagSet, p *app.SessionParams) {
	f.BoolVar(&p.ManualLogin, "manual-login", false, "wait for a login in the browser window instead of using credentials")
	f.Bool("headless", false, "run the browser without a window")
	f.StringVar(&p.AuthState, "auth-state", "", "storage-state file to restore and update")
}

type swipeFlags struct {
	p        app.SwipeParams
	sleep    int
	lat, lon float64
}

func (s *swipeFlags) register(f *pflag.FlagSet) {
	sessionFlags(f, &s.p.SessionParams)
	f.IntVar(&s.p.Likes, "likes", 0, "number of likes (default from config)")
	f.StringVar(&s.p.Ratio, "ratio", "", "share of profiles to like, e.g. 72.5% (default from config)")
	f.IntVar(&s.sleep, "sleep", 0, "mean seconds between swipes (default from config)")
	f.Float64Var(&s.lat, "lat", 0, "latitude to swipe from")
	f.Float64Var(&s.lon, "lon", 0, "longitude to swipe from")
	f.IntVar(&s.p.Distance, "distance", 0, "maximum distance in km")
}

// params validates the flags and returns the swipe parameters.
func (s *swipeFlags) params(cmd *cobra.Command) (app.SwipeParams, error) {
	p := s.p
	if p.Likes < 0 {
		return p, usagef("--likes must not be negative")
	}
	if p.Ratio != "" {
		if _, err := tinder.ParseRatio(p.Ratio); err != nil {
			return p, usageError{err}
		}
	}
	if s.sleep < 0 {
		return p, usagef("--sleep must not be negative")
	}
	p.Sleep = time.Duration(s.sleep) * time.Second

	f := cmd.Flags()
	if f.Changed("lat") != f.Changed("lon") {
		return p, usagef("--lat and --lon must be given together")
	}
	if f.Changed("lat") {
		lat, lon := s.lat, s.lon
		p.Lat, p.Lon = &lat, &lon
	}
	if p.Distance < 0 {
		return p, usagef("--distance must not be negative")
	}
	p.Headless = headlessFlag(cmd)
	return p, nil
}

func newSwipeCmd(c *cli) *cobra.Command {
	var s swipeFlags
	cmd := &cobra.Command{
		Use:   "swipe",
		Short: "Like and dislike profiles at the given ratio",
		Args:  argsBetween(0, 0),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.params(cmd)
			if err != nil {
				return err
			}
			stats, err := c.app.TinderSwipe(cmd.Context(), p)
			printStats(cmd, stats)
			return err
		},
	}
	s.register(cmd.Flags())
	return cmd
}

func newMatchesCmd(c *cli) *cobra.Command {
	var p app.MatchParams
	cmd := &cobra.Command{
		Use:   "matches",
		Short: "Scrape matches and store the ones not seen before",
		Args:  argsBetween(0, 0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.Amount < 0 {
				return usagef("--amount must not be negative")
			}
			p.Headless = headlessFlag(cmd)
			matches, err := c.app.TinderMatches(cmd.Context(), p)
			w := cmd.OutOrStdout()
			for _, m := range matches {
				fmt.Fprintf(w, "%s\t%s\n", m.ChatID, describe(m))
			}
			return err
		},
	}
	f := cmd.Flags()
	sessionFlags(f, &p.SessionParams)
	f.BoolVar(&p.New, "new", false, "matches without messages (default)")
	f.BoolVar(&p.Messaged, "messaged", false, "matches with messages")
	f.IntVar(&p.Amount, "amount", 10, "maximum matches per list")
	f.BoolVar(&p.Quickload, "quickload", false, "skip waiting for every profile image")
	f.StringVar(&p.Out, "out", "", "also write the matches to this JSON file")
	return cmd
}

func newMessageCmd(c *cli) *cobra.Command {
	var p app.SessionParams
	cmd := &cobra.Command{
		Use:   "message <chat_id> <text>",
		Short: "Send a message to a match",
		Args:  argsBetween(2, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(args[1]) == "" {
				return usagef("message text is empty")
			}
			p.Headless = headlessFlag(cmd)
			return c.app.TinderMessage(cmd.Context(), p, args[0], args[1])
		},
	}
	sessionFlags(cmd.Flags(), &p)
	return cmd
}

func newUnmatchCmd(c *cli) *cobra.Command {
	var p app.SessionParams
	cmd := &cobra.Command{
		Use:   "unmatch <chat_id>",
		Short: "Remove a match",
		Args:  argsBetween(1, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Headless = headlessFlag(cmd)
			return c.app.TinderUnmatch(cmd.Context(), p, args[0])
		},
	}
	sessionFlags(cmd.Flags(), &p)
	return cmd
}

func newPrefsCmd(c *cli) *cobra.Command {
	var p app.PrefParams
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Change distance, age range or global mode",
		Args:  argsBetween(0, 0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.Distance < 0 || p.MinAge < 0 || p.MaxAge < 0 {
				return usagef("distance and ages must not be negative")
			}
			if p.MaxAge != 0 && p.MaxAge < p.MinAge {
				return usagef("--max-age must not be below --min-age")
			}
			if cmd.Flags().Changed("global") {
				g, _ := cmd.Flags().GetBool("global")
				p.Global = &g
			}
			p.Headless = headlessFlag(cmd)
			return c.app.TinderPreferences(cmd.Context(), p)
		},
	}
	f := cmd.Flags()
	sessionFlags(f, &p.SessionParams)
	f.IntVar(&p.Distance, "distance", 0, "maximum distance in km")
	f.IntVar(&p.MinAge, "min-age", 0, "minimum age")
	f.IntVar(&p.MaxAge, "max-age", 0, "maximum age")
	f.Bool("global", false, "swipe around the world")
	return cmd
}

func newProfileCmd(c *cli) *cobra.Command {
	var p app.ProfileParams
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Edit the bio or add a photo",
		Args:  argsBetween(0, 0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.Photo != "" {
				if err := requireFile(p.Photo); err != nil {
					return err
				}
			}
			p.Headless = headlessFlag(cmd)
			return c.app.TinderProfile(cmd.Context(), p)
		},
	}
	f := cmd.Flags()
	sessionFlags(f, &p.SessionParams)
	f.StringVar(&p.Bio, "bio", "", "new bio text")
	f.StringVar(&p.Photo, "photo", "", "image file to add")
	return cmd
}

func newScheduleCmd(c *cli) *cobra.Command {
	var (
		s  swipeFlags
		at string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run a swipe session every day until interrupted",
		Args:  argsBetween(0, 0),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.params(cmd)
			if err != nil {
				return err
			}
			if at != "" {
				if _, err := time.Parse("15:04", at); err != nil {
					return usagef("--at must be HH:MM")
				}
			}
			return c.app.ScheduleSwipes(cmd.Context(), at, p)
		},
	}
	s.register(cmd.Flags())
	cmd.Flags().StringVar(&at, "at", "", "time of day as HH:MM (default from config)")
	return cmd
}

func printStats(cmd *cobra.Command, stats types.SessionStats) {
	for _, line := range stats.Summary() {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
}

func describe(m types.RemoteMatch) string {
	s := m.Name
	if m.Age != nil {
		s += fmt.Sprintf(", %d", *m.Age)
	}
	if m.Distance != nil {
		s += fmt.Sprintf(" (%d km)", *m.Distance)
	}
	return s
}
