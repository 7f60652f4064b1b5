// Command lightwatch prints the simple and full schedule of one site every few seconds.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sitelight/internal/app"
	"github.com/dokzlo13/sitelight/internal/config"
	"github.com/dokzlo13/sitelight/internal/service"
)

const clearScreen = "\033[H\033[2J"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "config.yaml", "Path to configuration file (shorthand)")
	interval := flag.Duration("interval", 2*time.Second, "Refresh interval")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [restaurant_id]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	siteID := 1
	if arg := flag.Arg(0); arg != "" {
		id, err := strconv.Atoi(arg)
		if err != nil || id < 1 {
			log.Warn().Str("restaurant_id", arg).Msg("Invalid restaurant id, using 1")
		} else {
			siteID = id
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	services, err := app.NewServices(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer services.Close()

	ctx := app.SignalContext()
	watch(ctx, os.Stdout, services.Light, siteID, *interval)
	fmt.Fprintln(os.Stdout, "\nMonitoring stopped")
}

// watch redraws the schedules of siteID until ctx is cancelled.
func watch(ctx context.Context, out io.Writer, svc *service.LightService, siteID int, interval time.Duration) {
	w := &watcher{out: out, svc: svc, siteID: siteID}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fmt.Fprint(out, clearScreen)
		w.refresh(ctx, time.Now())
		fmt.Fprintf(out, "Refreshing every %s | Ctrl+C to stop\n", interval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type watcher struct {
	out    io.Writer
	svc    *service.LightService
	siteID int

	lastRuleCount int
}

// refresh prints one frame. Store errors are shown in the frame rather than returned.
func (w *watcher) refresh(ctx context.Context, now time.Time) {
	status, err := w.svc.GetStatus(ctx, w.siteID)
	if err != nil {
		fmt.Fprintf(w.out, "Failed to read status: %v\n", err)
		return
	}
	full, err := w.svc.GetFullSchedule(ctx, w.siteID)
	if err != nil {
		fmt.Fprintf(w.out, "Failed to read full schedule: %v\n", err)
		return
	}

	changed := len(full.Rules) != w.lastRuleCount
	w.lastRuleCount = len(full.Rules)

	render(w.out, status, full, changed, now)
}

func render(out io.Writer, status service.StatusView, full service.FullScheduleView, changed bool, now time.Time) {
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "SCHEDULE MONITOR - restaurant %d\n", status.RestaurantID)
	fmt.Fprintln(out, rule)

	fmt.Fprintln(out, "\nSIMPLE SCHEDULE:")
	fmt.Fprintf(out, "  ON:  %s\n", orNotSet(status.ScheduleOn))
	fmt.Fprintf(out, "  OFF: %s\n", orNotSet(status.ScheduleOff))
	fmt.Fprintf(out, "  Light: %s (%d%%)\n", status.State, status.Brightness)
	fmt.Fprintf(out, "  Last updated: %s\n", status.LastUpdated)

	fmt.Fprintln(out, "\nFULL SCHEDULE:")
	switch {
	case !full.Supported:
		fmt.Fprintln(out, "  Not supported by this backend")
	case len(full.Rules) == 0:
		fmt.Fprintln(out, "  No rules defined")
	default:
		if changed {
			fmt.Fprintln(out, "  SCHEDULE UPDATED!")
		}
		fmt.Fprintf(out, "  Total rules: %d\n\n", len(full.Rules))
		for i, r := range full.Rules {
			state := "enabled"
			if !r.Enabled {
				state = "disabled"
			}
			fmt.Fprintf(out, "  Rule %d: %s\n", i+1, state)
			fmt.Fprintf(out, "    Days: %s\n", strings.Join(r.Days, ", "))
			fmt.Fprintf(out, "    Time: %s -> %s\n\n", r.StartTime, r.EndTime)
		}
	}

	fmt.Fprintln(out, "\n"+rule)
	fmt.Fprintf(out, "%s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(out, rule)
}

func orNotSet(s *string) string {
	if s == nil {
		return "not set"
	}
	return *s
}
