package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"checkin/internal/app"
	"checkin/internal/attendance"
	"checkin/internal/config"
	"checkin/internal/view"
)

// Display is the projector view for a terminal: it polls the attendance list and
// redraws stats and the latest check-ins on every tick.
func main() {
	search := flag.String("q", "", "only show check-ins matching this name or phone")
	gender := flag.String("gender", "All", "gender filter: All, Male or Female")
	flag.Parse()

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer deps.Close()

	pager := view.NewPager(view.DisplayFeed)
	pager.SetSearch(*search)
	pager.SetGender(view.ParseGenderFilter(*gender))

	poller := attendance.NewPoller(deps.Manager, cfg.PollInterval, func(entries []attendance.Entry, source attendance.Source) {
		render(os.Stdout, entries, pager, source, time.Now(), cfg.RecentWindow)
	})

	log.Printf("display started, refreshing every %s", cfg.PollInterval)
	poller.Run(ctx)
	log.Println("display stopped")
}

func render(w io.Writer, entries []attendance.Entry, pager *view.Pager, source attendance.Source, now time.Time, window time.Duration) {
	stats := view.ComputeStats(entries, now, window)
	var b strings.Builder
	b.WriteString("\033[H\033[2J")
	fmt.Fprintf(&b, "Live Attendance  %s\n", now.Format("Monday, January 2, 2006 15:04:05"))
	fmt.Fprintf(&b, "Total %d  Male %d  Female %d  Unknown %d  Last %s %d\n",
		stats.Total, stats.Male, stats.Female, stats.Unspecified, window, stats.Recent)
	if source != attendance.SourceRemote {
		fmt.Fprintf(&b, "(offline: showing %s data)\n", source)
	}
	b.WriteString("\n")
	for _, e := range view.Recent(pager.Filter(entries), view.DisplayFeed) {
		fmt.Fprintf(&b, "  %-3s %-40s %s\n", view.Initials(e.FirstName, e.LastName),
			strings.Join(strings.Fields(e.FullName()), " "), e.Timestamp.Local().Format("15:04"))
	}
	_, _ = io.WriteString(w, b.String())
}
