// Command telemetry-viz serves small go-echarts debugging dashboards
// reading back an internal/telemetry.Store: per-slot RSSI and packet-loss
// history, plus the live SQL console internal/telemetry already wires.
// Grounded on internal/lidar/monitor/echarts_handlers.go's
// charts.NewScatter / opts pattern, adapted to a line series over the
// snapshot history instead of a polar point cloud.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/openvrtrack/trackerlink/internal/mac"
	"github.com/openvrtrack/trackerlink/internal/telemetry"
	"github.com/openvrtrack/trackerlink/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version information and exit")
	dbPath := flag.String("telemetry-db", "receiver-telemetry.db", "SQLite path for telemetry snapshots")
	addr := flag.String("addr", ":8091", "listen address")
	historyLimit := flag.Int("history", 500, "number of recent snapshots to plot per slot")
	flag.Parse()

	if *showVersion {
		fmt.Printf("telemetry-viz %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	store, err := telemetry.NewStore(*dbPath)
	if err != nil {
		log.Fatalf("telemetry-viz: failed to open telemetry store %s: %v", *dbPath, err)
	}
	defer store.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/", handleDashboard)
	mux.HandleFunc("/rssi", handleSlotChart(store, *historyLimit, "RSSI (dBm)", func(s telemetry.TrackerSnapshot) float64 { return float64(s.RSSI) }))
	mux.HandleFunc("/packet-loss", handleSlotChart(store, *historyLimit, "Cumulative Packet Loss", func(s telemetry.TrackerSnapshot) float64 { return float64(s.PacketLoss) }))
	store.AttachAdminRoutes(mux)

	log.Printf("telemetry-viz: serving %s on %s (live SQL console at /debug/tailsql/)", *dbPath, *addr)
	log.Fatal(http.ListenAndServe(*addr, mux))
}

func handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<html><body>
<h1>trackerlink telemetry</h1>
<ul>`)
	for slot := 0; slot < mac.DefaultNMax; slot++ {
		fmt.Fprintf(w, `<li>slot %d: <a href="/rssi?slot=%d">RSSI</a> | <a href="/packet-loss?slot=%d">packet loss</a></li>`, slot, slot, slot)
	}
	fmt.Fprintf(w, `</ul>
<p><a href="/debug/">debug routes</a></p>
</body></html>`)
}

func handleSlotChart(store *telemetry.Store, limit int, seriesName string, extract func(telemetry.TrackerSnapshot) float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slot, err := strconv.Atoi(r.URL.Query().Get("slot"))
		if err != nil || slot < 0 {
			http.Error(w, "missing or invalid slot query param", http.StatusBadRequest)
			return
		}

		snaps, err := store.ListRecentSnapshots(slot, limit)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to load snapshots: %v", err), http.StatusInternalServerError)
			return
		}
		// ListRecentSnapshots returns newest-first; plot oldest-first.
		sort.Slice(snaps, func(i, j int) bool { return snaps[i].TakenUnixMs < snaps[j].TakenUnixMs })

		labels := make([]string, len(snaps))
		data := make([]opts.LineData, len(snaps))
		for i, s := range snaps {
			labels[i] = strconv.FormatInt(s.TakenUnixMs, 10)
			data[i] = opts.LineData{Value: extract(s)}
		}

		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{PageTitle: fmt.Sprintf("slot %d: %s", slot, seriesName), Width: "900px", Height: "480px"}),
			charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Slot %d: %s", slot, seriesName), Subtitle: fmt.Sprintf("%d samples", len(snaps))}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: "taken_unix_ms"}),
		)
		line.SetXAxis(labels).AddSeries(seriesName, data)

		var buf bytes.Buffer
		if err := line.Render(&buf); err != nil {
			http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}
