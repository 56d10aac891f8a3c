package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts a live SQL debugging console for the telemetry
// store at /debug/tailsql/, plus a small JSON table-stats endpoint.
// Grounded on internal/db.AttachAdminRoutes's tsweb.Debugger +
// tailsql.NewServer/SetDB shape; telemetry is diagnostic-only so this
// mounts far less than the teacher's admin surface (no backup/export
// routes — there is nothing authoritative here to back up).
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://telemetry.db", s.db, &tailsql.DBOptions{
		Label: "Link Telemetry",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("telemetry-stats", "Telemetry row counts (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		stats, err := s.tableStats()
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to get telemetry stats: %v", err), http.StatusInternalServerError)
			return
		}
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			http.Error(w, fmt.Sprintf("failed to encode stats: %v", err), http.StatusInternalServerError)
		}
	}))
}

func (s *Store) tableStats() (map[string]int64, error) {
	stats := map[string]int64{}
	for _, table := range []string{"tracker_snapshot", "pairing_event"} {
		var count int64
		if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %q", table)).Scan(&count); err != nil {
			return nil, err
		}
		stats[table] = count
	}
	return stats, nil
}
