package journal

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/monitoring"
)

// AttachAdminRoutes mounts debugging endpoints under /debug/ on the given
// mux: a tailSQL console over the journal and an on-demand backup download.
// These routes are for the local status listener only and must never be
// exposed publicly.
func (j *Journal) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("tailsql server unavailable: %v", err)
		return
	}
	tsql.SetDB("sqlite://journal.db", j.DB, &tailsql.DBOptions{
		Label: "Tracker journal",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the journal now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("journal-backup-%d.db", time.Now().Unix())
		if _, err := j.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		defer os.Remove(backupPath)

		f, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to open backup: %v", err), http.StatusInternalServerError)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		if _, err := io.Copy(w, f); err != nil {
			monitoring.Logf("backup download interrupted: %v", err)
		}
	}))
}
