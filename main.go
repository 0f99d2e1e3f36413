// Command trackerd runs the device tracking agent: it reads GPS fixes from
// a receiver (or a synthetic source in dev mode), delivers throttled
// position pings to the campus backend over a persistent socket with an
// HTTP fallback, maintains the anomaly-overlaid path view from history and
// live echoes, and serves local status pages.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/apiclient"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/channel"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/config"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/fixsource"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/geo"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/journal"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/sample"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/scheduler"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/status"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/timeutil"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/tracker"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/transport"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/version"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode with a synthetic fix source")
	listen     = flag.String("listen", "127.0.0.1:8080", "Status server listen address")
	configPath = flag.String("config", "", "Path to a JSON tuning file")
	apiBase    = flag.String("api", "", "Backend API base URL")
	deviceID   = flag.String("device", "", "Device ID to track")
	serialPort = flag.String("serial", "", "GPS receiver serial port path")
	authToken  = flag.String("token", "", "Bearer token for backend requests")
	ingestKey  = flag.String("ingest-key", "", "Ingest key for location pings")
	showVer    = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("trackerd %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg := config.Empty()
	if *configPath != "" {
		fileCfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg.Merge(fileCfg)
	}
	// flags override file values
	cfg.Merge(flagOverrides())

	base := config.String(cfg.APIBase, "http://localhost:5000")
	device := config.String(cfg.DeviceID, "")
	if device == "" {
		log.Fatal("a device ID is required (-device or device_id in the config file)")
	}

	wsURL := config.String(cfg.WSURL, "")
	if wsURL == "" {
		derived, err := channel.DeriveURL(base)
		if err != nil {
			log.Fatalf("failed to derive socket URL from %q: %v", base, err)
		}
		wsURL = derived
	}

	session := apiclient.Session{
		AuthToken: config.String(cfg.AuthToken, ""),
		IngestKey: config.String(cfg.IngestKey, ""),
	}
	api := apiclient.New(base, session, nil)

	j, err := journal.Open(config.String(cfg.JournalPath, "tracker-journal.db"))
	if err != nil {
		log.Fatalf("failed to open journal: %v", err)
	}
	defer j.Close()

	var src fixsource.Sourcer
	if *devMode {
		src = fixsource.NewMockSource(
			config.Float(cfg.DefaultLat, 6.9271),
			config.Float(cfg.DefaultLng, 79.8612),
			time.Second,
		)
	} else {
		port := config.String(cfg.SerialPort, "/dev/ttyUSB0")
		src, err = fixsource.OpenSerialSource(port, fixsource.PortOptions{
			BaudRate: config.Int(cfg.BaudRate, 0),
		})
		if err != nil {
			log.Fatalf("failed to open fix source: %v", err)
		}
	}
	defer src.Close()

	trk := tracker.New(tracker.Config{
		API:      api,
		Journal:  j,
		WSURL:    wsURL,
		Dialer:   channel.GorillaDialer,
		Interval: config.Duration(cfg.PingInterval, transport.DefaultInterval),
		Fit: geo.FitConfig{
			DefaultCenter: geo.LatLng{
				Lat: config.Float(cfg.DefaultLat, 6.9271),
				Lng: config.Float(cfg.DefaultLng, 79.8612),
			},
			DefaultZoom: config.Float(cfg.DefaultZoom, 13),
			SingleZoom:  17,
			PadFraction: 0.1,
		},
		Clock: timeutil.RealClock{},
	})
	defer trk.Close()

	trk.OnAlert(func(a sample.AnomalyAlert) {
		log.Printf("anomaly alert: sample=%s score=%.2f at (%.5f, %.5f)", a.SampleID, a.Score, a.Lat, a.Lng)
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// read the receiver until shutdown
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := src.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("fix source terminated: %v", err)
			stop()
		}
	}()

	// select the device: connects the channel and loads history
	if err := trk.SetDevice(ctx, device); err != nil {
		log.Printf("initial history load failed: %v (continuing, live pings unaffected)", err)
	}

	// feed fixes into the transport
	wg.Add(1)
	go func() {
		defer wg.Done()
		trk.Run(ctx, src)
		log.Print("fix pump terminated")
	}()

	// periodic work: watch the receiver, redeliver spooled pings, trim
	// the journal
	var tasks scheduler.Group
	clock := timeutil.RealClock{}
	watchdog := fixsource.NewWatchdog(src, clock)
	tasks.Add(ctx, scheduler.NewTask("fixwatch", fixsource.StaleAfter, clock, watchdog.Check))
	tasks.Add(ctx, scheduler.NewTask("flush", config.Duration(cfg.FlushInterval, 30*time.Second), clock,
		func(ctx context.Context) error { return trk.FlushPending(ctx, 50) }))
	tasks.Add(ctx, scheduler.NewTask("prune", time.Hour, clock,
		func(context.Context) error { return j.Prune(time.Now().Add(-config.Duration(cfg.PruneAfter, 7*24*time.Hour))) }))
	defer tasks.StopAll()

	// local status server
	wg.Add(1)
	go func() {
		defer wg.Done()

		addr := config.String(cfg.Listen, "127.0.0.1:8080")
		srv := status.NewServer(trk.View(), trk, j, api)
		srv.FixWatch = watchdog
		server := &http.Server{
			Addr:    addr,
			Handler: status.LoggingMiddleware(srv.ServeMux()),
		}

		go func() {
			log.Printf("status server listening on %s", addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start status server: %v", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("status server shutdown: %v", err)
		}
	}()

	wg.Wait()
	log.Print("tracker agent stopped")
}

// flagOverrides builds a Config carrying only the flags the user set.
func flagOverrides() *config.Config {
	over := config.Empty()
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "api":
			over.APIBase = apiBase
		case "device":
			over.DeviceID = deviceID
		case "serial":
			over.SerialPort = serialPort
		case "token":
			over.AuthToken = authToken
		case "ingest-key":
			over.IngestKey = ingestKey
		case "listen":
			over.Listen = listen
		}
	})
	return over
}
