package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	UplinksReceived   atomic.Int64
	FixesGNSS         atomic.Int64
	FixesBLE          atomic.Int64
	FixesWifi         atomic.Int64
	Unresolved        atomic.Int64
	AlertsEmitted     atomic.Int64
	TripsOpened       atomic.Int64
	TripsClosed       atomic.Int64
	DBWriteFailures   atomic.Int64
	LiveStateDrops    atomic.Int64
	GeofenceMissing   atomic.Int64
	MalformedRequests atomic.Int64
)

func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "ingestion_uplinks_received_total %d\n", UplinksReceived.Load())
	fmt.Fprintf(w, "ingestion_fixes_gnss_total %d\n", FixesGNSS.Load())
	fmt.Fprintf(w, "ingestion_fixes_ble_total %d\n", FixesBLE.Load())
	fmt.Fprintf(w, "ingestion_fixes_wifi_total %d\n", FixesWifi.Load())
	fmt.Fprintf(w, "ingestion_unresolved_total %d\n", Unresolved.Load())
	fmt.Fprintf(w, "ingestion_alerts_emitted_total %d\n", AlertsEmitted.Load())
	fmt.Fprintf(w, "ingestion_trips_opened_total %d\n", TripsOpened.Load())
	fmt.Fprintf(w, "ingestion_trips_closed_total %d\n", TripsClosed.Load())
	fmt.Fprintf(w, "ingestion_db_write_failures_total %d\n", DBWriteFailures.Load())
	fmt.Fprintf(w, "ingestion_live_state_drops_total %d\n", LiveStateDrops.Load())
	fmt.Fprintf(w, "ingestion_geofence_missing_total %d\n", GeofenceMissing.Load())
	fmt.Fprintf(w, "ingestion_malformed_requests_total %d\n", MalformedRequests.Load())
}
