// Package api exposes the report engine over HTTP as JSON.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"loganalyzer/pkg/storage"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

type API struct {
	DB     storage.Storage
	Router *mux.Router
}

func New(db storage.Storage) *API {
	api := API{
		DB:     db,
		Router: mux.NewRouter(),
	}
	api.endpoints()

	return &api
}

func (api *API) endpoints() {
	api.Router.Use(api.requestIDMiddleware)
	api.Router.Use(api.headerMiddleware)

	api.Router.HandleFunc("/reports/top-ips", api.topIPsHandler).Methods(http.MethodGet)
	api.Router.HandleFunc("/reports/status-distribution", api.statusDistributionHandler).Methods(http.MethodGet)
	api.Router.HandleFunc("/reports/hourly-traffic", api.hourlyTrafficHandler).Methods(http.MethodGet)
	api.Router.HandleFunc("/reports/top-paths", api.topPathsHandler).Methods(http.MethodGet)
	api.Router.HandleFunc("/reports/user-agents", api.userAgentsHandler).Methods(http.MethodGet)
	api.Router.HandleFunc("/reports/os", api.trafficByOSHandler).Methods(http.MethodGet)
	api.Router.HandleFunc("/reports/errors", api.errorLogsHandler).Methods(http.MethodGet)
}

// limitParam reads the n query parameter, falling back to defaultLimit and
// rejecting values above maxLimit.
func limitParam(r *http.Request) (int, bool) {
	n, err := strconv.Atoi(r.URL.Query().Get("n"))
	if err != nil || n < 1 {
		n = defaultLimit
	}
	if n > maxLimit {
		return 0, false
	}
	return n, true
}

func (api *API) respond(w http.ResponseWriter, r *http.Request, handler string, data any) {
	sID := shorten(GetRequestID(r.Context()))

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[%s][%s] failed to encode response data: %v", handler, sID, err)
		return
	}
	log.Debugf("[%s][%s] response sent to: %v", handler, sID, r.RemoteAddr)
}

func (api *API) topIPsHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	n, ok := limitParam(r)
	if !ok {
		http.Error(w, "Limit parameter is too big", http.StatusBadRequest)
		log.Debugf("[topIPsHandler][%s] request with too big n parameter", sID)
		return
	}

	rows, err := api.DB.TopIPs(r.Context(), n)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[topIPsHandler][%s] TopIPs() returned error: %v", sID, err)
		return
	}

	api.respond(w, r, "topIPsHandler", rows)
}

func (api *API) statusDistributionHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	rows, err := api.DB.StatusDistribution(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[statusDistributionHandler][%s] StatusDistribution() returned error: %v", sID, err)
		return
	}

	api.respond(w, r, "statusDistributionHandler", rows)
}

func (api *API) hourlyTrafficHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	rows, err := api.DB.HourlyTraffic(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[hourlyTrafficHandler][%s] HourlyTraffic() returned error: %v", sID, err)
		return
	}

	api.respond(w, r, "hourlyTrafficHandler", rows)
}

func (api *API) topPathsHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	n, ok := limitParam(r)
	if !ok {
		http.Error(w, "Limit parameter is too big", http.StatusBadRequest)
		log.Debugf("[topPathsHandler][%s] request with too big n parameter", sID)
		return
	}

	rows, err := api.DB.TopPaths(r.Context(), n)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[topPathsHandler][%s] TopPaths() returned error: %v", sID, err)
		return
	}

	api.respond(w, r, "topPathsHandler", rows)
}

func (api *API) userAgentsHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	n, ok := limitParam(r)
	if !ok {
		http.Error(w, "Limit parameter is too big", http.StatusBadRequest)
		log.Debugf("[userAgentsHandler][%s] request with too big n parameter", sID)
		return
	}

	rows, err := api.DB.UserAgentSummary(r.Context(), n)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[userAgentsHandler][%s] UserAgentSummary() returned error: %v", sID, err)
		return
	}

	api.respond(w, r, "userAgentsHandler", rows)
}

func (api *API) trafficByOSHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	rows, err := api.DB.TrafficByOS(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[trafficByOSHandler][%s] TrafficByOS() returned error: %v", sID, err)
		return
	}

	api.respond(w, r, "trafficByOSHandler", rows)
}

func (api *API) errorLogsHandler(w http.ResponseWriter, r *http.Request) {
	sID := shorten(GetRequestID(r.Context()))

	dateParam := r.URL.Query().Get("date")
	if dateParam == "" {
		http.Error(w, "Missing date parameter, expected YYYY-MM-DD", http.StatusBadRequest)
		log.Debugf("[errorLogsHandler][%s] request without date parameter", sID)
		return
	}

	date, err := time.Parse("2006-01-02", dateParam)
	if err != nil {
		http.Error(w, "Invalid date parameter, expected YYYY-MM-DD", http.StatusBadRequest)
		log.Debugf("[errorLogsHandler][%s] request with invalid date parameter %q", sID, dateParam)
		return
	}

	rows, err := api.DB.ErrorLogsByDate(r.Context(), date)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[errorLogsHandler][%s] ErrorLogsByDate() returned error: %v", sID, err)
		return
	}

	api.respond(w, r, "errorLogsHandler", rows)
}
