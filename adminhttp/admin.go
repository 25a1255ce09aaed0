// Copyright (C) 2024 DUORAM Project
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package adminhttp is the small operational HTTP surface every long-running
// duoram daemon exposes alongside its binary wire protocol: a liveness probe
// and a stats dump, routed with gorilla/mux the way elasticproxy/cmd/proxy
// routes its own HTTP API.
package adminhttp

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// StatsFunc returns a JSON-marshalable snapshot of a daemon's internal
// counters, taken fresh on every /stats request.
type StatsFunc func() any

// NewRouter builds the admin mux for a daemon named name. stats may be nil,
// in which case /stats always reports an empty object.
func NewRouter(name string, stats StatsFunc) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthzHandler(name)).Methods(http.MethodGet)
	r.HandleFunc("/stats", statsHandler(stats)).Methods(http.MethodGet)
	return r
}

func healthzHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service": name})
	}
}

func statsHandler(stats StatsFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var v any = map[string]any{}
		if stats != nil {
			v = stats()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(v); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
