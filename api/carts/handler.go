// Package carts exposes the operator HTTP surface: cart status for the
// monitoring UI, destination assignment and cart removal.
package carts

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prtline/sortation/core/dispatch"
	"github.com/prtline/sortation/core/model"
	"github.com/prtline/sortation/core/registry"
	"github.com/prtline/sortation/core/status"
)

func authorized(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+token
}

// NewStatusHandler returns an HTTP handler exposing cart status data via
// GET /api/carts/status.
func NewStatusHandler(mon *status.Monitor, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if barcode := r.URL.Query().Get("barcode"); barcode != "" {
			view := struct {
				Barcode string `json:"barcode"`
				Status  string `json:"status"`
			}{Barcode: barcode, Status: mon.GetStatus(barcode).String()}
			writeJSON(w, view)
			return
		}
		writeJSON(w, mon.List())
	})
}

// AssignRequest is the POST /api/carts/assign payload.
type AssignRequest struct {
	Barcode     string `json:"barcode"`
	Destination int    `json:"destination"`
}

// NewAssignHandler returns an HTTP handler updating a cart's destination.
// The write goes to the registry and, when a repository is configured, to
// the durable assignment table.
func NewAssignHandler(reg *registry.Registry, repo registry.Repository, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req AssignRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		barcode := model.NormalizeBarcode(req.Barcode)
		if !model.ValidBarcode(barcode) || req.Destination < 0 {
			http.Error(w, "missing barcode or destination", http.StatusBadRequest)
			return
		}
		reg.Assign(barcode, model.Destination(req.Destination))
		if repo != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := repo.SaveAssignment(ctx, barcode, model.Destination(req.Destination)); err != nil {
				http.Error(w, "database write failed", http.StatusInternalServerError)
				return
			}
		}
		writeJSON(w, map[string]string{"message": "destination updated"})
	})
}

// RemoveRequest is the POST /api/carts/remove payload.
type RemoveRequest struct {
	Barcode string `json:"barcode"`
	Area    int    `json:"area"`
}

// NewRemoveHandler returns an HTTP handler extracting a cart from
// circulation.
func NewRemoveHandler(engine *dispatch.Engine, repo registry.Repository, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req RemoveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		barcode := model.NormalizeBarcode(req.Barcode)
		if !model.ValidBarcode(barcode) || req.Area <= 0 {
			http.Error(w, "missing barcode or area", http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if _, err := engine.HandleRemoval(ctx, barcode, req.Area, time.Now()); err != nil {
			http.Error(w, "removal failed", http.StatusInternalServerError)
			return
		}
		if repo != nil {
			if err := repo.SaveAssignment(ctx, barcode, model.Destination(req.Area)); err != nil {
				http.Error(w, "database write failed", http.StatusInternalServerError)
				return
			}
		}
		writeJSON(w, map[string]string{"message": "cart removed"})
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
