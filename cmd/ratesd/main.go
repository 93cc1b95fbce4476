// Package main provides ratesd, a small quote service the CLI can point
// RATE_SOURCE_URL at. It serves the built-in quote table with a per-request
// spread so repeated fetches move a little, like a live provider.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/valuta-trade/internal/config"
	"github.com/valuta-trade/internal/logging"
	"github.com/valuta-trade/internal/models"
	"github.com/valuta-trade/internal/rates"
)

// spreadBP is the half-width of the random spread in basis points.
const spreadBP = 20

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	jitter := flag.Bool("jitter", true, "apply a random spread to every quote")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), logging.ParseFormat(cfg.Logging.Format))

	srv := &quoteServer{
		quotes: rates.DefaultQuotes(),
		jitter: *jitter,
		logger: logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/rate", srv.handleRate).Methods(http.MethodGet)
	router.HandleFunc("/health", srv.handleHealth).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("addr", *addr).Info("quote service listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("quote service failed")
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("shutdown failed")
	}
}

type quoteServer struct {
	quotes map[string]decimal.Decimal
	jitter bool
	logger *logging.Logger
}

type rateResponse struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Rate      string    `json:"rate"`
	FetchedAt time.Time `json:"fetchedAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *quoteServer) handleRate(w http.ResponseWriter, r *http.Request) {
	from := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("from")))
	to := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("to")))
	if from == "" || to == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "from and to query parameters are required"})
		return
	}

	base, ok := s.quotes[models.PairKey(from, to)]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("no quote for %s/%s", from, to)})
		return
	}

	quoted := base
	if s.jitter {
		// Uniform in [-spreadBP, +spreadBP] basis points.
		bp := rand.Intn(2*spreadBP+1) - spreadBP
		factor := decimal.New(10000+int64(bp), -4)
		quoted = base.Mul(factor)
	}

	s.logger.WithFields(map[string]interface{}{
		"pair": models.PairKey(from, to),
		"rate": quoted.String(),
	}).Debug("quote served")

	writeJSON(w, http.StatusOK, rateResponse{
		From:      from,
		To:        to,
		Rate:      quoted.String(),
		FetchedAt: time.Now().UTC(),
	})
}

func (s *quoteServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
