// Package httpapi serves a read-only JSON view of the market.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alejandrodnm/predictbot/internal/application/market"
	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Market is the read side of the engine the API needs.
type Market interface {
	State(ctx context.Context) (domain.MarketState, error)
	Round(ctx context.Context, epoch uint64) (domain.Round, bool, error)
	IsBiddable(ctx context.Context, epoch uint64) (bool, error)
	IsClaimable(ctx context.Context, epoch uint64, user domain.Address) (bool, error)
	UserRounds(ctx context.Context, user domain.Address, cursor, size int) (market.UserRoundsPage, error)
	Snapshot(ctx context.Context, n int) (domain.MarketSnapshot, error)
	Now() time.Time
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
	recentRounds    = 10
)

// Server holds the routes.
type Server struct {
	market Market
	router *mux.Router
}

// New builds the router. A nil registry disables /metrics.
func New(m Market, registry *prometheus.Registry) *Server {
	s := &Server{market: m, router: mux.NewRouter()}

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/rounds/current", s.handleCurrentRound).Methods(http.MethodGet)
	s.router.HandleFunc("/rounds/{epoch:[0-9]+}", s.handleRound).Methods(http.MethodGet)
	s.router.HandleFunc("/users/{addr}/rounds", s.handleUserRounds).Methods(http.MethodGet)
	s.router.HandleFunc("/claimable/{epoch:[0-9]+}/{addr}", s.handleClaimable).Methods(http.MethodGet)
	if registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RoundResponse is the JSON form of a round. Amounts are decimal strings so
// that clients do not lose precision above 2^53.
type RoundResponse struct {
	Epoch      uint64    `json:"epoch"`
	Phase      string    `json:"phase"`
	Biddable   bool      `json:"biddable"`
	StartTime  time.Time `json:"start_time"`
	LockTime   time.Time `json:"lock_time"`
	CloseTime  time.Time `json:"close_time"`
	LockPrice  string    `json:"lock_price"`
	ClosePrice string    `json:"close_price"`
	Outcome    string    `json:"outcome"`
	TotalStake string    `json:"total_stake"`
	UpStake    string    `json:"up_stake"`
	DownStake  string    `json:"down_stake"`
	PayoutBase string    `json:"payout_base"`
	PayoutPool string    `json:"payout_pool"`
	Settled    bool      `json:"settled"`
}

type statusResponse struct {
	Pool              string          `json:"pool"`
	Owner             string          `json:"owner"`
	CurrentEpoch      uint64          `json:"current_epoch"`
	Treasury          string          `json:"treasury"`
	Balance           string          `json:"balance"`
	GenesisStarted    bool            `json:"genesis_started"`
	GenesisLocked     bool            `json:"genesis_locked"`
	AutomationEnabled bool            `json:"automation_enabled"`
	Paused            bool            `json:"paused"`
	Rounds            []RoundResponse `json:"rounds"`
}

type wagerResponse struct {
	Epoch     uint64 `json:"epoch"`
	Direction string `json:"direction"`
	Stake     string `json:"stake"`
	Claimed   bool   `json:"claimed"`
}

type userRoundsResponse struct {
	User   string          `json:"user"`
	Wagers []wagerResponse `json:"wagers"`
	Next   int             `json:"next"`
	Total  int             `json:"total"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.market.Snapshot(r.Context(), recentRounds)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := statusResponse{
		Pool:              snap.Config.PoolID,
		Owner:             string(snap.State.Owner),
		CurrentEpoch:      snap.State.CurrentEpoch,
		Treasury:          u64(snap.State.Treasury),
		Balance:           u64(snap.Balance),
		GenesisStarted:    snap.State.GenesisStarted,
		GenesisLocked:     snap.State.GenesisLocked,
		AutomationEnabled: snap.State.AutomationEnabled,
		Paused:            snap.State.Paused,
		Rounds:            make([]RoundResponse, 0, len(snap.Rounds)),
	}
	for _, rd := range snap.Rounds {
		resp.Rounds = append(resp.Rounds, toRound(rd, snap.TakenAt))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCurrentRound(w http.ResponseWriter, r *http.Request) {
	st, err := s.market.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeRound(w, r, st.CurrentEpoch)
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	epoch, err := strconv.ParseUint(mux.Vars(r)["epoch"], 10, 64)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid epoch")
		return
	}
	s.writeRound(w, r, epoch)
}

func (s *Server) writeRound(w http.ResponseWriter, r *http.Request, epoch uint64) {
	rd, ok, err := s.market.Round(r.Context(), epoch)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeMessage(w, http.StatusNotFound, "round not found")
		return
	}
	resp := toRound(rd, s.market.Now())
	if resp.Biddable, err = s.market.IsBiddable(r.Context(), epoch); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUserRounds(w http.ResponseWriter, r *http.Request) {
	user, err := domain.ParseAddress(mux.Vars(r)["addr"])
	if err != nil {
		writeError(w, err)
		return
	}
	cursor, err := queryInt(r, "cursor", 0)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid cursor")
		return
	}
	size, err := queryInt(r, "size", defaultPageSize)
	if err != nil || size <= 0 {
		writeMessage(w, http.StatusBadRequest, "invalid size")
		return
	}
	size = min(size, maxPageSize)

	page, err := s.market.UserRounds(r.Context(), user, cursor, size)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := userRoundsResponse{
		User:   string(user),
		Wagers: make([]wagerResponse, 0, len(page.Wagers)),
		Next:   page.Next,
		Total:  page.Total,
	}
	for _, wg := range page.Wagers {
		resp.Wagers = append(resp.Wagers, wagerResponse{
			Epoch:     wg.Epoch,
			Direction: wg.Direction.String(),
			Stake:     u64(wg.Stake),
			Claimed:   wg.Claimed,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClaimable(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	epoch, err := strconv.ParseUint(vars["epoch"], 10, 64)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid epoch")
		return
	}
	user, err := domain.ParseAddress(vars["addr"])
	if err != nil {
		writeError(w, err)
		return
	}
	ok, err := s.market.IsClaimable(r.Context(), epoch, user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"epoch": epoch, "user": user, "claimable": ok})
}

func toRound(r domain.Round, now time.Time) RoundResponse {
	return RoundResponse{
		Epoch:      r.Epoch,
		Phase:      r.Phase(now),
		StartTime:  r.StartTime,
		LockTime:   r.LockTime,
		CloseTime:  r.CloseTime,
		LockPrice:  u64(r.LockPrice),
		ClosePrice: u64(r.ClosePrice),
		Outcome:    string(r.Outcome()),
		TotalStake: u64(r.TotalStake),
		UpStake:    u64(r.UpStake),
		DownStake:  u64(r.DownStake),
		PayoutBase: u64(r.PayoutBase),
		PayoutPool: u64(r.PayoutPool),
		Settled:    r.Settled,
	}
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// writeError maps domain error kinds onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindPrecondition:
		status = http.StatusConflict
		if errors.Is(err, domain.ErrNotInitialized) {
			status = http.StatusServiceUnavailable
		}
	case domain.KindAuthorization:
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		slog.Error("httpapi: request failed", "err", err)
		writeMessage(w, status, "internal error")
		return
	}
	writeMessage(w, status, err.Error())
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("httpapi: encode response", "err", err)
	}
}
