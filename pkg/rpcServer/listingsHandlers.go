package rpcServer

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Layr-Labs/marketplace-indexer/pkg/indexer"
	"github.com/Layr-Labs/marketplace-indexer/pkg/service/listingsDataService"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const listingsCacheControl = "public, s-maxage=5, stale-while-revalidate=30"

func (s *RpcServer) handleListActive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := listingsDataService.DefaultLimit
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid 'limit': "+raw)
			return
		}
		limit = v
	}

	filter := &listingsDataService.ListingsFilter{
		Seller: q.Get("seller"),
		Nft:    q.Get("nft"),
		MinEth: strings.TrimSpace(q.Get("minEth")),
		MaxEth: strings.TrimSpace(q.Get("maxEth")),
	}

	res, err := s.listingsDataService.ListActive(r.Context(), filter, strings.TrimSpace(q.Get("cursor")), limit)
	if err != nil {
		if listingsDataService.IsInvalidArgument(err) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.Logger.Sugar().Errorw("Failed to list active listings", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Cache-Control", listingsCacheControl)
	s.writeJSON(w, http.StatusOK, res)
}

type liveListingsResponse struct {
	From    uint64                         `json:"from"`
	To      uint64                         `json:"to"`
	Scanned uint64                         `json:"scanned"`
	Items   []*listingsDataService.Listing `json:"items"`
}

// handleListLive rebuilds the active set from recent chain logs, bypassing
// the store. Slow, meant for diagnostics.
func (s *RpcServer) handleListLive(w http.ResponseWriter, r *http.Request) {
	lookback, err := parseUintParam(r, "lookback")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	blocks := indexer.DefaultLiveLookback
	if lookback != nil {
		blocks = *lookback
	}

	res, err := s.indexer.ScanRecent(r.Context(), blocks)
	if err != nil {
		if errors.Is(err, indexer.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.Logger.Sugar().Errorw("Live scan failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	s.writeJSON(w, http.StatusOK, &liveListingsResponse{
		From:    res.From,
		To:      res.To,
		Scanned: res.Scanned,
		Items:   s.listingsDataService.Render(res.Listings),
	})
}
