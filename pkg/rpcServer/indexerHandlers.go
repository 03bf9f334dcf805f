package rpcServer

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Layr-Labs/marketplace-indexer/pkg/indexer"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const missingFromMessage = "missing 'from' (block)"

type busyResponse struct {
	Status string `json:"status"`
}

type okResponse struct {
	Ok  bool                `json:"ok"`
	Res *indexer.SyncResult `json:"res,omitempty"`
}

type lastSyncResponse struct {
	Status      string    `json:"status"`
	Scanned     uint64    `json:"scanned"`
	From        uint64    `json:"from"`
	To          uint64    `json:"to"`
	SafeTip     uint64    `json:"safeTip"`
	Applied     int       `json:"applied"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

type statusResponse struct {
	LastBlock      uint64            `json:"lastBlock"`
	ActiveListings int               `json:"activeListings"`
	LastSync       *lastSyncResponse `json:"lastSync"`
}

func (s *RpcServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *RpcServer) writeBusy(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusConflict, &busyResponse{Status: string(indexer.SyncStatus_Busy)})
}

func (s *RpcServer) handleSync(w http.ResponseWriter, r *http.Request) {
	from, err := parseUintParam(r, "from")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	span, err := parseUintParam(r, "span")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := &indexer.SyncOptions{From: from}
	if span != nil {
		opts.Span = *span
	}

	res, err := s.indexer.Sync(r.Context(), opts)
	if err != nil {
		s.Logger.Sugar().Errorw("Sync request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.IsBusy() {
		s.writeBusy(w)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *RpcServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.indexer.GetStatus(r.Context())
	if err != nil {
		s.Logger.Sugar().Errorw("Failed to read indexer status", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	res := &statusResponse{
		LastBlock:      status.LastBlock,
		ActiveListings: status.ActiveListings,
	}
	if last := s.lastSync.Load(); last != nil {
		res.LastSync = &lastSyncResponse{
			Status:      last.Status,
			Scanned:     last.Scanned,
			From:        last.From,
			To:          last.To,
			SafeTip:     last.SafeTip,
			Applied:     last.Applied,
			Error:       last.Error,
			CompletedAt: last.CompletedAt,
		}
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *RpcServer) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.indexer.ClearAll(r.Context()); err != nil {
		if errors.Is(err, indexer.ErrSyncInProgress) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.Logger.Sugar().Errorw("Clear request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, &okResponse{Ok: true})
}

type reindexRequest struct {
	From json.RawMessage `json:"from"`
}

// parseReindexFrom accepts the height as a JSON number or a decimal string.
// Zero counts as missing.
func parseReindexFrom(body []byte) (uint64, bool) {
	req := &reindexRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		return 0, false
	}
	raw := strings.Trim(string(bytes.TrimSpace(req.From)), `"`)
	if raw == "" || raw == "null" {
		return 0, false
	}
	height, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || height == 0 {
		return 0, false
	}
	return height, true
}

func (s *RpcServer) handleReindex(w http.ResponseWriter, r *http.Request) {
	body := new(bytes.Buffer)
	if _, err := body.ReadFrom(http.MaxBytesReader(w, r.Body, 1<<16)); err != nil {
		s.writeError(w, http.StatusBadRequest, missingFromMessage)
		return
	}
	height, ok := parseReindexFrom(body.Bytes())
	if !ok {
		s.writeError(w, http.StatusBadRequest, missingFromMessage)
		return
	}

	res, err := s.indexer.ReindexFrom(r.Context(), height)
	if err != nil {
		if errors.Is(err, indexer.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.Logger.Sugar().Errorw("Reindex request failed", zap.Uint64("from", height), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.IsBusy() {
		s.writeBusy(w)
		return
	}
	s.writeJSON(w, http.StatusOK, &okResponse{Ok: true, Res: res})
}
