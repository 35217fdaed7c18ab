package server

import (
	"context"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/omnibridge/bridge-service/bridge"
	"github.com/omnibridge/bridge-service/log"
)

type storageInterface interface {
	Ping(ctx context.Context) error
	GetScanCursors(ctx context.Context) ([]bridge.ScanCursor, error)
	CountRelayRecordsByStatus(ctx context.Context) (map[bridge.RelayStatus]uint64, error)
	GetRelayRecordsByStatus(ctx context.Context, status bridge.RelayStatus, limit int) ([]*bridge.RelayRecord, error)
}

// HealthFunc reports per-component liveness, keyed by component name.
type HealthFunc func() map[string]bool

// Server is the read-only HTTP surface of the relay engine: health,
// per-chain scan progress and the failed-relay queue for operators.
type Server struct {
	cfg     Config
	storage storageInterface
	health  HealthFunc
}

// NewServer wires the HTTP surface.
func NewServer(cfg Config, storage storageInterface, health HealthFunc) *Server {
	return &Server{cfg: cfg, storage: storage, health: health}
}

// Run serves until the listener fails or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", s.healthz)
	router.GET("/status", s.status)
	router.GET("/relays/:status", s.relaysByStatus)

	srv := &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      router,
		ReadTimeout:  s.cfg.ReadTimeout.Duration,
		WriteTimeout: s.cfg.WriteTimeout.Duration,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Infof("http server listening on :%s", s.cfg.Port)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) healthz(c *gin.Context) {
	components := map[string]bool{}
	if s.health != nil {
		components = s.health()
	}
	storageOK := s.storage.Ping(c.Request.Context()) == nil
	components["storage"] = storageOK

	healthy := true
	for _, ok := range components {
		if !ok {
			healthy = false
		}
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"healthy": healthy, "components": components})
}

type cursorView struct {
	Chain     string    `json:"chain"`
	BlockNum  uint64    `json:"block_num"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) status(c *gin.Context) {
	ctx := c.Request.Context()
	cursors, err := s.storage.GetScanCursors(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	counts, err := s.storage.CountRelayRecordsByStatus(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	cursorViews := make([]cursorView, 0, len(cursors))
	for _, cur := range cursors {
		cursorViews = append(cursorViews, cursorView{
			Chain:     cur.Chain.String(),
			BlockNum:  cur.BlockNum,
			UpdatedAt: cur.UpdatedAt,
		})
	}
	recordCounts := make(map[string]uint64, len(counts))
	for status, n := range counts {
		recordCounts[string(status)] = n
	}
	c.JSON(http.StatusOK, gin.H{"cursors": cursorViews, "records": recordCounts})
}

type recordView struct {
	Source       string    `json:"source"`
	DepositNonce uint64    `json:"deposit_nonce"`
	Destination  string    `json:"destination"`
	Amount       string    `json:"amount"`
	Status       string    `json:"status"`
	RetryCount   int       `json:"retry_count"`
	FailReason   string    `json:"fail_reason,omitempty"`
	TxHashes     []string  `json:"tx_hashes"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *Server) relaysByStatus(c *gin.Context) {
	status := bridge.RelayStatus(c.Param("status"))
	switch status {
	case bridge.StatusPending, bridge.StatusSubmitted, bridge.StatusRelayed, bridge.StatusFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + string(status)})
		return
	}
	limit := s.cfg.MaxPageSize
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad limit"})
			return
		}
		if n < limit {
			limit = n
		}
	}
	records, err := s.storage.GetRelayRecordsByStatus(c.Request.Context(), status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]recordView, 0, len(records))
	for _, record := range records {
		hashes := make([]string, 0, len(record.TxHashes))
		for _, h := range record.TxHashes {
			hashes = append(hashes, "0x"+hex.EncodeToString(h))
		}
		views = append(views, recordView{
			Source:       record.Intent.Source.String(),
			DepositNonce: record.Intent.DepositNonce,
			Destination:  record.Intent.Destination.String(),
			Amount:       record.Intent.Amount.String(),
			Status:       string(record.Status),
			RetryCount:   record.RetryCount,
			FailReason:   record.FailReason,
			TxHashes:     hashes,
			UpdatedAt:    record.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"count": len(views), "records": views})
}
