// Mock-получатель уведомлений о промоакциях: принимает вебхуки воркера и отдает их списком.
package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paincake00/geopromo/internal/entity"
	"github.com/paincake00/geopromo/internal/logger"
)

// Received уведомление, полученное мок-сервером.
type Received struct {
	Notification entity.PromotionNotification `json:"notification"`
	ReceivedAt   string                       `json:"received_at"`
}

type server struct {
	log *zap.Logger
	// failEvery: каждый n-й POST отвечает 503, чтобы проверить повторы воркера. 0 - без сбоев.
	failEvery int

	mu       sync.Mutex
	posts    int
	received []Received
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.receive(w, r)
	case http.MethodGet:
		s.mu.Lock()
		defer s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.received); err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *server) receive(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var n entity.PromotionNotification
	if err := json.Unmarshal(body, &n); err != nil || n.DeviceID == "" || n.ZoneID == "" {
		s.log.Warn("invalid notification", zap.ByteString("body", body))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts++
	if s.failEvery > 0 && s.posts%s.failEvery == 0 {
		s.log.Info("simulating failure", zap.Int("post", s.posts))
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	s.received = append(s.received, Received{Notification: n, ReceivedAt: time.Now().UTC().Format(time.RFC3339)})
	s.log.Info("notification received",
		zap.String("device_id", n.DeviceID),
		zap.String("zone_id", n.ZoneID),
		zap.Strings("promotions", n.PromotionIDs))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}
	failEvery, _ := strconv.Atoi(os.Getenv("FAIL_EVERY"))

	zl, err := logger.New("info", "console")
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	s := &server{log: zl, failEvery: failEvery}
	zl.Info("mock receiver listening", zap.String("port", port), zap.Int("fail_every", failEvery))
	srv := &http.Server{Addr: ":" + port, Handler: s, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		zl.Fatal("server failed", zap.Error(err))
	}
}
