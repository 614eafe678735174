package api

import (
	"encoding/json"
	"net/http"

	"github.com/ferrite-ci/ferrite-engine/logger"
	"github.com/go-chi/chi/v5"
)

// Server 节点消息收件箱，master 和 worker 各自起一个。
// 收到的消息只做解码，业务处理在 engine 的消息循环里。
type Server struct {
	addr     string
	recvChan chan *Message
	srv      *http.Server
}

func NewServer(addr string, recvChan chan *Message) *Server {
	s := &Server{
		addr:     addr,
		recvChan: recvChan,
	}
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Post("/api/v1/messages", s.handleMessage)

	return r
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid message body", http.StatusBadRequest)
		return
	}
	if msg.Type < MessageType_REGISTER || msg.Type > MessageType_LOG {
		http.Error(w, "unknown message type", http.StatusBadRequest)
		return
	}
	// 执行和取消消息必须带 execReq
	if (msg.Type == MessageType_EXECUTE || msg.Type == MessageType_CANCEL) && msg.ExecReq == nil {
		http.Error(w, "missing execReq", http.StatusBadRequest)
		return
	}
	s.recvChan <- &msg

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// Start 后台启动监听
func (s *Server) Start() {
	go func() {
		logger.Infof("api server listen on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("api server error: %v", err)
		}
	}()
}

func (s *Server) Stop() error {
	return s.srv.Close()
}
