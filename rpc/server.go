package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	maxBodyBytes = 1 << 20
	maxBatchSize = 100
)

var log = logrus.WithField("module", "rpc")

// Server serves the JSON-RPC 2.0 API over HTTP. Both single requests and
// batches (a JSON array of requests) are accepted.
type Server struct {
	handler   *Handler
	addr      string
	authToken []byte
	srv       *http.Server
}

// NewServer creates a Server on addr. A non-empty authToken requires every
// request to carry "Authorization: Bearer <token>".
func NewServer(addr string, handler *Handler, authToken string) *Server {
	s := &Server{handler: handler, addr: addr}
	if authToken != "" {
		s.authToken = []byte("Bearer " + authToken)
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// HTTPHandler returns the request handler, for mounting or tests.
func (s *Server) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveHTTP)
	return mux
}

// Start binds the port synchronously so a bind failure is reported to the
// caller, then serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server stopped")
		}
	}()
	return nil
}

// Stop shuts the server down, waiting up to 5 seconds for in-flight requests.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) authorized(r *http.Request) bool {
	if len(s.authToken) == 0 {
		return true
	}
	got := []byte(r.Header.Get("Authorization"))
	return subtle.ConstantTimeCompare(got, s.authToken) == 1
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		writeJSON(w, errResponse(nil, CodeUnauthorized, "unauthorized"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, errResponse(nil, CodeParseError, err.Error()))
		return
	}
	body = bytes.TrimSpace(body)

	if len(body) > 0 && body[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(body, &batch); err != nil {
			writeJSON(w, errResponse(nil, CodeParseError, err.Error()))
			return
		}
		if len(batch) == 0 || len(batch) > maxBatchSize {
			writeJSON(w, errResponse(nil, CodeInvalidRequest, "batch must hold 1 to 100 requests"))
			return
		}
		out := make([]Response, 0, len(batch))
		for _, raw := range batch {
			out = append(out, s.handle(raw))
		}
		writeJSON(w, out)
		return
	}
	writeJSON(w, s.handle(body))
}

func (s *Server) handle(raw []byte) Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResponse(nil, CodeParseError, err.Error())
	}
	if req.JSONRPC != "2.0" {
		return errResponse(req.ID, CodeInvalidRequest, "jsonrpc must be '2.0'")
	}

	start := time.Now()
	resp := s.handler.Dispatch(req)
	entry := log.WithFields(logrus.Fields{"method": req.Method, "took": time.Since(start)})
	if resp.Error != nil {
		entry.WithField("code", resp.Error.Code).Debug(resp.Error.Message)
	} else {
		entry.Trace("served")
	}
	return resp
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
