package api

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/okian/classvoice/internal/adapters/devicebridge"
	"github.com/okian/classvoice/pkg/logger"
)

// StudentHandler upgrades student browsers and mounts one interface per
// connection for as long as the socket stays open.
type StudentHandler struct {
	ctx      context.Context
	deps     Mounter
	upgrader websocket.Upgrader
	peerOpts []devicebridge.Option
	log      logger.Logger
}

// NewStudentHandler creates a websocket handler.
func NewStudentHandler(deps Mounter, allowedOrigins []string, peerOpts ...devicebridge.Option) *StudentHandler {
	h := &StudentHandler{
		ctx:      context.Background(),
		deps:     deps,
		peerOpts: peerOpts,
		log:      logger.Get().Named("api.student"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = originChecker(allowedOrigins)
	}
	return h
}

// HandleStudent handles GET /ws/student.
func (h *StudentHandler) HandleStudent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already answered with an HTTP error
		h.log.Debug(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	ctx := h.ctx
	peer := devicebridge.NewPeer(conn, h.peerOpts...)
	done := make(chan error, 1)
	go func() { done <- peer.Run(ctx) }()

	in, err := h.deps.Mount(ctx, peer)
	if err != nil {
		h.log.Warn(ctx, "student interface not mounted",
			logger.String("remote", r.RemoteAddr), logger.Error(err))
		_ = peer.Close()
		<-done
		return
	}

	if err := <-done; err != nil {
		h.log.Debug(ctx, "student connection ended", logger.String("interface_id", in.ID()), logger.Error(err))
	}
	h.deps.Unmount(context.WithoutCancel(ctx), in.ID())
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if _, ok := set["*"]; ok {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
