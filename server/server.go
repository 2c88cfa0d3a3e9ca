package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"gridvalue/grid_world"
	"gridvalue/reinforcement"
	"gridvalue/server/cell_views"
	"gridvalue/server/fastview"
	"gridvalue/server/root_view"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	channerics "github.com/niceyeti/channerics/channels"
	"github.com/rs/zerolog"
)

const shutdownGracePeriod = 5 * time.Second

// Server serves a single page showing a solver's progress, plus the websocket that
// pushes sweep updates to it. The element-update stream is not multiplexed: while
// several pages may be open, each update reaches only one of them.
type Server struct {
	ctx      context.Context
	addr     string
	convert  func(reinforcement.SweepReport) [][]cell_views.Cell
	latest   atomic.Pointer[reinforcement.SweepReport]
	rootView *root_view.RootView
	router   *mux.Router
	logger   zerolog.Logger
}

// NewServer initializes all of the views and returns a server. The index page is
// rendered from the latest report seen on reports, initially the passed one.
func NewServer(
	ctx context.Context,
	addr string,
	model *grid_world.GridModel,
	initial reinforcement.SweepReport,
	reports <-chan reinforcement.SweepReport,
	logger zerolog.Logger,
) (*Server, error) {
	if initial.Values == nil {
		initial.Values = reinforcement.NewValueTable(model.Size())
	}

	server := &Server{
		ctx:    ctx,
		addr:   addr,
		logger: logger.With().Str("component", "server").Logger(),
	}
	server.convert = cell_views.NewConverter(model, model.Kind, server.logger)
	server.latest.Store(&initial)

	tapped := channerics.Convert(ctx.Done(), reports, func(report reinforcement.SweepReport) reinforcement.SweepReport {
		server.latest.Store(&report)
		return report
	})

	var err error
	if server.rootView, err = root_view.NewRootView(ctx, server.convert, tapped); err != nil {
		return nil, fmt.Errorf("build views: %w", err)
	}

	server.router = mux.NewRouter()
	server.router.Use(requestLogger(server.logger))
	server.router.HandleFunc("/", server.serveIndex).Methods(http.MethodGet)
	server.router.HandleFunc("/ws", server.serveWebsocket)
	server.router.HandleFunc("/healthz", server.serveHealth).Methods(http.MethodGet)
	return server, nil
}

// Handler returns the server's router.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve listens on the server's address until its context is cancelled.
func (server *Server) Serve() (err error) {
	httpServer := &http.Server{
		Addr:              server.addr,
		Handler:           server.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-server.ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn().Err(shutdownErr).Msg("shutdown")
		}
	}()

	server.logger.Info().Str("addr", server.addr).Msg("serving")
	if err = httpServer.ListenAndServe(); errors.Is(err, http.ErrServerClosed) {
		err = nil
	} else if err != nil {
		err = fmt.Errorf("serve: %w", err)
	}
	return
}

// serveWebsocket publishes view updates to the client until it disconnects or
// the server shuts down.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	cli, err := fastview.NewClient(server.rootView.Updates(), w, r, server.logger)
	if err != nil {
		server.logger.Error().Err(err).Msg("websocket upgrade")
		return
	}

	if err = cli.Sync(server.ctx); err != nil {
		server.logger.Warn().Err(err).Msg("websocket sync")
	}
}

// Serve the index.html main page.
func (server *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if err := renderTemplate(w, server.rootView, server.convert(*server.latest.Load())); err != nil {
		server.logger.Error().Err(err).Msg("render index")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// requestLogger tags each request with a correlation id and logs it. The writer is
// not wrapped, so websocket upgrades can still hijack it.
func requestLogger(logger zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get("X-Correlation-ID")
			if correlationID == "" {
				correlationID = uuid.New().String()
			}
			w.Header().Set("X-Correlation-ID", correlationID)

			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug().
				Str("correlation_id", correlationID).
				Str("method", r.Method).
				Str("url", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Dur("elapsed", time.Since(start)).
				Msg("request completed")
		})
	}
}

type health struct {
	Status string  `json:"status"`
	Run    string  `json:"run"`
	Sweep  int     `json:"sweep"`
	Delta  float64 `json:"delta"`
}

func (server *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	latest := server.latest.Load()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health{
		Status: "ok",
		Run:    latest.RunID.String(),
		Sweep:  latest.Sweep,
		Delta:  latest.Delta,
	})
}

func renderTemplate(
	w io.Writer,
	vc fastview.ViewComponent,
	data interface{},
) (err error) {
	t := template.New("index.html")
	var tname string
	if tname, err = vc.Parse(t); err != nil {
		return
	}
	if _, err = t.Parse(`{{ template "` + tname + `" . }}`); err != nil {
		return
	}
	err = t.Execute(w, data)
	return
}
