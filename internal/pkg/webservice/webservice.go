/*
Package webservice is the read-only HTTP view of a running simulation. Every
response is taken from the frame stored at the end of the last completed
step; /stream pushes each new frame over a websocket.
*/
package webservice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/ohowland/interconnect/internal/pkg/msg"
	"github.com/ohowland/interconnect/internal/pkg/report"
	"go.uber.org/zap"
)

// Source is the simulation as seen by the service.
type Source interface {
	msg.Publisher
	Frame() report.Frame
}

// Summary lists the objects of a frame.
type Summary struct {
	Time    int64    `json:"Time"`
	Objects []Object `json:"Objects"`
}

// Object identifies one reported object.
type Object struct {
	Kind string    `json:"Kind"`
	Name string    `json:"Name"`
	PID  uuid.UUID `json:"PID"`
}

// App serves the reporting routes.
type App struct {
	source   Source
	metrics  http.Handler
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New returns an App reading from source. metrics may be nil.
func New(source Source, metrics http.Handler, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		source:  source,
		metrics: metrics,
		logger:  logger.Named("webservice"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Router returns the service routes.
func (app *App) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", app.BaseHandler).Methods("GET")
	r.HandleFunc("/frame", app.FrameHandler).Methods("GET")
	r.HandleFunc("/stream", app.StreamHandler).Methods("GET")
	r.HandleFunc("/interconnection", app.SnapshotHandler).Methods("GET")
	r.HandleFunc("/interconnection/{property}", app.PropertyHandler).Methods("GET")
	r.HandleFunc("/{kind:controlarea|intertie|generator|load}/{name}", app.SnapshotHandler).Methods("GET")
	r.HandleFunc("/{kind:controlarea|intertie|generator|load}/{name}/{property}", app.PropertyHandler).Methods("GET")
	if app.metrics != nil {
		r.Handle("/metrics", app.metrics).Methods("GET")
	}
	return r
}

// Serve listens on addr until ctx is cancelled.
func (app *App) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		app.logger.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	app.logger.Info("server shutdown")
	return nil
}

func (app *App) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	body, err := json.Marshal(v)
	if err != nil {
		app.logger.Warn("malformed JSON", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		app.logger.Debug("write failed", zap.Error(err))
	}
}

func (app *App) notFound(w http.ResponseWriter, what string) {
	app.writeJSON(w, http.StatusNotFound, map[string]string{"error": what + " not found"})
}

// BaseHandler lists the reported objects.
func (app *App) BaseHandler(w http.ResponseWriter, r *http.Request) {
	f := app.source.Frame()
	s := Summary{Time: int64(f.Time), Objects: make([]Object, 0, len(f.Snapshots))}
	for _, snap := range f.Snapshots {
		s.Objects = append(s.Objects, Object{Kind: snap.Kind, Name: snap.Name, PID: snap.PID})
	}
	app.writeJSON(w, http.StatusOK, s)
}

// FrameHandler returns every snapshot of the last step.
func (app *App) FrameHandler(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, http.StatusOK, app.source.Frame())
}

func (app *App) lookup(r *http.Request) (report.Snapshot, string, bool) {
	vars := mux.Vars(r)
	kind, name := vars["kind"], vars["name"]
	f := app.source.Frame()
	if kind == "" {
		for _, s := range f.Snapshots {
			if s.Kind == "interconnection" {
				return s, "interconnection", true
			}
		}
		return report.Snapshot{}, "interconnection", false
	}
	s, ok := f.Find(kind, name)
	return s, kind + " " + name, ok
}

// SnapshotHandler returns one object's snapshot.
func (app *App) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	s, what, ok := app.lookup(r)
	if !ok {
		app.notFound(w, what)
		return
	}
	app.writeJSON(w, http.StatusOK, s)
}

// PropertyHandler returns one property of an object.
func (app *App) PropertyHandler(w http.ResponseWriter, r *http.Request) {
	s, what, ok := app.lookup(r)
	if !ok {
		app.notFound(w, what)
		return
	}
	name := mux.Vars(r)["property"]
	p, ok := s.Property(name)
	if !ok {
		app.notFound(w, "property "+name)
		return
	}
	app.writeJSON(w, http.StatusOK, p)
}

// StreamHandler upgrades to a websocket and sends the current frame followed
// by every new one. The stream ends when the run ends or the client leaves.
func (app *App) StreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := app.upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.logger.Debug("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	pid := uuid.New()
	frames, err := app.source.Subscribe(pid, msg.Status)
	if errors.Is(err, msg.ErrClosed) {
		// the run is over: send the final frame only
		if err := conn.WriteJSON(app.source.Frame()); err == nil {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run complete"))
		}
		return
	}
	if err != nil {
		app.logger.Warn("subscribe failed", zap.Error(err))
		return
	}
	defer app.source.Unsubscribe(pid)

	// the read pump notices the client going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(app.source.Frame()); err != nil {
		return
	}
	for {
		select {
		case m, ok := <-frames:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run complete"))
				return
			}
			if err := conn.WriteJSON(m.Payload()); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
