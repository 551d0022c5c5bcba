package webservice

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ohowland/interconnect/internal/pkg/clock"
	"github.com/ohowland/interconnect/internal/pkg/metrics"
	"github.com/ohowland/interconnect/internal/pkg/msg"
	"github.com/ohowland/interconnect/internal/pkg/report"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

type source struct {
	*msg.PubSub
	mux   sync.Mutex
	frame report.Frame
}

func (s *source) Frame() report.Frame {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.frame
}

func (s *source) publish(f report.Frame) {
	s.mux.Lock()
	s.frame = f
	s.mux.Unlock()
	s.Publish(msg.Status, f)
}

func frame(t clock.Timestamp) report.Frame {
	return report.Frame{Time: t, Snapshots: []report.Snapshot{
		{Time: t, PID: uuid.New(), Kind: "interconnection", Name: "west", Properties: []report.Property{
			report.Quantity("frequency", "Hz", 60),
			report.Enum("status", 0, "OK"),
		}},
		{Time: t, PID: uuid.New(), Kind: "controlarea", Name: "A", Properties: []report.Property{
			report.Quantity("ace", "MW", -0.25),
		}},
		{Time: t, PID: uuid.New(), Kind: "intertie", Name: "A-B", Properties: []report.Property{
			report.Quantity("flow", "MW", 20),
		}},
	}}
}

func newSource() *source {
	return &source{PubSub: msg.NewPublisher(uuid.New()), frame: frame(10)}
}

func get(t *testing.T, app *App, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	app.Router().ServeHTTP(w, httptest.NewRequest("GET", "http://example.com"+path, nil))
	return w
}

func TestBase(t *testing.T) {
	app := New(newSource(), nil, nil)
	w := get(t, app, "/")
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Equal(t, w.Header().Get("Content-Type"), "application/json; charset=UTF-8")

	var s Summary
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, s.Time, int64(10))
	assert.Assert(t, is.Len(s.Objects, 3))
	assert.Equal(t, s.Objects[1].Kind, "controlarea")
}

func TestFrame(t *testing.T) {
	app := New(newSource(), nil, nil)
	w := get(t, app, "/frame")
	assert.Equal(t, w.Code, http.StatusOK)
	var f report.Frame
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &f))
	assert.Equal(t, len(f.Snapshots), 3)
}

func TestSnapshots(t *testing.T) {
	app := New(newSource(), nil, nil)
	tests := []struct {
		path string
		kind string
		name string
	}{
		{"/interconnection", "interconnection", "west"},
		{"/controlarea/A", "controlarea", "A"},
		{"/intertie/A-B", "intertie", "A-B"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(t, app, tt.path)
			assert.Equal(t, w.Code, http.StatusOK)
			var s report.Snapshot
			assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &s))
			assert.Equal(t, s.Kind, tt.kind)
			assert.Equal(t, s.Name, tt.name)
		})
	}
}

func TestProperties(t *testing.T) {
	app := New(newSource(), nil, nil)
	tests := []struct {
		path string
		want report.Property
	}{
		{"/interconnection/frequency", report.Quantity("frequency", "Hz", 60)},
		{"/interconnection/status", report.Enum("status", 0, "OK")},
		{"/controlarea/A/ace", report.Quantity("ace", "MW", -0.25)},
		{"/intertie/A-B/flow", report.Quantity("flow", "MW", 20)},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(t, app, tt.path)
			assert.Equal(t, w.Code, http.StatusOK)
			var p report.Property
			assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &p))
			assert.DeepEqual(t, p, tt.want)
		})
	}
}

func TestNotFound(t *testing.T) {
	app := New(newSource(), nil, nil)
	for _, path := range []string{
		"/interconnection/bogus",
		"/controlarea/Z",
		"/controlarea/A/bogus",
		"/substation/A",
		"/metrics",
	} {
		t.Run(path, func(t *testing.T) {
			w := get(t, app, path)
			assert.Equal(t, w.Code, http.StatusNotFound)
		})
	}

	empty := New(&source{PubSub: msg.NewPublisher(uuid.New())}, nil, nil)
	w := get(t, empty, "/interconnection")
	assert.Equal(t, w.Code, http.StatusNotFound)
	assert.Assert(t, is.Contains(w.Body.String(), "interconnection not found"))
}

func TestMetrics(t *testing.T) {
	exporter := metrics.New()
	exporter.Observe(frame(10))
	app := New(newSource(), exporter.Handler(), nil)

	w := get(t, app, "/metrics")
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Assert(t, is.Contains(w.Body.String(), `gridsim_property{kind="controlarea",name="A",property="ace",unit="MW"} -0.25`))
}

func TestStream(t *testing.T) {
	src := newSource()
	srv := httptest.NewServer(New(src, nil, nil).Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NilError(t, err)
	defer conn.Close()

	var f report.Frame
	assert.NilError(t, conn.ReadJSON(&f))
	assert.Equal(t, f.Time, clock.Timestamp(10))

	src.publish(frame(20))
	assert.NilError(t, conn.ReadJSON(&f))
	assert.Equal(t, f.Time, clock.Timestamp(20))

	src.Close()
	_, _, err = conn.ReadMessage()
	assert.Assert(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestStreamAfterRun(t *testing.T) {
	src := newSource()
	src.Close()
	srv := httptest.NewServer(New(src, nil, nil).Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NilError(t, err)
	defer conn.Close()

	var f report.Frame
	assert.NilError(t, conn.ReadJSON(&f))
	assert.Equal(t, f.Time, clock.Timestamp(10))
	_, _, err = conn.ReadMessage()
	assert.Assert(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
