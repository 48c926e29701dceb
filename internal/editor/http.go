package editor

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// The HTTP surface is a thin shell over the core: a landing page, the
// editor page bound to a session, a health probe, a stats endpoint, and
// the simulated-latency knob the demo UI toggles.

var landingTmpl = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html>
<head><title>collabedit</title></head>
<body>
  <h1>collabedit</h1>
  <p>Open <code>/&lt;session&gt;?username=&lt;name&gt;</code> to start or join a session.</p>
  <form onsubmit="location.href='/'+this.session.value+'?username='+encodeURIComponent(this.username.value);return false">
    <input name="session" placeholder="session id" required>
    <input name="username" placeholder="username" value="Anonymous">
    <button type="submit">Join</button>
  </form>
</body>
</html>
`))

var editorTmpl = template.Must(template.New("editor").Parse(`<!DOCTYPE html>
<html>
<head><title>collabedit – {{.SessionID}}</title></head>
<body>
  <h1>Session {{.SessionID}}</h1>
  <textarea id="editor" rows="24" cols="100"></textarea>
  <div id="users"></div>
  <script>
    window.SESSION_ID = {{.SessionID}};
    window.USERNAME = {{.Username}};
  </script>
  <script src="/static/js/editor.js"></script>
</body>
</html>
`))

// Routes registers the HTTP surface on mux.
func (s *Service) Routes(mux *http.ServeMux, hub *Hub) {
	mux.HandleFunc("GET /{$}", s.handleLanding)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /simulate_delay", s.handleSimulateDelay)
	mux.HandleFunc("GET /ws", hub.ServeWS)
	if s.cfg.StaticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.StaticDir))))
	}
	mux.HandleFunc("GET /{session}", s.handleEditorPage)
}

func (s *Service) handleLanding(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	landingTmpl.Execute(w, nil)
}

func (s *Service) handleEditorPage(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		username = "Anonymous"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	editorTmpl.Execute(w, struct {
		SessionID string
		Username  string
	}{r.PathValue("session"), username})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("healthy"))
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.Snapshot()
	snap["sessions"] = s.sessions.SessionCount()
	snap["simulated_delay_s"] = s.SimulatedDelay()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// handleSimulateDelay sets the process-wide artificial latency. The demo
// client posts {"delay": seconds} here when the toggle flips.
func (s *Service) handleSimulateDelay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Delay float64 `json:"delay"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	s.SetSimulatedDelay(body.Delay)
	s.log.WithField("delay_s", body.Delay).Info("simulated delay updated")
	w.WriteHeader(http.StatusNoContent)
}
