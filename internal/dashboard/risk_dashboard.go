// Package dashboard provides real-time monitoring of served risk predictions.
// It keeps per-kind tier counts and the most recent AT_RISK alerts, serves a
// JSON summary and streams alerts and periodic snapshots over WebSocket.
package dashboard

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"academic-risk/internal/engine"
	"academic-risk/internal/ml"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	maxRecentAlerts = 50
	writeTimeout    = 5 * time.Second
)

// Message types sent to WebSocket clients.
const (
	TypeSnapshot = "snapshot"
	TypeAlert    = "alert"
)

// Alert is published for every AT_RISK prediction.
type Alert struct {
	ID           string       `json:"id"`
	StudentID    string       `json:"student_id"`
	Kind         ml.Kind      `json:"kind"`
	Score        float64      `json:"score"`
	RiskLevel    engine.Level `json:"risk_level"`
	ModelVersion string       `json:"model_version"`
	At           time.Time    `json:"at"`
}

// Summary is a point-in-time view of everything the dashboard tracks.
type Summary struct {
	Timestamp    time.Time                          `json:"timestamp"`
	Total        int64                              `json:"total_predictions"`
	Tiers        map[ml.Kind]map[engine.Level]int64 `json:"tiers"`
	Sources      map[engine.Source]int64            `json:"sources"`
	RecentAlerts []Alert                            `json:"recent_alerts"`
	Models       []engine.ModelInfo                 `json:"models,omitempty"`
	Clients      int                                `json:"clients"`
}

// Message is the envelope of every WebSocket frame.
type Message struct {
	Type    string   `json:"type"`
	Summary *Summary `json:"summary,omitempty"`
	Alert   *Alert   `json:"alert,omitempty"`
}

// ModelInfoSource reports model availability; *engine.Engine satisfies it.
type ModelInfoSource interface {
	ModelInfo() []engine.ModelInfo
}

// Metrics receives dashboard measurements.
type Metrics interface {
	DashboardClientsSet(n int)
	AlertPublishedInc()
}

type noopMetrics struct{}

func (noopMetrics) DashboardClientsSet(int) {}
func (noopMetrics) AlertPublishedInc()      {}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// RiskDashboard aggregates predictions observed from the engine.
type RiskDashboard struct {
	models   ModelInfoSource
	metrics  Metrics
	interval time.Duration
	upgrader websocket.Upgrader

	statsMu sync.RWMutex
	total   int64
	tiers   map[ml.Kind]map[engine.Level]int64
	sources map[engine.Source]int64
	alerts  []Alert

	clients   map[*websocket.Conn]*client
	clientsMu sync.RWMutex

	broadcastChannel chan Message
	stopChannel      chan struct{}
	isRunning        bool
	mu               sync.Mutex
}

// NewRiskDashboard creates a dashboard that pushes a snapshot every interval.
// models and m may be nil.
func NewRiskDashboard(models ModelInfoSource, m Metrics, interval time.Duration) *RiskDashboard {
	if m == nil {
		m = noopMetrics{}
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	rd := &RiskDashboard{
		models:           models,
		metrics:          m,
		interval:         interval,
		upgrader:         websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		tiers:            make(map[ml.Kind]map[engine.Level]int64, len(ml.Kinds)),
		sources:          make(map[engine.Source]int64, 2),
		clients:          make(map[*websocket.Conn]*client),
		broadcastChannel: make(chan Message, 100),
		stopChannel:      make(chan struct{}),
	}
	for _, k := range ml.Kinds {
		rd.tiers[k] = make(map[engine.Level]int64, len(engine.Levels))
		for _, l := range engine.Levels {
			rd.tiers[k][l] = 0
		}
	}
	return rd
}

// SetModelSource sets where summaries read model availability from.
func (rd *RiskDashboard) SetModelSource(models ModelInfoSource) {
	rd.statsMu.Lock()
	rd.models = models
	rd.statsMu.Unlock()
}

// Register mounts the dashboard routes on r.
func (rd *RiskDashboard) Register(r *mux.Router) {
	r.HandleFunc("/dashboard", rd.handleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/dashboard/api/summary", rd.handleSummaryAPI).Methods(http.MethodGet)
	r.HandleFunc("/dashboard/ws", rd.handleWebSocket).Methods(http.MethodGet)
}

// Start launches the snapshot collector and the broadcaster.
func (rd *RiskDashboard) Start() error {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	if rd.isRunning {
		return fmt.Errorf("risk dashboard is already running")
	}

	go rd.snapshotCollector()
	go rd.clientBroadcaster()

	rd.isRunning = true
	log.Info().Dur("interval", rd.interval).Msg("Risk dashboard started")
	return nil
}

// Stop ends broadcasting and closes every client connection.
func (rd *RiskDashboard) Stop() {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	if !rd.isRunning {
		return
	}
	close(rd.stopChannel)

	rd.clientsMu.Lock()
	for conn := range rd.clients {
		conn.Close()
	}
	rd.clients = make(map[*websocket.Conn]*client)
	rd.clientsMu.Unlock()
	rd.metrics.DashboardClientsSet(0)

	rd.isRunning = false
	log.Info().Msg("Risk dashboard stopped")
}

// ObservePrediction records one served prediction. It never blocks; when the
// broadcast queue is full the alert is still kept in the summary.
func (rd *RiskDashboard) ObservePrediction(obs engine.Observation) {
	res := obs.Result

	rd.statsMu.Lock()
	rd.total++
	if tiers, ok := rd.tiers[res.Kind]; ok {
		tiers[res.RiskLevel]++
	}
	rd.sources[res.Source]++

	if res.RiskLevel != engine.LevelAtRisk {
		rd.statsMu.Unlock()
		return
	}
	alert := Alert{
		ID:           uuid.NewString(),
		StudentID:    obs.EntityID,
		Kind:         res.Kind,
		Score:        res.Score,
		RiskLevel:    res.RiskLevel,
		ModelVersion: res.ModelVersion,
		At:           obs.At,
	}
	rd.alerts = append(rd.alerts, alert)
	if len(rd.alerts) > maxRecentAlerts {
		rd.alerts = rd.alerts[len(rd.alerts)-maxRecentAlerts:]
	}
	rd.statsMu.Unlock()

	select {
	case rd.broadcastChannel <- Message{Type: TypeAlert, Alert: &alert}:
		rd.metrics.AlertPublishedInc()
	default:
		log.Warn().Str("student_id", obs.EntityID).Msg("Dashboard broadcast queue full, alert not pushed")
	}
}

// Summary returns the current aggregate view. Recent alerts are newest first.
func (rd *RiskDashboard) Summary() Summary {
	rd.statsMu.RLock()
	s := Summary{
		Timestamp:    time.Now().UTC(),
		Total:        rd.total,
		Tiers:        make(map[ml.Kind]map[engine.Level]int64, len(rd.tiers)),
		Sources:      make(map[engine.Source]int64, len(rd.sources)),
		RecentAlerts: make([]Alert, 0, len(rd.alerts)),
	}
	for k, tiers := range rd.tiers {
		cp := make(map[engine.Level]int64, len(tiers))
		for l, n := range tiers {
			cp[l] = n
		}
		s.Tiers[k] = cp
	}
	for src, n := range rd.sources {
		s.Sources[src] = n
	}
	for i := len(rd.alerts) - 1; i >= 0; i-- {
		s.RecentAlerts = append(s.RecentAlerts, rd.alerts[i])
	}
	models := rd.models
	rd.statsMu.RUnlock()

	if models != nil {
		s.Models = models.ModelInfo()
	}
	rd.clientsMu.RLock()
	s.Clients = len(rd.clients)
	rd.clientsMu.RUnlock()
	return s
}

// snapshotCollector queues a summary every interval while clients are connected
func (rd *RiskDashboard) snapshotCollector() {
	ticker := time.NewTicker(rd.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if rd.clientCount() == 0 {
				continue
			}
			s := rd.Summary()
			select {
			case rd.broadcastChannel <- Message{Type: TypeSnapshot, Summary: &s}:
			default:
				// Channel full, skip this update
			}
		case <-rd.stopChannel:
			return
		}
	}
}

// clientBroadcaster sends queued messages to all connected WebSocket clients
func (rd *RiskDashboard) clientBroadcaster() {
	for {
		select {
		case msg := <-rd.broadcastChannel:
			rd.broadcastToClients(msg)
		case <-rd.stopChannel:
			return
		}
	}
}

func (rd *RiskDashboard) broadcastToClients(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal dashboard message")
		return
	}

	rd.clientsMu.RLock()
	targets := make([]*client, 0, len(rd.clients))
	for _, c := range rd.clients {
		targets = append(targets, c)
	}
	rd.clientsMu.RUnlock()

	for _, c := range targets {
		if err := c.write(data); err != nil {
			log.Debug().Err(err).Msg("Dropping dashboard client")
			rd.removeClient(c.conn)
		}
	}
}

func (rd *RiskDashboard) clientCount() int {
	rd.clientsMu.RLock()
	defer rd.clientsMu.RUnlock()
	return len(rd.clients)
}

func (rd *RiskDashboard) addClient(conn *websocket.Conn) *client {
	c := &client{conn: conn}
	rd.clientsMu.Lock()
	rd.clients[conn] = c
	n := len(rd.clients)
	rd.clientsMu.Unlock()
	rd.metrics.DashboardClientsSet(n)
	return c
}

func (rd *RiskDashboard) removeClient(conn *websocket.Conn) {
	rd.clientsMu.Lock()
	_, ok := rd.clients[conn]
	delete(rd.clients, conn)
	n := len(rd.clients)
	rd.clientsMu.Unlock()
	if ok {
		conn.Close()
		rd.metrics.DashboardClientsSet(n)
	}
}

func (rd *RiskDashboard) handleSummaryAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rd.Summary()); err != nil {
		log.Error().Err(err).Msg("Failed to encode dashboard summary")
	}
}

// handleWebSocket registers a client, sends it the current summary and then
// reads until the client goes away.
func (rd *RiskDashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := rd.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	c := rd.addClient(conn)
	defer rd.removeClient(conn)

	s := rd.Summary()
	if data, err := json.Marshal(Message{Type: TypeSnapshot, Summary: &s}); err == nil {
		if err := c.write(data); err != nil {
			return
		}
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

var page = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Academic Risk Dashboard</title>
    <meta charset="UTF-8">
    <style>
        body { font-family: sans-serif; margin: 20px; background-color: #f5f5f5; }
        .card { background: white; border-radius: 8px; padding: 16px; margin-bottom: 16px; }
        .AT_RISK { color: #dc3545; } .NEEDS_ATTENTION { color: #c69500; } .SAFE { color: #28a745; }
        table { border-collapse: collapse; width: 100%; }
        td, th { text-align: left; padding: 6px; border-bottom: 1px solid #eee; }
    </style>
</head>
<body>
    <h1>Academic Risk Dashboard</h1>
    <div class="card"><h3>Tiers</h3><pre id="tiers">{{.TiersJSON}}</pre></div>
    <div class="card"><h3>Recent alerts</h3>
        <table><thead><tr><th>Student</th><th>Kind</th><th>Score</th><th>At</th></tr></thead>
        <tbody id="alerts">{{range .RecentAlerts}}<tr class="AT_RISK"><td>{{.StudentID}}</td><td>{{.Kind}}</td><td>{{.Score}}</td><td>{{.At}}</td></tr>{{end}}</tbody></table>
    </div>
    <script>
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/dashboard/ws');
        ws.onmessage = (e) => {
            const msg = JSON.parse(e.data);
            if (msg.type === 'snapshot') {
                document.getElementById('tiers').textContent = JSON.stringify(msg.summary.tiers, null, 2);
            } else if (msg.type === 'alert') {
                const a = msg.alert;
                const row = document.createElement('tr');
                row.className = 'AT_RISK';
                [a.student_id, a.kind, a.score, a.at].forEach(v => {
                    const td = document.createElement('td');
                    td.textContent = v;
                    row.appendChild(td);
                });
                const body = document.getElementById('alerts');
                body.insertBefore(row, body.firstChild);
            }
        };
    </script>
</body>
</html>`))

// handleDashboard serves the dashboard HTML page
func (rd *RiskDashboard) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s := rd.Summary()
	tiers, _ := json.MarshalIndent(s.Tiers, "", "  ")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := page.Execute(w, struct {
		TiersJSON    string
		RecentAlerts []Alert
	}{string(tiers), s.RecentAlerts})
	if err != nil {
		log.Error().Err(err).Msg("Failed to render dashboard")
	}
}
