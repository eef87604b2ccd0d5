package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"competition-session-service/internal/app"
	"competition-session-service/internal/infra/memory"
	"competition-session-service/internal/mathsplit"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const samplePayload = `{
	"kind": "competition",
	"competitionId": "c-1",
	"name": "Regional Round",
	"totalTimeMinutes": 10,
	"selectedCourses": ["MTH"],
	"questions": [
		{"id": "m1", "courseCode": "MTH", "text": "Evaluate $2^3$", "options": ["6", "8"]},
		{"id": "m2", "courseCode": "MTH", "text": "2+2", "options": ["3", "4"]}
	]
}`

func newTestServer(t *testing.T) (*httptest.Server, *memory.Scorer) {
	t.Helper()
	scorer := memory.NewScorer()
	service := app.NewCompetitionService(memory.NewEngineRegistry(), app.Deps{
		Progress:   memory.NewProgressStore(),
		Payloads:   memory.NewPayloadStore(nil, time.Minute),
		Submitter:  scorer,
		Reporter:   scorer,
		Violations: scorer,
		Renderer:   mathsplit.HTMLRenderer{},
		Logger:     zerolog.Nop(),
	})
	t.Cleanup(service.Shutdown)

	mux := http.NewServeMux()
	NewAPIHandler(service, zerolog.Nop()).Register(mux)
	mux.HandleFunc("/ws", NewWSHandler(service, zerolog.Nop()).ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, scorer
}

func stage(t *testing.T, server *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(server.URL+"/competitions/c-1/payload", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	resp.Body.Close()
	return resp
}

func dial(t *testing.T, server *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?competitionId=" + id
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketCompetitionFlow(t *testing.T) {
	server, scorer := newTestServer(t)
	if resp := stage(t, server, samplePayload); resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	conn := dial(t, server, "c-1")

	_, view := readUntil(t, conn, "view")
	if view["competitionId"] != "c-1" || view["state"] != "active" {
		t.Fatalf("unexpected initial view %+v", view)
	}
	if _, g := readUntil(t, conn, "guard"); g["active"] != true {
		t.Fatalf("expected guard enabled, got %+v", g)
	}

	send(t, conn, map[string]any{"type": "select_answer", "payload": map[string]any{"questionId": "m1", "option": 2}})
	_, ev := readUntil(t, conn, "view")
	answers, _ := ev["view"].(map[string]any)["answers"].(map[string]any)
	if answers["m1"] != float64(2) {
		t.Fatalf("expected answer recorded, got %+v", answers)
	}

	send(t, conn, map[string]any{"type": "input", "payload": map[string]any{"kind": "copy", "target": "question"}})
	if _, d := readUntil(t, conn, "input_decision"); d["allowed"] == true {
		t.Fatalf("expected copy suppressed, got %+v", d)
	}

	send(t, conn, map[string]any{"type": "before_unload"})
	if _, d := readUntil(t, conn, "unload_decision"); d["warn"] != true {
		t.Fatalf("expected unload warning, got %+v", d)
	}

	send(t, conn, map[string]any{"type": "submit"})
	_, submitted := readUntil(t, conn, "submitted")
	if submitted["reason"] != "manual" {
		t.Fatalf("expected manual reason, got %+v", submitted)
	}

	subs := scorer.Submissions()
	if len(subs) != 1 || subs[0].Payload.Answers[0].SelectedOption != 2 {
		t.Fatalf("unexpected submissions %+v", subs)
	}
	if len(scorer.Violations()) != 1 {
		t.Fatalf("expected one violation, got %d", len(scorer.Violations()))
	}
}

func TestWebSocketInvalidSession(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server, "unknown")

	typ, payload := readNext(t, conn)
	if typ != "invalid_session" {
		t.Fatalf("expected invalid_session, got %s", typ)
	}
	if payload["code"] != "invalid_session" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestWebSocketRejectsAnswerOutOfRange(t *testing.T) {
	server, _ := newTestServer(t)
	stage(t, server, samplePayload)
	conn := dial(t, server, "c-1")
	readUntil(t, conn, "view")

	send(t, conn, map[string]any{"type": "select_answer", "payload": map[string]any{"questionId": "m1", "option": 9}})
	if _, e := readUntil(t, conn, "error"); e["code"] != "invalid_option" {
		t.Fatalf("expected invalid_option, got %+v", e)
	}
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %v: %v", msg["type"], err)
	}
}

func readNext(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg.Type, msg.Payload
}

// readUntil skips ticks and other traffic until a message of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) (string, map[string]any) {
	t.Helper()
	for i := 0; i < 50; i++ {
		typ, payload := readNext(t, conn)
		if typ == want {
			return typ, payload
		}
	}
	t.Fatalf("no %s message", want)
	return "", nil
}
