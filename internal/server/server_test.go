package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"herdline/internal/config"
	"herdline/internal/db"
	"herdline/internal/domain"
	"herdline/internal/engine"
	"herdline/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("default"))
	ctx := context.Background()
	for _, a := range []struct{ id, role string }{
		{"farmer-1", "farmer"},
		{"plant-1", "processing_unit"},
	} {
		if _, err := e.RegisterActor(ctx, a.id, a.role, ""); err != nil {
			t.Fatalf("register %s: %v", a.id, err)
		}
	}
	if _, err := e.CreateProcessingUnit(ctx, "plant-1", "Plant One"); err != nil {
		t.Fatalf("create unit: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{
		JWTSecret:              "test-secret",
		AllowLegacyActorHeader: true,
	}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asFarmer(h map[string]string) map[string]string {
	if h == nil {
		h = map[string]string{}
	}
	h["X-Actor-Id"] = "farmer-1"
	return h
}

func asPlant(h map[string]string) map[string]string {
	if h == nil {
		h = map[string]string{}
	}
	h["X-Actor-Id"] = "plant-1"
	return h
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/animals", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %s", code)
	}
}

func TestHealthWithoutAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestTransferReceiveFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/animals", map[string]any{
		"tag": "A-100", "species": "cattle",
	}, asFarmer(nil))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register animal: %d %s", res.StatusCode, string(data))
	}
	var animal domain.Animal
	if err := json.Unmarshal(data, &animal); err != nil {
		t.Fatalf("unmarshal animal: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/animals/"+itoa(animal.ID)+"/slaughter", map[string]any{
		"carcass_type": "whole",
	}, asFarmer(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("slaughter: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/transfer", map[string]any{
		"processing_unit_id": 1, "animal_ids": []int64{animal.ID},
	}, asFarmer(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("transfer: %d %s", res.StatusCode, string(data))
	}
	var transferred engine.TransferResult
	if err := json.Unmarshal(data, &transferred); err != nil {
		t.Fatalf("unmarshal transfer result: %v", err)
	}
	if transferred.AnimalsTransferred != 1 || transferred.PartsTransferred != 0 {
		t.Fatalf("unexpected transfer counts: %+v", transferred)
	}

	// double transfer keeps its specific code at 400
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/transfer", map[string]any{
		"processing_unit_id": 1, "animal_ids": []int64{animal.ID},
	}, asFarmer(nil))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != engine.CodeAlreadyTransferredSameTarget {
		t.Fatalf("expected same-target code, got %s", code)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/receive/pending", nil, asPlant(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pending: %d %s", res.StatusCode, string(data))
	}
	var pending struct {
		Animals []domain.Animal `json:"animals"`
	}
	if err := json.Unmarshal(data, &pending); err != nil {
		t.Fatalf("unmarshal pending: %v", err)
	}
	if len(pending.Animals) != 1 {
		t.Fatalf("expected one pending animal, got %d", len(pending.Animals))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/receive", map[string]any{
		"animal_ids": []int64{animal.ID},
	}, asPlant(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("receive: %d %s", res.StatusCode, string(data))
	}
	var received engine.ReceiveResult
	if err := json.Unmarshal(data, &received); err != nil {
		t.Fatalf("unmarshal receive result: %v", err)
	}
	if received.AnimalsReceived != 1 || received.PartsReceived != 0 {
		t.Fatalf("unexpected receive counts: %+v", received)
	}
}

func TestPendingReceiveNeedsUnit(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	// the farmer belongs to no unit, so the pending pool is off limits
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/receive/pending", nil, asFarmer(nil))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "unaffiliated" {
		t.Fatalf("expected unaffiliated, got %s", code)
	}
}

func TestRejectionAppealFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	ctx := context.Background()

	a, err := srv.Engine.RegisterAnimal(ctx, "farmer-1", "A-200", "pig")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := srv.Engine.Slaughter(ctx, engine.SlaughterOptions{ActorID: "farmer-1", AnimalID: a.ID, CarcassType: "whole"}); err != nil {
		t.Fatal(err)
	}
	if _, err := srv.Engine.Transfer(ctx, engine.TransferOptions{ActorID: "farmer-1", ProcessingUnitID: 1, AnimalIDs: []int64{a.ID}}); err != nil {
		t.Fatal(err)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/rejections", map[string]any{
		"entity_kind": "animal", "entity_id": a.ID,
		"category": "quality", "reason": "bruising",
	}, asPlant(nil))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("reject: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/appeals", map[string]any{
		"entity_kind": "animal", "entity_id": a.ID, "notes": "carcass was sound",
	}, asFarmer(nil))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("open appeal: %d %s", res.StatusCode, string(data))
	}
	var appeal domain.Appeal
	if err := json.Unmarshal(data, &appeal); err != nil {
		t.Fatalf("unmarshal appeal: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/appeals/"+itoa(appeal.ID)+"/resolve", map[string]any{
		"approve": true,
	}, asPlant(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resolve: %d %s", res.StatusCode, string(data))
	}

	// second resolution conflicts
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/appeals/"+itoa(appeal.ID)+"/resolve", map[string]any{
		"approve": false,
	}, asPlant(nil))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != engine.CodeAppealNotPending {
		t.Fatalf("expected appeal_not_pending, got %s", code)
	}
}

func TestForbiddenMapsTo403(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	// the farmer has no unit, so receiving is unaffiliated
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/receive", map[string]any{
		"animal_ids": []int64{1},
	}, asFarmer(nil))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "unaffiliated" {
		t.Fatalf("expected unaffiliated, got %s", code)
	}
}

func TestDevLoginIssuesUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "farmer-1",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("expected token: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var me domain.Actor
	if err := json.Unmarshal(data, &me); err != nil || me.ID != "farmer-1" {
		t.Fatalf("unexpected identity: %v %s", err, string(data))
	}

	// garbage tokens are rejected
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/apikeys", map[string]any{
		"name": "ci",
	}, asFarmer(nil))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key: %d %s", res.StatusCode, string(data))
	}
	var key struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := json.Unmarshal(data, &key); err != nil || key.Key == "" {
		t.Fatalf("expected raw key: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"X-Api-Key": key.Key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key: %d %s", res.StatusCode, string(data))
	}
	var me domain.Actor
	if err := json.Unmarshal(data, &me); err != nil || me.ID != "farmer-1" {
		t.Fatalf("unexpected identity: %v %s", err, string(data))
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
