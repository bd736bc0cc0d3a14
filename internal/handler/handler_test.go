package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-knowledge-go/internal/chunker"
	"mcp-knowledge-go/internal/config"
	"mcp-knowledge-go/internal/mcpserver"
	"mcp-knowledge-go/internal/pipeline"
	"mcp-knowledge-go/internal/protocols"
	"mcp-knowledge-go/internal/repository"
	"mcp-knowledge-go/internal/service"
	"mcp-knowledge-go/internal/vectorstore"
	"mcp-knowledge-go/internal/vectorstore/memory"
	"mcp-knowledge-go/pkg/database"
	"mcp-knowledge-go/pkg/embedding"
	"mcp-knowledge-go/pkg/events"
	"mcp-knowledge-go/pkg/storage"
	"mcp-knowledge-go/pkg/token"
	"mcp-knowledge-go/pkg/workerpool"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	bus    *events.Broker
	repo   repository.DocumentRepository
}

func newTestServer(t *testing.T, jwtManager *token.JWTManager, heartbeat time.Duration) *testServer {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "catalog.db")})
	require.NoError(t, err)
	repo := repository.NewDocumentRepository(db)
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	adapter := vectorstore.NewAdapter(memory.New("protocols_knowledge"), embedding.NewHashingClient(128))
	bus := events.NewBroker(8)
	pool := workerpool.New(2, 8)
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	processor := pipeline.NewProcessor(store, chunker.New(nil), adapter, repo, bus)
	ingestSvc := service.NewIngestService(store, repo, pipeline.NewPoolDispatcher(pool, processor), "protocols")
	querySvc := service.NewQueryService(adapter, repo, config.DefaultCategories)
	documentSvc := service.NewDocumentService(repo)

	d := mcpserver.NewDispatcher("protocols", "1.0.0")
	require.NoError(t, d.Register(mcpserver.KnowledgeTools("protocols", querySvc, documentSvc)...))
	require.NoError(t, protocols.Register(d, querySvc, config.DefaultCategories))

	router := NewRouter(Handlers{
		Server: NewServerHandler(ServerInfo{
			Name:       "Protocol Knowledge Server",
			Domain:     "protocols",
			Version:    "1.0.0",
			Categories: protocols.CategoryNames(config.DefaultCategories),
		}, adapter),
		Upload:   NewUploadHandler(ingestSvc),
		Document: NewDocumentHandler(documentSvc),
		Search:   NewSearchHandler(querySvc),
		MCP:      NewMCPHandler(d, bus, heartbeat),
		Events:   NewEventsHandler(bus),
	}, jwtManager)
	return &testServer{router: router, bus: bus, repo: repo}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, name, content, tags string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("tags", tags))
	require.NoError(t, mw.WriteField("description", "uploaded in test"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(req)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func waitProcessed(t *testing.T, sub *events.Subscription, id uint) events.DocumentProcessed {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-sub.C():
			if e.Document.DocumentID == id {
				return e.Document
			}
		case <-timeout:
			t.Fatalf("document %d was not processed", id)
		}
	}
}

const usbSpec = "USB4 version 2.0 raises the link rate to 80 Gbps using PAM3 signalling.\n\n" +
	"Backward compatibility with USB 3.2 and Thunderbolt 3 is retained by the USB4 router."

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(t, nil, 0)

	root := decode(t, s.do(httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, "MCP Protocol Knowledge Server Knowledge Server", root["message"])
	assert.Equal(t, "HTTP", root["protocol"])

	w := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	health := decode(t, w)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "protocols", health["domain"])
	assert.Len(t, health["protocols_supported"], len(config.DefaultCategories))
	stats := health["vector_db_stats"].(map[string]any)
	assert.Equal(t, "protocols_knowledge", stats["collection_name"])
	assert.EqualValues(t, 0, stats["document_count"])
}

func TestUploadListAndGet(t *testing.T) {
	s := newTestServer(t, nil, 0)
	sub, err := s.bus.Subscribe()
	require.NoError(t, err)

	w := s.upload(t, "usb4.md", usbSpec, "usb, thunderbolt")
	require.Equal(t, http.StatusOK, w.Code)
	var outcome service.IngestOutcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	assert.Equal(t, service.OutcomeProcessing, outcome.Status)
	assert.Equal(t, "usb4.md", outcome.FileName)
	require.NotZero(t, outcome.DocumentID)

	assert.Equal(t, "completed", waitProcessed(t, sub, outcome.DocumentID).Status)

	w = s.do(httptest.NewRequest(http.MethodGet, "/documents?status=completed", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var docs []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, []any{"usb", "thunderbolt"}, docs[0]["tags"])
	assert.EqualValues(t, 2, docs[0]["chunk_count"])

	w = s.do(httptest.NewRequest(http.MethodGet, "/documents?status=failed", nil))
	assert.JSONEq(t, "[]", w.Body.String())

	w = s.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/documents/%d", outcome.DocumentID), nil))
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode(t, w)
	assert.Equal(t, "completed", detail["status"])
	assert.NotEmpty(t, detail["processing_log"])

	dup := s.upload(t, "usb4-copy.md", usbSpec, "")
	require.Equal(t, http.StatusOK, dup.Code)
	assert.Equal(t, service.OutcomeDuplicate, decode(t, dup)["status"])
}

func TestUpload_MissingFile(t *testing.T) {
	s := newTestServer(t, nil, 0)
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("tags=usb"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusBadRequest, s.do(req).Code)
}

func TestDocumentErrors(t *testing.T) {
	s := newTestServer(t, nil, 0)

	assert.Equal(t, http.StatusNotFound, s.do(httptest.NewRequest(http.MethodGet, "/documents/42", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(httptest.NewRequest(http.MethodGet, "/documents/abc", nil)).Code)

	w := s.do(httptest.NewRequest(http.MethodDelete, "/documents/1", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Equal(t, "Delete document not yet implemented", decode(t, w)["message"])
}

func TestSearch(t *testing.T) {
	s := newTestServer(t, nil, 0)
	assert.Equal(t, http.StatusBadRequest, s.do(httptest.NewRequest(http.MethodGet, "/search", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(httptest.NewRequest(http.MethodGet, "/search?q=usb&limit=x", nil)).Code)

	w := s.do(httptest.NewRequest(http.MethodGet, "/search?q=usb", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"query":"usb","results":[]}`, w.Body.String())

	sub, err := s.bus.Subscribe()
	require.NoError(t, err)
	var outcome service.IngestOutcome
	require.NoError(t, json.Unmarshal(s.upload(t, "usb4.md", usbSpec, "usb").Body.Bytes(), &outcome))
	waitProcessed(t, sub, outcome.DocumentID)

	w = s.do(httptest.NewRequest(http.MethodGet, "/search?q=USB4+link+rate+PAM3&limit=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	results := body["results"].([]any)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].(map[string]any)["text"], "PAM3")
}

func TestMCP_RPC(t *testing.T) {
	s := newTestServer(t, nil, 0)
	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return s.do(req)
	}

	w := post(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	require.Equal(t, http.StatusOK, w.Code)
	result := decode(t, w)["result"].(map[string]any)
	assert.Equal(t, mcpserver.ProtocolVersion, result["protocolVersion"])

	w = post(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	tools := decode(t, w)["result"].(map[string]any)["tools"].([]any)
	assert.Len(t, tools, 6)

	w = post(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, w.Body.String())

	w = post(`{"jsonrpc":`)
	rpcErr := decode(t, w)["error"].(map[string]any)
	assert.EqualValues(t, mcpserver.CodeParseError, rpcErr["code"])
}

func TestSSEPreflight(t *testing.T) {
	s := newTestServer(t, nil, 0)
	w := s.do(httptest.NewRequest(http.MethodOptions, "/mcp/sse", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", decode(t, w)["Access-Control-Allow-Methods"])
}

func nextData(t *testing.T, r *bufio.Reader) map[string]any {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			var out map[string]any
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &out))
			return out
		}
	}
}

func TestSSE_InitEventsAndHeartbeat(t *testing.T) {
	s := newTestServer(t, nil, 200*time.Millisecond)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/mcp/sse")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	r := bufio.NewReader(resp.Body)

	init := nextData(t, r)
	assert.Equal(t, "init", init["id"])
	assert.Equal(t, mcpserver.ProtocolVersion, init["result"].(map[string]any)["protocolVersion"])

	require.Eventually(t, func() bool { return s.bus.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.bus.Publish(context.Background(), events.NewDocumentProcessed(events.DocumentProcessed{
		DocumentID: 7, FileName: "pcie.pdf", Status: "completed", ChunkCount: 3,
	})))
	e := nextData(t, r)
	for e["event"] == "heartbeat" {
		e = nextData(t, r)
	}
	assert.Equal(t, events.TypeDocumentProcessed, e["type"])
	assert.EqualValues(t, 7, e["document"].(map[string]any)["document_id"])

	// 空闲超过心跳间隔后收到心跳
	hb := nextData(t, r)
	assert.Equal(t, "heartbeat", hb["event"])
	assert.NotEmpty(t, hb["timestamp"])
}

func TestEventsWebSocket(t *testing.T) {
	s := newTestServer(t, nil, 0)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/events/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.bus.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.bus.Publish(context.Background(), events.NewDocumentProcessed(events.DocumentProcessed{
		DocumentID: 3, FileName: "ddr5.pdf", Status: "failed", Error: "no content",
	})))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var e events.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, uint(3), e.Document.DocumentID)
	assert.Equal(t, "no content", e.Document.Error)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return s.bus.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestAuthRequired(t *testing.T) {
	m := token.NewJWTManager("secret", "mcp-knowledge-go", 1)
	s := newTestServer(t, m, 0)

	assert.Equal(t, http.StatusOK, s.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(httptest.NewRequest(http.MethodGet, "/documents", nil)).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}"))).Code)

	tok, err := m.GenerateToken("tester", "protocols")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusOK, s.do(req).Code)
}
