package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prizzzz/leaseIQ/model"
	"github.com/prizzzz/leaseIQ/scoring"
	"github.com/prizzzz/leaseIQ/service"
)

type scriptedLLM struct {
	completions []string
	err         error
	deltas      []string
	requests    []service.ChatRequest
}

func (l *scriptedLLM) Complete(_ context.Context, req service.ChatRequest) (string, error) {
	l.requests = append(l.requests, req)
	if l.err != nil {
		return "", l.err
	}
	if len(l.completions) == 0 {
		return "", errors.New("no completion scripted")
	}
	out := l.completions[0]
	l.completions = l.completions[1:]
	return out, nil
}

func (l *scriptedLLM) Stream(_ context.Context, req service.ChatRequest, onDelta func(string) error) error {
	l.requests = append(l.requests, req)
	if l.err != nil {
		return l.err
	}
	for _, d := range l.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return nil
}

type stubOCR struct {
	text string
	err  error
}

func (s *stubOCR) Name() string { return "stub" }

func (s *stubOCR) ExtractText(context.Context, service.Document) (string, error) {
	return s.text, s.err
}

type fixedPrice float64

func (f fixedPrice) EstimatePrice(string, string, string, int) float64 { return float64(f) }

const leaseText = "VEHICLE LEASE AGREEMENT\nMonthly payment 500 for 36 months, down payment 1000, APR 2%"

type fixture struct {
	repo   *service.MemoryStore
	llm    *scriptedLLM
	ocr    *stubOCR
	router *gin.Engine
}

// newFixture wires the handlers on an in-memory store. The caller's tenant
// comes from the X-Tenant header and defaults to tenant1.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo: service.NewMemoryStore(),
		llm:  &scriptedLLM{},
		ocr:  &stubOCR{text: leaseText},
	}
	extractor := service.NewExtractor(f.llm)
	negotiator := service.NewNegotiator(f.llm)
	pipeline := service.NewPipeline(f.repo, f.ocr, extractor, scoring.NewScorer(model.StrategyPriceAPR, fixedPrice(20000), 720))

	contracts := NewContractHandler(pipeline, f.repo, extractor, negotiator, 1)
	chat := NewChatHandler(f.repo, negotiator)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		tenant := c.GetHeader("X-Tenant")
		if tenant == "" {
			tenant = "tenant1"
		}
		c.Set("tenant", tenant)
		c.Next()
	})
	r.POST("/contracts/upload", contracts.Upload)
	r.GET("/contracts", contracts.List)
	r.GET("/contracts/:id", contracts.Get)
	r.GET("/contracts/:id/status", contracts.GetStatus)
	r.DELETE("/contracts/:id", contracts.Delete)
	r.POST("/contracts/:id/analyze", contracts.Analyze)
	r.POST("/contracts/:id/chat", contracts.Chat)
	r.POST("/chat", chat.Chat)
	r.POST("/simulator/chat", chat.Simulator)
	f.router = r
	return f
}

func (f *fixture) do(method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) doJSON(method, path string, payload any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(payload)
	return f.do(method, path, bytes.NewReader(b), map[string]string{"Content-Type": "application/json"})
}

// seed stores a locked contract for tenant.
func (f *fixture) seed(t *testing.T, id, tenant, filename string) *model.Contract {
	t.Helper()
	ctx := context.Background()
	c := &model.Contract{ID: id, Tenant: tenant, Filename: filename, Status: model.StatusPending}
	require.NoError(t, f.repo.Create(ctx, c))
	require.NoError(t, f.repo.Lock(ctx, id, model.Analysis{
		Text: leaseText,
		Data: model.ContractData{
			Make: "Hyundai", Model: "Creta", Year: "2023", VIN: "N/A",
			MonthlyPaymentINR: 500, LeaseTermMonths: 36, DownPaymentINR: 1000, APRPercent: 9.5,
			JunkFees: []string{"Nitrogen Air"},
		},
		Fairness: model.FairnessResult{Score: 58, Rating: model.RatingModerate, Explanation: "Initial audit."},
		Strategy: model.StrategyPriceAPR,
	}))
	stored, err := f.repo.Get(ctx, id)
	require.NoError(t, err)
	return stored
}

func multipartFile(t *testing.T, filename string, content []byte) (io.Reader, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func (f *fixture) upload(t *testing.T, filename string, content []byte) *httptest.ResponseRecorder {
	body, contentType := multipartFile(t, filename, content)
	return f.do("POST", "/contracts/upload", body, map[string]string{"Content-Type": contentType})
}

func TestContractHandlerUpload(t *testing.T) {
	f := newFixture(t)
	f.llm.completions = []string{`{"make":"Honda","model":"City","year":2023,"monthlyPaymentINR":500,"leaseTermMonths":36,"downPaymentINR":1000,"aprPercent":2.0}`}

	w := f.upload(t, "lease.pdf", []byte("%PDF-1.4\n%test lease\n"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Status   string `json:"status"`
		FileID   string `json:"file_id"`
		Filename string `json:"filename"`
		Data     struct {
			Make     string               `json:"make"`
			JunkFees []string             `json:"junk_fees"`
			Fairness model.FairnessResult `json:"fairness"`
			Strategy string               `json:"strategy"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "lease.pdf", resp.Filename)
	assert.Equal(t, "Honda", resp.Data.Make)
	assert.NotNil(t, resp.Data.JunkFees)
	assert.Equal(t, 100, resp.Data.Fairness.Score)
	assert.Equal(t, model.RatingFair, resp.Data.Fairness.Rating)
	assert.Equal(t, "price_apr", resp.Data.Strategy)

	stored, err := f.repo.Get(context.Background(), resp.FileID)
	require.NoError(t, err)
	assert.Equal(t, "tenant1", stored.Tenant)
	assert.Equal(t, resp.Data.Fairness, *stored.Fairness)
}

func TestContractHandlerUploadUnreadable(t *testing.T) {
	f := newFixture(t)
	f.ocr.err = service.ErrTextTooShort

	w := f.upload(t, "blank.pdf", []byte("%PDF-1.4"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ocrUnreadable, resp["error"])
	require.NotEmpty(t, resp["file_id"])

	stored, err := f.repo.Get(context.Background(), resp["file_id"])
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, stored.Status)
}

func TestContractHandlerUploadExtractionFailure(t *testing.T) {
	f := newFixture(t)
	f.llm.err = errors.New("provider down")

	w := f.upload(t, "lease.pdf", []byte("%PDF-1.4"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "provider down")
}

func TestContractHandlerUploadRejects(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		filename string
		content  []byte
		status   int
	}{
		{"wrong extension", "test.txt", []byte("test content"), http.StatusBadRequest},
		{"not a pdf", "fake.pdf", []byte("<html><body>hi</body></html>"), http.StatusBadRequest},
		{"too large", "big.pdf", append([]byte("%PDF-1.4"), make([]byte, 2<<20)...), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.upload(t, tt.filename, tt.content)
			assert.Equal(t, tt.status, w.Code)
		})
	}
	assert.Zero(t, f.repo.Count())
}

func TestContractHandlerUploadNoFile(t *testing.T) {
	f := newFixture(t)

	w := f.do("POST", "/contracts/upload", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	var response map[string]string
	json.Unmarshal(w.Body.Bytes(), &response)
	if response["error"] != "No file provided" {
		t.Errorf("Expected 'No file provided' error, got '%s'", response["error"])
	}
}

func TestContractHandlerList(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "c1", "tenant1", "a.pdf")
	f.seed(t, "c2", "tenant1", "b.pdf")
	f.seed(t, "c3", "tenant2", "c.pdf")

	w := f.do("GET", "/contracts", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Contracts []map[string]any `json:"contracts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Contracts, 2)
	for _, c := range response.Contracts {
		assert.Equal(t, float64(58), c["score"])
		assert.NotEqual(t, "c3", c["id"])
	}
}

func TestContractHandlerListEmpty(t *testing.T) {
	f := newFixture(t)

	w := f.do("GET", "/contracts", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"contracts":[]}`, w.Body.String())
}

func TestContractHandlerGet(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "get-test", "tenant1", "lease.pdf")

	tests := []struct {
		name           string
		key            string
		tenant         string
		expectedStatus int
	}{
		{"by id", "get-test", "tenant1", http.StatusOK},
		{"by filename", "lease.pdf", "tenant1", http.StatusOK},
		{"wrong tenant", "get-test", "tenant2", http.StatusNotFound},
		{"not found", "non-existent", "tenant1", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do("GET", "/contracts/"+tt.key, nil, map[string]string{"X-Tenant": tt.tenant})
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if w.Code == http.StatusOK {
				var c model.Contract
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
				assert.Equal(t, "get-test", c.ID)
				assert.Equal(t, 58, c.Fairness.Score)
				assert.NotContains(t, w.Body.String(), "VEHICLE LEASE AGREEMENT")
			}
		})
	}
}

func TestContractHandlerGetStatus(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.Create(context.Background(), &model.Contract{ID: "status-test", Tenant: "tenant1", Status: model.StatusProcessing}))

	w := f.do("GET", "/contracts/status-test/status", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	if response["status"] != model.StatusProcessing {
		t.Errorf("Expected status '%s', got '%v'", model.StatusProcessing, response["status"])
	}

	w = f.do("GET", "/contracts/status-test/status", nil, map[string]string{"X-Tenant": "tenant2"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for wrong tenant, got %d", w.Code)
	}
}

func TestContractHandlerDelete(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "delete-test", "tenant1", "lease.pdf")

	tests := []struct {
		name           string
		tenant         string
		expectedStatus int
	}{
		{"wrong tenant", "tenant2", http.StatusNotFound},
		{"valid delete", "tenant1", http.StatusOK},
		{"already deleted", "tenant1", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do("DELETE", "/contracts/delete-test", nil, map[string]string{"X-Tenant": tt.tenant})
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestContractHandlerAnalyze(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "analyze-test", "tenant1", "lease.pdf")
	f.llm.completions = []string{`{
		"risk_factors": [{"name": "Early termination", "severity": 4, "description": "Full remaining payments due"}],
		"hidden_fees": [{"fee_name": "Documentation", "amount": 500}]
	}`}

	w := f.doJSON("POST", "/contracts/analyze-test/analyze", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp AnalysisResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "analyze-test", resp.FileID)
	require.Len(t, resp.RiskFactors, 1)
	require.Len(t, resp.HiddenFees, 1)
	assert.Equal(t, 500.0, resp.HiddenFees[0].Amount)
	assert.Equal(t, []string{"Nitrogen Air"}, resp.JunkFees)
	assert.Equal(t, 19000.0, resp.PriceFactors.EstimatedTotalCost)
	assert.Equal(t, model.DefaultCurrency, resp.PriceFactors.Currency)

	// the locked score is returned as stored
	assert.Equal(t, 58, resp.Fairness.Score)
	assert.Equal(t, model.RatingModerate, resp.Fairness.Rating)

	// severity 4, two fees, 500/19000 hidden: round(0.45*10 + 0.45*10 + 0.10*86.84)
	assert.Equal(t, 18, resp.Assessment.Score)
	assert.Equal(t, model.RatingUnfair, resp.Assessment.Rating)
	assert.Equal(t, 2, resp.Assessment.FeeCount)

	stored, err := f.repo.Get(context.Background(), "analyze-test")
	require.NoError(t, err)
	assert.Equal(t, 58, stored.Fairness.Score)
}

func TestContractHandlerAnalyzeUnparseableOutput(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "analyze-test", "tenant1", "lease.pdf")
	f.llm.completions = []string{"I could not find anything."}

	w := f.doJSON("POST", "/contracts/analyze-test/analyze", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"risk_factors":[]`)
	assert.Contains(t, w.Body.String(), `"hidden_fees":[]`)
}

func TestContractHandlerAnalyzeErrors(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "locked", "tenant1", "lease.pdf")
	require.NoError(t, f.repo.Create(context.Background(), &model.Contract{ID: "pending", Tenant: "tenant1", Status: model.StatusProcessing}))

	assert.Equal(t, http.StatusNotFound, f.doJSON("POST", "/contracts/missing/analyze", nil).Code)
	assert.Equal(t, http.StatusConflict, f.doJSON("POST", "/contracts/pending/analyze", nil).Code)

	f.llm.err = errors.New("provider down")
	assert.Equal(t, http.StatusBadGateway, f.doJSON("POST", "/contracts/locked/analyze", nil).Code)
}

func TestContractHandlerChat(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "chat-test", "tenant1", "lease.pdf")
	f.llm.completions = []string{`{"assistant_message": "Ask them to drop the nitrogen fee.", "counter_email_draft": "Subject: Lease\n\nDear Sales Manager,"}`}

	w := f.doJSON("POST", "/contracts/chat-test/chat", map[string]any{
		"message": "Draft an email",
		"history": []map[string]string{{"role": "user", "content": "Is this fair?"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var reply service.ChatReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, "Ask them to drop the nitrogen fee.", reply.AssistantMessage)
	require.NotNil(t, reply.CounterEmailDraft)

	require.Len(t, f.llm.requests, 1)
	prompt := f.llm.requests[0].Messages[1].Content
	assert.Contains(t, prompt, "Fairness Score: 58/100 (Moderate)")
	assert.Contains(t, prompt, "User: Is this fair?")
	assert.Contains(t, f.llm.requests[0].Messages[0].Content, "Include only the fees or terms detected: Nitrogen Air.")
}

func TestContractHandlerChatErrors(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "chat-test", "tenant1", "lease.pdf")

	assert.Equal(t, http.StatusBadRequest, f.doJSON("POST", "/contracts/chat-test/chat", map[string]any{}).Code)
	assert.Equal(t, http.StatusNotFound, f.doJSON("POST", "/contracts/missing/chat", map[string]any{"message": "hi"}).Code)

	f.llm.err = errors.New("provider down")
	w := f.doJSON("POST", "/contracts/chat-test/chat", map[string]any{"message": "hi"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "assistant_message")
}
