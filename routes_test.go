package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/docstack/answerbox/chat"
	"github.com/docstack/answerbox/llm"
	"github.com/docstack/answerbox/rag/types"
	"github.com/docstack/answerbox/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

type stubSearcher struct {
	results []types.Result
	err     error
	calls   int
}

func (s *stubSearcher) Search(q string, similarEntries int) ([]types.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

type stubGenerator struct {
	err error
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string, settings llm.Settings) (*llm.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Result{Response: "the answer", ModelUsed: settings.Model}, nil
}

const testKey = "0123456789abcdef0123456789abcdef"

func testKeyHash() string {
	sum := sha256.Sum256([]byte(testKey))
	return hex.EncodeToString(sum[:])
}

var _ = Describe("Chat endpoint", func() {
	var (
		mockPool  pgxmock.PgxPoolIface
		searcher  *stubSearcher
		generator *stubGenerator
		router    *echo.Echo
	)

	BeforeEach(func() {
		var err error
		mockPool, err = pgxmock.NewPool()
		Expect(err).ToNot(HaveOccurred())

		searcher = &stubSearcher{}
		generator = &stubGenerator{}

		app := &application{
			config:    &Config{DefaultModel: "llama3", AdminToken: "s3cret"},
			store:     store.New(mockPool),
			chat:      chat.NewService(searcher, generator, 0.25, 3),
			rateStore: memory.NewStore(),
		}
		router = newRouter(app)
	})

	AfterEach(func() {
		mockPool.Close()
	})

	expectKeyLookup := func(keyID uuid.UUID) {
		var nilTime *time.Time
		rows := mockPool.NewRows([]string{"id", "key_prefix", "name", "is_active", "usage_count", "rate_limit", "created_at", "last_used_at"}).
			AddRow(keyID, testKey[:8], "Test Key", true, int64(0), 60, time.Now(), nilTime)
		mockPool.ExpectQuery("SELECT (.+) FROM api_keys WHERE key_hash").
			WithArgs(testKeyHash()).
			WillReturnRows(rows)
		mockPool.ExpectExec("UPDATE api_keys SET usage_count").
			WithArgs(keyID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	}

	expectSettingsLookup := func() {
		var nilStr *string
		rows := mockPool.NewRows([]string{"active_model", "temperature", "context_length", "top_p", "fallback_model", "system_prompt"}).
			AddRow("llama3", float32(0.7), 4096, float32(0.9), nilStr, nilStr)
		mockPool.ExpectQuery("SELECT (.+) FROM model_settings WHERE id = 1").
			WillReturnRows(rows)
	}

	expectHistoryInsert := func() {
		mockPool.ExpectExec("INSERT INTO chat_history").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	doChat := func(apiKey, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		if apiKey != "" {
			req.Header.Set("X-API-Key", apiKey)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("should reject requests without an API key", func() {
		rec := doChat("", `{"question":"anything"}`)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))

		var body map[string]string
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body["error"]).To(Equal("API key required"))
		Expect(searcher.calls).To(Equal(0))
	})

	It("should reject an invalid API key before any retrieval", func() {
		mockPool.ExpectQuery("SELECT (.+) FROM api_keys WHERE key_hash").
			WithArgs(testKeyHash()).
			WillReturnError(pgx.ErrNoRows)

		rec := doChat(testKey, `{"question":"anything"}`)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))

		var body map[string]string
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body["error"]).To(Equal("Invalid API key"))
		Expect(searcher.calls).To(Equal(0))
	})

	It("should accept the key as a query parameter", func() {
		expectKeyLookup(uuid.New())
		expectSettingsLookup()
		expectHistoryInsert()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat?api_key="+testKey, strings.NewReader(`{"question":"anything"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	It("should reject a missing question", func() {
		expectKeyLookup(uuid.New())

		rec := doChat(testKey, `{}`)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))

		var body map[string]string
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body["error"]).To(Equal("Missing question"))
	})

	It("should reject a blank question", func() {
		expectKeyLookup(uuid.New())
		expectSettingsLookup()

		rec := doChat(testKey, `{"question":"   "}`)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))

		var body map[string]string
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body["error"]).To(Equal("Empty question"))
	})

	It("should answer a grounded question", func() {
		searcher.results = []types.Result{
			{
				Content:    "The design issues are coupling and missing validation.",
				Similarity: 0.35,
				Metadata:   map[string]string{"source": "report.pdf", "chunk": "2"},
			},
		}
		expectKeyLookup(uuid.New())
		expectSettingsLookup()
		expectHistoryInsert()

		rec := doChat(testKey, `{"question":"What are the design issues mentioned in the PDF?"}`)
		Expect(rec.Code).To(Equal(http.StatusOK))

		var response chat.Response
		Expect(json.Unmarshal(rec.Body.Bytes(), &response)).To(Succeed())
		Expect(response.FromDocuments).To(BeTrue())
		Expect(response.SourceType).To(Equal("documents"))
		Expect(response.Sources).To(HaveLen(1))
		Expect(response.Sources[0].Metadata).To(Equal("Source: report.pdf, Chunk: 2"))
		Expect(response.ModelUsed).To(Equal("llama3"))
	})

	It("should flag ungrounded answers", func() {
		expectKeyLookup(uuid.New())
		expectSettingsLookup()
		expectHistoryInsert()

		rec := doChat(testKey, `{"question":"something not in the documents"}`)
		Expect(rec.Code).To(Equal(http.StatusOK))

		var response chat.Response
		Expect(json.Unmarshal(rec.Body.Bytes(), &response)).To(Succeed())
		Expect(response.FromDocuments).To(BeFalse())
		Expect(response.SourceType).To(Equal("ai_model"))
		Expect(response.Sources).To(BeEmpty())
		Expect(response.Note).To(Equal(chat.NoteGeneralKnowledge))
	})

	It("should surface retrieval failures as 502", func() {
		searcher.err = errors.New("index unavailable")
		expectKeyLookup(uuid.New())
		expectSettingsLookup()

		rec := doChat(testKey, `{"question":"anything"}`)
		Expect(rec.Code).To(Equal(http.StatusBadGateway))

		var body map[string]string
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body["error"]).To(Equal("Upstream error"))
	})

	It("should surface generation failures as 502", func() {
		generator.err = errors.New("backend down")
		expectKeyLookup(uuid.New())
		expectSettingsLookup()

		rec := doChat(testKey, `{"question":"anything"}`)
		Expect(rec.Code).To(Equal(http.StatusBadGateway))
	})

	It("should enforce the key's per-minute rate limit", func() {
		keyID := uuid.New()

		var nilTime *time.Time
		// The key allows one request per minute.
		expectLimitedKeyLookup := func() {
			rows := mockPool.NewRows([]string{"id", "key_prefix", "name", "is_active", "usage_count", "rate_limit", "created_at", "last_used_at"}).
				AddRow(keyID, testKey[:8], "Test Key", true, int64(0), 1, time.Now(), nilTime)
			mockPool.ExpectQuery("SELECT (.+) FROM api_keys WHERE key_hash").
				WithArgs(testKeyHash()).
				WillReturnRows(rows)
			mockPool.ExpectExec("UPDATE api_keys SET usage_count").
				WithArgs(keyID).
				WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		}

		expectLimitedKeyLookup()
		expectSettingsLookup()
		expectHistoryInsert()
		expectLimitedKeyLookup()

		rec := doChat(testKey, `{"question":"first"}`)
		Expect(rec.Code).To(Equal(http.StatusOK))

		rec = doChat(testKey, `{"question":"second"}`)
		Expect(rec.Code).To(Equal(http.StatusTooManyRequests))
	})
})

var _ = Describe("Admin endpoints", func() {
	var router *echo.Echo

	BeforeEach(func() {
		mockPool, err := pgxmock.NewPool()
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(mockPool.Close)

		app := &application{
			config:    &Config{AdminToken: "s3cret"},
			store:     store.New(mockPool),
			rateStore: memory.NewStore(),
		}
		router = newRouter(app)
	})

	It("should reject requests without the admin token", func() {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/api-keys", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("should reject a wrong admin token", func() {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/api-keys", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("should refuse admin access when no token is configured", func() {
		mockPool, err := pgxmock.NewPool()
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(mockPool.Close)

		disabled := newRouter(&application{
			config:    &Config{},
			store:     store.New(mockPool),
			rateStore: memory.NewStore(),
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/api-keys", nil)
		req.Header.Set("Authorization", "Bearer anything")
		rec := httptest.NewRecorder()
		disabled.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusForbidden))
	})
})
