package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docstack/answerbox/chat"
	"github.com/docstack/answerbox/llm"
	"github.com/docstack/answerbox/rag"
	"github.com/docstack/answerbox/store"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mudler/xlog"
	"github.com/ulule/limiter/v3"
)

const apiKeyContextKey = "api_key_record"

// application bundles everything the handlers need.
type application struct {
	config    *Config
	store     *store.Store
	kb        *rag.KnowledgeBase
	sources   *rag.SourceManager
	chat      *chat.Service
	llm       *llm.Client
	rateStore limiter.Store
}

func errorResponse(c echo.Context, status int, kind, message string) error {
	return c.JSON(status, map[string]string{"error": kind, "message": message})
}

func startAPI(app *application) error {
	return newRouter(app).Start(app.config.ListenAddress)
}

func newRouter(app *application) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	api := e.Group("/api/v1")
	api.GET("/health", health(app))

	authed := api.Group("", requireAPIKey(app))
	authed.POST("/chat", answerQuestion(app))
	authed.GET("/documents", listDocuments(app))
	authed.GET("/stats", stats(app))

	admin := api.Group("/admin", requireAdmin(app))
	admin.POST("/documents", uploadDocument(app))
	admin.DELETE("/documents/:id", deleteDocument(app))
	admin.POST("/reindex", reindex(app))
	admin.GET("/api-keys", listAPIKeys(app))
	admin.POST("/api-keys", createAPIKey(app))
	admin.PUT("/api-keys/:id", toggleAPIKey(app))
	admin.DELETE("/api-keys/:id", deleteAPIKey(app))
	admin.GET("/settings", getSettings(app))
	admin.PUT("/settings", updateSettings(app))
	admin.GET("/sources", listSources(app))
	admin.POST("/sources", addSource(app))
	admin.DELETE("/sources", removeSource(app))
	admin.GET("/history", chatHistory(app))

	return e
}

// requireAPIKey authenticates a request against the stored API keys and
// enforces the key's per-minute rate limit. Authentication happens
// before any retrieval work.
func requireAPIKey(app *application) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get("X-API-Key")
			if key == "" {
				key = c.QueryParam("api_key")
			}
			if key == "" {
				return errorResponse(c, http.StatusUnauthorized, "API key required",
					"Please provide your API key in the X-API-Key header or as api_key parameter")
			}

			record, err := app.store.VerifyAPIKey(c.Request().Context(), key)
			if err != nil {
				if errors.Is(err, store.ErrInvalidAPIKey) {
					return errorResponse(c, http.StatusUnauthorized, "Invalid API key",
						"The provided API key is invalid or has been revoked")
				}
				xlog.Error("API key verification failed", "error", err)
				return errorResponse(c, http.StatusInternalServerError, "Authentication failure",
					"Could not verify the API key")
			}

			rate := limiter.Rate{Period: time.Minute, Limit: int64(record.RateLimit)}
			limiterCtx, err := limiter.New(app.rateStore, rate).Get(c.Request().Context(), "api-key:"+record.ID.String())
			if err == nil && limiterCtx.Reached {
				return errorResponse(c, http.StatusTooManyRequests, "Rate limit exceeded",
					fmt.Sprintf("This key is limited to %d requests per minute", record.RateLimit))
			}

			c.Set(apiKeyContextKey, record)
			return next(c)
		}
	}
}

// requireAdmin guards the management endpoints behind a bearer token.
func requireAdmin(app *application) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if app.config.AdminToken == "" {
				return errorResponse(c, http.StatusForbidden, "Admin interface disabled",
					"Set ADMIN_TOKEN to enable the admin endpoints")
			}
			token := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
			if token != app.config.AdminToken {
				return errorResponse(c, http.StatusUnauthorized, "Invalid admin token",
					"The provided admin token is invalid")
			}
			return next(c)
		}
	}
}

func answerQuestion(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		type request struct {
			Question string `json:"question"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil || r.Question == "" {
			return errorResponse(c, http.StatusBadRequest, "Missing question",
				`Please provide a "question" field in the request body`)
		}

		ctx := c.Request().Context()
		settings := app.generationSettings(ctx)

		response, err := app.chat.Answer(ctx, r.Question, settings)
		if err != nil {
			switch {
			case errors.Is(err, chat.ErrEmptyQuestion):
				return errorResponse(c, http.StatusBadRequest, "Empty question",
					"Question cannot be empty")
			case errors.Is(err, chat.ErrUpstream):
				xlog.Error("Upstream failure answering question", "error", err)
				return errorResponse(c, http.StatusBadGateway, "Upstream error",
					"The retrieval or generation backend failed")
			default:
				xlog.Error("Failed to answer question", "error", err)
				return errorResponse(c, http.StatusInternalServerError, "Processing error",
					"Failed to process the question")
			}
		}

		app.recordExchange(ctx, c, r.Question, response)

		return c.JSON(http.StatusOK, response)
	}
}

// generationSettings merges the stored model settings with the static
// configuration. A store failure falls back to the configured defaults
// rather than failing the request.
func (app *application) generationSettings(ctx context.Context) llm.Settings {
	settings := llm.Settings{
		Model:         app.config.DefaultModel,
		FallbackModel: app.config.FallbackModel,
	}

	stored, err := app.store.GetModelSettings(ctx)
	if err != nil {
		xlog.Warn("Could not read model settings, using defaults", "error", err)
		return settings
	}

	settings.Model = stored.ActiveModel
	settings.Temperature = stored.Temperature
	settings.TopP = stored.TopP
	if stored.FallbackModel != nil && *stored.FallbackModel != "" {
		settings.FallbackModel = *stored.FallbackModel
	}
	if stored.SystemPrompt != nil {
		settings.SystemPrompt = *stored.SystemPrompt
	}
	return settings
}

// recordExchange writes the exchange to the chat history. Failures are
// logged, never surfaced to the caller.
func (app *application) recordExchange(ctx context.Context, c echo.Context, question string, response *chat.Response) {
	var keyID *uuid.UUID
	if record, ok := c.Get(apiKeyContextKey).(*store.APIKey); ok {
		keyID = &record.ID
	}

	var sourceDocs *string
	if len(response.Sources) > 0 {
		labels := make([]string, 0, len(response.Sources))
		for _, source := range response.Sources {
			labels = append(labels, fmt.Sprintf("%s (Score: %.2f)", source.Metadata, source.Score))
		}
		joined := strings.Join(labels, ", ")
		sourceDocs = &joined
	}

	if err := app.store.AddChatEntry(ctx, keyID, question, response.Answer, response.SourceType, sourceDocs); err != nil {
		xlog.Error("Failed to record chat history", "error", err)
	}
}

func health(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		backendUp := app.llm.CheckConnection(ctx) == nil
		return c.JSON(http.StatusOK, map[string]any{
			"status":  "healthy",
			"backend": backendUp,
		})
	}
}

func listDocuments(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		docs, err := app.store.ListDocuments(c.Request().Context())
		if err != nil {
			xlog.Error("Failed to list documents", "error", err)
			return errorResponse(c, http.StatusInternalServerError, "Processing error",
				"Failed to list documents")
		}

		out := make([]map[string]any, 0, len(docs))
		for _, doc := range docs {
			out = append(out, map[string]any{
				"id":          doc.ID,
				"filename":    doc.OriginalFilename,
				"file_type":   doc.FileType,
				"chunk_count": doc.ChunkCount,
				"is_indexed":  doc.IsIndexed,
				"created_at":  doc.CreatedAt,
			})
		}
		return c.JSON(http.StatusOK, map[string]any{"documents": out})
	}
}

func stats(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		kbStats := app.kb.GetStats()
		return c.JSON(http.StatusOK, map[string]any{
			"total_documents": kbStats.TotalDocuments,
			"total_chunks":    kbStats.TotalChunks,
			"sources":         len(app.kb.GetExternalSources()),
		})
	}
}

func uploadDocument(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		file, err := c.FormFile("file")
		if err != nil {
			return errorResponse(c, http.StatusBadRequest, "Invalid request",
				"Failed to read the uploaded file")
		}

		src, err := file.Open()
		if err != nil {
			return errorResponse(c, http.StatusBadRequest, "Invalid request",
				"Failed to open the uploaded file")
		}
		defer src.Close()

		tmpPath := filepath.Join(os.TempDir(), file.Filename)
		dst, err := os.Create(tmpPath)
		if err != nil {
			return errorResponse(c, http.StatusInternalServerError, "Processing error",
				"Failed to stage the uploaded file")
		}
		defer os.Remove(tmpPath)

		if _, err := io.Copy(dst, src); err != nil {
			dst.Close()
			return errorResponse(c, http.StatusInternalServerError, "Processing error",
				"Failed to stage the uploaded file")
		}
		dst.Close()

		before := app.kb.GetStats().TotalChunks
		if err := app.kb.StoreOrReplace(tmpPath, nil); err != nil {
			xlog.Error("Failed to index document", "file", file.Filename, "error", err)
			return errorResponse(c, http.StatusInternalServerError, "Processing error",
				"Failed to index the document: "+err.Error())
		}
		chunks := app.kb.GetStats().TotalChunks - before

		ctx := c.Request().Context()
		fileType := strings.TrimPrefix(filepath.Ext(file.Filename), ".")
		docID, err := app.store.AddDocument(ctx, file.Filename, file.Filename, fileType, file.Size)
		if err != nil {
			xlog.Error("Failed to register document", "file", file.Filename, "error", err)
			return errorResponse(c, http.StatusInternalServerError, "Processing error",
				"Document indexed but could not be registered")
		}
		if err := app.store.MarkDocumentIndexed(ctx, docID, chunks); err != nil {
			xlog.Error("Failed to mark document indexed", "id", docID, "error", err)
		}

		return c.JSON(http.StatusCreated, map[string]any{
			"id":          docID,
			"filename":    file.Filename,
			"chunk_count": chunks,
		})
	}
}

func deleteDocument(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			return errorResponse(c, http.StatusBadRequest, "Invalid request",
				"Document ID must be a UUID")
		}

		ctx := c.Request().Context()
		doc, err := app.store.GetDocument(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errorResponse(c, http.StatusNotFound, "Not found",
					"No document with that ID")
			}
			return errorResponse(c, http.StatusInternalServerError, "Processing error",
				"Failed to look up the document")
		}

		if app.kb.EntryExists(doc.Filename) {
			if err := app.kb.RemoveEntry(doc.Filename); err != nil {
				xlog.Error("Failed to remove document from index", "file", doc.Filename, "error", err)
				return errorResponse(c, http.StatusInternalServerError, "Processing error",
					"Failed to remove the document from the index")
			}
		}

		if err := app.store.DeleteDocument(ctx, id); err != nil {
			return errorResponse(c, http.StatusInternalServerError, "Processing error",
				"Failed to delete the document record")
		}

		return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func reindex(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		if err := app.kb.Reindex(); err != nil {
			xlog.Error("Reindex failed", "error", err)
			return errorResponse(c, http.StatusInternalServerError, "Processing error",
				"Failed to rebuild the index")
		}
		return c.JSON(http.StatusOK, app.kb.GetStats())
	}
}

func listAPIKeys(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		keys, err := app.store.ListAPIKeys(c.Request().Context())
		if err != nil {
			return errorResponse(c, http.StatusInternalServerError, "Processing error",
				"Failed to list API keys")
		}

		out := make([]map[string]any, 0, len(keys))
		for _, key := range keys {
			out = append(out, map[string]any{
				"id":           key.ID,
				"key_prefix":   key.KeyPrefix,
				"name":         key.Name,
				"is_active":    key.IsActive,
				"usage_count":  key.UsageCount,
				"rate_limit":   key.RateLimit,
				"created_at":   key.CreatedAt,
				"last_used_at": key.LastUsedAt,
			})
		}
		return c.JSON(http.StatusOK, map[string]any{"api_keys": out})
	}
}

func createAPIKey(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		type request struct {
			Name      string `json:"name"`
			RateLimit int    `json:"rate_limit"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil || r.Name == "" {
			return errorResponse(c, http.StatusBadRequest, "Invalid request",
				`Please provide a "name" for the key`)
		}
		if r.RateLimit <= 0 {
			r.RateLimit = 60
		}

		created, err := app.store.CreateAPIKey(c.Request().Context(), r.Name, r.RateLimit)
		if err != nil {
			return errorResponse(c, http.StatusInternalServerError, "Processing error",
				"Failed to create the API key")
		}

		// The plaintext key is shown exactly once.
		return c.JSON(http.StatusCreated, map[string]any{
			"id":         created.ID,
			"key":        created.Key,
			"key_prefix": created.KeyPrefix,
			"name":       created.Name,
			"rate_limit": created.RateLimit,
		})
	}
}

func toggleAPIKey(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			return errorResponse(c, http.StatusBadRequest, "Invalid request",
				"Key ID must be a UUID")
		}

		type request struct {
			IsActive bool `json:"is_active"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil {
			return errorResponse(c, http.StatusBadRequest, "Invalid request",
				"Invalid request body")
		}

		if err := app.store.SetAPIKeyActive(c.Request().Context(), id, r.IsActive); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errorResponse(c, http.StatusNotFound, "Not found", "No key with that ID")
			}
			return errorResponse(c, http.StatusInternalServerError, "Processing error",
				"Failed to update the API key")
		}

		return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
	}
}

func deleteAPIKey(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			return errorResponse(c, http.StatusBadRequest, "Invalid request",
				"Key ID must be a UUID")
		}

		if err := app.store.DeleteAPIKey(c.Request().Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errorResponse(c, http.StatusNotFound, "Not found", "No key with that ID")
			}
			return errorResponse(c, http.StatusInternalServerError, "Processing error",
				"Failed to delete the API key")
		}

		return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func getSettings(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		settings, err := app.store.GetModelSettings(c.Request().Context())
		if err != nil {
			return errorResponse(c, http.StatusInternalServerError, "Processing error",
				"Failed to read model settings")
		}
		return c.JSON(http.StatusOK, settings)
	}
}

func updateSettings(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		settings := new(store.ModelSettings)
		if err := c.Bind(settings); err != nil || settings.ActiveModel == "" {
			return errorResponse(c, http.StatusBadRequest, "Invalid request",
				`Please provide at least an "active_model"`)
		}

		if err := app.store.UpdateModelSettings(c.Request().Context(), settings); err != nil {
			return errorResponse(c, http.StatusInternalServerError, "Processing error",
				"Failed to update model settings")
		}

		return c.JSON(http.StatusOK, settings)
	}
}

func listSources(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"sources": app.kb.GetExternalSources()})
	}
}

func addSource(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		type request struct {
			URL            string `json:"url"`
			UpdateInterval string `json:"update_interval"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil || r.URL == "" {
			return errorResponse(c, http.StatusBadRequest, "Invalid request",
				`Please provide a source "url"`)
		}

		interval := time.Hour
		if r.UpdateInterval != "" {
			parsed, err := time.ParseDuration(r.UpdateInterval)
			if err != nil {
				return errorResponse(c, http.StatusBadRequest, "Invalid request",
					`"update_interval" must be a duration like "30m" or "2h"`)
			}
			interval = parsed
		}

		if err := app.sources.AddSource(r.URL, interval); err != nil {
			return errorResponse(c, http.StatusInternalServerError, "Processing error",
				"Failed to register the source: "+err.Error())
		}

		return c.JSON(http.StatusCreated, map[string]string{"status": "added", "url": r.URL})
	}
}

func removeSource(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		type request struct {
			URL string `json:"url"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil || r.URL == "" {
			return errorResponse(c, http.StatusBadRequest, "Invalid request",
				`Please provide a source "url"`)
		}

		if err := app.sources.RemoveSource(r.URL); err != nil {
			return errorResponse(c, http.StatusInternalServerError, "Processing error",
				"Failed to remove the source: "+err.Error())
		}

		return c.JSON(http.StatusOK, map[string]string{"status": "removed"})
	}
}

func chatHistory(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		entries, err := app.store.ListChatHistory(c.Request().Context(), 50)
		if err != nil {
			return errorResponse(c, http.StatusInternalServerError, "Processing error",
				"Failed to read chat history")
		}
		return c.JSON(http.StatusOK, map[string]any{"history": entries})
	}
}
