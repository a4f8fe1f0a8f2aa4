package main

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/reportlens/reportlens/config"
	"github.com/reportlens/reportlens/evaluation"
	"github.com/reportlens/reportlens/rag"
	"github.com/reportlens/reportlens/rag/types"
)

func newAPI(indexer *rag.Indexer, registry *rag.Registry, orchestrator *rag.Orchestrator, evaluator *evaluation.Evaluator, evalLog *evaluation.Log) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.POST("/api/documents", uploadDocument(indexer))
	e.POST("/api/documents/:id/reindex", reindexDocument(indexer))
	e.GET("/api/documents", listDocuments(registry))
	e.DELETE("/api/documents/:id", deleteDocument(indexer))
	e.GET("/api/stats", stats(indexer))
	e.POST("/api/query", query(orchestrator, evaluator))
	e.GET("/api/evaluations", evaluations(evalLog))

	return e
}

func startAPI(cfg *config.Config, indexer *rag.Indexer, registry *rag.Registry, orchestrator *rag.Orchestrator, evaluator *evaluation.Evaluator, evalLog *evaluation.Log) {
	e := newAPI(indexer, registry, orchestrator, evaluator, evalLog)
	e.Logger.Fatal(e.Start(cfg.Listen))
}

func errorMessage(message string) map[string]string {
	return map[string]string{"error": message}
}

// statusFor maps domain errors onto HTTP statuses. Unknown errors are server
// faults.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrInvalidInput), errors.Is(err, rag.ErrUnreadableDocument):
		return http.StatusBadRequest
	case errors.Is(err, rag.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rag.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, rag.ErrInvalidCredential), errors.Is(err, rag.ErrModelUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, rag.ErrGenerationTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// uploadDocument handles multipart document uploads and indexes them.
func uploadDocument(indexer *rag.Indexer) func(c echo.Context) error {
	return func(c echo.Context) error {
		file, err := c.FormFile("file")
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Failed to read file: "+err.Error()))
		}

		documentID := c.FormValue("document_id")
		if documentID == "" {
			documentID = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
		}

		f, err := file.Open()
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Failed to open file: "+err.Error()))
		}
		defer f.Close()

		tmpDir, err := os.MkdirTemp("", "upload")
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to stage upload"))
		}
		defer os.RemoveAll(tmpDir)

		staged := filepath.Join(tmpDir, filepath.Base(file.Filename))
		out, err := os.Create(staged)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to stage upload"))
		}
		if _, err := io.Copy(out, f); err != nil {
			out.Close()
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to stage upload"))
		}
		out.Close()

		rec, err := indexer.Index(c.Request().Context(), documentID, file.Filename, staged)
		if err != nil {
			return c.JSON(statusFor(err), errorMessage(err.Error()))
		}
		return c.JSON(http.StatusCreated, rec)
	}
}

func reindexDocument(indexer *rag.Indexer) func(c echo.Context) error {
	return func(c echo.Context) error {
		rec, err := indexer.Reindex(c.Request().Context(), c.Param("id"))
		if err != nil {
			return c.JSON(statusFor(err), errorMessage(err.Error()))
		}
		return c.JSON(http.StatusOK, rec)
	}
}

func listDocuments(registry *rag.Registry) func(c echo.Context) error {
	return func(c echo.Context) error {
		records, err := registry.ListAll()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage(err.Error()))
		}
		if records == nil {
			records = []types.DocumentRecord{}
		}
		return c.JSON(http.StatusOK, records)
	}
}

func deleteDocument(indexer *rag.Indexer) func(c echo.Context) error {
	return func(c echo.Context) error {
		if err := indexer.Remove(c.Request().Context(), c.Param("id")); err != nil {
			return c.JSON(statusFor(err), errorMessage(err.Error()))
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// stats reports store statistics and runs the registry consistency check, so
// drifted documents are surfaced on every stats call. Verify already fetches
// the store stats; reuse them instead of a second round trip.
func stats(indexer *rag.Indexer) func(c echo.Context) error {
	return func(c echo.Context) error {
		st, drifted, err := indexer.Verify(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage(err.Error()))
		}
		if drifted == nil {
			drifted = []string{}
		}

		return c.JSON(http.StatusOK, map[string]any{
			"entries":         st.Entries,
			"documents":       st.Documents,
			"entries_per_doc": st.EntriesPerDoc,
			"inconsistent":    drifted,
		})
	}
}

// query answers a question scoped to a document subset and evaluates the
// answer.
func query(orchestrator *rag.Orchestrator, evaluator *evaluation.Evaluator) func(c echo.Context) error {
	return func(c echo.Context) error {
		type request struct {
			Query       string   `json:"query"`
			DocumentIDs []string `json:"document_ids"`
			Style       string   `json:"style"`
			K           int      `json:"k"`
			Reference   string   `json:"reference"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}

		answer, err := orchestrator.Answer(c.Request().Context(), r.Query, r.DocumentIDs, rag.ParseStyle(r.Style), r.K)
		if err != nil {
			return c.JSON(statusFor(err), errorMessage(err.Error()))
		}

		// Evaluation runs for every answer, fallback included; with no
		// contexts the grounding metrics come back null while the structural
		// battery still scores the answer against the query.
		contexts := make([]string, len(answer.Contexts))
		for i, res := range answer.Contexts {
			contexts[i] = res.Content
		}
		rec, err := evaluator.Evaluate(c.Request().Context(), r.Query, answer.Text, contexts, r.Reference)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage(err.Error()))
		}

		return c.JSON(http.StatusOK, map[string]any{
			"answer":     answer.Text,
			"grounded":   answer.Grounded,
			"contexts":   answer.Contexts,
			"evaluation": rec,
		})
	}
}

// evaluations reads back one day's evaluation records.
func evaluations(evalLog *evaluation.Log) func(c echo.Context) error {
	return func(c echo.Context) error {
		date := c.QueryParam("date")
		if date == "" {
			date = time.Now().UTC().Format("20060102")
		}

		day, err := time.Parse("20060102", date)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("date must be YYYYMMDD"))
		}

		records, err := evalLog.ReadDay(day)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage(err.Error()))
		}
		if records == nil {
			records = []evaluation.Record{}
		}
		return c.JSON(http.StatusOK, records)
	}
}
