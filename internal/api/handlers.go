package api

import (
	"context"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-sync/internal/board"
	"board-sync/internal/domain"
)

const intentMaxSize = 64 * 1024 // 64 KiB

// Board is the state machine behind the bridge.
type Board interface {
	View() board.View
	Stats() domain.ProjectStats
	Export() (domain.ExportDocument, string, error)
	Move(ctx context.Context, taskID string, to domain.Status, index int) error
	Create(ctx context.Context, in domain.TaskInput) (domain.Task, error)
	Update(ctx context.Context, taskID string, in domain.TaskInput) (domain.Task, error)
	Delete(ctx context.Context, taskID string) error
	Subscribe() *board.Subscription
	Unsubscribe(s *board.Subscription)
}

// Register wires up the board routes on the provided Echo instance.
func Register(e *echo.Echo, b Board, logger *log.Logger) {
	e.GET("/api/board", getBoard(b))
	e.GET("/api/board/stream", streamBoard(b))
	e.GET("/api/board/stats", getStats(b))
	e.GET("/api/board/export", getExport(b))
	e.POST("/api/board/tasks", postTask(b, logger))
	e.PUT("/api/board/tasks/:id", putTask(b, logger))
	e.DELETE("/api/board/tasks/:id", deleteTask(b, logger))
	e.POST("/api/board/moves", postMove(b, logger))
	e.GET("/healthz", healthz(b))
}

func healthz(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		if b.View().Phase == board.PhaseFailed {
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		v := b.View()
		if v.Phase == board.PhaseFailed {
			return c.JSON(http.StatusServiceUnavailable, v)
		}
		return c.JSON(http.StatusOK, v)
	}
}

type statsResponse struct {
	domain.ProjectStats
	Percent map[domain.Status]int `json:"percent"`
}

func getStats(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		stats := b.Stats()
		resp := statsResponse{ProjectStats: stats, Percent: make(map[domain.Status]int, len(domain.Statuses))}
		for _, s := range domain.Statuses {
			resp.Percent[s] = stats.Percent(s)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func getExport(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		doc, name, err := b.Export()
		if err != nil {
			return writeError(c, err)
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
		return c.JSON(http.StatusOK, doc)
	}
}

func streamBoard(b Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		ctx := c.Request().Context()
		sub := b.Subscribe()
		defer b.Unsubscribe(sub)
		for {
			data, err := sonic.Marshal(b.View())
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return err
			}
			if _, err := c.Response().Write(data); err != nil {
				return err
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return err
			}
			flusher.Flush()
			select {
			case <-ctx.Done():
				return nil
			case _, ok := <-sub.C:
				if !ok {
					return nil
				}
			}
		}
	}
}

func postTask(b Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics := newIntentMetrics(logger, "POST /api/board/tasks")
		var opErr error
		defer func() { metrics.Log(c.Response().Status, opErr) }()

		var in domain.TaskInput
		start := time.Now()
		if opErr = decodeBody(c, &in); opErr != nil {
			metrics.SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorBody{Message: "invalid body"})
		}
		metrics.ObserveDecode(time.Since(start))

		start = time.Now()
		task, opErr := b.Create(c.Request().Context(), in)
		metrics.ObserveApply(time.Since(start))
		if opErr != nil {
			metrics.SetErrorStage("create")
			return writeError(c, opErr)
		}
		metrics.SetTask(task.ID)
		return c.JSON(http.StatusCreated, task)
	}
}

func putTask(b Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics := newIntentMetrics(logger, "PUT /api/board/tasks/:id")
		var opErr error
		defer func() { metrics.Log(c.Response().Status, opErr) }()

		id := c.Param("id")
		metrics.SetTask(id)
		var in domain.TaskInput
		start := time.Now()
		if opErr = decodeBody(c, &in); opErr != nil {
			metrics.SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorBody{Message: "invalid body"})
		}
		metrics.ObserveDecode(time.Since(start))

		start = time.Now()
		task, opErr := b.Update(c.Request().Context(), id, in)
		metrics.ObserveApply(time.Since(start))
		if opErr != nil {
			metrics.SetErrorStage("update")
			return writeError(c, opErr)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(b Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics := newIntentMetrics(logger, "DELETE /api/board/tasks/:id")
		var opErr error
		defer func() { metrics.Log(c.Response().Status, opErr) }()

		id := c.Param("id")
		metrics.SetTask(id)
		start := time.Now()
		opErr = b.Delete(c.Request().Context(), id)
		metrics.ObserveApply(time.Since(start))
		if opErr != nil {
			metrics.SetErrorStage("delete")
			return writeError(c, opErr)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type moveRequest struct {
	TaskID   string        `json:"taskId"`
	ToStatus domain.Status `json:"toStatus"`
	ToIndex  *int          `json:"toIndex,omitempty"`
}

// postMove handles drops. Without toIndex the task goes to the end of the
// target column.
func postMove(b Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics := newIntentMetrics(logger, "POST /api/board/moves")
		var opErr error
		defer func() { metrics.Log(c.Response().Status, opErr) }()

		var req moveRequest
		start := time.Now()
		if opErr = decodeBody(c, &req); opErr != nil {
			metrics.SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorBody{Message: "invalid body"})
		}
		metrics.ObserveDecode(time.Since(start))
		metrics.SetTask(req.TaskID)
		if req.TaskID == "" {
			opErr = &domain.ValidationError{Field: "taskId", Message: "Task id is required"}
			metrics.SetErrorStage("validate")
			return writeError(c, opErr)
		}
		index := math.MaxInt
		if req.ToIndex != nil {
			index = *req.ToIndex
		}

		start = time.Now()
		opErr = b.Move(c.Request().Context(), req.TaskID, req.ToStatus, index)
		metrics.ObserveApply(time.Since(start))
		if opErr != nil {
			metrics.SetErrorStage("move")
			return writeError(c, opErr)
		}
		return c.JSON(http.StatusOK, b.View())
	}
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, intentMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
