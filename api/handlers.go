package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"flowboard-api/domain"
	"flowboard-api/session"
)

// mutationMaxBodySize bounds request bodies on mutation routes.
const mutationMaxBodySize = 1 << 20

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Store, auth Authenticator, deduper Deduper, logger *log.Logger) {
	e.GET("/api/state", getState(store, logger))
	e.POST("/api/boards", dedupe(deduper, logger, createBoard(store)))
	e.PUT("/api/boards/active", dedupe(deduper, logger, switchBoard(store)))
	e.POST("/api/boards/:boardId/columns", dedupe(deduper, logger, addColumn(store)))
	e.PATCH("/api/boards/:boardId/columns/:columnId", dedupe(deduper, logger, updateColumn(store)))
	e.POST("/api/boards/:boardId/tasks", dedupe(deduper, logger, addTask(store)))
	e.PATCH("/api/boards/:boardId/tasks/:taskId", dedupe(deduper, logger, updateTask(store)))
	e.GET("/api/tasks/:taskId/comments", getTaskComments(store))
	e.POST("/api/boards/:boardId/comments", dedupe(deduper, logger, addComment(store)))
	e.DELETE("/api/boards/:boardId/comments/:commentId", dedupe(deduper, logger, deleteComment(store)))
	e.POST("/api/auth/signin", signIn(store, auth, logger))
	e.POST("/api/auth/signout", signOut(store))
	e.GET("/api/theme", getTheme(store))
	e.PUT("/api/theme", setTheme(store))
	e.GET("/api/outbox/stats", outboxStats(store))
	e.GET("/healthz", healthz())
}

// dedupe acknowledges replayed mutations without re-applying them. Requests
// without an Idempotency-Key header pass straight through.
func dedupe(deduper Deduper, logger *log.Logger, next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get("Idempotency-Key")
		if key == "" || deduper == nil {
			return next(c)
		}
		ctx := c.Request().Context()
		fresh, err := deduper.Add(ctx, key)
		if err != nil {
			// The deduper is advisory: apply the mutation rather than
			// failing the request when redis is unreachable.
			if logger != nil {
				logger.WithError(err).Warn("idempotency check failed")
			}
			return next(c)
		}
		if !fresh {
			return c.NoContent(http.StatusOK)
		}
		if err := next(c); err != nil {
			_ = deduper.Remove(ctx, key)
			return err
		}
		return nil
	}
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, mutationMaxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func notFoundStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, domain.ErrBoardNotFound),
		errors.Is(err, domain.ErrColumnNotFound),
		errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrCommentNotFound):
		return http.StatusNotFound, true
	}
	return 0, false
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getState(store Store, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newRequestMetrics(ctx, logger, "/api/state")
		c.SetRequest(c.Request().WithContext(spanCtx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		applyStart := time.Now()
		snapshot := store.Snapshot()
		metrics.ObserveApply(time.Since(applyStart))

		err = c.JSON(http.StatusOK, snapshot)
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

type createBoardRequest struct {
	Name string `json:"name"`
}

func createBoard(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createBoardRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Name == "" {
			return c.String(http.StatusBadRequest, "board name is required")
		}
		return c.JSON(http.StatusCreated, store.CreateBoard(req.Name))
	}
}

type switchBoardRequest struct {
	BoardID string `json:"boardId"`
}

func switchBoard(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req switchBoardRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := store.SwitchBoard(req.BoardID); err != nil {
			if status, ok := notFoundStatus(err); ok {
				return c.String(status, err.Error())
			}
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type addColumnRequest struct {
	Title string `json:"title"`
}

func addColumn(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req addColumnRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		col, err := store.AddColumn(c.Param("boardId"), req.Title)
		if err != nil {
			if status, ok := notFoundStatus(err); ok {
				return c.String(status, err.Error())
			}
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusCreated, col)
	}
}

type updateColumnRequest struct {
	Title *string `json:"title"`
}

func updateColumn(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		columnID, err := strconv.Atoi(c.Param("columnId"))
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid column id")
		}
		var req updateColumnRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		col, err := store.UpdateColumn(c.Param("boardId"), columnID, domain.ColumnFields{Title: req.Title})
		if err != nil {
			if status, ok := notFoundStatus(err); ok {
				return c.String(status, err.Error())
			}
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, col)
	}
}

type addTaskRequest struct {
	ColumnID int    `json:"columnId"`
	Title    string `json:"title"`
}

func addTask(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req addTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Title == "" {
			return c.String(http.StatusBadRequest, "task title is required")
		}
		task, err := store.AddTask(c.Param("boardId"), req.ColumnID, req.Title)
		if err != nil {
			if status, ok := notFoundStatus(err); ok {
				return c.String(status, err.Error())
			}
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusCreated, task)
	}
}

type updateTaskRequest struct {
	Title          *string         `json:"title"`
	DueDate        json.RawMessage `json:"dueDate"`
	TargetColumnID *int            `json:"targetColumnId"`
}

func updateTask(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		taskID, err := strconv.Atoi(c.Param("taskId"))
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid task id")
		}
		var req updateTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		fields := domain.TaskFields{Title: req.Title}
		// dueDate is tri-state: absent leaves it alone, null clears it,
		// a string sets it.
		if len(req.DueDate) > 0 {
			if string(req.DueDate) == "null" {
				fields.ClearDueDate = true
			} else {
				var due string
				if err := json.Unmarshal(req.DueDate, &due); err != nil {
					return c.String(http.StatusBadRequest, "invalid due date")
				}
				fields.DueDate = &due
			}
		}

		task, err := store.UpdateTask(c.Param("boardId"), taskID, fields, req.TargetColumnID)
		if err != nil {
			if status, ok := notFoundStatus(err); ok {
				return c.String(status, err.Error())
			}
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, task)
	}
}

func getTaskComments(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		taskID, err := strconv.Atoi(c.Param("taskId"))
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid task id")
		}
		return c.JSON(http.StatusOK, store.CommentsForTask(taskID))
	}
}

type addCommentRequest struct {
	TaskID int    `json:"taskId"`
	Text   string `json:"text"`
}

func addComment(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req addCommentRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Text == "" {
			return c.String(http.StatusBadRequest, "comment text is required")
		}
		comment, err := store.AddComment(c.Param("boardId"), req.TaskID, req.Text)
		if err != nil {
			if status, ok := notFoundStatus(err); ok {
				return c.String(status, err.Error())
			}
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusCreated, comment)
	}
}

func deleteComment(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		commentID, err := strconv.Atoi(c.Param("commentId"))
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid comment id")
		}
		if err := store.DeleteComment(c.Param("boardId"), commentID); err != nil {
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type dataSourceResponse struct {
	DataSource string `json:"dataSource"`
}

func signIn(store Store, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newRequestMetrics(ctx, logger, "/api/auth/signin")
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx = spanCtx
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		profile, authErr := auth.ProfileFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		applyStart := time.Now()
		source, signInErr := store.SignIn(ctx, profile)
		metrics.ObserveApply(time.Since(applyStart))
		if signInErr != nil {
			if errors.Is(signInErr, session.ErrRemoteUnavailable) {
				metrics.SetErrorStage("remote_unconfigured")
				err = c.String(http.StatusServiceUnavailable, signInErr.Error())
				return err
			}
			// The session already reverted to local storage; report the
			// outcome instead of failing the request.
			metrics.SetErrorStage("remote_load")
			logger.WithError(signInErr).Error("sign-in completed on local storage")
		}
		err = c.JSON(http.StatusOK, dataSourceResponse{DataSource: source})
		return err
	}
}

func signOut(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, dataSourceResponse{DataSource: store.SignOut()})
	}
}

type themeBody struct {
	Theme string `json:"theme"`
}

func getTheme(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		theme, err := store.Theme(c.Request().Context())
		if err != nil {
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, themeBody{Theme: theme})
	}
}

func setTheme(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req themeBody
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := store.SetTheme(c.Request().Context(), req.Theme); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func outboxStats(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, store.OutboxStats())
	}
}
