package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"clientreports/internal/auth"
	"clientreports/internal/models"
	"clientreports/internal/tasks"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// TaskQueue is the background queue as seen by admin routes
type TaskQueue interface {
	Enqueue(taskType models.TaskType, params models.TaskParams) (string, error)
	Get(id string) (models.BackgroundTask, bool)
	List() []models.BackgroundTask
	Stats() tasks.Stats
}

// TaskListResponse lists known tasks with per-status counts
type TaskListResponse struct {
	Tasks []models.BackgroundTask `json:"tasks"`
	Stats tasks.Stats             `json:"stats"`
}

// EnqueueTaskHandler queues a background task
// @Summary Enqueue background task
// @Tags admin
// @Accept json
// @Produce json
// @Param X-User-Email header string true "Admin address"
// @Param request body models.EnqueueTaskRequest true "Task type and parameters"
// @Success 202 {object} models.EnqueueTaskResponse
// @Failure 400 {object} models.EnqueueTaskResponse
// @Failure 403 {object} map[string]string
// @Router /api/admin/tasks [post]
func EnqueueTaskHandler(queue TaskQueue, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.EnqueueTaskRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.EnqueueTaskResponse{
				Error: fmt.Sprintf("Invalid request body: %v", err),
			})
		}

		taskID, err := queue.Enqueue(req.Type, models.TaskParams{Limit: req.Limit, MessageIDs: req.MessageIDs})
		if err != nil {
			status := statusFor(err)
			if errors.Is(err, tasks.ErrQueueClosed) {
				status = http.StatusServiceUnavailable
			}
			return c.JSON(status, models.EnqueueTaskResponse{Error: err.Error()})
		}

		logger.Info().
			Str("task_id", taskID).
			Str("type", string(req.Type)).
			Str("requested_by", auth.UserEmail(c)).
			Msg("Admin enqueued task")

		return c.JSON(http.StatusAccepted, models.EnqueueTaskResponse{Success: true, TaskID: taskID})
	}
}

// ListTasksHandler lists tasks still within retention
// @Summary List background tasks
// @Tags admin
// @Produce json
// @Param X-User-Email header string true "Admin address"
// @Success 200 {object} TaskListResponse
// @Failure 403 {object} map[string]string
// @Router /api/admin/tasks [get]
func ListTasksHandler(queue TaskQueue) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, TaskListResponse{
			Tasks: queue.List(),
			Stats: queue.Stats(),
		})
	}
}

// GetTaskHandler returns one task
// @Summary Get background task
// @Tags admin
// @Produce json
// @Param X-User-Email header string true "Admin address"
// @Param taskId path string true "Task ID (UUID)"
// @Success 200 {object} models.BackgroundTask
// @Failure 404 {object} map[string]string
// @Router /api/admin/tasks/{taskId} [get]
func GetTaskHandler(queue TaskQueue) echo.HandlerFunc {
	return func(c echo.Context) error {
		taskID := c.Param("taskId")
		task, ok := queue.Get(taskID)
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": fmt.Sprintf("Task %s not found", taskID),
			})
		}
		return c.JSON(http.StatusOK, task)
	}
}
