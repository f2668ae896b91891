package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/codec"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
)

// maxTaskSize — максимальный размер тела задачи.
const maxTaskSize = 1 << 20

// TestQueue — очередь для POST /api/v1/test/task.
const TestQueue = "test"

// PublishTask публикует задачу в очередь из пути.
// POST /api/v1/tasks/{queue}
func (h *Handler) PublishTask(w http.ResponseWriter, r *http.Request) {
	queue := r.PathValue("queue")
	if queue == "" {
		BadRequest(w, ErrCodeBadRequest, "queue is required")
		return
	}
	h.publishTask(w, r, queue)
}

// UploadTestTask публикует задачу в очередь test.
// POST /api/v1/test/task
func (h *Handler) UploadTestTask(w http.ResponseWriter, r *http.Request) {
	h.publishTask(w, r, TestQueue)
}

func (h *Handler) publishTask(w http.ResponseWriter, r *http.Request, queue string) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTaskSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "task must be between 1B and 1MB")
			return
		}
		BadRequest(w, ErrCodeBadRequest, "failed to read body")
		return
	}
	if len(data) == 0 {
		BadRequest(w, ErrCodeBadRequest, "task must be between 1B and 1MB")
		return
	}

	entry, err := codec.DecodeRecord[domain.TaskEntry](data)
	if err != nil {
		BadRequest(w, ErrCodeInvalidPayload, "body must be a TaskEntry json object")
		return
	}
	if entry.Identity == "" {
		entry.Identity = uuid.New().String()
	}

	broker, err := h.res.Broker()
	if HandleError(w, h.logger, err) {
		return
	}

	body, err := codec.Encode(entry)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	if err := broker.Publish(r.Context(), queue, body, mq.PublishOptions{DeliveryMode: mq.Persistent}); err != nil {
		h.logger.Error("failed to publish task", "queue", queue, "task", entry.Task, "error", err)
		Error(w, http.StatusBadGateway, ErrCodePublishFailed, "failed to publish task")
		return
	}

	h.logger.Info("task published", "queue", queue, "task", entry.Task, "identity", entry.Identity)
	Accepted(w, TaskResponse{Queue: queue, Task: entry.Task, Identity: entry.Identity})
}
