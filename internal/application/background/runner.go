// Package background исполняет некритичные задачи (чекпоинты, записи в историю).
// Ошибки задач только логируются и никогда не возвращаются вызывающему коду.
package background

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qrave1/RoomScribe/internal/application/constant"
)

type Runner struct {
	ctx     context.Context
	group   *errgroup.Group
	timeout time.Duration
}

// NewRunner ограничивает число одновременных задач limit. Задачи не отменяются
// вместе с ctx, чтобы на остановке сервиса успеть дописать чекпоинты.
func NewRunner(ctx context.Context, limit int, timeout time.Duration) *Runner {
	g := new(errgroup.Group)
	g.SetLimit(limit)

	return &Runner{
		ctx:     context.WithoutCancel(ctx),
		group:   g,
		timeout: timeout,
	}
}

// Submit returns false when the runner is saturated and the task was dropped.
func (r *Runner) Submit(name string, task func(ctx context.Context) error, logArgs ...any) bool {
	ok := r.group.TryGo(func() error {
		ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
		defer cancel()

		if err := task(ctx); err != nil {
			args := append([]any{slog.String(constant.Task, name), slog.Any(constant.Error, err)}, logArgs...)
			slog.Warn("background task failed", args...)
		}

		return nil
	})

	if !ok {
		args := append([]any{slog.String(constant.Task, name)}, logArgs...)
		slog.Warn("background runner saturated, task dropped", args...)
	}

	return ok
}

// Wait блокируется до завершения всех запущенных задач
func (r *Runner) Wait() {
	_ = r.group.Wait()
}
