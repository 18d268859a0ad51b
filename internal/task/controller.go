// Package task はタスクリソースのHTTPコントローラーを提供する。
//
// 全てのルートは認証ゲートの後ろにあり、参照・更新・削除は常に
// 認証済みユーザーが所有するタスクに限定される。
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/tasktracker/internal/store"
	"github.com/nao1215/tasktracker/pkg/controller"
	"github.com/nao1215/tasktracker/pkg/middleware"
	"github.com/nao1215/tasktracker/pkg/route"
)

// Prefix はタスクコントローラーのマウント先。
const Prefix = "/tasks"

// Store はタスクコントローラーが使用する永続化層。
// 全ての操作は所有者IDで絞り込まれる。
type Store interface {
	CreateTask(ctx context.Context, t *store.Task) error
	GetTask(ctx context.Context, owner, id string) (*store.Task, error)
	ListTasks(ctx context.Context, owner string, f store.TaskFilter) ([]*store.Task, error)
	UpdateTask(ctx context.Context, t *store.Task) error
	DeleteTask(ctx context.Context, owner, id string) (*store.Task, error)
}

// Controller はタスクリソースのコントローラー。
type Controller struct {
	controller.Base
	store Store
}

var _ route.Controller = (*Controller)(nil)

// NewController はタスクコントローラーを生成する。authは全ルートに適用する認証ゲート。
func NewController(st Store, auth gin.HandlerFunc, logger *slog.Logger) *Controller {
	c := &Controller{store: st}

	table := route.NewTable(
		route.Route{Method: http.MethodGet, Path: "", Handler: c.handleList()},
		route.Route{Method: http.MethodGet, Path: "/:id", Handler: c.handleGet()},
		route.Route{Method: http.MethodPatch, Path: "/:id", Handler: c.handleUpdate()},
		route.Route{Method: http.MethodDelete, Path: "/:id", Handler: c.handleDelete()},
		route.Route{Method: http.MethodPost, Path: "", Handler: c.handleCreate()},
	).Require("", auth)

	c.Base = controller.NewBase(logger, table)
	return c
}

// Prefix はコントローラーのマウント先を返す。
func (c *Controller) Prefix() string {
	return Prefix
}

// taskResponse はタスクのJSONレスポンス構造。
type taskResponse struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	Owner       string `json:"owner"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toTaskResponse(t *store.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Description: t.Description,
		Completed:   t.Completed,
		Owner:       t.Owner,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// createRequest はタスク作成リクエスト。
// ownerなど他のフィールドは読み取らず、所有者は常に認証済みユーザーになる。
type createRequest struct {
	Description string `json:"description" binding:"required"`
	Completed   bool   `json:"completed"`
}

// patchRequest はタスク更新リクエスト。ここにないフィールドを含むリクエストは拒否する。
type patchRequest struct {
	Description *string `json:"description" binding:"omitnil,min=1"`
	Completed   *bool   `json:"completed"`
}

// classify はストアのエラーをコントローラーのエラー分類に変換する。
func classify(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return controller.NotFound(err.Error())
	}
	return err
}

// handleList は認証済みユーザーのタスク一覧を返すハンドラ。
func (c *Controller) handleList() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		filter, err := parseFilter(ctx)
		if err != nil {
			c.Fail(ctx, err)
			return
		}

		tasks, err := c.store.ListTasks(ctx.Request.Context(), middleware.GetUserID(ctx), filter)
		if err != nil {
			c.Fail(ctx, err)
			return
		}

		resp := make([]taskResponse, 0, len(tasks))
		for _, t := range tasks {
			resp = append(resp, toTaskResponse(t))
		}
		c.OK(ctx, resp)
	}
}

// handleGet は指定IDのタスクを返すハンドラ。
func (c *Controller) handleGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		t, err := c.store.GetTask(ctx.Request.Context(), middleware.GetUserID(ctx), ctx.Param("id"))
		if err != nil {
			c.Fail(ctx, classify(err))
			return
		}
		c.OK(ctx, toTaskResponse(t))
	}
}

// handleCreate は認証済みユーザーを所有者としてタスクを作成するハンドラ。
func (c *Controller) handleCreate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req createRequest
		if err := controller.BindJSON(ctx, &req); err != nil {
			c.Fail(ctx, err)
			return
		}
		description := strings.TrimSpace(req.Description)
		if description == "" {
			c.Fail(ctx, controller.Validation("description must not be empty"))
			return
		}

		t := &store.Task{
			ID:          uuid.New().String(),
			Description: description,
			Completed:   req.Completed,
			Owner:       middleware.GetUserID(ctx),
		}
		if err := c.store.CreateTask(ctx.Request.Context(), t); err != nil {
			c.Fail(ctx, err)
			return
		}
		c.Created(ctx, toTaskResponse(t))
	}
}

// handleUpdate は説明と完了状態だけを更新するハンドラ。
func (c *Controller) handleUpdate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req patchRequest
		if err := controller.BindPatch(ctx, &req); err != nil {
			c.Fail(ctx, err)
			return
		}

		owner := middleware.GetUserID(ctx)
		t, err := c.store.GetTask(ctx.Request.Context(), owner, ctx.Param("id"))
		if err != nil {
			c.Fail(ctx, classify(err))
			return
		}

		if req.Description != nil {
			description := strings.TrimSpace(*req.Description)
			if description == "" {
				c.Fail(ctx, controller.Validation("description must not be empty"))
				return
			}
			t.Description = description
		}
		if req.Completed != nil {
			t.Completed = *req.Completed
		}

		if err := c.store.UpdateTask(ctx.Request.Context(), t); err != nil {
			c.Fail(ctx, classify(err))
			return
		}
		c.OK(ctx, toTaskResponse(t))
	}
}

// handleDelete は指定IDのタスクを削除し、削除したタスクを返すハンドラ。
func (c *Controller) handleDelete() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		t, err := c.store.DeleteTask(ctx.Request.Context(), middleware.GetUserID(ctx), ctx.Param("id"))
		if err != nil {
			c.Fail(ctx, classify(err))
			return
		}
		c.OK(ctx, toTaskResponse(t))
	}
}

// parseFilter は一覧取得のクエリパラメータを解釈する。
//
//	completed=true|false
//	sortBy=<field>[:asc|:desc]
//	limit=<0以上の整数>（0は無制限）
//	skip=<0以上の整数>
func parseFilter(ctx *gin.Context) (store.TaskFilter, error) {
	var f store.TaskFilter

	if v, ok := ctx.GetQuery("completed"); ok {
		var completed bool
		switch v {
		case "true":
			completed = true
		case "false":
		default:
			return f, controller.Validation("completed must be true or false")
		}
		f.Completed = &completed
	}

	if v, ok := ctx.GetQuery("sortBy"); ok {
		field, dir, _ := strings.Cut(v, ":")
		sf, err := sortField(field)
		if err != nil {
			return f, err
		}
		f.SortBy = sf
		switch dir {
		case "", "asc":
		case "desc":
			f.Descending = true
		default:
			return f, controller.Validation(fmt.Sprintf("sort direction must be asc or desc: %q", dir))
		}
	}

	var err error
	if f.Limit, err = nonNegative(ctx, "limit"); err != nil {
		return f, err
	}
	if f.Skip, err = nonNegative(ctx, "skip"); err != nil {
		return f, err
	}
	return f, nil
}

// sortField は並び替えに使用できるフィールドかを検証する。
func sortField(field string) (store.SortField, error) {
	switch sf := store.SortField(field); sf {
	case store.SortByCreatedAt, store.SortByUpdatedAt, store.SortByDescription, store.SortByCompleted:
		return sf, nil
	default:
		return "", controller.Validation(fmt.Sprintf("cannot sort by %q", field))
	}
}

// nonNegative はクエリパラメータを0以上の整数として解釈する。未指定は0。
func nonNegative(ctx *gin.Context, key string) (int, error) {
	v, ok := ctx.GetQuery(key)
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, controller.Validation(fmt.Sprintf("%s must be a non-negative integer", key))
	}
	return n, nil
}
