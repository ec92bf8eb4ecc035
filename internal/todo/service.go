package todo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/todo/entity"
)

// Store is owner-scoped persistence; *repo.TodoRepo satisfies it. Scoped
// calls report "missing" and "owned by someone else" alike as sql.ErrNoRows.
type Store interface {
	Create(ctx context.Context, t *entity.Todo) error
	ListByOwner(ctx context.Context, userID int64) ([]entity.Todo, error)
	GetScoped(ctx context.Context, userID, id int64) (*entity.Todo, error)
	UpdateScoped(ctx context.Context, userID, id int64, apply func(*entity.Todo) error) (*entity.Todo, error)
	DeleteScoped(ctx context.Context, userID, id int64) error
}

// IDSource hands out new todo ids.
type IDSource interface {
	Next() int64
}

// CreateInput is the creation payload. Deadline is an RFC 3339 timestamp.
type CreateInput struct {
	Title       string  `json:"title" validate:"required"`
	Description *string `json:"description"`
	Deadline    string  `json:"deadline" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

// UpdateInput is a partial update; absent fields are left as they are.
// It has no owner field, so a payload cannot reassign the item.
type UpdateInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Deadline    *string `json:"deadline"`
	Completed   *bool   `json:"completed"`
}

const deadlineFormat = "must be an RFC 3339 timestamp"

var errTodoNotFound = apperr.NotFound("todo")

// Service runs the CRUD operations on todos, always on behalf of an acting
// user id. An item that belongs to another user is indistinguishable from
// one that does not exist.
type Service struct {
	store    Store
	ids      IDSource
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

func NewService(store Store, ids IDSource, logger *zap.SugaredLogger) *Service {
	return &Service{store: store, ids: ids, validate: validator.New(), logger: logger}
}

// Create stores a new, not yet completed todo owned by userID.
func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*entity.Todo, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := s.validate.Struct(in); err != nil {
		return nil, createFieldErrors(err)
	}
	deadline, err := time.Parse(time.RFC3339, in.Deadline)
	if err != nil {
		return nil, apperr.Validation(map[string]string{"deadline": deadlineFormat})
	}

	t := &entity.Todo{
		ID:          s.ids.Next(),
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		Deadline:    deadline.UTC(),
		Completed:   false,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, apperr.Storage("create todo", err)
	}
	s.logger.Debugw("todo created", "todo_id", t.ID, "user_id", userID)
	return t, nil
}

// List returns every todo owned by userID.
func (s *Service) List(ctx context.Context, userID int64) ([]entity.Todo, error) {
	todos, err := s.store.ListByOwner(ctx, userID)
	if err != nil {
		return nil, apperr.Storage("list todos", err)
	}
	if todos == nil {
		todos = []entity.Todo{}
	}
	return todos, nil
}

// Get returns the todo only when it exists and is owned by userID.
func (s *Service) Get(ctx context.Context, userID, id int64) (*entity.Todo, error) {
	t, err := s.store.GetScoped(ctx, userID, id)
	if err != nil {
		return nil, translate("get todo", err)
	}
	return t, nil
}

// Update merges the present fields into the owner's todo.
func (s *Service) Update(ctx context.Context, userID, id int64, in UpdateInput) (*entity.Todo, error) {
	patch, err := toPatch(in)
	if err != nil {
		return nil, err
	}
	t, err := s.store.UpdateScoped(ctx, userID, id, func(t *entity.Todo) error {
		patch.Apply(t)
		return nil
	})
	if err != nil {
		return nil, translate("update todo", err)
	}
	return t, nil
}

// Delete permanently removes the owner's todo.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	if err := s.store.DeleteScoped(ctx, userID, id); err != nil {
		return translate("delete todo", err)
	}
	s.logger.Debugw("todo deleted", "todo_id", id, "user_id", userID)
	return nil
}

func toPatch(in UpdateInput) (entity.Patch, error) {
	fields := map[string]string{}
	p := entity.Patch{Description: in.Description, Completed: in.Completed}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			fields["title"] = "must not be empty"
		}
		p.Title = &title
	}
	if in.Deadline != nil {
		d, err := time.Parse(time.RFC3339, *in.Deadline)
		if err != nil {
			fields["deadline"] = deadlineFormat
		} else {
			d = d.UTC()
			p.Deadline = &d
		}
	}
	if len(fields) > 0 {
		return entity.Patch{}, apperr.Validation(fields)
	}
	return p, nil
}

func translate(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errTodoNotFound
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Storage(op, err)
}

func createFieldErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(map[string]string{"_": err.Error()})
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			fields[name] = "required"
		case "datetime":
			fields[name] = deadlineFormat
		default:
			fields[name] = "invalid"
		}
	}
	return apperr.Validation(fields)
}
