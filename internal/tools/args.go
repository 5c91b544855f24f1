package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Kind names one operation the interpreter may request.
type Kind string

const (
	KindCreateTask         Kind = "create-task"
	KindFetchTasks         Kind = "fetch-tasks"
	KindUpdateTask         Kind = "update-task"
	KindDeleteTask         Kind = "delete-task"
	KindDeleteRelatedTask  Kind = "delete-related-task"
	KindSearchTask         Kind = "searchTask"
	KindSearchRelatedTasks Kind = "search-related-tasks"
	KindGetCurrentDate     Kind = "get-current-date"
)

const dateLayout = "2006-01-02"

type CreateTaskArgs struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate     string `json:"dueDate" validate:"omitempty,taskdate"`
}

type FetchTasksArgs struct {
	CreatedDate string `json:"createdDate" validate:"omitempty,datetime=2006-01-02"`
	DueDate     string `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
	Status      string `json:"status" validate:"omitempty,oneof=pending in_progress completed over_due"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high"`
	Title       string `json:"title"`
}

type UpdateTaskArgs struct {
	ID          string `json:"id" validate:"required_without=Title"`
	Title       string `json:"title"`
	NewTitle    string `json:"newTitle"`
	Description string `json:"description"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high"`
	Status      string `json:"status" validate:"omitempty,oneof=pending in_progress completed over_due"`
	DueDate     string `json:"dueDate" validate:"omitempty,taskdate"`
}

type DeleteTaskArgs struct {
	ID string `json:"id" validate:"required"`
}

type DeleteRelatedTaskArgs struct {
	Query string `json:"query" validate:"required"`
}

type SearchTaskArgs struct {
	Query string `json:"query" validate:"required"`
}

type SearchRelatedTasksArgs struct {
	Query string `json:"query" validate:"required"`
}

type GetCurrentDateArgs struct{}

func newArgs(kind Kind) (any, bool) {
	switch kind {
	case KindCreateTask:
		return &CreateTaskArgs{}, true
	case KindFetchTasks:
		return &FetchTasksArgs{}, true
	case KindUpdateTask:
		return &UpdateTaskArgs{}, true
	case KindDeleteTask:
		return &DeleteTaskArgs{}, true
	case KindDeleteRelatedTask:
		return &DeleteRelatedTaskArgs{}, true
	case KindSearchTask:
		return &SearchTaskArgs{}, true
	case KindSearchRelatedTasks:
		return &SearchRelatedTasksArgs{}, true
	case KindGetCurrentDate:
		return &GetCurrentDateArgs{}, true
	}
	return nil, false
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("taskdate", func(fl validator.FieldLevel) bool {
		_, err := parseDate(fl.Field().String())
		return err == nil
	})
	return v
}

// decode maps raw interpreter arguments onto the typed struct for kind,
// trims string fields and validates the result.
func decode(v *validator.Validate, kind Kind, raw map[string]any) (any, error) {
	args, ok := newArgs(kind)
	if !ok {
		return nil, &UnknownToolError{Name: string(kind)}
	}
	if len(raw) > 0 {
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("encode arguments: %w", err)
		}
		if err := json.Unmarshal(b, args); err != nil {
			return nil, &ArgumentError{Tool: kind, Problems: []string{err.Error()}}
		}
	}
	trimStrings(args)
	if err := v.Struct(args); err != nil {
		return nil, describeValidation(kind, err)
	}
	return args, nil
}

func trimStrings(args any) {
	rv := reflect.ValueOf(args).Elem()
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if f.Kind() == reflect.String && f.CanSet() {
			f.SetString(strings.TrimSpace(f.String()))
		}
	}
}

func describeValidation(kind Kind, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ArgumentError{Tool: kind, Problems: []string{err.Error()}}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "required_without":
			msgs = append(msgs, "either id or title is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", ")))
		case "datetime", "taskdate":
			msgs = append(msgs, fe.Field()+" must be a date in YYYY-MM-DD format")
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return &ArgumentError{Tool: kind, Problems: msgs}
}

// ArgumentError reports arguments that failed validation.
type ArgumentError struct {
	Tool     Kind
	Problems []string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Problems, "; "))
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp. Calendar
// dates are read as midnight UTC.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// dayRange returns the half-open UTC day containing the date s.
func dayRange(s string) (from, to time.Time, err error) {
	day, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return day, day.Add(24 * time.Hour), nil
}
