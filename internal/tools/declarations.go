package tools

// Param describes one string argument of a tool.
type Param struct {
	Name        string
	Description string
	Required    bool
	Enum        []string
}

// Declaration is the provider-neutral description of a tool.
type Declaration struct {
	Name        string
	Description string
	Params      []Param
}

var (
	priorities = []string{"low", "medium", "high"}
	statuses   = []string{"pending", "in_progress", "completed", "over_due"}
)

var declarations = map[Kind]Declaration{
	KindCreateTask: {
		Name:        string(KindCreateTask),
		Description: "Create a new task for the user.",
		Params: []Param{
			{Name: "title", Description: "Short title of the task.", Required: true},
			{Name: "description", Description: "Optional longer description."},
			{Name: "priority", Description: "Task priority. Defaults to medium.", Enum: priorities},
			{Name: "dueDate", Description: "Due date as YYYY-MM-DD."},
		},
	},
	KindFetchTasks: {
		Name:        string(KindFetchTasks),
		Description: "List the user's tasks. Every filter is optional.",
		Params: []Param{
			{Name: "createdDate", Description: "Only tasks created on this day, YYYY-MM-DD."},
			{Name: "dueDate", Description: "Only tasks due on this day, YYYY-MM-DD."},
			{Name: "status", Description: "Only tasks with this status.", Enum: statuses},
			{Name: "priority", Description: "Only tasks with this priority.", Enum: priorities},
			{Name: "title", Description: "Only tasks whose title contains this text."},
		},
	},
	KindUpdateTask: {
		Name:        string(KindUpdateTask),
		Description: "Update one task, found by id or by a unique title fragment.",
		Params: []Param{
			{Name: "id", Description: "Id of the task. Preferred over title."},
			{Name: "title", Description: "Title fragment identifying the task when no id is known."},
			{Name: "newTitle", Description: "Replacement title."},
			{Name: "description", Description: "Replacement description."},
			{Name: "priority", Description: "New priority.", Enum: priorities},
			{Name: "status", Description: "New status.", Enum: statuses},
			{Name: "dueDate", Description: "New due date as YYYY-MM-DD."},
		},
	},
	KindDeleteTask: {
		Name:        string(KindDeleteTask),
		Description: "Delete one task by id.",
		Params: []Param{
			{Name: "id", Description: "Id of the task to delete.", Required: true},
		},
	},
	KindDeleteRelatedTask: {
		Name:        string(KindDeleteRelatedTask),
		Description: "Delete the single task closest in meaning to a description.",
		Params: []Param{
			{Name: "query", Description: "What the task is about.", Required: true},
		},
	},
	KindSearchTask: {
		Name:        string(KindSearchTask),
		Description: "Find tasks whose title contains the query. Returns ids.",
		Params: []Param{
			{Name: "query", Description: "Title fragment.", Required: true},
		},
	},
	KindSearchRelatedTasks: {
		Name:        string(KindSearchRelatedTasks),
		Description: "Find tasks related in meaning to a description.",
		Params: []Param{
			{Name: "query", Description: "What the tasks are about.", Required: true},
		},
	},
	KindGetCurrentDate: {
		Name:        string(KindGetCurrentDate),
		Description: "Return the current date and time in ISO-8601 UTC.",
	},
}

// Declarations describes the tools on offer.
func (r *Registry) Declarations() []Declaration {
	kinds := r.Kinds()
	out := make([]Declaration, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, declarations[k])
	}
	return out
}
