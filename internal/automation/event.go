package automation

import (
	"github.com/mattjoyce/leasehook/internal/tenant"
)

var (
	eventTypeKeys    = []string{"EventType", "eventType", "event_type", "EventName", "type"}
	taskContainers   = []string{"task", "Task", "resource", "Resource"}
	taskNameKeys     = []string{"Name", "name", "Title", "title", "TaskName"}
	taskIDKeys       = []string{"Id", "id", "TaskId"}
	categoryIDKeys   = []string{"CategoryId", "categoryId", "category_id", "Category.Id"}
	categoryNameKeys = []string{"CategoryName", "categoryName", "Category.Name"}
)

// Event is the routing-relevant view of a webhook body.
type Event struct {
	Type         string          `json:"type"`
	TaskID       string          `json:"task_id,omitempty"`
	TaskName     string          `json:"task_name"`
	CategoryID   string          `json:"category_id,omitempty"`
	CategoryName string          `json:"category_name,omitempty"`
	Task         tenant.Document `json:"task,omitempty"`
}

// ExtractEvent reads the event type and task attributes from body. Task
// attributes may sit at the root or under task/resource; a nested object
// wins over the root.
func ExtractEvent(body tenant.Document) Event {
	if body == nil {
		body = tenant.Document{}
	}
	task := body
	for _, key := range taskContainers {
		switch obj := body[key].(type) {
		case map[string]any:
			task = tenant.Document(obj)
		case tenant.Document:
			task = obj
		default:
			continue
		}
		break
	}

	pick := func(keys []string) string {
		if v, _, ok := task.String(keys...); ok {
			return v
		}
		v, _, _ := body.String(keys...)
		return v
	}

	eventType, _, ok := body.String(eventTypeKeys...)
	if !ok {
		eventType, _, _ = task.String(eventTypeKeys...)
	}

	return Event{
		Type:         eventType,
		TaskID:       pick(taskIDKeys),
		TaskName:     pick(taskNameKeys),
		CategoryID:   pick(categoryIDKeys),
		CategoryName: pick(categoryNameKeys),
		Task:         task.Clone(),
	}
}
