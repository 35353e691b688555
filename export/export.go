package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/meikuraledutech/flow"
)

// FileName is the name the CSV is uploaded under.
const FileName = "task_nodes.csv"

// Process is the JSON process template sent alongside the CSV.
type Process struct {
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	InputFormat json.RawMessage `json:"input_format"`
	HTTPHeaders json.RawMessage `json:"http_headers"`
	EmailList   string          `json:"email_list"`
	Description string          `json:"description"`
}

// Bundle is everything needed to submit a canvas.
type Bundle struct {
	Process Process
	Order   []string
	CSV     []byte
}

// ProcessPayload builds the process template from the process node payload.
// The JSON text fields are parsed so they travel as JSON values.
func ProcessPayload(d flow.ProcessData) (Process, error) {
	input, err := d.InputFormat.Value()
	if err != nil {
		return Process{}, &flow.FieldError{Field: "input_format", Err: err}
	}
	headers, err := d.Header.Value()
	if err != nil {
		return Process{}, &flow.FieldError{Field: "header", Err: err}
	}
	return Process{
		Name:        d.Name,
		Slug:        d.Slug,
		InputFormat: input,
		HTTPHeaders: headers,
		EmailList:   d.EmailList,
		Description: d.Description,
	}, nil
}

// Build validates s, orders its tasks and renders both payloads.
func Build(s flow.GraphState, opts flow.ExportOptions) (*Bundle, error) {
	if err := flow.ValidateForExport(s, opts); err != nil {
		return nil, err
	}

	process, _ := s.Process()
	payload, err := ProcessPayload(*process.Process)
	if err != nil {
		return nil, err
	}

	tasks, err := flow.OrderTasks(s.Tasks())
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := WriteTasks(&buf, tasks); err != nil {
		return nil, fmt.Errorf("export: write csv: %w", err)
	}

	order := make([]string, len(tasks))
	for i, t := range tasks {
		order[i] = t.Slug()
	}
	return &Bundle{Process: payload, Order: order, CSV: buf.Bytes()}, nil
}
