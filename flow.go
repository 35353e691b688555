// Package flow models process/task workflow templates as a directed graph.
//
// A GraphState holds the nodes and edges of one editing canvas. It is an
// immutable value: every mutation returns a new state and leaves the receiver
// untouched, so callers can keep snapshots around without copying.
package flow

import (
	"encoding/json"
	"fmt"
	"time"
)

// NodeKind tags the variant carried by a Node.
type NodeKind string

const (
	KindProcess NodeKind = "process"
	KindTask    NodeKind = "task"
	KindMaster  NodeKind = "master"
)

// Valid reports whether k is one of the known variants.
func (k NodeKind) Valid() bool {
	switch k {
	case KindProcess, KindTask, KindMaster:
		return true
	}
	return false
}

// Position is the canvas location of a node. The service stores it but never
// interprets it beyond the grid layout used when expanding remote templates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// JSONText is a form field that must hold JSON source text. It decodes from
// either a JSON string or any other JSON value (kept as its source text) and
// always encodes back as a string.
type JSONText string

// UnmarshalJSON implements json.Unmarshaler.
func (t *JSONText) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = JSONText(s)
		return nil
	}
	if string(b) == "null" {
		*t = ""
		return nil
	}
	*t = JSONText(b)
	return nil
}

// Check returns an error if t is non-empty and not valid JSON.
func (t JSONText) Check() error {
	if t == "" {
		return nil
	}
	var v any
	return json.Unmarshal([]byte(t), &v)
}

// Value parses t, returning an empty object when t is empty.
func (t JSONText) Value() (json.RawMessage, error) {
	if t == "" {
		return json.RawMessage(`{}`), nil
	}
	if err := t.Check(); err != nil {
		return nil, err
	}
	return json.RawMessage(t), nil
}

// ProcessData is the payload of the single process node: the entry point of a
// workflow carrying the shared input schema and headers.
type ProcessData struct {
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Description string   `json:"description,omitempty"`
	InputFormat JSONText `json:"input_format,omitempty"`
	Header      JSONText `json:"header,omitempty"`
	EmailList   string   `json:"email_list,omitempty"`
}

// TaskData is the payload of a task node.
type TaskData struct {
	Name                   string   `json:"name"`
	Slug                   string   `json:"slug"`
	Description            string   `json:"description,omitempty"`
	HelpText               string   `json:"help_text,omitempty"`
	InputFormat            JSONText `json:"input_format,omitempty"`
	OutputFormat           JSONText `json:"output_format,omitempty"`
	DependentTaskSlug      SlugSet  `json:"dependent_task_slug"`
	Host                   string   `json:"host,omitempty"`
	BulkInput              *bool    `json:"bulk_input,omitempty"`
	InputHTTPMethod        *int64   `json:"input_http_method,omitempty"`
	APIEndpoint            string   `json:"api_endpoint,omitempty"`
	APITimeoutMs           *int64   `json:"api_timeout_in_ms,omitempty"`
	ResponseType           *int64   `json:"response_type,omitempty"`
	IsJSONInputNeeded      *bool    `json:"is_json_input_needed,omitempty"`
	TaskType               *int64   `json:"task_type,omitempty"`
	IsActive               *bool    `json:"is_active,omitempty"`
	IsOptional             *bool    `json:"is_optional,omitempty"`
	ETA                    JSONText `json:"eta,omitempty"`
	ServiceID              *int64   `json:"service_id,omitempty"`
	EmailList              string   `json:"email_list,omitempty"`
	DelayMs                *int64   `json:"delay_in_ms,omitempty"`
	MasterTaskTemplateSlug string   `json:"master_task_template_slug,omitempty"`
	Action                 string   `json:"action,omitempty"`
}

// MasterData is the payload of a master node: a reusable task template
// dropped onto the canvas that still has to be converted into a task.
type MasterData struct {
	TaskData
}

// Node is a graph vertex. Exactly one of Process, Task and Master is set,
// matching Kind.
type Node struct {
	ID       string
	Kind     NodeKind
	Position Position

	Process *ProcessData
	Task    *TaskData
	Master  *MasterData
}

// NewProcessNode returns a process node with the given payload.
func NewProcessNode(id string, d ProcessData) Node {
	return Node{ID: id, Kind: KindProcess, Process: &d}
}

// NewTaskNode returns a task node with the given payload.
func NewTaskNode(id string, d TaskData) Node {
	return Node{ID: id, Kind: KindTask, Task: &d}
}

// NewMasterNode returns a master node with the given payload.
func NewMasterNode(id string, d MasterData) Node {
	return Node{ID: id, Kind: KindMaster, Master: &d}
}

// Slug returns the human-assigned slug of the node.
func (n Node) Slug() string {
	switch {
	case n.Process != nil:
		return n.Process.Slug
	case n.Task != nil:
		return n.Task.Slug
	case n.Master != nil:
		return n.Master.Slug
	}
	return ""
}

// Name returns the display name of the node.
func (n Node) Name() string {
	switch {
	case n.Process != nil:
		return n.Process.Name
	case n.Task != nil:
		return n.Task.Name
	case n.Master != nil:
		return n.Master.Name
	}
	return ""
}

// taskData returns the task-shaped payload of task and master nodes.
func (n Node) taskData() *TaskData {
	switch n.Kind {
	case KindTask:
		return n.Task
	case KindMaster:
		if n.Master != nil {
			return &n.Master.TaskData
		}
	}
	return nil
}

// Dependencies returns the recorded dependency slugs of a task or master
// node, or an empty set for any other node.
func (n Node) Dependencies() SlugSet {
	if td := n.taskData(); td != nil {
		return td.DependentTaskSlug
	}
	return SlugSet{}
}

// dependencyCarrier reports whether edges from or into n take part in
// dependency bookkeeping.
func (n Node) dependencyCarrier() bool {
	return n.Kind == KindTask || n.Kind == KindMaster
}

// check verifies that the payload matches the kind.
func (n Node) check() error {
	ok := false
	switch n.Kind {
	case KindProcess:
		ok = n.Process != nil && n.Task == nil && n.Master == nil
	case KindTask:
		ok = n.Task != nil && n.Process == nil && n.Master == nil
	case KindMaster:
		ok = n.Master != nil && n.Process == nil && n.Task == nil
	default:
		return &NodeError{NodeID: n.ID, Err: fmt.Errorf("%w: unknown type %q", ErrInvalidNode, n.Kind)}
	}
	if !ok {
		return &NodeError{NodeID: n.ID, Err: fmt.Errorf("%w: payload does not match type %q", ErrInvalidNode, n.Kind)}
	}
	return nil
}

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	out := n
	if n.Process != nil {
		p := *n.Process
		out.Process = &p
	}
	if n.Task != nil {
		t := n.Task.clone()
		out.Task = &t
	}
	if n.Master != nil {
		m := MasterData{TaskData: n.Master.TaskData.clone()}
		out.Master = &m
	}
	return out
}

func (d TaskData) clone() TaskData {
	out := d
	out.DependentTaskSlug = d.DependentTaskSlug.clone()
	out.BulkInput = clonePtr(d.BulkInput)
	out.InputHTTPMethod = clonePtr(d.InputHTTPMethod)
	out.APITimeoutMs = clonePtr(d.APITimeoutMs)
	out.ResponseType = clonePtr(d.ResponseType)
	out.IsJSONInputNeeded = clonePtr(d.IsJSONInputNeeded)
	out.TaskType = clonePtr(d.TaskType)
	out.IsActive = clonePtr(d.IsActive)
	out.IsOptional = clonePtr(d.IsOptional)
	out.ServiceID = clonePtr(d.ServiceID)
	out.DelayMs = clonePtr(d.DelayMs)
	return out
}

// Clone returns a copy of t that shares no pointers or slices with it.
func (t TaskTemplate) Clone() TaskTemplate {
	out := t
	out.Data = t.Data.clone()
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

type nodeJSON struct {
	ID       string          `json:"id"`
	Type     NodeKind        `json:"type"`
	Position Position        `json:"position"`
	Data     json.RawMessage `json:"data"`
}

// PayloadJSON encodes only the variant payload of n.
func (n Node) PayloadJSON() (json.RawMessage, error) {
	var v any
	switch n.Kind {
	case KindProcess:
		v = n.Process
	case KindTask:
		v = n.Task
	case KindMaster:
		v = n.Master
	default:
		return nil, n.check()
	}
	return json.Marshal(v)
}

// MarshalJSON encodes n in the editor's {id, type, position, data} shape.
func (n Node) MarshalJSON() ([]byte, error) {
	data, err := n.PayloadJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeJSON{ID: n.ID, Type: n.Kind, Position: n.Position, Data: data})
}

// UnmarshalJSON decodes the editor's node shape, picking the payload type
// from the "type" field.
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out, err := DecodeNode(raw.ID, raw.Type, raw.Position, raw.Data)
	if err != nil {
		return err
	}
	*n = out
	return nil
}

// DecodeNode builds a node from its stored parts.
func DecodeNode(id string, kind NodeKind, pos Position, data []byte) (Node, error) {
	if len(data) == 0 {
		data = []byte(`{}`)
	}
	n := Node{ID: id, Kind: kind, Position: pos}
	var err error
	switch kind {
	case KindProcess:
		n.Process = &ProcessData{}
		err = json.Unmarshal(data, n.Process)
	case KindTask:
		n.Task = &TaskData{}
		err = json.Unmarshal(data, n.Task)
	case KindMaster:
		n.Master = &MasterData{}
		err = json.Unmarshal(data, n.Master)
	default:
		return Node{}, n.check()
	}
	if err != nil {
		return Node{}, fmt.Errorf("flow: decode %s node %s: %w", kind, id, err)
	}
	return n, nil
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Template is a saved canvas: the full node and edge set plus bookkeeping.
type Template struct {
	ID       string           `json:"id"`
	Name     string           `json:"name,omitempty"`
	Nodes    []Node           `json:"nodes"`
	Edges    []Edge           `json:"edges"`
	Metadata TemplateMetadata `json:"metadata"`
}

// TemplateMetadata summarises a saved template.
type TemplateMetadata struct {
	NodeCount int       `json:"nodeCount"`
	EdgeCount int       `json:"edgeCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// TaskTemplate is a reusable task or master payload kept in the sidebar.
type TaskTemplate struct {
	ID        string    `json:"id"`
	Kind      NodeKind  `json:"type"`
	Data      TaskData  `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}
