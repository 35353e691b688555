// Package admin talks to the remote admin API that stores process and task
// templates.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/export"
	"go.uber.org/zap"
)

// UIDHeader carries the operator identifier on every request.
const UIDHeader = "bb-decoded-uid"

// Config holds the admin API coordinates.
type Config struct {
	BaseURL     string
	OperatorUID string
	OwnerGroups string
	Timeout     time.Duration
}

// Client calls the admin API. Requests are never retried.
type Client struct {
	cfg Config
	hc  *http.Client
	log *zap.Logger
}

// New returns a client. A nil hc gets a client with cfg.Timeout.
func New(cfg Config, hc *http.Client, log *zap.Logger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, hc: hc, log: log}
}

// APIError is a non-2xx answer from the admin API.
type APIError struct {
	Status  int
	Slug    string
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	switch {
	case e.Slug != "" || e.Reason != "":
		return fmt.Sprintf("admin: status %d: %s: %s", e.Status, orUnknown(e.Slug), orUnknown(e.Reason))
	case e.Message != "":
		return fmt.Sprintf("admin: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("admin: status %d", e.Status)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

type remoteTask struct {
	ID int64 `json:"id"`
	flow.TaskData
}

type processTemplateResponse struct {
	ID                  json.Number       `json:"id"`
	Name                string            `json:"name"`
	Slug                string            `json:"slug"`
	Description         string            `json:"description"`
	InputFormat         flow.JSONText     `json:"input_format"`
	HTTPHeaders         flow.JSONText     `json:"http_headers"`
	EmailList           string            `json:"email_list"`
	TaskTemplates       []remoteTask      `json:"task_templates"`
	ChildParentMappings map[int64][]int64 `json:"child_parent_mappings"`
}

// FetchProcessTemplate loads a remote process template with its tasks and
// dependency mapping.
func (c *Client) FetchProcessTemplate(ctx context.Context, id string) (*flow.ProcessBlueprint, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/process-template/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var resp processTemplateResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	bp := &flow.ProcessBlueprint{
		ID: id,
		Process: flow.ProcessData{
			Name:        resp.Name,
			Slug:        resp.Slug,
			Description: resp.Description,
			InputFormat: resp.InputFormat,
			Header:      resp.HTTPHeaders,
			EmailList:   resp.EmailList,
		},
		Parents: resp.ChildParentMappings,
	}
	for _, t := range resp.TaskTemplates {
		bp.Tasks = append(bp.Tasks, flow.BlueprintTask{ID: t.ID, Data: t.TaskData})
	}
	return bp, nil
}

// Submit uploads a process template with its task CSV.
func (c *Client) Submit(ctx context.Context, b *export.Bundle) error {
	process, err := json.Marshal(b.Process)
	if err != nil {
		return fmt.Errorf("admin: encode process template: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("process_template", string(process)); err != nil {
		return err
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="task_templates"; filename=%q`, export.FileName))
	hdr.Set("Content-Type", "text/csv")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return err
	}
	if _, err := part.Write(b.CSV); err != nil {
		return err
	}
	if err := mw.WriteField("owner_group_id", c.cfg.OwnerGroups); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/process-and-task-template/", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := c.do(req, nil); err != nil {
		return err
	}
	c.log.Info("process template submitted", zap.String("slug", b.Process.Slug), zap.Int("tasks", len(b.Order)))
	return nil
}

// CreateMasterTaskTemplate publishes a task payload as a reusable master
// task template.
func (c *Client) CreateMasterTaskTemplate(ctx context.Context, d flow.TaskData) error {
	payload, err := masterPayload(d)
	if err != nil {
		return err
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("admin: encode master task template: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/master-task-templates", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// UpdateMasterTaskTemplate replaces the editable fields of the remote master
// task template id. The slug, the dependency list and bulk_input are fixed
// once the template exists and are not sent.
func (c *Client) UpdateMasterTaskTemplate(ctx context.Context, id string, d flow.TaskData) error {
	payload, err := masterPayload(d)
	if err != nil {
		return err
	}
	for _, field := range []string{"slug", "dependent_task_slug", "bulk_input"} {
		delete(payload, field)
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("admin: encode master task template: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPut, "/master-task-templates/"+url.PathEscape(id), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.do(req, nil); err != nil {
		return err
	}
	c.log.Info("master task template updated", zap.String("id", id), zap.String("name", d.Name))
	return nil
}

// masterPayload sends the JSON text fields as JSON values and the
// dependency list as an array.
func masterPayload(d flow.TaskData) (map[string]any, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	for field, text := range map[string]flow.JSONText{
		"input_format":  d.InputFormat,
		"output_format": d.OutputFormat,
		"eta":           d.ETA,
	} {
		v, err := text.Value()
		if err != nil {
			return nil, &flow.FieldError{Field: field, Err: err}
		}
		out[field] = v
	}
	deps := d.DependentTaskSlug.Slice()
	if deps == nil {
		deps = []string{}
	}
	out["dependent_task_slug"] = deps
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("admin: build request: %w", err)
	}
	if c.cfg.OperatorUID != "" {
		req.Header.Set(UIDHeader, c.cfg.OperatorUID)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("admin: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("admin: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp.StatusCode, body)
		c.log.Warn("admin request failed",
			zap.String("method", req.Method), zap.String("path", req.URL.Path), zap.Error(apiErr))
		return apiErr
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("admin: decode response: %w", err)
	}
	return nil
}

// decodeError understands both [{slug, reason}] and {message} bodies.
func decodeError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	var list []struct {
		Slug   string `json:"slug"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		e.Slug, e.Reason = list[0].Slug, list[0].Reason
		return e
	}
	var single struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &single); err == nil {
		e.Message = single.Message
	}
	return e
}
