package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/export"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const baseURL = "http://admin.test/bb2admin/v2"

func newTestClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	c := New(Config{
		BaseURL:     baseURL + "/",
		OperatorUID: "op-7",
		OwnerGroups: "3,4",
		Timeout:     time.Second,
	}, &http.Client{Transport: mt}, zaptest.NewLogger(t))
	return c, mt
}

func TestFetchProcessTemplate(t *testing.T) {
	c, mt := newTestClient(t)
	mt.RegisterResponder(http.MethodGet, baseURL+"/process-template/42",
		func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "op-7", req.Header.Get(UIDHeader))
			return httpmock.NewStringResponse(http.StatusOK, `{
				"id": 42,
				"name": "Onboarding",
				"slug": "onboarding",
				"input_format": {"email": "string"},
				"http_headers": "{\"X-Team\": \"ops\"}",
				"task_templates": [
					{"id": 1, "name": "Create", "slug": "create", "is_active": true},
					{"id": 2, "name": "Welcome", "slug": "welcome", "dependent_task_slug": "create"}
				],
				"child_parent_mappings": {"1": [0], "2": [1]}
			}`), nil
		})

	bp, err := c.FetchProcessTemplate(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, "42", bp.ID)
	require.Equal(t, "onboarding", bp.Process.Slug)
	require.JSONEq(t, `{"email": "string"}`, string(bp.Process.InputFormat))
	require.JSONEq(t, `{"X-Team": "ops"}`, string(bp.Process.Header))
	require.Len(t, bp.Tasks, 2)
	require.EqualValues(t, 2, bp.Tasks[1].ID)
	require.True(t, *bp.Tasks[0].Data.IsActive)
	require.Equal(t, map[int64][]int64{1: {0}, 2: {1}}, bp.Parents)

	s, err := flow.ExpandBlueprint(*bp, flow.Position{})
	require.NoError(t, err)
	order, err := flow.Linearize(s.Tasks())
	require.NoError(t, err)
	require.Equal(t, []string{"create", "welcome"}, order)
}

func TestFetchProcessTemplateNotFound(t *testing.T) {
	c, mt := newTestClient(t)
	mt.RegisterResponder(http.MethodGet, baseURL+"/process-template/9",
		httpmock.NewStringResponder(http.StatusNotFound, `{"message": "process template not found"}`))

	_, err := c.FetchProcessTemplate(context.Background(), "9")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "admin: status 404: process template not found", err.Error())
}

func TestSubmit(t *testing.T) {
	c, mt := newTestClient(t)
	bundle := &export.Bundle{
		Process: export.Process{
			Name:        "Onboarding",
			Slug:        "onboarding",
			InputFormat: json.RawMessage(`{}`),
			HTTPHeaders: json.RawMessage(`{}`),
		},
		Order: []string{"create"},
		CSV:   []byte("name,slug\n\"Create\",\"create\""),
	}

	mt.RegisterResponder(http.MethodPost, baseURL+"/process-and-task-template/",
		func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "op-7", req.Header.Get(UIDHeader))
			require.NoError(t, req.ParseMultipartForm(1<<20))
			require.JSONEq(t, `{
				"name": "Onboarding",
				"slug": "onboarding",
				"input_format": {},
				"http_headers": {},
				"email_list": "",
				"description": ""
			}`, req.FormValue("process_template"))
			require.Equal(t, "3,4", req.FormValue("owner_group_id"))

			f, hdr, err := req.FormFile("task_templates")
			require.NoError(t, err)
			defer f.Close()
			require.Equal(t, export.FileName, hdr.Filename)
			require.Equal(t, "text/csv", hdr.Header.Get("Content-Type"))
			body, err := io.ReadAll(f)
			require.NoError(t, err)
			require.Equal(t, bundle.CSV, body)

			return httpmock.NewStringResponse(http.StatusCreated, `{"id": 1}`), nil
		})

	require.NoError(t, c.Submit(context.Background(), bundle))
	require.Equal(t, 1, mt.GetTotalCallCount())
}

func TestSubmitRejected(t *testing.T) {
	c, mt := newTestClient(t)
	mt.RegisterResponder(http.MethodPost, baseURL+"/process-and-task-template/",
		httpmock.NewStringResponder(http.StatusBadRequest, `[{"slug": "welcome", "reason": "unknown dependency"}]`))

	err := c.Submit(context.Background(), &export.Bundle{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "welcome", apiErr.Slug)
	require.Equal(t, "unknown dependency", apiErr.Reason)

	// Requests are not retried.
	require.Equal(t, 1, mt.GetTotalCallCount())
}

func TestCreateMasterTaskTemplate(t *testing.T) {
	c, mt := newTestClient(t)
	mt.RegisterResponder(http.MethodPost, baseURL+"/master-task-templates",
		func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "application/json", req.Header.Get("Content-Type"))
			var got map[string]any
			require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
			require.Equal(t, "fetch", got["slug"])
			require.Equal(t, map[string]any{"url": "string"}, got["input_format"])
			require.Equal(t, map[string]any{}, got["eta"])
			require.Equal(t, []any{"a", "b"}, got["dependent_task_slug"])
			return httpmock.NewStringResponse(http.StatusCreated, ""), nil
		})

	err := c.CreateMasterTaskTemplate(context.Background(), flow.TaskData{
		Name:              "Fetch",
		Slug:              "fetch",
		InputFormat:       `{"url": "string"}`,
		DependentTaskSlug: flow.NewSlugSet("a", "b"),
	})
	require.NoError(t, err)

	err = c.CreateMasterTaskTemplate(context.Background(), flow.TaskData{Name: "Bad", Slug: "bad", ETA: "{"})
	require.ErrorIs(t, err, flow.ErrMalformedJSONField)
	require.Equal(t, 1, mt.GetTotalCallCount())
}

func TestUpdateMasterTaskTemplate(t *testing.T) {
	c, mt := newTestClient(t)
	mt.RegisterResponder(http.MethodPut, baseURL+"/master-task-templates/15",
		func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "op-7", req.Header.Get(UIDHeader))
			require.Equal(t, "application/json", req.Header.Get("Content-Type"))
			var got map[string]any
			require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
			require.Equal(t, "Fetch v2", got["name"])
			require.Equal(t, map[string]any{"url": "string"}, got["input_format"])
			require.NotContains(t, got, "slug")
			require.NotContains(t, got, "dependent_task_slug")
			require.NotContains(t, got, "bulk_input")
			return httpmock.NewStringResponse(http.StatusOK, ""), nil
		})
	mt.RegisterResponder(http.MethodPut, baseURL+"/master-task-templates/99",
		httpmock.NewStringResponder(http.StatusNotFound, `{"message": "template not found"}`))

	bulk := true
	data := flow.TaskData{
		Name:              "Fetch v2",
		Slug:              "fetch",
		InputFormat:       `{"url": "string"}`,
		DependentTaskSlug: flow.NewSlugSet("a"),
		BulkInput:         &bulk,
	}
	require.NoError(t, c.UpdateMasterTaskTemplate(context.Background(), "15", data))

	err := c.UpdateMasterTaskTemplate(context.Background(), "99", data)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "template not found", apiErr.Message)
	require.Equal(t, 2, mt.GetTotalCallCount())
}

func TestTransportError(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.FetchProcessTemplate(context.Background(), "1")
	require.Error(t, err)
	var apiErr *APIError
	require.False(t, errors.As(err, &apiErr))
}
