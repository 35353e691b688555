// Package export turns a canvas into the payloads the admin API accepts: a
// JSON process template and a CSV of task templates in dependency order.
package export

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/meikuraledutech/flow"
)

// Columns is the fixed header of the task template CSV.
var Columns = []string{
	"name", "slug", "description", "help_text", "input_format", "output_format",
	"dependent_task_slug", "host", "bulk_input", "input_http_method", "api_endpoint",
	"api_timeout_in_ms", "response_type", "is_json_input_needed", "task_type",
	"is_active", "is_optional", "eta", "service_id", "email_list", "delay_in_ms",
	"master_task_template_slug", "action",
}

// WriteTasks writes the header and one row per task node, in the given
// order. Every value is wrapped in double quotes with inner quotes doubled;
// absent values are written as "". Rows are separated by a single newline
// and the last row is not terminated.
func WriteTasks(w io.Writer, tasks []flow.Node) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(Columns, ",")); err != nil {
		return err
	}
	for _, n := range tasks {
		if n.Task == nil {
			continue
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
		for i, v := range row(n.Task) {
			if i > 0 {
				if err := bw.WriteByte(','); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(quote(v)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func row(d *flow.TaskData) []string {
	delay := int64(0)
	if d.DelayMs != nil {
		delay = *d.DelayMs
	}
	return []string{
		d.Name,
		d.Slug,
		d.Description,
		d.HelpText,
		string(d.InputFormat),
		string(d.OutputFormat),
		d.DependentTaskSlug.String(),
		d.Host,
		formatBool(d.BulkInput),
		formatInt(d.InputHTTPMethod),
		d.APIEndpoint,
		formatInt(d.APITimeoutMs),
		formatInt(d.ResponseType),
		formatBool(d.IsJSONInputNeeded),
		formatInt(d.TaskType),
		formatBool(d.IsActive),
		formatBool(d.IsOptional),
		string(d.ETA),
		formatInt(d.ServiceID),
		d.EmailList,
		strconv.FormatInt(delay, 10),
		d.MasterTaskTemplateSlug,
		d.Action,
	}
}

func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

func formatBool(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

func formatInt(i *int64) string {
	if i == nil {
		return ""
	}
	return strconv.FormatInt(*i, 10)
}
