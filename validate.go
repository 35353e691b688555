package flow

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/multierr"
)

// ExportOptions tunes pre-export validation.
type ExportOptions struct {
	// AllowIsolatedTasks lets task nodes without any incident edge through.
	AllowIsolatedTasks bool
}

var errSlugComma = errors.New("must not contain a comma")

func noComma(value interface{}) error {
	s, _ := value.(string)
	if strings.Contains(s, ",") {
		return errSlugComma
	}
	return nil
}

// Validate checks the required process fields.
func (d ProcessData) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Name, validation.Required),
		validation.Field(&d.Slug, validation.Required, validation.By(noComma)),
	)
}

// Validate checks the required task fields.
func (d TaskData) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Name, validation.Required),
		validation.Field(&d.Slug, validation.Required, validation.By(noComma)),
		validation.Field(&d.APITimeoutMs, validation.Min(int64(0))),
		validation.Field(&d.DelayMs, validation.Min(int64(0))),
	)
}

type jsonField struct {
	name string
	text JSONText
}

func jsonFields(n Node) []jsonField {
	switch n.Kind {
	case KindProcess:
		if n.Process != nil {
			return []jsonField{
				{"input_format", n.Process.InputFormat},
				{"header", n.Process.Header},
			}
		}
	case KindTask, KindMaster:
		if td := n.taskData(); td != nil {
			return []jsonField{
				{"input_format", td.InputFormat},
				{"output_format", td.OutputFormat},
				{"eta", td.ETA},
			}
		}
	}
	return nil
}

// checkFields reports malformed JSON fields and slugs that would corrupt a
// comma-joined dependency list.
func checkFields(n Node) error {
	var errs error
	for _, f := range jsonFields(n) {
		if err := f.text.Check(); err != nil {
			errs = multierr.Append(errs, &FieldError{Field: f.name, Err: err})
		}
	}
	if slug := n.Slug(); strings.Contains(slug, ",") {
		errs = multierr.Append(errs, fmt.Errorf("%w: slug %q %v", ErrInvalidNode, slug, errSlugComma))
	}
	return errs
}

// ValidateForExport collects every problem that blocks exporting s: a missing
// process node, leftover master nodes, disconnected tasks, duplicate slugs,
// missing required fields and malformed JSON fields.
func ValidateForExport(s GraphState, opts ExportOptions) error {
	var errs error

	process, ok := s.Process()
	if !ok {
		errs = multierr.Append(errs, ErrMissingProcessNode)
	} else {
		errs = multierr.Append(errs, nodeProblems(process, process.Process.Validate()))
	}

	for _, m := range s.Masters() {
		errs = multierr.Append(errs, &NodeError{NodeID: m.ID, Slug: m.Slug(), Err: ErrMasterNodePresent})
	}

	seen := make(map[string]string)
	for _, t := range s.Tasks() {
		if !opts.AllowIsolatedTasks && !s.Incident(t.ID) {
			errs = multierr.Append(errs, &NodeError{NodeID: t.ID, Slug: t.Slug(), Err: ErrDisconnectedTaskNode})
		}
		slug := strings.TrimSpace(t.Slug())
		if first, dup := seen[slug]; dup && slug != "" {
			errs = multierr.Append(errs, &NodeError{NodeID: t.ID, Slug: slug, Err: fmt.Errorf("%w: also used by %s", ErrDuplicateSlug, first)})
		} else {
			seen[slug] = t.ID
		}
		errs = multierr.Append(errs, nodeProblems(t, t.Task.Validate()))
	}
	return errs
}

// nodeProblems wraps the field rule failures and JSON field errors of n.
func nodeProblems(n Node, ruleErr error) error {
	var errs error
	if ruleErr != nil {
		errs = multierr.Append(errs, &NodeError{NodeID: n.ID, Slug: n.Slug(), Err: fmt.Errorf("%w: %v", ErrInvalidNode, ruleErr)})
	}
	for _, err := range multierr.Errors(checkFields(n)) {
		if errors.Is(err, ErrInvalidNode) && ruleErr != nil {
			// Already covered by the slug rule.
			continue
		}
		errs = multierr.Append(errs, &NodeError{NodeID: n.ID, Slug: n.Slug(), Err: err})
	}
	return errs
}

// CheckNode applies the node form rules to n on its own: a payload matching
// its kind, the required fields and well-formed JSON fields.
func CheckNode(n Node) error {
	if err := n.check(); err != nil {
		return err
	}
	var ruleErr error
	switch n.Kind {
	case KindProcess:
		ruleErr = n.Process.Validate()
	default:
		ruleErr = n.taskData().Validate()
	}
	return nodeProblems(n, ruleErr)
}

// CheckTemplate verifies a template before it is stored: no cycles, then
// everything NewGraphState enforces when the template is loaded again.
func CheckTemplate(t *Template) error {
	if err := ValidateAcyclic(t.Nodes, t.Edges); err != nil {
		return err
	}
	_, err := NewGraphState(t.Nodes, t.Edges)
	return err
}
