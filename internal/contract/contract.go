// Package contract holds the OpenAPI description of the backend and checks
// the client's endpoint table and domain enums against it.
package contract

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/felixgeelhaar/hangar/internal/api"
	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/inventory"
)

//go:embed openapi.yaml
var document []byte

// Severity of a finding
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Finding is one mismatch between the client and the contract
type Finding struct {
	Code     string `json:"code" yaml:"code"`
	Subject  string `json:"subject" yaml:"subject"`
	Message  string `json:"message" yaml:"message"`
	Severity string `json:"severity" yaml:"severity"`
}

// Contract is a loaded and validated OpenAPI document
type Contract struct {
	doc *openapi3.T
}

// Load parses the embedded document
func Load(ctx context.Context) (*Contract, error) {
	return LoadFromData(ctx, document)
}

// LoadFromData parses and validates an OpenAPI document
func LoadFromData(ctx context.Context, data []byte) (*Contract, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAPIContract, "failed to load API contract", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAPIContract, "invalid API contract", err)
	}
	return &Contract{doc: doc}, nil
}

// Version is the info.version of the document
func (c *Contract) Version() string {
	if c.doc.Info == nil {
		return ""
	}
	return c.doc.Info.Version
}

// Operations returns "METHOD path" for every operation, sorted
func (c *Contract) Operations() []string {
	var out []string
	for path, item := range c.doc.Paths.Map() {
		for method := range item.Operations() {
			out = append(out, strings.ToUpper(method)+" "+path)
		}
	}
	sort.Strings(out)
	return out
}

// Check compares endpoints and the domain enums with the contract
func (c *Contract) Check(endpoints []api.Endpoint) []Finding {
	var findings []Finding
	for _, ep := range endpoints {
		findings = append(findings, c.checkEndpoint(ep)...)
	}

	findings = append(findings, c.checkEnum("Team", teamNames())...)
	findings = append(findings, c.checkEnum("PartType", partTypeNames())...)
	findings = append(findings, c.checkEnum("PlaneType", planeTypeNames())...)
	return findings
}

func (c *Contract) checkEndpoint(ep api.Endpoint) []Finding {
	item := c.doc.Paths.Find(ep.Path)
	if item == nil {
		return []Finding{{
			Code:     "MISSING_PATH",
			Subject:  ep.String(),
			Message:  fmt.Sprintf("path %s is not in the API contract", ep.Path),
			Severity: SeverityError,
		}}
	}

	op := item.GetOperation(ep.Method)
	if op == nil {
		return []Finding{{
			Code:     "MISSING_METHOD",
			Subject:  ep.String(),
			Message:  fmt.Sprintf("method %s is not defined for %s", ep.Method, ep.Path),
			Severity: SeverityError,
		}}
	}

	var findings []Finding
	secured := op.Security != nil && len(*op.Security) > 0
	if secured != ep.Bearer {
		findings = append(findings, Finding{
			Code:     "BEARER_MISMATCH",
			Subject:  ep.String(),
			Message:  fmt.Sprintf("contract bearer=%t, client bearer=%t", secured, ep.Bearer),
			Severity: SeverityError,
		})
	}
	if op.OperationID != "" && op.OperationID != ep.Name {
		findings = append(findings, Finding{
			Code:     "OPERATION_ID",
			Subject:  ep.String(),
			Message:  fmt.Sprintf("contract names this operation %q, client names it %q", op.OperationID, ep.Name),
			Severity: SeverityWarning,
		})
	}
	return findings
}

func (c *Contract) checkEnum(schema string, values []string) []Finding {
	var ref *openapi3.SchemaRef
	if c.doc.Components != nil {
		ref = c.doc.Components.Schemas[schema]
	}
	if ref == nil || ref.Value == nil {
		return []Finding{{
			Code:     "MISSING_SCHEMA",
			Subject:  schema,
			Message:  fmt.Sprintf("schema %s is not in the API contract", schema),
			Severity: SeverityError,
		}}
	}

	declared := make(map[string]bool, len(ref.Value.Enum))
	for _, v := range ref.Value.Enum {
		declared[fmt.Sprint(v)] = true
	}

	var findings []Finding
	for _, v := range values {
		if !declared[v] {
			findings = append(findings, Finding{
				Code:     "ENUM_MISMATCH",
				Subject:  schema,
				Message:  fmt.Sprintf("%s %s is not accepted by the backend", schema, v),
				Severity: SeverityError,
			})
		}
		delete(declared, v)
	}
	for v := range declared {
		findings = append(findings, Finding{
			Code:     "ENUM_UNKNOWN",
			Subject:  schema,
			Message:  fmt.Sprintf("backend accepts %s %s that the client does not know", schema, v),
			Severity: SeverityWarning,
		})
	}
	return findings
}

func teamNames() []string {
	var out []string
	for _, t := range inventory.Teams() {
		out = append(out, string(t))
	}
	return out
}

func partTypeNames() []string {
	var out []string
	for _, p := range inventory.PartTypes() {
		out = append(out, string(p))
	}
	return out
}

func planeTypeNames() []string {
	var out []string
	for _, p := range inventory.PlaneTypes() {
		out = append(out, string(p))
	}
	return out
}

// HasErrors reports whether any finding is an error
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}
