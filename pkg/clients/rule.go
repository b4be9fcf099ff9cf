package clients

import (
	"context"
	"net/http"

	"github.com/Ramsey-B/fern/pkg/models"
)

// RuleClient talks to the program rule and school services. It implements rules.Service.
type RuleClient struct {
	rules   *Client
	schools *Client
}

// NewRuleClient creates a new rule client. schools may be the same client as rules.
func NewRuleClient(rules, schools *Client) *RuleClient {
	if schools == nil {
		schools = rules
	}
	return &RuleClient{rules: rules, schools: schools}
}

// ProgramRequirements lists the requirement rules of a program
func (c *RuleClient) ProgramRequirements(ctx context.Context, program string) ([]models.ProgramRequirement, error) {
	var out []models.ProgramRequirement
	err := c.rules.Do(ctx, http.MethodGet, "/api/v1/program/rules/"+escape(program), nil, nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SpecialCase returns the special case for a label, or nil when there is none
func (c *RuleClient) SpecialCase(ctx context.Context, label string) (*models.SpecialCase, error) {
	var out models.SpecialCase
	err := c.rules.Do(ctx, http.MethodGet, "/api/v1/codes/specialcase/"+escape(label), nil, nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// School returns the school for a code, or nil when there is none
func (c *RuleClient) School(ctx context.Context, code string) (*models.School, error) {
	var out models.School
	err := c.schools.Do(ctx, http.MethodGet, "/api/v1/school/"+escape(code), nil, nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
