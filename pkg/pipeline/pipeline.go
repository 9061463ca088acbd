// Package pipeline runs registration payloads past external validation
// services. The chain is advisory: verdicts become annotations on the
// result, and a failing or unreachable stage never blocks hub work.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/organica-ai/nishub/pkg/config"
	"github.com/organica-ai/nishub/pkg/json"
	"github.com/organica-ai/nishub/pkg/types"
)

// Verdict is one stage's opinion about a payload
type Verdict struct {
	Accepted    bool                   `json:"accepted"`
	Annotations map[string]interface{} `json:"annotations,omitempty"`
}

// Validator is one stage in the advisory chain
type Validator interface {
	// Name returns the stage name
	Name() string

	// Validate submits the payload and returns the stage's verdict
	Validate(ctx context.Context, payload interface{}) (*Verdict, error)
}

// HTTPValidator submits payloads to a collaborator service over HTTP
type HTTPValidator struct {
	name    string
	url     string
	timeout time.Duration
	client  *http.Client
	codec   json.Codec
}

// NewHTTPValidator creates a validator for one collaborator endpoint
func NewHTTPValidator(stage config.PipelineStage, codec json.Codec) *HTTPValidator {
	timeout := stage.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPValidator{
		name:    stage.Name,
		url:     stage.URL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		codec:   codec,
	}
}

func (v *HTTPValidator) Name() string {
	return v.name
}

func (v *HTTPValidator) Validate(ctx context.Context, payload interface{}) (*Verdict, error) {
	body, err := v.codec.Marshal(payload)
	if err != nil {
		return nil, types.ErrSerialization("json", err)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return nil, types.ErrValidationUnavailable(v.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, types.ErrValidationUnavailable(v.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, types.ErrValidationUnavailable(v.name,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, types.ErrValidationUnavailable(v.name, err)
	}

	var verdict Verdict
	if err := v.codec.Unmarshal(data, &verdict); err != nil {
		return nil, types.ErrDeserialization("json", err)
	}
	return &verdict, nil
}

// Chain runs validators in a fixed order and folds their verdicts into
// one annotation map.
type Chain struct {
	validators []Validator
	logf       func(format string, args ...interface{})
}

// NewChain builds a chain from the configured stages. A nil logf
// silences stage failures.
func NewChain(cfg config.PipelineConfig, codec json.Codec, logf func(format string, args ...interface{})) *Chain {
	c := &Chain{logf: logf}
	if !cfg.Enabled {
		return c
	}
	for _, stage := range cfg.Stages {
		c.validators = append(c.validators, NewHTTPValidator(stage, codec))
	}
	return c
}

// NewChainFromValidators builds a chain from explicit validators
func NewChainFromValidators(validators []Validator, logf func(format string, args ...interface{})) *Chain {
	return &Chain{validators: validators, logf: logf}
}

// Len returns the number of configured stages
func (c *Chain) Len() int {
	return len(c.validators)
}

// Run passes the payload through every stage in order. Each stage
// contributes either its annotations or an `unvalidated: true` marker
// when it failed or timed out. Run never returns an error.
func (c *Chain) Run(ctx context.Context, payload interface{}) map[string]interface{} {
	if len(c.validators) == 0 {
		return nil
	}

	annotations := make(map[string]interface{}, len(c.validators))
	for _, v := range c.validators {
		verdict, err := v.Validate(ctx, payload)
		if err != nil {
			if c.logf != nil {
				c.logf("[pipeline] stage %s unavailable: %v", v.Name(), err)
			}
			annotations[v.Name()] = map[string]interface{}{"unvalidated": true}
			continue
		}

		stage := map[string]interface{}{"accepted": verdict.Accepted}
		for k, val := range verdict.Annotations {
			stage[k] = val
		}
		annotations[v.Name()] = stage
	}
	return annotations
}
