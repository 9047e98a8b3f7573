package triage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Action is what a reviewer decided for an item.
type Action string

const (
	ActionAccept Action = "accept"
	ActionSkip   Action = "skip"
	ActionEdit   Action = "edit"
	ActionRefine Action = "refine"
)

// ErrInvalidDecision is returned for decisions that cannot be applied.
var ErrInvalidDecision = errors.New("invalid decision")

// Decision is one scripted review step. Feedback is used by refine, Content
// by edit.
type Decision struct {
	ItemID   string `yaml:"id"`
	Action   Action `yaml:"action"`
	Feedback string `yaml:"feedback,omitempty"`
	Content  string `yaml:"content,omitempty"`
}

type decisionFile struct {
	Decisions []Decision `yaml:"decisions"`
}

// LoadDecisions reads a YAML file with a top-level "decisions" list.
func LoadDecisions(path string) ([]Decision, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read decisions file: %w", err)
	}
	var f decisionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse decisions file %s: %w", path, err)
	}
	for i, d := range f.Decisions {
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("decision %d: %w", i+1, err)
		}
	}
	return f.Decisions, nil
}

func (d Decision) validate() error {
	if d.ItemID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDecision)
	}
	switch d.Action {
	case ActionAccept, ActionSkip:
	case ActionEdit:
		if d.Content == "" {
			return fmt.Errorf("%w: edit of %s has no content", ErrInvalidDecision, d.ItemID)
		}
	case ActionRefine:
		if d.Feedback == "" {
			return fmt.Errorf("%w: refine of %s has no feedback", ErrInvalidDecision, d.ItemID)
		}
	default:
		return fmt.Errorf("%w: unknown action %q for %s", ErrInvalidDecision, d.Action, d.ItemID)
	}
	return nil
}

// Apply runs decisions in order. A refine waits for its result before the
// next decision runs, so "refine then accept" accepts the refined draft.
// Failed decisions are logged and joined into the returned error; the rest
// still run.
func (c *Coordinator) Apply(ctx context.Context, decisions []Decision) error {
	var errs []error
	for _, d := range decisions {
		if err := c.apply(ctx, d); err != nil {
			c.logger.Warn("decision not applied",
				"item_id", d.ItemID,
				"action", d.Action,
				"error", err)
			errs = append(errs, fmt.Errorf("%s %s: %w", d.Action, d.ItemID, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) apply(ctx context.Context, d Decision) error {
	if err := d.validate(); err != nil {
		return err
	}
	switch d.Action {
	case ActionAccept:
		return c.Accept(ctx, d.ItemID)
	case ActionSkip:
		return c.Skip(ctx, d.ItemID)
	case ActionEdit:
		return c.Edit(d.ItemID, d.Content)
	default:
		if _, err := c.RequestRefinement(d.ItemID, d.Feedback); err != nil {
			return err
		}
		return c.WaitForRefinements(ctx)
	}
}
