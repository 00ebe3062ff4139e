package config

import (
	"encoding/json"
	"fmt"
)

// FlexibleLayout accepts either a bare string naming a layout template
// (e.g. "2x2", "main-left") or a full inline layout object, matching the
// shape the original's orchestrator_config.json tolerates for its "layout"
// field.
type FlexibleLayout struct {
	TemplateName string
	Kind         string         `json:"kind,omitempty"`
	Rows         int            `json:"rows,omitempty"`
	Cols         int            `json:"cols,omitempty"`
	MainPct      int            `json:"main_pct,omitempty"`
	Splits       []LayoutSplit  `json:"splits,omitempty"`
}

// LayoutSplit mirrors layout.Split for JSON (un)marshaling without making
// this package depend on internal/layout).
type LayoutSplit struct {
	Target    int    `json:"target"`
	Direction string `json:"direction"`
	SizePct   int    `json:"size_pct"`
}

func (f *FlexibleLayout) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		f.TemplateName = name
		return nil
	}

	type alias FlexibleLayout
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("layout: must be a template name string or a layout object: %w", err)
	}
	*f = FlexibleLayout(a)
	return nil
}

func (f FlexibleLayout) MarshalJSON() ([]byte, error) {
	if f.TemplateName != "" && f.Kind == "" {
		return json.Marshal(f.TemplateName)
	}
	type alias FlexibleLayout
	return json.Marshal(alias(f))
}
