package runtime

import (
	"fmt"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// DecodeActionConfig decodes a raw config map. Unknown keys are ignored so
// that handlers can carry their own extras.
func DecodeActionConfig(raw map[string]any) (domain.ActionConfig, error) {
	var cfg domain.ActionConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(raw); err != nil {
		return cfg, fmt.Errorf("decode post action config: %w", err)
	}
	if cfg.Placement == "" {
		cfg.Placement = domain.PlaceSelf
	}
	switch cfg.Placement {
	case domain.PlaceSelf, domain.PlaceParent:
	case domain.PlaceSpecific:
		if cfg.TargetPromptID == "" {
			return cfg, fmt.Errorf("placement %q requires targetPromptId", cfg.Placement)
		}
	default:
		return cfg, fmt.Errorf("unknown placement %q", cfg.Placement)
	}
	switch cfg.ChildNodeType {
	case "", domain.NodeTypeStandard, domain.NodeTypeQuestion, domain.NodeTypeAction:
	default:
		return cfg, fmt.Errorf("unknown child node type %q", cfg.ChildNodeType)
	}
	return cfg, nil
}
