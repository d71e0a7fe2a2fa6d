package services

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/types"
)

// defaultStylePackYAML is the built-in teaching-style directive pack.
// Deployments can override or extend it with STYLE_PACK_PATH.
const defaultStylePackYAML = `
styles:
  formal:
    directive: >-
      Teach in a formal, rigorous register. Use precise terminology, define
      terms before using them, and keep a strict logical progression from
      fundamentals to conclusions.
    tone: strict
  supportive:
    directive: >-
      Teach in a warm, encouraging register. Acknowledge that the material can
      be difficult, celebrate partial understanding, and close each section
      with an encouraging note.
    tone: encouraging
  socratic:
    directive: >-
      Teach by asking guiding questions before revealing answers. Pose a
      question, let it breathe, then walk through the reasoning to the answer
      step by step.
    tone: question-led
`

type styleDirective struct {
	Directive string `yaml:"directive"`
	Tone      string `yaml:"tone"`
}

type stylePackFile struct {
	Styles map[string]styleDirective `yaml:"styles"`
}

// StylePack resolves a teaching style to its prompt directive.
type StylePack struct {
	styles map[string]styleDirective
}

func LoadStylePack(log *logger.Logger) (*StylePack, error) {
	var base stylePackFile
	if err := yaml.Unmarshal([]byte(defaultStylePackYAML), &base); err != nil {
		return nil, fmt.Errorf("parse built-in style pack: %w", err)
	}

	pack := &StylePack{styles: base.Styles}

	path := strings.TrimSpace(os.Getenv("STYLE_PACK_PATH"))
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read style pack %q: %w", path, err)
		}
		var override stylePackFile
		if err := yaml.Unmarshal(raw, &override); err != nil {
			return nil, fmt.Errorf("parse style pack %q: %w", path, err)
		}
		for name, d := range override.Styles {
			pack.styles[name] = d
		}
		log.Info("Style pack overrides loaded", "path", path, "styles", len(override.Styles))
	}

	return pack, nil
}

// Directive returns the prompt directive for the style, defaulting to the
// supportive register for unknown or empty styles.
func (p *StylePack) Directive(style types.TeachingStyle) string {
	if d, ok := p.styles[string(style)]; ok && strings.TrimSpace(d.Directive) != "" {
		return strings.TrimSpace(d.Directive)
	}
	if d, ok := p.styles[string(types.StyleSupportive)]; ok {
		return strings.TrimSpace(d.Directive)
	}
	return "Teach in a clear, supportive register."
}
