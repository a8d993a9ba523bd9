package config

import (
	"time"

	"github.com/secmon-lab/riskdesk/pkg/service/autosave"
	"github.com/urfave/cli/v3"
)

// Autosave holds the flags of the assessment editor
type Autosave struct {
	debounce time.Duration
}

func (x *Autosave) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "debounce",
			Usage:       "Delay between the last edit and the automatic save (default: 1.2s)",
			Category:    "Autosave",
			Sources:     cli.EnvVars("RISKDESK_AUTOSAVE_DEBOUNCE"),
			Destination: &x.debounce,
		},
	}
}

// Options returns the controller options. Unset flags fall back to the profile.
func (x *Autosave) Options(profile *Profile) ([]autosave.Option, error) {
	if profile == nil {
		profile = &Profile{}
	}
	debounce, err := parseDuration("autosave.debounce", profile.Autosave.Debounce)
	if err != nil {
		return nil, err
	}
	return []autosave.Option{
		autosave.WithDebounce(pick(x.debounce, debounce, autosave.DefaultDebounce)),
	}, nil
}
