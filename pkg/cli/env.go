package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/cli/config"
	"github.com/secmon-lab/riskdesk/pkg/usecase"
	"github.com/secmon-lab/riskdesk/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// environment holds the flags shared by every command and builds the use
// cases from them
type environment struct {
	version  string
	profile  config.ProfileFile
	client   config.Client
	cache    config.Cache
	autosave config.Autosave
}

func (e *environment) Flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, e.profile.Flags()...)
	flags = append(flags, e.client.Flags()...)
	flags = append(flags, e.cache.Flags()...)
	flags = append(flags, e.autosave.Flags()...)
	return flags
}

// open builds the use cases. The returned function releases the cache.
func (e *environment) open(ctx context.Context, opts ...usecase.Option) (*usecase.UseCases, func(), error) {
	profile, err := e.profile.Load()
	if err != nil {
		return nil, nil, err
	}

	api, err := e.client.Configure(profile, e.version)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to configure API client")
	}

	q, err := e.cache.Configure(ctx, profile)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to configure query cache")
	}
	closer := func() {
		if err := q.Close(); err != nil {
			logging.Default().Error("failed to close query cache", "error", err.Error())
		}
	}

	autosaveOpts, err := e.autosave.Options(profile)
	if err != nil {
		closer()
		return nil, nil, err
	}

	opts = append([]usecase.Option{usecase.WithAutosaveOptions(autosaveOpts...)}, opts...)
	return usecase.New(api, q, opts...), closer, nil
}

// loadProfile is used by commands that need profile values beyond the
// shared ones
func (e *environment) loadProfile() (*config.Profile, error) {
	return e.profile.Load()
}
