// Package catalog registers every integration and script shipped with the
// runner.
package catalog

import (
	"github.com/siem-soar-platform/integrations/pkg/connector"
	"github.com/siem-soar-platform/integrations/services/integrations/internal/akamai"
	"github.com/siem-soar-platform/integrations/services/integrations/internal/awsorg"
	"github.com/siem-soar-platform/integrations/services/integrations/internal/ciphertrust"
	"github.com/siem-soar-platform/integrations/services/integrations/internal/druva"
	"github.com/siem-soar-platform/integrations/services/integrations/internal/githubfeed"
	"github.com/siem-soar-platform/integrations/services/integrations/internal/redmine"
	"github.com/siem-soar-platform/integrations/services/integrations/internal/sailpoint"
	"github.com/siem-soar-platform/integrations/services/integrations/internal/scripts/awshierarchy"
	"github.com/siem-soar-platform/integrations/services/integrations/internal/scripts/splunkdrilldown"
	"github.com/siem-soar-platform/integrations/services/integrations/internal/venafi"
)

var factories = map[string]connector.Factory{
	akamai.ID:      akamai.New,
	awsorg.ID:      awsorg.New,
	ciphertrust.ID: ciphertrust.New,
	druva.ID:       druva.New,
	githubfeed.ID:  githubfeed.New,
	redmine.ID:     redmine.New,
	sailpoint.ID:   sailpoint.New,
	venafi.ID:      venafi.New,
}

// Registry returns a registry holding all integrations and scripts.
func Registry() (*connector.Registry, error) {
	reg := connector.NewRegistry()
	for id, factory := range factories {
		if err := reg.RegisterFactory(id, factory); err != nil {
			return nil, err
		}
	}

	for _, s := range []connector.Script{awshierarchy.New(), splunkdrilldown.New()} {
		if err := reg.RegisterScript(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
