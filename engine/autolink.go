/*
autolink.go - Service-link resolution

PURPOSE:
  Applies the "auto add related service" rules to clients: a client with
  the trigger service gets the rule's dependent services added to their
  declared service list. Independent of record generation - the next
  preview pass picks the new services up.
*/
package engine

import (
	"context"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// SERVICE-LINK RESOLVER
// =============================================================================

type LinkResolver struct {
	Store ClientStore
	Rules RuleStore
	Log   logrus.FieldLogger
}

func NewLinkResolver(store ClientStore, rules RuleStore, log logrus.FieldLogger) *LinkResolver {
	return &LinkResolver{Store: store, Rules: rules, Log: log}
}

// Apply adds the missing auto-linked services to one client and returns
// what was added. No write is issued when nothing is missing.
func (r *LinkResolver) Apply(ctx context.Context, client Client, rules []Rule) ([]ServiceType, error) {
	var added []ServiceType
	updated := make(ServiceSet, len(client.Services))
	for svc := range client.Services {
		updated[svc] = client.Services[svc]
	}

	for _, rule := range MatchAutoLink(rules, client) {
		for _, svc := range rule.AutoLink.AutoAddServices {
			if !updated.Has(svc) {
				updated[svc] = true
				added = append(added, svc)
			}
		}
	}
	if len(added) == 0 {
		return nil, nil
	}

	if err := r.Store.UpdateClientServices(ctx, client.ID, updated.List()); err != nil {
		return nil, err
	}
	r.Log.WithFields(logrus.Fields{
		"client":   client.Name,
		"services": added,
	}).Info("auto-linked services added")
	return added, nil
}

// ApplyAll runs Apply over every active client. A failure on one client is
// logged and the pass continues; the first error is reported at the end.
func (r *LinkResolver) ApplyAll(ctx context.Context) (map[ClientID][]ServiceType, error) {
	rules, _, err := r.Rules.LoadRules(ctx)
	if err != nil {
		return nil, &ScanError{Stage: "load rules", Err: err}
	}
	clients, err := r.Store.ListClients(ctx)
	if err != nil {
		return nil, &ScanError{Stage: "list clients", Err: err}
	}

	added := make(map[ClientID][]ServiceType)
	var firstErr error
	for _, client := range clients {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		if !client.Active {
			continue
		}
		services, err := r.Apply(ctx, client, rules)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			r.Log.WithField("client", client.ID).WithError(err).Warn("auto-link failed, continuing")
			continue
		}
		if len(services) > 0 {
			added[client.ID] = services
		}
	}
	return added, firstErr
}
