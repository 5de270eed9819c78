/*
matcher.go - Rule applicability

PURPOSE:
  Pure functions deciding which enabled rules apply to a given client.
  No side effects, no store access; callers pass the loaded rule set.

APPLICABILITY:
  ReportAutoCreate: enabled AND client services intersect the trigger
      services AND the optional business-type condition matches.
      Nothing else influences applicability.

  ServiceAutoLink:  enabled AND client has the trigger service AND the
      condition matches AND at least one auto-add service is still missing
      (a rule with nothing left to add is not applicable).

EFFECTIVE SERVICE SET:
  A client's declared services minus any auto-linked dependent whose
  trigger parent is genuinely absent. Only the system-wide cleanup sweep
  uses this; day-to-day matching works on declared services.
*/
package engine

// MatchAutoCreate returns the enabled ReportAutoCreate rules applicable to
// the client, in rule-set order.
func MatchAutoCreate(rules []Rule, client Client) []Rule {
	var out []Rule
	for _, r := range rules {
		if r.Kind != KindReportAutoCreate || !r.Enabled || r.AutoCreate == nil {
			continue
		}
		if !client.Services.Intersects(r.AutoCreate.TriggerServices) {
			continue
		}
		if !r.Condition.Matches(client) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// MatchAutoLink returns the enabled ServiceAutoLink rules applicable to the
// client, in rule-set order.
func MatchAutoLink(rules []Rule, client Client) []Rule {
	var out []Rule
	for _, r := range rules {
		if r.Kind != KindServiceAutoLink || !r.Enabled || r.AutoLink == nil {
			continue
		}
		if !client.Services.Has(r.AutoLink.TriggerService) {
			continue
		}
		if !r.Condition.Matches(client) {
			continue
		}
		if missingServices(client.Services, r.AutoLink.AutoAddServices) == nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

// missingServices returns the services in wanted not present in have,
// preserving order. Nil when nothing is missing.
func missingServices(have ServiceSet, wanted []ServiceType) []ServiceType {
	var out []ServiceType
	for _, svc := range wanted {
		if !have.Has(svc) {
			out = append(out, svc)
		}
	}
	return out
}

// EffectiveServices computes the client's effective service set: declared
// services minus any dependent whose auto-link parent (per the enabled
// ServiceAutoLink rules) is declared but not actually present.
func EffectiveServices(client Client, rules []Rule) ServiceSet {
	parents := make(map[ServiceType][]ServiceType) // dependent -> trigger parents
	for _, r := range rules {
		if r.Kind != KindServiceAutoLink || !r.Enabled || r.AutoLink == nil {
			continue
		}
		for _, dep := range r.AutoLink.AutoAddServices {
			parents[dep] = append(parents[dep], r.AutoLink.TriggerService)
		}
	}

	effective := make(ServiceSet, len(client.Services))
	for svc := range client.Services {
		if !client.Services[svc] {
			continue
		}
		triggers, dependent := parents[svc]
		if dependent && !anyPresent(client.Services, triggers) {
			continue
		}
		effective[svc] = true
	}
	return effective
}

func anyPresent(have ServiceSet, services []ServiceType) bool {
	for _, svc := range services {
		if have.Has(svc) {
			return true
		}
	}
	return false
}
