package policy

// ActivationResult is the outcome of a pre-activation conflict check.
// HIGH-severity conflicts block; everything else is surfaced as a
// warning the author may acknowledge.
type ActivationResult struct {
	Allowed  bool       `json:"allowed"`
	Blocking []Conflict `json:"blocking,omitempty"`
	Warnings []Conflict `json:"warnings,omitempty"`
}

// ValidateBeforeActivation checks a candidate policy against the
// company's existing live policies. The candidate is compared as if it
// were already active; its stored status is ignored.
func (d *Detector) ValidateBeforeActivation(candidate Policy, existing []Policy) ActivationResult {
	candidate.Status = StatusActive

	result := ActivationResult{Allowed: true}
	for _, other := range existing {
		if other.ID == candidate.ID || !other.Status.Live() {
			continue
		}
		c := d.comparePair(candidate, other)
		if c == nil {
			continue
		}
		if c.Severity == SeverityHigh {
			result.Allowed = false
			result.Blocking = append(result.Blocking, *c)
		} else {
			result.Warnings = append(result.Warnings, *c)
		}
	}
	return result
}
