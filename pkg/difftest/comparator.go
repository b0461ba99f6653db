package difftest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vdbdiff/vdbdiff/pkg/vdb"
)

// DefaultOverlapThreshold is the minimum Jaccard overlap two result sets
// may have before a search is flagged as divergent.
const DefaultOverlapThreshold = 0.5

// Comparator classifies disagreement between the per-service results of a
// single test case. It never judges which service is right; it only
// records that they differ, and how badly.
type Comparator struct {
	overlapThreshold float64
}

func NewComparator(overlapThreshold float64) *Comparator {
	if overlapThreshold <= 0 || overlapThreshold > 1 {
		overlapThreshold = DefaultOverlapThreshold
	}
	return &Comparator{overlapThreshold: overlapThreshold}
}

// Compare inspects the settled results of one case and returns every
// inconsistency found. Success divergence dominates: when services split
// on success the payloads are incomparable and no content comparison runs.
func (c *Comparator) Compare(tc TestCase, results []DatabaseResult, excluded []string) []Inconsistency {
	var found []Inconsistency

	if len(excluded) == 1 {
		found = append(found, Inconsistency{
			Kind:        KindServiceExcluded,
			Services:    []string{excluded[0]},
			Description: fmt.Sprintf("%s excluded by health check, comparison ran without it", excluded[0]),
			Severity:    SeverityInformational,
		})
	}

	var succeeded, failed []DatabaseResult
	for _, r := range results {
		if r.Success {
			succeeded = append(succeeded, r)
		} else {
			failed = append(failed, r)
		}
	}

	if len(succeeded) > 0 && len(failed) > 0 {
		found = append(found, c.successDivergence(succeeded, failed))
		return found
	}
	if len(succeeded) < 2 {
		return found
	}

	switch tc.Op {
	case OpInsert, OpBatchInsert:
		found = append(found, c.compareInserts(succeeded)...)
	case OpSearch, OpBatchSearch:
		found = append(found, c.compareSearches(succeeded)...)
	case OpDelete:
		found = append(found, c.compareDeletes(succeeded)...)
	case OpMixed:
		found = append(found, c.compareMixed(succeeded)...)
	}
	return found
}

func (c *Comparator) successDivergence(succeeded, failed []DatabaseResult) Inconsistency {
	okNames := serviceNames(succeeded)
	var parts []string
	for _, r := range failed {
		parts = append(parts, fmt.Sprintf("%s failed (%s: %s)", r.Service, r.Error.Kind, firstLine(r.Error.Message)))
	}
	return Inconsistency{
		Kind:     KindSuccessDivergence,
		Services: append(okNames, serviceNames(failed)...),
		Description: fmt.Sprintf("accepted by %s; %s",
			strings.Join(okNames, ", "), strings.Join(parts, "; ")),
		Severity: SeverityErrorDivergent,
	}
}

// compareSearches overlays the result sets query by query. Hit sets are
// compared as unordered id sets via Jaccard overlap; scores are not
// compared because the services normalize distances differently.
func (c *Comparator) compareSearches(succeeded []DatabaseResult) []Inconsistency {
	var found []Inconsistency
	base := succeeded[0]
	for _, other := range succeeded[1:] {
		if len(other.Data.Searches) != len(base.Data.Searches) {
			found = append(found, Inconsistency{
				Kind:     KindResultDivergence,
				Services: []string{base.Service, other.Service},
				Description: fmt.Sprintf("query count mismatch: %s answered %d queries, %s answered %d",
					base.Service, len(base.Data.Searches), other.Service, len(other.Data.Searches)),
				Severity: SeverityDivergent,
			})
			continue
		}
		for qi := range base.Data.Searches {
			a := hitIDs(base.Data.Searches[qi])
			b := hitIDs(other.Data.Searches[qi])
			overlap := jaccard(a, b)
			if overlap < c.overlapThreshold {
				found = append(found, Inconsistency{
					Kind:     KindResultDivergence,
					Services: []string{base.Service, other.Service},
					Description: fmt.Sprintf("query %d: result overlap %.2f below threshold %.2f (%s: %d hits, %s: %d hits)",
						qi, overlap, c.overlapThreshold, base.Service, len(a), other.Service, len(b)),
					Severity: SeverityDivergent,
				})
			}
		}
	}
	return found
}

func (c *Comparator) compareInserts(succeeded []DatabaseResult) []Inconsistency {
	var found []Inconsistency
	base := succeeded[0]
	for _, other := range succeeded[1:] {
		if len(other.Data.InsertedIDs) != len(base.Data.InsertedIDs) {
			found = append(found, Inconsistency{
				Kind:     KindResultDivergence,
				Services: []string{base.Service, other.Service},
				Description: fmt.Sprintf("insert count mismatch: %s stored %d, %s stored %d",
					base.Service, len(base.Data.InsertedIDs), other.Service, len(other.Data.InsertedIDs)),
				Severity: SeverityDivergent,
			})
		}
	}
	return found
}

func (c *Comparator) compareDeletes(succeeded []DatabaseResult) []Inconsistency {
	var found []Inconsistency
	base := succeeded[0]
	for _, other := range succeeded[1:] {
		if base.Data.Removed == nil || other.Data.Removed == nil {
			continue
		}
		if *other.Data.Removed != *base.Data.Removed {
			found = append(found, Inconsistency{
				Kind:     KindResultDivergence,
				Services: []string{base.Service, other.Service},
				Description: fmt.Sprintf("delete count mismatch: %s removed %d, %s removed %d",
					base.Service, *base.Data.Removed, other.Service, *other.Data.Removed),
				Severity: SeverityDivergent,
			})
		}
	}
	return found
}

// compareMixed lines up the execution traces. Services must agree on how
// far the sequence got and on the success of every step that ran.
func (c *Comparator) compareMixed(succeeded []DatabaseResult) []Inconsistency {
	var found []Inconsistency
	base := succeeded[0]
	for _, other := range succeeded[1:] {
		if len(other.Data.Sub) != len(base.Data.Sub) {
			found = append(found, Inconsistency{
				Kind:     KindResultDivergence,
				Services: []string{base.Service, other.Service},
				Description: fmt.Sprintf("mixed sequence diverged: %s executed %d sub-operations, %s executed %d",
					base.Service, len(base.Data.Sub), other.Service, len(other.Data.Sub)),
				Severity: SeverityDivergent,
			})
			continue
		}
		for i := range base.Data.Sub {
			if base.Data.Sub[i].Success != other.Data.Sub[i].Success {
				found = append(found, Inconsistency{
					Kind:     KindResultDivergence,
					Services: []string{base.Service, other.Service},
					Description: fmt.Sprintf("mixed sub-operation %d (%s): %s and %s disagree on success",
						i, base.Data.Sub[i].Op, base.Service, other.Service),
					Severity: SeverityDivergent,
				})
			}
		}
	}
	return found
}

// jaccard computes |a ∩ b| / |a ∪ b| over id sets. Two empty sets are in
// perfect agreement.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	set := make(map[string]uint8, len(a)+len(b))
	for _, id := range a {
		set[id] |= 1
	}
	for _, id := range b {
		set[id] |= 2
	}
	var inter int
	for _, bits := range set {
		if bits == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}

func hitIDs(hits []vdb.SearchHit) []string {
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	return ids
}

func serviceNames(results []DatabaseResult) []string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Service)
	}
	sort.Strings(names)
	return names
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 160 {
		s = s[:160] + "..."
	}
	return s
}
