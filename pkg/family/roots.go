package family

import "time"

// RootSet is the ordered result of root selection.
type RootSet struct {
	// Roots are in person collection order.
	Roots []*Person

	// Fallback is set when no person lacked a parent and the earliest-born
	// person was chosen instead.
	Fallback bool
}

// IDs returns the root person ids in order.
func (rs RootSet) IDs() []int64 {
	ids := make([]int64, len(rs.Roots))
	for i, p := range rs.Roots {
		ids[i] = p.ID
	}
	return ids
}

// SelectRoots picks the persons the hierarchy starts from.
//
// Candidates are persons that no edge names as a child. A married candidate
// is dropped when its spouse has a parent, since the spouse's subtree will
// carry it, and of two parentless spouses only the smaller id is kept.
//
// When every person has a parent, the single earliest-born person becomes the
// root and the marriage filter is not applied. A missing birth date counts as
// now, so dated persons are preferred; ties keep collection order.
func SelectRoots(g *Graph, now time.Time) RootSet {
	if g.Empty() {
		return RootSet{}
	}

	var candidates []*Person
	for i := range g.Persons {
		p := &g.Persons[i]
		if !g.HasParent(p.ID) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return RootSet{Roots: []*Person{oldest(g.Persons, now)}, Fallback: true}
	}

	roots := make([]*Person, 0, len(candidates))
	for _, p := range candidates {
		spouse, married := g.SpouseOf(p.ID)
		if !married {
			roots = append(roots, p)
			continue
		}
		if g.HasParent(spouse.ID) {
			continue
		}
		if p.ID < spouse.ID {
			roots = append(roots, p)
		}
	}
	return RootSet{Roots: roots}
}

func oldest(persons []Person, now time.Time) *Person {
	best := &persons[0]
	bestDate := birthOrNow(best, now)
	for i := 1; i < len(persons); i++ {
		if d := birthOrNow(&persons[i], now); d.Before(bestDate) {
			best, bestDate = &persons[i], d
		}
	}
	return best
}

func birthOrNow(p *Person, now time.Time) time.Time {
	if p.BirthDate.IsZero() {
		return now
	}
	return p.BirthDate
}
