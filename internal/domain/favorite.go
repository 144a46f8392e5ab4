package domain

import "sort"

// FavoriteSet is a set of favorited event ids. Guest favorites and
// authenticated-user favorites live in separate namespaces and are only
// combined through the explicit merge flow.
type FavoriteSet map[int64]struct{}

// NewFavoriteSet builds a set from ids.
func NewFavoriteSet(ids ...int64) FavoriteSet {
	s := make(FavoriteSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s FavoriteSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id.
func (s FavoriteSet) Add(id int64) { s[id] = struct{}{} }

// Remove deletes id.
func (s FavoriteSet) Remove(id int64) { delete(s, id) }

// Clone returns an independent copy.
func (s FavoriteSet) Clone() FavoriteSet {
	c := make(FavoriteSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// IDs returns the members in ascending order.
func (s FavoriteSet) IDs() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Diff computes the net changes that turn base into s: ids present in s but
// not base (add) and ids present in base but not s (remove). The favorites
// flush sends exactly this diff, never a toggle-by-toggle log.
func (s FavoriteSet) Diff(base FavoriteSet) (add, remove []int64) {
	for id := range s {
		if !base.Has(id) {
			add = append(add, id)
		}
	}
	for id := range base {
		if !s.Has(id) {
			remove = append(remove, id)
		}
	}
	sort.Slice(add, func(i, j int) bool { return add[i] < add[j] })
	sort.Slice(remove, func(i, j int) bool { return remove[i] < remove[j] })
	return add, remove
}

// Union returns a new set containing the members of both sets.
func (s FavoriteSet) Union(other FavoriteSet) FavoriteSet {
	u := s.Clone()
	for id := range other {
		u[id] = struct{}{}
	}
	return u
}
