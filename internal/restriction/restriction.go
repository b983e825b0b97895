// Package restriction maps dietary restriction ids to a compact bitmask.
//
// Restriction ids are 1-based database ids. Id n is stored in bit n-1, so
// bit 0 is used by id 1 and no bit is wasted. The mask is 64 bits wide,
// which caps the supported ids at MaxID; this is a scalability limit of
// the storage format (restrictions are persisted as BIGINT UNSIGNED).
package restriction

import "fmt"

// MaxID is the largest restriction id that fits in a Mask.
const MaxID = 64

// Mask is a set of restriction ids packed into a bitset.
type Mask uint64

// ErrOutOfRange is returned by Encode for ids outside 1..MaxID.
type ErrOutOfRange struct {
	ID int
}

func (e ErrOutOfRange) Error() string {
	return fmt.Sprintf("restriction id %d out of range 1..%d", e.ID, MaxID)
}

// Encode packs ids into a Mask. Duplicates are harmless and an empty
// slice yields 0.
func Encode(ids []int) (Mask, error) {
	var m Mask
	for _, id := range ids {
		if id < 1 || id > MaxID {
			return 0, ErrOutOfRange{ID: id}
		}
		m |= 1 << uint(id-1)
	}
	return m, nil
}

// Decode unpacks m into ascending restriction ids. Decode(0) is empty.
func Decode(m Mask) []int {
	ids := []int{}
	for pos := 0; m != 0; pos++ {
		if m&1 == 1 {
			ids = append(ids, pos+1)
		}
		m >>= 1
	}
	return ids
}

// Covers reports whether every bit of required is also set in m. Extra
// bits in m are irrelevant.
func (m Mask) Covers(required Mask) bool {
	return m&required == required
}

// Union merges masks.
func Union(masks ...Mask) Mask {
	var out Mask
	for _, x := range masks {
		out |= x
	}
	return out
}
