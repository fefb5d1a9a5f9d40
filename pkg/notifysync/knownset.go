package notifysync

// knownSet remembers notification ids already accounted for. Once full, the
// oldest id is forgotten first.
type knownSet struct {
	max   int
	ids   map[string]struct{}
	order []string
}

func newKnownSet(max int) *knownSet {
	return &knownSet{
		max: max,
		ids: make(map[string]struct{}),
	}
}

func (k *knownSet) Has(id string) bool {
	_, ok := k.ids[id]
	return ok
}

// Add reports false when id was already present.
func (k *knownSet) Add(id string) bool {
	if k.Has(id) {
		return false
	}
	k.ids[id] = struct{}{}
	k.order = append(k.order, id)
	for k.max > 0 && len(k.order) > k.max {
		delete(k.ids, k.order[0])
		k.order = k.order[1:]
	}
	return true
}

func (k *knownSet) Len() int {
	return len(k.ids)
}
