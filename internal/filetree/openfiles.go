package filetree

// OpenFiles tracks the paths the user has opened for viewing, in insertion
// order with duplicates suppressed, plus a pointer to the file currently in
// focus.
type OpenFiles struct {
	order   []string
	open    map[string]struct{}
	current string
}

// NewOpenFiles creates an empty open-file set.
func NewOpenFiles() *OpenFiles {
	return &OpenFiles{open: make(map[string]struct{})}
}

// Open adds a path to the set (if absent) and focuses it.
func (o *OpenFiles) Open(path string) {
	if _, ok := o.open[path]; !ok {
		o.open[path] = struct{}{}
		o.order = append(o.order, path)
	}
	o.current = path
}

// Close removes a path from the set. When the focused file is closed, focus
// falls back to the first remaining open file, or clears if none are left.
func (o *OpenFiles) Close(path string) {
	if _, ok := o.open[path]; !ok {
		return
	}
	delete(o.open, path)
	for i, p := range o.order {
		if p == path {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	if o.current == path {
		if len(o.order) > 0 {
			o.current = o.order[0]
		} else {
			o.current = ""
		}
	}
}

// Current returns the focused path, or "" when nothing is focused.
func (o *OpenFiles) Current() string {
	return o.current
}

// List returns the open paths in insertion order.
func (o *OpenFiles) List() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}
