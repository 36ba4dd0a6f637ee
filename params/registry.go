package params

// ReadFunc reads a parameter's current value. maxLength bounds the
// returned slice (MaxLength by convention).
type ReadFunc func(maxLength int) ([]byte, error)

// WriteFunc writes a new parameter value.
type WriteFunc func(value []byte) error

// Descriptor maps one message_type to its read/write implementations;
// either may be nil if the operation is unsupported.
type Descriptor struct {
	MessageType uint8
	Read        ReadFunc
	Write       WriteFunc
}

// Registry is a table of parameter descriptors keyed by message_type.
type Registry struct {
	byType map[uint8]Descriptor
}

// NewRegistry builds a Registry from a descriptor table in one call,
// mirroring the C original's w_param_init(table, table_count) rather
// than one-at-a-time registration.
func NewRegistry(table []Descriptor) *Registry {
	r := &Registry{byType: make(map[uint8]Descriptor, len(table))}
	for _, d := range table {
		r.byType[d.MessageType] = d
	}
	return r
}

func (r *Registry) lookup(messageType uint8) (Descriptor, bool) {
	d, ok := r.byType[messageType]
	return d, ok
}
