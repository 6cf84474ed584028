package bind_group_provider

// Pseudo bindings that let a BufferWrite target a provider's mesh buffers instead of a bind group buffer.
const (
	VertexBinding = -1
	IndexBinding  = -2
)

// BufferWrite describes a single GPU buffer write operation targeting a specific binding
// on a BindGroupProvider at a given byte offset.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  int
	Offset   uint64
	Data     []byte
}

// Size returns the number of bytes the write covers.
func (w BufferWrite) Size() int {
	return len(w.Data)
}
