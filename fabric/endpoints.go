package fabric

// Endpoints is the set of channel handles owned by one vertex. In[j] receives
// from the neighbor on dimension j and Out[j] sends to it.
type Endpoints struct {
	Vertex int
	In     []*ReadEnd
	Out    []*WriteEnd
}

// Dimension returns the number of channel pairs in the set.
func (e *Endpoints) Dimension() int {
	return len(e.Out)
}

// Close releases every handle in the set. Handles already closed are skipped.
func (e *Endpoints) Close() {
	for _, r := range e.In {
		_ = r.Close()
	}

	for _, w := range e.Out {
		_ = w.Close()
	}
}
