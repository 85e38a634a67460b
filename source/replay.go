package source

// Replay models the interface of the dummy replay source (spec §1, "the
// dummy replay source" — an out-of-scope external collaborator). The real
// implementation would stream a previously captured file back through the
// same Source method table at a configurable rate; only the shape is fixed
// here, matching cmd/fa-capture's treatment of its own out-of-scope
// collaborator.
type Replay struct {
	path string
}

// NewReplay names the file a real replay source would stream from.
func NewReplay(path string) *Replay {
	return &Replay{path: path}
}

func (r *Replay) Initialise() error { return ErrOutOfScope }

func (r *Replay) Read(buf []byte) (int, error) { return 0, ErrOutOfScope }

func (r *Replay) Reset() error { return ErrOutOfScope }

func (r *Replay) Status() Status { return Status{} }

func (r *Replay) Interrupt() {}
