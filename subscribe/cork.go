package subscribe

// Corker uncorks a client socket once the subscribe header has been
// written, so the kernel flushes it immediately instead of coalescing it
// with the first data block (spec §4.5, "U uncorks the socket after the
// header so real-time clients see low latency").
type Corker interface {
	Uncork() error
}
