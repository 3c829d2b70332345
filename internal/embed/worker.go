package embed

// Inference runs on an isolated worker goroutine so model loading and
// encoding never block the caller's goroutine directly. Communication is
// message passing: requests and responses are correlated by id, and
// termination is an explicit signal rather than channel teardown.

// inferenceRequest asks the worker to encode one text.
type inferenceRequest struct {
	id    uint64
	text  string
	reply chan inferenceResponse
}

// inferenceResponse carries the result back, tagged with the request id.
type inferenceResponse struct {
	id     uint64
	vector []float32
	tokens int
	err    error
}

// inferenceWorker owns the encoder state and serializes inference.
type inferenceWorker struct {
	requests  chan inferenceRequest
	terminate chan struct{}
	done      chan struct{}
	dims      int
}

func newInferenceWorker(dims int) *inferenceWorker {
	w := &inferenceWorker{
		requests:  make(chan inferenceRequest),
		terminate: make(chan struct{}),
		done:      make(chan struct{}),
		dims:      dims,
	}
	go w.run()
	return w
}

func (w *inferenceWorker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.terminate:
			return
		case req := <-w.requests:
			resp := inferenceResponse{
				id:     req.id,
				vector: hashEncode(req.text, w.dims),
				tokens: estimateTokens(req.text),
			}
			select {
			case req.reply <- resp:
			case <-w.terminate:
				return
			}
		}
	}
}

// stop signals termination and waits for the worker to exit.
func (w *inferenceWorker) stop() {
	close(w.terminate)
	<-w.done
}
