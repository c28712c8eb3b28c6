package realtime

type fanoutJob struct {
	clients []*Client
	payload []byte
}

// Fanout copies a frame onto many client queues from a fixed worker pool.
type Fanout struct {
	jobs chan fanoutJob
}

// NewFanout starts the worker pool.
func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 1024
	}
	f := &Fanout{jobs: make(chan fanoutJob, queue)}
	for i := 0; i < workers; i++ {
		go func() {
			for job := range f.jobs {
				for _, c := range job.clients {
					c.enqueue(job.payload)
				}
			}
		}()
	}
	return f
}

// Broadcast queues payload for clients; it blocks only while the job queue is full.
func (f *Fanout) Broadcast(clients []*Client, payload []byte) {
	if len(clients) == 0 || len(payload) == 0 {
		return
	}
	f.jobs <- fanoutJob{clients: clients, payload: payload}
}

// Close stops the workers once queued jobs drain.
func (f *Fanout) Close() {
	close(f.jobs)
}
