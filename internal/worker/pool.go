// Package worker runs background jobs on a fixed pool fed by a bounded
// queue. Submission is non-blocking: when the queue is full the job is
// rejected with ErrQueueFull so the caller can surface the failure
// instead of the work being dropped silently.
package worker

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned by SubmitJob when the job queue is at capacity.
var ErrQueueFull = errors.New("job queue is full")

// Job represents a unit of work to be executed.
type Job interface {
	Execute() error // The method that performs the actual work
	ID() string     // A unique identifier for the job
}

// Worker is responsible for processing jobs.
// It runs in its own goroutine and pulls jobs from its own channel after
// registering that channel with the shared worker pool.
type Worker struct {
	ID         int
	WorkerPool chan chan Job   // A pool of channels, used to register this worker's job channel
	JobChannel chan Job        // A channel specific to this worker, to receive jobs
	Quit       chan bool       // A channel to signal the worker to stop
	Wg         *sync.WaitGroup // To signal when this worker has finished
	Log        *logrus.Logger
}

// NewWorker creates a new Worker.
func NewWorker(id int, workerPool chan chan Job, wg *sync.WaitGroup, log *logrus.Logger) Worker {
	return Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Quit:       make(chan bool),
		Wg:         wg,
		Log:        log,
	}
}

// Start makes the Worker listen for jobs on its JobChannel.
func (w Worker) Start() {
	w.Wg.Add(1)
	go func() {
		defer w.Wg.Done()
		for {
			// Register the current worker's JobChannel to the worker pool.
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Log.Infof("Worker %d: Started job %s", w.ID, job.ID())
				if err := job.Execute(); err != nil {
					w.Log.Errorf("Worker %d: Error processing job %s: %v", w.ID, job.ID(), err)
				} else {
					w.Log.Infof("Worker %d: Finished job %s", w.ID, job.ID())
				}
			case <-w.Quit:
				w.Log.Infof("Worker %d: Stopping", w.ID)
				return
			}
		}
	}()
}

// Stop signals the worker to stop processing new jobs.
func (w Worker) Stop() {
	go func() {
		w.Quit <- true
	}()
}

// Dispatcher manages a pool of workers and dispatches jobs to them.
type Dispatcher struct {
	MaxWorkers int
	WorkerPool chan chan Job // A pool of worker job channels
	JobQueue   chan Job      // A buffered channel for incoming jobs
	Workers    []Worker
	Wg         sync.WaitGroup // To wait for all workers to finish
	Quit       chan bool      // To signal the dispatcher and workers to stop
	Log        *logrus.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(maxWorkers int, jobQueueSize int, log *logrus.Logger) *Dispatcher {
	jobQueue := make(chan Job, jobQueueSize)
	workerPool := make(chan chan Job, maxWorkers)
	return &Dispatcher{
		MaxWorkers: maxWorkers,
		WorkerPool: workerPool,
		JobQueue:   jobQueue,
		Workers:    make([]Worker, 0, maxWorkers),
		Quit:       make(chan bool),
		Log:        log,
	}
}

// Run starts the dispatcher and its workers.
func (d *Dispatcher) Run() {
	d.Log.Infof("Dispatcher starting with %d workers...", d.MaxWorkers)
	for i := 1; i <= d.MaxWorkers; i++ {
		worker := NewWorker(i, d.WorkerPool, &d.Wg, d.Log)
		d.Workers = append(d.Workers, worker)
		worker.Start()
	}

	go d.dispatch()
}

// dispatch listens to the JobQueue and sends jobs to available workers.
func (d *Dispatcher) dispatch() {
	for {
		select {
		case job := <-d.JobQueue:
			// A job request has been received. Try to obtain a worker job channel.
			go func(job Job) {
				// Wait for a worker to become available.
				jobChannel := <-d.WorkerPool
				// Dispatch the job to the worker's job channel.
				jobChannel <- job
			}(job)
		case <-d.Quit: // If dispatcher is told to quit
			d.Log.Info("Dispatcher: Stopping dispatch loop")
			return
		}
	}
}

// SubmitJob adds a job to the job queue. It never blocks; a full queue
// rejects the job with ErrQueueFull.
func (d *Dispatcher) SubmitJob(job Job) error {
	select {
	case d.JobQueue <- job:
		d.Log.Infof("Dispatcher: Job %s submitted to queue.", job.ID())
		return nil
	default:
		d.Log.Warnf("Dispatcher: Job queue full. Job %s could not be submitted.", job.ID())
		return ErrQueueFull
	}
}

// Stop gracefully shuts down the dispatcher and all its workers.
func (d *Dispatcher) Stop() {
	d.Log.Info("Dispatcher: Initiating shutdown...")
	// Signal the dispatch loop to stop.
	d.Quit <- true

	// Signal all workers to stop.
	for _, worker := range d.Workers {
		worker.Stop()
	}

	// Wait for all workers to complete their current jobs and exit.
	d.Wg.Wait()
	d.Log.Info("Dispatcher: Shutdown complete.")
}
