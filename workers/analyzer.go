package workers

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wingscope/backend/analysis"
	"github.com/wingscope/backend/apperrors"
	"github.com/wingscope/backend/media"
	"github.com/wingscope/backend/realtime"
	"github.com/wingscope/backend/session"
)

// AnalysisJob is one record's trip through the detection pipeline.
type AnalysisJob struct {
	RecordID string
	BatchID  string
}

// BatchStatus is a progress snapshot for one analysis batch.
type BatchStatus struct {
	BatchID   string `json:"batch_id"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Done      bool   `json:"done"`
}

// Batch tracks the settlement of one submission. Total is snapshotted at
// start; the completion counter increments exactly once per record, in
// whatever order records finish.
type Batch struct {
	ID    string
	total int
	order []string // submission order, drives the final rename tiebreak

	mu        sync.Mutex
	completed int
	done      chan struct{}
}

// Status returns the batch's progress counters.
func (b *Batch) Status() BatchStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BatchStatus{
		BatchID:   b.ID,
		Total:     b.total,
		Completed: b.completed,
		Done:      b.completed == b.total,
	}
}

// Done closes once every record in the batch has settled.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Analyzer drives batches of records through normalization, downscaling
// and the remote detection call on a bounded worker pool. Per-record
// failures land on the record itself and never abort siblings.
type Analyzer struct {
	JobQueue chan AnalysisJob
	Store    *session.Store
	Client   *analysis.Client
	Hub      *realtime.Hub
	MaxEdge  int
	Timeout  time.Duration
	Wg       sync.WaitGroup
	StopChan chan struct{}

	mu      sync.Mutex
	batches map[string]*Batch
	pending map[string]bool // record IDs currently queued or in flight
}

func NewAnalyzer(store *session.Store, client *analysis.Client, hub *realtime.Hub, queueSize, numWorkers, maxEdge int, timeout time.Duration) *Analyzer {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	a := &Analyzer{
		JobQueue: make(chan AnalysisJob, queueSize),
		Store:    store,
		Client:   client,
		Hub:      hub,
		MaxEdge:  maxEdge,
		Timeout:  timeout,
		StopChan: make(chan struct{}),
		batches:  make(map[string]*Batch),
		pending:  make(map[string]bool),
	}
	a.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go a.worker(i)
	}
	log.Printf("Started %d analysis worker(s) with queue size %d", numWorkers, queueSize)
	return a
}

// StartBatch snapshots the records behind ids as one batch and queues a
// job per record. IDs that are unknown, duplicated within the submission,
// or already in flight from another batch are dropped from the snapshot.
// An empty selection yields a batch that is already done with total 0.
func (a *Analyzer) StartBatch(ids []string) *Batch {
	a.mu.Lock()
	seen := make(map[string]bool, len(ids))
	var order []string
	for _, id := range ids {
		if id == "" || seen[id] || a.pending[id] {
			continue
		}
		if _, ok := a.Store.Get(id); !ok {
			continue
		}
		seen[id] = true
		a.pending[id] = true
		order = append(order, id)
	}
	b := &Batch{
		ID:    uuid.NewString(),
		total: len(order),
		order: order,
		done:  make(chan struct{}),
	}
	if b.total == 0 {
		close(b.done)
	}
	a.batches[b.ID] = b
	a.mu.Unlock()

	if b.total == 0 {
		return b
	}

	for _, id := range order {
		a.Store.MarkUploading(id)
	}
	go func() {
		for _, id := range order {
			select {
			case a.JobQueue <- AnalysisJob{RecordID: id, BatchID: b.ID}:
			case <-a.StopChan:
				return
			}
		}
	}()
	log.Printf("Analysis batch %s started with %d record(s)", b.ID, b.total)
	return b
}

// BatchStatus looks up progress for a batch by ID.
func (a *Analyzer) BatchStatus(id string) (BatchStatus, bool) {
	a.mu.Lock()
	b, ok := a.batches[id]
	a.mu.Unlock()
	if !ok {
		return BatchStatus{}, false
	}
	return b.Status(), true
}

func (a *Analyzer) worker(id int) {
	defer a.Wg.Done()
	log.Printf("Analysis worker %d started", id)
	for {
		select {
		case job, ok := <-a.JobQueue:
			if !ok {
				log.Printf("Analysis worker %d stopping: Job queue closed", id)
				return
			}
			a.processJob(id, job)
		case <-a.StopChan:
			log.Printf("Analysis worker %d stopping: Stop signal received", id)
			return
		}
	}
}

// processJob runs one record's pipeline end to end. Every exit path
// settles the record exactly once so the batch counter stays honest.
func (a *Analyzer) processJob(workerID int, job AnalysisJob) {
	b := a.batch(job.BatchID)
	if b == nil {
		log.Printf("Worker %d: ERROR unknown batch %s for record %s", workerID, job.BatchID, job.RecordID)
		return
	}

	rec, ok := a.Store.Get(job.RecordID)
	if !ok {
		a.settle(b, job.RecordID, "error", "record removed before analysis")
		return
	}

	// normalize JPEG sources to PNG; a failed re-encode keeps the
	// original bytes, an undecodable source fails the record
	if !media.IsPNG(rec.MimeType, rec.Filename) {
		png, err := media.TranscodeToPNG(rec.Source)
		switch {
		case err == nil:
			if updated, rerr := a.Store.ReplaceSource(rec.ID, png, "image/png"); rerr == nil {
				rec = updated
			} else {
				log.Printf("Worker %d: ERROR swapping transcoded source for %s: %v", workerID, rec.Filename, rerr)
			}
		case apperrors.IsKind(err, apperrors.KindDecode):
			a.failRecord(b, rec.ID, err.Error())
			return
		default:
			log.Printf("Worker %d: transcode failed for %s, keeping original: %v", workerID, rec.Filename, err)
		}
	}

	if !rec.HasDimensions() {
		w, h, err := media.ProbeDimensions(rec.Source)
		if err != nil {
			a.failRecord(b, rec.ID, err.Error())
			return
		}
		a.Store.SetDimensions(rec.ID, w, h)
		if rec, ok = a.Store.Get(rec.ID); !ok {
			a.settle(b, job.RecordID, "error", "record removed before analysis")
			return
		}
	}
	width, height := *rec.Width, *rec.Height

	payload := rec.Source
	if resized, err := media.ResizeForUpload(rec.Source, width, height, a.MaxEdge); err == nil {
		payload = resized
	} else {
		log.Printf("Worker %d: resize failed for %s, uploading original: %v", workerID, rec.Filename, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.Timeout)
	result, err := a.Client.Analyze(ctx, rec.Filename, payload, width, height)
	cancel()
	if err != nil {
		a.failRecord(b, rec.ID, err.Error())
		return
	}

	if _, err := a.Store.ApplyAnalysis(rec.ID, result.Landmarks, result.NeedsReview); err != nil {
		a.failRecord(b, rec.ID, err.Error())
		return
	}
	a.settle(b, rec.ID, "done", "")
}

// failRecord marks the record failed and settles it in one step.
func (a *Analyzer) failRecord(b *Batch, recordID, message string) {
	a.Store.SetError(recordID, message)
	a.settle(b, recordID, "error", message)
}

// settle advances the batch counter for one record and broadcasts the new
// progress. The final settlement applies the batch's .dw.png renames and
// closes the done channel.
func (a *Analyzer) settle(b *Batch, recordID, status, errMsg string) {
	a.mu.Lock()
	delete(a.pending, recordID)
	a.mu.Unlock()

	b.mu.Lock()
	b.completed++
	completed := b.completed
	finished := completed == b.total
	b.mu.Unlock()

	if a.Hub != nil {
		a.Hub.Broadcast(realtime.Event{
			Type:      realtime.EventAnalyze,
			BatchID:   b.ID,
			RecordID:  recordID,
			Status:    status,
			Error:     errMsg,
			Completed: completed,
			Total:     b.total,
			Timestamp: time.Now().Unix(),
		})
	}

	if finished {
		a.Store.FinalizeBatchNames(b.order)
		if a.Hub != nil {
			a.Hub.Broadcast(realtime.Event{
				Type:      realtime.EventAnalyze,
				BatchID:   b.ID,
				Status:    "batch_done",
				Completed: completed,
				Total:     b.total,
				Timestamp: time.Now().Unix(),
			})
		}
		close(b.done)
	}
}

func (a *Analyzer) batch(id string) *Batch {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.batches[id]
}

func (a *Analyzer) Stop() {
	log.Println("Stopping analysis workers...")
	close(a.StopChan)
	a.Wg.Wait()
	log.Println("All analysis workers stopped")
}
