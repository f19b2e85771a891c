package posna

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/grailbio/base/log"
)

// ProgressSink receives progress of a scan. Start is called once with the
// expected number of mapped reads. Add is called as reads are yielded.
// Finish is called once when the scan ends, whether or not it succeeded.
type ProgressSink interface {
	Start(total uint64)
	Add(n uint64)
	Finish()
}

type nopProgress struct{}

func (nopProgress) Start(uint64) {}
func (nopProgress) Add(uint64)   {}
func (nopProgress) Finish()      {}

// NopProgress discards progress.
var NopProgress ProgressSink = nopProgress{}

// progressCounter tracks the count and decides when to report. It reports
// every tenth of the total.
type progressCounter struct {
	total, count, step, next uint64
}

func (c *progressCounter) start(total uint64) {
	c.total = total
	c.step = total / 10
	if c.step == 0 {
		c.step = 1
	}
	c.next = c.step
}

// add returns true if a report is due.
func (c *progressCounter) add(n uint64) bool {
	c.count += n
	if c.count < c.next {
		return false
	}
	for c.next <= c.count {
		c.next += c.step
	}
	return true
}

func (c *progressCounter) percent() float64 {
	if c.total == 0 {
		return 100
	}
	p := float64(c.count) * 100 / float64(c.total)
	if p > 100 {
		p = 100
	}
	return p
}

type logProgress struct {
	mu          sync.Mutex
	description string
	counter     progressCounter
	startTime   time.Time
}

// NewLogProgress creates a sink that logs through grailbio/base/log.
func NewLogProgress(description string) ProgressSink {
	return &logProgress{description: description}
}

func (p *logProgress) Start(total uint64) {
	p.mu.Lock()
	p.counter.start(total)
	p.startTime = time.Now()
	p.mu.Unlock()
	log.Printf("%s: %d mapped reads", p.description, total)
}

func (p *logProgress) Add(n uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counter.add(n) {
		log.Printf("%s: %d/%d reads (%.0f%%)", p.description, p.counter.count, p.counter.total, p.counter.percent())
	}
}

func (p *logProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	log.Printf("%s: done, %d reads in %v", p.description, p.counter.count, time.Since(p.startTime))
}

// ProgressEvent is one line written by a JSON progress sink.
type ProgressEvent struct {
	Op          string  `json:"op"`
	Status      string  `json:"status"`
	Description string  `json:"description"`
	Count       uint64  `json:"count"`
	Total       uint64  `json:"total"`
	Percent     float64 `json:"percent"`
}

type jsonProgress struct {
	mu          sync.Mutex
	enc         *json.Encoder
	op          string
	description string
	counter     progressCounter
}

// NewJSONProgress creates a sink that writes one JSON object per line to w,
// for consumption by a wrapping process. Status is "start", "working", or
// "done".
func NewJSONProgress(w io.Writer, op, description string) ProgressSink {
	return &jsonProgress{enc: json.NewEncoder(w), op: op, description: description}
}

func (p *jsonProgress) emit(status string) {
	ev := ProgressEvent{
		Op:          p.op,
		Status:      status,
		Description: p.description,
		Count:       p.counter.count,
		Total:       p.counter.total,
		Percent:     p.counter.percent(),
	}
	if err := p.enc.Encode(&ev); err != nil {
		log.Error.Printf("posna: writing progress: %v", err)
	}
}

func (p *jsonProgress) Start(total uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counter.start(total)
	p.emit("start")
}

func (p *jsonProgress) Add(n uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counter.add(n) {
		p.emit("working")
	}
}

func (p *jsonProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit("done")
}
