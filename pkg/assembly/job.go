package assembly

import (
	"fmt"
	"sync"

	"github.com/twinj/uuid"

	"seismicrop/internal/models"
)

// Job buffers the predicted crops of one grid as they arrive, in any order
// and from any goroutine, and aggregates them once every cell is present.
type Job struct {
	ID     string
	Layout *Layout

	mu       sync.Mutex
	crops    []*models.Array3D
	received int
	done     bool
}

// NewJob returns an empty job for layout.
func NewJob(layout *Layout) *Job {
	return &Job{
		ID:     uuid.NewV4().String(),
		Layout: layout,
		crops:  make([]*models.Array3D, layout.Len()),
	}
}

// Add stores the crop predicted for grid cell i.
func (j *Job) Add(i int, c *models.Array3D) error {
	if c == nil {
		return fmt.Errorf("job %s: nil crop for cell %d", j.ID, i)
	}
	if c.Shape != j.Layout.CropShape {
		return fmt.Errorf("job %s: crop for cell %d has shape %s, grid expects %s", j.ID, i, c.Shape, j.Layout.CropShape)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.done {
		return fmt.Errorf("job %s already aggregated", j.ID)
	}
	if i < 0 || i >= len(j.crops) {
		return fmt.Errorf("job %s: cell %d outside grid of %d cells", j.ID, i, len(j.crops))
	}
	if j.crops[i] != nil {
		return fmt.Errorf("job %s: cell %d received twice", j.ID, i)
	}
	j.crops[i] = c
	j.received++
	return nil
}

// Received returns the number of cells with a crop.
func (j *Job) Received() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.received
}

// Ready reports whether every cell has a crop.
func (j *Job) Ready() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.received == len(j.crops)
}

// Aggregate reduces the buffered crops. It fails with *IncompleteGridError
// until every cell has arrived and may then be called once; the buffers are
// released afterwards.
func (j *Job) Aggregate(reducer Reducer) (*models.Array3D, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.done {
		return nil, fmt.Errorf("job %s already aggregated", j.ID)
	}
	if j.received != len(j.crops) {
		return nil, &IncompleteGridError{Expected: len(j.crops), Received: j.received}
	}
	out, err := Aggregate(j.Layout, j.crops, reducer)
	if err != nil {
		return nil, err
	}
	j.done = true
	j.crops = nil
	return out, nil
}
