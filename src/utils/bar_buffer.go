package utils

import (
	"trade-scanner/src/models"
)

// -----------------------------------------------------------------------------
// BarBuffer is a fixed-size circular buffer of bars.
// True ring buffer - no resizing allowed!
// -----------------------------------------------------------------------------

type BarBuffer struct {
	data     []models.MBar
	capacity int
	index    int // Next write position
	size     int // Current number of elements
	total    int // Bars appended over the buffer lifetime
}

// -----------------------------------------------------------------------------

// NewBarBuffer creates a new buffer with fixed capacity
func NewBarBuffer(capacity int) *BarBuffer {
	if capacity <= 0 {
		capacity = 500 // Default reasonable size
	}

	return &BarBuffer{
		data:     make([]models.MBar, capacity),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// Append adds a bar, dropping the oldest when full.
func (bb *BarBuffer) Append(bar models.MBar) {
	bb.data[bb.index] = bar
	bb.index = (bb.index + 1) % bb.capacity
	bb.total++

	// Update size (never exceeds capacity)
	if bb.size < bb.capacity {
		bb.size++
	}
}

// -----------------------------------------------------------------------------

// GetLatest returns the n latest bars, oldest first.
func (bb *BarBuffer) GetLatest(n int) []models.MBar {
	if bb.size == 0 || n <= 0 {
		return []models.MBar{}
	}

	count := n
	if n > bb.size {
		count = bb.size
	}

	result := make([]models.MBar, count)

	// Latest data is at index-1
	startIdx := (bb.index - count + bb.capacity) % bb.capacity
	for i := 0; i < count; i++ {
		result[i] = bb.data[(startIdx+i)%bb.capacity]
	}

	return result
}

// -----------------------------------------------------------------------------

// GetAll returns all bars in insertion order (oldest to newest)
func (bb *BarBuffer) GetAll() []models.MBar {
	if bb.size == 0 {
		return []models.MBar{}
	}

	result := make([]models.MBar, bb.size)

	var startIdx int
	if bb.size == bb.capacity {
		// Buffer is full, oldest is at current index (wrap-around)
		startIdx = bb.index
	}

	for i := 0; i < bb.size; i++ {
		result[i] = bb.data[(startIdx+i)%bb.capacity]
	}

	return result
}

// -----------------------------------------------------------------------------

// Last returns the most recent bar and whether one exists.
func (bb *BarBuffer) Last() (models.MBar, bool) {
	if bb.size == 0 {
		return models.MBar{}, false
	}
	idx := (bb.index - 1 + bb.capacity) % bb.capacity
	return bb.data[idx], true
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (bb *BarBuffer) Size() int {
	return bb.size
}

// -----------------------------------------------------------------------------

// Total returns how many bars were appended over the buffer lifetime,
// including bars that were dropped on overflow.
func (bb *BarBuffer) Total() int {
	return bb.total
}

// -----------------------------------------------------------------------------

// Capacity returns buffer capacity (fixed)
func (bb *BarBuffer) Capacity() int {
	return bb.capacity
}

// -----------------------------------------------------------------------------

// IsFull returns whether buffer is full
func (bb *BarBuffer) IsFull() bool {
	return bb.size == bb.capacity
}

// -----------------------------------------------------------------------------

// Clear resets the buffer
func (bb *BarBuffer) Clear() {
	bb.index = 0
	bb.size = 0
	bb.total = 0
}
