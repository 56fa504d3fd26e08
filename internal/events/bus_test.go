package events

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewEvent_AssignsUniqueIDs(t *testing.T) {
	a := NewEvent("import.completed", map[string]interface{}{"task_id": "t-1"})
	b := NewEvent("import.completed", map[string]interface{}{"task_id": "t-1"})

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "import.completed", a.Type)
	assert.False(t, a.Timestamp.IsZero())
}

func TestBus_PublishAndConsume(t *testing.T) {
	bus := NewBus(4, testLogger())

	bus.Publish(NewEvent("product.created", nil))
	bus.Publish(NewEvent("product.updated", nil))
	bus.Close()

	types := []string{}
	for event := range bus.Events() {
		types = append(types, event.Type)
	}
	assert.Equal(t, []string{"product.created", "product.updated"}, types)
}

func TestBus_PublishNeverBlocksWhenFull(t *testing.T) {
	bus := NewBus(2, testLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(NewEvent("import.completed", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full bus")
	}

	bus.Close()
	count := 0
	for range bus.Events() {
		count++
	}
	assert.Equal(t, 2, count) // capacity kept, overflow dropped
}
