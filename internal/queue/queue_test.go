package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/common/test/assert"

	"HydroMed/internal/model"
	pkgerrors "HydroMed/pkg/errors"
	"HydroMed/storage/mq"
)

type published struct {
	exchange, routingKey, messageID string
}

func TestProducerAssignsMessageID(t *testing.T) {
	var got []published
	p := NewProducerWith(func(_ context.Context, exchange, routingKey, messageID string, _ interface{}) error {
		got = append(got, published{exchange, routingKey, messageID})
		return nil
	}, func() (int64, error) { return 42, nil })

	err := p.PublishNotificationMissed(context.Background(), model.NotificationMissedMessage{UserID: 1, NotificationIDs: []int64{3}})
	assert.Nil(t, err)
	err = p.PublishAdherenceLogged(context.Background(), model.AdherenceLoggedMessage{MessageID: "fixed", UserID: 1})
	assert.Nil(t, err)

	assert.DeepEqual(t, []published{
		{mq.EventsExchange, model.EventNotificationMissed, "missed_42"},
		{mq.EventsExchange, model.EventAdherenceLogged, "fixed"},
	}, got)
}

func TestProducerIDFailure(t *testing.T) {
	p := NewProducerWith(func(context.Context, string, string, string, interface{}) error {
		t.Fatal("publish should not be called")
		return nil
	}, func() (int64, error) { return 0, errors.New("not initialized") })

	err := p.PublishAdherenceLogged(context.Background(), model.AdherenceLoggedMessage{UserID: 1})
	assert.NotNil(t, err)
}

type fakeInvalidator struct {
	users []int64
	err   error
}

func (f *fakeInvalidator) InvalidateReport(_ context.Context, userID int64) error {
	f.users = append(f.users, userID)
	return f.err
}

type fakeMarker struct {
	state map[string]string
}

func (m *fakeMarker) TryMarkProcessing(_ context.Context, id string, _ time.Duration) (bool, error) {
	if _, ok := m.state[id]; ok {
		return false, nil
	}
	m.state[id] = "processing"
	return true, nil
}

func (m *fakeMarker) Unmark(_ context.Context, id string) error {
	delete(m.state, id)
	return nil
}

func (m *fakeMarker) MarkProcessed(_ context.Context, id string, _ time.Duration) error {
	m.state[id] = "completed"
	return nil
}

func TestHandleEventIsIdempotent(t *testing.T) {
	inv := &fakeInvalidator{}
	marker := &fakeMarker{state: map[string]string{}}
	c := NewConsumer(inv, marker)

	body, _ := json.Marshal(model.AdherenceLoggedMessage{MessageID: "adherence_1", UserID: 7})

	assert.Nil(t, c.HandleEvent(context.Background(), model.EventAdherenceLogged, body))
	assert.DeepEqual(t, "completed", marker.state["adherence_1"])

	err := c.HandleEvent(context.Background(), model.EventAdherenceLogged, body)
	assert.Assert(t, pkgerrors.IsSkip(err))
	assert.DeepEqual(t, []int64{7}, inv.users)
}

func TestHandleEventFailureAllowsRetry(t *testing.T) {
	inv := &fakeInvalidator{err: errors.New("redis down")}
	marker := &fakeMarker{state: map[string]string{}}
	c := NewConsumer(inv, marker)

	body, _ := json.Marshal(model.NotificationMissedMessage{MessageID: "missed_1", UserID: 3})
	err := c.HandleEvent(context.Background(), model.EventNotificationMissed, body)
	assert.NotNil(t, err)
	assert.Assert(t, !pkgerrors.IsSkip(err))
	_, marked := marker.state["missed_1"]
	assert.Assert(t, !marked)
}

func TestHandleEventSkipsUnknownAndMalformed(t *testing.T) {
	c := NewConsumer(&fakeInvalidator{}, &fakeMarker{state: map[string]string{}})
	assert.Assert(t, pkgerrors.IsSkip(c.HandleEvent(context.Background(), "other.event", []byte("{}"))))
	assert.Assert(t, pkgerrors.IsSkip(c.HandleEvent(context.Background(), model.EventNotificationMissed, []byte("not json"))))
}
