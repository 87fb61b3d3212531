package service

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/clicktrail/internal/app/model"
)

// HitPublisher publishes recorded hits to NATS JetStream.
type HitPublisher struct {
	js nats.JetStreamContext
}

// NewHitPublisher creates a hit publisher on the given JetStream context.
func NewHitPublisher(js nats.JetStreamContext) *HitPublisher {
	return &HitPublisher{js: js}
}

// Notify publishes notice to the hit stream subject.
func (p *HitPublisher) Notify(notice model.HitNotice) error {
	if notice.ID == "" {
		notice.ID = uuid.New().String()
	}

	data, err := json.Marshal(notice)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.HitStreamSubject, data, nats.MsgId(notice.ID))
	return err
}
