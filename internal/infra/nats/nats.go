package natsclient

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/clicktrail/config"
	"github.com/sifan077/clicktrail/internal/app/model"
)

const defaultConnectTimeout = 5 * time.Second

// Connect creates a NATS connection (with JetStream available) using application config.
func Connect(cfg config.NATSConfig) (*nats.Conn, nats.JetStreamContext, error) {
	opts := []nats.Option{
		nats.Timeout(defaultConnectTimeout),
		nats.Name("clicktrail"),
	}

	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(buildURL(cfg), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("nats: connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("nats: init jetstream: %w", err)
	}

	return conn, js, nil
}

// EnsureHitStream creates the stream receiving recorded hits when missing.
func EnsureHitStream(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(model.HitStreamName); err == nil {
		return nil
	}
	_, err := js.AddStream(&nats.StreamConfig{
		Name:     model.HitStreamName,
		Subjects: []string{model.HitStreamSubject},
		MaxBytes: model.HitStreamMaxBytes,
	})
	if err != nil {
		return fmt.Errorf("nats: create hit stream: %w", err)
	}
	return nil
}

// EnsureObjectStore opens the export bucket, creating it when missing.
func EnsureObjectStore(js nats.JetStreamContext, bucket string) (nats.ObjectStore, error) {
	if store, err := js.ObjectStore(bucket); err == nil {
		return store, nil
	}
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "click export artifacts",
	})
	if err != nil {
		return nil, fmt.Errorf("nats: create object store %q: %w", bucket, err)
	}
	return store, nil
}

func buildURL(cfg config.NATSConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 4222
	}
	return fmt.Sprintf("nats://%s:%d", host, port)
}
