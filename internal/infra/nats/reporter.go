package natsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/clicktrail/internal/app/command"
	"go.uber.org/zap"
)

// Publisher is the subset of *nats.Conn used by the reporter.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// ObjectPutter is the subset of nats.ObjectStore used by the reporter.
type ObjectPutter interface {
	Put(meta *nats.ObjectMeta, r io.Reader, opts ...nats.ObjectOpt) (*nats.ObjectInfo, error)
}

// TextMessage is published on the summary subject.
type TextMessage struct {
	ID     string    `json:"id"`
	ChatID string    `json:"chat_id"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// DocumentMessage is published on the document subject once the file is
// stored in the object store under Object.
type DocumentMessage struct {
	ID       string    `json:"id"`
	ChatID   string    `json:"chat_id"`
	Bucket   string    `json:"bucket"`
	Object   string    `json:"object"`
	FileName string    `json:"file_name"`
	Size     uint64    `json:"size"`
	Caption  string    `json:"caption"`
	SentAt   time.Time `json:"sent_at"`
}

// ReporterConfig names the subjects and bucket the reporter writes to.
type ReporterConfig struct {
	SummarySubject  string
	DocumentSubject string
	Bucket          string
}

// Reporter hands reports to the messaging collaborator over NATS.
type Reporter struct {
	pub     Publisher
	objects ObjectPutter
	cfg     ReporterConfig
	logger  *zap.Logger
}

// NewReporter builds a reporter publishing through pub and storing files in objects.
func NewReporter(pub Publisher, objects ObjectPutter, cfg ReporterConfig, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{pub: pub, objects: objects, cfg: cfg, logger: logger}
}

// SendText publishes a text report for chatID.
func (r *Reporter) SendText(ctx context.Context, chatID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := TextMessage{ID: uuid.New().String(), ChatID: chatID, Text: text, SentAt: time.Now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := r.pub.Publish(r.cfg.SummarySubject, data); err != nil {
		return fmt.Errorf("nats: publish summary: %w", err)
	}
	return nil
}

// SendDocument uploads doc and then announces it. Nothing is announced when
// the upload fails.
func (r *Reporter) SendDocument(ctx context.Context, chatID string, doc command.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(doc.Path)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	id := uuid.New().String()
	object := id + "/" + doc.FileName
	info, err := r.objects.Put(&nats.ObjectMeta{
		Name:        object,
		Description: doc.Caption,
	}, f)
	if err != nil {
		return fmt.Errorf("nats: store document: %w", err)
	}

	msg := DocumentMessage{
		ID:       id,
		ChatID:   chatID,
		Bucket:   r.cfg.Bucket,
		Object:   object,
		FileName: doc.FileName,
		Size:     info.Size,
		Caption:  doc.Caption,
		SentAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := r.pub.Publish(r.cfg.DocumentSubject, data); err != nil {
		return fmt.Errorf("nats: publish document: %w", err)
	}

	r.logger.Info("export handed to reporting channel",
		zap.String("chat_id", chatID),
		zap.String("object", object),
		zap.Uint64("size", info.Size),
	)
	return nil
}

var _ command.Reporter = (*Reporter)(nil)
