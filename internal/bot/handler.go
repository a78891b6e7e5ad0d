package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/internal/observability"
	"github.com/your-org/facebot/internal/storage"
)

const (
	cmdGetFace = "/getface"
	cmdFind    = "/find"

	sourceFace  = "face"
	sourcePhoto = "photo"
)

// ErrNoFaceID means a labeling reply quoted a caption without a [face id].
var ErrNoFaceID = errors.New("caption carries no face id")

var faceIDPattern = regexp.MustCompile(`\[(.*?)\]`)

type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendPhotoURL(ctx context.Context, chatID int64, photoURL, caption string) error
	SendPhotoBytes(ctx context.Context, chatID int64, name string, data []byte, caption string) error
}

type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, ev models.FaceEvent) error
}

type HandlerConfig struct {
	Sessions storage.SessionFactory
	Sender   Sender
	// Objects and the bucket names are used to upload photos directly when
	// GatewayURL is empty.
	Objects      ObjectGetter
	Events       EventPublisher
	BotName      string
	GatewayURL   string
	FacesBucket  string
	PhotosBucket string
	Messages     config.Messages
}

// Handler answers bot updates.
type Handler struct {
	cfg HandlerConfig
}

func NewHandler(cfg HandlerConfig) *Handler {
	cfg.GatewayURL = strings.TrimRight(cfg.GatewayURL, "/")
	return &Handler{cfg: cfg}
}

// Handle processes one update. Updates without a message are ignored. Errors
// from the table store or the Bot API are returned to the caller.
func (h *Handler) Handle(ctx context.Context, upd *Update) error {
	msg := upd.Message
	if msg == nil {
		slog.Debug("update without message ignored", "update_id", upd.UpdateID)
		return nil
	}
	chatID, ok := msg.chatID()
	if !ok {
		slog.Warn("message without sender ignored", "update_id", upd.UpdateID)
		return nil
	}

	repo, err := h.cfg.Sessions.Session(ctx)
	if err != nil {
		return fmt.Errorf("open table session: %w", err)
	}
	defer repo.Release()

	start := time.Now()
	kind, err := h.route(ctx, repo, chatID, msg)
	observability.BotCommands.WithLabelValues(kind).Inc()
	observability.StageDuration.WithLabelValues("bot").Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	slog.Info("bot update handled", "update_id", upd.UpdateID, "chat_id", chatID, "kind", kind)
	return nil
}

func (h *Handler) route(ctx context.Context, repo storage.FaceRepository, chatID int64, msg *Message) (string, error) {
	if msg.Text == "" {
		return "no_text", h.cfg.Sender.SendMessage(ctx, chatID, h.cfg.Messages.Unknown)
	}

	cmd, rest := h.splitCommand(msg.Text)
	switch {
	case cmd == cmdGetFace:
		return "getface", h.getFace(ctx, repo, chatID)
	case cmd == cmdFind:
		return "find", h.find(ctx, repo, chatID, rest)
	case h.isLabelReply(msg):
		return "label", h.label(ctx, repo, chatID, msg)
	default:
		return "unknown", h.cfg.Sender.SendMessage(ctx, chatID, h.cfg.Messages.Unknown)
	}
}

// splitCommand returns the leading command token without an @botname suffix
// addressed to this bot, and the trimmed remainder of the text.
func (h *Handler) splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, rest, _ := strings.Cut(text, " ")
	if name, mention, ok := strings.Cut(cmd, "@"); ok && strings.EqualFold(mention, h.cfg.BotName) {
		cmd = name
	}
	return cmd, strings.TrimSpace(rest)
}

func (h *Handler) getFace(ctx context.Context, repo storage.FaceRepository, chatID int64) error {
	face, err := repo.FirstUnnamedFace(ctx)
	if errors.Is(err, storage.ErrFaceNotFound) {
		return h.cfg.Sender.SendMessage(ctx, chatID, h.cfg.Messages.AllIdentified)
	}
	if err != nil {
		return err
	}
	caption := fmt.Sprintf("[%s]\n\n%s", face.FaceID, h.cfg.Messages.WhoIsThis)
	return h.sendPhoto(ctx, chatID, sourceFace, face.FaceID, caption)
}

// find searches by the whole trimmed remainder of the command, so multi-word
// names like "Mary Ann" are one name rather than a first argument.
func (h *Handler) find(ctx context.Context, repo storage.FaceRepository, chatID int64, name string) error {
	if name == "" {
		return h.cfg.Sender.SendMessage(ctx, chatID, h.cfg.Messages.FindUsage)
	}

	photos, err := repo.FindPhotosByPerson(ctx, name)
	if err != nil {
		return err
	}
	if len(photos) == 0 {
		return h.cfg.Sender.SendMessage(ctx, chatID, fmt.Sprintf(h.cfg.Messages.NotFound, name))
	}
	for _, p := range photos {
		if err := h.sendPhoto(ctx, chatID, sourcePhoto, p.OriginalPhotoID, ""); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) isLabelReply(msg *Message) bool {
	r := msg.ReplyToMessage
	return r != nil &&
		r.From != nil && r.From.Username == h.cfg.BotName &&
		len(r.Photo) > 0 &&
		r.Caption != ""
}

func (h *Handler) label(ctx context.Context, repo storage.FaceRepository, chatID int64, msg *Message) error {
	faceID, err := ExtractFaceID(msg.ReplyToMessage.Caption)
	if err != nil {
		return h.cfg.Sender.SendMessage(ctx, chatID, h.cfg.Messages.LabelError)
	}
	name := strings.TrimSpace(msg.Text)
	if name == "" {
		return h.cfg.Sender.SendMessage(ctx, chatID, h.cfg.Messages.LabelError)
	}

	face, err := repo.FaceByFaceID(ctx, faceID)
	if errors.Is(err, storage.ErrFaceNotFound) {
		slog.Warn("label reply for unknown face dropped", "face_id", faceID, "chat_id", chatID)
		observability.BotCommands.WithLabelValues("label_missing").Inc()
		return nil
	}
	if err != nil {
		return err
	}

	err = repo.SetPersonName(ctx, face.FaceID, name, face.OriginalPhotoID)
	if errors.Is(err, storage.ErrFaceNotFound) {
		slog.Warn("face disappeared before labeling", "face_id", faceID)
		return nil
	}
	if err != nil {
		return err
	}

	if h.cfg.Events != nil {
		ev := models.FaceEvent{
			Type:            models.FaceEventLabeled,
			FaceID:          face.FaceID,
			OriginalPhotoID: face.OriginalPhotoID,
			PersonName:      name,
			Timestamp:       time.Now().UTC(),
		}
		if err := h.cfg.Events.PublishEvent(ctx, ev); err != nil {
			slog.Warn("publish face event", "error", err, "face_id", face.FaceID)
		}
	}

	return h.cfg.Sender.SendMessage(ctx, chatID, h.cfg.Messages.LabelSaved)
}

// ExtractFaceID returns the first bracketed token of a caption.
func ExtractFaceID(caption string) (string, error) {
	m := faceIDPattern.FindStringSubmatch(caption)
	if m == nil {
		return "", ErrNoFaceID
	}
	return m[1], nil
}

// PhotoURL builds the public gateway address of a stored object.
func PhotoURL(gatewayURL, source, objectID string) string {
	return strings.TrimRight(gatewayURL, "/") + "/" + source + "/" + objectID
}

func (h *Handler) sendPhoto(ctx context.Context, chatID int64, source, objectID, caption string) error {
	if h.cfg.GatewayURL != "" {
		return h.cfg.Sender.SendPhotoURL(ctx, chatID, PhotoURL(h.cfg.GatewayURL, source, objectID), caption)
	}

	bucket := h.cfg.PhotosBucket
	if source == sourceFace {
		bucket = h.cfg.FacesBucket
	}
	data, err := h.cfg.Objects.GetObject(ctx, bucket, objectID)
	if err != nil {
		return err
	}
	return h.cfg.Sender.SendPhotoBytes(ctx, chatID, path.Base(objectID), data, caption)
}
