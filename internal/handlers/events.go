package handlers

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/ampora-ai/ampora-web/internal/models"
	"github.com/tmaxmax/go-sse"
)

// SSE event types for real-time updates.
const (
	processingSSEType = "processing"
	artifactSSEType   = "artifact"
	revealSSEType     = "reveal"
	messageSSEType    = "message"
	lockedSSEType     = "locked"
)

// sseObserver publishes the changes of one conversation to its SSE topic.
type sseObserver struct {
	main  Main
	topic string
}

type revealEvent struct {
	TurnID string `json:"turnId"`
	Text   string `json:"text"`
}

type messageEvent struct {
	ID     string `json:"id"`
	Sender string `json:"sender"`
	HTML   string `json:"html"`
}

func (o sseObserver) OnProcessing(processing bool) {
	o.publish(processingSSEType, strconv.FormatBool(processing))
}

func (o sseObserver) OnArtifact(url string) {
	o.publish(artifactSSEType, url)
}

func (o sseObserver) OnReveal(turnID, prefix string) {
	o.publishJSON(revealSSEType, revealEvent{TurnID: turnID, Text: prefix})
}

func (o sseObserver) OnMessage(msg models.Message) {
	view, err := o.main.messageView(msg)
	if err != nil {
		o.main.logger.Error("Failed to render message",
			slog.String("messageID", msg.ID),
			slog.String(errLoggerKey, err.Error()))
		return
	}
	o.publishJSON(messageSSEType, messageEvent{
		ID:     view.ID,
		Sender: view.Sender,
		HTML:   string(view.HTML),
	})
}

func (o sseObserver) OnInputLocked(locked bool) {
	o.publish(lockedSSEType, strconv.FormatBool(locked))
}

func (o sseObserver) publishJSON(typ string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		o.main.logger.Error("Failed to marshal event",
			slog.String("type", typ),
			slog.String(errLoggerKey, err.Error()))
		return
	}
	o.publish(typ, string(data))
}

func (o sseObserver) publish(typ, data string) {
	msg := sse.Message{
		Type: sse.Type(typ),
	}
	msg.AppendData(data)
	if err := o.main.sseSrv.Publish(&msg, o.topic); err != nil {
		o.main.logger.Error("Failed to publish event",
			slog.String("type", typ),
			slog.String(errLoggerKey, err.Error()))
	}
}
