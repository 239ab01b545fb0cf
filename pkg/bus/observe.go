package bus

import (
	"context"
	"log/slog"
)

// Observe logs every settled event until ctx ends or the bus closes.
func Observe(ctx context.Context, b *EventBus, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "bus.events")

	events, unsubscribe := b.SubscribeEvents(ctx, 64)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case record, ok := <-events:
			if !ok {
				return
			}
			logRecord(log, record)
		}
	}
}

func logRecord(log *slog.Logger, record Record) {
	attrs := []any{
		"event_type", record.Type,
		"session_id", record.Detail.SessionID,
		"curr_step", record.Detail.CurrStep,
		"prev_step", record.Detail.PrevStep,
		"timestamp", record.At.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
	}

	switch data := record.Data.(type) {
	case *MessageData:
		attrs = append(attrs, "message_id", data.Message.ID, "sender", data.Message.Sender)
	case *PathData:
		attrs = append(attrs, "next_path", data.NextPath)
	case *ToastData:
		attrs = append(attrs, "toast_id", data.Toast.ID)
	case *ToggleData:
		attrs = append(attrs, "new_state", data.NewState)
	}

	if record.DefaultPrevented {
		log.Info("Event prevented", attrs...)
		return
	}
	log.Debug("Event dispatched", attrs...)
}
