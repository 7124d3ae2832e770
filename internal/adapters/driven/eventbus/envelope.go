package eventbus

import (
	"encoding/json"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

const (
	eventTypePrefix   = "caseflow."
	eventSourcePrefix = "caseflow/"
	subscriberExt     = "subscriber"
)

// encodeEnvelope serialises a pack delivered to subscriber as a CloudEvent.
func encodeEnvelope(t domain.EventType, subscriber string, pack domain.InfoPack) ([]byte, error) {
	ev := cloudevents.NewEvent()
	ev.SetID(pack.ID)
	ev.SetSource(eventSourcePrefix + pack.Source)
	ev.SetType(eventTypePrefix + string(t))
	ev.SetSubject(pack.UserID)
	ev.SetTime(pack.CreatedAt)
	ev.SetExtension(subscriberExt, subscriber)
	if err := ev.SetData(cloudevents.ApplicationJSON, pack); err != nil {
		return nil, fmt.Errorf("encode pack %s: %w", pack.ID, err)
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return raw, nil
}

// decodeEnvelope is the inverse of encodeEnvelope.
func decodeEnvelope(raw []byte) (domain.EventType, string, domain.InfoPack, error) {
	var ev cloudevents.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return "", "", domain.InfoPack{}, fmt.Errorf("decode envelope: %w", err)
	}
	if len(ev.Type()) <= len(eventTypePrefix) {
		return "", "", domain.InfoPack{}, fmt.Errorf("%w: envelope type %q", domain.ErrUnsupportedType, ev.Type())
	}
	t := domain.EventType(ev.Type()[len(eventTypePrefix):])

	var subscriber string
	if v, ok := ev.Extensions()[subscriberExt]; ok {
		subscriber = fmt.Sprint(v)
	}

	var pack domain.InfoPack
	if err := ev.DataAs(&pack); err != nil {
		return "", "", domain.InfoPack{}, fmt.Errorf("decode pack: %w", err)
	}
	return t, subscriber, pack, nil
}
