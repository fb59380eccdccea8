package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.trai.ch/zerr"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"userprofile/internal/domain"
)

// Op is the change a user event describes.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

// UserEvent is the payload of the user topic. The wire schema lives in
// api/proto/v1/user_event.proto.
type UserEvent struct {
	ID         string      `json:"event_id"`
	Op         Op          `json:"op"`
	User       domain.User `json:"user"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func (ue UserEvent) Validate() error {
	switch ue.Op {
	case OpCreated, OpUpdated:
		if err := ue.User.Validate(); err != nil {
			return err
		}
	case OpDeleted:
		if strings.TrimSpace(ue.User.ID) == "" {
			return zerr.Wrap(domain.ErrInvalidEvent, "deleted event without user id")
		}
	default:
		return zerr.With(zerr.Wrap(domain.ErrInvalidEvent, "unknown op"), "op", string(ue.Op))
	}
	return nil
}

// DecodeUserEvent decodes ev.Payload according to its content type. Without
// a content-type header a payload starting with '{' is read as JSON and
// anything else as protobuf.
func DecodeUserEvent(ev Event) (UserEvent, error) {
	ct := ev.ContentType()
	if ct == "" {
		ct = ContentTypeProtobuf
		if p := bytes.TrimSpace(ev.Payload); len(p) > 0 && p[0] == '{' {
			ct = ContentTypeJSON
		}
	}

	var (
		ue  UserEvent
		err error
	)
	switch ct {
	case ContentTypeJSON:
		if jerr := json.Unmarshal(ev.Payload, &ue); jerr != nil {
			err = zerr.Wrap(domain.ErrDecodeFailed, jerr.Error())
		}
	case ContentTypeProtobuf:
		ue, err = unmarshalUserEvent(ev.Payload)
	default:
		err = zerr.With(zerr.Wrap(domain.ErrDecodeFailed, "unsupported content type"), "content_type", ct)
	}
	if err != nil {
		return UserEvent{}, zerr.With(err, "offset", ev.Offset)
	}

	avatar := strings.TrimSpace(ue.User.Avatar)
	ue.User = domain.NewUser(ue.User.ID, ue.User.UserName, ue.User.Email, ue.User.CreatedAt, ue.User.UpdatedAt)
	ue.User.Avatar = avatar
	if ue.ID == "" {
		ue.ID = ev.ID
	}
	if err := ue.Validate(); err != nil {
		return UserEvent{}, err
	}
	return ue, nil
}

// EncodeUserEvent renders ue as protobuf or JSON.
func EncodeUserEvent(ue UserEvent, contentType string) ([]byte, error) {
	switch contentType {
	case ContentTypeJSON:
		return json.Marshal(ue)
	case "", ContentTypeProtobuf:
		return marshalUserEvent(ue)
	default:
		return nil, fmt.Errorf("encode user event: unsupported content type %q", contentType)
	}
}

/*──────── protobuf wire codec ───────*/

// field numbers of userprofile.v1.UserEvent and userprofile.v1.User
const (
	fieldEventID    protowire.Number = 1
	fieldEventOp    protowire.Number = 2
	fieldEventUser  protowire.Number = 3
	fieldOccurredAt protowire.Number = 4

	fieldUserID        protowire.Number = 1
	fieldUserName      protowire.Number = 2
	fieldUserEmail     protowire.Number = 3
	fieldUserAvatar    protowire.Number = 4
	fieldUserCreatedAt protowire.Number = 5
	fieldUserUpdatedAt protowire.Number = 6
)

// enum values of userprofile.v1.UserEvent.Op
var opValues = map[Op]uint64{OpCreated: 1, OpUpdated: 2, OpDeleted: 3}

func marshalUserEvent(ue UserEvent) ([]byte, error) {
	var b []byte
	b = appendString(b, fieldEventID, ue.ID)
	if v, ok := opValues[ue.Op]; ok {
		b = protowire.AppendTag(b, fieldEventOp, protowire.VarintType)
		b = protowire.AppendVarint(b, v)
	} else if ue.Op != "" {
		return nil, fmt.Errorf("encode user event: unknown op %q", ue.Op)
	}

	var u []byte
	u = appendString(u, fieldUserID, ue.User.ID)
	u = appendString(u, fieldUserName, ue.User.UserName)
	u = appendString(u, fieldUserEmail, ue.User.Email)
	u = appendString(u, fieldUserAvatar, ue.User.Avatar)
	var err error
	if u, err = appendTimestamp(u, fieldUserCreatedAt, ue.User.CreatedAt); err != nil {
		return nil, err
	}
	if u, err = appendTimestamp(u, fieldUserUpdatedAt, ue.User.UpdatedAt); err != nil {
		return nil, err
	}
	b = protowire.AppendTag(b, fieldEventUser, protowire.BytesType)
	b = protowire.AppendBytes(b, u)

	return appendTimestamp(b, fieldOccurredAt, ue.OccurredAt)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendTimestamp(b []byte, num protowire.Number, t time.Time) ([]byte, error) {
	if t.IsZero() {
		return b, nil
	}
	raw, err := proto.Marshal(timestamppb.New(t))
	if err != nil {
		return nil, fmt.Errorf("encode timestamp: %w", err)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, raw), nil
}

func unmarshalUserEvent(b []byte) (UserEvent, error) {
	var ue UserEvent
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldEventID && typ == protowire.BytesType:
			v, n, err := consumeString(num, b)
			ue.ID = v
			return n, err
		case num == fieldEventOp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			ue.Op = opFromValue(v)
			return n, nil
		case num == fieldEventUser && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			u, err := unmarshalUser(v)
			ue.User = u
			return n, err
		case num == fieldOccurredAt && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			t, err := unmarshalTimestamp(v)
			ue.OccurredAt = t
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return ue, err
}

func unmarshalUser(b []byte) (domain.User, error) {
	var u domain.User
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		switch num {
		case fieldUserID, fieldUserName, fieldUserEmail, fieldUserAvatar:
			v, n, err := consumeString(num, b)
			if err != nil {
				return n, err
			}
			switch num {
			case fieldUserID:
				u.ID = v
			case fieldUserName:
				u.UserName = v
			case fieldUserEmail:
				u.Email = v
			default:
				u.Avatar = v
			}
			return n, nil
		case fieldUserCreatedAt, fieldUserUpdatedAt:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			t, err := unmarshalTimestamp(v)
			if num == fieldUserCreatedAt {
				u.CreatedAt = t
			} else {
				u.UpdatedAt = t
			}
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return u, err
}

// walkFields calls fn for every field of a message; fn returns the number
// of value bytes it consumed (negative per protowire on malformed input).
// consumeString is protowire.ConsumeString plus the proto3 UTF-8 rule.
func consumeString(num protowire.Number, b []byte) (string, int, error) {
	v, n := protowire.ConsumeString(b)
	if n >= 0 && !utf8.ValidString(v) {
		return "", n, zerr.With(zerr.Wrap(domain.ErrDecodeFailed, "string field is not valid UTF-8"), "field", int(num))
	}
	return v, n, nil
}

func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return zerr.Wrap(domain.ErrDecodeFailed, protowire.ParseError(n).Error())
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return zerr.With(zerr.Wrap(domain.ErrDecodeFailed, protowire.ParseError(m).Error()), "field", int(num))
		}
		b = b[m:]
	}
	return nil
}

func unmarshalTimestamp(b []byte) (time.Time, error) {
	var ts timestamppb.Timestamp
	if err := proto.Unmarshal(b, &ts); err != nil {
		return time.Time{}, zerr.Wrap(domain.ErrDecodeFailed, err.Error())
	}
	if err := ts.CheckValid(); err != nil {
		return time.Time{}, zerr.Wrap(domain.ErrDecodeFailed, err.Error())
	}
	return ts.AsTime(), nil
}

func opFromValue(v uint64) Op {
	for op, n := range opValues {
		if n == v {
			return op
		}
	}
	return Op(fmt.Sprintf("op(%d)", v))
}
