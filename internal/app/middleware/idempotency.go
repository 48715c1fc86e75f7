package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"bookingengine/internal/app/commands"
	"bookingengine/internal/domain/shared/failure"
)

// IdempotentCommand is implemented by commands that may be retried by clients with the same key.
type IdempotentCommand interface {
	commands.Command
	IdempotencyKey() string
	ResultPrototype() any
}

// IdempotencyRecord is the stored outcome of a keyed command. Business
// failures are stored with their kind and code so a replay returns the same
// typed error.
type IdempotencyRecord struct {
	Key          string
	Fingerprint  string
	Payload      []byte
	ErrorKind    string
	ErrorCode    string
	ErrorMessage string
	OccurredAt   time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (IdempotencyRecord, bool, error)
	Save(ctx context.Context, rec IdempotencyRecord) error
}

type ResultCodec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

type JSONResultCodec struct{}

func (JSONResultCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONResultCodec) Decode(data []byte, out any) error {
	return json.Unmarshal(data, out)
}

var (
	errMissingPrototype = errors.New("middleware: idempotent command requires result prototype")

	ErrIdempotencyKeyReused = failure.Validation("IDEMPOTENCY_KEY_REUSED", "idempotency key was already used for a different request")
)

// Idempotency replays the stored outcome for a repeated key. Keys are scoped
// to the acting user, and a replay whose payload differs from the stored one
// fails with ErrIdempotencyKeyReused. Conflicts, timeouts and unexpected
// errors are not stored so the client can retry.
func Idempotency(store IdempotencyStore, codec ResultCodec) CommandMiddleware {
	if store == nil {
		panic("middleware: idempotency store required")
	}
	if codec == nil {
		codec = JSONResultCodec{}
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			idCmd, ok := cmd.(IdempotentCommand)
			if !ok || idCmd.IdempotencyKey() == "" {
				return next.Dispatch(ctx, cmd)
			}
			key := scopedKey(cmd, idCmd.IdempotencyKey())
			fingerprint, err := fingerprintOf(codec, cmd)
			if err != nil {
				return nil, err
			}
			rec, found, err := store.Get(ctx, key)
			if err != nil {
				return nil, err
			}
			if found {
				if rec.Fingerprint != "" && rec.Fingerprint != fingerprint {
					return nil, ErrIdempotencyKeyReused
				}
				return replay(rec, idCmd, codec)
			}

			result, err := next.Dispatch(ctx, cmd)
			record := IdempotencyRecord{Key: key, Fingerprint: fingerprint, OccurredAt: time.Now().UTC()}
			if err != nil {
				fe, ok := failure.As(err)
				if !ok || !replayable(fe.Kind) {
					return nil, err
				}
				record.ErrorKind = string(fe.Kind)
				record.ErrorCode = fe.Code
				record.ErrorMessage = fe.Message
				if saveErr := store.Save(ctx, record); saveErr != nil {
					return nil, errors.Join(err, saveErr)
				}
				return nil, err
			}
			if result != nil {
				payload, encErr := codec.Encode(result)
				if encErr != nil {
					return nil, encErr
				}
				record.Payload = payload
			}
			if saveErr := store.Save(ctx, record); saveErr != nil {
				return nil, saveErr
			}
			return result, nil
		})
	}
}

func scopedKey(cmd commands.Command, key string) string {
	if acting, ok := cmd.(interface{ ActorID() string }); ok {
		return cmd.Key() + ":" + acting.ActorID() + ":" + key
	}
	return cmd.Key() + ":" + key
}

func fingerprintOf(codec ResultCodec, cmd commands.Command) (string, error) {
	body, err := codec.Encode(cmd)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

func replay(rec IdempotencyRecord, cmd IdempotentCommand, codec ResultCodec) (any, error) {
	if rec.ErrorCode != "" {
		return nil, &failure.Error{Kind: failure.Kind(rec.ErrorKind), Code: rec.ErrorCode, Message: rec.ErrorMessage}
	}
	proto := cmd.ResultPrototype()
	if proto == nil {
		return nil, errMissingPrototype
	}
	if len(rec.Payload) == 0 {
		return nil, nil
	}
	if err := codec.Decode(rec.Payload, proto); err != nil {
		return nil, err
	}
	return normalizePrototype(proto), nil
}

func replayable(kind failure.Kind) bool {
	switch kind {
	case failure.KindValidation, failure.KindNotFound, failure.KindForbidden:
		return true
	}
	return false
}

func normalizePrototype(proto any) any {
	rv := reflect.ValueOf(proto)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		return rv.Interface()
	}
	return proto
}
