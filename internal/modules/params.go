package modules

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

// String returns a string parameter. Absent parameters return "".
func String(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", domain.NewError(domain.KindValidation, "param %s must be a string", key)
	}
	return strings.TrimSpace(s), nil
}

// RequiredString returns a non-empty string parameter.
func RequiredString(params map[string]any, key string) (string, error) {
	s, err := String(params, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", domain.NewError(domain.KindValidation, "param %s must not be empty", key)
	}
	return s, nil
}

// Int returns an integer parameter, or def when absent. JSON numbers and
// numeric strings are accepted.
func Int(params map[string]any, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, domain.NewError(domain.KindValidation, "param %s must be a whole number", key)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, domain.NewError(domain.KindValidation, "param %s must be a number", key)
		}
		return i, nil
	default:
		return 0, domain.NewError(domain.KindValidation, "param %s must be a number", key)
	}
}

// Date returns a YYYY-MM-DD parameter, or the zero time when absent.
func Date(params map[string]any, key string) (time.Time, error) {
	s, err := String(params, key)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, domain.NewError(domain.KindValidation, "param %s must be a YYYY-MM-DD date", key)
	}
	return t, nil
}

// Content encodings accepted by Bytes.
const (
	EncodingText   = "text"
	EncodingBase64 = "base64"
)

// Bytes returns binary content. Raw []byte is used as is; strings are
// decoded according to encoding.
func Bytes(params map[string]any, key, encoding string) ([]byte, error) {
	switch v := params[key].(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		switch encoding {
		case "", EncodingText:
			return []byte(v), nil
		case EncodingBase64:
			data, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return nil, domain.WrapError(domain.KindValidation, err, "param "+key+" is not valid base64")
			}
			return data, nil
		default:
			return nil, domain.NewError(domain.KindValidation, "unknown encoding %q", encoding)
		}
	default:
		return nil, domain.NewError(domain.KindValidation, "param %s must be a string", key)
	}
}
