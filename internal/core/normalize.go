package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/samber/lo"

	"github.com/mikey/insight-pipeline/internal/recovery"
)

const (
	// maxUnwrapDepth bounds recursion into string fields holding embedded JSON
	maxUnwrapDepth = 3

	// DefaultConfidence is used when a record carries no confidence
	DefaultConfidence = 0.5
)

var errStop = errors.New("stop")

// NormalizeText recovers and normalizes raw model output in one step
func NormalizeText(text string) []InsightRecord {
	return Normalize(recovery.TryParse(text))
}

// Normalize turns any recovered value into a list of insight records. Shapes
// that are not recognized yield an empty, non-nil list.
func Normalize(v *recovery.Value) []InsightRecord {
	if records, ok := extract(v, 0); ok {
		return records
	}
	return []InsightRecord{}
}

// extract matches v against the known shapes, in order: a bare list, an
// object with a "classified" list, the first list-valued field, and finally
// a string field that itself recovers into one of those shapes.
func extract(v *recovery.Value, depth int) ([]InsightRecord, bool) {
	switch v.Kind() {
	case jsonparser.Array:
		return decodeRecords(v.Raw()), true
	case jsonparser.Object:
	default:
		return nil, false
	}

	raw := v.Raw()
	if list, dt, _, err := jsonparser.Get(raw, "classified"); err == nil && dt == jsonparser.Array {
		return decodeRecords(list), true
	}

	var records []InsightRecord
	found := false
	_ = jsonparser.ObjectEach(raw, func(_ []byte, value []byte, dt jsonparser.ValueType, _ int) error {
		if dt != jsonparser.Array {
			return nil
		}
		records, found = decodeRecords(value), true
		return errStop
	})
	if found {
		return records, true
	}

	if depth >= maxUnwrapDepth {
		return nil, false
	}
	_ = jsonparser.ObjectEach(raw, func(_ []byte, value []byte, dt jsonparser.ValueType, _ int) error {
		if dt != jsonparser.String {
			return nil
		}
		s, err := jsonparser.ParseString(value)
		if err != nil || !recovery.LooksStructured(s) {
			return nil
		}
		if inner, ok := extract(recovery.TryParse(s), depth+1); ok {
			records, found = inner, true
			return errStop
		}
		return nil
	})
	return records, found
}

func decodeRecords(list []byte) []InsightRecord {
	records := []InsightRecord{}
	_, _ = jsonparser.ArrayEach(list, func(value []byte, dt jsonparser.ValueType, _ int, err error) {
		if err != nil || dt != jsonparser.Object {
			return
		}
		records = append(records, decodeRecord(value, len(records)))
	})
	return records
}

func decodeRecord(data []byte, index int) InsightRecord {
	rec := InsightRecord{
		AIHeader: AIHeader{
			Bullets:    []string{},
			Badges:     []string{},
			Confidence: DefaultConfidence,
		},
	}

	_ = jsonparser.ObjectEach(data, func(key []byte, value []byte, dt jsonparser.ValueType, _ int) error {
		switch string(key) {
		case "id":
			rec.ID = stringOf(value, dt)
		case "kind":
			rec.Kind = InsightKind(strings.ToLower(strings.TrimSpace(stringOf(value, dt))))
		case "title":
			rec.Title = stringOf(value, dt)
		case "merchantOrBill":
			rec.MerchantOrBill = stringOf(value, dt)
		case "merchant":
			if rec.MerchantOrBill == "" {
				rec.MerchantOrBill = stringOf(value, dt)
			}
		case "amount":
			rec.Amount, _ = numberOf(value, dt)
		case "date":
			rec.Date = stringOf(value, dt)
		case "account":
			rec.Account = stringOf(value, dt)
		case "category":
			rec.Category = stringOf(value, dt)
		case "delta30":
			rec.Delta30, _ = numberOf(value, dt)
		case "delta90":
			rec.Delta90, _ = numberOf(value, dt)
		case "emailSummary":
			rec.EmailSummary = stringOf(value, dt)
		case "email":
			if rec.EmailSummary == "" {
				rec.EmailSummary = stringOf(value, dt)
			}
		case "aiHeader":
			if dt == jsonparser.Object {
				rec.AIHeader = decodeHeader(value)
			}
		}
		return nil
	})

	if !validKind(rec.Kind) {
		rec.Kind = KindAdvice
	}
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("ins::%s::%d", rec.Kind, index)
	}
	return rec
}

func decodeHeader(data []byte) AIHeader {
	header := AIHeader{
		Bullets:    []string{},
		Badges:     []string{},
		Confidence: DefaultConfidence,
	}

	_ = jsonparser.ObjectEach(data, func(key []byte, value []byte, dt jsonparser.ValueType, _ int) error {
		switch string(key) {
		case "bullets":
			header.Bullets = stringsOf(value, dt)
		case "nextStep":
			header.NextStep = stringOf(value, dt)
		case "badges":
			header.Badges = lo.Uniq(stringsOf(value, dt))
		case "confidence":
			if c, ok := numberOf(value, dt); ok {
				header.Confidence = math.Min(1, math.Max(0, c))
			}
		}
		return nil
	})
	return header
}

func validKind(k InsightKind) bool {
	switch k {
	case KindSubscription, KindBill, KindAnomaly, KindGoal, KindAdvice:
		return true
	}
	return false
}

func stringOf(value []byte, dt jsonparser.ValueType) string {
	switch dt {
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return ""
		}
		return s
	case jsonparser.Number:
		return string(value)
	default:
		return ""
	}
}

// numberOf accepts JSON numbers and numeric strings such as "$1,234.50"
func numberOf(value []byte, dt jsonparser.ValueType) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch dt {
	case jsonparser.Number:
		f, err = jsonparser.ParseFloat(value)
	case jsonparser.String:
		s := strings.NewReplacer("$", "", ",", "", " ", "").Replace(stringOf(value, dt))
		f, err = strconv.ParseFloat(s, 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringsOf(value []byte, dt jsonparser.ValueType) []string {
	out := []string{}
	if dt != jsonparser.Array {
		return out
	}
	_, _ = jsonparser.ArrayEach(value, func(item []byte, itemType jsonparser.ValueType, _ int, err error) {
		if err != nil || itemType != jsonparser.String {
			return
		}
		if s, err := jsonparser.ParseString(item); err == nil {
			out = append(out, s)
		}
	})
	return out
}
