package httpapi

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/turnstile/internal/apperr"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

// Protobuf check-ins carry a google.protobuf.Struct with the same keys as
// the JSON body, so terminals need no generated code.

func checkInFromStruct(st *structpb.Struct) (types.CheckInRequest, error) {
	var req types.CheckInRequest
	for key, v := range st.GetFields() {
		var err error
		switch key {
		case "uid":
			req.UID, err = stringField(key, v)
		case "gate":
			req.Gate, err = stringField(key, v)
		case "direction":
			var d string
			d, err = stringField(key, v)
			req.Direction = types.Direction(d)
		case "requested_at":
			req.RequestedAt, err = stringField(key, v)
		case "latitude":
			req.Latitude, err = numberField(key, v)
		case "longitude":
			req.Longitude, err = numberField(key, v)
		default:
			err = apperr.WithMetadata(apperr.CodeValidation, "unknown field", map[string]any{"field": key})
		}
		if err != nil {
			return types.CheckInRequest{}, err
		}
	}
	return req, nil
}

func stringField(key string, v *structpb.Value) (string, error) {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", apperr.WithMetadata(apperr.CodeValidation, key+" must be a string", map[string]any{"field": key})
	}
	return s.StringValue, nil
}

func numberField(key string, v *structpb.Value) (*float64, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		return &f, nil
	}
	return nil, apperr.WithMetadata(apperr.CodeValidation, key+" must be a number", map[string]any{"field": key})
}

func checkInResponseToStruct(r types.CheckInResponse) (*structpb.Struct, error) {
	m := map[string]any{
		"status":      string(r.Status),
		"allowed":     r.Allowed,
		"reason":      r.Reason,
		"log_id":      r.LogID,
		"uid":         r.UID,
		"gate":        r.Gate,
		"direction":   string(r.Direction),
		"server_time": r.ServerTime,
	}
	if r.ReasonCode != "" {
		m["reason_code"] = string(r.ReasonCode)
	}
	if r.Identity != nil {
		m["identity"] = map[string]any{
			"name":        r.Identity.Name,
			"ticket_type": string(r.Identity.TicketType),
		}
	}
	return structpb.NewStruct(m)
}

// errorToStruct mirrors errorBody for protobuf callers.  Metadata values
// structpb cannot hold natively (named string types) are rendered with
// fmt.Sprint.
func errorToStruct(d errorDetail) *structpb.Struct {
	md := make(map[string]any, len(d.Metadata))
	for k, v := range d.Metadata {
		if pv, err := structpb.NewValue(v); err == nil {
			md[k] = pv.AsInterface()
		} else {
			md[k] = fmt.Sprint(v)
		}
	}
	st, err := structpb.NewStruct(map[string]any{"error": map[string]any{
		"code":     string(d.Code),
		"message":  d.Message,
		"metadata": md,
	}})
	if err != nil {
		return &structpb.Struct{}
	}
	return st
}
