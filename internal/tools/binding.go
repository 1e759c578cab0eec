package tools

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

// bindArguments maps a loosely-typed argument bag onto an operation's
// declared parameter list, producing one positional value per parameter.
//
// Binding never fails the call: a parameter that cannot be bound or
// coerced is left nil and the warning is logged. Handlers validate their
// own required arguments.
func bindArguments(op *Operation, bag map[string]any, logger *slog.Logger) []any {
	params := op.Params

	// Single bag parameter: pass the payload through unchanged.
	if len(params) == 1 && params[0].Kind == KindBag {
		return []any{bag}
	}

	// Single string parameter: stringify the whole bag. A lone string
	// entry is unwrapped; anything else is rendered as JSON so no entry
	// is dropped.
	if len(params) == 1 && params[0].Kind == KindString {
		return []any{stringifyBag(bag)}
	}

	args := make([]any, len(params))
	for i, p := range params {
		raw, ok := lookupArgument(bag, p.Name, i)
		if !ok {
			if p.Required && logger != nil {
				logger.Warn("tool argument missing, binding nil",
					"operation", op.Name,
					"param", p.Name,
				)
			}
			continue
		}
		bound, err := coerceArgument(raw, p)
		if err != nil {
			if logger != nil {
				logger.Warn("tool argument coercion failed, binding nil",
					"operation", op.Name,
					"param", p.Name,
					"error", err,
				)
			}
			continue
		}
		args[i] = bound
	}
	return args
}

// lookupArgument resolves one parameter from the bag: exact name first,
// then the opposite case convention, then (for the first parameter only)
// the common content keys, then a single-entry bag regardless of key.
func lookupArgument(bag map[string]any, name string, position int) (any, bool) {
	if v, ok := bag[name]; ok {
		return v, true
	}
	if alt := swapCaseConvention(name); alt != name {
		if v, ok := bag[alt]; ok {
			return v, true
		}
	}
	if position == 0 {
		for _, key := range []string{"text", "content"} {
			if v, ok := bag[key]; ok {
				return v, true
			}
		}
		if len(bag) == 1 {
			for _, v := range bag {
				return v, true
			}
		}
	}
	return nil, false
}

// swapCaseConvention converts snake_case to camelCase or back.
func swapCaseConvention(name string) string {
	if strings.Contains(name, "_") {
		parts := strings.Split(name, "_")
		out := parts[0]
		for _, p := range parts[1:] {
			if p == "" {
				continue
			}
			out += strings.ToUpper(p[:1]) + p[1:]
		}
		return out
	}
	var b strings.Builder
	for _, r := range name {
		if unicode.IsUpper(r) {
			b.WriteByte('_')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// coerceArgument converts a bound value to the parameter's declared kind:
// identity when already assignable, primitive coercions from string or
// number, container pass-through, and a generic structural mapping for
// struct targets.
func coerceArgument(value any, p Param) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch p.Kind {
	case KindBag:
		if m, ok := value.(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("expected object, got %T", value)

	case KindString:
		switch v := value.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			return string(raw), nil
		}

	case KindInt:
		switch v := value.(type) {
		case float64:
			return int(v), nil
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, err
			}
			return n, nil
		case bool:
			if v {
				return 1, nil
			}
			return 0, nil
		}
		return nil, fmt.Errorf("cannot coerce %T to int", value)

	case KindFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, err
			}
			return f, nil
		}
		return nil, fmt.Errorf("cannot coerce %T to float", value)

	case KindBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(strings.ToLower(v)))
			if err != nil {
				return nil, err
			}
			return b, nil
		case float64:
			return v != 0, nil
		}
		return nil, fmt.Errorf("cannot coerce %T to bool", value)

	case KindList:
		if l, ok := value.([]any); ok {
			return l, nil
		}
		return nil, fmt.Errorf("expected array, got %T", value)

	case KindStruct:
		if p.Proto == nil {
			return value, nil
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		target := clonePrototype(p.Proto)
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, err
		}
		return target, nil
	}
	return value, nil
}

// clonePrototype allocates a fresh instance of the prototype's underlying
// type so concurrent calls never share a target. Prototypes are pointers
// to zero-value structs.
func clonePrototype(proto any) any {
	t := reflect.TypeOf(proto)
	if t == nil || t.Kind() != reflect.Pointer {
		return proto
	}
	return reflect.New(t.Elem()).Interface()
}

// stringifyBag renders the whole bag as the single string argument.
func stringifyBag(bag map[string]any) string {
	if len(bag) == 1 {
		for _, v := range bag {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	raw, err := json.Marshal(bag)
	if err != nil {
		return fmt.Sprintf("%v", bag)
	}
	return string(raw)
}
